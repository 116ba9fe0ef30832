package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stepshade/core"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(\"\") failed: %v", err)
	}
	cc := cfg.Core()
	if cc.Channels != core.DefaultChannels {
		t.Errorf("Expected %d channels, got %d", core.DefaultChannels, cc.Channels)
	}
	if cc.TickPeriod != core.DefaultTickPeriod || cc.PulseFrequency != core.DefaultPulseFrequency {
		t.Errorf("Expected firmware defaults, got %+v", cc)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	data := `
controller:
  pulse_frequency: 4000
  tick_period: 50ms
  endstop_guard: 1s
  stall_sensing: true
channels:
  - travel: 2000
    start: 0
  - travel: 5000
    start: 5000
    reversed: true
link:
  device: /dev/pts/7
log:
  debug: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	cc := cfg.Core()
	if cc.Channels != 2 || cc.PulseFrequency != 4000 || cc.TickPeriod != 50*time.Millisecond {
		t.Errorf("Unexpected controller config %+v", cc)
	}
	if cc.EndstopGuard != time.Second || !cc.StallSensing {
		t.Errorf("Unexpected guard or stall sensing %+v", cc)
	}
	if cc.TickPulseBudget != 4000 {
		t.Errorf("Budget should follow the pulse frequency, got %d", cc.TickPulseBudget)
	}
	if !cfg.Channels[1].Reversed || cfg.Channels[1].Start != 5000 {
		t.Errorf("Unexpected channel config %+v", cfg.Channels[1])
	}
	if cfg.Link.Device != "/dev/pts/7" || cfg.Link.Baud != 115200 {
		t.Errorf("Unexpected link config %+v", cfg.Link)
	}
	if !cfg.Log.Debug || cfg.Log.File != "shade-sim.log" {
		t.Errorf("Unexpected log config %+v", cfg.Log)
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	for name, data := range map[string]string{
		"no channels":    "channels: []\n",
		"zero travel":    "channels:\n  - travel: 0\n",
		"start too far":  "channels:\n  - travel: 10\n    start: 11\n",
		"bad duration":   "controller:\n  tick_period: soon\n",
		"malformed yaml": "channels: {",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.yaml")
			os.WriteFile(path, []byte(data), 0o644)
			if _, err := loadConfig(path); err == nil {
				t.Errorf("Expected an error for %q", data)
			}
		})
	}
}
