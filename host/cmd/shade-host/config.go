package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"stepshade/core"
	"stepshade/host/serial"
	"stepshade/protocol"
)

// Config is the shade-host configuration file
type Config struct {
	Serial  serial.Config     `yaml:"serial"`
	Log     LogConfig         `yaml:"log"`
	Presets map[string]Preset `yaml:"presets"`

	// Presets sent as setup commands right after connecting
	SetupOnConnect []string `yaml:"setup_on_connect"`
}

// LogConfig controls the rotating log file
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Preset is a named channel setup
type Preset struct {
	Channel        uint8   `yaml:"channel"`
	Position       uint8   `yaml:"position"`
	Tilt           int8    `yaml:"tilt"`
	FullCycleSteps uint32  `yaml:"full_cycle_steps"`
	FullTiltSteps  *uint32 `yaml:"full_tilt_steps"`
	Reverse        bool    `yaml:"reverse"`
	Sgthrs         *uint8  `yaml:"sgthrs"`
}

// Command builds the setup command for the preset
func (p Preset) Command() protocol.Setup {
	s := protocol.Setup{
		Channel:        p.Channel,
		Init:           core.WindowDressingState{Position: p.Position, Tilt: p.Tilt},
		FullCycleSteps: p.FullCycleSteps,
		FullTiltSteps:  p.FullTiltSteps,
		Sgthrs:         p.Sgthrs,
	}
	if p.Reverse {
		reverse := true
		s.Reverse = &reverse
	}
	return s
}

// defaultConfig returns the configuration used without a file
func defaultConfig() *Config {
	return &Config{
		Serial: *serial.DefaultConfig("/dev/ttyACM0"),
		Log: LogConfig{
			File:       "shade-host.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Presets: map[string]Preset{},
	}
}

// loadConfig applies the file at path over the defaults. An empty path
// returns the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// validate checks presets the controller would reject
func (c *Config) validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial device is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Serial.Baud)
	}

	names := make([]string, 0, len(c.Presets))
	for name := range c.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p := c.Presets[name]
		if p.FullCycleSteps == 0 {
			return fmt.Errorf("preset %s: full_cycle_steps must be positive", name)
		}
		if p.Position > 100 {
			return fmt.Errorf("preset %s: position %d out of range", name, p.Position)
		}
		if p.Tilt < -90 || p.Tilt > 90 {
			return fmt.Errorf("preset %s: tilt %d out of range", name, p.Tilt)
		}
	}

	for _, name := range c.SetupOnConnect {
		if _, ok := c.Presets[name]; !ok {
			return fmt.Errorf("setup_on_connect: unknown preset %s", name)
		}
	}
	return nil
}
