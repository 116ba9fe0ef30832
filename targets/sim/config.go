package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"stepshade/core"
	"stepshade/sim"
)

// Config is the simulator configuration file
type Config struct {
	Controller ControllerConfig    `yaml:"controller"`
	Channels   []sim.ChannelConfig `yaml:"channels"`
	Link       LinkConfig          `yaml:"link"`
	Log        LogConfig           `yaml:"log"`
}

// ControllerConfig mirrors core.Config; zero values take the firmware defaults
type ControllerConfig struct {
	PulseFrequency  uint32        `yaml:"pulse_frequency"`
	TickPeriod      time.Duration `yaml:"tick_period"`
	IdlePoll        time.Duration `yaml:"idle_poll"`
	EndstopGuard    time.Duration `yaml:"endstop_guard"`
	EndstopDeadTime time.Duration `yaml:"endstop_dead_time"`
	TickPulseBudget uint32        `yaml:"tick_pulse_budget"`
	QueueCapacity   int           `yaml:"queue_capacity"`
	StallSensing    bool          `yaml:"stall_sensing"`
}

// LinkConfig selects the host connection. An empty device uses stdin/stdout.
type LinkConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

// LogConfig controls the rotating log file
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	Debug      bool   `yaml:"debug"`
}

// defaultConfig simulates four roller shades half open, each with a
// 100000-step travel
func defaultConfig() *Config {
	channels := make([]sim.ChannelConfig, core.DefaultChannels)
	for i := range channels {
		channels[i] = sim.ChannelConfig{Travel: 100000, Start: 50000}
	}
	return &Config{
		Channels: channels,
		Link:     LinkConfig{Baud: 115200},
		Log: LogConfig{
			File:       "shade-sim.log",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// loadConfig applies the file at path over the defaults
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

func (c *Config) validate() error {
	if len(c.Channels) == 0 {
		return errors.New("at least one channel must be configured")
	}
	if len(c.Channels) > core.MaxChannels {
		return fmt.Errorf("%d channels configured, at most %d supported", len(c.Channels), core.MaxChannels)
	}
	for i, ch := range c.Channels {
		if ch.Travel == 0 {
			return fmt.Errorf("channel %d: travel must be positive", i)
		}
		if ch.Start > ch.Travel {
			return fmt.Errorf("channel %d: start %d beyond travel %d", i, ch.Start, ch.Travel)
		}
	}
	return nil
}

// Core converts the file settings into the firmware configuration
func (c *Config) Core() core.Config {
	cc := c.Controller
	return core.Config{
		Channels:        len(c.Channels),
		PulseFrequency:  cc.PulseFrequency,
		TickPeriod:      cc.TickPeriod,
		IdlePoll:        cc.IdlePoll,
		EndstopGuard:    cc.EndstopGuard,
		EndstopDeadTime: cc.EndstopDeadTime,
		TickPulseBudget: cc.TickPulseBudget,
		QueueCapacity:   cc.QueueCapacity,
		StallSensing:    cc.StallSensing,
	}.WithDefaults()
}
