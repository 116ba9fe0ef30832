package core

import "time"

// Default timing of the control loop
const (
	DefaultPulseFrequency  = 1000 // Hz, fixed step rate of every pulse generator
	DefaultTickPeriod      = 250 * time.Millisecond
	DefaultIdlePoll        = 10 * time.Millisecond
	DefaultEndstopGuard    = 500 * time.Millisecond
	DefaultEndstopDeadTime = time.Second
	DefaultChannels        = 4
)

// Config holds the controller tunables. Zero fields take the defaults.
type Config struct {
	Channels        int           // Number of driver channels, at most MaxChannels
	PulseFrequency  uint32        // Step rate of the pulse generators in Hz
	TickPeriod      time.Duration // Dispatcher pass interval
	IdlePoll        time.Duration // Extra sleep when the host link has nothing buffered
	EndstopGuard    time.Duration // Endstop triggers this soon after a reversal are ignored
	EndstopDeadTime time.Duration // Watcher pause after a trigger
	TickPulseBudget uint32        // Grouping threshold per buffered instruction
	QueueCapacity   int           // Instruction queue size per channel
	StallSensing    bool          // Accept stall-guard commands
}

// DefaultConfig returns the stock configuration
func DefaultConfig() Config {
	var c Config
	applyDefaults(&c)
	return c
}

// applyDefaults fills in missing configuration values with sensible defaults
func applyDefaults(c *Config) {
	if c.Channels <= 0 {
		c.Channels = DefaultChannels
	}
	if c.Channels > MaxChannels {
		c.Channels = MaxChannels
	}
	if c.PulseFrequency == 0 {
		c.PulseFrequency = DefaultPulseFrequency
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = DefaultTickPeriod
	}
	if c.IdlePoll <= 0 {
		c.IdlePoll = DefaultIdlePoll
	}
	if c.EndstopGuard <= 0 {
		c.EndstopGuard = DefaultEndstopGuard
	}
	if c.EndstopDeadTime <= 0 {
		c.EndstopDeadTime = DefaultEndstopDeadTime
	}
	// One second of pulses per grouped instruction
	if c.TickPulseBudget == 0 {
		c.TickPulseBudget = c.PulseFrequency
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}

// WithDefaults returns c with every unset field defaulted
func (c Config) WithDefaults() Config {
	applyDefaults(&c)
	return c
}
