package serial

import (
	"io"
)

// Port represents a serial port interface
// This abstraction allows for different implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipes (for testing)
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string `yaml:"device"`

	// Baud rate (USB CDC ignores this)
	Baud int `yaml:"baud"`

	// Read timeout in milliseconds (0 = blocking). Timeouts are hidden from
	// callers; a read only returns once data arrives or the port fails.
	ReadTimeout int `yaml:"read_timeout_ms"`
}

// DefaultConfig returns the configuration the shade controller expects
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}
