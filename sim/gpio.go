package sim

import (
	"errors"
	"sync"

	"stepshade/core"
)

// ErrPinNotConfigured is returned when driving a pin that was never configured
var ErrPinNotConfigured = errors.New("pin not configured")

// GPIO is an in-memory core.GPIODriver
type GPIO struct {
	mu      sync.Mutex
	outputs map[core.GPIOPin]bool
	values  map[core.GPIOPin]bool
}

// NewGPIO creates a driver with every pin low and unconfigured
func NewGPIO() *GPIO {
	return &GPIO{
		outputs: make(map[core.GPIOPin]bool),
		values:  make(map[core.GPIOPin]bool),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = true
	return nil
}

func (g *GPIO) ConfigureInput(pin core.GPIOPin, pull core.Pull) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outputs[pin] = false
	g.values[pin] = pull == core.PullUp
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.outputs[pin] {
		return ErrPinNotConfigured
	}
	g.values[pin] = value
	return nil
}

func (g *GPIO) ReadPin(pin core.GPIOPin) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.values[pin]
}
