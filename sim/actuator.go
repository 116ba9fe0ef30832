package sim

import (
	"sync"

	"stepshade/core"
)

// Actuator is a virtual motor and dressing on one channel. Each pulse moves
// it one step while the driver is enabled; the endstop closes at either end
// of travel.
type Actuator struct {
	mu       sync.Mutex
	gpio     core.GPIODriver
	pins     core.DriverPins
	travel   int64
	reversed bool // Motor wired backwards
	position int64
	blocked  uint64 // Pulses spent pushing against a limit
	endstop  *Level
}

// NewActuator creates an actuator with travel steps between the limits,
// starting at the given step position
func NewActuator(gpio core.GPIODriver, pins core.DriverPins, travel uint32, start uint32, reversed bool) *Actuator {
	a := &Actuator{
		gpio:     gpio,
		pins:     pins,
		travel:   int64(travel),
		reversed: reversed,
		position: int64(start),
	}
	if a.position > a.travel {
		a.position = a.travel
	}
	a.endstop = NewLevel(a.atLimit())
	return a
}

func (a *Actuator) atLimit() bool {
	return a.position <= 0 || a.position >= a.travel
}

// Pulse advances one step in the direction the pins select
func (a *Actuator) Pulse() {
	if a.gpio.ReadPin(a.pins.Enable) {
		return // Enable is active low
	}
	opening := a.gpio.ReadPin(a.pins.Dir) == a.reversed

	a.mu.Lock()
	next := a.position - 1
	if opening {
		next = a.position + 1
	}
	if next < 0 || next > a.travel {
		a.blocked++
	} else {
		a.position = next
	}
	limit := a.atLimit()
	a.mu.Unlock()

	a.endstop.Set(limit)
}

// Position returns the step position, 0 closed to travel open
func (a *Actuator) Position() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.position
}

// Percent returns the position as 0 to 100
func (a *Actuator) Percent() uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.travel == 0 {
		return 0
	}
	return uint8(a.position * 100 / a.travel)
}

// Blocked returns the pulses lost against the limits
func (a *Actuator) Blocked() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.blocked
}

// Endstop returns the limit switch input
func (a *Actuator) Endstop() *Level {
	return a.endstop
}
