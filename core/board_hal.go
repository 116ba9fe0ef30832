package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// Pull selects the input bias resistor
type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// GPIODriver is the abstract GPIO interface that board code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a digital input with the given bias
	ConfigureInput(pin GPIOPin, pull Pull) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// ReadPin reads the current pin state
	ReadPin(pin GPIOPin) bool
}

// PulseGenerator emits a fixed-frequency square wave for a requested number
// of pulses. One per channel, implemented by PIO state machines on RP2040 or
// in software by the simulator.
type PulseGenerator interface {
	// Ready reports whether another pulse count can be queued
	Ready() bool

	// Stopped reports that no pulses are in flight or queued
	Stopped() bool

	// TryPush queues count pulses, returning false if it was not accepted
	TryPush(count uint32) bool

	// Clear aborts the in-flight and queued pulses
	Clear()
}

// StepStickBoard is the set of per-channel operations the controller needs
// from a step/dir/enable driver board
type StepStickBoard interface {
	SetEnabled(channel int, enabled bool)
	SetDirection(channel int, invert bool)
	IsStopped(channel int) bool
	IsReadyForSteps(channel int) bool
	AddSteps(channel int, steps uint32) bool
	ClearSteps(channel int)
}

// StallGuard is implemented by boards whose drivers report motor load
type StallGuard interface {
	// SetStallThreshold programs the stall threshold, scaled to 8 bits
	SetStallThreshold(channel int, threshold uint8) error

	// StallResult reads the current load measurement, scaled to 8 bits
	StallResult(channel int) (uint8, error)
}

// Resetter restarts the device. Implementations on hardware never return.
type Resetter interface {
	Reset()
}

// ResetFunc adapts a function to Resetter
type ResetFunc func()

func (f ResetFunc) Reset() { f() }

// DriverPins are the control lines of one step-stick driver
type DriverPins struct {
	Enable GPIOPin // Active low
	Dir    GPIOPin
}

// PinBoard composes GPIO control lines and pulse generators into a StepStickBoard
type PinBoard struct {
	gpio    GPIODriver
	drivers []DriverPins
	pulses  []PulseGenerator
}

// NewPinBoard configures the driver pins as outputs with the drivers disabled.
// pulses[i] drives the step line of drivers[i]; a nil generator marks an
// unpopulated channel.
func NewPinBoard(gpio GPIODriver, drivers []DriverPins, pulses []PulseGenerator) (*PinBoard, error) {
	for _, d := range drivers {
		if err := gpio.ConfigureOutput(d.Enable); err != nil {
			return nil, err
		}
		if err := gpio.ConfigureOutput(d.Dir); err != nil {
			return nil, err
		}
		_ = gpio.SetPin(d.Enable, true)
		_ = gpio.SetPin(d.Dir, false)
	}
	return &PinBoard{gpio: gpio, drivers: drivers, pulses: pulses}, nil
}

// Channels returns the number of driver slots
func (b *PinBoard) Channels() int {
	return len(b.drivers)
}

func (b *PinBoard) pulse(channel int) PulseGenerator {
	if channel < 0 || channel >= len(b.pulses) {
		return nil
	}
	return b.pulses[channel]
}

func (b *PinBoard) SetEnabled(channel int, enabled bool) {
	if channel < 0 || channel >= len(b.drivers) {
		return
	}
	_ = b.gpio.SetPin(b.drivers[channel].Enable, !enabled)
}

func (b *PinBoard) SetDirection(channel int, invert bool) {
	if channel < 0 || channel >= len(b.drivers) {
		return
	}
	_ = b.gpio.SetPin(b.drivers[channel].Dir, invert)
}

func (b *PinBoard) IsStopped(channel int) bool {
	if p := b.pulse(channel); p != nil {
		return p.Stopped()
	}
	return true
}

func (b *PinBoard) IsReadyForSteps(channel int) bool {
	if p := b.pulse(channel); p != nil {
		return p.Ready()
	}
	return false
}

// AddSteps queues pulses; zero steps is a no-op that reports false
func (b *PinBoard) AddSteps(channel int, steps uint32) bool {
	p := b.pulse(channel)
	if p == nil || steps == 0 {
		return false
	}
	return p.TryPush(steps)
}

func (b *PinBoard) ClearSteps(channel int) {
	if p := b.pulse(channel); p != nil {
		p.Clear()
	}
}
