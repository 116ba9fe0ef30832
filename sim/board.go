package sim

import (
	"context"
	"fmt"
	"sync"

	"stepshade/core"
)

// ChannelConfig describes one simulated window dressing
type ChannelConfig struct {
	Travel   uint32 `yaml:"travel"`   // Steps between the limits
	Start    uint32 `yaml:"start"`    // Initial step position
	Reversed bool   `yaml:"reversed"` // Motor wired backwards
}

// Board is a complete simulated controller board
type Board struct {
	*core.PinBoard
	GPIO       *GPIO
	Generators []*SoftPulseGenerator
	Actuators  []*Actuator
	Stall      *StallGuard
}

func errInvalidChannel(channel int) error {
	return fmt.Errorf("%w: %d", core.ErrInvalidChannel, channel)
}

// Pins returns the enable and direction pins of a channel
func Pins(channel int) core.DriverPins {
	return core.DriverPins{
		Enable: core.GPIOPin(2 * channel),
		Dir:    core.GPIOPin(2*channel + 1),
	}
}

// NewBoard builds a board with one generator and actuator per channel
func NewBoard(freq uint32, channels []ChannelConfig) (*Board, error) {
	b := &Board{GPIO: NewGPIO()}

	pins := make([]core.DriverPins, len(channels))
	pulses := make([]core.PulseGenerator, len(channels))
	for i, ch := range channels {
		pins[i] = Pins(i)
		a := NewActuator(b.GPIO, pins[i], ch.Travel, ch.Start, ch.Reversed)
		g := NewSoftPulseGenerator(freq, a.Pulse)
		b.Actuators = append(b.Actuators, a)
		b.Generators = append(b.Generators, g)
		pulses[i] = g
	}

	pb, err := core.NewPinBoard(b.GPIO, pins, pulses)
	if err != nil {
		return nil, err
	}
	b.PinBoard = pb
	b.Stall = NewStallGuard(b.Actuators)
	return b, nil
}

// Endstops returns the limit inputs for the endstop watchers
func (b *Board) Endstops() []core.LevelInput {
	inputs := make([]core.LevelInput, len(b.Actuators))
	for i, a := range b.Actuators {
		inputs[i] = a.Endstop()
	}
	return inputs
}

// Start runs every pulse generator until ctx is done
func (b *Board) Start(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	for _, g := range b.Generators {
		wg.Add(1)
		go func(g *SoftPulseGenerator) {
			defer wg.Done()
			g.Run(ctx)
		}(g)
	}
	return &wg
}
