// Package firmware runs the control loop: it services the host link, applies
// host commands to the channel dispatcher and ticks every channel.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"tinygo.org/x/drivers"

	"stepshade/core"
	"stepshade/protocol"
)

// ErrNoStallGuard is returned for stall commands on a board without load sensing
var ErrNoStallGuard = errors.New("stall sensing not available")

// Options wires a Controller to its board
type Options struct {
	Config   core.Config
	Board    core.StepStickBoard
	Flags    *core.ChannelFlags // Shared with the endstop watchers
	Port     drivers.UART       // Host link byte stream
	Resetter core.Resetter      // Called on a zero-length frame
	Stall    core.StallGuard    // Optional
	Clock    core.Clock         // Defaults to the system clock
}

// Stats are running counters for diagnostics
type Stats struct {
	Commands atomic.Uint32 // Commands applied
	Errors   atomic.Uint32 // Link and command errors
	Panics   atomic.Uint32 // Recovered control loop panics
}

// Controller is the firmware main loop
type Controller struct {
	cfg        core.Config
	dispatcher *core.Dispatcher
	link       *protocol.Link
	stall      core.StallGuard
	clock      core.Clock
	stats      Stats
}

// New creates a controller. Stall sensing is only enabled when both the
// configuration asks for it and a StallGuard is supplied.
func New(opts Options) *Controller {
	cfg := opts.Config.WithDefaults()
	if opts.Stall == nil {
		cfg.StallSensing = false
	}
	flags := opts.Flags
	if flags == nil {
		flags = core.NewChannelFlags()
	}
	clock := opts.Clock
	if clock == nil {
		clock = core.SystemClock{}
	}

	c := &Controller{
		cfg:   cfg,
		clock: clock,
	}
	if cfg.StallSensing {
		c.stall = opts.Stall
	}
	c.link = protocol.NewLink(opts.Port, opts.Resetter, protocol.DecodeOptions{
		Channels:     cfg.Channels,
		StallSensing: cfg.StallSensing,
	})
	c.dispatcher = core.NewDispatcher(cfg, opts.Board, flags, c)
	return c
}

// Config returns the effective configuration
func (c *Controller) Config() core.Config {
	return c.cfg
}

// Dispatcher exposes the channel dispatcher for diagnostics and tests
func (c *Controller) Dispatcher() *core.Dispatcher {
	return c.dispatcher
}

// Stats returns the running counters
func (c *Controller) Stats() *Stats {
	return &c.stats
}

// Position implements core.ReportSink
func (c *Controller) Position(channel int, current, desired core.WindowDressingState) {
	c.send(protocol.Position{
		Channel: uint8(channel),
		Current: current,
		Desired: desired,
	})
}

func (c *Controller) send(r protocol.Report) {
	if err := c.link.WriteReport(r); err != nil {
		c.stats.Errors.Add(1)
		core.LogError("Report " + r.Tag() + " failed: " + err.Error())
	}
}

// Apply executes one host command
func (c *Controller) Apply(cmd protocol.Command) error {
	ch := int(cmd.Target())
	seq := c.dispatcher.Sequencer(ch)
	if seq == nil {
		return fmt.Errorf("%w: %d", core.ErrInvalidChannel, ch)
	}
	c.stats.Commands.Add(1)

	switch cmd := cmd.(type) {
	case protocol.Home:
		seq.HomeFullyOpened()
		core.LogInfo("Homing channel " + fmt.Sprint(ch))

	case protocol.Setup:
		if err := c.setup(cmd); err != nil {
			return err
		}

	case protocol.Set:
		if cmd.Position != nil {
			seq.SetPosition(*cmd.Position)
		}
		if cmd.Tilt != nil {
			seq.SetTilt(*cmd.Tilt)
		}

	case protocol.Get:

	case protocol.GetStallGuardResult:
		if c.stall == nil {
			return ErrNoStallGuard
		}
		v, err := c.stall.StallResult(ch)
		if err != nil {
			return fmt.Errorf("stall result channel %d: %w", ch, err)
		}
		c.send(protocol.StallGuardResult{Channel: uint8(ch), SgResult: v})
		return nil

	default:
		return fmt.Errorf("%w: unhandled command %s", protocol.ErrDecode, cmd.Tag())
	}

	c.dispatcher.Report(ch)
	return nil
}

// setup replaces the channel's sequencer with one built from the command
func (c *Controller) setup(cmd protocol.Setup) error {
	ch := int(cmd.Channel)

	var seq *core.Sequencer
	if cmd.FullTiltSteps != nil {
		seq = core.NewVenetian(cmd.FullCycleSteps, *cmd.FullTiltSteps, c.cfg.QueueCapacity)
	} else {
		seq = core.NewRoller(cmd.FullCycleSteps, c.cfg.QueueCapacity)
	}
	seq.LoadState(cmd.Init)

	c.dispatcher.Flags().SetReversed(ch, cmd.Reverse != nil && *cmd.Reverse)

	if cmd.Sgthrs != nil && c.stall != nil {
		if err := c.stall.SetStallThreshold(ch, *cmd.Sgthrs); err != nil {
			// The channel still works without a threshold
			core.LogWarn("Stall threshold channel " + fmt.Sprint(ch) + ": " + err.Error())
		}
	}

	return c.dispatcher.Replace(ch, seq)
}

// Step runs one pass of the loop without the tick sleep: service the host
// link, then dispatch every channel. Only a host reset is returned; every
// other error is logged and counted.
func (c *Controller) Step(ctx context.Context) error {
	cmd, err := c.link.Poll(c.clock.Now())
	switch {
	case errors.Is(err, protocol.ErrHostReset):
		core.LogWarn("Host requested reset")
		return err
	case err != nil:
		c.stats.Errors.Add(1)
		core.LogWarn("Link: " + err.Error())
	case cmd != nil:
		if err := c.Apply(cmd); err != nil {
			c.stats.Errors.Add(1)
			core.LogWarn("Command " + cmd.Tag() + ": " + err.Error())
		}
	}

	if c.link.Idle() {
		if err := core.Sleep(ctx, c.cfg.IdlePoll); err != nil {
			return err
		}
	}

	c.dispatcher.Tick(c.clock.Now())
	return nil
}

// Run announces readiness and then loops until ctx is done or the host
// requests a reset. On hardware the reset handler does not return.
func (c *Controller) Run(ctx context.Context) error {
	core.LogInfo("stepshade " + protocol.Version + " ready, " + fmt.Sprint(c.cfg.Channels) + " channels")
	c.send(protocol.Ready{})

	for {
		if err := core.Sleep(ctx, c.cfg.TickPeriod); err != nil {
			return err
		}
		if err := c.safeStep(ctx); err != nil {
			return err
		}
	}
}

// safeStep recovers from panics so one bad pass does not stop the firmware
func (c *Controller) safeStep(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.stats.Panics.Add(1)
			core.LogError("Control loop panic: " + fmt.Sprint(r))
			core.DumpEventRing()
			err = nil
		}
	}()
	return c.Step(ctx)
}
