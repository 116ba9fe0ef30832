// Channel dispatcher
// Once per tick, moves grouped instructions from each channel's sequencer into
// its pulse generator. Direction pins only change while the generator is idle.
package core

import (
	"errors"
	"time"
)

// ErrInvalidChannel is returned for channel numbers outside the board
var ErrInvalidChannel = errors.New("invalid channel")

// ReportSink receives the position reports the dispatcher emits
type ReportSink interface {
	Position(channel int, current, desired WindowDressingState)
}

// channelState is the dispatch state carried across ticks for one channel
type channelState struct {
	buffered     Instruction
	hasBuffered  bool
	resumeAfter  time.Time // End of the running Hold
	lastReversal time.Time // Last direction change, guards endstop triggers
	latched      Direction // Direction the pins are currently set for
	enabled      bool
}

// Dispatcher owns every channel's sequencer and all pulse generator access.
// It is not safe for concurrent use; the control loop is its only caller.
// Endstop and polarity bits reach it through ChannelFlags.
type Dispatcher struct {
	cfg        Config
	board      StepStickBoard
	flags      *ChannelFlags
	reports    ReportSink
	sequencers []*Sequencer
	state      []channelState
	epoch      time.Time
}

// NewDispatcher creates a dispatcher with a default roller sequencer per channel
func NewDispatcher(cfg Config, board StepStickBoard, flags *ChannelFlags, reports ReportSink) *Dispatcher {
	cfg = cfg.WithDefaults()
	d := &Dispatcher{
		cfg:        cfg,
		board:      board,
		flags:      flags,
		reports:    reports,
		sequencers: make([]*Sequencer, cfg.Channels),
		state:      make([]channelState, cfg.Channels),
	}
	for ch := range d.sequencers {
		d.sequencers[ch] = NewRoller(DefaultFullCycleQuantity, cfg.QueueCapacity)
	}
	return d
}

// Config returns the effective configuration
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Channels returns the number of channels
func (d *Dispatcher) Channels() int {
	return len(d.sequencers)
}

// Flags returns the shared flag set
func (d *Dispatcher) Flags() *ChannelFlags {
	return d.flags
}

// Sequencer returns the channel's sequencer, or nil for an invalid channel
func (d *Dispatcher) Sequencer(channel int) *Sequencer {
	if channel < 0 || channel >= len(d.sequencers) {
		return nil
	}
	return d.sequencers[channel]
}

// Replace installs a new sequencer for the channel. The channel's buffered
// instruction belonged to the old sequencer and is dropped.
func (d *Dispatcher) Replace(channel int, seq *Sequencer) error {
	if channel < 0 || channel >= len(d.sequencers) || seq == nil {
		return ErrInvalidChannel
	}
	d.sequencers[channel] = seq
	d.state[channel].hasBuffered = false
	return nil
}

// Report emits the channel's current position through the report sink
func (d *Dispatcher) Report(channel int) {
	seq := d.Sequencer(channel)
	if seq == nil || d.reports == nil {
		return
	}
	d.reports.Position(channel, seq.CurrentState(), seq.DesiredState())
}

// Tick runs one full pass over every channel
func (d *Dispatcher) Tick(now time.Time) {
	if d.epoch.IsZero() {
		d.epoch = now
	}
	stops := d.flags.TakeEndstops()
	for ch := range d.sequencers {
		d.tickChannel(ch, now, bitSet(stops, ch))
	}
}

func (d *Dispatcher) millis(now time.Time) uint32 {
	return uint32(now.Sub(d.epoch) / time.Millisecond)
}

func (d *Dispatcher) tickChannel(ch int, now time.Time, endstop bool) {
	st := &d.state[ch]
	seq := d.sequencers[ch]

	if endstop {
		if now.Before(st.lastReversal.Add(d.cfg.EndstopGuard)) {
			// Switch bounce right after reversing off the limit
			RecordEvent(EvtEndstopSuppressed, uint8(ch), d.millis(now), 0, 0)
			LogWarn("Endstop " + Itoa(ch) + " ignored within reversal guard")
		} else {
			seq.TriggerEndstop()
			st.hasBuffered = false
			d.board.ClearSteps(ch)
			d.setEnabled(ch, false)
			RecordEvent(EvtEndstop, uint8(ch), d.millis(now), uint32(seq.CurrentState().Position), 0)
			LogInfo("Endstop " + Itoa(ch) + " triggered at " + stateString(seq.CurrentState()))
			d.Report(ch)
			return
		}
	}

	if !d.board.IsReadyForSteps(ch) {
		return
	}

	if !st.hasBuffered {
		if next, ok := seq.NextInstructionGrouped(d.cfg.TickPulseBudget); ok {
			st.buffered = next
			st.hasBuffered = true
		} else if d.board.IsStopped(ch) && st.enabled {
			d.setEnabled(ch, false)
			RecordEvent(EvtIdle, uint8(ch), d.millis(now), 0, 0)
		}
		return
	}

	in := st.buffered

	if in.Quality == st.latched {
		if in.Quality == Hold {
			// A Hold never produces pulses, it only pushes the deadline out
			start := st.resumeAfter
			if start.Before(now) {
				start = now
			}
			st.resumeAfter = start.Add(pulseDuration(in.Quantity, d.cfg.PulseFrequency))
			RecordEvent(EvtHold, uint8(ch), d.millis(now), in.Quantity, 0)
			st.hasBuffered = false
			return
		}
		d.setEnabled(ch, true)
		d.feed(ch, now, in)
		return
	}

	if !d.board.IsStopped(ch) || now.Before(st.resumeAfter) {
		return // Wait for the generator to drain or the Hold to expire
	}

	// Direction change, generator idle
	d.setEnabled(ch, true)
	st.latched = in.Quality
	st.lastReversal = now
	RecordEvent(EvtReversal, uint8(ch), d.millis(now), uint32(in.Quality), in.Quantity)
	DebugPrintln("Channel " + Itoa(ch) + " latched " + in.Quality.String())

	switch in.Quality {
	case Hold:
		st.resumeAfter = now.Add(pulseDuration(in.Quantity, d.cfg.PulseFrequency))
		RecordEvent(EvtHold, uint8(ch), d.millis(now), in.Quantity, 0)
		st.hasBuffered = false
		d.Report(ch)
		return
	case Retract:
		d.board.SetDirection(ch, d.flags.Reversed(ch))
	case Extend:
		d.board.SetDirection(ch, !d.flags.Reversed(ch))
	}
	d.Report(ch)
	d.feed(ch, now, in)
}

// feed hands the buffered instruction to the pulse generator. A refused
// push keeps it buffered for the next tick.
func (d *Dispatcher) feed(ch int, now time.Time, in Instruction) {
	st := &d.state[ch]
	if in.Quantity == 0 {
		st.hasBuffered = false
		return
	}
	if !d.board.AddSteps(ch, in.Quantity) {
		RecordEvent(EvtFeedRejected, uint8(ch), d.millis(now), in.Quantity, 0)
		return
	}
	st.hasBuffered = false
	RecordEvent(EvtFeed, uint8(ch), d.millis(now), uint32(in.Quality), in.Quantity)
}

func (d *Dispatcher) setEnabled(ch int, enabled bool) {
	d.board.SetEnabled(ch, enabled)
	d.state[ch].enabled = enabled
}

// Latched returns the direction the channel's pins are set for
func (d *Dispatcher) Latched(channel int) Direction {
	if channel < 0 || channel >= len(d.state) {
		return Hold
	}
	return d.state[channel].latched
}

// Buffered reports whether the channel holds an instruction for the next tick
func (d *Dispatcher) Buffered(channel int) (Instruction, bool) {
	if channel < 0 || channel >= len(d.state) {
		return Instruction{}, false
	}
	st := d.state[channel]
	return st.buffered, st.hasBuffered
}
