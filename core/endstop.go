// Endstop handling for limit switches
// Each channel gets a watcher goroutine that turns the switch level into a
// one-shot bit in the shared endstop mask.
package core

import (
	"context"
	"sync"
	"time"
)

// LevelInput is a digital input that can block until it reaches a level.
// Board code implements it with pin interrupts, the simulator with channels.
type LevelInput interface {
	// WaitForHigh returns once the input reads high
	WaitForHigh(ctx context.Context) error

	// WaitForLow returns once the input reads low
	WaitForLow(ctx context.Context) error
}

// EndstopWatcher watches one channel's limit switch
type EndstopWatcher struct {
	Channel  int
	Input    LevelInput
	Flags    *ChannelFlags
	DeadTime time.Duration // Pause after a trigger before waiting for release
}

// Run loops until ctx is cancelled: wait for the switch to close, flag it,
// sit out the dead time, then wait for it to open again before re-arming.
// A switch that chatters while held never produces a second trigger.
func (w *EndstopWatcher) Run(ctx context.Context) error {
	for {
		if err := w.Input.WaitForHigh(ctx); err != nil {
			return err
		}

		w.Flags.TriggerEndstop(w.Channel)
		DebugPrintln("Endstop " + Itoa(w.Channel) + " asserted")

		if err := Sleep(ctx, w.DeadTime); err != nil {
			return err
		}

		if err := w.Input.WaitForLow(ctx); err != nil {
			return err
		}
	}
}

// StartEndstopWatchers spawns one watcher per non-nil input; inputs[i] is
// channel i. The returned WaitGroup completes once ctx is cancelled and every
// watcher has exited.
func StartEndstopWatchers(ctx context.Context, flags *ChannelFlags, inputs []LevelInput, deadTime time.Duration) *sync.WaitGroup {
	var wg sync.WaitGroup
	for ch, in := range inputs {
		if in == nil {
			continue
		}
		w := &EndstopWatcher{Channel: ch, Input: in, Flags: flags, DeadTime: deadTime}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil && ctx.Err() == nil {
				LogError("Endstop watcher " + Itoa(w.Channel) + " stopped: " + err.Error())
			}
		}()
	}
	return &wg
}
