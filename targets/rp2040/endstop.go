//go:build rp2040

package main

import (
	"context"
	"machine"
	"sync/atomic"
	"time"
)

// endstopPoll bounds how long a level change can go unseen
const endstopPoll = time.Millisecond

// pinLevel is a core.LevelInput on a GPIO. The edge interrupt latches short
// closures that polling alone could miss.
type pinLevel struct {
	pin  machine.Pin
	rose atomic.Bool
}

func newPinLevel(pin machine.Pin) *pinLevel {
	l := &pinLevel{pin: pin}
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPulldown})
	pin.SetInterrupt(machine.PinRising, func(machine.Pin) {
		l.rose.Store(true)
	})
	return l
}

func (l *pinLevel) WaitForHigh(ctx context.Context) error {
	for {
		if l.rose.Swap(false) || l.pin.Get() {
			return nil
		}
		if err := sleepCtx(ctx, endstopPoll); err != nil {
			return err
		}
	}
}

func (l *pinLevel) WaitForLow(ctx context.Context) error {
	for {
		if !l.pin.Get() {
			l.rose.Store(false)
			return nil
		}
		if err := sleepCtx(ctx, endstopPoll); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	time.Sleep(d)
	return nil
}
