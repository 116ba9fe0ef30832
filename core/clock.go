package core

import (
	"context"
	"time"
)

// Clock is the controller's time source. Board code uses the system clock;
// tests drive a fake one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock (the RP2040 runtime backs it with the
// microsecond timer)
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sleep waits for d or until ctx is done, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// pulseDuration converts a pulse count at freq Hz to wall-clock time
func pulseDuration(quantity uint32, freq uint32) time.Duration {
	if freq == 0 {
		return 0
	}
	return time.Duration(uint64(quantity) * uint64(time.Second) / uint64(freq))
}
