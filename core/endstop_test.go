package core

import (
	"context"
	"testing"
	"time"
)

// chanInput is a LevelInput driven by sending levels on a channel
type chanInput struct {
	levels chan bool
	level  bool
}

func newChanInput() *chanInput {
	return &chanInput{levels: make(chan bool)}
}

func (c *chanInput) wait(ctx context.Context, want bool) error {
	for c.level != want {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c.level = <-c.levels:
		}
	}
	return nil
}

func (c *chanInput) WaitForHigh(ctx context.Context) error { return c.wait(ctx, true) }
func (c *chanInput) WaitForLow(ctx context.Context) error  { return c.wait(ctx, false) }

func waitForMask(t *testing.T, flags *ChannelFlags) uint32 {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if mask := flags.TakeEndstops(); mask != 0 {
			return mask
		}
		time.Sleep(time.Millisecond)
	}
	return 0
}

func TestEndstopWatcherEdge(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flags := NewChannelFlags()
	in := newChanInput()
	wg := StartEndstopWatchers(ctx, flags, []LevelInput{nil, in}, time.Millisecond)

	in.levels <- true
	if mask := waitForMask(t, flags); mask != 1<<1 {
		t.Fatalf("Expected channel 1 triggered, got %b", mask)
	}

	// Chatter while held must not re-trigger
	in.levels <- true
	in.levels <- true
	time.Sleep(10 * time.Millisecond)
	if mask := flags.TakeEndstops(); mask != 0 {
		t.Errorf("Held switch re-triggered: %b", mask)
	}

	// Release and press again
	in.levels <- false
	in.levels <- true
	if mask := waitForMask(t, flags); mask != 1<<1 {
		t.Errorf("Expected a second trigger after release, got %b", mask)
	}

	cancel()
	wg.Wait()
}

func TestEndstopWatcherStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &EndstopWatcher{Channel: 0, Input: newChanInput(), Flags: NewChannelFlags()}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watcher did not stop")
	}
}

func TestPulseDuration(t *testing.T) {
	if d := pulseDuration(HoldQuantity, 1000); d != 500*time.Millisecond {
		t.Errorf("Expected 500ms hold, got %v", d)
	}
	if d := pulseDuration(100, 0); d != 0 {
		t.Errorf("Zero frequency should give zero duration, got %v", d)
	}
}
