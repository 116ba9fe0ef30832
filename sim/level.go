package sim

import (
	"context"
	"sync"
)

// Level is a simulated digital input that goroutines can wait on
type Level struct {
	mu      sync.Mutex
	high    bool
	changed chan struct{}
}

// NewLevel creates an input at the given level
func NewLevel(high bool) *Level {
	return &Level{high: high, changed: make(chan struct{})}
}

// Set drives the input, waking waiters on a change
func (l *Level) Set(high bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.high == high {
		return
	}
	l.high = high
	close(l.changed)
	l.changed = make(chan struct{})
}

// High reports the current level
func (l *Level) High() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.high
}

func (l *Level) WaitForHigh(ctx context.Context) error { return l.wait(ctx, true) }
func (l *Level) WaitForLow(ctx context.Context) error  { return l.wait(ctx, false) }

func (l *Level) wait(ctx context.Context, high bool) error {
	for {
		l.mu.Lock()
		if l.high == high {
			l.mu.Unlock()
			return nil
		}
		ch := l.changed
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
