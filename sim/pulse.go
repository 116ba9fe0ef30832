// Package sim is a software board: pulse generators, GPIO and actuators that
// move in response to them, so the firmware can run without hardware.
package sim

import (
	"context"
	"sync"
	"time"
)

// SoftPulseGenerator emits counted pulse trains at a fixed frequency. Like a
// PIO state machine it runs one count while holding one more in its FIFO.
type SoftPulseGenerator struct {
	mu      sync.Mutex
	freq    uint32
	slot    uint32 // Queued count, 0 when the FIFO is empty
	active  uint32 // Pulses left in the running count
	emitted uint64
	onPulse func()
}

// NewSoftPulseGenerator creates a generator calling onPulse for every pulse
func NewSoftPulseGenerator(freq uint32, onPulse func()) *SoftPulseGenerator {
	if onPulse == nil {
		onPulse = func() {}
	}
	return &SoftPulseGenerator{freq: freq, onPulse: onPulse}
}

func (g *SoftPulseGenerator) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot == 0
}

func (g *SoftPulseGenerator) Stopped() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.slot == 0 && g.active == 0
}

func (g *SoftPulseGenerator) TryPush(count uint32) bool {
	if count == 0 {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.slot != 0 {
		return false
	}
	g.slot = count
	return true
}

func (g *SoftPulseGenerator) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.slot = 0
	g.active = 0
}

// Emitted returns the total number of pulses produced
func (g *SoftPulseGenerator) Emitted() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emitted
}

// Advance emits up to n pulses synchronously and returns how many were emitted
func (g *SoftPulseGenerator) Advance(n uint32) uint32 {
	var done uint32
	for done < n {
		g.mu.Lock()
		if g.active == 0 {
			if g.slot == 0 {
				g.mu.Unlock()
				break
			}
			g.active, g.slot = g.slot, 0
		}
		g.active--
		g.emitted++
		g.mu.Unlock()

		g.onPulse()
		done++
	}
	return done
}

// period returns the emission interval and the pulses due per interval. The
// interval never drops below a millisecond; faster rates emit in batches.
func (g *SoftPulseGenerator) period() (time.Duration, uint32) {
	if g.freq == 0 {
		return time.Millisecond, 0
	}
	p := time.Second / time.Duration(g.freq)
	if p >= time.Millisecond {
		return p, 1
	}
	return time.Millisecond, g.freq / 1000
}

// Run emits pulses in real time until ctx is done
func (g *SoftPulseGenerator) Run(ctx context.Context) {
	p, batch := g.period()
	ticker := time.NewTicker(p)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Advance(batch)
		}
	}
}
