package core

import (
	"sync"
	"testing"
)

func TestChannelFlagsEndstop(t *testing.T) {
	f := NewChannelFlags()

	f.TriggerEndstop(0)
	f.TriggerEndstop(3)
	f.TriggerEndstop(3)

	mask := f.TakeEndstops()
	if !bitSet(mask, 0) || !bitSet(mask, 3) || bitSet(mask, 1) {
		t.Errorf("Unexpected endstop mask %b", mask)
	}
	if f.TakeEndstops() != 0 {
		t.Error("TakeEndstops should clear the mask")
	}
}

func TestChannelFlagsReverse(t *testing.T) {
	f := NewChannelFlags()

	f.SetReversed(2, true)
	f.SetReversed(5, true)
	f.SetReversed(2, false)

	if f.Reversed(2) {
		t.Error("Channel 2 should not be reversed")
	}
	if !f.Reversed(5) {
		t.Error("Channel 5 should be reversed")
	}
	if !f.Reversed(5) {
		t.Error("Reading the polarity must not clear it")
	}
}

func TestChannelFlagsConcurrentTriggers(t *testing.T) {
	f := NewChannelFlags()

	var wg sync.WaitGroup
	for ch := 0; ch < MaxChannels; ch++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			f.TriggerEndstop(ch)
		}(ch)
	}
	wg.Wait()

	if mask := f.TakeEndstops(); mask != 0xFFFFFFFF {
		t.Errorf("Expected every bit set, got %x", mask)
	}
}
