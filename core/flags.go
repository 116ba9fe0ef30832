package core

import "sync/atomic"

// MaxChannels is the number of channels a flag bitmask can address
const MaxChannels = 32

// ChannelFlags holds the per-channel event bits shared between the endstop
// watchers, the command handler and the controller loop. Every access is a
// single atomic operation, so no lock is needed.
type ChannelFlags struct {
	endstop atomic.Uint32 // Set by watchers, read-and-cleared once per tick
	reverse atomic.Uint32 // Set by setup commands, persists until changed
}

// NewChannelFlags creates a cleared flag set
func NewChannelFlags() *ChannelFlags {
	return &ChannelFlags{}
}

// TriggerEndstop marks the channel's endstop as triggered
func (f *ChannelFlags) TriggerEndstop(channel int) {
	f.endstop.Or(1 << uint(channel))
}

// TakeEndstops returns the triggered endstop bits and clears them
func (f *ChannelFlags) TakeEndstops() uint32 {
	return f.endstop.Swap(0)
}

// SetReversed sets or clears the channel's direction polarity bit
func (f *ChannelFlags) SetReversed(channel int, reversed bool) {
	mask := uint32(1) << uint(channel)
	if reversed {
		f.reverse.Or(mask)
	} else {
		f.reverse.And(^mask)
	}
}

// Reversed reports the channel's direction polarity
func (f *ChannelFlags) Reversed(channel int) bool {
	return f.reverse.Load()&(1<<uint(channel)) != 0
}

// bitSet tests a channel bit in a mask returned by TakeEndstops
func bitSet(mask uint32, channel int) bool {
	return mask&(1<<uint(channel)) != 0
}
