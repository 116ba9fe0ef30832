// Package tmc2209 configures TMC2209 stepper drivers over their single-wire
// UART interface and reads back StallGuard load measurements.
package tmc2209

import (
	"errors"

	"stepshade/core"
)

// Driver programs the drivers behind one or more buses. Channel i talks to
// node address addrs[i] on buses[i].
type Driver struct {
	buses []*Bus
	addrs []uint8
}

var _ core.StallGuard = (*Driver)(nil)

// NewSharedBus addresses channel i as node i on a single shared line
func NewSharedBus(bus *Bus, channels int) *Driver {
	d := &Driver{}
	for ch := 0; ch < channels && ch <= MAX_NODE_ADDR; ch++ {
		d.buses = append(d.buses, bus)
		d.addrs = append(d.addrs, uint8(ch))
	}
	return d
}

// NewPerChannel gives every channel its own line, each driver at address 0
func NewPerChannel(buses []*Bus) *Driver {
	return &Driver{buses: buses, addrs: make([]uint8, len(buses))}
}

// Channels returns the number of addressable drivers
func (d *Driver) Channels() int {
	return len(d.buses)
}

func (d *Driver) node(channel int) (*Bus, uint8, error) {
	if channel < 0 || channel >= len(d.buses) || d.buses[channel] == nil {
		return nil, 0, core.ErrInvalidChannel
	}
	return d.buses[channel], d.addrs[channel], nil
}

type regWrite struct {
	name  string
	reg   uint8
	value uint32
}

// configSequence is written to every driver at boot. GCONF must precede
// CHOPCONF so MRES takes effect.
func configSequence() []regWrite {
	return []regWrite{
		{"GCONF", GCONF, GCONF_DEFAULT | GCONF_MSTEP_REG_SELECT},
		// Full steps: microstepping grinds at the fixed pulse rate.
		// vsense off suits the 0R11 sense resistors.
		{"CHOPCONF", CHOPCONF, ChopConf(MRES_FULLSTEP, false)},
		{"TCOOLTHRS", TCOOLTHRS, TSTEP_MAX},
		{"TPWMTHRS", TPWMTHRS, 0},
		{"SLAVECONF", SLAVECONF, SLAVECONF_SENDDELAY_MIN},
		{"COOLCONF", COOLCONF, 0},
		{"SGTHRS", SGTHRS, SGTHRS_DEFAULT},
	}
}

// Configure writes the boot configuration to every driver. A failed write
// is logged and the remaining registers are still attempted; the joined
// errors are returned.
func (d *Driver) Configure() error {
	var errs []error
	for ch := range d.buses {
		bus, addr, err := d.node(ch)
		if err != nil {
			continue
		}
		for _, w := range configSequence() {
			if err := bus.WriteRegister(addr, w.reg, w.value); err != nil {
				core.LogWarn("Failed to program " + w.name + " on channel " + core.Itoa(ch) + ": " + err.Error())
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// SetStallThreshold programs SGTHRS
func (d *Driver) SetStallThreshold(channel int, threshold uint8) error {
	bus, addr, err := d.node(channel)
	if err != nil {
		return err
	}
	if err := bus.WriteRegister(addr, SGTHRS, uint32(threshold)); err != nil {
		core.LogWarn("Failed to program SGTHRS on channel " + core.Itoa(channel) + ": " + err.Error())
		return err
	}
	return nil
}

// StallResult reads SG_RESULT. The 10-bit value is halved so it compares
// directly with the 8-bit SGTHRS scale (stall when SG_RESULT/2 <= SGTHRS).
func (d *Driver) StallResult(channel int) (uint8, error) {
	bus, addr, err := d.node(channel)
	if err != nil {
		return 0, err
	}
	v, err := bus.ReadRegister(addr, SG_RESULT)
	if err != nil {
		core.LogWarn("Failed to read SG_RESULT on channel " + core.Itoa(channel) + ": " + err.Error())
		return 0, err
	}
	half := (v & 0x3FF) / 2
	if half > 0xFF {
		half = 0xFF
	}
	return uint8(half), nil
}
