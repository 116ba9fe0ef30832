//go:build rp2040

package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// Counted square wave: each TX FIFO word is a pulse count. The program runs
// 10 PIO cycles per output period, 5 high and 5 low, so the clock divider
// alone sets the step frequency.
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		// reset:
		asm.Pull(false, true).Encode(),        // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(), // 1: out x, 32
		// loop:
		asm.Jmp(0, rp2pio.JmpXZero).Encode(),             // 2: jmp !x reset
		asm.Set(rp2pio.SetDestPins, 1).Delay(4).Encode(), // 3: set pins, 1 [4]
		asm.Set(rp2pio.SetDestPins, 0).Delay(2).Encode(), // 4: set pins, 0 [2]
		asm.Jmp(2, rp2pio.JmpXNZeroDec).Encode(),         // 5: jmp x-- loop
	}
}

const (
	pulseProgramOrigin = 0 // Load at offset 0 for correct jump addresses
	cyclesPerPulse     = 10
)

// PIOPulseGenerator is a core.PulseGenerator on one PIO state machine
type PIOPulseGenerator struct {
	pio     *rp2pio.PIO
	sm      rp2pio.StateMachine
	pin     machine.Pin
	offset  uint8
	freq    uint32
	started bool

	// The FIFO does not say when the last pulse left the pin, so completion
	// is tracked from the counts pushed
	busyUntil time.Time
}

// NewPIOPulseGenerators loads the program once into pioHW and starts one
// state machine per step pin
func NewPIOPulseGenerators(pioHW *rp2pio.PIO, pins []machine.Pin, freq uint32) ([]*PIOPulseGenerator, error) {
	program := buildPulseProgram()
	offset, err := pioHW.AddProgram(program, pulseProgramOrigin)
	if err != nil {
		return nil, err
	}

	gens := make([]*PIOPulseGenerator, 0, len(pins))
	for i, pin := range pins {
		g := &PIOPulseGenerator{
			pio:    pioHW,
			sm:     pioHW.StateMachine(uint8(i)),
			pin:    pin,
			offset: offset,
			freq:   freq,
		}
		g.init(len(program))
		gens = append(gens, g)
	}
	return gens, nil
}

func (g *PIOPulseGenerator) init(programLen int) {
	g.sm.TryClaim()

	g.pin.Configure(machine.PinConfig{Mode: g.pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(g.pin, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(g.offset+uint8(programLen)-1, g.offset)

	div := machine.CPUFrequency() / (g.freq * cyclesPerPulse)
	cfg.SetClkDivIntFrac(uint16(div), 0)

	g.sm.Init(g.offset, cfg)
	g.sm.SetPindirsConsecutive(g.pin, 1, true)
	g.sm.SetPinsConsecutive(g.pin, 1, false)
	g.sm.SetEnabled(true)
	g.started = true
}

func (g *PIOPulseGenerator) Ready() bool {
	return g.sm.IsTxFIFOEmpty()
}

func (g *PIOPulseGenerator) Stopped() bool {
	return g.sm.IsTxFIFOEmpty() && !time.Now().Before(g.busyUntil)
}

func (g *PIOPulseGenerator) TryPush(count uint32) bool {
	if count == 0 || g.sm.IsTxFIFOFull() {
		return false
	}
	if !g.started {
		g.sm.SetEnabled(true)
		g.started = true
	}
	g.sm.TxPut(count)

	now := time.Now()
	start := g.busyUntil
	if start.Before(now) {
		start = now
	}
	// One extra period covers the pull and reload cycles
	g.busyUntil = start.Add(time.Duration(uint64(count+1) * uint64(time.Second) / uint64(g.freq)))
	return true
}

// Clear stops the wave mid-count and parks the step line low
func (g *PIOPulseGenerator) Clear() {
	g.sm.SetEnabled(false)
	g.sm.ClearFIFOs()
	g.sm.Restart()
	g.sm.Exec(rp2pio.AssemblerV0{}.Jmp(g.offset, rp2pio.JmpAlways).Encode())
	g.sm.SetPinsConsecutive(g.pin, 1, false)
	g.busyUntil = time.Time{}
	g.started = false
}
