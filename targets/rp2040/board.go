//go:build rp2040

package main

import (
	"machine"

	"stepshade/core"
)

// BTT SKR Pico v1.0 pin assignment
var (
	// Enable (active low) and direction per driver slot X, Y, Z, E
	driverPins = []core.DriverPins{
		{Enable: 12, Dir: 10},
		{Enable: 2, Dir: 28},
		{Enable: 7, Dir: 5},
		{Enable: 15, Dir: 13},
	}

	// Step lines, driven by PIO0 state machines 0-3
	stepPins = []machine.Pin{machine.GPIO11, machine.GPIO19, machine.GPIO6, machine.GPIO14}

	// Limit switch inputs, pulled down, high when closed
	endstopPins = []machine.Pin{machine.GPIO4, machine.GPIO25, machine.GPIO3, machine.GPIO16}
)

// Host link on UART0, TMC2209 single-wire bus on UART1
const (
	hostBaud   = 115200
	driverBaud = 115200
)

var (
	hostTX   = machine.GPIO0
	hostRX   = machine.GPIO1
	driverTX = machine.GPIO8
	driverRX = machine.GPIO9
)
