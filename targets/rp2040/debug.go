//go:build rp2040

package main

import (
	"machine"

	"stepshade/core"
)

// Log lines go to the USB CDC port so UART0 stays a clean host link

var debugEnabled = false

// InitDebugUSB routes core log output to USB serial
func InitDebugUSB() {
	machine.Serial.Configure(machine.UARTConfig{})
	debugEnabled = true
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(true)
	core.InitAsyncDebug()
}

// DebugPrintln writes a line to USB serial when it is up
func DebugPrintln(s string) {
	if !debugEnabled {
		return
	}
	machine.Serial.Write([]byte(s))
	machine.Serial.Write([]byte("\r\n"))
}
