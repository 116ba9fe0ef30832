//go:build rp2040

package main

import (
	"context"
	"errors"
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"stepshade/core"
	"stepshade/drivers/tmc2209"
	"stepshade/firmware"
	"stepshade/protocol"
)

// Global state
var (
	gpioDriver *RPGPIODriver
	board      *core.PinBoard
	stall      *tmc2209.Driver
	flags      *core.ChannelFlags
	cfg        core.Config
)

func main() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	InitDebugUSB()

	cfg = core.DefaultConfig()
	cfg.Channels = len(driverPins)
	cfg.StallSensing = true

	if err := initBoard(); err != nil {
		haltWithError(err)
	}

	host := machine.UART0
	if err := host.Configure(machine.UARTConfig{BaudRate: hostBaud, TX: hostTX, RX: hostRX}); err != nil {
		haltWithError(err)
	}

	flags = core.NewChannelFlags()
	levels := make([]core.LevelInput, len(endstopPins))
	for i, pin := range endstopPins {
		levels[i] = newPinLevel(pin)
	}
	ctx := context.Background()
	core.StartEndstopWatchers(ctx, flags, levels, cfg.EndstopDeadTime)

	ctrl := firmware.New(firmware.Options{
		Config:   cfg,
		Board:    board,
		Flags:    flags,
		Port:     host,
		Resetter: core.ResetFunc(resetDevice),
		Stall:    stall,
	})

	core.LogInfo("stepshade " + protocol.Version + " ready")

	for {
		err := ctrl.Run(ctx)
		if errors.Is(err, protocol.ErrHostReset) {
			resetDevice()
		}
		core.LogError("control loop exited: " + err.Error())
		core.DumpEventRing()
		time.Sleep(time.Second)
	}
}

// initBoard claims PIO0 for the step lines and configures the drivers
func initBoard() error {
	gpioDriver = NewRPGPIODriver()

	gens, err := NewPIOPulseGenerators(rp2pio.PIO0, stepPins, cfg.PulseFrequency)
	if err != nil {
		return err
	}
	pulses := make([]core.PulseGenerator, len(gens))
	for i, g := range gens {
		pulses[i] = g
	}

	board, err = core.NewPinBoard(gpioDriver, driverPins, pulses)
	if err != nil {
		return err
	}

	// All four drivers share one line, addressed 0-3 by the MS1/MS2 jumpers
	uart := machine.UART1
	if err := uart.Configure(machine.UARTConfig{BaudRate: driverBaud, TX: driverTX, RX: driverRX}); err != nil {
		return err
	}
	stall = tmc2209.NewSharedBus(tmc2209.NewBus(uart, true), len(driverPins))
	if err := stall.Configure(); err != nil {
		// Drivers still step in standalone mode without UART configuration
		core.LogWarn("tmc2209 configure: " + err.Error())
	}
	return nil
}

// resetDevice reboots through the watchdog
func resetDevice() {
	core.LogInfo("resetting")
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
	}
}

func haltWithError(err error) {
	for {
		core.LogError("init failed: " + err.Error())
		time.Sleep(time.Second)
	}
}
