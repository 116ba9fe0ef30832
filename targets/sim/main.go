// Command shade-sim runs the controller firmware against a simulated board.
// The host link is stdin/stdout or a serial device, so shade-host can drive
// it through a virtual serial pair.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/natefinch/lumberjack"

	"stepshade/core"
	"stepshade/firmware"
	"stepshade/host/serial"
	"stepshade/protocol"
	"stepshade/sim"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device for the host link (default stdin/stdout)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Link.Device = *device
		case "debug":
			cfg.Log.Debug = *debug
		}
	})

	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("simulator stopped: %v", err)
		os.Exit(1)
	}
}

// setupLogging routes firmware log lines to stderr and a rotating file.
// Stdout is reserved for the host link.
func setupLogging(lc LogConfig) {
	var out io.Writer = os.Stderr
	if lc.File != "" && lc.File != "-" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   lc.File,
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
		})
	}
	log.SetOutput(out)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	core.SetDebugWriter(func(s string) { log.Println(s) })
	core.SetDebugEnabled(lc.Debug)
	if lc.Debug {
		core.SetLogLevel(core.LevelDebug)
	}
	core.InitAsyncDebug()
}

// openLink returns the host byte stream
func openLink(lc LinkConfig) (io.Reader, io.Writer, func() error, error) {
	if lc.Device == "" {
		return os.Stdin, os.Stdout, func() error { return nil }, nil
	}
	cfg := serial.DefaultConfig(lc.Device)
	if lc.Baud > 0 {
		cfg.Baud = lc.Baud
	}
	cfg.ReadTimeout = 0
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return port, port, port.Close, nil
}

func run(ctx context.Context, cfg *Config) error {
	coreCfg := cfg.Core()

	board, err := sim.NewBoard(coreCfg.PulseFrequency, cfg.Channels)
	if err != nil {
		return err
	}

	r, w, closeLink, err := openLink(cfg.Link)
	if err != nil {
		return err
	}
	defer closeLink()

	port := protocol.NewStreamPort(r, w)
	linkErr := make(chan error, 1)
	go func() { linkErr <- port.Pump(ctx) }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	generators := board.Start(ctx)
	defer generators.Wait()

	flags := core.NewChannelFlags()
	watchers := core.StartEndstopWatchers(ctx, flags, board.Endstops(), coreCfg.EndstopDeadTime)
	defer watchers.Wait()

	log.Printf("simulating %d channels at %d Hz", len(cfg.Channels), coreCfg.PulseFrequency)

	// A host reset restarts the firmware; the simulated hardware keeps its
	// physical state, as a real board would
	for {
		ctrl := firmware.New(firmware.Options{
			Config:   coreCfg,
			Board:    board,
			Flags:    flags,
			Port:     port,
			Resetter: core.ResetFunc(func() { log.Printf("host requested reset") }),
			Stall:    board.Stall,
		})
		for ch := 0; ch < board.Channels(); ch++ {
			board.ClearSteps(ch)
			board.SetEnabled(ch, false)
		}
		flags.TakeEndstops()

		runErr := make(chan error, 1)
		go func() { runErr <- ctrl.Run(ctx) }()

		select {
		case err := <-runErr:
			if errors.Is(err, protocol.ErrHostReset) {
				continue
			}
			return err
		case err := <-linkErr:
			cancel()
			<-runErr
			if errors.Is(err, io.EOF) {
				log.Printf("host link closed")
				return nil
			}
			return err
		}
	}
}
