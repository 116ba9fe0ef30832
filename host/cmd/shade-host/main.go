package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/natefinch/lumberjack"

	"stepshade/host/client"
	"stepshade/protocol"
)

var (
	configPath = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config, ignored for USB CDC)")
	logFile    = flag.String("log", "", "Log file (overrides config, \"-\" for stderr only)")
	verbose    = flag.Bool("verbose", false, "Echo raw report frames")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg)
	setupLogging(cfg.Log)

	fmt.Println("Shade Host - window dressing controller console")
	fmt.Println("================================================")
	fmt.Println()

	fmt.Printf("Connecting to controller on %s...\n", cfg.Serial.Device)
	c, err := client.Dial(&cfg.Serial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	log.Printf("connected to %s at %d baud", cfg.Serial.Device, cfg.Serial.Baud)

	go printReports(c)

	for _, name := range cfg.SetupOnConnect {
		setup := cfg.Presets[name].Command()
		if err := c.Setup(setup); err != nil {
			fmt.Fprintf(os.Stderr, "Error: preset %s: %v\n", name, err)
			continue
		}
		log.Printf("sent preset %s to channel %d", name, setup.Channel)
	}

	if len(cfg.Presets) > 0 {
		names := make([]string, 0, len(cfg.Presets))
		for name := range cfg.Presets {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Printf("Presets: %v\n", names)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	if err := repl(c, cfg, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags lets explicitly set flags override the file
func applyFlags(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Serial.Device = *device
		case "baud":
			cfg.Serial.Baud = *baud
		case "log":
			cfg.Log.File = *logFile
		}
	})
}

// setupLogging sends the log to stderr and a rotating file
func setupLogging(lc LogConfig) {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	if lc.File == "" || lc.File == "-" {
		log.SetOutput(os.Stderr)
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}))
}

func printReports(c *client.Client) {
	for r := range c.Reports() {
		if *verbose {
			if b, err := protocol.EncodeReportPayload(r); err == nil {
				log.Printf("report %s", b)
			}
		}
		fmt.Printf("< %s\n", formatReport(r))
	}
	if err := c.Err(); err != nil {
		log.Printf("connection lost: %v", err)
		fmt.Fprintf(os.Stderr, "Connection lost: %v\n", err)
	}
}

// repl runs the interactive command loop until quit or end of input
func repl(c *client.Client, cfg *Config, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		act, err := parseLine(scanner.Text(), cfg.Presets)
		if err != nil {
			fmt.Println(err)
			continue
		}

		switch act.kind {
		case actionQuit:
			fmt.Println("Goodbye!")
			return nil
		case actionHelp:
			printHelp()
		case actionReset:
			if err := c.Reset(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			log.Printf("sent reset")
		case actionSend:
			if err := c.Send(act.cmd); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				if errors.Is(err, client.ErrClosed) {
					return nil
				}
				continue
			}
			log.Printf("sent %s to channel %d", act.cmd.Tag(), act.cmd.Target())
		}
	}
	return scanner.Err()
}
