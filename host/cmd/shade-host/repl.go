package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"stepshade/core"
	"stepshade/protocol"
)

// ErrUsage is returned for malformed REPL input
var ErrUsage = errors.New("usage")

type actionKind int

const (
	actionNone actionKind = iota
	actionSend
	actionReset
	actionHelp
	actionQuit
)

// action is one parsed REPL line
type action struct {
	kind actionKind
	cmd  protocol.Command
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrUsage}, args...)...)
}

// parseLine turns a REPL line into an action
func parseLine(line string, presets map[string]Preset) (action, error) {
	words, err := shlex.Split(line)
	if err != nil {
		return action{}, usage("%v", err)
	}
	if len(words) == 0 {
		return action{kind: actionNone}, nil
	}

	args := words[1:]
	switch strings.ToLower(words[0]) {
	case "quit", "exit", "q":
		return action{kind: actionQuit}, nil

	case "help", "?":
		return action{kind: actionHelp}, nil

	case "reset":
		return action{kind: actionReset}, nil

	case "home":
		ch, err := channelArg(args, 1)
		if err != nil {
			return action{}, err
		}
		return send(protocol.Home{Channel: ch}), nil

	case "get":
		ch, err := channelArg(args, 1)
		if err != nil {
			return action{}, err
		}
		return send(protocol.Get{Channel: ch}), nil

	case "sg":
		ch, err := channelArg(args, 1)
		if err != nil {
			return action{}, err
		}
		return send(protocol.GetStallGuardResult{Channel: ch}), nil

	case "set":
		return parseSet(args)

	case "setup":
		if len(args) == 1 {
			if p, ok := presets[args[0]]; ok {
				return send(p.Command()), nil
			}
		}
		return parseSetup(args)
	}

	return action{}, usage("unknown command %q", words[0])
}

func send(cmd protocol.Command) action {
	return action{kind: actionSend, cmd: cmd}
}

// channelArg parses the leading channel and checks the argument count
func channelArg(args []string, want int) (uint8, error) {
	if len(args) < 1 {
		return 0, usage("missing channel")
	}
	if want > 0 && len(args) != want {
		return 0, usage("expected %d argument(s), got %d", want, len(args))
	}
	v, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return 0, usage("bad channel %q", args[0])
	}
	return uint8(v), nil
}

// keyValues splits key=value arguments; a bare key reads as "true"
func keyValues(args []string) map[string]string {
	kv := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			v = "true"
		}
		kv[strings.ToLower(k)] = v
	}
	return kv
}

func parseSet(args []string) (action, error) {
	ch, err := channelArg(args, 0)
	if err != nil {
		return action{}, err
	}
	cmd := protocol.Set{Channel: ch}
	for k, v := range keyValues(args[1:]) {
		switch k {
		case "position", "pos":
			p, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return action{}, usage("bad position %q", v)
			}
			pos := uint8(p)
			cmd.Position = &pos
		case "tilt":
			t, err := strconv.ParseInt(v, 10, 8)
			if err != nil {
				return action{}, usage("bad tilt %q", v)
			}
			tilt := int8(t)
			cmd.Tilt = &tilt
		default:
			return action{}, usage("unknown set option %q", k)
		}
	}
	if cmd.Position == nil && cmd.Tilt == nil {
		return action{}, usage("set needs position= and/or tilt=")
	}
	return send(cmd), nil
}

func parseSetup(args []string) (action, error) {
	ch, err := channelArg(args, 0)
	if err != nil {
		return action{}, usage("setup <preset> or setup <channel> steps=N [options]")
	}
	cmd := protocol.Setup{Channel: ch, Init: core.Opened()}
	for k, v := range keyValues(args[1:]) {
		switch k {
		case "steps":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return action{}, usage("bad steps %q", v)
			}
			cmd.FullCycleSteps = uint32(n)
		case "tilt_steps":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil {
				return action{}, usage("bad tilt_steps %q", v)
			}
			steps := uint32(n)
			cmd.FullTiltSteps = &steps
		case "position", "pos":
			p, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return action{}, usage("bad position %q", v)
			}
			cmd.Init.Position = uint8(p)
		case "tilt":
			t, err := strconv.ParseInt(v, 10, 8)
			if err != nil {
				return action{}, usage("bad tilt %q", v)
			}
			cmd.Init.Tilt = int8(t)
		case "reverse":
			r, err := strconv.ParseBool(v)
			if err != nil {
				return action{}, usage("bad reverse %q", v)
			}
			cmd.Reverse = &r
		case "sgthrs":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil {
				return action{}, usage("bad sgthrs %q", v)
			}
			th := uint8(n)
			cmd.Sgthrs = &th
		default:
			return action{}, usage("unknown setup option %q", k)
		}
	}
	if cmd.FullCycleSteps == 0 {
		return action{}, usage("setup needs steps=N")
	}
	return send(cmd), nil
}

// formatReport renders a report for the terminal
func formatReport(r protocol.Report) string {
	switch r := r.(type) {
	case protocol.Position:
		return fmt.Sprintf("channel %d at %d%% tilt %d, heading to %d%% tilt %d",
			r.Channel, r.Current.Position, r.Current.Tilt, r.Desired.Position, r.Desired.Tilt)
	case protocol.StallGuardResult:
		return fmt.Sprintf("channel %d stall guard %d", r.Channel, r.SgResult)
	case protocol.Ready:
		return "controller ready"
	}
	b, err := protocol.EncodeReportPayload(r)
	if err != nil {
		return r.Tag()
	}
	return string(b)
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  home <ch>                          - Walk channel to fully open")
	fmt.Println("  set <ch> position=<0-100> tilt=<n> - Move and/or tilt")
	fmt.Println("  get <ch>                           - Request a position report")
	fmt.Println("  sg <ch>                            - Request a stall guard reading")
	fmt.Println("  setup <preset>                     - Send a configured preset")
	fmt.Println("  setup <ch> steps=N [tilt_steps=N] [position=N] [tilt=N] [reverse] [sgthrs=N]")
	fmt.Println("  reset                              - Restart the controller")
	fmt.Println("  quit/exit/q                        - Exit the program")
	fmt.Println()
}
