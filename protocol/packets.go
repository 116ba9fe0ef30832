package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"stepshade/core"
)

// Command is a decoded host command
type Command interface {
	// Tag is the command's JSON variant name
	Tag() string

	// Target is the channel the command applies to
	Target() uint8
}

// Home walks the channel to its fully open limit
type Home struct {
	Channel uint8 `json:"channel"`
}

// Setup reconfigures a channel and seeds its position
type Setup struct {
	Channel        uint8                    `json:"channel"`
	Init           core.WindowDressingState `json:"init"`
	FullCycleSteps uint32                   `json:"full_cycle_steps"`
	Reverse        *bool                    `json:"reverse,omitempty"`
	FullTiltSteps  *uint32                  `json:"full_tilt_steps,omitempty"`
	Sgthrs         *uint8                   `json:"sgthrs,omitempty"`
}

// Set commands a new position and/or tilt
type Set struct {
	Channel  uint8  `json:"channel"`
	Position *uint8 `json:"position,omitempty"`
	Tilt     *int8  `json:"tilt,omitempty"`
}

// Get requests a position report
type Get struct {
	Channel uint8 `json:"channel"`
}

// GetStallGuardResult requests the driver's load measurement
type GetStallGuardResult struct {
	Channel uint8 `json:"channel"`
}

func (Home) Tag() string                { return "home" }
func (Setup) Tag() string               { return "setup" }
func (Set) Tag() string                 { return "set" }
func (Get) Tag() string                 { return "get" }
func (GetStallGuardResult) Tag() string { return "get_stall_guard_result" }

func (c Home) Target() uint8                { return c.Channel }
func (c Setup) Target() uint8               { return c.Channel }
func (c Set) Target() uint8                 { return c.Channel }
func (c Get) Target() uint8                 { return c.Channel }
func (c GetStallGuardResult) Target() uint8 { return c.Channel }

// Report is a device-to-host message
type Report interface {
	Tag() string
}

// Ready is sent once when the controller starts
type Ready struct{}

// Position reports where a channel is and where it is heading
type Position struct {
	Channel uint8                    `json:"channel"`
	Current core.WindowDressingState `json:"current"`
	Desired core.WindowDressingState `json:"desired"`
}

// StallGuardResult carries a driver load measurement scaled to 8 bits
type StallGuardResult struct {
	Channel  uint8 `json:"channel"`
	SgResult uint8 `json:"sg_result"`
}

func (Ready) Tag() string            { return "ready" }
func (Position) Tag() string         { return "position" }
func (StallGuardResult) Tag() string { return "stall_guard_result" }

// Wire forms with pointer fields, so missing required fields can be told
// apart from zero values

type stateWire struct {
	Position *uint8 `json:"position"`
	Tilt     *int8  `json:"tilt"`
}

type channelWire struct {
	Channel *uint8 `json:"channel"`
}

type setupWire struct {
	Channel        *uint8     `json:"channel"`
	Init           *stateWire `json:"init"`
	FullCycleSteps *uint32    `json:"full_cycle_steps"`
	Reverse        *bool      `json:"reverse"`
	FullTiltSteps  *uint32    `json:"full_tilt_steps"`
	Sgthrs         *uint8     `json:"sgthrs"`
}

type setWire struct {
	Channel  *uint8 `json:"channel"`
	Position *uint8 `json:"position"`
	Tilt     *int8  `json:"tilt"`
}

type commandWire struct {
	Home                *channelWire `json:"home"`
	Setup               *setupWire   `json:"setup"`
	Set                 *setWire     `json:"set"`
	Get                 *channelWire `json:"get"`
	GetStallGuardResult *channelWire `json:"get_stall_guard_result"`
}

// fieldSet lists the exact object keys accepted at one level of a command.
// A nil entry is a scalar field.
type fieldSet map[string]fieldSet

var stateFields = fieldSet{"position": nil, "tilt": nil}

var channelFields = fieldSet{"channel": nil}

var commandFields = fieldSet{
	"home": channelFields,
	"setup": {
		"channel":          nil,
		"init":             stateFields,
		"full_cycle_steps": nil,
		"reverse":          nil,
		"full_tilt_steps":  nil,
		"sgthrs":           nil,
	},
	"set":                    {"channel": nil, "position": nil, "tilt": nil},
	"get":                    channelFields,
	"get_stall_guard_result": channelFields,
}

// checkFields walks one JSON value and rejects object keys that are not an
// exact member of fields, or that appear twice
func checkFields(dec *json.Decoder, fields fieldSet, where string) error {
	tok, err := dec.Token()
	if err != nil {
		return decodeErr("%v", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return nil
	}
	if delim != '{' || fields == nil {
		return skipValue(dec, delim)
	}

	seen := make(map[string]bool, len(fields))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return decodeErr("%v", err)
		}
		key, _ := tok.(string)
		sub, known := fields[key]
		switch {
		case !known && where == "":
			return decodeErr("unknown command %q", key)
		case !known:
			return decodeErr("%s: unknown field %q", where, key)
		case seen[key]:
			return decodeErr("%s: duplicate field %q", where, key)
		}
		seen[key] = true

		next := key
		if where != "" {
			next = where + "." + key
		}
		if err := checkFields(dec, sub, next); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return decodeErr("%v", err)
	}
	return nil
}

// skipValue consumes the rest of an array or object whose opening delimiter
// has been read
func skipValue(dec *json.Decoder, open json.Delim) error {
	if open != '{' && open != '[' {
		return nil
	}
	for depth := 1; depth > 0; {
		tok, err := dec.Token()
		if err != nil {
			return decodeErr("%v", err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	return nil
}

// DecodeOptions bound what the decoder accepts
type DecodeOptions struct {
	Channels     int  // Valid channels are 0 to Channels-1
	StallSensing bool // Accept sgthrs and get_stall_guard_result
}

func decodeErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrDecode}, args...)...)
}

// DecodeCommand parses one JSON payload. Keys must match exactly. Unknown or
// repeated fields, missing required fields, trailing data and out-of-range
// values are all decode errors.
func DecodeCommand(payload []byte, opts DecodeOptions) (Command, error) {
	// Struct decoding matches keys case-insensitively and lets a repeated key
	// win, so key names are checked exactly first
	if err := checkFields(json.NewDecoder(bytes.NewReader(payload)), commandFields, ""); err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var w commandWire
	if err := dec.Decode(&w); err != nil {
		return nil, decodeErr("%v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, decodeErr("trailing data after command")
	}

	variants := 0
	for _, present := range []bool{w.Home != nil, w.Setup != nil, w.Set != nil, w.Get != nil, w.GetStallGuardResult != nil} {
		if present {
			variants++
		}
	}
	if variants != 1 {
		return nil, decodeErr("expected exactly one command, got %d", variants)
	}

	var cmd Command
	switch {
	case w.Home != nil:
		if w.Home.Channel == nil {
			return nil, decodeErr("home: missing field channel")
		}
		cmd = Home{Channel: *w.Home.Channel}

	case w.Setup != nil:
		s := w.Setup
		switch {
		case s.Channel == nil:
			return nil, decodeErr("setup: missing field channel")
		case s.Init == nil || s.Init.Position == nil || s.Init.Tilt == nil:
			return nil, decodeErr("setup: missing field init")
		case s.FullCycleSteps == nil:
			return nil, decodeErr("setup: missing field full_cycle_steps")
		case s.Sgthrs != nil && !opts.StallSensing:
			return nil, decodeErr("setup: unknown field sgthrs")
		}
		cmd = Setup{
			Channel:        *s.Channel,
			Init:           core.WindowDressingState{Position: *s.Init.Position, Tilt: *s.Init.Tilt},
			FullCycleSteps: *s.FullCycleSteps,
			Reverse:        s.Reverse,
			FullTiltSteps:  s.FullTiltSteps,
			Sgthrs:         s.Sgthrs,
		}

	case w.Set != nil:
		if w.Set.Channel == nil {
			return nil, decodeErr("set: missing field channel")
		}
		cmd = Set{Channel: *w.Set.Channel, Position: w.Set.Position, Tilt: w.Set.Tilt}

	case w.Get != nil:
		if w.Get.Channel == nil {
			return nil, decodeErr("get: missing field channel")
		}
		cmd = Get{Channel: *w.Get.Channel}

	case w.GetStallGuardResult != nil:
		if !opts.StallSensing {
			return nil, decodeErr("unknown command get_stall_guard_result")
		}
		if w.GetStallGuardResult.Channel == nil {
			return nil, decodeErr("get_stall_guard_result: missing field channel")
		}
		cmd = GetStallGuardResult{Channel: *w.GetStallGuardResult.Channel}
	}

	if err := validate(cmd, opts); err != nil {
		return nil, err
	}
	return cmd, nil
}

// validate range-checks values that would otherwise index out of bounds or
// be silently clamped
func validate(cmd Command, opts DecodeOptions) error {
	if opts.Channels > 0 && int(cmd.Target()) >= opts.Channels {
		return decodeErr("%s: channel %d out of range", cmd.Tag(), cmd.Target())
	}

	switch c := cmd.(type) {
	case Setup:
		if err := validateState(c.Init.Position, c.Init.Tilt); err != nil {
			return err
		}
		if c.FullCycleSteps == 0 {
			return decodeErr("setup: full_cycle_steps must be positive")
		}
	case Set:
		var pos uint8
		var tilt int8
		if c.Position != nil {
			pos = *c.Position
		}
		if c.Tilt != nil {
			tilt = *c.Tilt
		}
		return validateState(pos, tilt)
	}
	return nil
}

func validateState(position uint8, tilt int8) error {
	if position > 100 {
		return decodeErr("position %d out of range", position)
	}
	if tilt < -90 || tilt > 90 {
		return decodeErr("tilt %d out of range", tilt)
	}
	return nil
}

// marshalTagged encodes v as {"tag": v}
func marshalTagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(tag)+len(body)+5)
	out = append(out, '{', '"')
	out = append(out, tag...)
	out = append(out, '"', ':')
	out = append(out, body...)
	out = append(out, '}')
	return out, nil
}

// EncodeReportPayload renders a report as compact JSON without framing
func EncodeReportPayload(r Report) ([]byte, error) {
	b, err := marshalTagged(r.Tag(), r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b, nil
}

// EncodeCommandPayload renders a command as compact JSON without framing
func EncodeCommandPayload(c Command) ([]byte, error) {
	b, err := marshalTagged(c.Tag(), c)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return b, nil
}

// DecodeReport parses a report payload. Reports come from trusted firmware,
// so unknown fields are tolerated for forward compatibility.
func DecodeReport(payload []byte) (Report, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, decodeErr("%v", err)
	}
	if len(env) != 1 {
		return nil, decodeErr("expected exactly one report, got %d", len(env))
	}

	for tag, body := range env {
		switch tag {
		case "ready":
			return Ready{}, nil
		case "position":
			var p Position
			if err := json.Unmarshal(body, &p); err != nil {
				return nil, decodeErr("position: %v", err)
			}
			return p, nil
		case "stall_guard_result":
			var s StallGuardResult
			if err := json.Unmarshal(body, &s); err != nil {
				return nil, decodeErr("stall_guard_result: %v", err)
			}
			return s, nil
		default:
			return nil, decodeErr("unknown report %q", tag)
		}
	}
	return nil, decodeErr("empty report")
}
