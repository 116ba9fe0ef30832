package protocol

import (
	"errors"
	"reflect"
	"testing"

	"stepshade/core"
)

var fourChannels = DecodeOptions{Channels: 4}

func u8(v uint8) *uint8    { return &v }
func i8(v int8) *int8      { return &v }
func u32(v uint32) *uint32 { return &v }
func flag(v bool) *bool    { return &v }

func TestDecodeCommandVariants(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
	}{
		{"home", `{"home":{"channel":1}}`, Home{Channel: 1}},
		{"get", `{"get":{"channel":3}}`, Get{Channel: 3}},
		{"set position", `{"set":{"channel":0,"position":40}}`, Set{Channel: 0, Position: u8(40)}},
		{"set tilt", `{"set":{"channel":2,"tilt":-45}}`, Set{Channel: 2, Tilt: i8(-45)}},
		{"set empty", `{"set":{"channel":2}}`, Set{Channel: 2}},
		{
			"setup minimal",
			`{"setup":{"channel":1,"init":{"position":100,"tilt":0},"full_cycle_steps":2000}}`,
			Setup{Channel: 1, Init: core.Opened(), FullCycleSteps: 2000},
		},
		{
			"setup venetian",
			`{"setup":{"channel":0,"init":{"position":0,"tilt":90},"full_cycle_steps":2000,"reverse":true,"full_tilt_steps":300}}`,
			Setup{Channel: 0, Init: core.Closed(), FullCycleSteps: 2000, Reverse: flag(true), FullTiltSteps: u32(300)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeCommand([]byte(tt.payload), fourChannels)
			if err != nil {
				t.Fatalf("DecodeCommand(%s) failed: %v", tt.payload, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("DecodeCommand(%s) = %#v, want %#v", tt.payload, got, tt.want)
			}
		})
	}
}

func TestDecodeCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `home`},
		{"empty object", `{}`},
		{"unknown command", `{"open":{"channel":0}}`},
		{"unknown field", `{"home":{"channel":0,"speed":3}}`},
		{"two commands", `{"home":{"channel":0},"get":{"channel":0}}`},
		{"trailing data", `{"get":{"channel":0}}{"get":{"channel":1}}`},
		{"missing channel", `{"get":{}}`},
		{"channel out of range", `{"home":{"channel":4}}`},
		{"negative channel", `{"home":{"channel":-1}}`},
		{"position out of range", `{"set":{"channel":0,"position":101}}`},
		{"tilt out of range", `{"set":{"channel":0,"tilt":91}}`},
		{"tilt overflow", `{"set":{"channel":0,"tilt":-200}}`},
		{"setup missing init", `{"setup":{"channel":0,"full_cycle_steps":10}}`},
		{"setup partial init", `{"setup":{"channel":0,"init":{"position":5},"full_cycle_steps":10}}`},
		{"setup missing steps", `{"setup":{"channel":0,"init":{"position":5,"tilt":0}}}`},
		{"setup zero steps", `{"setup":{"channel":0,"init":{"position":5,"tilt":0},"full_cycle_steps":0}}`},
		{"setup bad init", `{"setup":{"channel":0,"init":{"position":150,"tilt":0},"full_cycle_steps":10}}`},
		{"sgthrs without stall sensing", `{"setup":{"channel":0,"init":{"position":5,"tilt":0},"full_cycle_steps":10,"sgthrs":50}}`},
		{"stall query without stall sensing", `{"get_stall_guard_result":{"channel":0}}`},
		{"command case", `{"SET":{"channel":0}}`},
		{"field case", `{"set":{"Channel":0}}`},
		{"all upper case", `{"SET":{"Channel":0,"POSITION":5}}`},
		{"mixed case home", `{"Home":{"CHANNEL":1}}`},
		{"init field case", `{"setup":{"channel":0,"init":{"Position":5,"tilt":0},"full_cycle_steps":10}}`},
		{"duplicate field", `{"get":{"channel":0,"channel":1}}`},
		{"duplicate command", `{"get":{"channel":0},"get":{"channel":1}}`},
		{"duplicate init field", `{"setup":{"channel":0,"init":{"position":5,"tilt":0,"tilt":1},"full_cycle_steps":10}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeCommand([]byte(tt.payload), fourChannels)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("DecodeCommand(%s): expected ErrDecode, got %v", tt.payload, err)
			}
		})
	}
}

func TestDecodeCommandStallSensing(t *testing.T) {
	opts := DecodeOptions{Channels: 2, StallSensing: true}

	got, err := DecodeCommand([]byte(`{"get_stall_guard_result":{"channel":1}}`), opts)
	if err != nil {
		t.Fatalf("stall query rejected: %v", err)
	}
	if got != (GetStallGuardResult{Channel: 1}) {
		t.Errorf("Expected GetStallGuardResult{1}, got %#v", got)
	}

	got, err = DecodeCommand([]byte(`{"setup":{"channel":0,"init":{"position":5,"tilt":0},"full_cycle_steps":10,"sgthrs":50}}`), opts)
	if err != nil {
		t.Fatalf("setup with sgthrs rejected: %v", err)
	}
	setup := got.(Setup)
	if setup.Sgthrs == nil || *setup.Sgthrs != 50 {
		t.Errorf("Expected sgthrs 50, got %v", setup.Sgthrs)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	opts := DecodeOptions{Channels: 4, StallSensing: true}
	commands := []Command{
		Home{Channel: 2},
		Get{Channel: 0},
		GetStallGuardResult{Channel: 3},
		Set{Channel: 1, Position: u8(0), Tilt: i8(90)},
		Set{Channel: 1, Tilt: i8(-90)},
		Setup{Channel: 3, Init: core.WindowDressingState{Position: 50, Tilt: -30}, FullCycleSteps: 12000,
			Reverse: flag(false), FullTiltSteps: u32(450), Sgthrs: u8(0)},
	}

	for _, cmd := range commands {
		payload, err := EncodeCommandPayload(cmd)
		if err != nil {
			t.Fatalf("EncodeCommandPayload(%#v) failed: %v", cmd, err)
		}
		got, err := DecodeCommand(payload, opts)
		if err != nil {
			t.Fatalf("DecodeCommand(%s) failed: %v", payload, err)
		}
		if !reflect.DeepEqual(got, cmd) {
			t.Errorf("Round trip of %s: got %#v, want %#v", payload, got, cmd)
		}
	}
}

func TestEncodeReportPayload(t *testing.T) {
	tests := []struct {
		report Report
		want   string
	}{
		{Ready{}, `{"ready":{}}`},
		{
			Position{Channel: 1, Current: core.WindowDressingState{Position: 50, Tilt: 0}, Desired: core.Opened()},
			`{"position":{"channel":1,"current":{"position":50,"tilt":0},"desired":{"position":100,"tilt":0}}}`,
		},
		{StallGuardResult{Channel: 2, SgResult: 17}, `{"stall_guard_result":{"channel":2,"sg_result":17}}`},
	}

	for _, tt := range tests {
		got, err := EncodeReportPayload(tt.report)
		if err != nil {
			t.Fatalf("EncodeReportPayload(%#v) failed: %v", tt.report, err)
		}
		if string(got) != tt.want {
			t.Errorf("EncodeReportPayload(%#v) = %s, want %s", tt.report, got, tt.want)
		}

		back, err := DecodeReport(got)
		if err != nil {
			t.Fatalf("DecodeReport(%s) failed: %v", got, err)
		}
		if !reflect.DeepEqual(back, tt.report) {
			t.Errorf("DecodeReport(%s) = %#v, want %#v", got, back, tt.report)
		}
	}
}

func TestDecodeReportErrors(t *testing.T) {
	for _, payload := range []string{`[]`, `{}`, `{"bogus":{}}`, `{"ready":{},"position":{}}`, `{"position":{"channel":"x"}}`} {
		if _, err := DecodeReport([]byte(payload)); !errors.Is(err, ErrDecode) {
			t.Errorf("DecodeReport(%s): expected ErrDecode, got %v", payload, err)
		}
	}
}
