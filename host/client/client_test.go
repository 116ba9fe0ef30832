package client

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"stepshade/core"
	"stepshade/protocol"
)

// pipePort connects a client to a fake device through two pipes
type pipePort struct {
	*io.PipeReader
	*io.PipeWriter
}

func (p pipePort) Close() error {
	p.PipeReader.Close()
	return p.PipeWriter.Close()
}

func (p pipePort) Flush() error { return nil }

type device struct {
	commands *io.PipeReader // What the client wrote
	reports  *io.PipeWriter // What the client will read
}

func newPair() (*Client, *device) {
	hostR, devW := io.Pipe()
	devR, hostW := io.Pipe()
	c := New(pipePort{PipeReader: hostR, PipeWriter: hostW})
	return c, &device{commands: devR, reports: devW}
}

func (d *device) readFrame(t *testing.T) []byte {
	t.Helper()
	var hdr [1]byte
	if _, err := io.ReadFull(d.commands, hdr[:]); err != nil {
		t.Fatalf("reading length: %v", err)
	}
	buf := make([]byte, hdr[0])
	if _, err := io.ReadFull(d.commands, buf); err != nil {
		t.Fatalf("reading payload: %v", err)
	}
	return buf
}

func (d *device) report(t *testing.T, r protocol.Report) {
	t.Helper()
	body, err := protocol.EncodeReportPayload(r)
	if err != nil {
		t.Errorf("EncodeReportPayload failed: %v", err)
		return
	}
	frame := append([]byte{byte(len(body) + 2)}, body...)
	frame = append(frame, '\r', '\n')
	if _, err := d.reports.Write(frame); err != nil {
		t.Errorf("writing report: %v", err)
	}
}

func TestClientCommands(t *testing.T) {
	c, dev := newPair()
	defer c.Close()

	pos := uint8(25)
	tilt := int8(-30)
	steps := uint32(400)
	tests := []struct {
		send func() error
		want protocol.Command
	}{
		{func() error { return c.Home(1) }, protocol.Home{Channel: 1}},
		{func() error { return c.Get(2) }, protocol.Get{Channel: 2}},
		{func() error { return c.StallGuardResult(3) }, protocol.GetStallGuardResult{Channel: 3}},
		{func() error { return c.Set(0, &pos, &tilt) }, protocol.Set{Channel: 0, Position: &pos, Tilt: &tilt}},
		{
			func() error {
				return c.Setup(protocol.Setup{Channel: 1, Init: core.Opened(), FullCycleSteps: 9000, FullTiltSteps: &steps})
			},
			protocol.Setup{Channel: 1, Init: core.Opened(), FullCycleSteps: 9000, FullTiltSteps: &steps},
		},
	}

	opts := protocol.DecodeOptions{Channels: 4, StallSensing: true}
	for _, tt := range tests {
		errc := make(chan error, 1)
		go func() { errc <- tt.send() }()

		payload := dev.readFrame(t)
		if err := <-errc; err != nil {
			t.Fatalf("send failed: %v", err)
		}
		got, err := protocol.DecodeCommand(payload, opts)
		if err != nil {
			t.Fatalf("DecodeCommand(%s) failed: %v", payload, err)
		}
		if got.Tag() != tt.want.Tag() || got.Target() != tt.want.Target() {
			t.Errorf("Expected %#v, got %#v", tt.want, got)
		}
	}
}

func TestClientReset(t *testing.T) {
	c, dev := newPair()
	defer c.Close()

	go c.Reset()
	var b [1]byte
	if _, err := io.ReadFull(dev.commands, b[:]); err != nil || b[0] != 0 {
		t.Errorf("Expected a zero length byte, got %v, %v", b, err)
	}
}

func TestClientReports(t *testing.T) {
	c, dev := newPair()
	defer c.Close()

	go func() {
		dev.report(t, protocol.Ready{})
		dev.report(t, protocol.Position{Channel: 2, Current: core.Closed(), Desired: core.Opened()})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r, err := c.WaitFor(ctx, func(r protocol.Report) bool {
		p, ok := r.(protocol.Position)
		return ok && p.Channel == 2
	})
	if err != nil {
		t.Fatalf("WaitFor failed: %v", err)
	}
	if r.(protocol.Position).Desired != core.Opened() {
		t.Errorf("Unexpected report %#v", r)
	}
}

func TestClientSkipsUndecodableReports(t *testing.T) {
	c, dev := newPair()
	defer c.Close()

	go func() {
		body := []byte(`{"mystery":{}}`)
		frame := append([]byte{byte(len(body) + 2)}, body...)
		dev.reports.Write(append(frame, '\r', '\n'))
		dev.report(t, protocol.Ready{})
	}()

	select {
	case r := <-c.Reports():
		if r != (protocol.Ready{}) {
			t.Errorf("Expected Ready, got %#v", r)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for a report")
	}
}

func TestClientDeviceGone(t *testing.T) {
	c, dev := newPair()
	defer c.Close()

	dev.reports.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := c.WaitFor(ctx, func(protocol.Report) bool { return true })
	if !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, io.EOF) {
		t.Errorf("Expected transport EOF, got %v", err)
	}
}

func TestClientClose(t *testing.T) {
	c, _ := newPair()

	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := c.Get(0); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}
