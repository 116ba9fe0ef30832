package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"stepshade/core"
)

// loopPort feeds Poll from rx and captures everything written
type loopPort struct {
	rx *FifoBuffer
	tx bytes.Buffer
}

func newLoopPort() *loopPort {
	return &loopPort{rx: NewFifoBuffer(1024)}
}

func (p *loopPort) Read(b []byte) (int, error)  { return p.rx.Read(b) }
func (p *loopPort) Write(b []byte) (int, error) { return p.tx.Write(b) }
func (p *loopPort) Buffered() int               { return p.rx.Buffered() }

func frame(payload string) []byte {
	return append([]byte{byte(len(payload))}, payload...)
}

func TestLinkPollFrame(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)
	now := time.Unix(0, 0)

	if cmd, err := link.Poll(now); cmd != nil || err != nil {
		t.Fatalf("Poll on empty link: got %v, %v", cmd, err)
	}

	port.rx.Write(frame(`{"home":{"channel":2}}`))
	cmd, err := link.Poll(now)
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if cmd != (Home{Channel: 2}) {
		t.Errorf("Expected Home{2}, got %#v", cmd)
	}
	if !link.Idle() {
		t.Error("Link should be idle after a complete frame")
	}
}

func TestLinkPartialFrame(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)
	now := time.Unix(0, 0)

	f := frame(`{"get":{"channel":1}}`)
	port.rx.Write(f[:7])

	if cmd, err := link.Poll(now); cmd != nil || err != nil {
		t.Fatalf("Poll with partial frame: got %v, %v", cmd, err)
	}
	if link.Idle() {
		t.Error("Link should not be idle mid-frame")
	}

	port.rx.Write(f[7:])
	cmd, err := link.Poll(now.Add(100 * time.Millisecond))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if cmd != (Get{Channel: 1}) {
		t.Errorf("Expected Get{1}, got %#v", cmd)
	}
}

func TestLinkOneFramePerPoll(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)
	now := time.Unix(0, 0)

	port.rx.Write(frame(`{"get":{"channel":0}}`))
	port.rx.Write(frame(`{"get":{"channel":1}}`))

	first, _ := link.Poll(now)
	second, _ := link.Poll(now)
	if first != (Get{Channel: 0}) || second != (Get{Channel: 1}) {
		t.Errorf("Expected frames in order, got %#v then %#v", first, second)
	}
}

func TestLinkFrameTimeout(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)
	start := time.Unix(100, 0)

	port.rx.Write(frame(`{"get":{"channel":0}}`)[:5])
	if _, err := link.Poll(start); err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if _, err := link.Poll(start.Add(DefaultFrameTimeout)); err != nil {
		t.Fatalf("Poll at deadline should still wait, got %v", err)
	}

	_, err := link.Poll(start.Add(DefaultFrameTimeout + time.Millisecond))
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("Expected ErrFraming, got %v", err)
	}

	// The next frame starts clean
	port.rx.Write(frame(`{"home":{"channel":3}}`))
	cmd, err := link.Poll(start.Add(2 * DefaultFrameTimeout))
	if err != nil || cmd != (Home{Channel: 3}) {
		t.Errorf("Expected Home{3} after timeout, got %#v, %v", cmd, err)
	}
}

func TestLinkZeroLengthReset(t *testing.T) {
	port := newLoopPort()
	resets := 0
	link := NewLink(port, core.ResetFunc(func() { resets++ }), fourChannels)

	port.rx.Write(ResetFrame())
	cmd, err := link.Poll(time.Unix(0, 0))
	if !errors.Is(err, ErrHostReset) {
		t.Fatalf("Expected ErrHostReset, got %v", err)
	}
	if cmd != nil {
		t.Errorf("Reset frame should not produce a command, got %#v", cmd)
	}
	if resets != 1 {
		t.Errorf("Expected 1 reset, got %d", resets)
	}
	if port.tx.Len() != 0 {
		t.Errorf("Reset frame should not write anything, wrote %q", port.tx.Bytes())
	}
}

func TestLinkDecodeErrorRecovers(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)
	now := time.Unix(0, 0)

	port.rx.Write(frame(`{"home":{"channel":9}}`))
	port.rx.Write(frame(`{"home":{"channel":0}}`))

	if _, err := link.Poll(now); !errors.Is(err, ErrDecode) {
		t.Fatalf("Expected ErrDecode, got %v", err)
	}
	cmd, err := link.Poll(now)
	if err != nil || cmd != (Home{Channel: 0}) {
		t.Errorf("Expected Home{0} after bad frame, got %#v, %v", cmd, err)
	}
}

func TestLinkWriteReport(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)

	report := Position{Channel: 3, Current: core.Closed(), Desired: core.Opened()}
	if err := link.WriteReport(report); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}

	raw := port.tx.Bytes()
	body, _ := EncodeReportPayload(report)
	if int(raw[0]) != len(body)+MessageTrailer {
		t.Errorf("Length byte: expected %d, got %d", len(body)+MessageTrailer, raw[0])
	}
	if !bytes.HasSuffix(raw, []byte("\r\n")) {
		t.Errorf("Frame should end with CR LF: %q", raw)
	}
	if !bytes.Equal(raw[1:len(raw)-2], body) {
		t.Errorf("Frame body mismatch: %q", raw[1:len(raw)-2])
	}

	got, err := ReadReport(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("ReadReport failed: %v", err)
	}
	if got != report {
		t.Errorf("ReadReport = %#v, want %#v", got, report)
	}
}

func TestLinkReportSequence(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)

	link.WriteReport(Ready{})
	link.WriteReport(StallGuardResult{Channel: 1, SgResult: 200})

	r := bytes.NewReader(port.tx.Bytes())
	first, err := ReadReport(r)
	if err != nil || first != (Ready{}) {
		t.Fatalf("Expected Ready, got %#v, %v", first, err)
	}
	second, err := ReadReport(r)
	if err != nil || second != (StallGuardResult{Channel: 1, SgResult: 200}) {
		t.Fatalf("Expected StallGuardResult, got %#v, %v", second, err)
	}
	if _, err := ReadReport(r); !errors.Is(err, io.EOF) || !errors.Is(err, ErrTransport) {
		t.Errorf("Expected transport EOF at end of stream, got %v", err)
	}
}

type oversizeReport struct {
	Text string `json:"text"`
}

func (oversizeReport) Tag() string { return "oversize" }

func TestLinkOversizeReport(t *testing.T) {
	port := newLoopPort()
	link := NewLink(port, nil, fourChannels)

	err := link.WriteReport(oversizeReport{Text: strings.Repeat("x", MaxReportLength)})
	if !errors.Is(err, ErrEncode) {
		t.Errorf("Expected ErrEncode, got %v", err)
	}
	if port.tx.Len() != 0 {
		t.Errorf("Oversize report should not be written, wrote %d bytes", port.tx.Len())
	}
}

func TestReadReportFraming(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"short length", []byte{1, 'x'}},
		{"missing trailer", append([]byte{14}, `{"ready":{}}xx`...)},
		{"truncated", append([]byte{40}, `{"ready":{}}`...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadReport(bytes.NewReader(tt.raw)); !errors.Is(err, ErrFraming) {
				t.Errorf("Expected ErrFraming, got %v", err)
			}
		})
	}
}

func TestEncodeCommandFrame(t *testing.T) {
	raw, err := EncodeCommand(Set{Channel: 1, Position: u8(30)})
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	if int(raw[0]) != len(raw)-1 {
		t.Errorf("Length byte %d does not match payload %d", raw[0], len(raw)-1)
	}

	port := newLoopPort()
	port.rx.Write(raw)
	cmd, err := NewLink(port, nil, fourChannels).Poll(time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Poll failed: %v", err)
	}
	if set, ok := cmd.(Set); !ok || *set.Position != 30 || set.Tilt != nil {
		t.Errorf("Expected Set{1, 30}, got %#v", cmd)
	}
}

func TestStreamPort(t *testing.T) {
	var in bytes.Buffer
	in.Write(frame(`{"get":{"channel":2}}`))
	var out bytes.Buffer

	port := NewStreamPort(&in, &out)
	if err := port.Pump(context.Background()); err != io.EOF {
		t.Fatalf("Pump should stop at EOF, got %v", err)
	}

	link := NewLink(port, nil, fourChannels)
	cmd, err := link.Poll(time.Unix(0, 0))
	if err != nil || cmd != (Get{Channel: 2}) {
		t.Fatalf("Expected Get{2}, got %#v, %v", cmd, err)
	}

	if err := link.WriteReport(Ready{}); err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	if rep, err := ReadReport(&out); err != nil || rep != (Ready{}) {
		t.Errorf("Expected Ready on the writer, got %#v, %v", rep, err)
	}
}

func TestStreamPortBackPressure(t *testing.T) {
	in := make([]byte, 3*4*MessageMax)
	for i := range in {
		in[i] = byte(i % 251)
	}

	port := NewStreamPort(bytes.NewReader(in), io.Discard)
	done := make(chan error, 1)
	go func() { done <- port.Pump(context.Background()) }()

	got := make([]byte, 0, len(in))
	buf := make([]byte, 100)
	deadline := time.Now().Add(5 * time.Second)
	for len(got) < len(in) && time.Now().Before(deadline) {
		n, _ := port.Read(buf)
		if n == 0 {
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, buf[:n]...)
	}

	if !bytes.Equal(got, in) {
		t.Fatalf("Expected all %d bytes in order, got %d", len(in), len(got))
	}
	if err := <-done; err != io.EOF {
		t.Errorf("Pump should stop at EOF, got %v", err)
	}
}
