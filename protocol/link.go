package protocol

import (
	"fmt"
	"io"
	"sync"
	"time"

	"tinygo.org/x/drivers"

	"stepshade/core"
)

// DefaultFrameTimeout bounds the gap between a length byte and the end of its payload
const DefaultFrameTimeout = time.Second

type linkState uint8

const (
	awaitLength linkState = iota
	awaitPayload
)

// Link is the device side of the host connection. Reads are driven by the
// control loop through Poll; WriteReport may be called from any goroutine.
type Link struct {
	port     drivers.UART
	resetter core.Resetter
	opts     DecodeOptions
	timeout  time.Duration

	// Receive state, owned by the Poll caller
	state    linkState
	length   int
	received int
	started  time.Time
	payload  [MaxPayload]byte

	// Transmit state
	txMu sync.Mutex
	out  ScratchOutput
}

// NewLink creates a link over port. resetter is invoked for zero-length frames.
func NewLink(port drivers.UART, resetter core.Resetter, opts DecodeOptions) *Link {
	return &Link{
		port:     port,
		resetter: resetter,
		opts:     opts,
		timeout:  DefaultFrameTimeout,
	}
}

// SetFrameTimeout changes the payload completion deadline
func (l *Link) SetFrameTimeout(d time.Duration) {
	l.timeout = d
}

// Idle reports that no frame is in progress and no bytes are waiting
func (l *Link) Idle() bool {
	return l.state == awaitLength && l.port.Buffered() == 0
}

// Poll advances the receive state machine with whatever bytes are buffered,
// decoding at most one frame. It returns (nil, nil) when no complete frame
// is available yet.
func (l *Link) Poll(now time.Time) (Command, error) {
	if l.state == awaitLength {
		if l.port.Buffered() == 0 {
			return nil, nil
		}
		var hdr [MessageHeader]byte
		n, err := l.port.Read(hdr[:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if n == 0 {
			return nil, nil
		}
		if hdr[0] == 0 {
			// Reserved: the host wants a clean restart
			if l.resetter != nil {
				l.resetter.Reset()
			}
			return nil, ErrHostReset
		}
		l.state = awaitPayload
		l.length = int(hdr[0])
		l.received = 0
		l.started = now
	}

	for l.received < l.length && l.port.Buffered() > 0 {
		n, err := l.port.Read(l.payload[l.received:l.length])
		if err != nil {
			l.state = awaitLength
			return nil, fmt.Errorf("%w: %v", ErrTransport, err)
		}
		if n == 0 {
			break
		}
		l.received += n
	}

	if l.received < l.length {
		if now.Sub(l.started) > l.timeout {
			l.state = awaitLength
			return nil, fmt.Errorf("%w: got %d of %d payload bytes", ErrFraming, l.received, l.length)
		}
		return nil, nil
	}

	l.state = awaitLength
	return DecodeCommand(l.payload[:l.length], l.opts)
}

// WriteReport frames and sends a report: [len+2][json][CR][LF]
func (l *Link) WriteReport(r Report) error {
	l.txMu.Lock()
	defer l.txMu.Unlock()

	frame, err := frameReport(&l.out, r)
	if err != nil {
		return err
	}
	if _, err := l.port.Write(frame); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// frameReport renders r into out and returns the frame bytes
func frameReport(out *ScratchOutput, r Report) ([]byte, error) {
	body, err := EncodeReportPayload(r)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxReportLength {
		return nil, fmt.Errorf("%w: %s report is %d bytes", ErrEncode, r.Tag(), len(body))
	}

	out.Reset()
	out.Output([]byte{0}) // Length placeholder
	out.Output(body)
	out.Output([]byte{'\r', '\n'})
	out.Update(0, byte(len(body)+MessageTrailer))
	return out.Result(), nil
}

// EncodeCommand frames a command for the device: [len][json]
func EncodeCommand(c Command) ([]byte, error) {
	body, err := EncodeCommandPayload(c)
	if err != nil {
		return nil, err
	}
	if len(body) > MaxPayload {
		return nil, fmt.Errorf("%w: %s command is %d bytes", ErrEncode, c.Tag(), len(body))
	}
	return append([]byte{byte(len(body))}, body...), nil
}

// ResetFrame is the zero-length frame that restarts the device
func ResetFrame() []byte {
	return []byte{0}
}

// ReadReport reads one report frame from a blocking reader, as the host
// does. The trailing CR LF is stripped before decoding.
func ReadReport(r io.Reader) (Report, error) {
	var hdr [MessageHeader]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	n := int(hdr[0])
	if n < MessageTrailer {
		return nil, fmt.Errorf("%w: report length %d", ErrFraming, n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFraming, err)
	}
	if buf[n-2] != '\r' || buf[n-1] != '\n' {
		return nil, fmt.Errorf("%w: missing CR LF trailer", ErrFraming)
	}
	return DecodeReport(buf[:n-MessageTrailer])
}
