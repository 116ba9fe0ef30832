package protocol

import (
	"context"
	"io"
	"time"
)

// StreamPort adapts a blocking byte stream (a serial device, stdin/stdout)
// to the polled UART interface the Link reads from. Pump copies inbound
// bytes into a FIFO; writes go straight through.
type StreamPort struct {
	r  io.Reader
	w  io.Writer
	rx *FifoBuffer
}

// NewStreamPort creates a port reading from r and writing to w
func NewStreamPort(r io.Reader, w io.Writer) *StreamPort {
	return &StreamPort{r: r, w: w, rx: NewFifoBuffer(4 * MessageMax)}
}

func (p *StreamPort) Read(b []byte) (int, error)  { return p.rx.Read(b) }
func (p *StreamPort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *StreamPort) Buffered() int               { return p.rx.Buffered() }

// Pump reads the stream until it fails or ctx is done. It must be the only
// writer to the FIFO. Reads are sized to the free space, so a full FIFO
// applies back-pressure instead of dropping bytes.
func (p *StreamPort) Pump(ctx context.Context) error {
	var buf [64]byte
	for {
		free := p.rx.Free()
		if free == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
			continue
		}
		if free > len(buf) {
			free = len(buf)
		}

		n, err := p.r.Read(buf[:free])
		if n > 0 {
			p.rx.Write(buf[:n])
		}
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
