// Package client talks to a shade controller over a serial port
package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"stepshade/host/serial"
	"stepshade/protocol"
)

// ErrClosed is returned after the connection has been closed
var ErrClosed = errors.New("client closed")

// Client sends commands and delivers the controller's reports
type Client struct {
	port    serial.Port
	reports chan protocol.Report

	wmu sync.Mutex

	mu      sync.Mutex
	readErr error
	closed  bool
	done    chan struct{}
}

// Dial opens the serial device and starts reading reports
func Dial(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	return New(port), nil
}

// New wraps an open port and starts reading reports
func New(port serial.Port) *Client {
	c := &Client{
		port:    port,
		reports: make(chan protocol.Report, 32),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Reports delivers every report in arrival order. It is closed when the
// port fails or the client is closed.
func (c *Client) Reports() <-chan protocol.Report {
	return c.reports
}

// Err returns the error that stopped the reader, if any
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}

func (c *Client) readLoop() {
	defer close(c.reports)
	for {
		r, err := protocol.ReadReport(c.port)
		switch {
		case errors.Is(err, protocol.ErrDecode):
			// The frame was intact, so the stream is still in sync
			log.Printf("client: dropping report: %v", err)
			continue
		case err != nil:
			c.mu.Lock()
			if !c.closed {
				c.readErr = err
			}
			c.mu.Unlock()
			return
		}

		select {
		case c.reports <- r:
		case <-c.done:
			return
		}
	}
}

// Send frames and writes one command
func (c *Client) Send(cmd protocol.Command) error {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.port.Write(frame); err != nil {
		return fmt.Errorf("%w: %w", protocol.ErrTransport, err)
	}
	return nil
}

// Home walks the channel to its fully open limit
func (c *Client) Home(channel uint8) error {
	return c.Send(protocol.Home{Channel: channel})
}

// Setup reconfigures a channel
func (c *Client) Setup(s protocol.Setup) error {
	return c.Send(s)
}

// Set commands a position and/or tilt; nil leaves that axis alone
func (c *Client) Set(channel uint8, position *uint8, tilt *int8) error {
	return c.Send(protocol.Set{Channel: channel, Position: position, Tilt: tilt})
}

// Get requests a position report
func (c *Client) Get(channel uint8) error {
	return c.Send(protocol.Get{Channel: channel})
}

// StallGuardResult requests a load measurement
func (c *Client) StallGuardResult(channel uint8) error {
	return c.Send(protocol.GetStallGuardResult{Channel: channel})
}

// Reset sends the zero-length frame that restarts the controller
func (c *Client) Reset() error {
	return c.write(protocol.ResetFrame())
}

// WaitFor returns the first report accepted by match, discarding the rest
func (c *Client) WaitFor(ctx context.Context, match func(protocol.Report) bool) (protocol.Report, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r, ok := <-c.reports:
			if !ok {
				if err := c.Err(); err != nil {
					return nil, err
				}
				return nil, ErrClosed
			}
			if match(r) {
				return r, nil
			}
		}
	}
}

// Close stops the reader and closes the port
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()
	return c.port.Close()
}
