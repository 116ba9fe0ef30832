package tmc2209

import (
	"errors"
	"sync"
	"time"

	"tinygo.org/x/drivers"
)

// DefaultReplyTimeout bounds the wait for a read reply
const DefaultReplyTimeout = 50 * time.Millisecond

var ErrTimeout = errors.New("tmc2209: reply timeout")

// Bus is a single-wire UART line shared by up to four drivers
type Bus struct {
	mu         sync.Mutex
	uart       drivers.UART
	halfDuplex bool // Transmitted bytes are echoed back on RX and must be discarded
	timeout    time.Duration
}

// NewBus wraps a UART. Set halfDuplex when TX and RX are tied together
// without hardware echo suppression, as on RP2040 boards.
func NewBus(uart drivers.UART, halfDuplex bool) *Bus {
	return &Bus{uart: uart, halfDuplex: halfDuplex, timeout: DefaultReplyTimeout}
}

// SetTimeout changes the reply timeout
func (b *Bus) SetTimeout(d time.Duration) {
	b.mu.Lock()
	b.timeout = d
	b.mu.Unlock()
}

// WriteRegister writes a register on the driver at addr
func (b *Bus) WriteRegister(addr, reg uint8, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := EncodeWrite(addr, reg, value)
	return b.send(d[:])
}

// ReadRegister requests a register from the driver at addr and waits for the reply
func (b *Bus) ReadRegister(addr, reg uint8) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.drain()
	req := EncodeReadRequest(addr, reg)
	if err := b.send(req[:]); err != nil {
		return 0, err
	}

	var reply [READ_REPLY_LEN]byte
	if err := b.readFull(reply[:]); err != nil {
		return 0, err
	}
	return DecodeReadReply(reg, reply[:])
}

// send writes a datagram and sinks its echo on half-duplex lines
func (b *Bus) send(d []byte) error {
	if _, err := b.uart.Write(d); err != nil {
		return err
	}
	if b.halfDuplex {
		echo := make([]byte, len(d))
		return b.readFull(echo)
	}
	return nil
}

// readFull polls the UART until buf is filled or the timeout expires
func (b *Bus) readFull(buf []byte) error {
	deadline := time.Now().Add(b.timeout)
	n := 0
	for n < len(buf) {
		if b.uart.Buffered() == 0 {
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(time.Millisecond)
			continue
		}
		m, err := b.uart.Read(buf[n:])
		if err != nil {
			return err
		}
		n += m
	}
	return nil
}

// drain discards stale bytes left from an earlier timed-out exchange
func (b *Bus) drain() {
	var scratch [16]byte
	for b.uart.Buffered() > 0 {
		if n, err := b.uart.Read(scratch[:]); n == 0 || err != nil {
			return
		}
	}
}
