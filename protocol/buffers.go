package protocol

import (
	"errors"
	"sync"
)

// ErrFifoFull is returned when a write does not fit in a FifoBuffer
var ErrFifoFull = errors.New("fifo full")

// ScratchOutput assembles one outbound frame in a fixed-size buffer
type ScratchOutput struct {
	buf [MessageMax + MessageTrailer]byte
	pos int
}

// Output appends data, truncating at the buffer end. Returns the bytes kept.
func (s *ScratchOutput) Output(data []byte) int {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	return n
}

// Update overwrites an already written byte, such as a length placeholder
func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < len(s.buf) {
		s.buf[pos] = val
	}
}

// Result returns the accumulated output data
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Reset clears the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
}

// FifoBuffer is a circular byte buffer between a producer goroutine (USB
// reader, simulator) and the link. It satisfies drivers.UART, so the link
// can read from it like a hardware port.
type FifoBuffer struct {
	mu    sync.Mutex
	buf   []byte
	read  int
	write int
	size  int
}

// NewFifoBuffer creates a new FifoBuffer with the specified capacity
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:  make([]byte, capacity),
		size: capacity,
	}
}

// Write appends data. Bytes that do not fit are dropped and ErrFifoFull
// is returned with the count that was stored.
func (f *FifoBuffer) Write(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	written := 0
	for _, b := range data {
		nextWrite := (f.write + 1) % f.size
		if nextWrite == f.read {
			// Buffer full
			return written, ErrFifoFull
		}
		f.buf[f.write] = b
		f.write = nextWrite
		written++
	}
	return written, nil
}

// Read reads up to len(data) bytes. An empty buffer returns 0, nil.
func (f *FifoBuffer) Read(data []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	read := 0
	for i := range data {
		if f.read == f.write {
			// Buffer empty
			break
		}
		data[i] = f.buf[f.read]
		f.read = (f.read + 1) % f.size
		read++
	}
	return read, nil
}

// Buffered returns the number of bytes available for reading
func (f *FifoBuffer) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available()
}

func (f *FifoBuffer) available() int {
	if f.write >= f.read {
		return f.write - f.read
	}
	return f.size - f.read + f.write
}

// Free returns the number of bytes available for writing
func (f *FifoBuffer) Free() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.size - f.available() - 1
}

// IsEmpty returns true if the buffer is empty
func (f *FifoBuffer) IsEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read == f.write
}

// Reset clears the buffer
func (f *FifoBuffer) Reset() {
	f.mu.Lock()
	f.read = 0
	f.write = 0
	f.mu.Unlock()
}
