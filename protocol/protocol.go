// Package protocol implements the host link: length-prefixed JSON command
// frames in, length-prefixed JSON report frames out.
package protocol

import "errors"

// Version represents the stepshade firmware version
const Version = "0.1.0"

// Framing constants
const (
	MessageMax      = 256 // Largest frame including the length byte
	MessageHeader   = 1   // Length byte
	MessageTrailer  = 2   // CR LF after each report
	MaxPayload      = 255 // Largest inbound JSON payload
	MaxReportLength = 255 - MessageTrailer
)

// Error taxonomy. Every error returned by this package wraps one of these.
var (
	// ErrTransport is a read or write failure on the byte stream
	ErrTransport = errors.New("transport error")

	// ErrFraming is a frame whose payload did not arrive in time
	ErrFraming = errors.New("framing error")

	// ErrDecode is a payload that is not a valid command
	ErrDecode = errors.New("decode error")

	// ErrEncode is a report that does not fit in a frame
	ErrEncode = errors.New("encode error")

	// ErrHostReset is returned after a zero-length frame requested a reset
	ErrHostReset = errors.New("host requested reset")
)
