// Package frame implements encoding and decoding of qnet wire frames.
//
// Every frame starts with a one byte tag followed by a fixed size body.
// Data and Raw frames append a u16 length and that many bytes. All integers
// are little endian.
package frame

import (
	"errors"
	"fmt"
	"io"
)

var (
	// Debug can be set to get frames as they're encoded and decoded
	Debug io.Writer
)

const (
	TagHandshake byte = iota + 1
	TagInit
	TagShutdown
	TagOpenStream
	TagCloseStream
	TagDataHeader
	TagData
	TagRaw
)

const (
	// MaxDataSize is the largest payload carried by a single Data frame.
	MaxDataSize = 1400
	// MaxPrio is the highest valid stream priority.
	MaxPrio = 7

	// DataOverhead is the fixed part of a Data frame, excluding the tag.
	DataOverhead = 10
	// HeaderOverhead is the flat cost charged for every non-Data frame,
	// excluding the tag. It equals the size of a DataHeader body.
	HeaderOverhead = 24

	handshakeSize   = 19
	initSize        = 32
	shutdownSize    = 0
	openStreamSize  = 18
	closeStreamSize = 8
	dataHeaderSize  = 24
	dataSize        = DataOverhead
	rawSize         = 2

	// MaxFrameSize is the encoded size of the largest Data frame.
	MaxFrameSize = 1 + DataOverhead + MaxDataSize
)

var (
	// ErrMalformedFrame is returned for bytes that cannot be decoded as a frame.
	ErrMalformedFrame = errors.New("frame: malformed frame")
	// ErrShortFrame means the buffer does not hold a whole frame yet.
	// It wraps ErrMalformedFrame.
	ErrShortFrame = fmt.Errorf("%w: short buffer", ErrMalformedFrame)
)

// Frame is a single unit placed on the wire.
type Frame interface {
	Tag() byte
	String() string
	Bytes() []byte
	// Cost is the number of bytes charged against a bandwidth budget.
	Cost() int
}

// TagName returns a short lowercase name for a frame tag.
func TagName(tag byte) string {
	switch tag {
	case TagHandshake:
		return "handshake"
	case TagInit:
		return "init"
	case TagShutdown:
		return "shutdown"
	case TagOpenStream:
		return "open_stream"
	case TagCloseStream:
		return "close_stream"
	case TagDataHeader:
		return "data_header"
	case TagData:
		return "data"
	case TagRaw:
		return "raw"
	default:
		return "unknown"
	}
}

func flatCost() int {
	return HeaderOverhead + 1
}

// bodySize returns the fixed body size following the tag.
func bodySize(tag byte) (int, bool) {
	switch tag {
	case TagHandshake:
		return handshakeSize, true
	case TagInit:
		return initSize, true
	case TagShutdown:
		return shutdownSize, true
	case TagOpenStream:
		return openStreamSize, true
	case TagCloseStream:
		return closeStreamSize, true
	case TagDataHeader:
		return dataHeaderSize, true
	case TagData:
		return dataSize, true
	case TagRaw:
		return rawSize, true
	default:
		return 0, false
	}
}
