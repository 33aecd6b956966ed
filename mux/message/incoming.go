package message

import (
	"errors"
	"fmt"

	"github.com/progrium/qnet-go/mux/frame"
)

// AllocBlock is the default bound on bytes allocated ahead of received data.
const AllocBlock = 16 << 20

var (
	// ErrUnknownMessage is returned for data whose header was never seen or
	// whose message already completed or was discarded.
	ErrUnknownMessage = errors.New("message: data for unknown message")
	// ErrDuplicateMessage is returned for a second header with a live mid.
	ErrDuplicateMessage = errors.New("message: duplicate message header")
	// ErrOverflow is returned when data exceeds the declared length.
	ErrOverflow = errors.New("message: data exceeds declared length")
	// ErrTooLarge is returned for a header above the configured maximum.
	ErrTooLarge = errors.New("message: declared length too large")
)

// Incoming is a message being reassembled.
type Incoming struct {
	Mid    uint64
	Sid    uint64
	Length uint64
	buf    []byte
}

// Received is the number of payload bytes collected so far.
func (m *Incoming) Received() int {
	return len(m.buf)
}

// Completed is a fully reassembled message.
type Completed struct {
	Mid     uint64
	Sid     uint64
	Payload []byte
}

// Reassembler collects data frames into messages keyed by message id.
type Reassembler struct {
	allocBlock int
	maxSize    uint64
	msgs       map[uint64]*Incoming
}

// NewReassembler returns a Reassembler that never allocates more than
// allocBlock bytes ahead of received data. A maxSize of 0 accepts any
// declared length.
func NewReassembler(allocBlock int, maxSize uint64) *Reassembler {
	if allocBlock <= 0 {
		allocBlock = AllocBlock
	}
	return &Reassembler{
		allocBlock: allocBlock,
		maxSize:    maxSize,
		msgs:       make(map[uint64]*Incoming),
	}
}

// Header registers a new message. A zero length message completes at once.
func (r *Reassembler) Header(h frame.DataHeader) (*Completed, error) {
	if _, ok := r.msgs[h.Mid]; ok {
		return nil, fmt.Errorf("%w: mid %d", ErrDuplicateMessage, h.Mid)
	}
	if r.maxSize > 0 && h.Length > r.maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, h.Length)
	}
	if h.Length == 0 {
		return &Completed{Mid: h.Mid, Sid: h.Sid, Payload: []byte{}}, nil
	}
	r.msgs[h.Mid] = &Incoming{
		Mid:    h.Mid,
		Sid:    h.Sid,
		Length: h.Length,
		buf:    make([]byte, 0, r.capFor(0, h.Length)),
	}
	return nil, nil
}

// Data appends a data frame to its message and returns the message once
// the declared length is reached.
func (r *Reassembler) Data(d frame.Data) (*Completed, error) {
	m, ok := r.msgs[d.Mid]
	if !ok {
		return nil, fmt.Errorf("%w: mid %d", ErrUnknownMessage, d.Mid)
	}
	if uint64(len(m.buf))+uint64(len(d.Data)) > m.Length {
		delete(r.msgs, d.Mid)
		return nil, fmt.Errorf("%w: mid %d", ErrOverflow, d.Mid)
	}
	if len(m.buf)+len(d.Data) > cap(m.buf) {
		grown := make([]byte, len(m.buf), r.capFor(len(m.buf)+len(d.Data), m.Length))
		copy(grown, m.buf)
		m.buf = grown
	}
	m.buf = append(m.buf, d.Data...)
	if uint64(len(m.buf)) < m.Length {
		return nil, nil
	}
	delete(r.msgs, d.Mid)
	return &Completed{Mid: m.Mid, Sid: m.Sid, Payload: m.buf}, nil
}

// capFor returns the capacity for a buffer that must hold need bytes of a
// message of the given length: need plus at most one alloc block, never
// more than the declared length.
func (r *Reassembler) capFor(need int, length uint64) int {
	c := uint64(need) + uint64(r.allocBlock)
	if need == 0 {
		c = uint64(r.allocBlock)
	}
	if c > length {
		c = length
	}
	return int(c)
}

// DiscardStream drops every incomplete message of a stream and returns how
// many were dropped.
func (r *Reassembler) DiscardStream(sid uint64) int {
	n := 0
	for mid, m := range r.msgs {
		if m.Sid == sid {
			delete(r.msgs, mid)
			n++
		}
	}
	return n
}

// Pending returns the message registered under mid, if any.
func (r *Reassembler) Pending(mid uint64) (*Incoming, bool) {
	m, ok := r.msgs[mid]
	return m, ok
}

// Len is the number of incomplete messages.
func (r *Reassembler) Len() int {
	return len(r.msgs)
}
