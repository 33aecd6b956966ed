// Package message splits messages into frames and puts them back together.
package message

import (
	"github.com/progrium/qnet-go/mux/frame"
)

// Outgoing is a message being fragmented into frames. The payload must not
// change once the message is created.
type Outgoing struct {
	Mid uint64
	Sid uint64

	payload    []byte
	cursor     int
	headerSent bool
}

func NewOutgoing(payload []byte, mid, sid uint64) *Outgoing {
	return &Outgoing{
		Mid:     mid,
		Sid:     sid,
		payload: payload,
	}
}

// Len is the total payload length announced in the header.
func (m *Outgoing) Len() int {
	return len(m.payload)
}

// Remaining is the number of payload bytes not yet emitted.
func (m *Outgoing) Remaining() int {
	return len(m.payload) - m.cursor
}

// Done reports whether every frame of the message was emitted.
func (m *Outgoing) Done() bool {
	return m.headerSent && m.cursor == len(m.payload)
}

// NextCost is the cost of the frame Next would return, or 0 when done.
func (m *Outgoing) NextCost() int {
	if !m.headerSent {
		return frame.DataHeader{}.Cost()
	}
	n := m.Remaining()
	if n == 0 {
		return 0
	}
	if n > frame.MaxDataSize {
		n = frame.MaxDataSize
	}
	return frame.DataCost(n)
}

// Next returns the next frame of the message: the header first, then data
// frames of at most frame.MaxDataSize bytes. It returns false once the
// payload is exhausted.
func (m *Outgoing) Next() (frame.Frame, bool) {
	if !m.headerSent {
		m.headerSent = true
		return frame.DataHeader{
			Mid:    m.Mid,
			Sid:    m.Sid,
			Length: uint64(len(m.payload)),
		}, true
	}
	n := m.Remaining()
	if n == 0 {
		return nil, false
	}
	if n > frame.MaxDataSize {
		n = frame.MaxDataSize
	}
	data := m.payload[m.cursor : m.cursor+n]
	m.cursor += n
	return frame.Data{Mid: m.Mid, Data: data}, true
}
