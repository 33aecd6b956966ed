package mux

import (
	"github.com/progrium/qnet-go/transport"
)

// streamSegmentSize is how many encoded bytes are coalesced into one write
// on stream transports.
const streamSegmentSize = 64 * 1024

// outbox holds encoded frames waiting for the transport, as segments
// passed to Write one at a time. On datagram transports a segment is one
// datagram holding whole frames.
type outbox struct {
	segs  [][]byte
	limit int
	// total counts every byte ever queued
	total int
}

func newOutbox(kind transport.Kind) *outbox {
	o := &outbox{limit: streamSegmentSize}
	if kind.Datagram() {
		o.limit = transport.MaxDatagramSize
	}
	return o
}

// Write queues one encoded frame.
func (o *outbox) Write(p []byte) (int, error) {
	o.total += len(p)
	if n := len(o.segs); n > 0 && len(o.segs[n-1])+len(p) <= o.limit {
		o.segs[n-1] = append(o.segs[n-1], p...)
		return len(p), nil
	}
	seg := make([]byte, len(p), max(len(p), o.limit))
	copy(seg, p)
	o.segs = append(o.segs, seg)
	return len(p), nil
}

func (o *outbox) empty() bool {
	return len(o.segs) == 0
}

func (o *outbox) head() []byte {
	return o.segs[0]
}

// consume drops n written bytes from the head segment. The unwritten rest
// stays at the head.
func (o *outbox) consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(o.segs[0]) {
		o.segs[0] = nil
		o.segs = o.segs[1:]
		return
	}
	o.segs[0] = o.segs[0][n:]
}

// Len is the number of bytes waiting.
func (o *outbox) Len() int {
	n := 0
	for _, s := range o.segs {
		n += len(s)
	}
	return n
}
