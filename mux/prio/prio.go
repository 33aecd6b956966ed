// Package prio decides which frames go on the wire each scheduling tick.
//
// Every tick gets a byte budget of bandwidth*dt. Streams first spend their
// guaranteed share, carried as a per stream deficit like a DRR queue. What
// is left is split evenly among the streams of each priority tier, tiers
// visited from 0 upwards.
package prio

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/mux/message"
	"github.com/progrium/qnet-go/observability"
)

var (
	ErrUnknownStream = errors.New("prio: unknown stream")
	ErrStreamExists  = errors.New("prio: stream already registered")
)

// Grabbed is a frame selected for the wire.
type Grabbed struct {
	Sid   uint64
	Frame frame.Frame
}

type stream struct {
	sid        uint64
	prio       uint8
	guaranteed uint64
	queue      []*message.Outgoing
	// credit is the guaranteed budget left; negative after overshooting
	// with a frame larger than what remained.
	credit int64
}

func (s *stream) nextCost() int {
	for len(s.queue) > 0 {
		if c := s.queue[0].NextCost(); c > 0 {
			return c
		}
		s.pop()
	}
	return 0
}

func (s *stream) next() frame.Frame {
	msg := s.queue[0]
	f, _ := msg.Next()
	if msg.Done() {
		s.pop()
	}
	return f
}

func (s *stream) pop() {
	s.queue[0] = nil
	s.queue = s.queue[1:]
}

// Manager owns the outgoing queues of one channel. It is not safe for
// concurrent use; the channel worker is its only caller.
type Manager struct {
	cid     string
	metrics *observability.Metrics

	streams map[uint64]*stream
	sids    []uint64
	rr      [frame.MaxPrio + 1]int
	carry   uint64
}

func New(cid string, metrics *observability.Metrics) *Manager {
	return &Manager{
		cid:     cid,
		metrics: metrics,
		streams: make(map[uint64]*stream),
	}
}

// OpenStream registers a stream. prio is clamped to frame.MaxPrio.
func (m *Manager) OpenStream(sid uint64, prio uint8, guaranteed uint64) error {
	if _, ok := m.streams[sid]; ok {
		return fmt.Errorf("%w: %d", ErrStreamExists, sid)
	}
	if prio > frame.MaxPrio {
		prio = frame.MaxPrio
	}
	m.streams[sid] = &stream{sid: sid, prio: prio, guaranteed: guaranteed}
	i := sort.Search(len(m.sids), func(i int) bool { return m.sids[i] >= sid })
	m.sids = append(m.sids, 0)
	copy(m.sids[i+1:], m.sids[i:])
	m.sids[i] = sid
	return nil
}

// Enqueue appends a message to its stream's queue.
func (m *Manager) Enqueue(msg *message.Outgoing) error {
	s, ok := m.streams[msg.Sid]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownStream, msg.Sid)
	}
	s.queue = append(s.queue, msg)
	return nil
}

// TryCloseStream removes a stream if its queue is empty and reports
// whether the stream is gone. A stream with queued messages is left
// untouched.
func (m *Manager) TryCloseStream(sid uint64) bool {
	s, ok := m.streams[sid]
	if !ok {
		return true
	}
	if s.nextCost() > 0 {
		return false
	}
	m.remove(sid)
	return true
}

// DropStream removes a stream together with its queued messages and
// returns the number of messages dropped.
func (m *Manager) DropStream(sid uint64) int {
	s, ok := m.streams[sid]
	if !ok {
		return 0
	}
	n := len(s.queue)
	m.remove(sid)
	return n
}

func (m *Manager) remove(sid uint64) {
	delete(m.streams, sid)
	i := sort.Search(len(m.sids), func(i int) bool { return m.sids[i] >= sid })
	if i < len(m.sids) && m.sids[i] == sid {
		m.sids = append(m.sids[:i], m.sids[i+1:]...)
	}
}

// Has reports whether sid is registered.
func (m *Manager) Has(sid uint64) bool {
	_, ok := m.streams[sid]
	return ok
}

// Queued is the number of unfinished messages of a stream.
func (m *Manager) Queued(sid uint64) int {
	if s, ok := m.streams[sid]; ok {
		return len(s.queue)
	}
	return 0
}

// Len is the number of unfinished messages across all streams.
func (m *Manager) Len() int {
	n := 0
	for _, s := range m.streams {
		n += len(s.queue)
	}
	return n
}

// Empty reports whether no stream has anything left to send.
func (m *Manager) Empty() bool {
	for _, s := range m.streams {
		if s.nextCost() > 0 {
			return false
		}
	}
	return true
}

// Grab selects the frames to send for a tick of length dt at the given
// bandwidth in bytes per second. It returns the frames in wire order and
// the bytes they cost.
func (m *Manager) Grab(bandwidth uint64, dt time.Duration) ([]Grabbed, uint64) {
	total := mulDiv(bandwidth, dt)
	if total > math.MaxUint64-m.carry {
		total = math.MaxUint64
	} else {
		total += m.carry
	}
	var out []Grabbed
	var cur uint64

	emit := func(s *stream) uint64 {
		cost := uint64(s.nextCost())
		out = append(out, Grabbed{Sid: s.sid, Frame: s.next()})
		cur += cost
		return cost
	}
	fits := func(s *stream) bool {
		c := s.nextCost()
		return c > 0 && uint64(c) <= total-cur
	}

	// guaranteed pass
	for _, sid := range m.sids {
		s := m.streams[sid]
		if s.guaranteed == 0 {
			continue
		}
		if s.nextCost() == 0 {
			if s.credit > 0 {
				s.credit = 0
			}
			continue
		}
		budget := int64(mulDiv(s.guaranteed, dt))
		if budget < 0 || budget > math.MaxInt64/2 {
			budget = math.MaxInt64 / 2
		}
		s.credit += budget
		if s.credit > budget {
			s.credit = budget
		}
		for s.credit > 0 && fits(s) {
			s.credit -= int64(emit(s))
		}
	}

	// fair share pass
	var tier []*stream
	for p := 0; p <= frame.MaxPrio && cur < total; p++ {
		tier = tier[:0]
		for _, sid := range m.sids {
			if s := m.streams[sid]; int(s.prio) == p && s.nextCost() > 0 {
				tier = append(tier, s)
			}
		}
		if len(tier) == 0 {
			continue
		}
		share := (total - cur) / uint64(len(tier))
		if share == 0 {
			share = 1
		}
		start := m.rr[p] % len(tier)
		for i := range tier {
			s := tier[(start+i)%len(tier)]
			var spent uint64
			for spent < share && fits(s) {
				spent += emit(s)
			}
		}
		m.rr[p] = start + 1
	}

	// bank the budget only while nothing fit at all, so a channel slower
	// than one frame per tick still moves
	if cur == 0 && !m.Empty() {
		m.carry = total
		if m.carry > frame.MaxFrameSize {
			m.carry = frame.MaxFrameSize
		}
	} else {
		m.carry = 0
	}

	m.metrics.ScheduledBytes(m.cid, cur)
	m.metrics.QueueDepth(m.cid, m.Len())
	return out, cur
}

// mulDiv returns rate*dt in bytes, saturating on overflow.
func mulDiv(rate uint64, dt time.Duration) uint64 {
	if dt <= 0 || rate == 0 {
		return 0
	}
	hi, lo := bits.Mul64(rate, uint64(dt))
	if hi >= uint64(time.Second) {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, uint64(time.Second))
	return q
}
