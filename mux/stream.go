package mux

import (
	"context"
	"sync/atomic"

	"github.com/progrium/qnet-go/internal/queue"
	"github.com/progrium/qnet-go/codec"
	"github.com/progrium/qnet-go/mux/frame"
)

// Stream is one logical flow of messages on a Channel. Both sides send
// with the priority, promises and guaranteed bandwidth it was opened with.
type Stream struct {
	ch        *Channel
	id        uint64
	prio      uint8
	promises  frame.Promises
	bandwidth uint64

	recv   *queue.Queue[[]byte]
	closed atomic.Bool
	// opened receives the result of a local open once the peer echoed it
	opened chan error
}

func newStream(ch *Channel, prio uint8, promises frame.Promises, bandwidth uint64) *Stream {
	if prio > frame.MaxPrio {
		prio = frame.MaxPrio
	}
	return &Stream{
		ch:        ch,
		prio:      prio,
		promises:  promises,
		bandwidth: bandwidth,
		recv:      queue.New[[]byte](),
		opened:    make(chan error, 1),
	}
}

// ID returns the stream id, unique within its channel.
func (s *Stream) ID() uint64 {
	return s.id
}

func (s *Stream) Priority() uint8 {
	return s.prio
}

func (s *Stream) Promises() frame.Promises {
	return s.promises
}

// GuaranteedBandwidth is the bytes per second reserved for the stream.
func (s *Stream) GuaranteedBandwidth() uint64 {
	return s.bandwidth
}

// Channel returns the channel carrying the stream.
func (s *Stream) Channel() *Channel {
	return s.ch
}

// Send serializes v with the channel codec and queues it.
func (s *Stream) Send(v interface{}) error {
	b, err := codec.Marshal(s.ch.cfg.Codec, v)
	if err != nil {
		return err
	}
	return s.send(b)
}

// SendRaw queues a copy of b. It never waits for the message to be
// transmitted.
func (s *Stream) SendRaw(b []byte) error {
	return s.send(append([]byte(nil), b...))
}

func (s *Stream) send(b []byte) error {
	if s.closed.Load() {
		return ErrStreamClosed
	}
	if err := s.ch.sendable(); err != nil {
		return err
	}
	if err := s.ch.cmds.Push(cmdSend{stream: s, payload: b}); err != nil {
		return s.ch.closeErr()
	}
	return nil
}

// RecvRaw waits for the next complete message.
func (s *Stream) RecvRaw(ctx context.Context) ([]byte, error) {
	return s.recv.Pop(ctx)
}

// Recv waits for the next complete message and decodes it into v.
func (s *Stream) Recv(ctx context.Context, v interface{}) error {
	b, err := s.RecvRaw(ctx)
	if err != nil {
		return err
	}
	return codec.Unmarshal(s.ch.cfg.Codec, b, v)
}

// Close stops sending on the stream. Messages already queued are still
// transmitted before the peer is told; messages already received stay
// available to Recv.
func (s *Stream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.recv.Close(ErrStreamClosed)
	s.ch.cmds.Push(cmdClose{stream: s})
	return nil
}

// remoteClosed marks the stream closed by the peer.
func (s *Stream) remoteClosed(err error) {
	s.closed.Store(true)
	s.recv.Close(err)
}
