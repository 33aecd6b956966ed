package mux

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/mux/message"
	"github.com/progrium/qnet-go/mux/prio"
	"github.com/progrium/qnet-go/transport"
)

type command interface{}

type cmdOpen struct {
	stream *Stream
}

type cmdSend struct {
	stream  *Stream
	payload []byte
}

type cmdClose struct {
	stream *Stream
}

type cmdShutdown struct{}

// worker is the protocol state of a channel. Only the run goroutine
// touches it.
type worker struct {
	c *Channel

	prio    *prio.Manager
	reasm   *message.Reassembler
	streams map[uint64]*Stream
	pending map[uint64]*Stream
	retired map[uint64]struct{}
	closing []*Stream

	nextSid uint64
	nextMid uint64

	out *outbox
	enc *frame.Encoder

	started        time.Time
	gotHandshake   bool
	localShutdown  bool
	remoteShutdown bool
	shutdownSent   bool
	hangUp         bool
}

func (w *worker) init(c *Channel) {
	w.c = c
	w.prio = prio.New(c.id, c.metrics)
	w.reasm = message.NewReassembler(c.cfg.AllocBlock, c.cfg.MaxMessageSize)
	w.streams = make(map[uint64]*Stream)
	w.pending = make(map[uint64]*Stream)
	w.retired = make(map[uint64]struct{})
	w.nextSid = StreamIDOffsetResponder
	if c.initiator {
		w.nextSid = StreamIDOffsetInitiator
	}
	w.out = newOutbox(c.kind)
	w.enc = frame.NewEncoder(w.out)
	w.started = time.Now()

	w.emit(frame.Handshake{Magic: Magic, Version: Version})
	w.emit(frame.Init{Pid: c.local.Pid, Secret: c.local.Secret})
}

// ours reports whether sid was allocated by this side.
func (w *worker) ours(sid uint64) bool {
	return (sid < StreamIDOffsetResponder) == w.c.initiator
}

func (w *worker) emit(f frame.Frame) {
	before := w.out.total
	w.enc.Encode(f)
	w.c.metrics.FrameOut(w.c.id, frame.TagName(f.Tag()), w.out.total-before)
}

func (c *Channel) run() {
	w := &c.w
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()
	last := time.Now()

	for {
		var err error
		select {
		case <-c.stop:
			c.finish(ErrChannelClosed)
			return

		case <-c.cmds.Notify():
			for _, cmd := range c.cmds.Drain() {
				w.handleCommand(cmd)
			}

		case f := <-c.frames:
			err = w.handleFrame(f)

		case rerr := <-c.readErr:
			// frames read before the error come first
			err = w.pendingFrames()
			if err == nil {
				err = w.readFailed(rerr)
			}

		case now := <-ticker.C:
			dt := c.tickDuration(now.Sub(last))
			last = now
			err = w.tick(now, dt)
		}

		if err == nil {
			err = w.flush()
		}
		if err == nil && w.finished() {
			c.finish(nil)
			return
		}
		if err != nil {
			if errors.Is(err, errGraceful) {
				err = nil
			}
			c.finish(err)
			return
		}
	}
}

func (w *worker) pendingFrames() error {
	for {
		select {
		case f := <-w.c.frames:
			if err := w.handleFrame(f); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// errGraceful ends the worker without an error.
var errGraceful = errors.New("graceful close")

func (w *worker) handleCommand(cmd command) {
	c := w.c
	switch cmd := cmd.(type) {
	case cmdOpen:
		s := cmd.stream
		if c.State() != Established {
			s.opened <- ErrChannelClosing
			return
		}
		s.id = w.nextSid
		w.nextSid++
		if err := w.prio.OpenStream(s.id, s.prio, s.bandwidth); err != nil {
			s.opened <- err
			return
		}
		w.streams[s.id] = s
		w.pending[s.id] = s
		c.metrics.StreamOpened(c.id)
		w.emit(frame.OpenStream{Sid: s.id, Prio: s.prio, Promises: s.promises, Bandwidth: s.bandwidth})

	case cmdSend:
		s := cmd.stream
		if w.streams[s.id] != s {
			c.metrics.Dropped(c.id, "closed_stream", 1)
			return
		}
		payload := message.Seal(cmd.payload, s.promises)
		msg := message.NewOutgoing(payload, w.nextMid, s.id)
		w.nextMid++
		if err := w.prio.Enqueue(msg); err != nil {
			c.log.Warn("enqueue failed", zap.Uint64("sid", s.id), zap.Error(err))
			return
		}
		c.metrics.MessageOut(c.id, s.id, len(payload))

	case cmdClose:
		s := cmd.stream
		if w.streams[s.id] != s {
			return
		}
		if _, ok := w.pending[s.id]; ok {
			delete(w.pending, s.id)
			s.opened <- ErrStreamClosed
		}
		for _, cs := range w.closing {
			if cs == s {
				return
			}
		}
		w.closing = append(w.closing, s)

	case cmdShutdown:
		if c.State() == AwaitingHandshake {
			// nothing was exchanged yet, so there is nothing to drain
			w.localShutdown = true
			w.shutdownSent = true
			w.hangUp = true
			c.state.Store(int32(ShuttingDown))
			return
		}
		if !w.localShutdown {
			w.localShutdown = true
			c.state.Store(int32(ShuttingDown))
			c.log.Debug("shutting down")
		}
	}
}

func (w *worker) handleFrame(f frame.Frame) error {
	c := w.c
	c.metrics.FrameIn(c.id, frame.TagName(f.Tag()), f.Cost())

	if c.State() == AwaitingHandshake {
		return w.handshakeFrame(f)
	}

	switch f := f.(type) {
	case frame.OpenStream:
		return w.remoteOpen(f)

	case frame.CloseStream:
		return w.remoteClose(f.Sid)

	case frame.DataHeader:
		s, err := w.lookup(f.Sid)
		if err != nil || s == nil {
			return err
		}
		done, err := w.reasm.Header(f)
		if err != nil {
			return w.reassemblyFailed(err)
		}
		w.deliver(done)

	case frame.Data:
		done, err := w.reasm.Data(f)
		if err != nil {
			return w.reassemblyFailed(err)
		}
		w.deliver(done)

	case frame.Shutdown:
		if !w.remoteShutdown {
			w.remoteShutdown = true
			c.state.Store(int32(ShuttingDown))
			c.log.Debug("peer shutting down")
		}

	case frame.Raw:
		c.log.Warn("peer says", zap.ByteString("raw", f.Data))

	case frame.Handshake, frame.Init:
		return fmt.Errorf("%w: repeated %s", ErrProtocolViolation, frame.TagName(f.Tag()))
	}
	return nil
}

func (w *worker) handshakeFrame(f frame.Frame) error {
	c := w.c
	switch f := f.(type) {
	case frame.Handshake:
		if w.gotHandshake {
			return fmt.Errorf("%w: repeated handshake", ErrProtocolViolation)
		}
		if f.Magic != Magic {
			return w.reject(fmt.Errorf("%w: %q", ErrWrongMagic, f.Magic[:]))
		}
		if f.Version[0] != Version[0] || f.Version[1] != Version[1] {
			return w.reject(fmt.Errorf("%w: peer %d.%d.%d, local %d.%d.%d", ErrIncompatibleVersion,
				f.Version[0], f.Version[1], f.Version[2], Version[0], Version[1], Version[2]))
		}
		w.gotHandshake = true
		return nil

	case frame.Init:
		if !w.gotHandshake {
			return fmt.Errorf("%w: init before handshake", ErrProtocolViolation)
		}
		c.mu.Lock()
		c.remote = Identity{Pid: f.Pid, Secret: f.Secret}
		c.mu.Unlock()
		c.state.Store(int32(Established))
		close(c.established)
		c.log.Debug("channel established")
		return nil

	case frame.Raw:
		return fmt.Errorf("%w: rejected by peer: %s", ErrProtocolViolation, f.Data)

	default:
		return fmt.Errorf("%w: %s before handshake", ErrProtocolViolation, frame.TagName(f.Tag()))
	}
}

// reject tells the peer why before failing with err.
func (w *worker) reject(err error) error {
	w.emit(frame.Raw{Data: []byte(err.Error())})
	if ferr := w.flushWithin(rejectTimeout); ferr != nil {
		w.c.log.Debug("could not send rejection", zap.Error(ferr))
	}
	return err
}

func (w *worker) remoteOpen(f frame.OpenStream) error {
	c := w.c
	if w.ours(f.Sid) {
		if s, ok := w.pending[f.Sid]; ok {
			delete(w.pending, f.Sid)
			s.opened <- nil
			return nil
		}
		if _, ok := w.streams[f.Sid]; ok {
			return nil
		}
		if _, ok := w.retired[f.Sid]; ok {
			return nil
		}
		return fmt.Errorf("%w: open echo for %d", ErrUnknownStream, f.Sid)
	}

	if _, ok := w.retired[f.Sid]; ok {
		c.log.Debug("open for retired stream", zap.Uint64("sid", f.Sid))
		return nil
	}
	if _, ok := w.streams[f.Sid]; ok {
		if c.kind.Datagram() {
			return nil
		}
		return fmt.Errorf("%w: stream %d opened twice", ErrProtocolViolation, f.Sid)
	}
	if c.State() != Established {
		c.log.Debug("refusing stream while shutting down", zap.Uint64("sid", f.Sid))
		return nil
	}

	s := newStream(c, f.Prio, f.Promises, f.Bandwidth)
	s.id = f.Sid
	if err := w.prio.OpenStream(s.id, s.prio, s.bandwidth); err != nil {
		return err
	}
	w.streams[s.id] = s
	c.metrics.StreamOpened(c.id)
	w.emit(f)
	if err := c.accepted.Push(s); err != nil {
		return err
	}
	return nil
}

func (w *worker) remoteClose(sid uint64) error {
	c := w.c
	s, ok := w.streams[sid]
	if !ok {
		if _, retired := w.retired[sid]; retired {
			return nil
		}
		return fmt.Errorf("%w: close for %d", ErrUnknownStream, sid)
	}
	dropped := w.prio.DropStream(sid)
	discarded := w.reasm.DiscardStream(sid)
	if dropped+discarded > 0 {
		c.metrics.Dropped(c.id, "closed_stream", dropped+discarded)
		c.log.Debug("peer closed stream with messages in flight",
			zap.Uint64("sid", sid), zap.Int("dropped", dropped), zap.Int("discarded", discarded))
	}
	if _, ok := w.pending[sid]; ok {
		delete(w.pending, sid)
		s.opened <- ErrStreamClosed
	}
	for i, cs := range w.closing {
		if cs == s {
			w.closing = append(w.closing[:i], w.closing[i+1:]...)
			break
		}
	}
	w.retire(s)
	s.remoteClosed(ErrStreamClosed)
	return nil
}

func (w *worker) retire(s *Stream) {
	delete(w.streams, s.id)
	w.retired[s.id] = struct{}{}
	w.c.metrics.StreamClosed(w.c.id)
}

// lookup returns the stream a header names. Frames for retired streams
// return nil without error.
func (w *worker) lookup(sid uint64) (*Stream, error) {
	if s, ok := w.streams[sid]; ok {
		return s, nil
	}
	if _, ok := w.retired[sid]; ok {
		w.c.metrics.Dropped(w.c.id, "retired_stream", 1)
		return nil, nil
	}
	return nil, fmt.Errorf("%w: data for %d", ErrUnknownStream, sid)
}

func (w *worker) reassemblyFailed(err error) error {
	c := w.c
	if errors.Is(err, message.ErrUnknownMessage) || c.kind.Datagram() {
		c.log.Debug("dropping frame", zap.Error(err))
		c.metrics.Dropped(c.id, "reassembly", 1)
		return nil
	}
	return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
}

func (w *worker) deliver(done *message.Completed) {
	if done == nil {
		return
	}
	c := w.c
	s, ok := w.streams[done.Sid]
	if !ok {
		c.metrics.Dropped(c.id, "retired_stream", 1)
		return
	}
	payload, err := message.Unseal(done.Payload, s.promises)
	if err != nil {
		c.log.Warn("dropping message", zap.Uint64("sid", s.id), zap.Uint64("mid", done.Mid), zap.Error(err))
		c.metrics.Dropped(c.id, "corrupt", 1)
		return
	}
	if err := s.recv.Push(payload); err != nil {
		c.metrics.Dropped(c.id, "closed_stream", 1)
		return
	}
	c.metrics.MessageIn(c.id, s.id, len(payload))
}

func (w *worker) readFailed(err error) error {
	if isMalformed(err) {
		return fmt.Errorf("%w: %v", ErrProtocolViolation, err)
	}
	return w.terminal(err)
}

// terminal classifies a transport error that ends the channel.
func (w *worker) terminal(err error) error {
	select {
	case <-w.c.stop:
		return ErrChannelClosed
	default:
	}
	// the peer may hang up once our Shutdown is out, not before
	if w.shutdownSent {
		return errGraceful
	}
	if err == io.EOF {
		return ErrParticipantDisconnected
	}
	return fmt.Errorf("%w: %v", ErrParticipantDisconnected, err)
}

func (w *worker) tick(now time.Time, dt time.Duration) error {
	c := w.c
	if c.State() == AwaitingHandshake {
		if now.Sub(w.started) > c.cfg.HandshakeTimeout {
			return fmt.Errorf("%w: no handshake after %s", ErrProtocolViolation, c.cfg.HandshakeTimeout)
		}
		return nil
	}

	grabbed, _ := w.prio.Grab(c.cfg.Bandwidth, dt)
	for _, g := range grabbed {
		w.emit(g.Frame)
	}

	// held back closes go out once their queue drained
	kept := w.closing[:0]
	for _, s := range w.closing {
		if !w.prio.TryCloseStream(s.id) {
			kept = append(kept, s)
			continue
		}
		w.reasm.DiscardStream(s.id)
		w.emit(frame.CloseStream{Sid: s.id})
		w.retire(s)
	}
	w.closing = kept

	// a peer's Shutdown is answered with ours once we drained too
	if (w.localShutdown || w.remoteShutdown) && !w.shutdownSent && w.prio.Empty() && len(w.closing) == 0 {
		w.emit(frame.Shutdown{})
		w.shutdownSent = true
	}
	return nil
}

// finished reports whether a shutdown completed: both sides sent
// Shutdown and ours is flushed. Without the peer's answer the channel
// stays open until it hangs up.
func (w *worker) finished() bool {
	if w.c.State() != ShuttingDown || !w.out.empty() {
		return false
	}
	return w.hangUp || (w.shutdownSent && w.remoteShutdown)
}

// rejectTimeout bounds the attempt to tell a rejected peer why.
const rejectTimeout = 250 * time.Millisecond

// flush writes as much of the outbox as the transport takes without
// blocking.
func (w *worker) flush() error {
	return w.flushWithin(w.c.cfg.WriteTimeout)
}

func (w *worker) flushWithin(timeout time.Duration) error {
	c := w.c
	for !w.out.empty() {
		seg := w.out.head()
		c.conn.SetWriteDeadline(time.Now().Add(timeout))
		n, err := c.conn.Write(seg)
		w.out.consume(n)
		if err == nil && n == len(seg) {
			continue
		}
		if n > 0 {
			c.log.Warn("partial write, requeued remainder", zap.Int("written", n), zap.Int("size", len(seg)))
		}
		if err == nil || transport.WouldBlock(err) {
			return nil
		}
		return w.terminal(err)
	}
	return nil
}

// release fails everything still waiting on the channel.
func (w *worker) release(err error) {
	for sid, s := range w.pending {
		s.opened <- err
		delete(w.pending, sid)
	}
	for _, s := range w.streams {
		s.recv.Close(err)
	}
}

func isMalformed(err error) bool {
	return errors.Is(err, frame.ErrMalformedFrame)
}

func isProtocolError(err error) bool {
	return errors.Is(err, ErrProtocolViolation) ||
		errors.Is(err, ErrWrongMagic) ||
		errors.Is(err, ErrIncompatibleVersion) ||
		errors.Is(err, ErrUnknownStream)
}
