// Package mux multiplexes prioritized message streams over one transport
// connection.
//
// Each Channel is driven by a worker goroutine that owns every piece of
// mutable protocol state: the stream registry, the priority manager, the
// reassembler and the outbox. Callers reach it only through a command
// mailbox and per stream receive queues.
package mux

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/progrium/qnet-go/internal/queue"
	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/observability"
	"github.com/progrium/qnet-go/transport"
)

var (
	// Magic opens every handshake.
	Magic = [7]byte{'Q', 'N', 'E', 'T', 'M', 'U', 'X'}
	// Version is the protocol version. Peers must agree on major and minor.
	Version = [3]uint32{0, 6, 0}
)

// Stream ids are allocated from disjoint halves so both sides can open
// streams without coordination.
const (
	StreamIDOffsetInitiator uint64 = 0
	StreamIDOffsetResponder uint64 = 1 << 63
)

// Identity is what a side tells its peer in the Init frame.
type Identity struct {
	Pid    [16]byte
	Secret [16]byte
}

type State int32

const (
	AwaitingHandshake State = iota
	Established
	ShuttingDown
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingHandshake:
		return "awaiting_handshake"
	case Established:
		return "established"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Channel runs the protocol over a single transport connection.
type Channel struct {
	id        string
	conn      transport.Conn
	kind      transport.Kind
	initiator bool
	local     Identity
	cfg       Config
	log       *zap.Logger
	metrics   *observability.Metrics

	cmds     *queue.Queue[command]
	accepted *queue.Queue[*Stream]
	frames   chan frame.Frame
	readErr  chan error

	state       atomic.Int32
	established chan struct{}
	stop        chan struct{}
	stopOnce    sync.Once
	done        chan struct{}

	mu     sync.Mutex
	remote Identity
	err    error

	w worker
}

// NewChannel starts running the protocol on conn. The initiator is the
// side that dialed. Handshake waits for the peer to answer.
func NewChannel(conn transport.Conn, initiator bool, local Identity, cfg Config) *Channel {
	cfg = cfg.withDefaults()
	c := &Channel{
		id:          xid.New().String(),
		conn:        conn,
		kind:        conn.Kind(),
		initiator:   initiator,
		local:       local,
		cfg:         cfg,
		metrics:     cfg.Metrics,
		cmds:        queue.New[command](),
		accepted:    queue.New[*Stream](),
		frames:      make(chan frame.Frame, 256),
		readErr:     make(chan error, 1),
		established: make(chan struct{}),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.log = cfg.Logger.With(
		zap.String("cid", c.id),
		zap.Stringer("kind", c.kind),
		zap.String("remote", addrString(conn.RemoteAddr())),
	)
	c.w.init(c)
	c.metrics.ChannelOpened(c.kind.String())
	c.log.Debug("channel created", zap.Bool("initiator", initiator))

	go c.readLoop()
	go c.run()
	return c
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// ID returns the channel id.
func (c *Channel) ID() string {
	return c.id
}

// Kind returns the transport kind the channel runs on.
func (c *Channel) Kind() transport.Kind {
	return c.kind
}

func (c *Channel) State() State {
	return State(c.state.Load())
}

// Remote returns the peer identity. It is zero until the handshake
// completed.
func (c *Channel) Remote() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remote
}

// RemoteAddr returns the transport address of the peer.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Done is closed once the channel is closed.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns why the channel closed. It is nil while the channel is open
// and after a graceful shutdown.
func (c *Channel) Err() error {
	select {
	case <-c.done:
	default:
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// closeErr is what operations on a closed channel return.
func (c *Channel) closeErr() error {
	if err := c.Err(); err != nil {
		return err
	}
	return ErrChannelClosed
}

func (c *Channel) sendable() error {
	switch c.State() {
	case ShuttingDown:
		return ErrChannelClosing
	case Closed:
		return c.closeErr()
	}
	return nil
}

// Handshake waits until the peer's handshake and identity arrived.
func (c *Channel) Handshake(ctx context.Context) error {
	select {
	case <-c.established:
		return nil
	case <-c.done:
		return c.closeErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Open registers a new stream and waits for the peer to acknowledge it.
// If ctx ends first the half open stream is closed.
func (c *Channel) Open(ctx context.Context, prio uint8, promises frame.Promises, bandwidth uint64) (*Stream, error) {
	if promises.Has(frame.PromiseEncrypted) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPromise, frame.PromiseEncrypted)
	}
	if c.kind.Datagram() {
		if dropped := promises & (frame.PromiseOrdered | frame.PromiseGuaranteedDelivery); dropped != 0 {
			c.log.Debug("promises not supported by transport", zap.Stringer("promises", dropped))
			promises &^= dropped
		}
	}
	if err := c.Handshake(ctx); err != nil {
		return nil, err
	}
	if err := c.sendable(); err != nil {
		return nil, err
	}

	s := newStream(c, prio, promises, bandwidth)
	if err := c.cmds.Push(cmdOpen{stream: s}); err != nil {
		return nil, c.closeErr()
	}
	select {
	case err := <-s.opened:
		if err != nil {
			return nil, err
		}
		return s, nil
	case <-c.done:
		return nil, c.closeErr()
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
}

// Accept waits for the next stream opened by the peer.
func (c *Channel) Accept(ctx context.Context) (*Stream, error) {
	return c.accepted.Pop(ctx)
}

// Shutdown stops accepting sends, transmits everything already queued,
// tells the peer and waits for the channel to close.
func (c *Channel) Shutdown(ctx context.Context) error {
	if err := c.cmds.Push(cmdShutdown{}); err != nil {
		<-c.done
		return c.Err()
	}
	select {
	case <-c.done:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close tears the channel down without draining.
func (c *Channel) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
		c.conn.Close()
	})
	<-c.done
	return nil
}

func (c *Channel) readLoop() {
	var dec *frame.Decoder
	if c.kind.Datagram() {
		dec = frame.NewDatagramDecoder(c.conn)
	} else {
		dec = frame.NewDecoder(c.conn)
	}
	for {
		f, err := dec.Decode()
		if err != nil {
			if c.kind.Datagram() && isMalformed(err) {
				c.log.Debug("dropping malformed datagram", zap.Error(err))
				c.metrics.Dropped(c.id, "malformed", 1)
				continue
			}
			select {
			case c.readErr <- err:
			case <-c.done:
			}
			return
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

// finish closes the channel. A nil err means a graceful shutdown. It is
// only called by the worker.
func (c *Channel) finish(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.state.Store(int32(Closed))

	c.conn.Close()
	streamErr := err
	if streamErr == nil {
		streamErr = ErrChannelClosed
	}
	c.cmds.Close(streamErr)
	c.accepted.Close(streamErr)
	c.w.release(streamErr)

	reason := "shutdown"
	if err != nil {
		reason = reasonFor(err)
		c.log.Info("channel closed", zap.Error(err))
	} else {
		c.log.Debug("channel closed")
	}
	c.metrics.ChannelClosed(c.id, c.kind.String(), reason)
	close(c.done)
}

func reasonFor(err error) string {
	switch {
	case isProtocolError(err):
		return "protocol_violation"
	case err == ErrChannelClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// tickDuration bounds the budget of a late tick.
func (c *Channel) tickDuration(dt time.Duration) time.Duration {
	if max := 4 * c.cfg.Tick; dt > max {
		return max
	}
	return dt
}
