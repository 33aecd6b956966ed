// Package talk joins channels into participants. A Network listens and
// dials on any transport. Every channel to the same peer network becomes
// part of one Participant, and streams are opened on its best channel.
package talk

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/progrium/qnet-go/codec"
	"github.com/progrium/qnet-go/config"
	"github.com/progrium/qnet-go/internal/queue"
	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/observability"
	"github.com/progrium/qnet-go/transport"
)

var (
	ErrNetworkClosed  = errors.New("talk: network closed")
	ErrSecretMismatch = errors.New("talk: participant secret mismatch")
	ErrSelfConnect    = errors.New("talk: connected to self")
)

// Option configures a Network.
type Option func(*Network) error

func WithLogger(l *zap.Logger) Option {
	return func(n *Network) error {
		n.log = l
		return nil
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(n *Network) error {
		n.metrics = m
		return nil
	}
}

// WithChannelConfig sets the configuration of every channel. Its Logger
// and Metrics are replaced by the Network's.
func WithChannelConfig(cfg mux.Config) Option {
	return func(n *Network) error {
		n.cfg = cfg
		return nil
	}
}

// WithNetworkConfig applies the channel settings of a loaded config.
func WithNetworkConfig(c config.NetworkConfig) Option {
	return func(n *Network) error {
		cd, err := codec.ByName(c.Codec)
		if err != nil {
			return err
		}
		n.cfg.Bandwidth = uint64(c.Bandwidth)
		n.cfg.Tick = c.Tick
		n.cfg.AllocBlock = int(c.AllocBlock)
		n.cfg.MaxMessageSize = uint64(c.MaxMessageSize)
		n.cfg.WriteTimeout = c.WriteTimeout
		n.cfg.HandshakeTimeout = c.HandshakeTimeout
		n.cfg.Codec = cd
		return nil
	}
}

// Network is the local participant. It owns listeners and every channel
// it dialed or accepted.
type Network struct {
	pid     uuid.UUID
	secret  [16]byte
	cfg     mux.Config
	log     *zap.Logger
	metrics *observability.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	connected *queue.Queue[*Participant]

	mu           sync.Mutex
	closed       bool
	listeners    []transport.Listener
	participants map[uuid.UUID]*Participant
}

// NewNetwork creates a Network with a random participant id and secret.
func NewNetwork(opts ...Option) (*Network, error) {
	pid, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	n := &Network{
		pid:          pid,
		log:          zap.NewNop(),
		connected:    queue.New[*Participant](),
		participants: make(map[uuid.UUID]*Participant),
	}
	if _, err := rand.Read(n.secret[:]); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	n.log = n.log.With(zap.Stringer("pid", pid))
	n.cfg.Logger = n.log
	n.cfg.Metrics = n.metrics
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n, nil
}

// Pid returns the local participant id.
func (n *Network) Pid() uuid.UUID {
	return n.pid
}

// Metrics returns the collector given with WithMetrics, or nil.
func (n *Network) Metrics() *observability.Metrics {
	return n.metrics
}

func (n *Network) identity() mux.Identity {
	return mux.Identity{Pid: n.pid, Secret: n.secret}
}

// Listen binds addr and accepts channels on it until the Network is
// closed. It returns the bound address, which differs from addr when a
// port of 0 or an empty mpsc name was given.
func (n *Network) Listen(ctx context.Context, addr string) (transport.Address, error) {
	a, err := transport.ParseAddress(addr)
	if err != nil {
		return transport.Address{}, err
	}
	l, err := transport.Listen(ctx, a)
	if err != nil {
		return transport.Address{}, err
	}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		l.Close()
		return transport.Address{}, ErrNetworkClosed
	}
	n.listeners = append(n.listeners, l)
	n.mu.Unlock()

	n.log.Info("listening", zap.Stringer("addr", l.Addr()))
	n.wg.Add(1)
	go n.acceptLoop(l)
	return l.Addr(), nil
}

func (n *Network) acceptLoop(l transport.Listener) {
	defer n.wg.Done()
	for {
		conn, err := l.Accept(n.ctx)
		if err != nil {
			if !errors.Is(err, transport.ErrListenerClosed) && n.ctx.Err() == nil {
				n.log.Warn("accept failed", zap.Stringer("addr", l.Addr()), zap.Error(err))
			}
			return
		}
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			p, fresh, err := n.establish(n.ctx, conn, false)
			if err != nil {
				n.log.Debug("inbound channel failed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
				return
			}
			if fresh {
				n.connected.Push(p)
			}
		}()
	}
}

// Connect dials addr and waits for the handshake. Channels to a network
// that is already a participant join it.
func (n *Network) Connect(ctx context.Context, addr string) (p *Participant, err error) {
	ctx, span := observability.StartSpan(ctx, "talk.Connect", attribute.String("addr", addr))
	defer func() { observability.EndSpan(span, err) }()

	a, err := transport.ParseAddress(addr)
	if err != nil {
		return nil, err
	}
	conn, err := transport.Dial(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("talk: dial %s: %w", a, err)
	}
	p, _, err = n.establish(ctx, conn, true)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("participant", p.pid.String()))
	return p, nil
}

// establish runs a channel on conn through the handshake and joins it to
// a participant. fresh reports whether the participant is new.
func (n *Network) establish(ctx context.Context, conn transport.Conn, initiator bool) (*Participant, bool, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(n.ctx, cancel)
	defer stop()

	ch := mux.NewChannel(conn, initiator, n.identity(), n.cfg)
	if err := ch.Handshake(ctx); err != nil {
		ch.Close()
		if n.ctx.Err() != nil {
			return nil, false, ErrNetworkClosed
		}
		return nil, false, err
	}
	p, fresh, err := n.join(ch)
	if err != nil {
		n.log.Warn("channel refused", zap.String("cid", ch.ID()), zap.Error(err))
		ch.Close()
		return nil, false, err
	}
	return p, fresh, nil
}

func (n *Network) join(ch *mux.Channel) (*Participant, bool, error) {
	remote := ch.Remote()
	pid := uuid.UUID(remote.Pid)
	if pid == n.pid {
		return nil, false, ErrSelfConnect
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, false, ErrNetworkClosed
	}
	if p, ok := n.participants[pid]; ok {
		if p.secret != remote.Secret {
			return nil, false, fmt.Errorf("%w: %s", ErrSecretMismatch, pid)
		}
		if p.add(ch) {
			p.log.Info("channel joined", zap.String("cid", ch.ID()), zap.Stringer("kind", ch.Kind()))
			return p, false, nil
		}
		// participant is on its way out, start a new one
	}
	p := newParticipant(n, pid, remote.Secret)
	p.add(ch)
	n.participants[pid] = p
	n.metrics.ParticipantConnected()
	p.log.Info("participant connected", zap.String("cid", ch.ID()), zap.Stringer("kind", ch.Kind()))
	return p, true, nil
}

func (n *Network) forget(p *Participant) {
	n.mu.Lock()
	if n.participants[p.pid] == p {
		delete(n.participants, p.pid)
	}
	n.mu.Unlock()
	n.metrics.ParticipantDisconnected()
	p.log.Info("participant disconnected")
}

// Connected waits for the next participant that connected to one of the
// listeners. Channels joining a known participant are not reported.
func (n *Network) Connected(ctx context.Context) (*Participant, error) {
	return n.connected.Pop(ctx)
}

// Participants returns the currently connected participants.
func (n *Network) Participants() []*Participant {
	n.mu.Lock()
	defer n.mu.Unlock()
	ps := make([]*Participant, 0, len(n.participants))
	for _, p := range n.participants {
		ps = append(ps, p)
	}
	return ps
}

// Participant looks up a connected participant by id.
func (n *Network) Participant(pid uuid.UUID) (*Participant, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.participants[pid]
	return p, ok
}

// Close stops the listeners and disconnects every participant. Channels
// that do not finish their shutdown before ctx ends are torn down.
func (n *Network) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	listeners := n.listeners
	n.listeners = nil
	n.mu.Unlock()

	n.cancel()
	for _, l := range listeners {
		l.Close()
	}
	n.connected.Close(ErrNetworkClosed)

	var err error
	for _, p := range n.Participants() {
		if perr := p.Disconnect(ctx); perr != nil && err == nil {
			err = perr
		}
	}
	n.wg.Wait()
	return err
}
