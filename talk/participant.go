package talk

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/progrium/qnet-go/internal/queue"
	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/observability"
)

// Participant is a remote network reached over one or more channels.
type Participant struct {
	net    *Network
	pid    uuid.UUID
	secret [16]byte
	log    *zap.Logger

	opened *queue.Queue[*mux.Stream]
	done   chan struct{}

	mu       sync.Mutex
	channels []*mux.Channel
	gone     bool
}

func newParticipant(n *Network, pid uuid.UUID, secret [16]byte) *Participant {
	return &Participant{
		net:    n,
		pid:    pid,
		secret: secret,
		log:    n.log.With(zap.Stringer("participant", pid)),
		opened: queue.New[*mux.Stream](),
		done:   make(chan struct{}),
	}
}

// Pid returns the remote participant id.
func (p *Participant) Pid() uuid.UUID {
	return p.pid
}

// Channels returns the channels currently joined to the participant.
func (p *Participant) Channels() []*mux.Channel {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*mux.Channel(nil), p.channels...)
}

// Done is closed once the last channel is gone.
func (p *Participant) Done() <-chan struct{} {
	return p.done
}

func (p *Participant) add(ch *mux.Channel) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gone {
		return false
	}
	p.channels = append(p.channels, ch)
	go p.serve(ch)
	return true
}

// serve feeds streams opened on ch into Opened and removes ch once it
// closed.
func (p *Participant) serve(ch *mux.Channel) {
	for {
		s, err := ch.Accept(context.Background())
		if err != nil {
			break
		}
		if err := p.opened.Push(s); err != nil {
			s.Close()
		}
	}
	<-ch.Done()
	if err := ch.Err(); err != nil {
		p.log.Info("channel lost", zap.String("cid", ch.ID()), zap.Error(err))
	} else {
		p.log.Debug("channel closed", zap.String("cid", ch.ID()))
	}

	p.mu.Lock()
	for i, c := range p.channels {
		if c == ch {
			p.channels = append(p.channels[:i], p.channels[i+1:]...)
			break
		}
	}
	last := len(p.channels) == 0 && !p.gone
	if last {
		p.gone = true
	}
	p.mu.Unlock()

	if last {
		p.opened.Close(mux.ErrParticipantDisconnected)
		p.net.forget(p)
		close(p.done)
	}
}

// best returns the established channel on the most preferred transport.
func (p *Participant) best() *mux.Channel {
	chs := p.Channels()
	sort.SliceStable(chs, func(i, j int) bool {
		return chs[i].Kind().Rank() > chs[j].Kind().Rank()
	})
	for _, ch := range chs {
		if ch.State() == mux.Established {
			return ch
		}
	}
	return nil
}

// Open opens a stream on the participant's best channel and waits for the
// peer to acknowledge it.
func (p *Participant) Open(ctx context.Context, prio uint8, promises frame.Promises, bandwidth uint64) (s *mux.Stream, err error) {
	ctx, span := observability.StartSpan(ctx, "talk.Open",
		attribute.String("participant", p.pid.String()),
		attribute.Int("prio", int(prio)),
		attribute.String("promises", promises.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	ch := p.best()
	if ch == nil {
		return nil, mux.ErrParticipantDisconnected
	}
	span.SetAttributes(attribute.String("cid", ch.ID()), attribute.String("kind", ch.Kind().String()))
	return ch.Open(ctx, prio, promises, bandwidth)
}

// Opened waits for the next stream the participant opened on any of its
// channels.
func (p *Participant) Opened(ctx context.Context) (*mux.Stream, error) {
	return p.opened.Pop(ctx)
}

// Disconnect shuts every channel down gracefully. Channels still draining
// when ctx ends are closed.
func (p *Participant) Disconnect(ctx context.Context) error {
	chs := p.Channels()
	errs := make([]error, len(chs))
	var wg sync.WaitGroup
	for i, ch := range chs {
		wg.Add(1)
		go func(i int, ch *mux.Channel) {
			defer wg.Done()
			errs[i] = ch.Shutdown(ctx)
			if ctx.Err() != nil {
				ch.Close()
			}
		}(i, ch)
	}
	wg.Wait()
	if len(chs) > 0 {
		select {
		case <-p.done:
		case <-ctx.Done():
		}
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
