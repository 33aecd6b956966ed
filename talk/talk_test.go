package talk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/mux/frame"
	"github.com/progrium/qnet-go/transport"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newNetwork(t *testing.T) *Network {
	t.Helper()
	n, err := NewNetwork(WithChannelConfig(mux.Config{
		Tick: time.Millisecond,
	}))
	fatal(err, t)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		n.Close(ctx)
	})
	return n
}

// serveEcho sends every message received on n back on its stream.
func serveEcho(n *Network) {
	ctx := context.Background()
	go func() {
		for {
			p, err := n.Connected(ctx)
			if err != nil {
				return
			}
			go func() {
				for {
					s, err := p.Opened(ctx)
					if err != nil {
						return
					}
					go func() {
						for {
							b, err := s.RecvRaw(ctx)
							if err != nil {
								return
							}
							if err := s.SendRaw(b); err != nil {
								return
							}
						}
					}()
				}
			}()
		}
	}()
}

func TestEcho(t *testing.T) {
	for _, addr := range []string{
		"tcp://127.0.0.1:0",
		"udp://127.0.0.1:0",
		"mpsc://",
		"quic://127.0.0.1:0",
		"ws://127.0.0.1:0",
	} {
		t.Run(addr, func(t *testing.T) {
			ctx := testContext(t)
			server := newNetwork(t)
			client := newNetwork(t)
			serveEcho(server)

			bound, err := server.Listen(ctx, addr)
			fatal(err, t)
			p, err := client.Connect(ctx, bound.String())
			fatal(err, t)
			if p.Pid() != server.Pid() {
				t.Fatalf("connected to %s, want %s", p.Pid(), server.Pid())
			}

			s, err := p.Open(ctx, 3, frame.PromiseOrdered, 0)
			fatal(err, t)
			for _, msg := range []string{"hello", "world"} {
				fatal(s.SendRaw([]byte(msg)), t)
				b, err := s.RecvRaw(ctx)
				fatal(err, t)
				if string(b) != msg {
					t.Fatalf("echo %q, want %q", b, msg)
				}
			}
		})
	}
}

func TestTypedEcho(t *testing.T) {
	ctx := testContext(t)
	server := newNetwork(t)
	client := newNetwork(t)
	serveEcho(server)

	bound, err := server.Listen(ctx, "mpsc://")
	fatal(err, t)
	p, err := client.Connect(ctx, bound.String())
	fatal(err, t)
	s, err := p.Open(ctx, 0, frame.PromiseOrdered|frame.PromiseCompressed, 0)
	fatal(err, t)

	type position struct {
		X, Y int
		Name string
	}
	in := position{X: 3, Y: -4, Name: "npc"}
	fatal(s.Send(in), t)
	var out position
	fatal(s.Recv(ctx, &out), t)
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestMultiChannelParticipant(t *testing.T) {
	ctx := testContext(t)
	server := newNetwork(t)
	client := newNetwork(t)

	tcpAddr, err := server.Listen(ctx, "tcp://127.0.0.1:0")
	fatal(err, t)
	mpscAddr, err := server.Listen(ctx, "mpsc://")
	fatal(err, t)

	p1, err := client.Connect(ctx, tcpAddr.String())
	fatal(err, t)
	p2, err := client.Connect(ctx, mpscAddr.String())
	fatal(err, t)
	if p1 != p2 {
		t.Fatal("second channel did not join the participant")
	}
	if got := len(p1.Channels()); got != 2 {
		t.Fatalf("client participant has %d channels, want 2", got)
	}

	remote, err := server.Connected(ctx)
	fatal(err, t)
	if remote.Pid() != client.Pid() {
		t.Fatal("unexpected participant")
	}
	for len(remote.Channels()) < 2 {
		select {
		case <-ctx.Done():
			t.Fatal("server participant never got both channels")
		case <-time.After(time.Millisecond):
		}
	}
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := server.Connected(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("joined channel reported as new participant: %v", err)
	}

	s, err := p1.Open(ctx, 0, 0, 0)
	fatal(err, t)
	if s.Channel().Kind() != transport.KindMpsc {
		t.Fatalf("opened on %s, want mpsc", s.Channel().Kind())
	}
	fatal(s.SendRaw([]byte("via mpsc")), t)

	rs, err := remote.Opened(ctx)
	fatal(err, t)
	if rs.ID() != s.ID() {
		t.Fatalf("remote stream %d, want %d", rs.ID(), s.ID())
	}
	b, err := rs.RecvRaw(ctx)
	fatal(err, t)
	if string(b) != "via mpsc" {
		t.Fatalf("unexpected message %q", b)
	}

	// losing the preferred channel moves new streams to tcp
	for _, ch := range p1.Channels() {
		if ch.Kind() == transport.KindMpsc {
			ch.Close()
		}
	}
	for len(p1.Channels()) != 1 {
		select {
		case <-ctx.Done():
			t.Fatal("closed channel not removed")
		case <-time.After(time.Millisecond):
		}
	}
	s, err = p1.Open(ctx, 0, 0, 0)
	fatal(err, t)
	if s.Channel().Kind() != transport.KindTCP {
		t.Fatalf("opened on %s, want tcp", s.Channel().Kind())
	}
}

func TestSecretMismatch(t *testing.T) {
	ctx := testContext(t)
	server := newNetwork(t)
	client := newNetwork(t)

	bound, err := server.Listen(ctx, "mpsc://")
	fatal(err, t)
	_, err = client.Connect(ctx, bound.String())
	fatal(err, t)
	remote, err := server.Connected(ctx)
	fatal(err, t)

	conn, err := transport.Dial(ctx, bound)
	fatal(err, t)
	impostor := mux.NewChannel(conn, true, mux.Identity{Pid: client.Pid(), Secret: [16]byte{0xff}}, mux.Config{})
	defer impostor.Close()
	fatal(impostor.Handshake(ctx), t)

	select {
	case <-impostor.Done():
	case <-ctx.Done():
		t.Fatal("impostor channel was not closed")
	}
	if got := len(remote.Channels()); got != 1 {
		t.Fatalf("participant has %d channels, want 1", got)
	}
}

func TestSelfConnect(t *testing.T) {
	ctx := testContext(t)
	n := newNetwork(t)
	bound, err := n.Listen(ctx, "mpsc://")
	fatal(err, t)
	if _, err := n.Connect(ctx, bound.String()); !errors.Is(err, ErrSelfConnect) {
		t.Fatalf("expected self connect error, got %v", err)
	}
}

func TestDisconnect(t *testing.T) {
	ctx := testContext(t)
	server := newNetwork(t)
	client := newNetwork(t)

	bound, err := server.Listen(ctx, "tcp://127.0.0.1:0")
	fatal(err, t)
	p, err := client.Connect(ctx, bound.String())
	fatal(err, t)
	remote, err := server.Connected(ctx)
	fatal(err, t)

	s, err := p.Open(ctx, 1, frame.PromiseOrdered, 0)
	fatal(err, t)
	fatal(s.SendRaw([]byte("last words")), t)
	fatal(p.Disconnect(ctx), t)

	select {
	case <-p.Done():
	default:
		t.Fatal("participant not done after disconnect")
	}
	if len(client.Participants()) != 0 {
		t.Fatal("participant still registered")
	}

	rs, err := remote.Opened(ctx)
	fatal(err, t)
	b, err := rs.RecvRaw(ctx)
	fatal(err, t)
	if string(b) != "last words" {
		t.Fatalf("unexpected message %q", b)
	}
	select {
	case <-remote.Done():
	case <-ctx.Done():
		t.Fatal("remote participant never disconnected")
	}
	if _, err := remote.Opened(ctx); !errors.Is(err, mux.ErrParticipantDisconnected) {
		t.Fatalf("expected participant disconnected, got %v", err)
	}
	if _, ok := server.Participant(client.Pid()); ok {
		t.Fatal("server still knows the participant")
	}
	if _, err := p.Open(ctx, 0, 0, 0); !errors.Is(err, mux.ErrParticipantDisconnected) {
		t.Fatalf("expected participant disconnected, got %v", err)
	}
}

func TestNetworkClose(t *testing.T) {
	ctx := testContext(t)
	n, err := NewNetwork()
	fatal(err, t)
	_, err = n.Listen(ctx, "tcp://127.0.0.1:0")
	fatal(err, t)
	fatal(n.Close(ctx), t)

	if _, err := n.Connected(ctx); !errors.Is(err, ErrNetworkClosed) {
		t.Fatalf("expected network closed, got %v", err)
	}
	if _, err := n.Listen(ctx, "mpsc://"); !errors.Is(err, ErrNetworkClosed) {
		t.Fatalf("expected network closed, got %v", err)
	}
}
