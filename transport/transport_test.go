package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"testing"
	"time"
)

func fatal(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestParseAddress(t *testing.T) {
	for _, tt := range []struct {
		in   string
		want Address
		err  bool
	}{
		{in: "127.0.0.1:9000", want: Address{KindTCP, "127.0.0.1:9000"}},
		{in: "localhost", want: Address{KindTCP, "localhost:14004"}},
		{in: "udp://10.0.0.1", want: Address{KindUDP, "10.0.0.1:14004"}},
		{in: "quic://[::1]:99", want: Address{KindQUIC, "[::1]:99"}},
		{in: "ws://::1", want: Address{KindWS, "[::1]:14004"}},
		{in: "mpsc://node-a", want: Address{KindMpsc, "node-a"}},
		{in: "mpsc://", want: Address{KindMpsc, ""}},
		{in: "carrier://pigeon", err: true},
		{in: "tcp://", err: true},
	} {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			fatal(err, t)
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKinds(t *testing.T) {
	for k := KindTCP; k <= KindWS; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Fatalf("kind %d does not round trip through %q", k, k.String())
		}
		if k.Datagram() == k.Reliable() {
			t.Fatalf("%s: datagram kinds are the unreliable ones", k)
		}
	}
	if KindMpsc.Rank() <= KindTCP.Rank() || KindTCP.Rank() <= KindUDP.Rank() {
		t.Fatal("unexpected kind ranking")
	}
}

func TestWouldBlock(t *testing.T) {
	if !WouldBlock(os.ErrDeadlineExceeded) {
		t.Fatal("deadline exceeded should block")
	}
	if WouldBlock(io.EOF) || WouldBlock(net.ErrClosed) {
		t.Fatal("terminal errors should not block")
	}

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	fatal(a.SetWriteDeadline(time.Now().Add(10*time.Millisecond)), t)
	_, err := a.Write([]byte("nobody reads this"))
	if !WouldBlock(err) {
		t.Fatalf("expected pipe write to block, got %v", err)
	}
}

func echo(t *testing.T, l Listener) {
	go func() {
		conn, err := l.Accept(context.Background())
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 2048)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				return
			}
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
		a, err := ParseAddress(addr)
		fatal(err, t)
		t.Run(a.Kind.String(), func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			l, err := Listen(ctx, a)
			fatal(err, t)
			defer l.Close()
			echo(t, l)

			conn, err := Dial(ctx, l.Addr())
			fatal(err, t)
			defer conn.Close()
			if conn.Kind() != a.Kind {
				t.Fatalf("dialed %s, got %s", a.Kind, conn.Kind())
			}

			msg := []byte("hello over " + a.Kind.String())
			_, err = conn.Write(msg)
			fatal(err, t)
			buf := make([]byte, len(msg))
			_, err = io.ReadFull(conn, buf)
			fatal(err, t)
			if string(buf) != string(msg) {
				t.Fatalf("unexpected echo %q", buf)
			}
		})
	}
}

func TestListenerClose(t *testing.T) {
	l, err := ListenMpsc(context.Background(), "closing")
	fatal(err, t)
	if _, err := ListenMpsc(context.Background(), "closing"); err == nil {
		t.Fatal("expected duplicate name to fail")
	}
	fatal(l.Close(), t)
	if _, err := l.Accept(context.Background()); !errors.Is(err, ErrListenerClosed) {
		t.Fatalf("expected closed listener, got %v", err)
	}
	if _, err := DialMpsc(context.Background(), "closing"); err == nil {
		t.Fatal("expected dial to a closed listener to fail")
	}
}

func TestUDPDemux(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	l, err := ListenUDP(ctx, "127.0.0.1:0")
	fatal(err, t)
	defer l.Close()

	c1, err := Dial(ctx, l.Addr())
	fatal(err, t)
	defer c1.Close()
	c2, err := Dial(ctx, l.Addr())
	fatal(err, t)
	defer c2.Close()

	_, err = c1.Write([]byte("one"))
	fatal(err, t)
	s1, err := l.Accept(ctx)
	fatal(err, t)
	_, err = c2.Write([]byte("two"))
	fatal(err, t)
	s2, err := l.Accept(ctx)
	fatal(err, t)

	buf := make([]byte, 64)
	n, err := s1.Read(buf)
	fatal(err, t)
	if string(buf[:n]) != "one" {
		t.Fatalf("session 1 got %q", buf[:n])
	}
	n, err = s2.Read(buf)
	fatal(err, t)
	if string(buf[:n]) != "two" {
		t.Fatalf("session 2 got %q", buf[:n])
	}

	fatal(s1.Close(), t)
	if _, err := s1.Read(buf); err != io.EOF {
		t.Fatalf("expected EOF on closed session, got %v", err)
	}
}
