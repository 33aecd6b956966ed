// Package transport provides the raw byte connections channels run on.
//
// Every binding (tcp, udp, mpsc, quic, ws) implements Conn. A channel only
// reads, writes with a deadline, and closes; it never needs to know which
// binding it got.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Kind identifies a transport binding.
type Kind int

const (
	KindUnknown Kind = iota
	KindTCP
	KindUDP
	KindMpsc
	KindQUIC
	KindWS
)

func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "tcp"
	case KindUDP:
		return "udp"
	case KindMpsc:
		return "mpsc"
	case KindQUIC:
		return "quic"
	case KindWS:
		return "ws"
	default:
		return "unknown"
	}
}

// ParseKind returns the Kind named s.
func ParseKind(s string) (Kind, bool) {
	for k := KindTCP; k <= KindWS; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Datagram reports whether each Read yields exactly one datagram, which
// holds only whole frames.
func (k Kind) Datagram() bool {
	return k == KindUDP
}

// Reliable reports whether bytes arrive complete and in order.
func (k Kind) Reliable() bool {
	return k != KindUDP
}

// Rank orders kinds by preference when several channels lead to the same
// peer. Higher is better.
func (k Kind) Rank() int {
	switch k {
	case KindMpsc:
		return 50
	case KindTCP:
		return 40
	case KindQUIC:
		return 30
	case KindWS:
		return 20
	case KindUDP:
		return 10
	default:
		return 0
	}
}

// MaxDatagramSize is the largest datagram written by datagram kinds.
const MaxDatagramSize = 1452

// Conn is a raw transport connection.
type Conn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// SetWriteDeadline bounds the next writes. A write that hits the
	// deadline reports how much it wrote and an error for which
	// WouldBlock is true.
	SetWriteDeadline(t time.Time) error
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Kind() Kind
}

// A Listener yields inbound connections.
type Listener interface {
	// Accept waits for and returns the next connection.
	Accept(ctx context.Context) (Conn, error)

	// Close closes the listener.
	// Any blocked Accept operations will be unblocked and return errors.
	Close() error

	// Addr returns the bound address, with ports resolved.
	Addr() Address
}

// ErrListenerClosed is returned by Accept after Close.
var ErrListenerClosed = errors.New("transport: listener closed")

// WouldBlock reports whether err means a write could not finish in time
// rather than that the connection failed.
func WouldBlock(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// A Dialer connects to addr.
type Dialer func(ctx context.Context, addr string) (Conn, error)

// A ListenFunc binds addr.
type ListenFunc func(ctx context.Context, addr string) (Listener, error)

// Dialers and Listeners map every builtin Kind to its binding.
var (
	Dialers   map[Kind]Dialer
	Listeners map[Kind]ListenFunc
)

func init() {
	Dialers = map[Kind]Dialer{
		KindTCP:  DialTCP,
		KindUDP:  DialUDP,
		KindMpsc: DialMpsc,
		KindQUIC: DialQUIC,
		KindWS:   DialWS,
	}
	Listeners = map[Kind]ListenFunc{
		KindTCP:  ListenTCP,
		KindUDP:  ListenUDP,
		KindMpsc: ListenMpsc,
		KindQUIC: ListenQUIC,
		KindWS:   ListenWS,
	}
}

// Dial connects to a using the binding registered for its kind.
func Dial(ctx context.Context, a Address) (Conn, error) {
	d, ok := Dialers[a.Kind]
	if !ok {
		return nil, fmt.Errorf("transport: no dialer for %s", a.Kind)
	}
	return d(ctx, a.Addr)
}

// Listen binds a using the binding registered for its kind.
func Listen(ctx context.Context, a Address) (Listener, error) {
	l, ok := Listeners[a.Kind]
	if !ok {
		return nil, fmt.Errorf("transport: no listener for %s", a.Kind)
	}
	return l(ctx, a.Addr)
}
