package transport

import (
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// udpSessionBacklog bounds datagrams queued per remote before new ones
// are dropped.
const udpSessionBacklog = 256

// DialUDP connects a UDP socket to addr. Every Write is sent as one
// datagram and every Read returns one.
func DialUDP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	return netConn{Conn: conn, kind: KindUDP}, nil
}

// udpListener demultiplexes one socket into a session per remote address.
type udpListener struct {
	conn      *net.UDPConn
	mu        sync.Mutex
	sessions  map[string]*udpSession
	accepted  chan *udpSession
	closer    chan struct{}
	closeOnce sync.Once
}

// ListenUDP binds addr. Datagrams from a new remote address yield a new
// Conn from Accept.
func ListenUDP(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	l := &udpListener{
		conn:     pc.(*net.UDPConn),
		sessions: make(map[string]*udpSession),
		accepted: make(chan *udpSession, 16),
		closer:   make(chan struct{}),
	}
	go l.readLoop()
	return l, nil
}

func (l *udpListener) Addr() Address {
	return Address{Kind: KindUDP, Addr: l.conn.LocalAddr().String()}
}

func (l *udpListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closer:
		return nil, ErrListenerClosed
	case s := <-l.accepted:
		return s, nil
	}
}

func (l *udpListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closer)
		err = l.conn.Close()
		l.mu.Lock()
		for _, s := range l.sessions {
			s.shutdown()
		}
		l.sessions = map[string]*udpSession{}
		l.mu.Unlock()
	})
	return err
}

func (l *udpListener) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, raddr, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			l.Close()
			return
		}
		key := raddr.String()
		l.mu.Lock()
		s, ok := l.sessions[key]
		if !ok {
			s = &udpSession{
				l:      l,
				key:    key,
				raddr:  raddr,
				rx:     make(chan []byte, udpSessionBacklog),
				closed: make(chan struct{}),
			}
			select {
			case l.accepted <- s:
				l.sessions[key] = s
			default:
				// accept backlog full; the remote will retry
				l.mu.Unlock()
				continue
			}
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case s.rx <- pkt:
		default:
		}
		l.mu.Unlock()
	}
}

func (l *udpListener) remove(s *udpSession) {
	l.mu.Lock()
	if l.sessions[s.key] == s {
		delete(l.sessions, s.key)
	}
	l.mu.Unlock()
}

// udpSession is the server side of one remote address on a shared socket.
type udpSession struct {
	l         *udpListener
	key       string
	raddr     *net.UDPAddr
	rx        chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *udpSession) Kind() Kind           { return KindUDP }
func (s *udpSession) LocalAddr() net.Addr  { return s.l.conn.LocalAddr() }
func (s *udpSession) RemoteAddr() net.Addr { return s.raddr }

func (s *udpSession) Read(p []byte) (int, error) {
	select {
	case pkt := <-s.rx:
		return copy(p, pkt), nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *udpSession) Write(p []byte) (int, error) {
	select {
	case <-s.closed:
		return 0, net.ErrClosed
	default:
	}
	return s.l.conn.WriteToUDP(p, s.raddr)
}

// SetWriteDeadline is a no-op: the socket is shared with other sessions.
func (s *udpSession) SetWriteDeadline(t time.Time) error {
	return nil
}

func (s *udpSession) Close() error {
	s.shutdown()
	s.l.remove(s)
	return nil
}

func (s *udpSession) shutdown() {
	s.closeOnce.Do(func() { close(s.closed) })
}
