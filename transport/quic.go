package transport

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
)

// quicLinger is how long Close waits for the remote to finish reading
// before the connection is torn down.
const quicLinger = 500 * time.Millisecond

var quicConfig = &quic.Config{
	KeepAlivePeriod: 5 * time.Second,
	MaxIdleTimeout:  30 * time.Second,
}

// quicConn carries a channel on the first bidirectional stream of a QUIC
// connection.
type quicConn struct {
	conn      quic.Connection
	stream    quic.Stream
	closeOnce sync.Once
}

func (c *quicConn) Read(p []byte) (int, error)         { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error)        { return c.stream.Write(p) }
func (c *quicConn) SetWriteDeadline(t time.Time) error { return c.stream.SetWriteDeadline(t) }
func (c *quicConn) LocalAddr() net.Addr                { return c.conn.LocalAddr() }
func (c *quicConn) RemoteAddr() net.Addr               { return c.conn.RemoteAddr() }
func (c *quicConn) Kind() Kind                         { return KindQUIC }

func (c *quicConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.stream.Close()
		select {
		case <-c.conn.Context().Done():
		case <-time.After(quicLinger):
		}
		err = c.conn.CloseWithError(0, "closed")
	})
	return err
}

// DialQUIC connects to addr and opens the stream the channel runs on.
func DialQUIC(ctx context.Context, addr string) (Conn, error) {
	conn, err := quic.DialAddr(ctx, addr, ClientTLSConfig(), quicConfig)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(1, err.Error())
		return nil, err
	}
	return &quicConn{conn: conn, stream: stream}, nil
}

type quicListener struct {
	l         *quic.Listener
	accepted  chan Conn
	closer    chan struct{}
	closeOnce sync.Once
}

// ListenQUIC binds a UDP address for QUIC. A connection is accepted once
// its first stream arrives.
func ListenQUIC(ctx context.Context, addr string) (Listener, error) {
	tlsConf, err := ServerTLSConfig()
	if err != nil {
		return nil, err
	}
	ql, err := quic.ListenAddr(addr, tlsConf, quicConfig)
	if err != nil {
		return nil, err
	}
	l := &quicListener{
		l:        ql,
		accepted: make(chan Conn),
		closer:   make(chan struct{}),
	}
	go l.acceptLoop()
	return l, nil
}

func (l *quicListener) acceptLoop() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-l.closer
		cancel()
	}()
	for {
		conn, err := l.l.Accept(ctx)
		if err != nil {
			return
		}
		go func() {
			stream, err := conn.AcceptStream(ctx)
			if err != nil {
				conn.CloseWithError(1, err.Error())
				return
			}
			select {
			case l.accepted <- &quicConn{conn: conn, stream: stream}:
			case <-l.closer:
				conn.CloseWithError(0, "listener closed")
			}
		}()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closer:
		return nil, ErrListenerClosed
	case conn := <-l.accepted:
		return conn, nil
	}
}

func (l *quicListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closer)
		err = l.l.Close()
	})
	return err
}

func (l *quicListener) Addr() Address {
	return Address{Kind: KindQUIC, Addr: l.l.Addr().String()}
}
