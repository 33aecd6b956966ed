package transport

import (
	"context"
	"net"
	"sync"
)

// NetListener wraps a net.Listener to return Conns.
type NetListener struct {
	net.Listener
	kind      Kind
	accepted  chan Conn
	errs      chan error
	closer    chan struct{}
	closeOnce sync.Once
}

// Accept waits for and returns the next connection to the listener.
func (l *NetListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closer:
		return nil, ErrListenerClosed
	case err := <-l.errs:
		return nil, err
	case conn := <-l.accepted:
		return conn, nil
	}
}

// Close closes the listener.
// Any blocked Accept operations will be unblocked and return errors.
func (l *NetListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closer)
		err = l.Listener.Close()
	})
	return err
}

func (l *NetListener) Addr() Address {
	return Address{Kind: l.kind, Addr: l.Listener.Addr().String()}
}

func newNetListener(nl net.Listener, kind Kind) *NetListener {
	return &NetListener{
		Listener: nl,
		kind:     kind,
		accepted: make(chan Conn),
		errs:     make(chan error, 2),
		closer:   make(chan struct{}),
	}
}

// deliver hands conn to a pending Accept. It reports false once the
// listener is closed.
func (l *NetListener) deliver(conn Conn) bool {
	select {
	case l.accepted <- conn:
		return true
	case <-l.closer:
		return false
	}
}

// fail reports err to a pending Accept unless the listener is closed.
func (l *NetListener) fail(err error) {
	select {
	case l.errs <- err:
	case <-l.closer:
	}
}

// ListenTCP creates a TCP listener at the given address.
func ListenTCP(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	l := newNetListener(nl, KindTCP)
	go func() {
		for {
			conn, err := nl.Accept()
			if err != nil {
				l.fail(err)
				return
			}
			if !l.deliver(netConn{Conn: conn, kind: KindTCP}) {
				conn.Close()
				return
			}
		}
	}()
	return l, nil
}
