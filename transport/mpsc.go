package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/rs/xid"
)

// mpsc connects endpoints in the same process through synchronous pipes.
// Listeners are registered by name.
var mpsc = struct {
	sync.Mutex
	listeners map[string]*mpscListener
}{listeners: make(map[string]*mpscListener)}

type mpscAddr string

func (a mpscAddr) Network() string { return "mpsc" }
func (a mpscAddr) String() string  { return string(a) }

type mpscConn struct {
	net.Conn
	local, remote mpscAddr
}

func (c mpscConn) Kind() Kind           { return KindMpsc }
func (c mpscConn) LocalAddr() net.Addr  { return c.local }
func (c mpscConn) RemoteAddr() net.Addr { return c.remote }

type mpscListener struct {
	name      string
	accepted  chan Conn
	closer    chan struct{}
	closeOnce sync.Once
}

// ListenMpsc registers an in-process listener under name. An empty name
// gets a generated one; read it back with Addr.
func ListenMpsc(ctx context.Context, name string) (Listener, error) {
	if name == "" {
		name = xid.New().String()
	}
	mpsc.Lock()
	defer mpsc.Unlock()
	if _, ok := mpsc.listeners[name]; ok {
		return nil, fmt.Errorf("mpsc: listener %q already exists", name)
	}
	l := &mpscListener{
		name:     name,
		accepted: make(chan Conn),
		closer:   make(chan struct{}),
	}
	mpsc.listeners[name] = l
	return l, nil
}

// DialMpsc connects to the in-process listener registered under name.
func DialMpsc(ctx context.Context, name string) (Conn, error) {
	mpsc.Lock()
	l := mpsc.listeners[name]
	mpsc.Unlock()
	if l == nil {
		return nil, fmt.Errorf("mpsc: no listener %q", name)
	}
	local := mpscAddr(name + "/" + xid.New().String())
	c1, c2 := net.Pipe()
	select {
	case l.accepted <- mpscConn{Conn: c1, local: mpscAddr(name), remote: local}:
		return mpscConn{Conn: c2, local: local, remote: mpscAddr(name)}, nil
	case <-l.closer:
		c1.Close()
		c2.Close()
		return nil, ErrListenerClosed
	case <-ctx.Done():
		c1.Close()
		c2.Close()
		return nil, ctx.Err()
	}
}

func (l *mpscListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-l.closer:
		return nil, ErrListenerClosed
	case conn := <-l.accepted:
		return conn, nil
	}
}

func (l *mpscListener) Close() error {
	l.closeOnce.Do(func() {
		close(l.closer)
		mpsc.Lock()
		delete(mpsc.listeners, l.name)
		mpsc.Unlock()
	})
	return nil
}

func (l *mpscListener) Addr() Address {
	return Address{Kind: KindMpsc, Addr: l.name}
}
