package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/websocket"
)

// wsConn keeps the websocket handler alive until the connection is closed.
type wsConn struct {
	*websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	ws.PayloadType = websocket.BinaryFrame
	return &wsConn{Conn: ws, done: make(chan struct{})}
}

func (c *wsConn) Kind() Kind {
	return KindWS
}

// SetWriteDeadline is a no-op. A websocket frame cut short by a deadline
// poisons the connection's buffered writer, so writes always run to
// completion.
func (c *wsConn) SetWriteDeadline(t time.Time) error {
	return nil
}

func (c *wsConn) Close() error {
	err := c.Conn.Close()
	c.closeOnce.Do(func() { close(c.done) })
	return err
}

// HandleWS takes a WebSocket connection and sends it to l to be accepted.
// It returns once the connection is closed.
func HandleWS(l *NetListener, ws *websocket.Conn) {
	conn := newWSConn(ws)
	if !l.deliver(conn) {
		return
	}
	select {
	case <-conn.done:
	case <-l.closer:
	}
}

// ListenWS takes a TCP address and returns a NetListener with an
// HTTP+WebSocket server listening on it.
func ListenWS(ctx context.Context, addr string) (Listener, error) {
	var lc net.ListenConfig
	nl, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	l := newNetListener(nl, KindWS)
	s := &http.Server{
		Handler: websocket.Handler(func(ws *websocket.Conn) {
			HandleWS(l, ws)
		}),
	}
	go func() {
		if err := s.Serve(nl); err != nil && err != http.ErrServerClosed {
			l.fail(err)
		}
	}()
	return l, nil
}
