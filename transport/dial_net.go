package transport

import (
	"context"
	"net"
)

// netConn adapts a net.Conn to Conn.
type netConn struct {
	net.Conn
	kind Kind
}

func (c netConn) Kind() Kind {
	return c.kind
}

// DialTCP connects to a TCP address.
func DialTCP(ctx context.Context, addr string) (Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return netConn{Conn: conn, kind: KindTCP}, nil
}
