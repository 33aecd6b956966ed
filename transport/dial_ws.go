package transport

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/websocket"
)

// DialWS connects via WebSocket. The address must be a host and port.
// Opening a WebSocket connection at a particular path is not supported.
func DialWS(ctx context.Context, addr string) (Conn, error) {
	cfg, err := websocket.NewConfig(fmt.Sprintf("ws://%s/", addr), fmt.Sprintf("http://%s/", addr))
	if err != nil {
		return nil, err
	}
	cfg.Dialer = &net.Dialer{}
	if dl, ok := ctx.Deadline(); ok {
		cfg.Dialer.Deadline = dl
	}
	ws, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, err
	}
	return newWSConn(ws), nil
}
