package rpc

import (
	"context"

	"github.com/progrium/qnet-go/mux"
)

// ProxyHandler returns a handler that tries its best to proxy the
// call to the dst Client, regardless of call style and assuming the
// same encoding.
func ProxyHandler(dst *Client) Handler {
	return HandlerFunc(func(r Responder, c *Call) {
		s, err := dst.Opener.Open(c.Context, dst.Priority, dst.Promises, 0)
		if err != nil {
			r.Return(err)
			return
		}
		if err := s.Send(CallHeader{Selector: c.Selector}); err != nil {
			s.Close()
			r.Return(err)
			return
		}

		go pump(s, c.stream)
		go pump(c.stream, s)

		r.(*responder).responded = true
	})
}

// pump forwards messages from src to dst and closes dst when src ends.
func pump(dst, src *mux.Stream) {
	defer dst.Close()
	for {
		b, err := src.RecvRaw(context.Background())
		if err != nil {
			return
		}
		if err := dst.SendRaw(b); err != nil {
			src.Close()
			return
		}
	}
}
