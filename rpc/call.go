package rpc

import (
	"context"

	"github.com/progrium/qnet-go/mux"
)

// Call is an incoming call given to a Handler.
type Call struct {
	Selector string

	Caller  Caller
	Context context.Context

	stream *mux.Stream
}

// Receive decodes the next argument message into v. A nil v discards it.
func (c *Call) Receive(v interface{}) error {
	if v == nil {
		_, err := c.stream.RecvRaw(c.Context)
		return err
	}
	return c.stream.Recv(c.Context, v)
}

// Stream returns the stream the call arrived on.
func (c *Call) Stream() *mux.Stream {
	return c.stream
}
