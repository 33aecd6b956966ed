package rpc

import (
	"context"

	"github.com/progrium/qnet-go/mux"
)

// Response is what a call returned. When Continue is set, Stream stays open
// for further messages.
type Response struct {
	ResponseHeader
	Reply  interface{}
	Stream *mux.Stream
}

func (r *Response) Send(v interface{}) error {
	return r.Stream.Send(v)
}

func (r *Response) Receive(ctx context.Context, v interface{}) error {
	return r.Stream.Recv(ctx, v)
}
