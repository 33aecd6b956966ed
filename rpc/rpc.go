// Package rpc implements calls over mux streams. A call opens a stream and
// sends a CallHeader followed by the arguments, each as its own message.
// The responder answers with a ResponseHeader and a reply value, and may
// keep the stream open for further messages in either direction.
package rpc

import (
	"context"
	"fmt"

	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/mux/frame"
)

// Opener opens streams to a peer. *mux.Channel and *talk.Participant are
// Openers.
type Opener interface {
	Open(ctx context.Context, prio uint8, promises frame.Promises, bandwidth uint64) (*mux.Stream, error)
}

// AcceptFunc returns the next stream opened by a peer, such as
// (*mux.Channel).Accept or (*talk.Participant).Opened.
type AcceptFunc func(ctx context.Context) (*mux.Stream, error)

// Caller is anything that can make a call.
type Caller interface {
	Call(ctx context.Context, selector string, params, reply interface{}) (*Response, error)
}

// CallHeader is the first message on a call stream.
type CallHeader struct {
	Selector string
}

// ResponseHeader is the first message the responder sends back.
type ResponseHeader struct {
	Error    *string
	Continue bool // after parsing response, keep stream open for whatever protocol
}

// RemoteError is an error that has been returned from
// the remote side of the call.
type RemoteError string

func (e RemoteError) Error() string {
	return fmt.Sprintf("remote: %s", string(e))
}
