package rpc

import (
	"context"

	"github.com/progrium/qnet-go/mux/frame"
)

// Client makes calls on streams from an Opener.
type Client struct {
	Opener Opener

	// Priority and Promises are used for every call stream.
	Priority uint8
	Promises frame.Promises
}

// NewClient returns a client opening ordered streams on o.
func NewClient(o Opener) *Client {
	return &Client{
		Opener:   o,
		Promises: frame.PromiseOrdered,
	}
}

// Call makes synchronous calls to the remote selector passing args and putting the reply
// value in reply. Both args and reply can be nil. Args can be a channel of interface{}
// values for asynchronously streaming multiple values from another goroutine, however
// the call will still block until a response is sent. If there is an error making the call
// an error is returned, and if an error is returned by the remote handler a RemoteError
// is returned.
//
// A Response value is also returned for advanced operations. For example, you can check
// if the call is continued, meaning the underlying stream will be kept open for
// streaming back more results.
func (c *Client) Call(ctx context.Context, selector string, args, reply interface{}) (*Response, error) {
	s, err := c.Opener.Open(ctx, c.Priority, c.Promises, 0)
	if err != nil {
		return nil, err
	}

	// request
	if err := s.Send(CallHeader{Selector: selector}); err != nil {
		s.Close()
		return nil, err
	}

	argCh, isChan := args.(chan interface{})
	switch {
	case isChan:
		for arg := range argCh {
			if err := s.Send(arg); err != nil {
				s.Close()
				return nil, err
			}
		}
	default:
		if err := s.Send(args); err != nil {
			s.Close()
			return nil, err
		}
	}

	// response
	var header ResponseHeader
	if err := s.Recv(ctx, &header); err != nil {
		s.Close()
		return nil, err
	}

	if !header.Continue {
		defer s.Close()
	}

	resp := &Response{
		ResponseHeader: header,
		Stream:         s,
		Reply:          reply,
	}
	if resp.Error != nil {
		return resp, RemoteError(*resp.Error)
	}

	if reply == nil {
		if _, err := s.RecvRaw(ctx); err != nil {
			return resp, err
		}
	} else {
		if err := s.Recv(ctx, resp.Reply); err != nil {
			return resp, err
		}
	}

	return resp, nil
}
