package rpc

import (
	"github.com/progrium/qnet-go/mux"
)

// Responder answers a Call. Return ends the call; Continue answers but
// hands the stream to the handler.
type Responder interface {
	Header() *ResponseHeader
	Return(interface{}) error
	Continue(interface{}) (*mux.Stream, error)
	Send(interface{}) error
}

type responder struct {
	header    *ResponseHeader
	stream    *mux.Stream
	responded bool
}

func (r *responder) Header() *ResponseHeader {
	return r.header
}

func (r *responder) Send(v interface{}) error {
	return r.stream.Send(v)
}

func (r *responder) Return(v interface{}) error {
	return r.respond(v, false)
}

func (r *responder) Continue(v interface{}) (*mux.Stream, error) {
	return r.stream, r.respond(v, true)
}

func (r *responder) respond(v interface{}, continue_ bool) error {
	r.responded = true
	r.header.Continue = continue_

	// if v is error, set v to nil
	// and put error in header
	if e, ok := v.(error); ok {
		v = nil
		errStr := e.Error()
		r.header.Error = &errStr
	}

	if err := r.Send(r.header); err != nil {
		return err
	}
	if err := r.Send(v); err != nil {
		return err
	}

	if !continue_ {
		return r.stream.Close()
	}
	return nil
}
