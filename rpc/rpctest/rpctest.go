// Package rpctest connects an rpc client and server over an in-process
// channel pair.
package rpctest

import (
	"context"
	"testing"

	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/rpc"
	"github.com/progrium/qnet-go/transport"
)

// NewPair returns a client whose calls are answered by handler. Both
// channels are closed when the test ends.
func NewPair(t testing.TB, handler rpc.Handler, cfg mux.Config) (*rpc.Client, *rpc.Server) {
	t.Helper()
	a, b := ChannelPair(t, cfg)

	srv := &rpc.Server{Handler: handler}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Respond(ctx, b.Accept, b)

	return rpc.NewClient(a), srv
}

// ChannelPair returns two established channels connected over mpsc. The
// first is the initiator.
func ChannelPair(t testing.TB, cfg mux.Config) (*mux.Channel, *mux.Channel) {
	t.Helper()
	ctx := context.Background()

	l, err := transport.Listen(ctx, transport.Address{Kind: transport.KindMpsc})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	acceptErr := make(chan error, 1)
	var accepted transport.Conn
	go func() {
		var err error
		accepted, err = l.Accept(ctx)
		acceptErr <- err
	}()
	dialed, err := transport.Dial(ctx, l.Addr())
	if err != nil {
		t.Fatal(err)
	}
	if err := <-acceptErr; err != nil {
		t.Fatal(err)
	}

	a := mux.NewChannel(dialed, true, mux.Identity{Pid: [16]byte{1}}, cfg)
	b := mux.NewChannel(accepted, false, mux.Identity{Pid: [16]byte{2}}, cfg)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	for _, ch := range []*mux.Channel{a, b} {
		if err := ch.Handshake(ctx); err != nil {
			t.Fatal(err)
		}
	}
	return a, b
}
