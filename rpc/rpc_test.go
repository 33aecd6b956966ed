package rpc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/progrium/qnet-go/codec"
	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/rpc"
	"github.com/progrium/qnet-go/rpc/rpctest"
)

func fatal(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRPC(t *testing.T) {
	for _, c := range []codec.Codec{codec.CBORCodec{}, codec.JSONCodec{}} {
		client, _ := rpctest.NewPair(t, rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
			var in string
			if err := c.Receive(&in); err != nil {
				r.Return(err)
				return
			}
			r.Return(in)
		}), mux.Config{Codec: c, Tick: time.Millisecond})

		var out string
		resp, err := client.Call(testContext(t), "", "Hello world", &out)
		fatal(t, err)
		if resp.Continue {
			t.Fatal("unexpected continue")
		}
		if out != "Hello world" {
			t.Fatalf("unexpected return: %#v", out)
		}
	}
}

func TestRemoteError(t *testing.T) {
	client, _ := rpctest.NewPair(t, rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
		r.Return(errors.New("boom"))
	}), mux.Config{Tick: time.Millisecond})

	_, err := client.Call(testContext(t), "fail", nil, nil)
	var remote rpc.RemoteError
	if !errors.As(err, &remote) || string(remote) != "boom" {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func TestNoResponse(t *testing.T) {
	client, _ := rpctest.NewPair(t, rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
	}), mux.Config{Tick: time.Millisecond})

	var out interface{}
	_, err := client.Call(testContext(t), "", nil, &out)
	fatal(t, err)
	if out != nil {
		t.Fatalf("unexpected return: %#v", out)
	}
}

func TestRespondMux(t *testing.T) {
	calc := rpc.NewRespondMux()
	calc.Handle("Double", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		var n int
		c.Receive(&n)
		r.Return(n * 2)
	}))
	calc.Handle("/", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
		r.Return("calc fallback " + c.Selector)
	}))

	root := rpc.NewRespondMux()
	root.Handle("calc/", calc)
	root.Handle("ping", rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
		r.Return("pong")
	}))

	client, _ := rpctest.NewPair(t, root, mux.Config{Tick: time.Millisecond})
	ctx := testContext(t)

	var n int
	_, err := client.Call(ctx, "calc.Double", 21, &n)
	fatal(t, err)
	if n != 42 {
		t.Fatalf("unexpected return: %d", n)
	}

	var s string
	_, err = client.Call(ctx, "/calc/Triple", nil, &s)
	fatal(t, err)
	if s != "calc fallback /Triple" {
		t.Fatalf("unexpected return: %q", s)
	}

	_, err = client.Call(ctx, "ping", nil, &s)
	fatal(t, err)
	if s != "pong" {
		t.Fatalf("unexpected return: %q", s)
	}

	_, err = client.Call(ctx, "missing", nil, nil)
	var remote rpc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected not found error, got %v", err)
	}

	if root.Remove("ping") == nil {
		t.Fatal("expected removed handler")
	}
	if h, _ := root.Match("ping"); h != nil {
		t.Fatal("removed handler still matched")
	}
}

func TestContinueStreaming(t *testing.T) {
	client, _ := rpctest.NewPair(t, rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		var count int
		c.Receive(&count)
		s, err := r.Continue(count)
		if err != nil {
			return
		}
		for i := 0; i < count; i++ {
			s.Send(i)
		}
		s.Close()
	}), mux.Config{Tick: time.Millisecond})
	ctx := testContext(t)

	var total int
	resp, err := client.Call(ctx, "count", 3, &total)
	fatal(t, err)
	if !resp.Continue || total != 3 {
		t.Fatalf("unexpected response: %+v %d", resp.ResponseHeader, total)
	}
	for i := 0; i < total; i++ {
		var v int
		fatal(t, resp.Receive(ctx, &v))
		if v != i {
			t.Fatalf("received %d, want %d", v, i)
		}
	}
	if err := resp.Receive(ctx, new(int)); !errors.Is(err, mux.ErrStreamClosed) {
		t.Fatalf("expected closed stream, got %v", err)
	}
}

func TestStreamingArgs(t *testing.T) {
	client, _ := rpctest.NewPair(t, rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		sum := 0
		for i := 0; i < 3; i++ {
			var n int
			if err := c.Receive(&n); err != nil {
				r.Return(err)
				return
			}
			sum += n
		}
		r.Return(sum)
	}), mux.Config{Tick: time.Millisecond})

	args := make(chan interface{})
	go func() {
		for _, n := range []int{1, 2, 3} {
			args <- n
		}
		close(args)
	}()
	var sum int
	_, err := client.Call(testContext(t), "sum", args, &sum)
	fatal(t, err)
	if sum != 6 {
		t.Fatalf("unexpected sum: %d", sum)
	}
}

func TestCallback(t *testing.T) {
	// the server calls back into the client side during a call
	a, b := rpctest.ChannelPair(t, mux.Config{Tick: time.Millisecond})
	ctx := testContext(t)

	back := &rpc.Server{Handler: rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
		r.Return("from client")
	})}
	go back.Respond(ctx, a.Accept, a)

	srv := &rpc.Server{Handler: rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		c.Receive(nil)
		var s string
		if _, err := c.Caller.Call(c.Context, "back", nil, &s); err != nil {
			r.Return(err)
			return
		}
		r.Return("server saw " + s)
	})}
	go srv.Respond(ctx, b.Accept, b)

	var out string
	_, err := rpc.NewClient(a).Call(ctx, "", nil, &out)
	fatal(t, err)
	if out != "server saw from client" {
		t.Fatalf("unexpected return: %q", out)
	}
}
