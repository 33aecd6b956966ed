package fn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/progrium/qnet-go/codec"
	"github.com/progrium/qnet-go/mux"
	"github.com/progrium/qnet-go/rpc"
	"github.com/progrium/qnet-go/rpc/rpctest"
)

var codecs = map[string]codec.Codec{
	"cbor": codec.CBORCodec{},
	"json": codec.JSONCodec{},
}

func newPair(t *testing.T, h rpc.Handler, c codec.Codec) *rpc.Client {
	client, _ := rpctest.NewPair(t, h, mux.Config{Codec: c, Tick: time.Millisecond})
	return client
}

func TestHandlerFromFunc(t *testing.T) {
	for name, c := range codecs {
		t.Run(name, func(t *testing.T) {
			t.Run("int sum", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) int {
					return a + b
				}), c)

				var sum int
				if _, err := client.Call(context.Background(), "", Args{2, 3}, &sum); err != nil {
					t.Fatal(err)
				}
				if sum != 5 {
					t.Fatalf("unexpected sum: %v", sum)
				}
			})

			t.Run("negative and float", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a int64, b float64) float64 {
					return float64(a) * b
				}), c)

				var out float64
				if _, err := client.Call(context.Background(), "", Args{-4, 0.5}, &out); err != nil {
					t.Fatal(err)
				}
				if out != -2 {
					t.Fatalf("unexpected result: %v", out)
				}
			})

			t.Run("nil error", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) error {
					return nil
				}), c)

				if _, err := client.Call(context.Background(), "", Args{2, 3}, nil); err != nil {
					t.Fatal(err)
				}
			})

			t.Run("not enough args", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) int {
					return a + b
				}), c)

				var sum int
				_, err := client.Call(context.Background(), "", Args{2}, &sum)
				if err == nil || !strings.Contains(err.Error(), "too few") {
					t.Fatalf("unexpected error: %v", err)
				}
			})

			t.Run("too many args", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) int {
					return a + b
				}), c)

				var sum int
				_, err := client.Call(context.Background(), "", Args{2, 3, 5}, &sum)
				if err == nil || !strings.Contains(err.Error(), "too many") {
					t.Fatalf("unexpected error: %v", err)
				}
			})

			t.Run("with call", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int, call *rpc.Call) int {
					if call.Selector != "/sum" {
						return -1
					}
					return a + b
				}), c)

				var sum int
				if _, err := client.Call(context.Background(), "sum", Args{2, 3}, &sum); err != nil {
					t.Fatal(err)
				}
				if sum != 5 {
					t.Fatalf("unexpected sum: %v", sum)
				}
			})

			t.Run("struct and slice args", func(t *testing.T) {
				type point struct {
					X, Y int
				}
				client := newPair(t, HandlerFrom(func(origin point, ps []point) int {
					n := 0
					for _, p := range ps {
						n += p.X - origin.X + p.Y - origin.Y
					}
					return n
				}), c)

				var n int
				args := Args{point{1, 1}, []point{{2, 3}, {4, 5}}}
				if _, err := client.Call(context.Background(), "", args, &n); err != nil {
					t.Fatal(err)
				}
				if n != 10 {
					t.Fatalf("unexpected result: %v", n)
				}
			})

			t.Run("return error", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) error {
					return errors.New("test")
				}), c)

				var sum int
				_, err := client.Call(context.Background(), "", Args{2, 3}, &sum)
				if err == nil || !strings.Contains(err.Error(), "test") {
					t.Fatalf("unexpected error: %v", err)
				}
			})

			t.Run("return error with value", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) (int, error) {
					return a + b, errors.New("test")
				}), c)

				var sum int
				_, err := client.Call(context.Background(), "", Args{2, 3}, &sum)
				if err == nil || !strings.Contains(err.Error(), "test") {
					t.Fatalf("unexpected error: %v", err)
				}
			})

			t.Run("single value arg", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(m map[string]interface{}) int {
					return len(m)
				}), c)

				var n int
				if _, err := client.Call(context.Background(), "", map[string]interface{}{"a": 1, "b": 2}, &n); err != nil {
					t.Fatal(err)
				}
				if n != 2 {
					t.Fatalf("unexpected result: %v", n)
				}
			})

			t.Run("variadic", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(prefix string, xs ...int) string {
					sum := 0
					for _, x := range xs {
						sum += x
					}
					return prefix + strconv.Itoa(sum)
				}), c)

				var out string
				if _, err := client.Call(context.Background(), "", Args{"sum=", 1, 2, 3}, &out); err != nil {
					t.Fatal(err)
				}
				if out != "sum=6" {
					t.Fatalf("unexpected result: %q", out)
				}
				if _, err := client.Call(context.Background(), "", Args{"none="}, &out); err != nil {
					t.Fatal(err)
				}
				if out != "none=0" {
					t.Fatalf("unexpected result: %q", out)
				}
				_, err := client.Call(context.Background(), "", nil, &out)
				if err == nil || !strings.Contains(err.Error(), "too few") {
					t.Fatalf("unexpected error: %v", err)
				}
			})

			t.Run("multiple returns", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func(a, b int) (int, string, error) {
					return a + b, "ok", nil
				}), c)

				var out []interface{}
				if _, err := client.Call(context.Background(), "", Args{2, 3}, &out); err != nil {
					t.Fatal(err)
				}
				if len(out) != 2 || fmt.Sprint(out[0]) != "5" || out[1] != "ok" {
					t.Fatalf("unexpected result: %v", out)
				}
			})

			t.Run("panic", func(t *testing.T) {
				client := newPair(t, HandlerFrom(func() int {
					panic("oops")
				}), c)

				_, err := client.Call(context.Background(), "", nil, nil)
				if err == nil || !strings.Contains(err.Error(), "oops") {
					t.Fatalf("unexpected error: %v", err)
				}
			})
		})
	}
}

type calculator struct{}

func (calculator) Add(a, b int) int {
	return a + b
}

func (calculator) Echo(s string) string {
	return s
}

func TestHandlerFromMethods(t *testing.T) {
	client := newPair(t, HandlerFrom(calculator{}), codec.CBORCodec{})
	ctx := context.Background()

	var sum int
	if _, err := client.Call(ctx, "Add", Args{20, 22}, &sum); err != nil {
		t.Fatal(err)
	}
	if sum != 42 {
		t.Fatalf("unexpected sum: %v", sum)
	}

	var s string
	if _, err := client.Call(ctx, "Echo", Args{"hi"}, &s); err != nil {
		t.Fatal(err)
	}
	if s != "hi" {
		t.Fatalf("unexpected echo: %q", s)
	}

	_, err := client.Call(ctx, "Missing", nil, nil)
	var remote rpc.RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected remote error, got %v", err)
	}
}
