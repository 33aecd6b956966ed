package fn

import (
	"fmt"
	"reflect"

	"github.com/progrium/qnet-go/rpc"
)

// HandlerFrom uses reflection to make a handler from a function or from the
// methods of a struct. For a struct, each exported method is registered on a
// RespondMux under its name, and a struct that is itself an rpc.Handler
// also catches every other selector.
//
// The argument message of a call is an array holding the arguments in
// order (see Args). A nil message calls without arguments, and any other
// value is passed as the only argument, so a byte string or a map can be
// sent as is. Numbers are converted to the parameter type whichever codec
// decoded them. Variadic functions take any number of trailing arguments,
// and a final *rpc.Call parameter receives the call being handled.
//
// The reply is nothing for functions without results, the value for one
// result and an array for several. A non-nil error as last result is
// returned as a remote error instead. Panics are recovered and returned as
// errors too.
func HandlerFrom(v interface{}) rpc.Handler {
	rv := reflect.Indirect(reflect.ValueOf(v))
	switch rv.Kind() {
	case reflect.Func:
		return fromFunc(reflect.ValueOf(v), reflect.Value{})
	case reflect.Struct:
		return fromMethods(v)
	default:
		panic(fmt.Sprintf("fn: cannot make a handler from %T", v))
	}
}

// Args is the expected argument value for calls made to HandlerFrom handlers.
// Since it is just a slice of empty interface values, you can alternatively use
// more specific slice types ([]int{}, etc) if all arguments are of the same type.
type Args []interface{}

func fromMethods(rcvr interface{}) rpc.Handler {
	t := reflect.TypeOf(rcvr)
	h, isHandler := rcvr.(rpc.Handler)
	mux := rpc.NewRespondMux()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if isHandler && m.Name == "RespondRPC" {
			continue
		}
		mux.Handle(m.Name, fromFunc(m.Func, reflect.ValueOf(rcvr)))
	}
	if isHandler {
		mux.Handle("/", h)
	}
	return mux
}

func fromFunc(fn, rcvr reflect.Value) rpc.Handler {
	sig := signatureOf(fn.Type(), rcvr.IsValid())
	return rpc.HandlerFunc(func(r rpc.Responder, c *rpc.Call) {
		defer func() {
			if p := recover(); p != nil {
				r.Return(fmt.Errorf("panic: %v [%s]", p, identifyPanic()))
			}
		}()

		var msg interface{}
		if err := c.Receive(&msg); err != nil {
			r.Return(fmt.Errorf("fn: args: %w", err))
			return
		}

		in, err := sig.in(argList(msg))
		if err != nil {
			r.Return(err)
			return
		}
		if rcvr.IsValid() {
			in = append([]reflect.Value{rcvr}, in...)
		}
		if sig.call {
			in = append(in, reflect.ValueOf(c))
		}

		ret, err := ParseReturn(fn.Call(in))
		if err != nil {
			r.Return(err)
			return
		}
		r.Return(reply(ret))
	})
}

// argList splits a decoded argument message into arguments.
func argList(msg interface{}) []interface{} {
	switch msg := msg.(type) {
	case nil:
		return nil
	case []interface{}:
		return msg
	default:
		return []interface{}{msg}
	}
}

func reply(ret []interface{}) interface{} {
	switch len(ret) {
	case 0:
		return nil
	case 1:
		return ret[0]
	default:
		return ret
	}
}

var callType = reflect.TypeOf(&rpc.Call{})

// signature describes the parameters a call message fills.
type signature struct {
	params   []reflect.Type
	variadic bool
	call     bool
}

func signatureOf(t reflect.Type, method bool) signature {
	var sig signature
	first := 0
	if method {
		first = 1
	}
	last := t.NumIn()
	if last > first && !t.IsVariadic() && t.In(last-1) == callType {
		sig.call = true
		last--
	}
	for i := first; i < last; i++ {
		sig.params = append(sig.params, t.In(i))
	}
	sig.variadic = t.IsVariadic()
	return sig
}

// in converts args to the parameter values, without receiver and call.
func (s signature) in(args []interface{}) ([]reflect.Value, error) {
	min := len(s.params)
	if s.variadic {
		min--
	}
	if len(args) > len(s.params) && !s.variadic {
		return nil, fmt.Errorf("fn: too many input arguments: got %d, want %d", len(args), len(s.params))
	}
	if len(args) < min {
		return nil, fmt.Errorf("fn: too few input arguments: got %d, want %d", len(args), min)
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		t := s.param(i)
		v, err := argValue(arg, t)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

func (s signature) param(i int) reflect.Type {
	if s.variadic && i >= len(s.params)-1 {
		return s.params[len(s.params)-1].Elem()
	}
	return s.params[i]
}
