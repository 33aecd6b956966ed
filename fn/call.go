package fn

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// Call wraps invoking a function via reflection, converting the arguments with
// ArgsTo and the returns with ParseReturn.
func Call(fn any, args []any) (_ []any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %s [%s]", p, identifyPanic())
		}
	}()
	fnval := reflect.ValueOf(fn)
	fnParams, err := ArgsTo(fnval.Type(), args)
	if err != nil {
		return nil, err
	}
	fnReturn := fnval.Call(fnParams)
	return ParseReturn(fnReturn)
}

// ArgsTo converts the arguments into `reflect.Value`s suitable to pass as
// parameters to a function with the given type via reflection. Variadic
// functions take any number of trailing arguments.
func ArgsTo(fntyp reflect.Type, args []any) ([]reflect.Value, error) {
	sig := signature{variadic: fntyp.IsVariadic()}
	for i := 0; i < fntyp.NumIn(); i++ {
		sig.params = append(sig.params, fntyp.In(i))
	}
	return sig.in(args)
}

// argValue converts a decoded argument to the parameter type t. Decoded
// values are generic: maps for structs, []interface{} for slices and
// whatever number type the codec produced for numbers.
func argValue(param any, t reflect.Type) (reflect.Value, error) {
	if param == nil {
		return reflect.Zero(t), nil
	}
	switch t.Kind() {
	case reflect.Struct:
		// decode to struct type using mapstructure
		arg := reflect.New(t)
		if err := mapstructure.Decode(param, arg.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("fn: mapstructure: %s", err.Error())
		}
		return arg.Elem(), nil
	case reflect.Slice:
		rv := reflect.ValueOf(param)
		if rv.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("fn: cannot use %T as %s", param, t)
		}
		// decode slice of structs to struct type using mapstructure
		if t.Elem().Kind() == reflect.Struct {
			nv := reflect.MakeSlice(t, rv.Len(), rv.Len())
			for i := 0; i < rv.Len(); i++ {
				ref := reflect.New(nv.Index(i).Type())
				if err := mapstructure.Decode(rv.Index(i).Interface(), ref.Interface()); err != nil {
					return reflect.Value{}, fmt.Errorf("fn: mapstructure: %s", err.Error())
				}
				nv.Index(i).Set(reflect.Indirect(ref))
			}
			return nv, nil
		}
		if rv.Type() == t {
			return rv, nil
		}
		return ensureType(rv, t), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		// json gives float64, cbor gives int64 or uint64
		rv := reflect.ValueOf(param)
		if !rv.CanConvert(t) {
			return reflect.Value{}, fmt.Errorf("fn: cannot use %T as %s", param, t)
		}
		return rv.Convert(t), nil
	case reflect.Interface:
		rv := reflect.ValueOf(param)
		if !rv.Type().AssignableTo(t) {
			return reflect.Value{}, fmt.Errorf("fn: cannot use %T as %s", param, t)
		}
		v := reflect.New(t).Elem()
		v.Set(rv)
		return v, nil
	default:
		rv := reflect.ValueOf(param)
		if !rv.CanConvert(t) && rv.Kind() != reflect.Slice {
			return reflect.Value{}, fmt.Errorf("fn: cannot use %T as %s", param, t)
		}
		return ensureType(rv, t), nil
	}
}

// ParseReturn splits the results of reflect.Call() into the values, and
// possibly an error.
// If the last value is a non-nil error, this will return `nil, err`.
// If the last value is a nil error it will be removed from the value list.
// Any remaining values will be converted and returned as `any` typed values.
func ParseReturn(ret []reflect.Value) ([]any, error) {
	if len(ret) == 0 {
		return nil, nil
	}
	last := ret[len(ret)-1]
	if last.Type().Implements(errorInterface) {
		if !last.IsNil() {
			return nil, last.Interface().(error)
		}
		ret = ret[:len(ret)-1]
	}
	out := make([]any, len(ret))
	for i, r := range ret {
		out[i] = r.Interface()
	}
	return out, nil
}

// identifyPanic returns where the recovered panic was raised.
func identifyPanic() string {
	pc := make([]uintptr, 16)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])
	for {
		f, more := frames.Next()
		if !strings.HasPrefix(f.Function, "runtime.") {
			return fmt.Sprintf("%s:%d", f.Function, f.Line)
		}
		if !more {
			return "unknown"
		}
	}
}

// ensureType converts v to t. Generic slices are converted element by
// element into slices and arrays of t's element type.
func ensureType(v reflect.Value, t reflect.Type) reflect.Value {
	if v.Kind() == reflect.Slice && (t.Kind() == reflect.Array || t.Kind() == reflect.Slice) && v.Type().Elem() != t.Elem() {
		var nv reflect.Value
		if t.Kind() == reflect.Array {
			nv = reflect.New(t).Elem()
		} else {
			nv = reflect.MakeSlice(t, v.Len(), v.Len())
		}
		for i := 0; i < v.Len() && i < nv.Len(); i++ {
			nv.Index(i).Set(elemValue(v.Index(i), t.Elem()))
		}
		return nv
	}
	if v.Type() != t {
		return v.Convert(t)
	}
	return v
}

func elemValue(v reflect.Value, t reflect.Type) reflect.Value {
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return reflect.Zero(t)
	}
	return v.Convert(t)
}
