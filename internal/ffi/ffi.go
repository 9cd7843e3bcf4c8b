// Package ffi calls native entry points with LIR signatures.
//
// Arguments and results travel as raw value bits, the same encoding the
// rest of the compiler uses: an int in the low 32 bits, a double as its
// IEEE bits, a float as its IEEE bits in the low 32 bits.
package ffi

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/xyproto/njx/lir"
)

// ErrUnsupported is returned on platforms without a native call path.
var ErrUnsupported = errors.New("ffi: native calls are not supported on this platform")

// Func calls native code with raw value bits.
type Func func(args []uint64) uint64

func goType(k lir.Kind) (reflect.Type, error) {
	switch k {
	case lir.KindI:
		return reflect.TypeOf((*int32)(nil)).Elem(), nil
	case lir.KindQ:
		return reflect.TypeOf((*int64)(nil)).Elem(), nil
	case lir.KindD:
		return reflect.TypeOf((*float64)(nil)).Elem(), nil
	case lir.KindF:
		return reflect.TypeOf((*float32)(nil)).Elem(), nil
	}
	return nil, fmt.Errorf("ffi: no native type for %s", k)
}

// FuncType builds the Go func type for a signature.
func FuncType(ret lir.Kind, args []lir.Kind) (reflect.Type, error) {
	in := make([]reflect.Type, len(args))
	for i, k := range args {
		t, err := goType(k)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = t
	}
	var out []reflect.Type
	if ret != lir.KindVoid {
		t, err := goType(ret)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		out = []reflect.Type{t}
	}
	return reflect.FuncOf(in, out, false), nil
}

func toValue(k lir.Kind, b uint64) reflect.Value {
	switch k {
	case lir.KindI:
		return reflect.ValueOf(lir.AsI(b))
	case lir.KindQ:
		return reflect.ValueOf(lir.AsQ(b))
	case lir.KindD:
		return reflect.ValueOf(lir.AsD(b))
	default:
		return reflect.ValueOf(lir.AsF(b))
	}
}

func fromValue(k lir.Kind, v reflect.Value) uint64 {
	switch k {
	case lir.KindI:
		return lir.BitsI(int32(v.Int()))
	case lir.KindQ:
		return lir.BitsQ(v.Int())
	case lir.KindD:
		return lir.BitsD(v.Float())
	case lir.KindF:
		return lir.BitsF(float32(v.Float()))
	}
	return 0
}

// Bind returns a Func calling the native code at addr.
func Bind(addr uintptr, ret lir.Kind, args []lir.Kind) (Func, error) {
	if addr == 0 {
		return nil, errors.New("ffi: nil entry point")
	}
	ft, err := FuncType(ret, args)
	if err != nil {
		return nil, err
	}
	fp := reflect.New(ft)
	if err := register(fp.Interface(), addr); err != nil {
		return nil, err
	}
	fn := fp.Elem()
	kinds := append([]lir.Kind(nil), args...)
	return func(raw []uint64) uint64 {
		vals := make([]reflect.Value, len(kinds))
		for i, k := range kinds {
			vals[i] = toValue(k, raw[i])
		}
		res := fn.Call(vals)
		if len(res) == 0 {
			return 0
		}
		return fromValue(ret, res[0])
	}, nil
}
