package jit

import (
	"fmt"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/lir"
)

// Callable is the typed entry point of a compiled fragment. It is exactly
// one of IntFunc, QuadFunc, DoubleFunc, FloatFunc or VoidFunc. Arguments
// are passed as int64; int parameters receive the low 32 bits.
type Callable interface {
	Kind() lir.Kind
	callable()
}

type (
	IntFunc    func(args ...int64) int32
	QuadFunc   func(args ...int64) int64
	DoubleFunc func(args ...int64) float64
	FloatFunc  func(args ...int64) float32
	VoidFunc   func(args ...int64)
)

func (IntFunc) Kind() lir.Kind    { return lir.KindI }
func (QuadFunc) Kind() lir.Kind   { return lir.KindQ }
func (DoubleFunc) Kind() lir.Kind { return lir.KindD }
func (FloatFunc) Kind() lir.Kind  { return lir.KindF }
func (VoidFunc) Kind() lir.Kind   { return lir.KindVoid }

func (IntFunc) callable()    {}
func (QuadFunc) callable()   {}
func (DoubleFunc) callable() {}
func (FloatFunc) callable()  {}
func (VoidFunc) callable()   {}

// rawCall adapts int64 arguments to the raw bits an engine expects.
func rawCall(name string, code backend.Code, params []lir.Kind) func([]int64) uint64 {
	return func(args []int64) uint64 {
		if len(args) != len(params) {
			panic(fmt.Sprintf("jit: %s takes %d arguments, got %d", name, len(params), len(args)))
		}
		raw := make([]uint64, len(args))
		for i, a := range args {
			if params[i] == lir.KindI {
				raw[i] = lir.BitsI(int32(a))
			} else {
				raw[i] = lir.BitsQ(a)
			}
		}
		return code.Call(raw)
	}
}

// newCallable builds the typed entry point for a single-bit return mask.
func newCallable(name string, mask lir.RetKind, code backend.Code, params []lir.Kind) (Callable, error) {
	if !mask.Single() {
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousReturn, mask)
	}
	call := rawCall(name, code, params)
	switch mask {
	case lir.RetInt:
		return IntFunc(func(args ...int64) int32 { return lir.AsI(call(args)) }), nil
	case lir.RetQuad:
		return QuadFunc(func(args ...int64) int64 { return lir.AsQ(call(args)) }), nil
	case lir.RetDouble:
		return DoubleFunc(func(args ...int64) float64 { return lir.AsD(call(args)) }), nil
	case lir.RetFloat:
		return FloatFunc(func(args ...int64) float32 { return lir.AsF(call(args)) }), nil
	default:
		return VoidFunc(func(args ...int64) { call(args) }), nil
	}
}

// Fragment is one compiled function, kept by its Context until the Context is destroyed.
type Fragment struct {
	Name      string
	Ret       lir.RetKind
	Params    []lir.Kind
	Func      Callable
	ProfileID int // order of creation within the Context, starting at 1

	code backend.Code
	buf  *lir.Buffer
}

// Entry is the native entry address, or 0 when the engine does not produce machine code.
func (f *Fragment) Entry() uintptr {
	if f.code == nil {
		return 0
	}
	return f.code.Entry()
}

// Size is the size of the compiled code in bytes, or in instructions for the portable engine.
func (f *Fragment) Size() int {
	if f.code == nil {
		return 0
	}
	return f.code.Size()
}

// Buffer is the sealed LIR the fragment was compiled from.
func (f *Fragment) Buffer() *lir.Buffer {
	return f.buf
}

// Call runs the fragment with raw value bits and returns raw bits.
func (f *Fragment) Call(args ...uint64) uint64 {
	return f.code.Call(args)
}

// callInfo describes the fragment as a callee for later fragments.
func (f *Fragment) callInfo() *lir.CallInfo {
	return &lir.CallInfo{
		Name: f.Name,
		Addr: f.code.Entry(),
		Fn:   f.code.Call,
		Ret:  f.Ret.Kind(),
		Args: f.Params,
	}
}

func (f *Fragment) release() {
	if f.code != nil {
		f.code.Release()
		f.code = nil
	}
}

func (f *Fragment) String() string {
	return fmt.Sprintf("%s %s%v", f.Ret, f.Name, f.Params)
}
