// Completion: 100% - Portable engine runs every LIR opcode
// Package interp is the portable engine. It resolves a finished LIR buffer
// into a program and runs it directly, one instruction at a time.
package interp

import (
	"fmt"
	"io"
	"runtime"
	"unsafe"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/internal/ffi"
	"github.com/xyproto/njx/lir"
)

// Engine compiles LIR into interpreted programs.
type Engine struct {
	log io.Writer
}

// New creates the portable engine. log receives one line per compiled function when set.
func New(log io.Writer) *Engine {
	return &Engine{log: log}
}

func (e *Engine) Name() string { return "interp" }

// CanCall accepts Go callees, and native ones when this platform can call them.
func (e *Engine) CanCall(ci *lir.CallInfo) bool {
	if ci == nil {
		return false
	}
	return ci.Fn != nil || (ci.Addr != 0 && ffi.Available())
}

// Compile resolves buf into a Program.
func (e *Engine) Compile(buf *lir.Buffer, sig backend.Signature) (backend.Code, error) {
	if err := backend.CheckTargets(buf); err != nil {
		return nil, err
	}
	p := &Program{
		name:    buf.Name(),
		nparams: len(sig.Params),
		code:    make([]lir.Ins, buf.Len()),
		allocs:  make(map[lir.Ref]int),
		natives: make(map[lir.Ref]ffi.Func),
	}
	for r := lir.Ref(1); int(r) < buf.Len(); r++ {
		ins := buf.At(r)
		p.code[r] = *ins
		switch ins.Op.Class() {
		case lir.ClassAlloc:
			p.frame = (p.frame + 15) &^ 15
			p.allocs[r] = p.frame
			p.frame += int(ins.Imm)
		case lir.ClassCall:
			ci := ins.Call
			if ci.Fn != nil {
				continue
			}
			if ci.Addr == 0 {
				return nil, backend.Fail(p.name, r, fmt.Errorf("call to %s has no implementation", ci.Name))
			}
			fn, err := ffi.Bind(ci.Addr, ci.Ret, ci.Args)
			if err != nil {
				return nil, backend.Fail(p.name, r, err)
			}
			p.natives[r] = fn
		}
	}
	if e.log != nil {
		fmt.Fprintf(e.log, "interp: %s: %d instructions, %d byte frame\n", p.name, buf.Len()-1, p.frame)
	}
	return p, nil
}

// Close is a no-op: programs own their memory.
func (e *Engine) Close() error {
	return nil
}

// Program is one resolved function.
type Program struct {
	name    string
	nparams int
	code    []lir.Ins // indexed by Ref; code[0] is unused
	frame   int
	allocs  map[lir.Ref]int // allocp offsets into the frame
	natives map[lir.Ref]ffi.Func
}

func (p *Program) Entry() uintptr { return 0 }

func (p *Program) Size() int { return len(p.code) }

func (p *Program) Release() {
	p.code = nil
	p.natives = nil
}

// Call runs the program. Every call gets its own frame, so programs are reentrant.
func (p *Program) Call(args []uint64) uint64 {
	if p.code == nil {
		panic("interp: call of released program " + p.name)
	}
	if len(args) < p.nparams {
		panic(fmt.Sprintf("interp: %s takes %d arguments, got %d", p.name, p.nparams, len(args)))
	}
	// 16 spare bytes let the frame base be rounded up to 16.
	frame := make([]uint64, (p.frame+31)/8)
	base := (uintptr(unsafe.Pointer(&frame[0])) + 15) &^ 15
	ret := p.run(args, base)
	runtime.KeepAlive(frame)
	return ret
}

func (p *Program) run(args []uint64, base uintptr) uint64 {
	vals := make([]uint64, len(p.code))
	pc := lir.Ref(1)
	for int(pc) < len(p.code) {
		r := pc
		ins := &p.code[r]
		pc++
		switch ins.Op.Class() {
		case lir.ClassStart, lir.ClassLabel, lir.ClassLive:

		case lir.ClassParam:
			// Saved-register params have no value outside native code.
			if !ins.Saved {
				vals[r] = args[ins.Imm]
			}

		case lir.ClassAlloc:
			vals[r] = uint64(base) + uint64(p.allocs[r])

		case lir.ClassImm:
			vals[r] = ins.Imm

		case lir.ClassUnary:
			vals[r] = lir.EvalUnary(ins.Op, vals[ins.A])

		case lir.ClassBinary:
			vals[r] = lir.EvalBinary(ins.Op, vals[ins.A], vals[ins.B])

		case lir.ClassCmov:
			vals[r] = lir.EvalCmov(vals[ins.A], vals[ins.B], vals[ins.C])

		case lir.ClassLoad:
			vals[r] = load(ins.Op, uintptr(vals[ins.A])+uintptr(int64(ins.Disp)))

		case lir.ClassStore:
			store(ins.Op, vals[ins.A], uintptr(vals[ins.B])+uintptr(int64(ins.Disp)))

		case lir.ClassBranch:
			switch ins.Op {
			case lir.OpJ:
				pc = ins.Target
			case lir.OpJt:
				if lir.AsI(vals[ins.A]) != 0 {
					pc = ins.Target
				}
			case lir.OpJf:
				if lir.AsI(vals[ins.A]) == 0 {
					pc = ins.Target
				}
			}

		case lir.ClassJtbl:
			// An index outside the table falls through, as native code does.
			if i := lir.AsI(vals[ins.A]); i >= 0 && int(i) < len(ins.Targets) {
				pc = ins.Targets[i]
			}

		case lir.ClassCall:
			in := make([]uint64, len(ins.Args))
			for i, a := range ins.Args {
				in[i] = vals[a]
			}
			if fn := p.natives[r]; fn != nil {
				vals[r] = fn(in)
			} else {
				vals[r] = ins.Call.Fn(in)
			}

		case lir.ClassRet:
			if ins.Op == lir.OpRet {
				return 0
			}
			return vals[ins.A]

		case lir.ClassGuard:
			return 0

		default:
			panic(fmt.Sprintf("interp: %s: cannot run %s at %s", p.name, ins.Op, r))
		}
	}
	return 0
}

func load(op lir.Opcode, addr uintptr) uint64 {
	ptr := unsafe.Pointer(addr)
	switch op {
	case lir.OpLdC2I:
		return lir.BitsI(int32(*(*int8)(ptr)))
	case lir.OpLdUC2UI:
		return uint64(*(*uint8)(ptr))
	case lir.OpLdS2I:
		return lir.BitsI(int32(*(*int16)(ptr)))
	case lir.OpLdUS2UI:
		return uint64(*(*uint16)(ptr))
	case lir.OpLdI, lir.OpLdF:
		return uint64(*(*uint32)(ptr))
	case lir.OpLdQ, lir.OpLdD:
		return *(*uint64)(ptr)
	case lir.OpLdF2D:
		return lir.BitsD(float64(*(*float32)(ptr)))
	}
	panic("interp: not a load: " + op.String())
}

func store(op lir.Opcode, v uint64, addr uintptr) {
	ptr := unsafe.Pointer(addr)
	switch op {
	case lir.OpStI2C:
		*(*uint8)(ptr) = uint8(v)
	case lir.OpStI2S:
		*(*uint16)(ptr) = uint16(v)
	case lir.OpStI, lir.OpStF:
		*(*uint32)(ptr) = uint32(v)
	case lir.OpStQ, lir.OpStD:
		*(*uint64)(ptr) = v
	case lir.OpStD2F:
		*(*float32)(ptr) = float32(lir.AsD(v))
	default:
		panic("interp: not a store: " + op.String())
	}
}
