// Completion: 100% - Typed emission API over the writer pipeline
package jit

import (
	"fmt"

	"github.com/xyproto/njx/internal/engine"
	"github.com/xyproto/njx/lir"
)

// FunctionBuilder emits the body of one function through a writer pipeline.
// Every emitting method returns the instruction that holds the result,
// which may be an earlier one when the optimizers merge or fold it.
type FunctionBuilder struct {
	ctx    *Context
	name   string
	ret    lir.Kind
	params []lir.Kind

	buf   *lir.Buffer
	pipe  *lir.Pipeline
	state *lifecycle
	slot  *Fragment

	nextParam int
	mask      lir.RetKind
}

// NewFunctionBuilder starts a function. The name is claimed in the registry
// immediately; a fragment already registered under it is retired.
func (c *Context) NewFunctionBuilder(name string, ret lir.Kind, params []lir.Kind, optimize bool) (*FunctionBuilder, error) {
	if c.destroyed {
		return nil, ErrContextDestroyed
	}
	if max := engine.MaxParams(c.platform); len(params) > max {
		return nil, newError(CategoryUsage, name, ErrTooManyParams, "%d declared, %s allows %d", len(params), c.platform, max)
	}
	for i, k := range params {
		if k != lir.KindI && k != lir.KindQ {
			return nil, newError(CategoryUsage, name, ErrBadParamKind, "parameter %d is %s", i, k)
		}
	}

	b := &FunctionBuilder{
		ctx:    c,
		name:   name,
		ret:    ret,
		params: append([]lir.Kind(nil), params...),
		buf:    c.arena.NewBuffer(name),
		state:  newLifecycle(),
	}
	b.slot = c.openSlot(name)
	b.pipe = lir.NewPipeline(b.buf, lir.PipelineConfig{
		Optimize: optimize,
		Validate: c.cfg.Validate,
		Verbose:  c.cfg.Verbose,
		Log:      c.cfg.Log,
		Params:   b.params,
	})
	c.tracef("jit: begin %s %s%v (%s)\n", ret, name, params, b.pipe)

	w := b.pipe.Head()
	w.Ins0(lir.OpStart)
	for i := range engine.CallingConventionFor(c.platform).SavedRegs() {
		w.InsParam(i, lir.KindQ, true)
	}
	return b, nil
}

// out is the head of the pipeline; emitting outside the Building state panics.
func (b *FunctionBuilder) out(operation string) lir.Writer {
	b.state.expect(StateBuilding, operation)
	return b.pipe.Head()
}

func (b *FunctionBuilder) Name() string        { return b.name }
func (b *FunctionBuilder) State() State        { return b.state.current }
func (b *FunctionBuilder) Buffer() *lir.Buffer { return b.buf }

// ReturnMask is the set of return kinds emitted so far.
func (b *FunctionBuilder) ReturnMask() lir.RetKind { return b.mask }

// Destroy tears the pipeline down. It never touches the fragment.
func (b *FunctionBuilder) Destroy() {
	if !b.pipe.Closed() {
		b.pipe.Close()
	}
}

// Constants

func (b *FunctionBuilder) ImmI(v int32) lir.Ref   { return b.out("ImmI").InsImmI(v) }
func (b *FunctionBuilder) ImmQ(v int64) lir.Ref   { return b.out("ImmQ").InsImmQ(v) }
func (b *FunctionBuilder) ImmD(v float64) lir.Ref { return b.out("ImmD").InsImmD(v) }
func (b *FunctionBuilder) ImmF(v float32) lir.Ref { return b.out("ImmF").InsImmF(v) }

// InsertParameter returns the next declared parameter: the n-th call gives
// the n-th parameter.
func (b *FunctionBuilder) InsertParameter() lir.Ref {
	w := b.out("InsertParameter")
	i := b.nextParam
	kind := lir.KindQ
	if i < len(b.params) {
		kind = b.params[i]
	}
	b.nextParam++
	return w.InsParam(i, kind, false)
}

func (b *FunctionBuilder) unary(op lir.Opcode, a lir.Ref) lir.Ref {
	return b.out(op.String()).Ins1(op, a)
}

func (b *FunctionBuilder) binary(op lir.Opcode, x, y lir.Ref) lir.Ref {
	return b.out(op.String()).Ins2(op, x, y)
}

// Integer arithmetic

func (b *FunctionBuilder) AddI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpAddI, x, y) }
func (b *FunctionBuilder) SubI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpSubI, x, y) }
func (b *FunctionBuilder) MulI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpMulI, x, y) }
func (b *FunctionBuilder) DivI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpDivI, x, y) }
func (b *FunctionBuilder) ModI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpModI, x, y) }
func (b *FunctionBuilder) AndI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpAndI, x, y) }
func (b *FunctionBuilder) OrI(x, y lir.Ref) lir.Ref   { return b.binary(lir.OpOrI, x, y) }
func (b *FunctionBuilder) XorI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpXorI, x, y) }
func (b *FunctionBuilder) LshI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLshI, x, y) }
func (b *FunctionBuilder) RshI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpRshI, x, y) }
func (b *FunctionBuilder) RshuI(x, y lir.Ref) lir.Ref { return b.binary(lir.OpRshuI, x, y) }
func (b *FunctionBuilder) NegI(x lir.Ref) lir.Ref     { return b.unary(lir.OpNegI, x) }
func (b *FunctionBuilder) NotI(x lir.Ref) lir.Ref     { return b.unary(lir.OpNotI, x) }

// Quad arithmetic. Shift counts are ints.

func (b *FunctionBuilder) AddQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpAddQ, x, y) }
func (b *FunctionBuilder) SubQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpSubQ, x, y) }
func (b *FunctionBuilder) MulQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpMulQ, x, y) }
func (b *FunctionBuilder) AndQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpAndQ, x, y) }
func (b *FunctionBuilder) OrQ(x, y lir.Ref) lir.Ref   { return b.binary(lir.OpOrQ, x, y) }
func (b *FunctionBuilder) XorQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpXorQ, x, y) }
func (b *FunctionBuilder) LshQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLshQ, x, y) }
func (b *FunctionBuilder) RshQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpRshQ, x, y) }
func (b *FunctionBuilder) RshuQ(x, y lir.Ref) lir.Ref { return b.binary(lir.OpRshuQ, x, y) }

// Floating point arithmetic

func (b *FunctionBuilder) AddD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpAddD, x, y) }
func (b *FunctionBuilder) SubD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpSubD, x, y) }
func (b *FunctionBuilder) MulD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpMulD, x, y) }
func (b *FunctionBuilder) DivD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpDivD, x, y) }
func (b *FunctionBuilder) NegD(x lir.Ref) lir.Ref    { return b.unary(lir.OpNegD, x) }

func (b *FunctionBuilder) AddF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpAddF, x, y) }
func (b *FunctionBuilder) SubF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpSubF, x, y) }
func (b *FunctionBuilder) MulF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpMulF, x, y) }
func (b *FunctionBuilder) DivF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpDivF, x, y) }
func (b *FunctionBuilder) NegF(x lir.Ref) lir.Ref    { return b.unary(lir.OpNegF, x) }

// Comparisons produce an int, 1 or 0.

func (b *FunctionBuilder) EqI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpEqI, x, y) }
func (b *FunctionBuilder) LtI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLtI, x, y) }
func (b *FunctionBuilder) GtI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpGtI, x, y) }
func (b *FunctionBuilder) LeI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLeI, x, y) }
func (b *FunctionBuilder) GeI(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpGeI, x, y) }
func (b *FunctionBuilder) LtuI(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLtuI, x, y) }
func (b *FunctionBuilder) GtuI(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGtuI, x, y) }
func (b *FunctionBuilder) LeuI(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLeuI, x, y) }
func (b *FunctionBuilder) GeuI(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGeuI, x, y) }

func (b *FunctionBuilder) EqQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpEqQ, x, y) }
func (b *FunctionBuilder) LtQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLtQ, x, y) }
func (b *FunctionBuilder) GtQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpGtQ, x, y) }
func (b *FunctionBuilder) LeQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpLeQ, x, y) }
func (b *FunctionBuilder) GeQ(x, y lir.Ref) lir.Ref  { return b.binary(lir.OpGeQ, x, y) }
func (b *FunctionBuilder) LtuQ(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLtuQ, x, y) }
func (b *FunctionBuilder) GtuQ(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGtuQ, x, y) }
func (b *FunctionBuilder) LeuQ(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLeuQ, x, y) }
func (b *FunctionBuilder) GeuQ(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGeuQ, x, y) }

func (b *FunctionBuilder) EqD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpEqD, x, y) }
func (b *FunctionBuilder) LtD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLtD, x, y) }
func (b *FunctionBuilder) GtD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGtD, x, y) }
func (b *FunctionBuilder) LeD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLeD, x, y) }
func (b *FunctionBuilder) GeD(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGeD, x, y) }

func (b *FunctionBuilder) EqF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpEqF, x, y) }
func (b *FunctionBuilder) LtF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLtF, x, y) }
func (b *FunctionBuilder) GtF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGtF, x, y) }
func (b *FunctionBuilder) LeF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpLeF, x, y) }
func (b *FunctionBuilder) GeF(x, y lir.Ref) lir.Ref { return b.binary(lir.OpGeF, x, y) }

// Conversions

func (b *FunctionBuilder) I2Q(x lir.Ref) lir.Ref   { return b.unary(lir.OpI2Q, x) }
func (b *FunctionBuilder) UI2UQ(x lir.Ref) lir.Ref { return b.unary(lir.OpUI2UQ, x) }
func (b *FunctionBuilder) Q2I(x lir.Ref) lir.Ref   { return b.unary(lir.OpQ2I, x) }
func (b *FunctionBuilder) I2D(x lir.Ref) lir.Ref   { return b.unary(lir.OpI2D, x) }
func (b *FunctionBuilder) UI2D(x lir.Ref) lir.Ref  { return b.unary(lir.OpUI2D, x) }
func (b *FunctionBuilder) D2I(x lir.Ref) lir.Ref   { return b.unary(lir.OpD2I, x) }
func (b *FunctionBuilder) Q2D(x lir.Ref) lir.Ref   { return b.unary(lir.OpQ2D, x) }
func (b *FunctionBuilder) I2F(x lir.Ref) lir.Ref   { return b.unary(lir.OpI2F, x) }
func (b *FunctionBuilder) F2I(x lir.Ref) lir.Ref   { return b.unary(lir.OpF2I, x) }
func (b *FunctionBuilder) F2D(x lir.Ref) lir.Ref   { return b.unary(lir.OpF2D, x) }
func (b *FunctionBuilder) D2F(x lir.Ref) lir.Ref   { return b.unary(lir.OpD2F, x) }
func (b *FunctionBuilder) DasQ(x lir.Ref) lir.Ref  { return b.unary(lir.OpDasQ, x) }
func (b *FunctionBuilder) QasD(x lir.Ref) lir.Ref  { return b.unary(lir.OpQasD, x) }

// Conditional moves pick iftrue when cond is nonzero.

func (b *FunctionBuilder) CmovI(cond, iftrue, iffalse lir.Ref) lir.Ref {
	return b.out("CmovI").Ins3(lir.OpCmovI, cond, iftrue, iffalse)
}

func (b *FunctionBuilder) CmovQ(cond, iftrue, iffalse lir.Ref) lir.Ref {
	return b.out("CmovQ").Ins3(lir.OpCmovQ, cond, iftrue, iffalse)
}

func (b *FunctionBuilder) CmovD(cond, iftrue, iffalse lir.Ref) lir.Ref {
	return b.out("CmovD").Ins3(lir.OpCmovD, cond, iftrue, iffalse)
}

// Memory. Every access is tagged with the single access region.

// Load emits any load opcode.
func (b *FunctionBuilder) Load(op lir.Opcode, ptr lir.Ref, off int32) lir.Ref {
	if op.Class() != lir.ClassLoad {
		panic("jit: Load with " + op.String())
	}
	return b.out(op.String()).InsLoad(op, ptr, off, lir.AccOther)
}

// Store emits any store opcode.
func (b *FunctionBuilder) Store(op lir.Opcode, val, ptr lir.Ref, off int32) lir.Ref {
	if op.Class() != lir.ClassStore {
		panic("jit: Store with " + op.String())
	}
	return b.out(op.String()).InsStore(op, val, ptr, off, lir.AccOther)
}

func (b *FunctionBuilder) LoadC2I(ptr lir.Ref, off int32) lir.Ref   { return b.Load(lir.OpLdC2I, ptr, off) }
func (b *FunctionBuilder) LoadUC2UI(ptr lir.Ref, off int32) lir.Ref { return b.Load(lir.OpLdUC2UI, ptr, off) }
func (b *FunctionBuilder) LoadS2I(ptr lir.Ref, off int32) lir.Ref   { return b.Load(lir.OpLdS2I, ptr, off) }
func (b *FunctionBuilder) LoadUS2UI(ptr lir.Ref, off int32) lir.Ref { return b.Load(lir.OpLdUS2UI, ptr, off) }
func (b *FunctionBuilder) LoadI(ptr lir.Ref, off int32) lir.Ref     { return b.Load(lir.OpLdI, ptr, off) }
func (b *FunctionBuilder) LoadQ(ptr lir.Ref, off int32) lir.Ref     { return b.Load(lir.OpLdQ, ptr, off) }
func (b *FunctionBuilder) LoadD(ptr lir.Ref, off int32) lir.Ref     { return b.Load(lir.OpLdD, ptr, off) }
func (b *FunctionBuilder) LoadF(ptr lir.Ref, off int32) lir.Ref     { return b.Load(lir.OpLdF, ptr, off) }
func (b *FunctionBuilder) LoadF2D(ptr lir.Ref, off int32) lir.Ref   { return b.Load(lir.OpLdF2D, ptr, off) }

func (b *FunctionBuilder) StoreI2C(val, ptr lir.Ref, off int32) lir.Ref { return b.Store(lir.OpStI2C, val, ptr, off) }
func (b *FunctionBuilder) StoreI2S(val, ptr lir.Ref, off int32) lir.Ref { return b.Store(lir.OpStI2S, val, ptr, off) }
func (b *FunctionBuilder) StoreI(val, ptr lir.Ref, off int32) lir.Ref   { return b.Store(lir.OpStI, val, ptr, off) }
func (b *FunctionBuilder) StoreQ(val, ptr lir.Ref, off int32) lir.Ref   { return b.Store(lir.OpStQ, val, ptr, off) }
func (b *FunctionBuilder) StoreD(val, ptr lir.Ref, off int32) lir.Ref   { return b.Store(lir.OpStD, val, ptr, off) }
func (b *FunctionBuilder) StoreF(val, ptr lir.Ref, off int32) lir.Ref   { return b.Store(lir.OpStF, val, ptr, off) }
func (b *FunctionBuilder) StoreD2F(val, ptr lir.Ref, off int32) lir.Ref { return b.Store(lir.OpStD2F, val, ptr, off) }

// Alloca reserves size bytes of stack for the duration of a call and
// returns its address as a quad.
func (b *FunctionBuilder) Alloca(size int32) lir.Ref {
	return b.out("Alloca").InsAlloc(size)
}

// Control flow

// AddLabel places a branch target at the current position.
func (b *FunctionBuilder) AddLabel() lir.Ref {
	return b.out("AddLabel").Ins0(lir.OpLabel)
}

// Br jumps to label. Pass lir.NoRef to set the target later with SetJmpTarget.
func (b *FunctionBuilder) Br(label lir.Ref) lir.Ref {
	return b.out("Br").InsBranch(lir.OpJ, lir.NoRef, label)
}

// CbrTrue jumps to label when cond is nonzero.
func (b *FunctionBuilder) CbrTrue(cond, label lir.Ref) lir.Ref {
	return b.out("CbrTrue").InsBranch(lir.OpJt, cond, label)
}

// CbrFalse jumps to label when cond is zero.
func (b *FunctionBuilder) CbrFalse(cond, label lir.Ref) lir.Ref {
	return b.out("CbrFalse").InsBranch(lir.OpJf, cond, label)
}

// SetJmpTarget patches a forward branch. A target can be set only once.
func (b *FunctionBuilder) SetJmpTarget(jmp, label lir.Ref) error {
	b.state.expect(StateBuilding, "SetJmpTarget")
	if err := b.buf.SetTarget(jmp, label); err != nil {
		return newError(CategoryUsage, b.name, err, "cannot point %s at %s", jmp, label)
	}
	return nil
}

// Switch emits a jump table on an int index with size entries. An index
// outside 0..size-1 falls through to the next instruction.
func (b *FunctionBuilder) Switch(index lir.Ref, size int) lir.Ref {
	return b.out("Switch").InsJtbl(index, size)
}

// SetSwitchTarget sets entry i of a jump table. Each entry can be set only once.
func (b *FunctionBuilder) SetSwitchTarget(sw lir.Ref, i int, label lir.Ref) error {
	b.state.expect(StateBuilding, "SetSwitchTarget")
	if err := b.buf.SetSwitchTarget(sw, i, label); err != nil {
		return newError(CategoryUsage, b.name, err, "cannot point %s[%d] at %s", sw, i, label)
	}
	return nil
}

// Live keeps v alive up to this point.
func (b *FunctionBuilder) Live(v lir.Ref) lir.Ref {
	op := lir.LiveOp(b.KindOf(v))
	if op == lir.OpNone {
		op = lir.OpLiveQ
	}
	return b.unary(op, v)
}

// Ins emits a unary, binary, cmov, live or return instruction by opcode,
// for front ends that work from opcode names.
func (b *FunctionBuilder) Ins(op lir.Opcode, operands ...lir.Ref) lir.Ref {
	want := 0
	switch op.Class() {
	case lir.ClassUnary, lir.ClassLive:
		want = 1
	case lir.ClassBinary:
		want = 2
	case lir.ClassCmov:
		want = 3
	case lir.ClassRet:
		if op == lir.OpRet {
			return b.Ret()
		}
		want = 1
	default:
		panic("jit: Ins cannot emit " + op.String())
	}
	if len(operands) != want {
		panic(fmt.Sprintf("jit: %s takes %d operands, got %d", op, want, len(operands)))
	}
	switch want {
	case 1:
		if op.Class() == lir.ClassRet {
			return b.ret1(op, lir.RetKindOf(op.Operand(0)), operands[0])
		}
		return b.unary(op, operands[0])
	case 2:
		return b.binary(op, operands[0], operands[1])
	default:
		return b.out(op.String()).Ins3(op, operands[0], operands[1], operands[2])
	}
}

// Returns. Each one adds its kind to the fragment's return mask.

func (b *FunctionBuilder) ret1(op lir.Opcode, mask lir.RetKind, v lir.Ref) lir.Ref {
	r := b.out(op.String()).Ins1(op, v)
	b.mask |= mask
	return r
}

func (b *FunctionBuilder) RetI(v lir.Ref) lir.Ref { return b.ret1(lir.OpRetI, lir.RetInt, v) }
func (b *FunctionBuilder) RetQ(v lir.Ref) lir.Ref { return b.ret1(lir.OpRetQ, lir.RetQuad, v) }
func (b *FunctionBuilder) RetD(v lir.Ref) lir.Ref { return b.ret1(lir.OpRetD, lir.RetDouble, v) }
func (b *FunctionBuilder) RetF(v lir.Ref) lir.Ref { return b.ret1(lir.OpRetF, lir.RetFloat, v) }

// Ret returns without a value.
func (b *FunctionBuilder) Ret() lir.Ref {
	r := b.out("Ret").Ins0(lir.OpRet)
	b.mask |= lir.RetVoid
	return r
}

// Inspection

// KindOf is the kind of value r produces, KindVoid for statements and unknown refs.
func (b *FunctionBuilder) KindOf(r lir.Ref) lir.Kind {
	if !b.buf.Valid(r) {
		return lir.KindVoid
	}
	return b.buf.At(r).Kind()
}

func (b *FunctionBuilder) IsI(r lir.Ref) bool { return b.KindOf(r) == lir.KindI }
func (b *FunctionBuilder) IsQ(r lir.Ref) bool { return b.KindOf(r) == lir.KindQ }
func (b *FunctionBuilder) IsD(r lir.Ref) bool { return b.KindOf(r) == lir.KindD }
func (b *FunctionBuilder) IsF(r lir.Ref) bool { return b.KindOf(r) == lir.KindF }

// Call emits a call to a compiled fragment or a registered function. An
// unknown name, or a callee the engine cannot reach, returns lir.NoRef and
// an error wrapping ErrUnresolvedCall; the builder stays usable.
func (b *FunctionBuilder) Call(name string, abi lir.ABI, args ...lir.Ref) (lir.Ref, error) {
	w := b.out("Call")
	ci := b.ctx.resolve(name)
	if ci == nil {
		msg := fmt.Sprintf("unknown function %s", name)
		if s := engine.SuggestNames(name, b.ctx.callees(), 1); len(s) > 0 {
			msg += fmt.Sprintf(" (did you mean %s?)", s[0])
		}
		return lir.NoRef, newError(CategoryCall, b.name, ErrUnresolvedCall, "%s", msg)
	}
	if !b.ctx.engine.CanCall(ci) {
		return lir.NoRef, newError(CategoryCall, b.name, ErrUnresolvedCall, "the %s engine cannot call %s", b.ctx.engine.Name(), name)
	}
	if len(args) != len(ci.Args) {
		return lir.NoRef, newError(CategoryCall, b.name, ErrCallArity, "%s takes %d arguments, got %d", name, len(ci.Args), len(args))
	}
	callee := *ci
	callee.ABI = abi
	return w.InsCall(&callee, args), nil
}
