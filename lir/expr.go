package lir

import "math"

// ExprFilter folds constant expressions and applies algebraic identities
// before the request reaches the next stage. It reads earlier instructions
// from the buffer to see which operands are constants.
type ExprFilter struct {
	Writer
	buf *Buffer

	// Folds counts requests answered without emitting the requested opcode.
	Folds int
}

// NewExprFilter wraps next with expression simplification over buf.
func NewExprFilter(next Writer, buf *Buffer) *ExprFilter {
	return &ExprFilter{Writer: next, buf: buf}
}

func (f *ExprFilter) String() string { return "expr" }

// constBits returns the constant payload of r when r is an immediate.
func (f *ExprFilter) constBits(r Ref) (uint64, bool) {
	if !f.buf.Valid(r) {
		return 0, false
	}
	ins := f.buf.At(r)
	if ins.Op.Class() != ClassImm {
		return 0, false
	}
	return ins.Imm, true
}

func (f *ExprFilter) isConst(r Ref, v uint64) bool {
	b, ok := f.constBits(r)
	return ok && b == v
}

// imm emits a constant of kind k with the given bits.
func (f *ExprFilter) imm(k Kind, bits uint64) Ref {
	f.Folds++
	switch k {
	case KindI:
		return f.Writer.InsImmI(AsI(bits))
	case KindQ:
		return f.Writer.InsImmQ(AsQ(bits))
	case KindD:
		return f.Writer.InsImmD(AsD(bits))
	case KindF:
		return f.Writer.InsImmF(AsF(bits))
	}
	panic("lir: ExprFilter: no constant form for " + k.String())
}

func (f *ExprFilter) same(r Ref) Ref {
	f.Folds++
	return r
}

func (f *ExprFilter) Ins1(op Opcode, a Ref) Ref {
	if op.Class() != ClassUnary {
		return f.Writer.Ins1(op, a)
	}
	if v, ok := f.constBits(a); ok {
		return f.imm(op.Result(), EvalUnary(op, v))
	}
	if f.buf.Valid(a) {
		inner := f.buf.At(a)
		switch {
		case (op == OpNegI || op == OpNotI || op == OpNegD || op == OpNegF) && inner.Op == op:
			return f.same(inner.A)
		case op == OpQ2I && (inner.Op == OpI2Q || inner.Op == OpUI2UQ):
			return f.same(inner.A)
		case op == OpDasQ && inner.Op == OpQasD, op == OpQasD && inner.Op == OpDasQ:
			return f.same(inner.A)
		}
	}
	return f.Writer.Ins1(op, a)
}

func (f *ExprFilter) Ins2(op Opcode, a, b Ref) Ref {
	if op.Class() != ClassBinary {
		return f.Writer.Ins2(op, a, b)
	}
	va, ca := f.constBits(a)
	vb, cb := f.constBits(b)
	if ca && cb && CanEval(op, va, vb) {
		return f.imm(op.Result(), EvalBinary(op, va, vb))
	}
	if ca && !cb && op.Commutative() {
		a, b = b, a
	}
	if r, ok := f.simplify(op, a, b); ok {
		return r
	}
	return f.Writer.Ins2(op, a, b)
}

// simplify applies the integer identities. Float arithmetic is left alone:
// x+0 and x*0 are not identities under IEEE rules.
func (f *ExprFilter) simplify(op Opcode, a, b Ref) (Ref, bool) {
	k := op.Operand(0)
	if k != KindI && k != KindQ {
		return NoRef, false
	}
	zero := uint64(0)
	ones := uint64(math.MaxUint64)
	if k == KindI {
		ones = math.MaxUint32
	}
	one := uint64(1)

	switch op {
	case OpAddI, OpAddQ, OpOrI, OpOrQ, OpXorI, OpXorQ,
		OpSubI, OpSubQ, OpLshI, OpLshQ, OpRshI, OpRshQ, OpRshuI, OpRshuQ:
		if f.isConst(b, zero) {
			return f.same(a), true
		}
	}

	switch op {
	case OpMulI, OpMulQ:
		if f.isConst(b, one) {
			return f.same(a), true
		}
		if f.isConst(b, zero) {
			return f.imm(k, 0), true
		}
	case OpDivI:
		if f.isConst(b, one) {
			return f.same(a), true
		}
	case OpAndI, OpAndQ:
		if f.isConst(b, zero) {
			return f.imm(k, 0), true
		}
		if f.isConst(b, ones) || a == b {
			return f.same(a), true
		}
	case OpOrI, OpOrQ:
		if f.isConst(b, ones) {
			return f.imm(k, ones), true
		}
		if a == b {
			return f.same(a), true
		}
	case OpSubI, OpSubQ, OpXorI, OpXorQ:
		if a == b {
			return f.imm(k, 0), true
		}
	case OpEqI, OpEqQ, OpLeI, OpLeQ, OpGeI, OpGeQ, OpLeuI, OpLeuQ, OpGeuI, OpGeuQ:
		if a == b {
			return f.imm(KindI, 1), true
		}
	case OpLtI, OpLtQ, OpGtI, OpGtQ, OpLtuI, OpLtuQ, OpGtuI, OpGtuQ:
		if a == b {
			return f.imm(KindI, 0), true
		}
	}
	return NoRef, false
}

func (f *ExprFilter) Ins3(op Opcode, a, b, c Ref) Ref {
	if op.Class() != ClassCmov {
		return f.Writer.Ins3(op, a, b, c)
	}
	if v, ok := f.constBits(a); ok {
		if AsI(v) != 0 {
			return f.same(b)
		}
		return f.same(c)
	}
	if b == c {
		return f.same(b)
	}
	return f.Writer.Ins3(op, a, b, c)
}

// InsBranch turns a conditional branch that is always taken into a jump.
// A branch that is never taken is still emitted so the caller can patch it.
func (f *ExprFilter) InsBranch(op Opcode, cond, target Ref) Ref {
	if op == OpJt || op == OpJf {
		if v, ok := f.constBits(cond); ok && (AsI(v) != 0) == (op == OpJt) {
			f.Folds++
			return f.Writer.InsBranch(OpJ, NoRef, target)
		}
	}
	return f.Writer.InsBranch(op, cond, target)
}
