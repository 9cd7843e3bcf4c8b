// Completion: 100% - Writer contract and terminal buffer writer complete
package lir

import "math"

// Writer is the emission contract every pipeline stage implements.
// Each call returns the instruction that represents the request, which may
// be an earlier instruction when a stage merges or folds it.
type Writer interface {
	Ins0(op Opcode) Ref
	Ins1(op Opcode, a Ref) Ref
	Ins2(op Opcode, a, b Ref) Ref
	Ins3(op Opcode, a, b, c Ref) Ref

	InsImmI(v int32) Ref
	InsImmQ(v int64) Ref
	InsImmD(v float64) Ref
	InsImmF(v float32) Ref

	InsParam(index int, kind Kind, saved bool) Ref
	InsAlloc(size int32) Ref

	InsLoad(op Opcode, base Ref, disp int32, acc AccSet) Ref
	InsStore(op Opcode, val, base Ref, disp int32, acc AccSet) Ref

	InsBranch(op Opcode, cond, target Ref) Ref
	InsJtbl(index Ref, size int) Ref

	InsCall(ci *CallInfo, args []Ref) Ref
	InsGuard(op Opcode, cond Ref, exit *GuardRecord) Ref
}

// BufWriter is the innermost stage: it appends to the Buffer.
type BufWriter struct {
	buf *Buffer
}

// NewBufWriter creates the terminal stage for buf.
func NewBufWriter(buf *Buffer) *BufWriter {
	return &BufWriter{buf: buf}
}

func (w *BufWriter) String() string { return "buffer" }

func (w *BufWriter) Ins0(op Opcode) Ref {
	return w.buf.Append(Ins{Op: op})
}

func (w *BufWriter) Ins1(op Opcode, a Ref) Ref {
	return w.buf.Append(Ins{Op: op, A: a})
}

func (w *BufWriter) Ins2(op Opcode, a, b Ref) Ref {
	return w.buf.Append(Ins{Op: op, A: a, B: b})
}

func (w *BufWriter) Ins3(op Opcode, a, b, c Ref) Ref {
	return w.buf.Append(Ins{Op: op, A: a, B: b, C: c})
}

func (w *BufWriter) InsImmI(v int32) Ref {
	return w.buf.Append(Ins{Op: OpImmI, Imm: BitsI(v)})
}

func (w *BufWriter) InsImmQ(v int64) Ref {
	return w.buf.Append(Ins{Op: OpImmQ, Imm: BitsQ(v)})
}

func (w *BufWriter) InsImmD(v float64) Ref {
	return w.buf.Append(Ins{Op: OpImmD, Imm: math.Float64bits(v)})
}

func (w *BufWriter) InsImmF(v float32) Ref {
	return w.buf.Append(Ins{Op: OpImmF, Imm: BitsF(v)})
}

func (w *BufWriter) InsParam(index int, kind Kind, saved bool) Ref {
	return w.buf.Append(Ins{Op: OpParam, Imm: uint64(index), Type: kind, Saved: saved})
}

func (w *BufWriter) InsAlloc(size int32) Ref {
	return w.buf.Append(Ins{Op: OpAlloc, Imm: uint64(size)})
}

func (w *BufWriter) InsLoad(op Opcode, base Ref, disp int32, acc AccSet) Ref {
	return w.buf.Append(Ins{Op: op, A: base, Disp: disp, Acc: acc})
}

func (w *BufWriter) InsStore(op Opcode, val, base Ref, disp int32, acc AccSet) Ref {
	return w.buf.Append(Ins{Op: op, A: val, B: base, Disp: disp, Acc: acc})
}

func (w *BufWriter) InsBranch(op Opcode, cond, target Ref) Ref {
	return w.buf.Append(Ins{Op: op, A: cond, Target: target})
}

func (w *BufWriter) InsJtbl(index Ref, size int) Ref {
	return w.buf.Append(Ins{Op: OpJtbl, A: index, Targets: make([]Ref, size)})
}

func (w *BufWriter) InsCall(ci *CallInfo, args []Ref) Ref {
	a := make([]Ref, len(args))
	copy(a, args)
	return w.buf.Append(Ins{Op: CallOp(ci.Ret), Call: ci, Args: a})
}

func (w *BufWriter) InsGuard(op Opcode, cond Ref, exit *GuardRecord) Ref {
	return w.buf.Append(Ins{Op: op, A: cond, Exit: exit})
}
