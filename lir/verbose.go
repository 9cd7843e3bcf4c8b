package lir

import (
	"fmt"
	"io"
)

// VerboseWriter prints every request as it arrives, before any optimizing
// stage rewrites it, followed by the instruction that now represents it.
type VerboseWriter struct {
	Writer
	out io.Writer
}

// NewVerboseWriter wraps next and traces to out.
func NewVerboseWriter(next Writer, out io.Writer) *VerboseWriter {
	return &VerboseWriter{Writer: next, out: out}
}

func (w *VerboseWriter) String() string { return "verbose" }

func (w *VerboseWriter) trace(ins Ins, r Ref) Ref {
	if r.IsNil() {
		fmt.Fprintf(w.out, "    %s\n", Text(&ins))
	} else {
		fmt.Fprintf(w.out, "    %-32s => %s\n", Text(&ins), r)
	}
	return r
}

func (w *VerboseWriter) Ins0(op Opcode) Ref {
	return w.trace(Ins{Op: op}, w.Writer.Ins0(op))
}

func (w *VerboseWriter) Ins1(op Opcode, a Ref) Ref {
	return w.trace(Ins{Op: op, A: a}, w.Writer.Ins1(op, a))
}

func (w *VerboseWriter) Ins2(op Opcode, a, b Ref) Ref {
	return w.trace(Ins{Op: op, A: a, B: b}, w.Writer.Ins2(op, a, b))
}

func (w *VerboseWriter) Ins3(op Opcode, a, b, c Ref) Ref {
	return w.trace(Ins{Op: op, A: a, B: b, C: c}, w.Writer.Ins3(op, a, b, c))
}

func (w *VerboseWriter) InsImmI(v int32) Ref {
	return w.trace(Ins{Op: OpImmI, Imm: BitsI(v)}, w.Writer.InsImmI(v))
}

func (w *VerboseWriter) InsImmQ(v int64) Ref {
	return w.trace(Ins{Op: OpImmQ, Imm: BitsQ(v)}, w.Writer.InsImmQ(v))
}

func (w *VerboseWriter) InsImmD(v float64) Ref {
	return w.trace(Ins{Op: OpImmD, Imm: BitsD(v)}, w.Writer.InsImmD(v))
}

func (w *VerboseWriter) InsImmF(v float32) Ref {
	return w.trace(Ins{Op: OpImmF, Imm: BitsF(v)}, w.Writer.InsImmF(v))
}

func (w *VerboseWriter) InsParam(index int, kind Kind, saved bool) Ref {
	return w.trace(Ins{Op: OpParam, Imm: uint64(index), Type: kind, Saved: saved}, w.Writer.InsParam(index, kind, saved))
}

func (w *VerboseWriter) InsAlloc(size int32) Ref {
	return w.trace(Ins{Op: OpAlloc, Imm: uint64(size)}, w.Writer.InsAlloc(size))
}

func (w *VerboseWriter) InsLoad(op Opcode, base Ref, disp int32, acc AccSet) Ref {
	return w.trace(Ins{Op: op, A: base, Disp: disp, Acc: acc}, w.Writer.InsLoad(op, base, disp, acc))
}

func (w *VerboseWriter) InsStore(op Opcode, val, base Ref, disp int32, acc AccSet) Ref {
	return w.trace(Ins{Op: op, A: val, B: base, Disp: disp, Acc: acc}, w.Writer.InsStore(op, val, base, disp, acc))
}

func (w *VerboseWriter) InsBranch(op Opcode, cond, target Ref) Ref {
	return w.trace(Ins{Op: op, A: cond, Target: target}, w.Writer.InsBranch(op, cond, target))
}

func (w *VerboseWriter) InsJtbl(index Ref, size int) Ref {
	return w.trace(Ins{Op: OpJtbl, A: index, Targets: make([]Ref, size)}, w.Writer.InsJtbl(index, size))
}

func (w *VerboseWriter) InsCall(ci *CallInfo, args []Ref) Ref {
	return w.trace(Ins{Op: CallOp(ci.Ret), Call: ci, Args: args}, w.Writer.InsCall(ci, args))
}

func (w *VerboseWriter) InsGuard(op Opcode, cond Ref, exit *GuardRecord) Ref {
	return w.trace(Ins{Op: op, A: cond, Exit: exit}, w.Writer.InsGuard(op, cond, exit))
}
