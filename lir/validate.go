package lir

import "fmt"

// Where the validators sit in the pipeline.
const (
	ValidateStart = "start of writer pipeline"
	ValidateEnd   = "end of writer pipeline"
)

// ValidateWriter checks every request against the opcode signatures and
// the instructions already in the buffer, then forwards it unchanged.
// A malformed request is a misuse of the emission API: it panics with a
// diagnostic naming the pipeline position, the instruction and the rule.
type ValidateWriter struct {
	Writer
	buf    *Buffer
	where  string
	params []Kind
}

// NewValidateWriter wraps next. params are the declared parameter kinds.
func NewValidateWriter(next Writer, buf *Buffer, where string, params []Kind) *ValidateWriter {
	return &ValidateWriter{Writer: next, buf: buf, where: where, params: params}
}

func (v *ValidateWriter) String() string { return "validate(" + v.where + ")" }

func (v *ValidateWriter) fail(op Opcode, format string, args ...any) {
	panic(fmt.Sprintf("LIR structure error (%s) in %s: %s: %s",
		v.where, v.buf.Name(), op, fmt.Sprintf(format, args...)))
}

func (v *ValidateWriter) class(op Opcode, want ...Class) {
	c := op.Class()
	for _, w := range want {
		if c == w {
			return
		}
	}
	v.fail(op, "opcode emitted through the wrong writer method")
}

// operand checks that r is an earlier value-producing instruction of kind want.
func (v *ValidateWriter) operand(op Opcode, i int, r Ref, want Kind) {
	if r.IsNil() {
		v.fail(op, "operand %d is missing", i+1)
	}
	if !v.buf.Valid(r) {
		v.fail(op, "operand %d (%s) is not defined in this function", i+1, r)
	}
	ins := v.buf.At(r)
	if !ins.IsValue() {
		v.fail(op, "operand %d (%s) is a %s, which produces no value", i+1, r, ins.Op)
	}
	if got := ins.Kind(); got != want {
		v.fail(op, "operand %d (%s) has kind %s, expected %s", i+1, r, got, want)
	}
}

func (v *ValidateWriter) label(op Opcode, target Ref) {
	if target.IsNil() {
		return
	}
	if !v.buf.Valid(target) {
		v.fail(op, "target %s is not a defined label", target)
	}
	if v.buf.At(target).Op != OpLabel {
		v.fail(op, "target %s is a %s, not a label", target, v.buf.At(target).Op)
	}
}

func (v *ValidateWriter) Ins0(op Opcode) Ref {
	v.class(op, ClassStart, ClassLabel, ClassRet)
	if op.Class() == ClassRet && op != OpRet {
		v.fail(op, "missing return value")
	}
	return v.Writer.Ins0(op)
}

func (v *ValidateWriter) Ins1(op Opcode, a Ref) Ref {
	v.class(op, ClassUnary, ClassLive, ClassRet)
	if op == OpRet {
		v.fail(op, "void return takes no operand")
	}
	v.operand(op, 0, a, op.Operand(0))
	return v.Writer.Ins1(op, a)
}

func (v *ValidateWriter) Ins2(op Opcode, a, b Ref) Ref {
	v.class(op, ClassBinary)
	v.operand(op, 0, a, op.Operand(0))
	v.operand(op, 1, b, op.Operand(1))
	return v.Writer.Ins2(op, a, b)
}

func (v *ValidateWriter) Ins3(op Opcode, a, b, c Ref) Ref {
	v.class(op, ClassCmov)
	v.operand(op, 0, a, op.Operand(0))
	v.operand(op, 1, b, op.Operand(1))
	v.operand(op, 2, c, op.Operand(2))
	return v.Writer.Ins3(op, a, b, c)
}

func (v *ValidateWriter) InsParam(index int, kind Kind, saved bool) Ref {
	if kind != KindI && kind != KindQ {
		v.fail(OpParam, "parameter %d has kind %s; only int and quad parameters exist", index, kind)
	}
	if !saved {
		if index < 0 || index >= len(v.params) {
			v.fail(OpParam, "parameter %d requested, %d declared", index, len(v.params))
		}
		if v.params[index] != kind {
			v.fail(OpParam, "parameter %d has kind %s, declared %s", index, kind, v.params[index])
		}
	}
	return v.Writer.InsParam(index, kind, saved)
}

func (v *ValidateWriter) InsAlloc(size int32) Ref {
	if size <= 0 {
		v.fail(OpAlloc, "allocation size %d is not positive", size)
	}
	return v.Writer.InsAlloc(size)
}

func (v *ValidateWriter) InsLoad(op Opcode, base Ref, disp int32, acc AccSet) Ref {
	v.class(op, ClassLoad)
	v.operand(op, 0, base, KindQ)
	if acc == 0 {
		v.fail(op, "load has an empty access set")
	}
	return v.Writer.InsLoad(op, base, disp, acc)
}

func (v *ValidateWriter) InsStore(op Opcode, val, base Ref, disp int32, acc AccSet) Ref {
	v.class(op, ClassStore)
	v.operand(op, 0, val, op.Operand(0))
	v.operand(op, 1, base, KindQ)
	if acc == 0 {
		v.fail(op, "store has an empty access set")
	}
	return v.Writer.InsStore(op, val, base, disp, acc)
}

func (v *ValidateWriter) InsBranch(op Opcode, cond, target Ref) Ref {
	v.class(op, ClassBranch)
	if op == OpJ {
		if !cond.IsNil() {
			v.fail(op, "unconditional jump has a condition")
		}
	} else {
		v.operand(op, 0, cond, KindI)
	}
	v.label(op, target)
	return v.Writer.InsBranch(op, cond, target)
}

func (v *ValidateWriter) InsJtbl(index Ref, size int) Ref {
	v.operand(OpJtbl, 0, index, KindI)
	if size <= 0 {
		v.fail(OpJtbl, "switch table size %d is not positive", size)
	}
	return v.Writer.InsJtbl(index, size)
}

func (v *ValidateWriter) InsCall(ci *CallInfo, args []Ref) Ref {
	op := CallOp(ci.Ret)
	if len(args) != len(ci.Args) {
		v.fail(op, "call to %s passes %d arguments, signature has %d", ci.Name, len(args), len(ci.Args))
	}
	for i, a := range args {
		v.operand(op, i, a, ci.Args[i])
	}
	return v.Writer.InsCall(ci, args)
}

func (v *ValidateWriter) InsGuard(op Opcode, cond Ref, exit *GuardRecord) Ref {
	v.class(op, ClassGuard)
	if !cond.IsNil() {
		v.fail(op, "unconditional exit has a condition")
	}
	if exit == nil || exit.Exit == nil {
		v.fail(op, "exit without a side exit record")
	}
	return v.Writer.InsGuard(op, cond, exit)
}
