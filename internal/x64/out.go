// Completion: 100% - x86-64 emitter complete for the stack-slot code generator
package x64

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/lir"
)

// Out accumulates machine code for one function. Branches to labels that
// are not placed yet are recorded as fixups and patched by Resolve.
type Out struct {
	code   []byte
	labels map[lir.Ref]int
	fixups []fixup
}

type fixup struct {
	at    int // offset of the rel32 field
	label lir.Ref
	from  lir.Ref // branch instruction, for diagnostics
}

// NewOut creates an empty emitter.
func NewOut() *Out {
	return &Out{labels: make(map[lir.Ref]int)}
}

// Bytes returns the code emitted so far.
func (o *Out) Bytes() []byte {
	return o.code
}

// Len is the current code offset.
func (o *Out) Len() int {
	return len(o.code)
}

func (o *Out) Write(b ...byte) {
	o.code = append(o.code, b...)
}

func (o *Out) Write4(v int32) {
	o.code = binary.LittleEndian.AppendUint32(o.code, uint32(v))
}

func (o *Out) Write8(v uint64) {
	o.code = binary.LittleEndian.AppendUint64(o.code, v)
}

// rex builds a REX prefix; w selects 64-bit operand size, reg goes in
// ModRM.reg (REX.R) and rm in ModRM.rm (REX.B).
func rex(w bool, reg, rm Reg) byte {
	b := byte(0x40)
	if w {
		b |= 0x08
	}
	if reg&8 != 0 {
		b |= 0x04
	}
	if rm&8 != 0 {
		b |= 0x01
	}
	return b
}

func modrm(mod byte, reg, rm Reg) byte {
	return mod<<6 | byte(reg&7)<<3 | byte(rm&7)
}

// memOp emits opcode bytes with a [base+disp32] operand, adding a REX
// prefix when needed. base must not be rsp or r12.
func (o *Out) memOp(w bool, prefix []byte, opcode []byte, reg, base Reg, disp int32) {
	o.Write(prefix...)
	if p := rex(w, reg, base); p != 0x40 {
		o.Write(p)
	}
	o.Write(opcode...)
	o.Write(modrm(2, reg, base))
	o.Write4(disp)
}

// LoadSlot: mov reg, [rbp+disp] (64-bit)
func (o *Out) LoadSlot(reg Reg, disp int32) {
	o.memOp(true, nil, []byte{0x8B}, reg, RBP, disp)
}

// StoreSlot: mov [rbp+disp], reg (64-bit)
func (o *Out) StoreSlot(disp int32, reg Reg) {
	o.memOp(true, nil, []byte{0x89}, reg, RBP, disp)
}

// LoadXmm: movsd/movss xmm, [base+disp]
func (o *Out) LoadXmm(x Reg, base Reg, disp int32, double bool) {
	o.memOp(false, []byte{sseprefix(double)}, []byte{0x0F, 0x10}, x, base, disp)
}

// StoreXmm: movsd/movss [base+disp], xmm
func (o *Out) StoreXmm(base Reg, disp int32, x Reg, double bool) {
	o.memOp(false, []byte{sseprefix(double)}, []byte{0x0F, 0x11}, x, base, disp)
}

func sseprefix(double bool) byte {
	if double {
		return 0xF2
	}
	return 0xF3
}

// MovImm64: mov reg, imm64
func (o *Out) MovImm64(reg Reg, v uint64) {
	o.Write(rex(true, 0, reg), 0xB8+byte(reg&7))
	o.Write8(v)
}

// MovImm32: mov reg32, imm32 (zero-extends)
func (o *Out) MovImm32(reg Reg, v uint32) {
	if reg&8 != 0 {
		o.Write(0x41)
	}
	o.Write(0xB8 + byte(reg&7))
	o.Write4(int32(v))
}

// Lea: lea reg, [base+disp]
func (o *Out) Lea(reg, base Reg, disp int32) {
	o.memOp(true, nil, []byte{0x8D}, reg, base, disp)
}

// AluRR emits a two-register ALU op with the r/m, reg form: op dst, src.
func (o *Out) AluRR(w bool, opcode byte, dst, src Reg) {
	if p := rex(w, src, dst); p != 0x40 {
		o.Write(p)
	}
	o.Write(opcode, modrm(3, src, dst))
}

const (
	opAdd byte = 0x01
	opOr  byte = 0x09
	opAnd byte = 0x21
	opSub byte = 0x29
	opXor byte = 0x31
	opCmp byte = 0x39
	opMov byte = 0x89
)

// ImulRR: imul dst, src
func (o *Out) ImulRR(w bool, dst, src Reg) {
	if p := rex(w, dst, src); p != 0x40 {
		o.Write(p)
	}
	o.Write(0x0F, 0xAF, modrm(3, dst, src))
}

// Group3 emits F7 /ext on reg: not(2), neg(3), idiv(7).
func (o *Out) Group3(w bool, ext byte, reg Reg) {
	if p := rex(w, 0, reg); p != 0x40 {
		o.Write(p)
	}
	o.Write(0xF7, 0xC0|ext<<3|byte(reg&7))
}

// ShiftCL emits D3 /ext: shl(4), shr(5), sar(7) by cl.
func (o *Out) ShiftCL(w bool, ext byte, reg Reg) {
	if p := rex(w, 0, reg); p != 0x40 {
		o.Write(p)
	}
	o.Write(0xD3, 0xC0|ext<<3|byte(reg&7))
}

// Setcc sets the low byte of eax from a condition and zero-extends it.
func (o *Out) Setcc(cc byte) {
	o.Write(0x0F, 0x90|cc, 0xC0) // setcc al
	o.Write(0x0F, 0xB6, 0xC0)    // movzx eax, al
}

// SseRR emits prefix 0F op with xmm operands: op dst, src.
func (o *Out) SseRR(prefix byte, op byte, dst, src Reg) {
	if prefix != 0 {
		o.Write(prefix)
	}
	o.Write(0x0F, op, modrm(3, dst, src))
}

// Jmp emits jmp rel32 to label.
func (o *Out) Jmp(label, from lir.Ref) {
	o.Write(0xE9)
	o.rel32(label, from)
}

// Jcc emits a conditional jump rel32 to label.
func (o *Out) Jcc(cc byte, label, from lir.Ref) {
	o.Write(0x0F, 0x80|cc)
	o.rel32(label, from)
}

func (o *Out) rel32(label, from lir.Ref) {
	o.fixups = append(o.fixups, fixup{at: len(o.code), label: label, from: from})
	o.Write4(0)
}

// Bind places label at the current offset.
func (o *Out) Bind(label lir.Ref) {
	o.labels[label] = len(o.code)
}

// Resolve patches every recorded branch.
func (o *Out) Resolve(fragment string) error {
	for _, f := range o.fixups {
		target, ok := o.labels[f.label]
		if !ok {
			return backend.Fail(fragment, f.from, backend.ErrUnknownBranch)
		}
		rel := int64(target) - int64(f.at+4)
		if rel < math.MinInt32 || rel > math.MaxInt32 {
			return backend.Fail(fragment, f.from, backend.ErrBranchTooFar)
		}
		binary.LittleEndian.PutUint32(o.code[f.at:], uint32(int32(rel)))
	}
	return nil
}

func (o *Out) String() string {
	return fmt.Sprintf("% x", o.code)
}
