// Completion: 100% - Stack-slot code generator complete for every LIR opcode
package x64

import (
	"fmt"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/internal/engine"
	"github.com/xyproto/njx/lir"
)

// maxFrameBytes bounds the stack frame of one generated function.
const maxFrameBytes = 1 << 20

// gen lowers a LIR buffer to x86-64. Every instruction owns an 8-byte stack
// slot below the callee-saved registers; operands are loaded into rax/rcx
// (or xmm0/xmm1), the result is computed in rax (or xmm0) and stored back.
//
// Frame, growing down from rbp:
//
//	[rbp-8 .. rbp-8*k]   callee-saved registers
//	slot(r) = rbp - 8*k - 8*r
//	allocp regions, 16-byte aligned
type gen struct {
	o     *Out
	buf   *lir.Buffer
	name  string
	args  []Reg
	saved []Reg

	savedBytes int32
	frameBytes int32
	allocs     map[lir.Ref]int32
}

func newGen(buf *lir.Buffer, cc engine.CallingConvention) *gen {
	saved := mustRegs(cc.SavedRegs())
	return &gen{
		o:          NewOut(),
		buf:        buf,
		name:       buf.Name(),
		args:       mustRegs(cc.IntArgRegs()),
		saved:      saved,
		savedBytes: int32(8 * len(saved)),
		allocs:     make(map[lir.Ref]int32),
	}
}

func (g *gen) slot(r lir.Ref) int32 {
	return -(g.savedBytes + 8*int32(r))
}

func (g *gen) load(reg Reg, r lir.Ref)  { g.o.LoadSlot(reg, g.slot(r)) }
func (g *gen) store(r lir.Ref, reg Reg) { g.o.StoreSlot(g.slot(r), reg) }

func (g *gen) loadX(x Reg, r lir.Ref, double bool) {
	g.o.LoadXmm(x, RBP, g.slot(r), double)
}

func (g *gen) storeX(r lir.Ref, x Reg, double bool) {
	g.o.StoreXmm(RBP, g.slot(r), x, double)
}

// layout assigns the allocp regions and sizes the frame so that rsp stays
// 16-byte aligned at call sites: (savedBytes + frameBytes) % 16 == 0.
func (g *gen) layout() error {
	cursor := int64(g.savedBytes) + 8*int64(g.buf.Len())
	for r := lir.Ref(1); int(r) < g.buf.Len(); r++ {
		ins := g.buf.At(r)
		if ins.Op != lir.OpAlloc {
			continue
		}
		cursor = (cursor + 15) &^ 15
		cursor += (int64(ins.Imm) + 15) &^ 15
		if cursor > maxFrameBytes {
			return backend.Fail(g.name, r, backend.ErrStackFull)
		}
		g.allocs[r] = -int32(cursor)
	}
	cursor = (cursor + 15) &^ 15
	if cursor > maxFrameBytes {
		return backend.Fail(g.name, lir.NoRef, backend.ErrStackFull)
	}
	g.frameBytes = int32(cursor) - g.savedBytes
	return nil
}

func (g *gen) prologue() error {
	o := g.o
	o.Write(0x55)                  // push rbp
	o.AluRR(true, opMov, RBP, RSP) // mov rbp, rsp
	for _, r := range g.saved {
		if r&8 != 0 {
			o.Write(0x41)
		}
		o.Write(0x50 + byte(r&7)) // push r
	}
	o.Write(0x48, 0x81, 0xEC) // sub rsp, imm32
	o.Write4(g.frameBytes)

	// Parameters arrive in registers; spill them before anything can clobber them.
	for r := lir.Ref(1); int(r) < g.buf.Len(); r++ {
		ins := g.buf.At(r)
		if ins.Op != lir.OpParam {
			continue
		}
		regs := g.args
		if ins.Saved {
			regs = g.saved
		}
		if ins.Imm >= uint64(len(regs)) {
			return backend.Fail(g.name, r, fmt.Errorf("%w: parameter %d has no register", backend.ErrStackFull, ins.Imm))
		}
		g.store(r, regs[ins.Imm])
	}
	return nil
}

func (g *gen) epilogue() {
	o := g.o
	o.Lea(RSP, RBP, -g.savedBytes) // lea rsp, [rbp-savedBytes]
	for i := len(g.saved) - 1; i >= 0; i-- {
		r := g.saved[i]
		if r&8 != 0 {
			o.Write(0x41)
		}
		o.Write(0x58 + byte(r&7)) // pop r
	}
	o.Write(0x5D) // pop rbp
	o.Write(0xC3) // ret
}

// generate produces the machine code for the whole buffer.
func generate(buf *lir.Buffer, cc engine.CallingConvention) ([]byte, error) {
	g := newGen(buf, cc)
	if err := g.layout(); err != nil {
		return nil, err
	}
	for r := lir.Ref(1); int(r) < buf.Len(); r++ {
		if err := g.lower(r, buf.At(r)); err != nil {
			return nil, err
		}
	}
	if err := g.o.Resolve(g.name); err != nil {
		return nil, err
	}
	return g.o.Bytes(), nil
}

func (g *gen) lower(r lir.Ref, ins *lir.Ins) error {
	o := g.o
	switch ins.Op.Class() {
	case lir.ClassStart:
		return g.prologue()

	case lir.ClassParam:
		// spilled by the prologue

	case lir.ClassLabel:
		o.Bind(r)

	case lir.ClassAlloc:
		o.Lea(RAX, RBP, g.allocs[r])
		g.store(r, RAX)

	case lir.ClassImm:
		if ins.Op == lir.OpImmI || ins.Op == lir.OpImmF {
			o.MovImm32(RAX, uint32(ins.Imm))
		} else {
			o.MovImm64(RAX, ins.Imm)
		}
		g.store(r, RAX)

	case lir.ClassUnary:
		return g.unary(r, ins)

	case lir.ClassBinary:
		return g.binary(r, ins)

	case lir.ClassCmov:
		g.load(RDX, ins.A)
		g.load(RAX, ins.B)
		g.load(RCX, ins.C)
		o.Write(0x85, 0xD2)             // test edx, edx
		o.Write(0x48, 0x0F, 0x44, 0xC1) // cmove rax, rcx
		g.store(r, RAX)

	case lir.ClassLoad:
		g.load(RCX, ins.A)
		g.loadMem(ins)
		g.store(r, RAX)

	case lir.ClassStore:
		g.load(RCX, ins.B)
		g.storeMem(ins)

	case lir.ClassBranch:
		switch ins.Op {
		case lir.OpJ:
			o.Jmp(ins.Target, r)
		case lir.OpJt, lir.OpJf:
			g.load(RAX, ins.A)
			o.Write(0x85, 0xC0) // test eax, eax
			cc := ccNE
			if ins.Op == lir.OpJf {
				cc = ccE
			}
			o.Jcc(cc, ins.Target, r)
		}

	case lir.ClassJtbl:
		// A compare chain; an index outside the table falls through.
		g.load(RAX, ins.A)
		for i, t := range ins.Targets {
			o.Write(0x3D) // cmp eax, imm32
			o.Write4(int32(i))
			o.Jcc(ccE, t, r)
		}

	case lir.ClassCall:
		return g.call(r, ins)

	case lir.ClassLive:
		// only meaningful to a register allocator

	case lir.ClassRet:
		switch ins.Op {
		case lir.OpRetI, lir.OpRetQ:
			g.load(RAX, ins.A)
		case lir.OpRetD:
			g.loadX(XMM0, ins.A, true)
		case lir.OpRetF:
			g.loadX(XMM0, ins.A, false)
		}
		g.epilogue()

	case lir.ClassGuard:
		o.AluRR(false, opXor, RAX, RAX) // xor eax, eax
		g.epilogue()

	default:
		return backend.Fail(g.name, r, fmt.Errorf("cannot lower %s", ins.Op))
	}
	return nil
}

func (g *gen) unary(r lir.Ref, ins *lir.Ins) error {
	o := g.o
	switch ins.Op {
	case lir.OpNegI:
		g.load(RAX, ins.A)
		o.Group3(false, 3, RAX)
	case lir.OpNotI:
		g.load(RAX, ins.A)
		o.Group3(false, 2, RAX)
	case lir.OpNegD:
		g.load(RAX, ins.A)
		o.MovImm64(RCX, 1<<63)
		o.AluRR(true, opXor, RAX, RCX)
	case lir.OpNegF:
		g.load(RAX, ins.A)
		o.Write(0x35) // xor eax, imm32
		o.Write4(-1 << 31)
	case lir.OpI2Q:
		g.load(RAX, ins.A)
		o.Write(0x48, 0x63, 0xC0) // movsxd rax, eax
	case lir.OpUI2UQ, lir.OpQ2I:
		g.load(RAX, ins.A)
		o.AluRR(false, opMov, RAX, RAX) // mov eax, eax
	case lir.OpDasQ, lir.OpQasD:
		g.load(RAX, ins.A)
	case lir.OpI2D:
		g.load(RAX, ins.A)
		o.SseRR(0xF2, 0x2A, XMM0, RAX) // cvtsi2sd xmm0, eax
		g.storeX(r, XMM0, true)
		return nil
	case lir.OpUI2D:
		g.load(RAX, ins.A)
		o.AluRR(false, opMov, RAX, RAX)
		o.Write(0xF2, 0x48, 0x0F, 0x2A, 0xC0) // cvtsi2sd xmm0, rax
		g.storeX(r, XMM0, true)
		return nil
	case lir.OpQ2D:
		g.load(RAX, ins.A)
		o.Write(0xF2, 0x48, 0x0F, 0x2A, 0xC0) // cvtsi2sd xmm0, rax
		g.storeX(r, XMM0, true)
		return nil
	case lir.OpD2I:
		g.loadX(XMM0, ins.A, true)
		o.SseRR(0xF2, 0x2C, RAX, XMM0) // cvttsd2si eax, xmm0
	case lir.OpI2F:
		g.load(RAX, ins.A)
		o.SseRR(0xF3, 0x2A, XMM0, RAX) // cvtsi2ss xmm0, eax
		g.storeX(r, XMM0, false)
		return nil
	case lir.OpF2I:
		g.loadX(XMM0, ins.A, false)
		o.SseRR(0xF3, 0x2C, RAX, XMM0) // cvttss2si eax, xmm0
	case lir.OpF2D:
		g.loadX(XMM0, ins.A, false)
		o.SseRR(0xF3, 0x5A, XMM0, XMM0) // cvtss2sd
		g.storeX(r, XMM0, true)
		return nil
	case lir.OpD2F:
		g.loadX(XMM0, ins.A, true)
		o.SseRR(0xF2, 0x5A, XMM0, XMM0) // cvtsd2ss
		g.storeX(r, XMM0, false)
		return nil
	default:
		return backend.Fail(g.name, r, fmt.Errorf("cannot lower %s", ins.Op))
	}
	g.store(r, RAX)
	return nil
}

var sseArith = map[lir.Opcode]byte{
	lir.OpAddD: 0x58, lir.OpSubD: 0x5C, lir.OpMulD: 0x59, lir.OpDivD: 0x5E,
	lir.OpAddF: 0x58, lir.OpSubF: 0x5C, lir.OpMulF: 0x59, lir.OpDivF: 0x5E,
}

var intArith = map[lir.Opcode]byte{
	lir.OpAddI: opAdd, lir.OpSubI: opSub, lir.OpAndI: opAnd, lir.OpOrI: opOr, lir.OpXorI: opXor,
	lir.OpAddQ: opAdd, lir.OpSubQ: opSub, lir.OpAndQ: opAnd, lir.OpOrQ: opOr, lir.OpXorQ: opXor,
}

var shiftExt = map[lir.Opcode]byte{
	lir.OpLshI: 4, lir.OpRshuI: 5, lir.OpRshI: 7,
	lir.OpLshQ: 4, lir.OpRshuQ: 5, lir.OpRshQ: 7,
}

// intCmp maps an integer comparison to the SETcc condition after cmp a, b.
var intCmp = map[lir.Opcode]byte{
	lir.OpEqI: ccE, lir.OpLtI: ccL, lir.OpGtI: ccG, lir.OpLeI: ccLE, lir.OpGeI: ccGE,
	lir.OpLtuI: ccB, lir.OpGtuI: ccA, lir.OpLeuI: ccBE, lir.OpGeuI: ccAE,
	lir.OpEqQ: ccE, lir.OpLtQ: ccL, lir.OpGtQ: ccG, lir.OpLeQ: ccLE, lir.OpGeQ: ccGE,
	lir.OpLtuQ: ccB, lir.OpGtuQ: ccA, lir.OpLeuQ: ccBE, lir.OpGeuQ: ccAE,
}

func (g *gen) binary(r lir.Ref, ins *lir.Ins) error {
	o := g.o
	kind := ins.Op.Operand(0)
	wide := kind == lir.KindQ

	if op, ok := sseArith[ins.Op]; ok {
		double := kind == lir.KindD
		g.loadX(XMM0, ins.A, double)
		g.loadX(XMM1, ins.B, double)
		o.SseRR(sseprefix(double), op, XMM0, XMM1)
		g.storeX(r, XMM0, double)
		return nil
	}

	if kind == lir.KindD || kind == lir.KindF {
		return g.floatCmp(r, ins, kind == lir.KindD)
	}

	g.load(RAX, ins.A)
	g.load(RCX, ins.B)
	switch {
	case intArith[ins.Op] != 0:
		o.AluRR(wide, intArith[ins.Op], RAX, RCX)
	case shiftExt[ins.Op] != 0:
		o.ShiftCL(wide, shiftExt[ins.Op], RAX)
	case intCmp[ins.Op] != 0:
		o.AluRR(wide, opCmp, RAX, RCX)
		o.Setcc(intCmp[ins.Op])
	case ins.Op == lir.OpMulI || ins.Op == lir.OpMulQ:
		o.ImulRR(wide, RAX, RCX)
	case ins.Op == lir.OpDivI || ins.Op == lir.OpModI:
		o.Write(0x99) // cdq
		o.Group3(false, 7, RCX)
		if ins.Op == lir.OpModI {
			o.AluRR(false, opMov, RAX, RDX)
		}
	default:
		return backend.Fail(g.name, r, fmt.Errorf("cannot lower %s", ins.Op))
	}
	g.store(r, RAX)
	return nil
}

// floatCmp uses ucomisd/ucomiss, which set the flags like an unsigned
// compare and raise PF when either side is NaN. lt and le swap the
// operands so that every unordered comparison comes out false.
func (g *gen) floatCmp(r lir.Ref, ins *lir.Ins, double bool) error {
	o := g.o
	var prefix byte
	if double {
		prefix = 0x66
	}
	g.loadX(XMM0, ins.A, double)
	g.loadX(XMM1, ins.B, double)
	switch ins.Op {
	case lir.OpEqD, lir.OpEqF:
		o.SseRR(prefix, 0x2E, XMM0, XMM1)
		o.Write(0x0F, 0x90|ccE, 0xC0)  // sete al
		o.Write(0x0F, 0x90|ccNP, 0xC1) // setnp cl
		o.Write(0x20, 0xC8)            // and al, cl
		o.Write(0x0F, 0xB6, 0xC0)      // movzx eax, al
	case lir.OpGtD, lir.OpGtF:
		o.SseRR(prefix, 0x2E, XMM0, XMM1)
		o.Setcc(ccA)
	case lir.OpGeD, lir.OpGeF:
		o.SseRR(prefix, 0x2E, XMM0, XMM1)
		o.Setcc(ccAE)
	case lir.OpLtD, lir.OpLtF:
		o.SseRR(prefix, 0x2E, XMM1, XMM0)
		o.Setcc(ccA)
	case lir.OpLeD, lir.OpLeF:
		o.SseRR(prefix, 0x2E, XMM1, XMM0)
		o.Setcc(ccAE)
	default:
		return backend.Fail(g.name, r, fmt.Errorf("cannot lower %s", ins.Op))
	}
	g.store(r, RAX)
	return nil
}

// loadMem loads [rcx+disp] into rax with the width and extension of ins.
func (g *gen) loadMem(ins *lir.Ins) {
	o := g.o
	d := ins.Disp
	switch ins.Op {
	case lir.OpLdC2I:
		o.memOp(false, nil, []byte{0x0F, 0xBE}, RAX, RCX, d) // movsx eax, byte
	case lir.OpLdUC2UI:
		o.memOp(false, nil, []byte{0x0F, 0xB6}, RAX, RCX, d) // movzx eax, byte
	case lir.OpLdS2I:
		o.memOp(false, nil, []byte{0x0F, 0xBF}, RAX, RCX, d) // movsx eax, word
	case lir.OpLdUS2UI:
		o.memOp(false, nil, []byte{0x0F, 0xB7}, RAX, RCX, d) // movzx eax, word
	case lir.OpLdI, lir.OpLdF:
		o.memOp(false, nil, []byte{0x8B}, RAX, RCX, d)
	case lir.OpLdQ, lir.OpLdD:
		o.memOp(true, nil, []byte{0x8B}, RAX, RCX, d)
	case lir.OpLdF2D:
		o.LoadXmm(XMM0, RCX, d, false)
		o.SseRR(0xF3, 0x5A, XMM0, XMM0)       // cvtss2sd
		o.Write(0x66, 0x48, 0x0F, 0x7E, 0xC0) // movq rax, xmm0
	}
}

// storeMem stores the value of ins to [rcx+disp].
func (g *gen) storeMem(ins *lir.Ins) {
	o := g.o
	d := ins.Disp
	switch ins.Op {
	case lir.OpStI2C:
		g.load(RAX, ins.A)
		o.memOp(false, nil, []byte{0x88}, RAX, RCX, d)
	case lir.OpStI2S:
		g.load(RAX, ins.A)
		o.memOp(false, []byte{0x66}, []byte{0x89}, RAX, RCX, d)
	case lir.OpStI, lir.OpStF:
		g.load(RAX, ins.A)
		o.memOp(false, nil, []byte{0x89}, RAX, RCX, d)
	case lir.OpStQ, lir.OpStD:
		g.load(RAX, ins.A)
		o.memOp(true, nil, []byte{0x89}, RAX, RCX, d)
	case lir.OpStD2F:
		g.loadX(XMM0, ins.A, true)
		o.SseRR(0xF2, 0x5A, XMM0, XMM0) // cvtsd2ss
		o.StoreXmm(RCX, d, XMM0, false)
	}
}

// call passes integer arguments in the argument registers and floating
// point arguments in xmm0-xmm7, then calls the absolute address.
func (g *gen) call(r lir.Ref, ins *lir.Ins) error {
	o := g.o
	ci := ins.Call
	if ci == nil || ci.Addr == 0 {
		return backend.Fail(g.name, r, fmt.Errorf("call without a native address"))
	}
	nint, nfloat := 0, 0
	for i, a := range ins.Args {
		switch ci.Args[i] {
		case lir.KindD, lir.KindF:
			if nfloat == 8 {
				return backend.Fail(g.name, r, fmt.Errorf("%w: more than 8 floating point arguments", backend.ErrStackFull))
			}
			g.loadX(Reg(nfloat), a, ci.Args[i] == lir.KindD)
			nfloat++
		default:
			if nint == len(g.args) {
				return backend.Fail(g.name, r, fmt.Errorf("%w: more than %d integer arguments", backend.ErrStackFull, len(g.args)))
			}
			g.load(g.args[nint], a)
			nint++
		}
	}
	o.MovImm64(RAX, uint64(ci.Addr))
	o.Write(0xFF, 0xD0) // call rax
	switch ci.Ret {
	case lir.KindI, lir.KindQ:
		g.store(r, RAX)
	case lir.KindD:
		g.storeX(r, XMM0, true)
	case lir.KindF:
		g.storeX(r, XMM0, false)
	}
	return nil
}
