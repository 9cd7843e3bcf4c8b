// Completion: 100% - Opcode table complete for the four value kinds
package lir

import (
	"fmt"
	"strings"
)

// Kind is the type of the value an instruction produces.
type Kind uint8

const (
	KindVoid Kind = iota
	KindI         // 32-bit integer
	KindQ         // 64-bit integer or pointer
	KindD         // 64-bit float
	KindF         // 32-bit float
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindI:
		return "int"
	case KindQ:
		return "quad"
	case KindD:
		return "double"
	case KindF:
		return "float"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind accepts the short and long spellings used in LIR text.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "v", "void":
		return KindVoid, nil
	case "i", "int":
		return KindI, nil
	case "q", "quad", "p", "ptr":
		return KindQ, nil
	case "d", "double":
		return KindD, nil
	case "f", "float":
		return KindF, nil
	}
	return KindVoid, fmt.Errorf("unknown value kind: %q", s)
}

// RetKind is a bitmask of the return instructions used in a function body.
type RetKind uint8

const (
	RetInt    RetKind = 1 << iota
	RetQuad
	RetDouble
	RetFloat
	RetVoid
)

// RetKindOf maps a value kind to its return bit.
func RetKindOf(k Kind) RetKind {
	switch k {
	case KindI:
		return RetInt
	case KindQ:
		return RetQuad
	case KindD:
		return RetDouble
	case KindF:
		return RetFloat
	default:
		return RetVoid
	}
}

// Single reports whether exactly one return bit is set.
func (r RetKind) Single() bool {
	return r != 0 && r&(r-1) == 0
}

// Kind returns the value kind for a single-bit mask, KindVoid otherwise.
func (r RetKind) Kind() Kind {
	switch r {
	case RetInt:
		return KindI
	case RetQuad:
		return KindQ
	case RetDouble:
		return KindD
	case RetFloat:
		return KindF
	default:
		return KindVoid
	}
}

func (r RetKind) String() string {
	if r == 0 {
		return "none"
	}
	var names []string
	for i, name := range retKindNames {
		if r&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, "|")
}

var retKindNames = [...]string{"int", "quad", "double", "float", "void"}

// AccSet tags loads and stores with the memory region they may touch.
type AccSet uint8

// AccOther is the only region in use; every load and store may alias.
const AccOther AccSet = 1 << 0

// NumUsedAccs is the number of distinct access regions.
const NumUsedAccs = 1

// Opcode identifies a LIR operation.
type Opcode uint8

const (
	OpNone Opcode = iota

	OpStart
	OpParam
	OpLabel
	OpAlloc

	OpImmI
	OpImmQ
	OpImmD
	OpImmF

	OpAddI
	OpSubI
	OpMulI
	OpDivI
	OpModI
	OpAndI
	OpOrI
	OpXorI
	OpLshI
	OpRshI
	OpRshuI
	OpNegI
	OpNotI

	OpAddQ
	OpSubQ
	OpMulQ
	OpAndQ
	OpOrQ
	OpXorQ
	OpLshQ
	OpRshQ
	OpRshuQ

	OpAddD
	OpSubD
	OpMulD
	OpDivD
	OpNegD

	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpNegF

	OpEqI
	OpLtI
	OpGtI
	OpLeI
	OpGeI
	OpLtuI
	OpGtuI
	OpLeuI
	OpGeuI

	OpEqQ
	OpLtQ
	OpGtQ
	OpLeQ
	OpGeQ
	OpLtuQ
	OpGtuQ
	OpLeuQ
	OpGeuQ

	OpEqD
	OpLtD
	OpGtD
	OpLeD
	OpGeD

	OpEqF
	OpLtF
	OpGtF
	OpLeF
	OpGeF

	OpI2Q
	OpUI2UQ
	OpQ2I
	OpI2D
	OpUI2D
	OpD2I
	OpQ2D
	OpI2F
	OpF2I
	OpF2D
	OpD2F
	OpDasQ
	OpQasD

	OpCmovI
	OpCmovQ
	OpCmovD

	OpLdC2I
	OpLdUC2UI
	OpLdS2I
	OpLdUS2UI
	OpLdI
	OpLdQ
	OpLdD
	OpLdF
	OpLdF2D

	OpStI2C
	OpStI2S
	OpStI
	OpStQ
	OpStD
	OpStF
	OpStD2F

	OpJ
	OpJt
	OpJf
	OpJtbl

	OpCallI
	OpCallQ
	OpCallD
	OpCallF
	OpCallV

	OpLiveI
	OpLiveQ
	OpLiveD
	OpLiveF

	OpRetI
	OpRetQ
	OpRetD
	OpRetF
	OpRet

	OpX

	numOpcodes
)

// Class groups opcodes by the shape of their operands.
type Class uint8

const (
	ClassNone Class = iota
	ClassStart
	ClassParam
	ClassLabel
	ClassAlloc
	ClassImm
	ClassUnary
	ClassBinary
	ClassCmov
	ClassLoad
	ClassStore
	ClassBranch
	ClassJtbl
	ClassCall
	ClassLive
	ClassRet
	ClassGuard
)

type opInfo struct {
	name     string
	class    Class
	result   Kind
	operands [3]Kind
}

var opTable = [numOpcodes]opInfo{
	OpNone:  {"none", ClassNone, KindVoid, [3]Kind{}},
	OpStart: {"start", ClassStart, KindVoid, [3]Kind{}},
	OpParam: {"param", ClassParam, KindQ, [3]Kind{}},
	OpLabel: {"label", ClassLabel, KindVoid, [3]Kind{}},
	OpAlloc: {"allocp", ClassAlloc, KindQ, [3]Kind{}},

	OpImmI: {"immi", ClassImm, KindI, [3]Kind{}},
	OpImmQ: {"immq", ClassImm, KindQ, [3]Kind{}},
	OpImmD: {"immd", ClassImm, KindD, [3]Kind{}},
	OpImmF: {"immf", ClassImm, KindF, [3]Kind{}},

	OpAddI:  {"addi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpSubI:  {"subi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpMulI:  {"muli", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpDivI:  {"divi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpModI:  {"modi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpAndI:  {"andi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpOrI:   {"ori", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpXorI:  {"xori", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpLshI:  {"lshi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpRshI:  {"rshi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpRshuI: {"rshui", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpNegI:  {"negi", ClassUnary, KindI, [3]Kind{KindI}},
	OpNotI:  {"noti", ClassUnary, KindI, [3]Kind{KindI}},

	OpAddQ:  {"addq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpSubQ:  {"subq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpMulQ:  {"mulq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpAndQ:  {"andq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpOrQ:   {"orq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpXorQ:  {"xorq", ClassBinary, KindQ, [3]Kind{KindQ, KindQ}},
	OpLshQ:  {"lshq", ClassBinary, KindQ, [3]Kind{KindQ, KindI}},
	OpRshQ:  {"rshq", ClassBinary, KindQ, [3]Kind{KindQ, KindI}},
	OpRshuQ: {"rshuq", ClassBinary, KindQ, [3]Kind{KindQ, KindI}},

	OpAddD: {"addd", ClassBinary, KindD, [3]Kind{KindD, KindD}},
	OpSubD: {"subd", ClassBinary, KindD, [3]Kind{KindD, KindD}},
	OpMulD: {"muld", ClassBinary, KindD, [3]Kind{KindD, KindD}},
	OpDivD: {"divd", ClassBinary, KindD, [3]Kind{KindD, KindD}},
	OpNegD: {"negd", ClassUnary, KindD, [3]Kind{KindD}},

	OpAddF: {"addf", ClassBinary, KindF, [3]Kind{KindF, KindF}},
	OpSubF: {"subf", ClassBinary, KindF, [3]Kind{KindF, KindF}},
	OpMulF: {"mulf", ClassBinary, KindF, [3]Kind{KindF, KindF}},
	OpDivF: {"divf", ClassBinary, KindF, [3]Kind{KindF, KindF}},
	OpNegF: {"negf", ClassUnary, KindF, [3]Kind{KindF}},

	OpEqI:  {"eqi", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpLtI:  {"lti", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpGtI:  {"gti", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpLeI:  {"lei", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpGeI:  {"gei", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpLtuI: {"ltui", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpGtuI: {"gtui", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpLeuI: {"leui", ClassBinary, KindI, [3]Kind{KindI, KindI}},
	OpGeuI: {"geui", ClassBinary, KindI, [3]Kind{KindI, KindI}},

	OpEqQ:  {"eqq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpLtQ:  {"ltq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpGtQ:  {"gtq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpLeQ:  {"leq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpGeQ:  {"geq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpLtuQ: {"ltuq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpGtuQ: {"gtuq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpLeuQ: {"leuq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},
	OpGeuQ: {"geuq", ClassBinary, KindI, [3]Kind{KindQ, KindQ}},

	OpEqD: {"eqd", ClassBinary, KindI, [3]Kind{KindD, KindD}},
	OpLtD: {"ltd", ClassBinary, KindI, [3]Kind{KindD, KindD}},
	OpGtD: {"gtd", ClassBinary, KindI, [3]Kind{KindD, KindD}},
	OpLeD: {"led", ClassBinary, KindI, [3]Kind{KindD, KindD}},
	OpGeD: {"ged", ClassBinary, KindI, [3]Kind{KindD, KindD}},

	OpEqF: {"eqf", ClassBinary, KindI, [3]Kind{KindF, KindF}},
	OpLtF: {"ltf", ClassBinary, KindI, [3]Kind{KindF, KindF}},
	OpGtF: {"gtf", ClassBinary, KindI, [3]Kind{KindF, KindF}},
	OpLeF: {"lef", ClassBinary, KindI, [3]Kind{KindF, KindF}},
	OpGeF: {"gef", ClassBinary, KindI, [3]Kind{KindF, KindF}},

	OpI2Q:   {"i2q", ClassUnary, KindQ, [3]Kind{KindI}},
	OpUI2UQ: {"ui2uq", ClassUnary, KindQ, [3]Kind{KindI}},
	OpQ2I:   {"q2i", ClassUnary, KindI, [3]Kind{KindQ}},
	OpI2D:   {"i2d", ClassUnary, KindD, [3]Kind{KindI}},
	OpUI2D:  {"ui2d", ClassUnary, KindD, [3]Kind{KindI}},
	OpD2I:   {"d2i", ClassUnary, KindI, [3]Kind{KindD}},
	OpQ2D:   {"q2d", ClassUnary, KindD, [3]Kind{KindQ}},
	OpI2F:   {"i2f", ClassUnary, KindF, [3]Kind{KindI}},
	OpF2I:   {"f2i", ClassUnary, KindI, [3]Kind{KindF}},
	OpF2D:   {"f2d", ClassUnary, KindD, [3]Kind{KindF}},
	OpD2F:   {"d2f", ClassUnary, KindF, [3]Kind{KindD}},
	OpDasQ:  {"dasq", ClassUnary, KindQ, [3]Kind{KindD}},
	OpQasD:  {"qasd", ClassUnary, KindD, [3]Kind{KindQ}},

	OpCmovI: {"cmovi", ClassCmov, KindI, [3]Kind{KindI, KindI, KindI}},
	OpCmovQ: {"cmovq", ClassCmov, KindQ, [3]Kind{KindI, KindQ, KindQ}},
	OpCmovD: {"cmovd", ClassCmov, KindD, [3]Kind{KindI, KindD, KindD}},

	OpLdC2I:   {"ldc2i", ClassLoad, KindI, [3]Kind{KindQ}},
	OpLdUC2UI: {"lduc2ui", ClassLoad, KindI, [3]Kind{KindQ}},
	OpLdS2I:   {"lds2i", ClassLoad, KindI, [3]Kind{KindQ}},
	OpLdUS2UI: {"ldus2ui", ClassLoad, KindI, [3]Kind{KindQ}},
	OpLdI:     {"ldi", ClassLoad, KindI, [3]Kind{KindQ}},
	OpLdQ:     {"ldq", ClassLoad, KindQ, [3]Kind{KindQ}},
	OpLdD:     {"ldd", ClassLoad, KindD, [3]Kind{KindQ}},
	OpLdF:     {"ldf", ClassLoad, KindF, [3]Kind{KindQ}},
	OpLdF2D:   {"ldf2d", ClassLoad, KindD, [3]Kind{KindQ}},

	OpStI2C: {"sti2c", ClassStore, KindVoid, [3]Kind{KindI, KindQ}},
	OpStI2S: {"sti2s", ClassStore, KindVoid, [3]Kind{KindI, KindQ}},
	OpStI:   {"sti", ClassStore, KindVoid, [3]Kind{KindI, KindQ}},
	OpStQ:   {"stq", ClassStore, KindVoid, [3]Kind{KindQ, KindQ}},
	OpStD:   {"std", ClassStore, KindVoid, [3]Kind{KindD, KindQ}},
	OpStF:   {"stf", ClassStore, KindVoid, [3]Kind{KindF, KindQ}},
	OpStD2F: {"std2f", ClassStore, KindVoid, [3]Kind{KindD, KindQ}},

	OpJ:    {"j", ClassBranch, KindVoid, [3]Kind{}},
	OpJt:   {"jt", ClassBranch, KindVoid, [3]Kind{KindI}},
	OpJf:   {"jf", ClassBranch, KindVoid, [3]Kind{KindI}},
	OpJtbl: {"jtbl", ClassJtbl, KindVoid, [3]Kind{KindI}},

	OpCallI: {"calli", ClassCall, KindI, [3]Kind{}},
	OpCallQ: {"callq", ClassCall, KindQ, [3]Kind{}},
	OpCallD: {"calld", ClassCall, KindD, [3]Kind{}},
	OpCallF: {"callf", ClassCall, KindF, [3]Kind{}},
	OpCallV: {"callv", ClassCall, KindVoid, [3]Kind{}},

	OpLiveI: {"livei", ClassLive, KindVoid, [3]Kind{KindI}},
	OpLiveQ: {"liveq", ClassLive, KindVoid, [3]Kind{KindQ}},
	OpLiveD: {"lived", ClassLive, KindVoid, [3]Kind{KindD}},
	OpLiveF: {"livef", ClassLive, KindVoid, [3]Kind{KindF}},

	OpRetI: {"reti", ClassRet, KindVoid, [3]Kind{KindI}},
	OpRetQ: {"retq", ClassRet, KindVoid, [3]Kind{KindQ}},
	OpRetD: {"retd", ClassRet, KindVoid, [3]Kind{KindD}},
	OpRetF: {"retf", ClassRet, KindVoid, [3]Kind{KindF}},
	OpRet:  {"ret", ClassRet, KindVoid, [3]Kind{}},

	OpX: {"x", ClassGuard, KindVoid, [3]Kind{}},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op := Opcode(1); op < numOpcodes; op++ {
		m[opTable[op].name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if op < numOpcodes {
		return opTable[op].name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// Class returns the operand shape of the opcode.
func (op Opcode) Class() Class {
	if op < numOpcodes {
		return opTable[op].class
	}
	return ClassNone
}

// Result returns the kind of value the opcode produces.
func (op Opcode) Result() Kind {
	if op < numOpcodes {
		return opTable[op].result
	}
	return KindVoid
}

// Operand returns the expected kind of operand i.
func (op Opcode) Operand(i int) Kind {
	if op < numOpcodes && i >= 0 && i < 3 {
		return opTable[op].operands[i]
	}
	return KindVoid
}

// Pure reports whether the opcode computes a value from its operands only,
// which makes it a candidate for CSE and folding.
func (op Opcode) Pure() bool {
	switch op.Class() {
	case ClassImm, ClassUnary, ClassBinary, ClassCmov:
		return true
	}
	return false
}

// Commutative reports whether the operands of a binary opcode may be swapped.
func (op Opcode) Commutative() bool {
	switch op {
	case OpAddI, OpMulI, OpAndI, OpOrI, OpXorI, OpEqI,
		OpAddQ, OpMulQ, OpAndQ, OpOrQ, OpXorQ, OpEqQ,
		OpAddD, OpMulD, OpEqD, OpAddF, OpMulF, OpEqF:
		return true
	}
	return false
}

// IsCmp reports whether the opcode is a comparison.
func (op Opcode) IsCmp() bool {
	return (op >= OpEqI && op <= OpGeF)
}

// LookupOpcode finds an opcode by its LIR name.
func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// CallOp returns the call opcode for a callee returning k.
func CallOp(k Kind) Opcode {
	switch k {
	case KindI:
		return OpCallI
	case KindQ:
		return OpCallQ
	case KindD:
		return OpCallD
	case KindF:
		return OpCallF
	default:
		return OpCallV
	}
}

// LiveOp returns the liveness opcode for a value of kind k.
func LiveOp(k Kind) Opcode {
	switch k {
	case KindI:
		return OpLiveI
	case KindQ:
		return OpLiveQ
	case KindD:
		return OpLiveD
	case KindF:
		return OpLiveF
	default:
		return OpNone
	}
}

// RetOp returns the return opcode for a value of kind k.
func RetOp(k Kind) Opcode {
	switch k {
	case KindI:
		return OpRetI
	case KindQ:
		return OpRetQ
	case KindD:
		return OpRetD
	case KindF:
		return OpRetF
	default:
		return OpRet
	}
}
