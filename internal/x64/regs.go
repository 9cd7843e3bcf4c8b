// Completion: 100% - Register table complete
package x64

import "fmt"

// Reg is a hardware register encoding. General purpose registers use 0-15,
// XMM registers use their own 0-15 numbering.
type Reg uint8

const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

const (
	XMM0 Reg = iota
	XMM1
)

var gprNames = [...]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}

func (r Reg) String() string {
	if int(r) < len(gprNames) {
		return gprNames[r]
	}
	return fmt.Sprintf("reg(%d)", uint8(r))
}

// RegisterByName finds a general purpose register.
func RegisterByName(name string) (Reg, bool) {
	for i, n := range gprNames {
		if n == name {
			return Reg(i), true
		}
	}
	return 0, false
}

func mustRegs(names []string) []Reg {
	regs := make([]Reg, len(names))
	for i, n := range names {
		r, ok := RegisterByName(n)
		if !ok {
			panic("x64: unknown register " + n)
		}
		regs[i] = r
	}
	return regs
}

// Condition codes, the low nibble of Jcc and SETcc.
const (
	ccB  byte = 0x2
	ccAE byte = 0x3
	ccE  byte = 0x4
	ccNE byte = 0x5
	ccBE byte = 0x6
	ccA  byte = 0x7
	ccNP byte = 0xB
	ccL  byte = 0xC
	ccGE byte = 0xD
	ccLE byte = 0xE
	ccG  byte = 0xF
)
