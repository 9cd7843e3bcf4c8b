// Completion: 100% - Calling convention tables complete
package engine

// CallingConvention describes the register usage a generated function must
// follow on a platform.
type CallingConvention interface {
	Name() string

	// IntArgRegs lists the registers carrying integer and pointer arguments.
	IntArgRegs() []string
	FloatArgRegs() []string

	IntReturnReg() string
	FloatReturnReg() string

	// SavedRegs lists the callee-saved registers a function body must
	// preserve, not counting the frame pointer.
	SavedRegs() []string

	ShadowSpace() int
	StackAlignment() int
}

// SystemVAMD64 is the System V AMD64 convention (Linux, macOS, BSD)
type SystemVAMD64 struct{}

func (cc *SystemVAMD64) Name() string { return "sysv-amd64" }

func (cc *SystemVAMD64) IntArgRegs() []string {
	return []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
}

func (cc *SystemVAMD64) FloatArgRegs() []string {
	return []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"}
}

func (cc *SystemVAMD64) IntReturnReg() string   { return "rax" }
func (cc *SystemVAMD64) FloatReturnReg() string { return "xmm0" }

func (cc *SystemVAMD64) SavedRegs() []string {
	return []string{"rbx", "r12", "r13", "r14", "r15"}
}

func (cc *SystemVAMD64) ShadowSpace() int    { return 0 }
func (cc *SystemVAMD64) StackAlignment() int { return 16 }

// MicrosoftX64 is the Windows x64 convention
type MicrosoftX64 struct{}

func (cc *MicrosoftX64) Name() string { return "win64" }

func (cc *MicrosoftX64) IntArgRegs() []string {
	return []string{"rcx", "rdx", "r8", "r9"}
}

// Float args share the four slots with integer args
func (cc *MicrosoftX64) FloatArgRegs() []string {
	return []string{"xmm0", "xmm1", "xmm2", "xmm3"}
}

func (cc *MicrosoftX64) IntReturnReg() string   { return "rax" }
func (cc *MicrosoftX64) FloatReturnReg() string { return "xmm0" }

func (cc *MicrosoftX64) SavedRegs() []string {
	return []string{"rbx", "rsi", "rdi", "r12", "r13", "r14", "r15"}
}

func (cc *MicrosoftX64) ShadowSpace() int    { return 32 }
func (cc *MicrosoftX64) StackAlignment() int { return 16 }

// AAPCS64 is the ARM64 procedure call standard
type AAPCS64 struct{}

func (cc *AAPCS64) Name() string { return "aapcs64" }

func (cc *AAPCS64) IntArgRegs() []string {
	return []string{"x0", "x1", "x2", "x3", "x4", "x5", "x6", "x7"}
}

func (cc *AAPCS64) FloatArgRegs() []string {
	return []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"}
}

func (cc *AAPCS64) IntReturnReg() string   { return "x0" }
func (cc *AAPCS64) FloatReturnReg() string { return "d0" }

func (cc *AAPCS64) SavedRegs() []string {
	return []string{"x19", "x20", "x21", "x22", "x23", "x24", "x25", "x26", "x27", "x28"}
}

func (cc *AAPCS64) ShadowSpace() int    { return 0 }
func (cc *AAPCS64) StackAlignment() int { return 16 }

// CallingConventionFor returns the convention generated code follows on p.
// Platforms without a table of their own get System V.
func CallingConventionFor(p Platform) CallingConvention {
	switch p.Arch {
	case ArchX86_64:
		if p.OS == OSWindows {
			return &MicrosoftX64{}
		}
		return &SystemVAMD64{}
	case ArchARM64:
		return &AAPCS64{}
	default:
		return &SystemVAMD64{}
	}
}

// MaxParams is the number of integer parameters a function may declare on p.
func MaxParams(p Platform) int {
	return len(CallingConventionFor(p).IntArgRegs())
}
