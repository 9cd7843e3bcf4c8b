// Completion: 100% - Instruction arena complete
package lir

import (
	"errors"
	"fmt"
	"math"
)

// Ref names an instruction by its index in a Buffer. NoRef is the null handle.
type Ref int32

// NoRef never names an instruction.
const NoRef Ref = 0

// IsNil reports whether r is the null handle.
func (r Ref) IsNil() bool {
	return r == NoRef
}

func (r Ref) String() string {
	if r == NoRef {
		return "?"
	}
	return fmt.Sprintf("%%%d", int32(r))
}

// ABI is the calling convention tag carried by call instructions.
type ABI uint8

const (
	ABICdecl ABI = iota
	ABIFastcall
	ABIStdcall
	ABIThiscall
)

func (a ABI) String() string {
	switch a {
	case ABICdecl:
		return "cdecl"
	case ABIFastcall:
		return "fastcall"
	case ABIStdcall:
		return "stdcall"
	case ABIThiscall:
		return "thiscall"
	default:
		return fmt.Sprintf("abi(%d)", uint8(a))
	}
}

// ParseABI parses a calling convention name.
func ParseABI(s string) (ABI, error) {
	switch s {
	case "cdecl":
		return ABICdecl, nil
	case "fastcall":
		return ABIFastcall, nil
	case "stdcall":
		return ABIStdcall, nil
	case "thiscall":
		return ABIThiscall, nil
	}
	return ABICdecl, fmt.Errorf("unknown calling convention: %q", s)
}

// CallInfo describes a callee: where it lives and its signature.
// Addr is a native entry point; Fn is a Go implementation. Either may be zero.
type CallInfo struct {
	Name string
	Addr uintptr
	Fn   func(args []uint64) uint64
	Ret  Kind
	Args []Kind
	ABI  ABI
}

// SideExit describes where control goes when a guard fires.
type SideExit struct {
	From   string
	Target string
	Guards []*GuardRecord
}

// GuardRecord ties one guard instruction to its exit.
type GuardRecord struct {
	Exit *SideExit
	ID   int
}

// NewSideExit creates an exit leaving the named fragment, with no target.
func NewSideExit(from string) *SideExit {
	return &SideExit{From: from}
}

// AddGuard attaches a new guard record to the exit.
func (e *SideExit) AddGuard() *GuardRecord {
	rec := &GuardRecord{Exit: e, ID: len(e.Guards)}
	e.Guards = append(e.Guards, rec)
	return rec
}

// Ins is one LIR instruction. Which fields matter depends on Op.Class().
type Ins struct {
	Op Opcode
	A  Ref
	B  Ref
	C  Ref

	// Imm holds constant bits (ClassImm), the parameter index (ClassParam)
	// or the allocation size (ClassAlloc).
	Imm  uint64
	Disp int32
	Acc  AccSet

	// Type is the declared kind of a parameter.
	Type  Kind
	Saved bool

	Target  Ref
	Targets []Ref

	Call *CallInfo
	Args []Ref

	Exit *GuardRecord
}

// Kind returns the kind of the value the instruction produces.
func (ins *Ins) Kind() Kind {
	switch ins.Op {
	case OpParam:
		return ins.Type
	case OpNone:
		return KindVoid
	}
	return ins.Op.Result()
}

// IsValue reports whether the instruction yields something usable as an operand.
func (ins *Ins) IsValue() bool {
	return ins.Kind() != KindVoid
}

// ImmI returns the constant of an immi.
func (ins *Ins) ImmI() int32 { return int32(uint32(ins.Imm)) }

// ImmQ returns the constant of an immq.
func (ins *Ins) ImmQ() int64 { return int64(ins.Imm) }

// ImmD returns the constant of an immd.
func (ins *Ins) ImmD() float64 { return math.Float64frombits(ins.Imm) }

// ImmF returns the constant of an immf.
func (ins *Ins) ImmF() float32 { return math.Float32frombits(uint32(ins.Imm)) }

// IsBranch reports whether the instruction transfers control to a label.
func (ins *Ins) IsBranch() bool {
	c := ins.Op.Class()
	return c == ClassBranch || c == ClassJtbl
}

var (
	ErrNotABranch       = errors.New("instruction is not a branch")
	ErrNotALabel        = errors.New("target is not a label")
	ErrTargetAlreadySet = errors.New("branch target already set")
	ErrSwitchIndex      = errors.New("switch index out of range")
	ErrSealed           = errors.New("buffer is sealed")
)

// Buffer is the instruction arena of one function. Instructions are only
// appended; a Ref stays valid until the owning Arena is released.
type Buffer struct {
	name     string
	ins      []Ins
	sealed   bool
	released bool
}

// NewBuffer creates an empty buffer. Index 0 is reserved for NoRef.
func NewBuffer(name string) *Buffer {
	return &Buffer{name: name, ins: make([]Ins, 1, 64)}
}

// Name returns the name of the function the buffer holds.
func (b *Buffer) Name() string {
	return b.name
}

// Len returns one past the highest valid Ref.
func (b *Buffer) Len() int {
	return len(b.ins)
}

// Next returns the Ref the next appended instruction will get.
func (b *Buffer) Next() Ref {
	return Ref(len(b.ins))
}

// Valid reports whether r names an instruction of this buffer.
func (b *Buffer) Valid(r Ref) bool {
	return r > 0 && int(r) < len(b.ins)
}

// At returns the instruction r names. The pointer must not be kept across Append.
func (b *Buffer) At(r Ref) *Ins {
	if !b.Valid(r) {
		panic(fmt.Sprintf("lir: %s: reference %s out of range (len %d)", b.name, r, len(b.ins)))
	}
	return &b.ins[r]
}

// Append adds an instruction and returns its Ref.
func (b *Buffer) Append(ins Ins) Ref {
	if b.sealed {
		panic(fmt.Sprintf("lir: %s: cannot append %s to a sealed buffer", b.name, ins.Op))
	}
	if b.released {
		panic(fmt.Sprintf("lir: %s: buffer was released with its arena", b.name))
	}
	b.ins = append(b.ins, ins)
	return Ref(len(b.ins) - 1)
}

// Seal marks the buffer complete. Targets may no longer be patched.
func (b *Buffer) Seal() {
	b.sealed = true
}

// Sealed reports whether Seal was called.
func (b *Buffer) Sealed() bool {
	return b.sealed
}

// SetTarget patches the target of a j, jt or jf. A target can be set only once.
func (b *Buffer) SetTarget(jmp, label Ref) error {
	if b.sealed {
		return ErrSealed
	}
	if !b.Valid(jmp) || b.ins[jmp].Op.Class() != ClassBranch {
		return fmt.Errorf("%s: %w", jmp, ErrNotABranch)
	}
	if !b.Valid(label) || b.ins[label].Op != OpLabel {
		return fmt.Errorf("%s: %w", label, ErrNotALabel)
	}
	if b.ins[jmp].Target != NoRef {
		return fmt.Errorf("%s: %w", jmp, ErrTargetAlreadySet)
	}
	b.ins[jmp].Target = label
	return nil
}

// SetSwitchTarget patches entry i of a jtbl. Each entry can be set only once.
func (b *Buffer) SetSwitchTarget(sw Ref, i int, label Ref) error {
	if b.sealed {
		return ErrSealed
	}
	if !b.Valid(sw) || b.ins[sw].Op != OpJtbl {
		return fmt.Errorf("%s: %w", sw, ErrNotABranch)
	}
	targets := b.ins[sw].Targets
	if i < 0 || i >= len(targets) {
		return fmt.Errorf("%s[%d]: %w", sw, i, ErrSwitchIndex)
	}
	if !b.Valid(label) || b.ins[label].Op != OpLabel {
		return fmt.Errorf("%s: %w", label, ErrNotALabel)
	}
	if targets[i] != NoRef {
		return fmt.Errorf("%s[%d]: %w", sw, i, ErrTargetAlreadySet)
	}
	targets[i] = label
	return nil
}

// UnsetTargets lists the branches and switch entries that have no target yet.
func (b *Buffer) UnsetTargets() []Ref {
	var missing []Ref
	for r := Ref(1); int(r) < len(b.ins); r++ {
		ins := &b.ins[r]
		switch ins.Op.Class() {
		case ClassBranch:
			if ins.Target == NoRef {
				missing = append(missing, r)
			}
		case ClassJtbl:
			for _, t := range ins.Targets {
				if t == NoRef {
					missing = append(missing, r)
					break
				}
			}
		}
	}
	return missing
}

// Params returns the declared (non saved-register) parameters in index order.
func (b *Buffer) Params() []Ref {
	var params []Ref
	for r := Ref(1); int(r) < len(b.ins); r++ {
		if b.ins[r].Op == OpParam && !b.ins[r].Saved {
			params = append(params, r)
		}
	}
	return params
}

// Arena owns the buffers of one compilation context and frees them in bulk.
type Arena struct {
	buffers  []*Buffer
	released bool
}

// NewBuffer hands out a fresh buffer owned by the arena.
func (a *Arena) NewBuffer(name string) *Buffer {
	if a.released {
		panic("lir: arena already released")
	}
	b := NewBuffer(name)
	a.buffers = append(a.buffers, b)
	return b
}

// Instructions counts the instructions held by all buffers of the arena.
func (a *Arena) Instructions() int {
	n := 0
	for _, b := range a.buffers {
		n += len(b.ins) - 1
	}
	return n
}

// Release drops every buffer. Refs into them must not be used afterwards.
func (a *Arena) Release() {
	for _, b := range a.buffers {
		b.ins = nil
		b.released = true
	}
	a.buffers = nil
	a.released = true
}
