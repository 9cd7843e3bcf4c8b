// Package backend is the contract between the function builder and the
// engines that turn a finished LIR buffer into something callable.
package backend

import (
	"errors"
	"fmt"

	"github.com/xyproto/njx/lir"
)

// The closed set of reasons an engine can fail to assemble a function.
var (
	ErrBranchTooFar   = errors.New("BranchTooFar")
	ErrStackFull      = errors.New("StackFull")
	ErrUnknownBranch  = errors.New("UnknownBranch")
	ErrCodeMemoryFull = errors.New("CodeMemoryFull")
)

// AssemblyError reports which instruction an engine gave up on.
type AssemblyError struct {
	Fragment string
	At       lir.Ref
	Reason   error
}

func (e *AssemblyError) Error() string {
	if e.At.IsNil() {
		return fmt.Sprintf("error during assembly of %s: %v", e.Fragment, e.Reason)
	}
	return fmt.Sprintf("error during assembly of %s at %s: %v", e.Fragment, e.At, e.Reason)
}

func (e *AssemblyError) Unwrap() error {
	return e.Reason
}

// Fail builds an AssemblyError for instruction at of fragment.
func Fail(fragment string, at lir.Ref, reason error) error {
	return &AssemblyError{Fragment: fragment, At: at, Reason: reason}
}

// Signature is the shape of the function being compiled.
type Signature struct {
	Name   string
	Ret    lir.Kind
	Params []lir.Kind
}

func (s Signature) String() string {
	return fmt.Sprintf("%s %s%v", s.Ret, s.Name, s.Params)
}

// Code is one compiled function.
type Code interface {
	// Entry is the native entry address, or 0 when the code is not machine code.
	Entry() uintptr
	// Call runs the function. Arguments and the result are raw value bits.
	Call(args []uint64) uint64
	// Size is the footprint in bytes (machine code) or instructions.
	Size() int
	// Release frees the code. Calling it afterwards is undefined.
	Release()
}

// Engine compiles LIR buffers.
type Engine interface {
	Name() string
	Compile(buf *lir.Buffer, sig Signature) (Code, error)
	// CanCall reports whether generated code can reach the callee.
	CanCall(ci *lir.CallInfo) bool
	// Close releases the engine's code memory. Every Code it produced is
	// invalid afterwards.
	Close() error
}

// CheckTargets reports the first branch or switch entry without a target.
func CheckTargets(buf *lir.Buffer) error {
	if missing := buf.UnsetTargets(); len(missing) > 0 {
		return Fail(buf.Name(), missing[0], ErrUnknownBranch)
	}
	return nil
}
