// Completion: 100% - Error taxonomy complete
package jit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/lir"
)

// ErrorLevel indicates the severity of an error
type ErrorLevel int

const (
	LevelWarning ErrorLevel = iota
	LevelError
	LevelFatal
)

func (l ErrorLevel) String() string {
	switch l {
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal error"
	default:
		return "unknown"
	}
}

// ErrorCategory classifies the type of error
type ErrorCategory int

const (
	CategoryMalformedIR ErrorCategory = iota
	CategoryReturnKind
	CategoryBackend
	CategoryCall
	CategoryUsage
)

func (c ErrorCategory) String() string {
	switch c {
	case CategoryMalformedIR:
		return "malformed-ir"
	case CategoryReturnKind:
		return "return-kind"
	case CategoryBackend:
		return "backend"
	case CategoryCall:
		return "call"
	case CategoryUsage:
		return "usage"
	default:
		return "unknown"
	}
}

var (
	ErrAmbiguousReturn  = errors.New("ambiguous return type")
	ErrReturnMismatch   = errors.New("return type does not match the declared one")
	ErrUnresolvedCall   = errors.New("unresolved call")
	ErrCallArity        = errors.New("wrong number of call arguments")
	ErrTooManyParams    = errors.New("too many parameters")
	ErrBadParamKind     = errors.New("parameters must be int or quad")
	ErrContextDestroyed = errors.New("context destroyed")
	ErrFinalized        = errors.New("function already finalized")
	ErrDuplicateSymbol  = errors.New("symbol already registered")

	// Shared with the instruction buffer, so errors.Is works on either.
	ErrTargetAlreadySet = lir.ErrTargetAlreadySet
	ErrNotABranch       = lir.ErrNotABranch

	// Assembly failures reported by the engines.
	ErrBranchTooFar   = backend.ErrBranchTooFar
	ErrStackFull      = backend.ErrStackFull
	ErrUnknownBranch  = backend.ErrUnknownBranch
	ErrCodeMemoryFull = backend.ErrCodeMemoryFull
)

// Error is a recoverable failure while building or compiling a fragment.
type Error struct {
	Level    ErrorLevel
	Category ErrorCategory
	Fragment string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Level.String())
	if e.Fragment != "" {
		fmt.Fprintf(&sb, " in %s", e.Fragment)
	}
	fmt.Fprintf(&sb, " (%s)", e.Category)
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(category ErrorCategory, fragment string, err error, format string, args ...any) *Error {
	return &Error{
		Level:    LevelError,
		Category: category,
		Fragment: fragment,
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	}
}
