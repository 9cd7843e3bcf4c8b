// state.go - builder lifecycle with validated transitions
package jit

import "fmt"

// State is where a FunctionBuilder is in its lifecycle.
type State int

const (
	StateBuilding State = iota
	StateFinalizing
	StateCompiled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "Building"
	case StateFinalizing:
		return "Finalizing"
	case StateCompiled:
		return "Done (compiled)"
	case StateFailed:
		return "Done (failed)"
	default:
		return fmt.Sprintf("Unknown State %d", s)
	}
}

// lifecycle tracks the current state and refuses invalid transitions.
type lifecycle struct {
	current State
	history []State
}

func newLifecycle() *lifecycle {
	return &lifecycle{current: StateBuilding, history: []State{StateBuilding}}
}

func (l *lifecycle) advanceTo(s State) {
	valid := false
	switch l.current {
	case StateBuilding:
		valid = s == StateFinalizing
	case StateFinalizing:
		valid = s == StateCompiled || s == StateFailed
	}
	if !valid {
		panic(fmt.Sprintf("jit: invalid builder state transition: %s -> %s (history %v)", l.current, s, l.history))
	}
	l.current = s
	l.history = append(l.history, s)
}

// expect panics unless the builder is in state s.
func (l *lifecycle) expect(s State, operation string) {
	if l.current != s {
		panic(fmt.Sprintf("jit: %s requires state %s, but the builder is %s", operation, s, l.current))
	}
}
