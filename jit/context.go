// Completion: 100% - Context owns fragments, symbols, engine and arena
package jit

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/internal/engine"
	"github.com/xyproto/njx/internal/interp"
	"github.com/xyproto/njx/internal/x64"
	"github.com/xyproto/njx/lir"
)

// EngineNames lists the engines a Context can be created with.
var EngineNames = []string{"native", "interp"}

// Context owns everything produced while compiling: the instruction arena,
// the engine and its code memory, and the registry of fragments by name.
// It is not safe for concurrent use.
type Context struct {
	cfg      Config
	platform engine.Platform
	engine   backend.Engine
	arena    lir.Arena

	fragments map[string]*Fragment     // compiled, or a pending slot with nil Func
	symbols   map[string]*lir.CallInfo // registered external functions
	retired   []*Fragment              // overwritten fragments, released at Destroy
	profiles  int                      // last profiling id handed out
	destroyed bool
}

// NewContext creates a Context. verbose turns on tracing in addition to
// whatever NJX_VERBOSE says.
func NewContext(verbose bool, opts ...Option) (*Context, error) {
	cfg := ConfigFromEnv()
	cfg.Verbose = cfg.Verbose || verbose
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Log == nil {
		cfg.Log = io.Discard
	}
	eng, err := newEngine(cfg)
	if err != nil {
		return nil, err
	}
	c := &Context{
		cfg:       cfg,
		platform:  engine.HostPlatform(),
		engine:    eng,
		fragments: make(map[string]*Fragment),
		symbols:   make(map[string]*lir.CallInfo),
	}
	c.tracef("jit: context on %s using the %s engine\n", c.platform.FullString(), eng.Name())
	return c, nil
}

func newEngine(cfg Config) (backend.Engine, error) {
	var trace io.Writer
	if cfg.Verbose {
		trace = cfg.Log
	}
	name := cfg.Engine
	if name == "" {
		name = "interp"
		if x64.Available() {
			name = "native"
		}
	}
	switch name {
	case "native":
		e, err := x64.New(cfg.CodeChunkPages, trace)
		if err != nil {
			return nil, newError(CategoryUsage, "", err, "cannot start the native engine")
		}
		return e, nil
	case "interp":
		return interp.New(trace), nil
	}
	msg := fmt.Sprintf("unknown engine %q", name)
	if s := engine.SuggestNames(name, EngineNames, 1); len(s) > 0 {
		msg += fmt.Sprintf(" (did you mean %q?)", s[0])
	}
	return nil, newError(CategoryUsage, "", nil, "%s", msg)
}

func (c *Context) tracef(format string, args ...any) {
	if c.cfg.Verbose {
		fmt.Fprintf(c.cfg.Log, format, args...)
	}
}

func (c *Context) warnf(format string, args ...any) {
	fmt.Fprintf(c.cfg.Log, "warning: "+format+"\n", args...)
}

// Destroy releases the code of every fragment, live or retired, then the
// engine's code memory and finally the instruction arena. Callables
// obtained from this Context must not be used afterwards.
func (c *Context) Destroy() error {
	if c.destroyed {
		return nil
	}
	c.destroyed = true
	for _, f := range c.fragments {
		f.release()
	}
	for _, f := range c.retired {
		f.release()
	}
	err := c.engine.Close()
	c.arena.Release()
	c.fragments = nil
	c.symbols = nil
	c.retired = nil
	return err
}

// Destroyed reports whether Destroy was called.
func (c *Context) Destroyed() bool {
	return c.destroyed
}

// EngineName is the name of the engine compiling this Context's fragments.
func (c *Context) EngineName() string {
	return c.engine.Name()
}

// Platform is the host the Context generates code for.
func (c *Context) Platform() engine.Platform {
	return c.platform
}

// Config returns the effective settings.
func (c *Context) Config() Config {
	return c.cfg
}

// RegisterFunction makes a native function callable from fragments.
func (c *Context) RegisterFunction(name string, addr uintptr, ret lir.Kind, args ...lir.Kind) error {
	if addr == 0 {
		return newError(CategoryCall, "", ErrUnresolvedCall, "%s has a nil address", name)
	}
	return c.register(&lir.CallInfo{Name: name, Addr: addr, Ret: ret, Args: args})
}

// RegisterGoFunction makes a Go function callable from fragments. Only the
// portable engine can call Go functions.
func (c *Context) RegisterGoFunction(name string, fn func(args []uint64) uint64, ret lir.Kind, args ...lir.Kind) error {
	if fn == nil {
		return newError(CategoryCall, "", ErrUnresolvedCall, "%s has no implementation", name)
	}
	return c.register(&lir.CallInfo{Name: name, Fn: fn, Ret: ret, Args: args})
}

func (c *Context) register(ci *lir.CallInfo) error {
	if c.destroyed {
		return ErrContextDestroyed
	}
	if _, ok := c.symbols[ci.Name]; ok {
		return newError(CategoryCall, "", ErrDuplicateSymbol, "%s", ci.Name)
	}
	if !c.engine.CanCall(ci) {
		return newError(CategoryCall, "", ErrUnresolvedCall, "the %s engine cannot call %s", c.engine.Name(), ci.Name)
	}
	c.symbols[ci.Name] = ci
	return nil
}

// Lookup returns the compiled fragment registered under name.
func (c *Context) Lookup(name string) (*Fragment, bool) {
	if c.destroyed {
		return nil, false
	}
	f, ok := c.fragments[name]
	if !ok || f.Func == nil {
		return nil, false
	}
	return f, true
}

// FunctionByName returns the native entry address of a fragment, or 0.
func (c *Context) FunctionByName(name string) uintptr {
	if f, ok := c.Lookup(name); ok {
		return f.Entry()
	}
	return 0
}

// Fragments lists the names of the compiled fragments, sorted.
func (c *Context) Fragments() []string {
	var names []string
	for name, f := range c.fragments {
		if f.Func != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// resolve finds a callee: compiled fragments first, then registered symbols.
func (c *Context) resolve(name string) *lir.CallInfo {
	if f, ok := c.Lookup(name); ok {
		return f.callInfo()
	}
	return c.symbols[name]
}

// callees lists every name resolve would accept.
func (c *Context) callees() []string {
	names := c.Fragments()
	for name := range c.symbols {
		names = append(names, name)
	}
	return names
}

// openSlot reserves name for a fragment under construction. A fragment
// already registered under that name is retired: it stops being visible
// but its code lives until the Context is destroyed.
func (c *Context) openSlot(name string) *Fragment {
	if old, ok := c.fragments[name]; ok && old.Func != nil {
		c.retired = append(c.retired, old)
		c.tracef("jit: %s replaces an earlier fragment\n", name)
	}
	c.profiles++
	slot := &Fragment{Name: name, ProfileID: c.profiles}
	c.fragments[name] = slot
	return slot
}

// dropSlot removes slot from the registry if it is still the current one.
func (c *Context) dropSlot(slot *Fragment) {
	if c.fragments[slot.Name] == slot {
		delete(c.fragments, slot.Name)
	}
}

// Retired is the number of overwritten fragments still holding code.
func (c *Context) Retired() int {
	return len(c.retired)
}

func (c *Context) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "context(%s, %d fragments", c.engine.Name(), len(c.Fragments()))
	if len(c.retired) > 0 {
		fmt.Fprintf(&sb, ", %d retired", len(c.retired))
	}
	sb.WriteString(")")
	return sb.String()
}
