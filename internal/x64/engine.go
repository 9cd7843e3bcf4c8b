// Package x64 is the native engine: it lowers LIR to x86-64 machine code
// for the System V calling convention and runs it from executable memory.
package x64

import (
	"fmt"
	"io"
	"runtime"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/internal/codealloc"
	"github.com/xyproto/njx/internal/engine"
	"github.com/xyproto/njx/internal/ffi"
	"github.com/xyproto/njx/lir"
)

// Available reports whether the native engine can run on this host.
func Available() bool {
	return runtime.GOARCH == "amd64" && (runtime.GOOS == "linux" || runtime.GOOS == "darwin") && ffi.Available()
}

// Engine compiles to machine code.
type Engine struct {
	alloc *codealloc.Allocator
	cc    engine.CallingConvention
	log   io.Writer // hex dump of each compiled function, when set
}

// New creates a native engine whose code memory grows in chunks of chunkPages pages.
func New(chunkPages int, log io.Writer) (*Engine, error) {
	if !Available() {
		return nil, fmt.Errorf("x64: native engine unavailable on %s/%s", runtime.GOOS, runtime.GOARCH)
	}
	alloc, err := codealloc.New(chunkPages)
	if err != nil {
		return nil, err
	}
	return &Engine{
		alloc: alloc,
		cc:    engine.CallingConventionFor(engine.HostPlatform()),
		log:   log,
	}, nil
}

func (e *Engine) Name() string { return "native" }

// CanCall accepts callees with a native address whose arguments all fit in registers.
func (e *Engine) CanCall(ci *lir.CallInfo) bool {
	if ci == nil || ci.Addr == 0 {
		return false
	}
	nint, nfloat := 0, 0
	for _, k := range ci.Args {
		if k == lir.KindD || k == lir.KindF {
			nfloat++
		} else {
			nint++
		}
	}
	return nint <= len(e.cc.IntArgRegs()) && nfloat <= len(e.cc.FloatArgRegs())
}

// Compile lowers buf and copies the result into executable memory.
func (e *Engine) Compile(buf *lir.Buffer, sig backend.Signature) (backend.Code, error) {
	if err := backend.CheckTargets(buf); err != nil {
		return nil, err
	}
	code, err := generate(buf, e.cc)
	if err != nil {
		return nil, err
	}
	if e.log != nil {
		fmt.Fprintf(e.log, "x64: %s: %d bytes\n    % x\n", buf.Name(), len(code), code)
	}
	block, err := e.alloc.Alloc(len(code))
	if err != nil {
		return nil, backend.Fail(buf.Name(), lir.NoRef, fmt.Errorf("%w: %w", backend.ErrCodeMemoryFull, err))
	}
	if err := e.alloc.Write(block, code); err != nil {
		e.alloc.Free(block)
		return nil, backend.Fail(buf.Name(), lir.NoRef, fmt.Errorf("%w: %w", backend.ErrCodeMemoryFull, err))
	}
	fn, err := ffi.Bind(block.Addr(), sig.Ret, sig.Params)
	if err != nil {
		e.alloc.Free(block)
		return nil, err
	}
	return &nativeCode{engine: e, block: block, fn: fn, size: len(code)}, nil
}

// Close unmaps all code memory.
func (e *Engine) Close() error {
	return e.alloc.Close()
}

// CodeBytes is the number of bytes of live code.
func (e *Engine) CodeBytes() int {
	return e.alloc.Used()
}

type nativeCode struct {
	engine *Engine
	block  *codealloc.Block
	fn     ffi.Func
	size   int
}

func (c *nativeCode) Entry() uintptr {
	if c.block == nil {
		return 0
	}
	return c.block.Addr()
}

func (c *nativeCode) Call(args []uint64) uint64 {
	return c.fn(args)
}

func (c *nativeCode) Size() int {
	return c.size
}

func (c *nativeCode) Release() {
	if c.block != nil {
		c.engine.alloc.Free(c.block)
		c.block = nil
	}
}
