package jit

import (
	"fmt"
	"os"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/lir"
)

// Finalize ends the function, compiles it and registers the result.
//
// The return mask decides the fragment's type: no return at all compiles a
// void fragment with a warning, more than one kind fails with
// ErrAmbiguousReturn and a kind other than the declared one fails with
// ErrReturnMismatch. On any failure the name is removed from the registry.
func (b *FunctionBuilder) Finalize() (*Fragment, error) {
	if b.state.current != StateBuilding {
		return nil, newError(CategoryUsage, b.name, ErrFinalized, "state is %s", b.state.current)
	}
	b.state.advanceTo(StateFinalizing)
	c := b.ctx
	if c.destroyed {
		b.state.advanceTo(StateFailed)
		b.Destroy()
		return nil, ErrContextDestroyed
	}

	mask := b.mask
	kind := b.ret
	switch {
	case mask == 0:
		c.warnf("no return type in fragment %s", b.name)
		mask, kind = lir.RetVoid, lir.KindVoid
	case !mask.Single():
		return b.fail(newError(CategoryReturnKind, b.name, ErrAmbiguousReturn, "returns %s", mask))
	case mask.Kind() != b.ret:
		return b.fail(newError(CategoryReturnKind, b.name, ErrReturnMismatch, "declared %s, returns %s", b.ret, mask))
	}

	exit := lir.NewSideExit(b.name)
	b.pipe.Head().InsGuard(lir.OpX, lir.NoRef, exit.AddGuard())
	b.Destroy()

	if c.cfg.Validate {
		if err := backend.CheckTargets(b.buf); err != nil {
			return b.fail(newError(CategoryMalformedIR, b.name, err, "branch without a target"))
		}
	}

	sig := backend.Signature{Name: b.name, Ret: kind, Params: b.params}
	code, err := c.engine.Compile(b.buf, sig)
	if err != nil {
		if c.cfg.AbortOnBackendError {
			fmt.Fprintf(c.cfg.Log, "%s: %v\n", LevelFatal, err)
			os.Exit(1)
		}
		return b.fail(newError(CategoryBackend, b.name, err, "%s engine", c.engine.Name()))
	}
	fn, err := newCallable(b.name, mask, code, b.params)
	if err != nil {
		code.Release()
		return b.fail(newError(CategoryReturnKind, b.name, err, "no callable shape"))
	}

	f := b.slot
	f.Ret = mask
	f.Params = b.params
	f.Func = fn
	f.code = code
	f.buf = b.buf
	b.buf.Seal()
	if c.fragments[b.name] != f {
		// A later builder claimed the name first; this one is already retired.
		c.retired = append(c.retired, f)
	}
	b.state.advanceTo(StateCompiled)
	c.tracef("jit: compiled %s (#%d, %d instructions, code size %d)\n", f, f.ProfileID, b.buf.Len()-1, code.Size())
	return f, nil
}

func (b *FunctionBuilder) fail(err *Error) (*Fragment, error) {
	b.Destroy()
	b.ctx.dropSlot(b.slot)
	b.state.advanceTo(StateFailed)
	b.ctx.tracef("jit: %v\n", err)
	return nil, err
}
