package jit

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xyproto/njx/internal/x64"
	"github.com/xyproto/njx/lir"
)

// engines lists the engines that can run on this host.
func engines() []string {
	if x64.Available() {
		return []string{"interp", "native"}
	}
	return []string{"interp"}
}

func newContext(t *testing.T, engine string, opts ...Option) (*Context, *bytes.Buffer) {
	t.Helper()
	var log bytes.Buffer
	opts = append([]Option{WithEngine(engine), WithLog(&log), WithValidation(true)}, opts...)
	c, err := NewContext(false, opts...)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	t.Cleanup(func() { c.Destroy() })
	return c, &log
}

func forEachEngine(t *testing.T, f func(t *testing.T, c *Context)) {
	for _, name := range engines() {
		t.Run(name, func(t *testing.T) {
			c, _ := newContext(t, name)
			f(t, c)
		})
	}
}

func mustBuilder(t *testing.T, c *Context, name string, ret lir.Kind, params []lir.Kind, optimize bool) *FunctionBuilder {
	t.Helper()
	b, err := c.NewFunctionBuilder(name, ret, params, optimize)
	if err != nil {
		t.Fatalf("NewFunctionBuilder(%s): %v", name, err)
	}
	return b
}

func mustFinalize(t *testing.T, b *FunctionBuilder) *Fragment {
	t.Helper()
	f, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize(%s): %v", b.Name(), err)
	}
	return f
}

func TestConstantReturn(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b := mustBuilder(t, c, "answer", lir.KindI, nil, false)
		b.RetI(b.ImmI(42))
		f := mustFinalize(t, b)
		fn, ok := f.Func.(IntFunc)
		if !ok {
			t.Fatalf("Func is %T, want IntFunc", f.Func)
		}
		if got := fn(); got != 42 {
			t.Errorf("answer() = %d", got)
		}
		if got, ok := c.Lookup("answer"); !ok || got != f {
			t.Error("fragment not registered under its name")
		}
		if b.State() != StateCompiled {
			t.Errorf("State() = %s", b.State())
		}
	})
}

func TestParameterAdd(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b := mustBuilder(t, c, "add", lir.KindQ, []lir.Kind{lir.KindQ, lir.KindQ}, false)
		x := b.InsertParameter()
		y := b.InsertParameter()
		b.RetQ(b.AddQ(x, y))
		add := mustFinalize(t, b).Func.(QuadFunc)
		if got := add(3, 4); got != 7 {
			t.Errorf("add(3, 4) = %d", got)
		}
		if got := add(1<<40, -1); got != 1<<40-1 {
			t.Errorf("add(1<<40, -1) = %d", got)
		}
	})
}

func TestAmbiguousReturnRegistersNothing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b := mustBuilder(t, c, "mixed", lir.KindI, []lir.Kind{lir.KindI}, false)
		p := b.InsertParameter()
		j := b.CbrTrue(p, lir.NoRef)
		b.RetI(b.ImmI(1))
		l := b.AddLabel()
		if err := b.SetJmpTarget(j, l); err != nil {
			t.Fatal(err)
		}
		b.RetD(b.ImmD(2.5))

		f, err := b.Finalize()
		if !errors.Is(err, ErrAmbiguousReturn) {
			t.Fatalf("Finalize = %v, want ErrAmbiguousReturn", err)
		}
		if f != nil {
			t.Error("a fragment was returned")
		}
		var jerr *Error
		if !errors.As(err, &jerr) || jerr.Category != CategoryReturnKind {
			t.Errorf("error %v is not a return-kind *Error", err)
		}
		if _, ok := c.Lookup("mixed"); ok {
			t.Error("ambiguous fragment is registered")
		}
		if len(c.Fragments()) != 0 {
			t.Errorf("Fragments() = %v", c.Fragments())
		}
		if b.State() != StateFailed {
			t.Errorf("State() = %s", b.State())
		}
	})
}

func TestReturnMismatch(t *testing.T) {
	c, _ := newContext(t, "interp")
	b := mustBuilder(t, c, "wrong", lir.KindQ, nil, false)
	b.RetI(b.ImmI(1))
	if _, err := b.Finalize(); !errors.Is(err, ErrReturnMismatch) {
		t.Fatalf("Finalize = %v, want ErrReturnMismatch", err)
	}
}

func TestMissingReturnWarns(t *testing.T) {
	c, log := newContext(t, "interp")
	b := mustBuilder(t, c, "nothing", lir.KindVoid, nil, false)
	b.ImmI(1)
	f := mustFinalize(t, b)
	if _, ok := f.Func.(VoidFunc); !ok {
		t.Errorf("Func is %T, want VoidFunc", f.Func)
	}
	if !strings.Contains(log.String(), "no return type in fragment nothing") {
		t.Errorf("no warning logged:\n%s", log)
	}
	f.Func.(VoidFunc)()
}

// sign returns 1 for a positive argument and -1 otherwise, once with a
// forward branch patched later and once with a branch to a known label.
func buildSign(t *testing.T, c *Context, name string, patched bool) IntFunc {
	b := mustBuilder(t, c, name, lir.KindI, []lir.Kind{lir.KindI}, false)
	p := b.InsertParameter()
	if patched {
		j := b.CbrFalse(b.GtI(p, b.ImmI(0)), lir.NoRef)
		b.RetI(b.ImmI(1))
		neg := b.AddLabel()
		if err := b.SetJmpTarget(j, neg); err != nil {
			t.Fatal(err)
		}
		b.RetI(b.ImmI(-1))
	} else {
		skip := b.Br(lir.NoRef)
		neg := b.AddLabel()
		b.RetI(b.ImmI(-1))
		test := b.AddLabel()
		if err := b.SetJmpTarget(skip, test); err != nil {
			t.Fatal(err)
		}
		b.CbrFalse(b.GtI(p, b.ImmI(0)), neg)
		b.RetI(b.ImmI(1))
	}
	return mustFinalize(t, b).Func.(IntFunc)
}

func TestPatchedBranchMatchesKnownBranch(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		patched := buildSign(t, c, "patched", true)
		known := buildSign(t, c, "known", false)
		for _, v := range []int64{-3, 0, 1, 99} {
			if p, k := patched(v), known(v); p != k {
				t.Errorf("sign(%d): patched %d, known %d", v, p, k)
			}
		}
		if got := patched(5); got != 1 {
			t.Errorf("sign(5) = %d", got)
		}
	})
}

func TestReRegistrationReplacesLookup(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b1 := mustBuilder(t, c, "f", lir.KindI, nil, false)
		b1.RetI(b1.ImmI(1))
		first := mustFinalize(t, b1)

		b2 := mustBuilder(t, c, "f", lir.KindI, nil, false)
		b2.RetI(b2.ImmI(2))
		second := mustFinalize(t, b2)

		got, ok := c.Lookup("f")
		if !ok || got != second {
			t.Fatal("Lookup does not return the newest fragment")
		}
		if v := got.Func.(IntFunc)(); v != 2 {
			t.Errorf("f() = %d, want 2", v)
		}
		// The replaced fragment keeps its code until the context dies.
		if v := first.Func.(IntFunc)(); v != 1 {
			t.Errorf("old f() = %d, want 1", v)
		}
		if c.Retired() != 1 {
			t.Errorf("Retired() = %d", c.Retired())
		}
		if first.ProfileID >= second.ProfileID {
			t.Errorf("profile ids %d, %d not increasing", first.ProfileID, second.ProfileID)
		}
	})
}

func TestDestroyInvalidatesLookup(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b := mustBuilder(t, c, "gone", lir.KindI, nil, false)
		b.RetI(b.ImmI(3))
		mustFinalize(t, b)
		if err := c.Destroy(); err != nil {
			t.Fatal(err)
		}
		if _, ok := c.Lookup("gone"); ok {
			t.Error("Lookup succeeded after Destroy")
		}
		if c.FunctionByName("gone") != 0 {
			t.Error("FunctionByName returned an address after Destroy")
		}
		if _, err := c.NewFunctionBuilder("again", lir.KindI, nil, false); !errors.Is(err, ErrContextDestroyed) {
			t.Errorf("NewFunctionBuilder after Destroy = %v", err)
		}
		if err := c.Destroy(); err != nil {
			t.Errorf("second Destroy = %v", err)
		}
	})
}

func TestOptimizeOnOffEquivalence(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		build := func(name string, optimize bool) *Fragment {
			b := mustBuilder(t, c, name, lir.KindI, []lir.Kind{lir.KindI, lir.KindI}, optimize)
			x := b.InsertParameter()
			y := b.InsertParameter()
			s1 := b.MulI(b.AddI(x, y), b.AddI(x, y))
			s2 := b.MulI(b.AddI(y, x), b.ImmI(1))
			k := b.AddI(b.ImmI(20), b.ImmI(22))
			b.RetI(b.SubI(b.AddI(s1, s2), k))
			return mustFinalize(t, b)
		}
		plain := build("plain", false)
		opt := build("opt", true)
		for _, args := range [][2]int64{{0, 0}, {1, 2}, {-7, 3}, {1000, 2000}} {
			p := plain.Func.(IntFunc)(args[0], args[1])
			o := opt.Func.(IntFunc)(args[0], args[1])
			if p != o {
				t.Errorf("f%v: plain %d, optimized %d", args, p, o)
			}
		}
		if opt.Buffer().Len() >= plain.Buffer().Len() {
			t.Errorf("optimized fragment has %d instructions, plain has %d", opt.Buffer().Len(), plain.Buffer().Len())
		}
	})
}

func TestSwitchAndMemory(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		b := mustBuilder(t, c, "table", lir.KindD, []lir.Kind{lir.KindI}, true)
		idx := b.InsertParameter()
		slot := b.Alloca(16)
		b.StoreD(b.ImmD(0.5), slot, 0)
		b.StoreD(b.ImmD(-1), slot, 8)
		sw := b.Switch(idx, 2)
		b.RetD(b.ImmD(99))
		for i := 0; i < 2; i++ {
			l := b.AddLabel()
			if err := b.SetSwitchTarget(sw, i, l); err != nil {
				t.Fatal(err)
			}
			b.RetD(b.LoadD(slot, int32(8*i)))
		}
		table := mustFinalize(t, b).Func.(DoubleFunc)
		for idx, want := range map[int64]float64{0: 0.5, 1: -1, 2: 99, -1: 99} {
			if got := table(idx); got != want {
				t.Errorf("table(%d) = %g, want %g", idx, got, want)
			}
		}
	})
}

func TestCallFragment(t *testing.T) {
	forEachEngine(t, func(t *testing.T, c *Context) {
		inc := mustBuilder(t, c, "inc", lir.KindI, []lir.Kind{lir.KindI}, false)
		inc.RetI(inc.AddI(inc.InsertParameter(), inc.ImmI(1)))
		mustFinalize(t, inc)

		b := mustBuilder(t, c, "twice", lir.KindI, []lir.Kind{lir.KindI}, false)
		p := b.InsertParameter()
		r1, err := b.Call("inc", lir.ABICdecl, p)
		if err != nil {
			t.Fatal(err)
		}
		r2, err := b.Call("inc", lir.ABICdecl, r1)
		if err != nil {
			t.Fatal(err)
		}
		b.RetI(r2)
		if got := mustFinalize(t, b).Func.(IntFunc)(40); got != 42 {
			t.Errorf("twice(40) = %d", got)
		}
	})
}

func TestCallErrorsAreRecoverable(t *testing.T) {
	c, _ := newContext(t, "interp")
	square := func(args []uint64) uint64 {
		v := lir.AsI(args[0])
		return lir.BitsI(v * v)
	}
	if err := c.RegisterGoFunction("square", square, lir.KindI, lir.KindI); err != nil {
		t.Fatal(err)
	}
	if err := c.RegisterGoFunction("square", square, lir.KindI, lir.KindI); !errors.Is(err, ErrDuplicateSymbol) {
		t.Errorf("second registration = %v, want ErrDuplicateSymbol", err)
	}

	b := mustBuilder(t, c, "caller", lir.KindI, []lir.Kind{lir.KindI}, false)
	p := b.InsertParameter()
	r, err := b.Call("sqaure", lir.ABICdecl, p)
	if r != lir.NoRef || !errors.Is(err, ErrUnresolvedCall) {
		t.Fatalf("Call(sqaure) = %s, %v", r, err)
	}
	if !strings.Contains(err.Error(), "did you mean square") {
		t.Errorf("no suggestion in %q", err)
	}
	if _, err := b.Call("square", lir.ABICdecl, p, p); !errors.Is(err, ErrCallArity) {
		t.Errorf("Call with two args = %v, want ErrCallArity", err)
	}
	r, err = b.Call("square", lir.ABICdecl, p)
	if err != nil {
		t.Fatal(err)
	}
	b.RetI(r)
	if got := mustFinalize(t, b).Func.(IntFunc)(-12); got != 144 {
		t.Errorf("caller(-12) = %d", got)
	}
}

func TestNativeEngineRejectsGoFunctions(t *testing.T) {
	if !x64.Available() {
		t.Skip("native engine unavailable")
	}
	c, _ := newContext(t, "native")
	err := c.RegisterGoFunction("f", func([]uint64) uint64 { return 0 }, lir.KindI)
	if !errors.Is(err, ErrUnresolvedCall) {
		t.Errorf("RegisterGoFunction on native = %v, want ErrUnresolvedCall", err)
	}
}

func TestParameterLimits(t *testing.T) {
	c, _ := newContext(t, "interp")
	many := make([]lir.Kind, 9)
	for i := range many {
		many[i] = lir.KindQ
	}
	if _, err := c.NewFunctionBuilder("many", lir.KindI, many, false); !errors.Is(err, ErrTooManyParams) {
		t.Errorf("9 params = %v, want ErrTooManyParams", err)
	}
	if _, err := c.NewFunctionBuilder("dbl", lir.KindI, []lir.Kind{lir.KindD}, false); !errors.Is(err, ErrBadParamKind) {
		t.Errorf("double param = %v, want ErrBadParamKind", err)
	}
}

func TestJumpTargets(t *testing.T) {
	c, _ := newContext(t, "interp")
	b := mustBuilder(t, c, "jumps", lir.KindI, nil, false)
	j := b.Br(lir.NoRef)
	l := b.AddLabel()
	if err := b.SetJmpTarget(j, l); err != nil {
		t.Fatal(err)
	}
	if err := b.SetJmpTarget(j, l); !errors.Is(err, ErrTargetAlreadySet) {
		t.Errorf("second SetJmpTarget = %v, want ErrTargetAlreadySet", err)
	}
	if err := b.SetJmpTarget(l, l); !errors.Is(err, ErrNotABranch) {
		t.Errorf("SetJmpTarget on a label = %v, want ErrNotABranch", err)
	}
	b.RetI(b.ImmI(0))
	mustFinalize(t, b)
}

func TestUnsetTargetFails(t *testing.T) {
	for _, validate := range []bool{true, false} {
		c, _ := newContext(t, "interp", WithValidation(validate))
		b := mustBuilder(t, c, "dangling", lir.KindI, nil, false)
		b.Br(lir.NoRef)
		b.RetI(b.ImmI(0))
		_, err := b.Finalize()
		if !errors.Is(err, ErrUnknownBranch) {
			t.Fatalf("validate=%v: Finalize = %v, want ErrUnknownBranch", validate, err)
		}
		want := CategoryBackend
		if validate {
			want = CategoryMalformedIR
		}
		var jerr *Error
		if !errors.As(err, &jerr) || jerr.Category != want {
			t.Errorf("validate=%v: category of %v, want %s", validate, err, want)
		}
		if _, ok := c.Lookup("dangling"); ok {
			t.Error("failed fragment is registered")
		}
	}
}

func TestEmitAfterFinalizePanics(t *testing.T) {
	c, _ := newContext(t, "interp")
	b := mustBuilder(t, c, "done", lir.KindI, nil, false)
	b.RetI(b.ImmI(0))
	mustFinalize(t, b)
	if _, err := b.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Errorf("second Finalize = %v, want ErrFinalized", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("emitting after Finalize did not panic")
		}
	}()
	b.ImmI(1)
}

func TestVerboseTrace(t *testing.T) {
	var log bytes.Buffer
	c, err := NewContext(true, WithEngine("interp"), WithLog(&log))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Destroy()
	b := mustBuilder(t, c, "traced", lir.KindI, []lir.Kind{lir.KindI}, true)
	b.RetI(b.AddI(b.InsertParameter(), b.ImmI(2)))
	mustFinalize(t, b)
	out := log.String()
	for _, want := range []string{"begin int traced", "immi 2", "addi", "reti", "jit: compiled int traced"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace lacks %q:\n%s", want, out)
		}
	}
}

func TestUnknownEngine(t *testing.T) {
	_, err := NewContext(false, WithEngine("intrp"), WithLog(&bytes.Buffer{}))
	if err == nil || !strings.Contains(err.Error(), `did you mean "interp"`) {
		t.Errorf("NewContext(intrp) = %v", err)
	}
}

func TestBuilderInspection(t *testing.T) {
	c, _ := newContext(t, "interp")
	b := mustBuilder(t, c, "kinds", lir.KindVoid, []lir.Kind{lir.KindI, lir.KindQ}, false)
	i := b.InsertParameter()
	q := b.InsertParameter()
	d := b.I2D(i)
	f := b.D2F(d)
	if !b.IsI(i) || !b.IsQ(q) || !b.IsD(d) || !b.IsF(f) {
		t.Errorf("kinds: %s %s %s %s", b.KindOf(i), b.KindOf(q), b.KindOf(d), b.KindOf(f))
	}
	if b.KindOf(lir.NoRef) != lir.KindVoid {
		t.Error("NoRef has a kind")
	}
	b.Live(q)
	b.Ret()
	if b.ReturnMask() != lir.RetVoid {
		t.Errorf("ReturnMask() = %s", b.ReturnMask())
	}
	mustFinalize(t, b)
}
