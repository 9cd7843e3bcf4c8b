package lir

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
)

func newTestPipeline(cfg PipelineConfig) (*Pipeline, Writer, *Buffer) {
	buf := NewBuffer("test")
	p := NewPipeline(buf, cfg)
	return p, p.Head(), buf
}

func TestPipelineStageOrder(t *testing.T) {
	var log bytes.Buffer
	p, _, _ := newTestPipeline(PipelineConfig{Optimize: true, Validate: true, Verbose: true, Log: &log})
	want := []string{
		"validate(" + ValidateStart + ")",
		"verbose",
		"cse",
		"expr",
		"validate(" + ValidateEnd + ")",
		"buffer",
	}
	if got := p.Stages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Stages() = %v\nwant %v", got, want)
	}
	if got := p.Close(); !reflect.DeepEqual(got, want) {
		t.Errorf("Close() order = %v\nwant %v", got, want)
	}
	if !p.Closed() {
		t.Error("pipeline not marked closed")
	}
}

func TestPipelineMinimal(t *testing.T) {
	p, _, _ := newTestPipeline(PipelineConfig{})
	if got := p.Stages(); len(got) != 1 || got[0] != "buffer" {
		t.Fatalf("Stages() = %v, want [buffer]", got)
	}
}

func TestPipelineHeadAfterClosePanics(t *testing.T) {
	p, _, _ := newTestPipeline(PipelineConfig{Optimize: true})
	p.Close()
	defer func() {
		if recover() == nil {
			t.Fatal("Head after Close did not panic")
		}
	}()
	p.Head()
}

func TestCseMergesPureInstructions(t *testing.T) {
	_, w, buf := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	a := w.InsParam(0, KindI, false)
	b := w.InsParam(1, KindI, false)
	s1 := w.Ins2(OpAddI, a, b)
	s2 := w.Ins2(OpAddI, b, a)
	if s1 != s2 {
		t.Fatalf("commutative add not merged: %s vs %s", s1, s2)
	}
	d1 := w.Ins2(OpSubI, a, b)
	d2 := w.Ins2(OpSubI, b, a)
	if d1 == d2 {
		t.Fatal("sub operands were treated as commutative")
	}
	c1 := w.InsImmQ(7)
	c2 := w.InsImmQ(7)
	if c1 != c2 {
		t.Error("identical constants not merged")
	}
	n := buf.Len()
	w.Ins2(OpAddI, a, b)
	if buf.Len() != n {
		t.Error("merged instruction still reached the buffer")
	}
}

func TestCseLoadsAndStores(t *testing.T) {
	_, w, _ := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	p := w.InsParam(0, KindQ, false)
	l1 := w.InsLoad(OpLdI, p, 8, AccOther)
	l2 := w.InsLoad(OpLdI, p, 8, AccOther)
	if l1 != l2 {
		t.Fatal("repeated load not merged")
	}
	if w.InsLoad(OpLdI, p, 12, AccOther) == l1 {
		t.Fatal("loads at different offsets merged")
	}
	w.InsStore(OpStI, l1, p, 100, AccOther)
	if l3 := w.InsLoad(OpLdI, p, 8, AccOther); l3 == l1 {
		t.Error("load merged across a store")
	}
}

func TestCseForgetsAtLabels(t *testing.T) {
	_, w, _ := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	a := w.InsParam(0, KindI, false)
	x := w.Ins2(OpMulI, a, a)
	w.Ins0(OpLabel)
	if y := w.Ins2(OpMulI, a, a); y == x {
		t.Error("value reused across a label")
	}
}

func TestExprFolding(t *testing.T) {
	_, w, buf := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	p := w.InsParam(0, KindI, false)

	sum := w.Ins2(OpAddI, w.InsImmI(40), w.InsImmI(2))
	if ins := buf.At(sum); ins.Op != OpImmI || ins.ImmI() != 42 {
		t.Fatalf("40+2 folded to %s", Text(ins))
	}
	zero := w.InsImmI(0)
	if r := w.Ins2(OpAddI, p, zero); r != p {
		t.Errorf("p+0 = %s, want %s", r, p)
	}
	if r := w.Ins2(OpAddI, zero, p); r != p {
		t.Errorf("0+p = %s, want %s", r, p)
	}
	if r := w.Ins2(OpMulI, p, w.InsImmI(1)); r != p {
		t.Errorf("p*1 = %s, want %s", r, p)
	}
	if r := w.Ins2(OpXorI, p, p); buf.At(r).Op != OpImmI || buf.At(r).ImmI() != 0 {
		t.Errorf("p^p = %s", Text(buf.At(r)))
	}
	if r := w.Ins1(OpNegI, w.Ins1(OpNegI, p)); r != p {
		t.Errorf("-(-p) = %s, want %s", r, p)
	}
	div := w.Ins2(OpDivI, w.InsImmI(1), zero)
	if buf.At(div).Op != OpDivI {
		t.Error("division by zero was folded")
	}
}

func TestExprLeavesFloatIdentities(t *testing.T) {
	_, w, buf := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	x := w.Ins1(OpQasD, w.InsParam(0, KindQ, false))
	r := w.Ins2(OpMulD, x, w.InsImmD(0))
	if buf.At(r).Op != OpMulD {
		t.Errorf("x*0.0 folded to %s", Text(buf.At(r)))
	}
}

func TestExprConstantBranch(t *testing.T) {
	_, w, buf := newTestPipeline(PipelineConfig{Optimize: true})
	w.Ins0(OpStart)
	one := w.InsImmI(1)
	taken := w.InsBranch(OpJt, one, NoRef)
	if buf.At(taken).Op != OpJ {
		t.Errorf("jt on true emitted %s, want j", buf.At(taken).Op)
	}
	never := w.InsBranch(OpJf, one, NoRef)
	if buf.At(never).Op != OpJf {
		t.Errorf("jf on true emitted %s, want jf", buf.At(never).Op)
	}
	l := w.Ins0(OpLabel)
	if err := buf.SetTarget(never, l); err != nil {
		t.Errorf("never-taken branch cannot be patched: %v", err)
	}
}

func TestVerboseTracesRequests(t *testing.T) {
	var log bytes.Buffer
	_, w, _ := newTestPipeline(PipelineConfig{Optimize: true, Verbose: true, Log: &log})
	w.Ins0(OpStart)
	w.Ins2(OpAddI, w.InsImmI(1), w.InsImmI(2))
	out := log.String()
	for _, want := range []string{"start", "immi 1", "immi 2", "addi %2, %3"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace lacks %q:\n%s", want, out)
		}
	}
}

func TestOptimizeRemovesRedundantWork(t *testing.T) {
	emit := func(w Writer) {
		w.Ins0(OpStart)
		a := w.InsParam(0, KindI, false)
		b := w.InsParam(1, KindI, false)
		x := w.Ins2(OpMulI, a, b)
		y := w.Ins2(OpMulI, a, b)
		w.Ins1(OpRetI, w.Ins2(OpAddI, x, y))
	}
	_, plain, pbuf := newTestPipeline(PipelineConfig{Validate: true, Params: []Kind{KindI, KindI}})
	_, opt, obuf := newTestPipeline(PipelineConfig{Validate: true, Optimize: true, Params: []Kind{KindI, KindI}})
	emit(plain)
	emit(opt)
	if obuf.Len() >= pbuf.Len() {
		t.Errorf("optimized buffer has %d instructions, plain has %d", obuf.Len(), pbuf.Len())
	}
}

func TestDumpFormat(t *testing.T) {
	buf := NewBuffer("dumped")
	w := NewBufWriter(buf)
	w.Ins0(OpStart)
	c := w.InsImmQ(-3)
	w.Ins1(OpRetQ, c)
	var out bytes.Buffer
	if err := Dump(&out, buf); err != nil {
		t.Fatal(err)
	}
	want := "; dumped\n  start\n  %2 = immq -3\n  retq %2\n"
	if out.String() != want {
		t.Errorf("Dump =\n%q\nwant\n%q", out.String(), want)
	}
}
