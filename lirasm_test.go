package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/xyproto/njx/jit"
	"github.com/xyproto/njx/lir"
)

func assembleString(t *testing.T, src string, optimize bool) (*jit.Context, []*jit.Fragment, error) {
	t.Helper()
	defs, err := ParseLIR("test.lir", strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseLIR: %v", err)
	}
	jc, err := jit.NewContext(false, jit.WithEngine("interp"), jit.WithValidation(true), jit.WithLog(&strings.Builder{}))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { jc.Destroy() })
	var frags []*jit.Fragment
	for _, def := range defs {
		f, err := Assemble(jc, "test.lir", def, optimize)
		if err != nil {
			return jc, frags, err
		}
		frags = append(frags, f)
	}
	return jc, frags, nil
}

func TestParseLIR(t *testing.T) {
	src := `
; comment
.begin add quad quad quad
  a = param
  b = param   # trailing comment
  c = addq a b
  retq c
.end
`
	defs, err := ParseLIR("add.lir", strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 {
		t.Fatalf("got %d functions", len(defs))
	}
	d := defs[0]
	if d.Name != "add" || d.Ret != lir.KindQ || len(d.Params) != 2 {
		t.Errorf("header parsed as %s %v %v", d.Name, d.Ret, d.Params)
	}
	if len(d.Body) != 4 || d.Body[2].Dest != "c" || d.Body[2].Op != "addq" {
		t.Errorf("body parsed as %+v", d.Body)
	}
}

func TestParseLIRErrors(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"  reti x\n", "outside .begin/.end"},
		{".begin f int\n", "missing .end"},
		{".end\n", ".end without .begin"},
		{".begin f blob\n.end\n", "unknown value kind"},
		{".begin f\n", "usage: .begin"},
	}
	for _, tt := range tests {
		_, err := ParseLIR("bad.lir", strings.NewReader(tt.src))
		var se *SyntaxError
		if !errors.As(err, &se) || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("ParseLIR(%q) = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestAssembleForwardAndBackwardLabels(t *testing.T) {
	src := `
.begin countdown int int
  n = param
  slot = allocp 4
  sti n slot 0
  zero = immi 0
  one = immi 1
top:
  v = ldi slot 0
  pos = gti v zero
  jf pos out
  w = subi v one
  sti w slot 0
  j top
out:
  r = ldi slot 0
  reti r
.end
`
	_, frags, err := assembleString(t, src, true)
	if err != nil {
		t.Fatal(err)
	}
	if got := frags[0].Func.(jit.IntFunc)(12); got != 0 {
		t.Errorf("countdown(12) = %d", got)
	}
}

func TestAssembleErrorsPointAtLines(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{".begin f int\n  reti nope\n.end\n", "test.lir:2: undefined value nope"},
		{".begin f int\n  j nowhere\n  x = immi 0\n  reti x\n.end\n", "undefined label nowhere"},
		{".begin f int\n  x = frob\n.end\n", "test.lir:2: unknown instruction frob"},
		{".begin f int\n  x = immq 1\n  reti x\n.end\n", "test.lir:3:"},
		{".begin f int\n  x = immi 1\n  x = immi 2\n.end\n", "x assigned twice"},
	}
	for _, tt := range tests {
		_, _, err := assembleString(t, tt.src, false)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("assemble(%q) = %v, want %q", tt.src, err, tt.want)
		}
	}
}

func TestAssembleUnresolvedCall(t *testing.T) {
	src := ".begin f int\n  x = call missing cdecl\n  reti x\n.end\n"
	_, _, err := assembleString(t, src, false)
	if !errors.Is(err, jit.ErrUnresolvedCall) {
		t.Errorf("assemble = %v, want ErrUnresolvedCall", err)
	}
}
