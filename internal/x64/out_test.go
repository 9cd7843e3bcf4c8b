package x64

import (
	"bytes"
	"errors"
	"testing"

	"github.com/xyproto/njx/internal/backend"
	"github.com/xyproto/njx/internal/engine"
	"github.com/xyproto/njx/lir"
)

func TestEncodings(t *testing.T) {
	tests := []struct {
		name string
		emit func(o *Out)
		want []byte
	}{
		{"mov rax, [rbp-48]", func(o *Out) { o.LoadSlot(RAX, -48) }, []byte{0x48, 0x8B, 0x85, 0xD0, 0xFF, 0xFF, 0xFF}},
		{"mov [rbp-48], r9", func(o *Out) { o.StoreSlot(-48, R9) }, []byte{0x4C, 0x89, 0x8D, 0xD0, 0xFF, 0xFF, 0xFF}},
		{"movsd xmm1, [rbp+8]", func(o *Out) { o.LoadXmm(XMM1, RBP, 8, true) }, []byte{0xF2, 0x0F, 0x10, 0x8D, 8, 0, 0, 0}},
		{"movss [rcx+4], xmm0", func(o *Out) { o.StoreXmm(RCX, 4, XMM0, false) }, []byte{0xF3, 0x0F, 0x11, 0x81, 4, 0, 0, 0}},
		{"mov rcx, imm64", func(o *Out) { o.MovImm64(RCX, 1) }, []byte{0x48, 0xB9, 1, 0, 0, 0, 0, 0, 0, 0}},
		{"mov eax, imm32", func(o *Out) { o.MovImm32(RAX, 42) }, []byte{0xB8, 42, 0, 0, 0}},
		{"add eax, ecx", func(o *Out) { o.AluRR(false, opAdd, RAX, RCX) }, []byte{0x01, 0xC8}},
		{"sub rax, rcx", func(o *Out) { o.AluRR(true, opSub, RAX, RCX) }, []byte{0x48, 0x29, 0xC8}},
		{"mov rbp, rsp", func(o *Out) { o.AluRR(true, opMov, RBP, RSP) }, []byte{0x48, 0x89, 0xE5}},
		{"imul eax, ecx", func(o *Out) { o.ImulRR(false, RAX, RCX) }, []byte{0x0F, 0xAF, 0xC1}},
		{"neg eax", func(o *Out) { o.Group3(false, 3, RAX) }, []byte{0xF7, 0xD8}},
		{"idiv ecx", func(o *Out) { o.Group3(false, 7, RCX) }, []byte{0xF7, 0xF9}},
		{"sar rax, cl", func(o *Out) { o.ShiftCL(true, 7, RAX) }, []byte{0x48, 0xD3, 0xF8}},
		{"setl al; movzx", func(o *Out) { o.Setcc(ccL) }, []byte{0x0F, 0x9C, 0xC0, 0x0F, 0xB6, 0xC0}},
		{"addsd xmm0, xmm1", func(o *Out) { o.SseRR(0xF2, 0x58, XMM0, XMM1) }, []byte{0xF2, 0x0F, 0x58, 0xC1}},
		{"lea rsp, [rbp-40]", func(o *Out) { o.Lea(RSP, RBP, -40) }, []byte{0x48, 0x8D, 0xA5, 0xD8, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		o := NewOut()
		tt.emit(o)
		if !bytes.Equal(o.Bytes(), tt.want) {
			t.Errorf("%s: got % x, want % x", tt.name, o.Bytes(), tt.want)
		}
	}
}

func TestResolveFixups(t *testing.T) {
	o := NewOut()
	o.Jmp(7, 1)  // forward
	o.Write(0x90)
	o.Bind(7)
	o.Jcc(ccE, 7, 2) // backward
	if err := o.Resolve("f"); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		0xE9, 1, 0, 0, 0,
		0x90,
		0x0F, 0x84, 0xFA, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(o.Bytes(), want) {
		t.Errorf("got % x, want % x", o.Bytes(), want)
	}
}

func TestResolveUnknownLabel(t *testing.T) {
	o := NewOut()
	o.Jmp(9, 3)
	err := o.Resolve("f")
	if !errors.Is(err, backend.ErrUnknownBranch) {
		t.Fatalf("Resolve = %v, want ErrUnknownBranch", err)
	}
}

func sysv() engine.CallingConvention {
	return engine.CallingConventionFor(engine.Platform{Arch: engine.ArchX86_64, OS: engine.OSLinux})
}

func TestFrameAlignment(t *testing.T) {
	for _, allocs := range [][]int32{nil, {1}, {24, 8}, {100}} {
		buf := lir.NewBuffer("frame")
		w := lir.NewBufWriter(buf)
		w.Ins0(lir.OpStart)
		for _, n := range allocs {
			w.InsAlloc(n)
		}
		w.Ins0(lir.OpRet)
		g := newGen(buf, sysv())
		if err := g.layout(); err != nil {
			t.Fatal(err)
		}
		if (g.savedBytes+g.frameBytes)%16 != 0 {
			t.Errorf("allocs %v: saved %d + frame %d is not 16-byte aligned", allocs, g.savedBytes, g.frameBytes)
		}
		for r, disp := range g.allocs {
			if disp%16 != 0 {
				t.Errorf("allocs %v: region %s at rbp%d is not aligned", allocs, r, disp)
			}
			if -disp > g.savedBytes+g.frameBytes {
				t.Errorf("allocs %v: region %s outside the frame", allocs, r)
			}
		}
	}
}

func TestFrameTooLarge(t *testing.T) {
	buf := lir.NewBuffer("huge")
	w := lir.NewBufWriter(buf)
	w.Ins0(lir.OpStart)
	w.InsAlloc(maxFrameBytes)
	_, err := generate(buf, sysv())
	if !errors.Is(err, backend.ErrStackFull) {
		t.Fatalf("generate = %v, want ErrStackFull", err)
	}
}

func TestGenerateConstantReturn(t *testing.T) {
	buf := lir.NewBuffer("answer")
	w := lir.NewBufWriter(buf)
	w.Ins0(lir.OpStart)
	c := w.InsImmI(42)
	w.Ins1(lir.OpRetI, c)
	code, err := generate(buf, sysv())
	if err != nil {
		t.Fatal(err)
	}
	prologue := []byte{0x55, 0x48, 0x89, 0xE5, 0x53, 0x41, 0x54, 0x41, 0x55, 0x41, 0x56, 0x41, 0x57}
	if !bytes.HasPrefix(code, prologue) {
		t.Errorf("prologue = % x", code[:len(prologue)])
	}
	if !bytes.Contains(code, []byte{0xB8, 42, 0, 0, 0}) {
		t.Error("constant 42 not materialized")
	}
	if code[len(code)-1] != 0xC3 {
		t.Error("function does not end in ret")
	}
}
