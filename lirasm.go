// Completion: 100% - LIR text parser and assembler complete
package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xyproto/njx/jit"
	"github.com/xyproto/njx/lir"
)

// lirasm.go - textual LIR
//
//	.begin name ret [param-kinds...]
//	  a = param
//	  b = param
//	  c = addq a b
//	  jt cond done
//	  retq c
//	done:
//	  retq a
//	.end
//
// Comments start with ';' or '#'. Labels may be used before they are
// defined; such branches are patched when the label appears.

// Line is one statement of a function body.
type Line struct {
	No    int
	Dest  string // name bound to the result, or ""
	Op    string
	Args  []string
	Label string // set for "name:" lines
}

// FuncDef is one .begin/.end block.
type FuncDef struct {
	Name   string
	Ret    lir.Kind
	Params []lir.Kind
	Line   int
	Body   []Line
}

// SyntaxError points at a line of LIR text.
type SyntaxError struct {
	File    string
	Line    int
	Message string
	Err     error // builder error behind Message, if any
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// ParseLIR reads every function in r. file is only used in diagnostics.
func ParseLIR(file string, r io.Reader) ([]*FuncDef, error) {
	var (
		defs []*FuncDef
		cur  *FuncDef
		no   int
	)
	fail := func(format string, args ...any) error {
		return &SyntaxError{File: file, Line: no, Message: fmt.Sprintf(format, args...)}
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		no++
		text := sc.Text()
		if i := strings.IndexAny(text, ";#"); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		switch {
		case fields[0] == ".begin":
			if cur != nil {
				return nil, fail(".begin inside %s", cur.Name)
			}
			if len(fields) < 3 {
				return nil, fail("usage: .begin name ret [param-kinds...]")
			}
			ret, err := lir.ParseKind(fields[2])
			if err != nil {
				return nil, fail("%v", err)
			}
			cur = &FuncDef{Name: fields[1], Ret: ret, Line: no}
			for _, f := range fields[3:] {
				k, err := lir.ParseKind(f)
				if err != nil {
					return nil, fail("%v", err)
				}
				cur.Params = append(cur.Params, k)
			}

		case fields[0] == ".end":
			if cur == nil {
				return nil, fail(".end without .begin")
			}
			defs = append(defs, cur)
			cur = nil

		case cur == nil:
			return nil, fail("statement outside .begin/.end")

		case len(fields) == 1 && strings.HasSuffix(fields[0], ":"):
			cur.Body = append(cur.Body, Line{No: no, Label: strings.TrimSuffix(fields[0], ":")})

		case len(fields) >= 3 && fields[1] == "=":
			cur.Body = append(cur.Body, Line{No: no, Dest: fields[0], Op: fields[2], Args: fields[3:]})

		default:
			cur.Body = append(cur.Body, Line{No: no, Op: fields[0], Args: fields[1:]})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fail("%s is missing .end", cur.Name)
	}
	return defs, nil
}

// assembler turns one FuncDef into builder calls.
type assembler struct {
	file    string
	b       *jit.FunctionBuilder
	values  map[string]lir.Ref
	labels  map[string]lir.Ref
	jumps   map[string][]lir.Ref // branches waiting for a label
	entries map[string][]switchEntry
	line    int
}

type switchEntry struct {
	sw lir.Ref
	i  int
}

// Assemble emits def into a new builder of ctx and finalizes it.
// Validation failures are reported as errors pointing at the offending line.
func Assemble(ctx *jit.Context, file string, def *FuncDef, optimize bool) (f *jit.Fragment, err error) {
	b, err := ctx.NewFunctionBuilder(def.Name, def.Ret, def.Params, optimize)
	if err != nil {
		return nil, err
	}
	a := &assembler{
		file:    file,
		b:       b,
		values:  make(map[string]lir.Ref),
		labels:  make(map[string]lir.Ref),
		jumps:   make(map[string][]lir.Ref),
		entries: make(map[string][]switchEntry),
		line:    def.Line,
	}
	defer func() {
		if r := recover(); r != nil {
			b.Destroy()
			f, err = nil, a.errorf("%v", r)
		}
	}()
	for _, l := range def.Body {
		a.line = l.No
		if err := a.line1(l); err != nil {
			b.Destroy()
			return nil, err
		}
	}
	for name := range a.jumps {
		b.Destroy()
		return nil, a.errorf("undefined label %s", name)
	}
	for name := range a.entries {
		b.Destroy()
		return nil, a.errorf("undefined label %s", name)
	}
	return b.Finalize()
}

func (a *assembler) errorf(format string, args ...any) error {
	return &SyntaxError{File: a.file, Line: a.line, Message: fmt.Sprintf(format, args...)}
}

func (a *assembler) value(name string) (lir.Ref, error) {
	r, ok := a.values[name]
	if !ok {
		return lir.NoRef, a.errorf("undefined value %s", name)
	}
	return r, nil
}

func (a *assembler) refs(names []string) ([]lir.Ref, error) {
	refs := make([]lir.Ref, len(names))
	for i, n := range names {
		r, err := a.value(n)
		if err != nil {
			return nil, err
		}
		refs[i] = r
	}
	return refs, nil
}

func (a *assembler) nargs(l Line, n int) error {
	if len(l.Args) != n {
		return a.errorf("%s takes %d operands, got %d", l.Op, n, len(l.Args))
	}
	return nil
}

func (a *assembler) line1(l Line) error {
	b := a.b
	if l.Label != "" {
		if _, dup := a.labels[l.Label]; dup {
			return a.errorf("label %s defined twice", l.Label)
		}
		lbl := b.AddLabel()
		a.labels[l.Label] = lbl
		for _, j := range a.jumps[l.Label] {
			if err := b.SetJmpTarget(j, lbl); err != nil {
				return err
			}
		}
		for _, e := range a.entries[l.Label] {
			if err := b.SetSwitchTarget(e.sw, e.i, lbl); err != nil {
				return err
			}
		}
		delete(a.jumps, l.Label)
		delete(a.entries, l.Label)
		return nil
	}

	r, err := a.emit(l)
	if err != nil {
		return err
	}
	if l.Dest != "" {
		if _, dup := a.values[l.Dest]; dup {
			return a.errorf("%s assigned twice", l.Dest)
		}
		a.values[l.Dest] = r
	}
	return nil
}

func (a *assembler) emit(l Line) (lir.Ref, error) {
	b := a.b
	switch l.Op {
	case "param":
		if err := a.nargs(l, 0); err != nil {
			return lir.NoRef, err
		}
		return b.InsertParameter(), nil
	case "immi", "immq", "immd", "immf":
		if err := a.nargs(l, 1); err != nil {
			return lir.NoRef, err
		}
		return a.imm(l.Op, l.Args[0])
	case "allocp":
		if err := a.nargs(l, 1); err != nil {
			return lir.NoRef, err
		}
		n, err := strconv.ParseInt(l.Args[0], 0, 32)
		if err != nil {
			return lir.NoRef, a.errorf("bad size %q", l.Args[0])
		}
		return b.Alloca(int32(n)), nil
	case "j", "jt", "jf":
		return a.branch(l)
	case "jtbl":
		return a.jtbl(l)
	case "call":
		if len(l.Args) < 2 {
			return lir.NoRef, a.errorf("usage: call name abi args...")
		}
		abi, err := lir.ParseABI(l.Args[1])
		if err != nil {
			return lir.NoRef, a.errorf("%v", err)
		}
		args, err := a.refs(l.Args[2:])
		if err != nil {
			return lir.NoRef, err
		}
		r, err := b.Call(l.Args[0], abi, args...)
		if err != nil {
			return lir.NoRef, &SyntaxError{File: a.file, Line: a.line, Message: err.Error(), Err: err}
		}
		return r, nil
	}

	op, ok := lir.LookupOpcode(l.Op)
	if !ok {
		return lir.NoRef, a.errorf("unknown instruction %s", l.Op)
	}
	switch op.Class() {
	case lir.ClassLoad:
		if err := a.nargs(l, 2); err != nil {
			return lir.NoRef, err
		}
		ptr, err := a.value(l.Args[0])
		if err != nil {
			return lir.NoRef, err
		}
		off, err := a.offset(l.Args[1])
		if err != nil {
			return lir.NoRef, err
		}
		return b.Load(op, ptr, off), nil
	case lir.ClassStore:
		if err := a.nargs(l, 3); err != nil {
			return lir.NoRef, err
		}
		refs, err := a.refs(l.Args[:2])
		if err != nil {
			return lir.NoRef, err
		}
		off, err := a.offset(l.Args[2])
		if err != nil {
			return lir.NoRef, err
		}
		return b.Store(op, refs[0], refs[1], off), nil
	case lir.ClassUnary, lir.ClassBinary, lir.ClassCmov, lir.ClassLive, lir.ClassRet:
		refs, err := a.refs(l.Args)
		if err != nil {
			return lir.NoRef, err
		}
		return b.Ins(op, refs...), nil
	}
	return lir.NoRef, a.errorf("%s cannot be written in LIR text", l.Op)
}

func (a *assembler) imm(op, s string) (lir.Ref, error) {
	b := a.b
	switch op {
	case "immi":
		v, err := strconv.ParseInt(s, 0, 32)
		if err != nil {
			return lir.NoRef, a.errorf("bad int %q", s)
		}
		return b.ImmI(int32(v)), nil
	case "immq":
		v, err := strconv.ParseInt(s, 0, 64)
		if err != nil {
			return lir.NoRef, a.errorf("bad quad %q", s)
		}
		return b.ImmQ(v), nil
	case "immd":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return lir.NoRef, a.errorf("bad double %q", s)
		}
		return b.ImmD(v), nil
	default:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return lir.NoRef, a.errorf("bad float %q", s)
		}
		return b.ImmF(float32(v)), nil
	}
}

func (a *assembler) offset(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, a.errorf("bad offset %q", s)
	}
	return int32(v), nil
}

func (a *assembler) branch(l Line) (lir.Ref, error) {
	b := a.b
	var (
		cond  lir.Ref
		label string
	)
	if l.Op == "j" {
		if err := a.nargs(l, 1); err != nil {
			return lir.NoRef, err
		}
		label = l.Args[0]
	} else {
		if err := a.nargs(l, 2); err != nil {
			return lir.NoRef, err
		}
		c, err := a.value(l.Args[0])
		if err != nil {
			return lir.NoRef, err
		}
		cond, label = c, l.Args[1]
	}
	target := a.labels[label] // NoRef for a forward reference
	var j lir.Ref
	switch l.Op {
	case "j":
		j = b.Br(target)
	case "jt":
		j = b.CbrTrue(cond, target)
	default:
		j = b.CbrFalse(cond, target)
	}
	if target == lir.NoRef {
		a.jumps[label] = append(a.jumps[label], j)
	}
	return j, nil
}

func (a *assembler) jtbl(l Line) (lir.Ref, error) {
	if len(l.Args) < 2 {
		return lir.NoRef, a.errorf("usage: jtbl index label...")
	}
	idx, err := a.value(l.Args[0])
	if err != nil {
		return lir.NoRef, err
	}
	names := l.Args[1:]
	sw := a.b.Switch(idx, len(names))
	for i, name := range names {
		if lbl, ok := a.labels[name]; ok {
			if err := a.b.SetSwitchTarget(sw, i, lbl); err != nil {
				return lir.NoRef, err
			}
			continue
		}
		a.entries[name] = append(a.entries[name], switchEntry{sw, i})
	}
	return sw, nil
}
