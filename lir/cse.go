package lir

// CseFilter removes common subexpressions. Pure instructions and loads are
// remembered by opcode and operands; an identical request returns the earlier
// instruction instead of emitting a new one.
//
// All memory traffic shares one access region, so any store or call forgets
// every remembered load. A label is a control-flow merge: everything is forgotten.
type CseFilter struct {
	Writer
	exprs map[cseKey]Ref
	loads map[cseKey]Ref

	// Hits counts requests answered with an earlier instruction.
	Hits int
}

type cseKey struct {
	op      Opcode
	a, b, c Ref
	imm     uint64
}

// NewCseFilter wraps next with common subexpression elimination.
func NewCseFilter(next Writer) *CseFilter {
	return &CseFilter{
		Writer: next,
		exprs:  make(map[cseKey]Ref),
		loads:  make(map[cseKey]Ref),
	}
}

func (f *CseFilter) String() string { return "cse" }

func (f *CseFilter) clearAll() {
	clear(f.exprs)
	clear(f.loads)
}

func (f *CseFilter) lookup(m map[cseKey]Ref, k cseKey, emit func() Ref) Ref {
	if r, ok := m[k]; ok {
		f.Hits++
		return r
	}
	r := emit()
	m[k] = r
	return r
}

func (f *CseFilter) Ins0(op Opcode) Ref {
	if op == OpLabel {
		f.clearAll()
	}
	return f.Writer.Ins0(op)
}

func (f *CseFilter) Ins1(op Opcode, a Ref) Ref {
	if !op.Pure() {
		return f.Writer.Ins1(op, a)
	}
	return f.lookup(f.exprs, cseKey{op: op, a: a}, func() Ref { return f.Writer.Ins1(op, a) })
}

func (f *CseFilter) Ins2(op Opcode, a, b Ref) Ref {
	if !op.Pure() {
		return f.Writer.Ins2(op, a, b)
	}
	k := cseKey{op: op, a: a, b: b}
	if op.Commutative() && k.a > k.b {
		k.a, k.b = k.b, k.a
	}
	return f.lookup(f.exprs, k, func() Ref { return f.Writer.Ins2(op, a, b) })
}

func (f *CseFilter) Ins3(op Opcode, a, b, c Ref) Ref {
	if !op.Pure() {
		return f.Writer.Ins3(op, a, b, c)
	}
	return f.lookup(f.exprs, cseKey{op: op, a: a, b: b, c: c}, func() Ref { return f.Writer.Ins3(op, a, b, c) })
}

func (f *CseFilter) InsImmI(v int32) Ref {
	return f.lookup(f.exprs, cseKey{op: OpImmI, imm: BitsI(v)}, func() Ref { return f.Writer.InsImmI(v) })
}

func (f *CseFilter) InsImmQ(v int64) Ref {
	return f.lookup(f.exprs, cseKey{op: OpImmQ, imm: BitsQ(v)}, func() Ref { return f.Writer.InsImmQ(v) })
}

func (f *CseFilter) InsImmD(v float64) Ref {
	return f.lookup(f.exprs, cseKey{op: OpImmD, imm: BitsD(v)}, func() Ref { return f.Writer.InsImmD(v) })
}

func (f *CseFilter) InsImmF(v float32) Ref {
	return f.lookup(f.exprs, cseKey{op: OpImmF, imm: BitsF(v)}, func() Ref { return f.Writer.InsImmF(v) })
}

func (f *CseFilter) InsLoad(op Opcode, base Ref, disp int32, acc AccSet) Ref {
	k := cseKey{op: op, a: base, imm: uint64(uint32(disp))}
	return f.lookup(f.loads, k, func() Ref { return f.Writer.InsLoad(op, base, disp, acc) })
}

func (f *CseFilter) InsStore(op Opcode, val, base Ref, disp int32, acc AccSet) Ref {
	clear(f.loads)
	return f.Writer.InsStore(op, val, base, disp, acc)
}

func (f *CseFilter) InsCall(ci *CallInfo, args []Ref) Ref {
	clear(f.loads)
	return f.Writer.InsCall(ci, args)
}

// Close drops the tables.
func (f *CseFilter) Close() {
	f.exprs = nil
	f.loads = nil
}
