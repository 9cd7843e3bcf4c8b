package lir

import "math"

// Values travel between stages and engines as raw 64-bit patterns.
// An int uses the low 32 bits, a float the low 32 bits of its IEEE encoding.

// BitsI encodes an int value.
func BitsI(v int32) uint64 { return uint64(uint32(v)) }

// BitsQ encodes a quad value.
func BitsQ(v int64) uint64 { return uint64(v) }

// BitsD encodes a double value.
func BitsD(v float64) uint64 { return math.Float64bits(v) }

// BitsF encodes a float value.
func BitsF(v float32) uint64 { return uint64(math.Float32bits(v)) }

// AsI decodes an int value.
func AsI(b uint64) int32 { return int32(uint32(b)) }

// AsQ decodes a quad value.
func AsQ(b uint64) int64 { return int64(b) }

// AsD decodes a double value.
func AsD(b uint64) float64 { return math.Float64frombits(b) }

// AsF decodes a float value.
func AsF(b uint64) float32 { return math.Float32frombits(uint32(b)) }

func boolBits(c bool) uint64 {
	if c {
		return 1
	}
	return 0
}

// truncI truncates toward zero the way cvttsd2si does: NaN and values out
// of range give the "integer indefinite" 0x80000000.
func truncI(f float64) int32 {
	if f != f || f >= 2147483648.0 || f <= -2147483649.0 {
		return math.MinInt32
	}
	return int32(f)
}

// CanEval reports whether EvalBinary can compute op on these operands
// without trapping. Integer division by zero and MinInt32/-1 trap on x86.
func CanEval(op Opcode, a, b uint64) bool {
	switch op {
	case OpDivI, OpModI:
		d := AsI(b)
		return d != 0 && !(d == -1 && AsI(a) == math.MinInt32)
	}
	return true
}

// EvalUnary computes a unary opcode on constant bits.
func EvalUnary(op Opcode, a uint64) uint64 {
	switch op {
	case OpNegI:
		return BitsI(-AsI(a))
	case OpNotI:
		return BitsI(^AsI(a))
	case OpNegD:
		return a ^ (1 << 63)
	case OpNegF:
		return (a ^ (1 << 31)) & 0xffffffff
	case OpI2Q:
		return BitsQ(int64(AsI(a)))
	case OpUI2UQ:
		return uint64(uint32(a))
	case OpQ2I:
		return uint64(uint32(a))
	case OpI2D:
		return BitsD(float64(AsI(a)))
	case OpUI2D:
		return BitsD(float64(uint32(a)))
	case OpD2I:
		return BitsI(truncI(AsD(a)))
	case OpQ2D:
		return BitsD(float64(AsQ(a)))
	case OpI2F:
		return BitsF(float32(AsI(a)))
	case OpF2I:
		return BitsI(truncI(float64(AsF(a))))
	case OpF2D:
		return BitsD(float64(AsF(a)))
	case OpD2F:
		return BitsF(float32(AsD(a)))
	case OpDasQ, OpQasD:
		return a
	}
	panic("lir: EvalUnary: not a unary opcode: " + op.String())
}

// EvalBinary computes a binary opcode on constant bits. Shift counts are
// masked to the operand width, as the hardware does.
func EvalBinary(op Opcode, a, b uint64) uint64 {
	switch op {
	case OpAddI:
		return BitsI(AsI(a) + AsI(b))
	case OpSubI:
		return BitsI(AsI(a) - AsI(b))
	case OpMulI:
		return BitsI(AsI(a) * AsI(b))
	case OpDivI:
		return BitsI(AsI(a) / AsI(b))
	case OpModI:
		return BitsI(AsI(a) % AsI(b))
	case OpAndI:
		return BitsI(AsI(a) & AsI(b))
	case OpOrI:
		return BitsI(AsI(a) | AsI(b))
	case OpXorI:
		return BitsI(AsI(a) ^ AsI(b))
	case OpLshI:
		return BitsI(AsI(a) << (uint32(b) & 31))
	case OpRshI:
		return BitsI(AsI(a) >> (uint32(b) & 31))
	case OpRshuI:
		return uint64(uint32(a) >> (uint32(b) & 31))

	case OpAddQ:
		return a + b
	case OpSubQ:
		return a - b
	case OpMulQ:
		return BitsQ(AsQ(a) * AsQ(b))
	case OpAndQ:
		return a & b
	case OpOrQ:
		return a | b
	case OpXorQ:
		return a ^ b
	case OpLshQ:
		return a << (uint32(b) & 63)
	case OpRshQ:
		return BitsQ(AsQ(a) >> (uint32(b) & 63))
	case OpRshuQ:
		return a >> (uint32(b) & 63)

	case OpAddD:
		return BitsD(AsD(a) + AsD(b))
	case OpSubD:
		return BitsD(AsD(a) - AsD(b))
	case OpMulD:
		return BitsD(AsD(a) * AsD(b))
	case OpDivD:
		return BitsD(AsD(a) / AsD(b))

	case OpAddF:
		return BitsF(AsF(a) + AsF(b))
	case OpSubF:
		return BitsF(AsF(a) - AsF(b))
	case OpMulF:
		return BitsF(AsF(a) * AsF(b))
	case OpDivF:
		return BitsF(AsF(a) / AsF(b))

	case OpEqI:
		return boolBits(AsI(a) == AsI(b))
	case OpLtI:
		return boolBits(AsI(a) < AsI(b))
	case OpGtI:
		return boolBits(AsI(a) > AsI(b))
	case OpLeI:
		return boolBits(AsI(a) <= AsI(b))
	case OpGeI:
		return boolBits(AsI(a) >= AsI(b))
	case OpLtuI:
		return boolBits(uint32(a) < uint32(b))
	case OpGtuI:
		return boolBits(uint32(a) > uint32(b))
	case OpLeuI:
		return boolBits(uint32(a) <= uint32(b))
	case OpGeuI:
		return boolBits(uint32(a) >= uint32(b))

	case OpEqQ:
		return boolBits(a == b)
	case OpLtQ:
		return boolBits(AsQ(a) < AsQ(b))
	case OpGtQ:
		return boolBits(AsQ(a) > AsQ(b))
	case OpLeQ:
		return boolBits(AsQ(a) <= AsQ(b))
	case OpGeQ:
		return boolBits(AsQ(a) >= AsQ(b))
	case OpLtuQ:
		return boolBits(a < b)
	case OpGtuQ:
		return boolBits(a > b)
	case OpLeuQ:
		return boolBits(a <= b)
	case OpGeuQ:
		return boolBits(a >= b)

	case OpEqD:
		return boolBits(AsD(a) == AsD(b))
	case OpLtD:
		return boolBits(AsD(a) < AsD(b))
	case OpGtD:
		return boolBits(AsD(a) > AsD(b))
	case OpLeD:
		return boolBits(AsD(a) <= AsD(b))
	case OpGeD:
		return boolBits(AsD(a) >= AsD(b))

	case OpEqF:
		return boolBits(AsF(a) == AsF(b))
	case OpLtF:
		return boolBits(AsF(a) < AsF(b))
	case OpGtF:
		return boolBits(AsF(a) > AsF(b))
	case OpLeF:
		return boolBits(AsF(a) <= AsF(b))
	case OpGeF:
		return boolBits(AsF(a) >= AsF(b))
	}
	panic("lir: EvalBinary: not a binary opcode: " + op.String())
}

// EvalCmov picks iftrue when cond is a nonzero int.
func EvalCmov(cond, iftrue, iffalse uint64) uint64 {
	if AsI(cond) != 0 {
		return iftrue
	}
	return iffalse
}
