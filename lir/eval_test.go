package lir

import (
	"math"
	"testing"
)

func TestEvalBinaryInt(t *testing.T) {
	tests := []struct {
		op   Opcode
		a, b int32
		want int32
	}{
		{OpAddI, 3, 4, 7},
		{OpAddI, math.MaxInt32, 1, math.MinInt32},
		{OpSubI, 3, 10, -7},
		{OpMulI, -6, 7, -42},
		{OpDivI, -7, 2, -3},
		{OpModI, -7, 2, -1},
		{OpAndI, 0b1100, 0b1010, 0b1000},
		{OpOrI, 0b1100, 0b1010, 0b1110},
		{OpXorI, 0b1100, 0b1010, 0b0110},
		{OpLshI, 1, 33, 2},
		{OpRshI, -16, 2, -4},
		{OpRshuI, -16, 28, 15},
		{OpLtI, -1, 0, 1},
		{OpLtuI, -1, 0, 0},
		{OpGeI, 5, 5, 1},
	}
	for _, tt := range tests {
		got := AsI(EvalBinary(tt.op, BitsI(tt.a), BitsI(tt.b)))
		if got != tt.want {
			t.Errorf("%s(%d, %d) = %d, want %d", tt.op, tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEvalQuadAndFloat(t *testing.T) {
	if got := AsQ(EvalBinary(OpMulQ, BitsQ(1<<40), BitsQ(3))); got != 3<<40 {
		t.Errorf("mulq = %d", got)
	}
	if got := AsQ(EvalBinary(OpRshQ, BitsQ(-1<<40), BitsI(40))); got != -1 {
		t.Errorf("rshq = %d, want -1", got)
	}
	if got := AsD(EvalBinary(OpDivD, BitsD(1), BitsD(4))); got != 0.25 {
		t.Errorf("divd = %g", got)
	}
	if got := AsF(EvalBinary(OpAddF, BitsF(1.5), BitsF(2.25))); got != 3.75 {
		t.Errorf("addf = %g", got)
	}
	nan := BitsD(math.NaN())
	if EvalBinary(OpEqD, nan, nan) != 0 {
		t.Error("NaN compared equal to itself")
	}
}

func TestEvalUnaryConversions(t *testing.T) {
	if got := AsQ(EvalUnary(OpI2Q, BitsI(-5))); got != -5 {
		t.Errorf("i2q(-5) = %d", got)
	}
	if got := AsQ(EvalUnary(OpUI2UQ, BitsI(-1))); got != math.MaxUint32 {
		t.Errorf("ui2uq(-1) = %d", got)
	}
	if got := AsI(EvalUnary(OpD2I, BitsD(-2.9))); got != -2 {
		t.Errorf("d2i(-2.9) = %d", got)
	}
	if got := AsI(EvalUnary(OpD2I, BitsD(1e20))); got != math.MinInt32 {
		t.Errorf("d2i(1e20) = %d, want MinInt32", got)
	}
	if got := AsD(EvalUnary(OpNegD, BitsD(2))); got != -2 {
		t.Errorf("negd(2) = %g", got)
	}
	if got := AsF(EvalUnary(OpNegF, BitsF(2))); got != -2 {
		t.Errorf("negf(2) = %g", got)
	}
	if got := AsD(EvalUnary(OpQasD, EvalUnary(OpDasQ, BitsD(3.5)))); got != 3.5 {
		t.Errorf("qasd(dasq(3.5)) = %g", got)
	}
}

func TestCanEvalRejectsTraps(t *testing.T) {
	if CanEval(OpDivI, BitsI(1), BitsI(0)) {
		t.Error("division by zero reported as foldable")
	}
	if CanEval(OpModI, BitsI(math.MinInt32), BitsI(-1)) {
		t.Error("MinInt32 % -1 reported as foldable")
	}
	if !CanEval(OpDivI, BitsI(6), BitsI(3)) {
		t.Error("6/3 reported as not foldable")
	}
}
