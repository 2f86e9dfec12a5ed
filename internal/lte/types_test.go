package lte

import (
	"math"
	"testing"

	"pgregory.net/rapid"
)

func TestWrapStaysInBounds(t *testing.T) {
	cases := []struct {
		x, lo, hi float64
	}{
		{5, 0, 10},
		{-1, 0, 10},
		{10, 0, 10},
		{23, -5, 5},
		{-23, -5, 5},
	}
	for _, c := range cases {
		got := Wrap(c.x, c.lo, c.hi)
		if got < c.lo || got >= c.hi {
			t.Fatalf("Wrap(%v,%v,%v)=%v out of [%v,%v)", c.x, c.lo, c.hi, got, c.lo, c.hi)
		}
	}
}

func TestWrapPropertyAlwaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		lo := rapid.Float64Range(-1e6, 1e6).Draw(t, "lo")
		span := rapid.Float64Range(0.01, 1e6).Draw(t, "span")
		hi := lo + span
		x := rapid.Float64Range(-1e9, 1e9).Draw(t, "x")
		got := Wrap(x, lo, hi)
		if got < lo || got >= hi {
			t.Fatalf("Wrap(%v,%v,%v)=%v escaped [%v,%v)", x, lo, hi, got, lo, hi)
		}
	})
}

func TestFrameStartWrapBound(t *testing.T) {
	bound := FrameStartWrapBound(FSLTE, 1)
	if bound <= 0 {
		t.Fatalf("expected positive wrap bound, got %v", bound)
	}
}

func TestKFactorDefinition(t *testing.T) {
	fcRequested := 739e6
	freqOffset := 1200.0
	fcProgrammed := 739e6 - 1150.0
	k := KFactor(fcRequested, freqOffset, fcProgrammed)
	want := (fcRequested - freqOffset) / fcProgrammed
	if math.Abs(k-want) > 1e-12 {
		t.Fatalf("KFactor = %v, want %v", k, want)
	}
	if KFactor(fcRequested, freqOffset, 0) != 1 {
		t.Fatalf("expected KFactor to default to 1 for zero fc_programmed")
	}
}

func TestCellNIDCell(t *testing.T) {
	c := Cell{NID1: 25, NID2: 1}
	if got := c.NIDCell(); got != 76 {
		t.Fatalf("NIDCell() = %d, want 76", got)
	}
}

func TestCPTypeNSymbDL(t *testing.T) {
	if CPNormal.NSymbDL() != 7 {
		t.Fatalf("normal CP expected 7 symbols, got %d", CPNormal.NSymbDL())
	}
	if CPExtended.NSymbDL() != 6 {
		t.Fatalf("extended CP expected 6 symbols, got %d", CPExtended.NSymbDL())
	}
}
