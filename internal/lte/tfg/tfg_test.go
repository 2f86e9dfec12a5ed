package tfg

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

func TestCPLengthsNormalCPPattern(t *testing.T) {
	out := cpLengths(lte.CPNormal, 7)
	want := []int{10, 9, 9, 9, 9, 9, 9}
	for i, w := range want {
		if out[i] != w {
			t.Fatalf("symbol %d: got CP length %d, want %d", i, out[i], w)
		}
	}
}

func TestCPLengthsExtendedCPIsUniform(t *testing.T) {
	out := cpLengths(lte.CPExtended, 6)
	for i, v := range out {
		if v != 32 {
			t.Fatalf("extended-CP symbol %d: got %d, want 32", i, v)
		}
	}
}

func TestExtractRowCountMatchesSixFramesPlusTwoSlots(t *testing.T) {
	n := 30720 * 4
	s := make([]complex128, n)
	g := Extract(s, 5000, lte.CPNormal, 100, 0, 1.92e6, 1)
	wantRows := 6*10*2*lte.CPNormal.NSymbDL() + 2*lte.CPNormal.NSymbDL()
	if len(g.Data) != wantRows {
		t.Fatalf("expected %d OFDM symbol rows, got %d", wantRows, len(g.Data))
	}
	if len(g.Data) != len(g.Timestamps) {
		t.Fatalf("row count %d does not match timestamp count %d", len(g.Data), len(g.Timestamps))
	}
	for i := 1; i < len(g.Timestamps); i++ {
		if g.Timestamps[i] <= g.Timestamps[i-1] {
			t.Fatalf("timestamps not strictly increasing at row %d: %v <= %v", i, g.Timestamps[i], g.Timestamps[i-1])
		}
	}
	for i, row := range g.Data {
		if len(row) != 72 {
			t.Fatalf("row %d: expected 72 subcarriers, got %d", i, len(row))
		}
	}
}

func TestExtractOutOfBoundsRowsAreZeroed(t *testing.T) {
	s := make([]complex128, 200)
	g := Extract(s, 0, lte.CPNormal, 1, 0, 1.92e6, 1)
	for j, v := range g.Data[len(g.Data)-1] {
		if v != 0 {
			t.Fatalf("expected the out-of-bounds final row to be all zero, subcarrier %d = %v", j, v)
		}
	}
}

func newGridWithRows(cp lte.CPType, nRows int) *Grid {
	g := &Grid{Data: make([][]complex128, nRows), Timestamps: make([]float64, nRows), CPType: cp, NIDCell: 10}
	for i := range g.Data {
		g.Data[i] = make([]complex128, 72)
	}
	return g
}

// fillRSRow writes row i's actual RS-modulated values (channel ce times
// the real per-row RS sequence at the comb subcarriers it occupies),
// mirroring rsKnownAt's own cinit/shift derivation so the test exercises
// the same known-RS removal SuperFineFOE performs.
func fillRSRow(g *Grid, i int, ce complex128) {
	nSymbDL := g.CPType.NSymbDL()
	l := i % nSymbDL
	ns := (i / nSymbDL) % 2
	cpNormal := g.CPType == lte.CPNormal
	cinit := rom.RSCInit(g.NIDCell, ns, l, cpNormal)
	seq := rom.RSSequence(cinit)
	v := rom.RSFreqShift(0, ns, l, 7)
	shift := (v + g.NIDCell) % 6
	m := 0
	for j := 0; j < 72; j++ {
		n := localSubcarrier(j)
		nn := n
		if nn < 0 {
			nn += 72
		}
		if (nn+36)%6 != shift {
			continue
		}
		g.Data[i][j] = ce * seq[m]
		m++
	}
}

func TestSuperFineFOEZeroForIdenticalConsecutiveRSRows(t *testing.T) {
	g := newGridWithRows(lte.CPNormal, 14)
	for _, i := range []int{0, 4, 7, 11} {
		fillRSRow(g, i, complex(1, 0.5))
	}
	foe := SuperFineFOE(g, 1.92e6, 1)
	if math.Abs(foe) > 1e-9 {
		t.Fatalf("expected zero residual offset for an unchanging channel across RS rows, got %v", foe)
	}
}

func TestSuperFineFOERecoversKnownPhaseRotation(t *testing.T) {
	g := newGridWithRows(lte.CPNormal, 14)
	theta := 0.3
	rot := complex(math.Cos(theta), math.Sin(theta))
	for _, i := range []int{0, 4} {
		fillRSRow(g, i, complex(1, 0))
	}
	for _, i := range []int{7, 11} {
		fillRSRow(g, i, rot)
	}
	foe := SuperFineFOE(g, 1.92e6, 1)
	wantHz := theta / (2 * math.Pi * 0.0005)
	if math.Abs(foe-wantHz) > 1e-6 {
		t.Fatalf("SuperFineFOE = %v Hz, want %v Hz", foe, wantHz)
	}
}

func TestApplyFOCZeroResidualIsNoop(t *testing.T) {
	g := newGridWithRows(lte.CPNormal, 2)
	g.Timestamps = []float64{0.001, 0.002}
	g.Data[0][0] = complex(1, 2)
	g.Data[1][0] = complex(3, -4)
	before0, before1 := g.Data[0][0], g.Data[1][0]
	ApplyFOC(g, 0, 1.92e6, 1)
	if g.Data[0][0] != before0 || g.Data[1][0] != before1 {
		t.Fatal("expected zero residual frequency correction to leave the grid unchanged")
	}
}

func TestApplyFOCPreservesMagnitude(t *testing.T) {
	g := newGridWithRows(lte.CPNormal, 3)
	g.Timestamps = []float64{0.001, 0.0015, 0.002}
	for i := range g.Data {
		g.Data[i][10] = complex(2, 0)
	}
	ApplyFOC(g, 1234.5, 1.92e6, 1)
	for i, row := range g.Data {
		if math.Abs(cmplx.Abs(row[10])-2) > 1e-9 {
			t.Fatalf("row %d: expected magnitude preserved under FOC, got %v", i, cmplx.Abs(row[10]))
		}
	}
}

func TestApplyTOCPreservesMagnitude(t *testing.T) {
	g := newGridWithRows(lte.CPNormal, 2)
	for i := range g.Data {
		for j := range g.Data[i] {
			g.Data[i][j] = complex(1.5, 0)
		}
	}
	ApplyTOC(g, 3.2)
	for i, row := range g.Data {
		for j, v := range row {
			if math.Abs(cmplx.Abs(v)-1.5) > 1e-9 {
				t.Fatalf("row %d subcarrier %d: expected magnitude preserved under TOC, got %v", i, j, cmplx.Abs(v))
			}
		}
	}
}
