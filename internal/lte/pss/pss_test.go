package pss

import (
	"context"
	"math/cmplx"
	"testing"

	"github.com/openltescan/ltescan/internal/lte/rom"
)

func TestCorrelatePureTemplateProducesPeakAtInjectedOffset(t *testing.T) {
	const fs = 1.92e6
	const nID2 = 1
	const offset = 50

	td := rom.PSSTD(nID2)
	buf := make([]complex128, offset+len(td)+64)
	copy(buf[offset:], td)

	params := SearchParams{
		FSearch:      []float64{0},
		FcRequested:  739e6,
		FcProgrammed: 739e6,
		FsProgrammed: fs,
		KFactor:      1,
	}
	x, err := Correlate(context.Background(), buf, params)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}

	bestK, bestMag := -1, 0.0
	for k := 0; k < x.NK; k++ {
		mag := cmplx.Abs(x.At(nID2, k, 0))
		if mag > bestMag {
			bestMag, bestK = mag, k
		}
	}
	if bestK < offset-1 || bestK > offset+1 {
		t.Fatalf("expected correlation peak within +/-1 of offset %d, got %d", offset, bestK)
	}

	for t2 := 0; t2 < 3; t2++ {
		if t2 == nID2 {
			continue
		}
		mag := cmplx.Abs(x.At(t2, bestK, 0))
		if mag >= bestMag {
			t.Fatalf("n_id_2=%d should not out-correlate the true template %d at k=%d", t2, nID2, bestK)
		}
	}
}

func TestCorrelateShortBufferYieldsEmptyTensor(t *testing.T) {
	buf := make([]complex128, 10)
	params := SearchParams{FSearch: []float64{0}, FcProgrammed: 1.92e6, FsProgrammed: 1.92e6, KFactor: 1}
	x, err := Correlate(context.Background(), buf, params)
	if err != nil {
		t.Fatalf("Correlate: %v", err)
	}
	if x.NK != 0 {
		t.Fatalf("expected zero valid correlation lags for a too-short buffer, got %d", x.NK)
	}
}

func TestCorrelateRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	buf := make([]complex128, 500)
	params := SearchParams{FSearch: make([]float64, 20), FcProgrammed: 1.92e6, FsProgrammed: 1.92e6, KFactor: 1}
	if _, err := Correlate(ctx, buf, params); err == nil {
		t.Fatal("expected cancelled context to produce an error")
	}
}
