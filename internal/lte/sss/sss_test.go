package sss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

func TestLocatePSSPositionsSpacedByHalfFrame(t *testing.T) {
	n := 4 * lte.HalfFramePeriodSamples
	pos := locatePSSPositions(n, 500)
	if len(pos) == 0 {
		t.Fatal("expected at least one PSS position")
	}
	for i := 1; i < len(pos); i++ {
		if pos[i]-pos[i-1] != lte.HalfFramePeriodSamples {
			t.Fatalf("positions not spaced by half-frame period: %d -> %d", pos[i-1], pos[i])
		}
	}
	for _, p := range pos {
		if p-200 < 0 {
			t.Fatalf("position %d leaves no room for a preceding SSS symbol", p)
		}
	}
}

func TestLocatePSSPositionsEmptyForShortBuffer(t *testing.T) {
	if pos := locatePSSPositions(300, 500); len(pos) != 0 {
		t.Fatalf("expected no positions for a too-short buffer, got %v", pos)
	}
}

func TestMeanStdKnownValues(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if math.Abs(mean-5) > 1e-9 {
		t.Fatalf("mean = %v, want 5", mean)
	}
	if math.Abs(std-2) > 1e-9 {
		t.Fatalf("std = %v, want 2", std)
	}
}

func TestLoglikelihoodMatchesOwnTemplateBestAmongNID1Candidates(t *testing.T) {
	const nid1True, nid2 = 25, 1
	fdA := rom.SSSFD(nid1True, nid2, false)
	fdB := rom.SSSFD(nid1True, nid2, true)
	var h1, h2 [62]complex128
	copy(h1[:], fdA)
	copy(h2[:], fdB)

	trueLL := loglikelihood(h1, h2, nid1True, nid2, false)
	for nid1 := 0; nid1 < 168; nid1++ {
		if nid1 == nid1True {
			continue
		}
		if ll := loglikelihood(h1, h2, nid1, nid2, false); ll > trueLL+1e-9 {
			t.Fatalf("n_id_1=%d scored higher (%v) than the true n_id_1=%d (%v)", nid1, ll, nid1True, trueLL)
		}
	}
}

func TestDetectShortBufferReturnsInvalid(t *testing.T) {
	s := make([]complex128, 100)
	res := Detect(s, 50, 1, Params{FsProgrammed: 1.92e6, KFactor: 1, Thresh2NSigma: 3})
	if res.Valid {
		t.Fatal("expected an invalid result for a buffer with no room for SSS positions")
	}
}

func TestDetectNoisyBufferDoesNotPanicAndRespectsFrameStartBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	n := 3 * lte.HalfFramePeriodSamples
	s := make([]complex128, n)
	for i := range s {
		s[i] = complex(rng.NormFloat64(), rng.NormFloat64())
	}
	params := Params{FsProgrammed: 1.92e6, KFactor: 1, Thresh2NSigma: 3}
	res := Detect(s, 1000, 1, params)
	if res.Valid {
		bound := lte.FrameStartWrapBound(params.FsProgrammed, params.KFactor)
		if res.FrameStart < -0.5 || res.FrameStart >= bound {
			t.Fatalf("frame_start %v escaped wrap bound [-0.5, %v)", res.FrameStart, bound)
		}
	}
}
