// Package sss implements SSS detection and the maximum-likelihood
// cyclic-prefix-type / duplex-mode / frame-start decision that follows
// each PSS peak.
package sss

import (
	"math"
	"math/cmplx"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/dftutil"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// combo is one (cp_type, duplex_mode) hypothesis with its SSS-offset and
// frame-start-base constants from the external-interfaces table.
type combo struct {
	cp         lte.CPType
	duplex     lte.DuplexMode
	sssOffset  int
	frameBase  float64
}

var combos = []combo{
	{lte.CPNormal, lte.FDD, 128 + 9, 128 + 9 - 960 - 2},
	{lte.CPExtended, lte.FDD, 128 + 32, 128 + 32 + 960 + 2},
	{lte.CPNormal, lte.TDD, 3*(128+9) + 1, -(2*(128+9) + 1) - 1920 - 2},
	{lte.CPExtended, lte.TDD, 3 * (128 + 32), -(2 * (128 + 32)) - 1920 - 2},
}

// Params controls the detection stage.
type Params struct {
	FsProgrammed  float64
	KFactor       float64
	Thresh2NSigma float64
}

// Result is the SSS/ML outcome for one PSS peak.
type Result struct {
	Valid      bool
	NID1       int
	CPType     lte.CPType
	DuplexMode lte.DuplexMode
	FrameStart float64
}

// Detect runs §4.4 for a single PSS peak at native sample index pssPos
// (the refined peak from peaksearch; only its value modulo the half-frame
// period is used, so an index in [0, 9600) is enough) with hypothesis
// n_id_2.
func Detect(s []complex128, pssPos, nID2 int, p Params) Result {
	positions := locatePSSPositions(len(s), pssPos)
	if len(positions) == 0 {
		return Result{}
	}

	type chEst struct {
		hRaw, hSm []complex128
		noisePow  float64
	}
	ests := make([]chEst, len(positions))
	for i, pos := range positions {
		hRaw, hSm, np := estimateChannel(s, pos, nID2)
		ests[i] = chEst{hRaw, hSm, np}
	}

	bestLL := math.Inf(-1)
	var best Result
	var allLLs []float64

	for _, c := range combos {
		// Gather SSS vectors and weights at every PSS position with room
		// for the preceding SSS symbol under this combo's offset.
		var h1Num, h2Num [62]complex128
		var h1Den, h2Den [62]float64
		n1, n2 := 0, 0
		for i, pos := range positions {
			sssPos := pos - c.sssOffset
			if sssPos < 0 {
				continue
			}
			sssFD := extractSSS(s, sssPos)
			w := 1.0
			if ests[i].noisePow > 0 {
				w = 1.0 / ests[i].noisePow
			}
			half := i % 2
			for k := 0; k < 62; k++ {
				v := sssFD[k] * complex(w, 0)
				if half == 0 {
					h1Num[k] += v
					h1Den[k] += w
				} else {
					h2Num[k] += v
					h2Den[k] += w
				}
			}
			if half == 0 {
				n1++
			} else {
				n2++
			}
		}
		if n1 == 0 || n2 == 0 {
			continue
		}
		var h1, h2 [62]complex128
		for k := 0; k < 62; k++ {
			if h1Den[k] > 0 {
				h1[k] = h1Num[k] / complex(h1Den[k], 0)
			}
			if h2Den[k] > 0 {
				h2[k] = h2Num[k] / complex(h2Den[k], 0)
			}
		}

		for nid1 := 0; nid1 < 168; nid1++ {
			for _, order := range []bool{false, true} {
				ll := loglikelihood(h1, h2, nid1, nID2, order)
				allLLs = append(allLLs, ll)
				if ll > bestLL {
					bestLL = ll
					pssPosBase := positions[0]
					fs := 16.0 / lte.FSLTE * p.FsProgrammed * p.KFactor
					frameStart := (float64(pssPosBase) + c.frameBase) * fs
					bound := lte.FrameStartWrapBound(p.FsProgrammed, p.KFactor)
					frameStart = lte.Wrap(frameStart, -0.5, bound)
					best = Result{
						Valid:      true,
						NID1:       nid1,
						CPType:     c.cp,
						DuplexMode: c.duplex,
						FrameStart: frameStart,
					}
				}
			}
		}
	}

	if !best.Valid || len(allLLs) == 0 {
		return Result{}
	}
	mean, std := meanStd(allLLs)
	if bestLL < mean+p.Thresh2NSigma*std {
		return Result{}
	}
	return best
}

// locatePSSPositions returns every PSS occurrence in s spaced by the
// nominal half-frame period, anchored at pssPos, skipping positions that
// leave no room for a preceding SSS symbol.
func locatePSSPositions(n, pssPos int) []int {
	const period = lte.HalfFramePeriodSamples
	var out []int
	for pos := pssPos % period; pos+137 <= n; pos += period {
		if pos-200 < 0 {
			continue
		}
		out = append(out, pos)
	}
	return out
}

// estimateChannel computes h_raw/h_sm/noise power at PSS position pos
// for hypothesis nID2 (§4.4 step 2).
func estimateChannel(s []complex128, pos, nID2 int) ([]complex128, []complex128, float64) {
	window := make([]complex128, 128)
	copy(window, s[pos:pos+128])
	spec := dftutil.DFT(window)
	raw := dftutil.ExtractCentral(spec, 31)
	known := rom.PSSFD(nID2)

	hRaw := make([]complex128, 62)
	for k := range hRaw {
		if known[k] != 0 {
			hRaw[k] = raw[k] / known[k]
		}
	}
	hSm := make([]complex128, 62)
	for k := range hSm {
		lo, hi := k-6, k+6
		if lo < 0 {
			lo = 0
		}
		if hi > 61 {
			hi = 61
		}
		var acc complex128
		cnt := 0
		for j := lo; j <= hi; j++ {
			acc += hRaw[j]
			cnt++
		}
		hSm[k] = acc / complex(float64(cnt), 0)
	}
	var noisePow float64
	for k := range hSm {
		d := hSm[k] - hRaw[k]
		noisePow += real(d)*real(d) + imag(d)*imag(d)
	}
	noisePow /= 62
	return hRaw, hSm, noisePow
}

// extractSSS extracts the 62 SSS subcarriers at sample position pos.
func extractSSS(s []complex128, pos int) []complex128 {
	window := make([]complex128, 128)
	copy(window, s[pos:pos+128])
	spec := dftutil.DFT(window)
	return dftutil.ExtractCentral(spec, 31)
}

// loglikelihood scores n_id_1 against the combined h1/h2 channel
// estimates under the given half-ordering (swap = (h2,h1) instead of
// (h1,h2)).
func loglikelihood(h1, h2 [62]complex128, nid1, nid2 int, swap bool) float64 {
	a, b := h1, h2
	sfA, sfB := false, true
	if swap {
		a, b = h2, h1
		sfA, sfB = true, false
	}
	expA := rom.SSSFD(nid1, nid2, sfA)
	expB := rom.SSSFD(nid1, nid2, sfB)

	score := func(h [62]complex128, exp []complex128) float64 {
		var acc complex128
		for k := 0; k < 62; k++ {
			acc += h[k] * cmplx.Conj(exp[k])
		}
		return cmplx.Abs(acc)
	}
	return score(a, expA) + score(b, expB)
}

func meanStd(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var vs float64
	for _, x := range xs {
		d := x - mean
		vs += d * d
	}
	std := math.Sqrt(vs / float64(len(xs)))
	return mean, std
}
