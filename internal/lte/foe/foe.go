// Package foe implements the PSS/SSS fine frequency-offset estimator:
// it compares the known SSS sequence against the channel predicted from
// the adjacent PSS symbol, accumulating the residual phase rotation
// across every reachable (SSS, PSS) pair in the buffer.
package foe

import (
	"math"
	"math/cmplx"

	"github.com/openltescan/ltescan/internal/assert"
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/dftutil"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// Params bundles the clock relations and cell hypothesis needed to
// reconstruct the expected SSS sequence and sample spacing.
type Params struct {
	NID1, NID2   int
	CPType       lte.CPType
	DuplexMode   lte.DuplexMode
	SSSOffset    int // native samples, PSS position minus SSS position
	FreqCoarse   float64
	FsProgrammed float64
	KFactor      float64
}

func pssChannel(s []complex128, pos, nID2 int) ([]complex128, float64) {
	window := make([]complex128, 128)
	copy(window, s[pos:pos+128])
	raw := dftutil.ExtractCentral(dftutil.DFT(window), 31)
	known := rom.PSSFD(nID2)
	h := make([]complex128, 62)
	for k := range h {
		if known[k] != 0 {
			h[k] = raw[k] / known[k]
		}
	}
	hSm := make([]complex128, 62)
	var noisePow float64
	for k := range h {
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
			acc += h[j]
			cnt++
		}
		hSm[k] = acc / complex(float64(cnt), 0)
	}
	for k := range hSm {
		d := hSm[k] - h[k]
		noisePow += real(d)*real(d) + imag(d)*imag(d)
	}
	noisePow /= 62
	return hSm, noisePow
}

// Estimate walks every reachable (SSS, PSS) pair in s given PSS occurs
// every half-frame anchored at pssAnchor, and returns the refined fine
// frequency offset (Hz).
func Estimate(s []complex128, pssAnchor int, p Params) float64 {
	const period = lte.HalfFramePeriodSamples
	distSeconds := float64(p.SSSOffset) * 16.0 / lte.FSLTE

	var M complex128
	half := 0
	for pos := pssAnchor % period; pos+128 <= len(s); pos += period {
		sssPos := pos - p.SSSOffset
		if sssPos < 0 || sssPos+128 > len(s) {
			half++
			continue
		}
		hSm, noisePow := pssChannel(s, pos, p.NID2)

		window := make([]complex128, 128)
		copy(window, s[sssPos:sssPos+128])
		sssRaw := dftutil.ExtractCentral(dftutil.DFT(window), 31)

		secondHalf := half%2 == 1
		expected := rom.SSSFD(p.NID1, p.NID2, secondHalf)

		sigma2 := noisePow
		for k := 0; k < 62; k++ {
			if hSm[k] == 0 {
				continue
			}
			hatSSS := sssRaw[k] / hSm[k]
			residual := hatSSS * cmplx.Conj(expected[k])
			mag2 := real(hSm[k])*real(hSm[k]) + imag(hSm[k])*imag(hSm[k])
			denom := 2*mag2*sigma2 + sigma2*sigma2
			w := 0.0
			if denom > 0 {
				w = mag2 / denom
			}
			M += complex(w, 0) * residual
		}
		half++
	}

	if M == 0 {
		return p.FreqCoarse
	}
	result := p.FreqCoarse + cmplx.Phase(M)/(2*math.Pi*distSeconds)
	assert.NotNaN(result, "foe.Estimate produced NaN")
	return result
}
