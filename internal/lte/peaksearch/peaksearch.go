// Package peaksearch implements incoherent combining, delay-spread
// smoothing, and iterative peak search over the coarse PSS correlation
// tensor produced by package pss.
package peaksearch

import (
	"math"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/pss"
)

// Params controls the combining and detection stage.
type Params struct {
	DSCombArm     int
	Thresh1NSigma float64
	KFactor       float64
	FsProgrammed  float64
}

// Peak is one surviving detection: PSS index, refined sample offset
// within [0,9600), best frequency hypothesis index, and its raw power.
type Peak struct {
	NID2   int
	Idx    int
	FIndex int
	Pow    float64
}

// signalPower computes a sliding 274-sample window sum of |s|^2, one
// value per starting sample t = 0..len(s)-274.
func signalPower(s []complex128) []float64 {
	const win = 274
	n := len(s)
	if n < win {
		return nil
	}
	out := make([]float64, n-win+1)
	var acc float64
	for i := 0; i < win; i++ {
		acc += cabs2(s[i])
	}
	out[0] = acc
	for t := 1; t < len(out); t++ {
		acc += cabs2(s[t+win-1]) - cabs2(s[t-1])
		out[t] = acc
	}
	return out
}

func cabs2(c complex128) float64 {
	re, im := real(c), imag(c)
	return re*re + im*im
}

// spIncoherent folds the sliding-power estimate into a length-9600 noise
// floor estimate, shifted right by 137 samples to align with the PSS
// correlation-peak convention (a PSS peak at xc index k corresponds to
// signal power observed starting 137 samples earlier).
func spIncoherent(sp []float64) ([]float64, int) {
	const period = lte.HalfFramePeriodSamples
	out := make([]float64, period)
	m := 0
	for idx := 0; idx < period; idx++ {
		var acc float64
		count := 0
		for start := idx; start < len(sp); start += period {
			acc += sp[start]
			count++
		}
		out[idx] = acc
		if count > m {
			m = count
		}
	}
	shifted := make([]float64, period)
	for i := range shifted {
		shifted[(i+137)%period] = out[i]
	}
	return shifted, m
}

// Combine runs the §4.2 incoherent combining and delay-spread smoothing
// stages over the correlation tensor x, returning the best-frequency
// collapsed power/frequency-index grids (one row per n_id_2, one column
// per sample index 0..9600) and the per-index detection threshold.
type Combined struct {
	Pow       [3][]float64 // [nid2][idx] best-frequency power
	FIdx      [3][]int     // [nid2][idx] frequency-hypothesis index of the best
	Single    [3][][]float64 // [nid2][idx][f] xc_incoherent_single, kept for refinement
	Threshold []float64
}

func Combine(x *pss.Tensor, s []complex128, p Params) *Combined {
	const period = lte.HalfFramePeriodSamples
	sp := signalPower(s)
	spInc, _ := spIncoherent(sp)

	stride := 0.005 * p.KFactor * p.FsProgrammed
	maxK := x.NK - 1
	mMax := int(math.Floor(float64(len(s)-137-100) / float64(period)))
	if mMax < 1 {
		mMax = 1
	}

	single := make([][][]float64, 3)
	for t := 0; t < 3; t++ {
		single[t] = make([][]float64, period)
		for idx := 0; idx < period; idx++ {
			row := make([]float64, x.NF)
			for f := 0; f < x.NF; f++ {
				var acc float64
				count := 0
				for m := 0; m < mMax; m++ {
					k := idx + int(math.Round(float64(m)*stride))
					if k < 0 || k > maxK {
						continue
					}
					v := x.At(t, k, f)
					re, im := real(v), imag(v)
					acc += re*re + im*im
					count++
				}
				if count > 0 {
					acc /= float64(count)
				}
				row[f] = acc
			}
			single[t][idx] = row
		}
	}

	A := p.DSCombArm
	comb := make([][][]float64, 3)
	for t := 0; t < 3; t++ {
		comb[t] = make([][]float64, period)
		for idx := 0; idx < period; idx++ {
			row := make([]float64, x.NF)
			for f := 0; f < x.NF; f++ {
				var acc float64
				for d := -A; d <= A; d++ {
					j := ((idx+d)%period + period) % period
					acc += single[t][j][f]
				}
				row[f] = acc / float64(2*A+1)
			}
			comb[t][idx] = row
		}
	}

	out := &Combined{Threshold: make([]float64, period)}
	for t := 0; t < 3; t++ {
		out.Pow[t] = make([]float64, period)
		out.FIdx[t] = make([]int, period)
		for idx := 0; idx < period; idx++ {
			bestF, bestV := 0, -1.0
			for f, v := range comb[t][idx] {
				if v > bestV {
					bestV, bestF = v, f
				}
			}
			out.Pow[t][idx] = bestV
			out.FIdx[t][idx] = bestF
		}
	}
	out.Single[0], out.Single[1], out.Single[2] = single[0], single[1], single[2]

	// Detection threshold per index: treat spInc[idx] as an estimate of
	// total noise energy integrated over a 274-sample window across the
	// folded frame count; the per-sample noise variance estimate scales
	// the sigma threshold on the incoherently-averaged correlation power.
	for idx := 0; idx < period; idx++ {
		noiseVar := spInc[idx] / 274.0
		if noiseVar < 0 {
			noiseVar = 0
		}
		out.Threshold[idx] = p.Thresh1NSigma * noiseVar
	}
	return out
}

// Search iterates the global-maximum peak search with neighborhood
// suppression described in §4.2, returning detected peaks in
// non-increasing power order.
func Search(c *Combined) []Peak {
	const period = lte.HalfFramePeriodSamples
	pow := make([][3]float64, period)
	for idx := 0; idx < period; idx++ {
		for t := 0; t < 3; t++ {
			pow[idx][t] = c.Pow[t][idx]
		}
	}

	var peaks []Peak
	for {
		bestIdx, bestT, bestV := -1, -1, math.Inf(-1)
		for idx := 0; idx < period; idx++ {
			for t := 0; t < 3; t++ {
				if pow[idx][t] > bestV {
					bestV, bestIdx, bestT = pow[idx][t], idx, t
				}
			}
		}
		if bestIdx < 0 || bestV < c.Threshold[bestIdx] {
			break
		}

		// Refine the sample index within ±2 samples via the un-smoothed
		// xc_incoherent_single grid at the winning frequency hypothesis.
		// The window width is fixed and does not follow DSCombArm.
		f := c.FIdx[bestT][bestIdx]
		refinedIdx, refinedPow := bestIdx, bestV
		for d := -2; d <= 2; d++ {
			j := ((bestIdx+d)%period + period) % period
			v := c.Single[bestT][j][f]
			if v > refinedPow {
				refinedPow, refinedIdx = v, j
			}
		}

		peaks = append(peaks, Peak{NID2: bestT, Idx: refinedIdx, FIndex: f, Pow: bestV})

		// Zero the winning (n_id_2, idx ± 0..274).
		zeroRange := func(t, center int) {
			for d := -274; d <= 274; d++ {
				j := ((center+d)%period + period) % period
				pow[j][t] = 0
			}
		}
		zeroRange(bestT, bestIdx)
		// Zero peers on other n_id_2 within ±274 whose power is within 8 dB.
		for t := 0; t < 3; t++ {
			if t == bestT {
				continue
			}
			for d := -274; d <= 274; d++ {
				j := ((bestIdx+d)%period + period) % period
				if pow[j][t] > 0 && 10*math.Log10(bestV/pow[j][t]) < 8 {
					pow[j][t] = 0
				}
			}
		}
		// Zero any cell (all n_id_2, all idx) below peak - 12 dB.
		thresh12dB := bestV * math.Pow(10, -12.0/10.0)
		for idx := 0; idx < period; idx++ {
			for t := 0; t < 3; t++ {
				if pow[idx][t] > 0 && pow[idx][t] < thresh12dB {
					pow[idx][t] = 0
				}
			}
		}
	}
	return peaks
}
