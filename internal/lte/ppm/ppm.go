// Package ppm implements the non-twist-mode sampling-PPM / frequency
// pre-search that runs ahead of the coarse PSS correlator to shrink the
// frequency search set and estimate the sampling-clock error when the
// local oscillator and sample clock are not assumed locked together.
package ppm

import (
	"math"
	"sort"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/dftutil"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// Params controls the pre-search.
type Params struct {
	FOffsets     []float64 // candidate frequency offsets, Hz
	FsProgrammed float64
	Threshold    float64 // th, default ~6628 on unit-norm correlation power
}

// Result is the pre-search outcome. PPM is math.NaN() on failure, in
// which case F is the caller's original search set, unchanged.
type Result struct {
	F   []float64
	PPM float64
}

type template struct {
	nid2 int
	foff float64
	td   []complex128 // unit-norm, conjugated, frequency-shifted
}

func buildTemplates(foffs []float64, fs float64) []template {
	out := make([]template, 0, 3*len(foffs))
	for t := 0; t < 3; t++ {
		base := rom.PSSTD(t)
		for _, fo := range foffs {
			shifted := dftutil.FShift(base, fo, fs)
			var norm float64
			for _, v := range shifted {
				re, im := real(v), imag(v)
				norm += re*re + im*im
			}
			norm = math.Sqrt(norm)
			if norm == 0 {
				norm = 1
			}
			td := make([]complex128, len(shifted))
			for i, v := range shifted {
				td[i] = complex(real(v)/norm, -imag(v)/norm)
			}
			out = append(out, template{nid2: t, foff: fo, td: td})
		}
	}
	return out
}

type hit struct {
	pos int
	pow float64
}

// candidate tracks one template's peak across the moving-correlation
// scan and the resulting verified periodicity hits.
type candidate struct {
	tmpl    template
	bestPos int
	bestPow float64
	hits    []hit
}

func corrPow(window, td []complex128) float64 {
	var norm float64
	for _, v := range window {
		re, im := real(v), imag(v)
		norm += re*re + im*im
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return 0
	}
	var acc complex128
	for i, tv := range td {
		acc += tv * window[i]
	}
	acc /= complex(norm, 0)
	re, im := real(acc), imag(acc)
	return re*re + im*im
}

// Search runs the pre-search over s, which must contain at least two
// radio frames (38,400 samples).
func Search(s []complex128, p Params) Result {
	fail := Result{F: p.FOffsets, PPM: math.NaN()}
	const scanLen = 38400
	const tmplLen = 137
	if len(s) < scanLen {
		return fail
	}
	th := p.Threshold
	if th <= 0 {
		th = 6628
	}

	templates := buildTemplates(p.FOffsets, p.FsProgrammed)
	cands := make([]*candidate, len(templates))
	for i := range templates {
		cands[i] = &candidate{tmpl: templates[i], bestPow: -1}
	}

	type ringEntry struct {
		step int
		pows []float64
	}
	const ringSize = 129
	ring := make([]ringEntry, 0, ringSize)
	foundStep := -1

	for step := 0; step+tmplLen <= scanLen; step++ {
		window := s[step : step+tmplLen]
		pows := make([]float64, len(templates))
		for i, c := range cands {
			v := corrPow(window, c.tmpl.td)
			pows[i] = v
			if v > c.bestPow {
				c.bestPow, c.bestPos = v, step
			}
		}
		ring = append(ring, ringEntry{step: step, pows: pows})
		if len(ring) > ringSize {
			ring = ring[1:]
		}
		if foundStep < 0 {
			for _, v := range pows {
				if v > th {
					foundStep = step
					break
				}
			}
			if foundStep >= 0 {
				break
			}
		}
	}
	if foundStep < 0 {
		return fail
	}

	sort.SliceStable(cands, func(i, j int) bool { return cands[i].bestPow > cands[j].bestPow })
	best := cands[0].bestPow
	if best <= 0 {
		return fail
	}
	var kept []*candidate
	perIdxCount := map[int]int{}
	for _, c := range cands {
		if c.bestPow >= best/2 && perIdxCount[c.tmpl.nid2] < 8 {
			kept = append(kept, c)
			perIdxCount[c.tmpl.nid2]++
		}
	}
	if len(kept) == 0 {
		return fail
	}

	const pssPeriod = lte.HalfFramePeriodSamples
	for _, c := range kept {
		pos := c.bestPos
		c.hits = append(c.hits, hit{pos: pos, pow: c.bestPow})
		for next := pos + pssPeriod; next+tmplLen <= len(s); next += pssPeriod {
			lo, hi := next-32, next+32
			if lo < 0 {
				lo = 0
			}
			if hi+tmplLen > len(s) {
				hi = len(s) - tmplLen
			}
			bestLocal, bestLocalPow := -1, -1.0
			for k := lo; k <= hi; k++ {
				v := corrPow(s[k:k+tmplLen], c.tmpl.td)
				if v > bestLocalPow {
					bestLocalPow, bestLocal = v, k
				}
			}
			if bestLocalPow >= 0.75*th {
				c.hits = append(c.hits, hit{pos: bestLocal, pow: bestLocalPow})
			}
		}
	}

	var survivors []*candidate
	var ppms []float64
	var survFreqs []float64
	for _, c := range kept {
		if len(c.hits) < 2 {
			continue
		}
		first, last := c.hits[0], c.hits[len(c.hits)-1]
		measured := float64(last.pos - first.pos)
		nPeriods := float64(len(c.hits) - 1)
		expected := nPeriods * pssPeriod
		if expected == 0 {
			continue
		}
		ppmEst := 1e6 * (measured - expected) / expected
		survivors = append(survivors, c)
		ppms = append(ppms, ppmEst)
		survFreqs = append(survFreqs, c.tmpl.foff)
	}
	if len(survivors) == 0 {
		return fail
	}

	var finalPPM float64
	var finalF []float64
	switch {
	case len(survivors) == 1:
		finalPPM = ppms[0]
		finalF = []float64{survFreqs[0]}
	case len(survivors) == 2:
		if relDisagree(ppms[0], ppms[1]) > 0.05 {
			finalF = []float64{survFreqs[0], survFreqs[1]}
			finalPPM = mean(ppms)
		} else {
			finalPPM = mean(ppms)
			finalF = dedupFreqs(survFreqs)
		}
	default:
		kept2, dropped := dropLargestOutlier(ppms)
		if dropped && len(kept2) >= len(ppms)-len(ppms)*3/8 {
			finalPPM = meanIdx(ppms, kept2)
			finalF = dedupFreqs(selectFreqs(survFreqs, kept2))
		} else {
			finalPPM = mean(ppms)
			finalF = dedupFreqs(survFreqs)
		}
	}

	seen := map[int]bool{}
	for _, c := range survivors {
		seen[c.tmpl.nid2] = true
	}
	for nid2 := 0; nid2 < 3; nid2++ {
		if !seen[nid2] && len(finalF) < len(p.FOffsets)+2 {
			finalF = append(finalF, bestFreqForIdx(kept, nid2))
		}
	}

	return Result{F: finalF, PPM: finalPPM}
}

func relDisagree(a, b float64) float64 {
	m := math.Max(math.Abs(a), math.Abs(b))
	if m == 0 {
		return 0
	}
	return math.Abs(a-b) / m
}

func mean(xs []float64) float64 {
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func meanIdx(xs []float64, idx []int) float64 {
	var s float64
	for _, i := range idx {
		s += xs[i]
	}
	return s / float64(len(idx))
}

func selectFreqs(fs []float64, idx []int) []float64 {
	out := make([]float64, len(idx))
	for i, j := range idx {
		out[i] = fs[j]
	}
	return out
}

// dropLargestOutlier removes the single point farthest from the mean of
// the rest, returning the remaining indices and whether a drop occurred.
func dropLargestOutlier(xs []float64) ([]int, bool) {
	n := len(xs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	worstI, worstDist := -1, -1.0
	for i := range xs {
		var s float64
		c := 0
		for j := range xs {
			if j == i {
				continue
			}
			s += xs[j]
			c++
		}
		restMean := s / float64(c)
		d := math.Abs(xs[i] - restMean)
		if d > worstDist {
			worstDist, worstI = d, i
		}
	}
	if worstI < 0 {
		return idx, false
	}
	out := make([]int, 0, n-1)
	for _, i := range idx {
		if i != worstI {
			out = append(out, i)
		}
	}
	return out, true
}

func dedupFreqs(fs []float64) []float64 {
	seen := map[float64]bool{}
	var out []float64
	for _, f := range fs {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func bestFreqForIdx(cands []*candidate, nid2 int) float64 {
	var best float64
	var bestPow = -1.0
	for _, c := range cands {
		if c.tmpl.nid2 == nid2 && c.bestPow > bestPow {
			bestPow, best = c.bestPow, c.tmpl.foff
		}
	}
	return best
}
