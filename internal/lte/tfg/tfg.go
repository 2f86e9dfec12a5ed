// Package tfg extracts the time-frequency grid of equalized OFDM
// symbols from a capture buffer once frame timing and fine frequency
// offset are known, then refines timing and frequency to super-fine
// precision using the cell-specific reference signal.
package tfg

import (
	"math"
	"math/cmplx"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/dftutil"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// Grid is the extracted time-frequency grid: NSymb rows of 72 equalized
// subcarriers (local index 0..71 maps to subcarrier -36..-1,1..36, DC
// removed), plus the fractional timestamp of each row's DFT window.
type Grid struct {
	Data       [][]complex128 // [symbol][subcarrier]
	Timestamps []float64
	CPType     lte.CPType
	NIDCell    int
}

func cpLengths(cp lte.CPType, n int) []int {
	nSymbDL := cp.NSymbDL()
	out := make([]int, n)
	for i := range out {
		pos := i % nSymbDL
		if cp == lte.CPExtended {
			out[i] = 32
			continue
		}
		if pos == 0 {
			out[i] = 10
		} else {
			out[i] = 9
		}
	}
	return out
}

// Extract builds the time-frequency grid starting at frameStart (already
// in captured-sample units, per lte.Cell.FrameStart's convention),
// shifting s by -freqFine before DFT-ing each symbol.
func Extract(s []complex128, frameStart float64, cp lte.CPType, nidCell int, freqFine, fsProgrammed, kFactor float64) *Grid {
	shifted := dftutil.FShift(s, -freqFine, fsProgrammed*kFactor)

	nSymbDL := cp.NSymbDL()
	nOfdm := 6*10*2*nSymbDL + 2*nSymbDL
	cpLens := cpLengths(cp, nOfdm)
	scale := 16.0 / lte.FSLTE * fsProgrammed * kFactor

	ts := make([]float64, nOfdm)
	ts[0] = frameStart + float64(cpLens[0])*scale
	for i := 1; i < nOfdm; i++ {
		ts[i] = ts[i-1] + float64(128+cpLens[i])*scale
	}

	g := &Grid{Data: make([][]complex128, nOfdm), Timestamps: ts, CPType: cp, NIDCell: nidCell}
	for i, t := range ts {
		start := int(math.Round(t))
		late := float64(start) - t
		if start < 0 || start+128 > len(shifted) {
			g.Data[i] = make([]complex128, 72)
			continue
		}
		window := make([]complex128, 128)
		copy(window, shifted[start:start+128])
		spec := dftutil.DFT(window)
		cen := dftutil.ExtractCentral(spec, 36)
		row := make([]complex128, 72)
		for j := 0; j < 36; j++ {
			cn := float64(j - 36) // -36..-1
			row[j] = cen[j] * phaseComp(late, cn)
		}
		for j := 36; j < 72; j++ {
			cn := float64(j - 35) // 1..36
			row[j] = cen[j] * phaseComp(late, cn)
		}
		g.Data[i] = row
	}
	return g
}

func phaseComp(late, cn float64) complex128 {
	theta := -2 * math.Pi * late / 128 * cn
	return complex(math.Cos(theta), math.Sin(theta))
}

// rsSymbolIndices returns the OFDM-symbol row indices within the grid
// that carry port-0/1 reference symbols: symbols 0 and n_symb_dl-3 of
// every slot.
func rsSymbolIndices(g *Grid) []int {
	nSymbDL := g.CPType.NSymbDL()
	var out []int
	for i := range g.Data {
		pos := i % nSymbDL
		if pos == 0 || pos == nSymbDL-3 {
			out = append(out, i)
		}
	}
	return out
}

// localSubcarrier converts a local grid column (0..71) to the signed
// subcarrier offset from DC (-36..-1,1..36).
func localSubcarrier(j int) int {
	if j < 36 {
		return j - 36
	}
	return j - 35
}

func rsKnownAt(nidCell, symbolPosInSlot, slotParity int, cpNormal bool) ([]complex128, int) {
	l := symbolPosInSlot
	ns := slotParity
	cinit := rom.RSCInit(nidCell, ns, l, cpNormal)
	seq := rom.RSSequence(cinit)
	v := rom.RSFreqShift(0, ns, l, 7)
	shift := (v + nidCell) % 6
	return seq, shift
}

// SuperFineFOE implements §4.6's super-fine FOE: using only RS-bearing
// symbols, remove the known RS and accumulate conj(slot_n)*slot_{n+1}
// across consecutive RS symbols, returning the residual frequency
// offset in Hz.
func SuperFineFOE(g *Grid, fsProgrammed, kFactor float64) float64 {
	nSymbDL := g.CPType.NSymbDL()
	rsRows := rsSymbolIndices(g)

	// Group RS rows by symbol position within the slot (0 or
	// n_symb_dl-3): the RS comb shift only repeats at the same symbol
	// position, one slot (0.5 ms) apart, so the phase-drift comparison
	// must walk consecutive occurrences of the same position.
	byPos := map[int][]int{}
	for _, i := range rsRows {
		byPos[i%nSymbDL] = append(byPos[i%nSymbDL], i)
	}

	cpNormal := g.CPType == lte.CPNormal

	var acc complex128
	for _, rows := range byPos {
		for idx := 0; idx+1 < len(rows); idx++ {
			i0, i1 := rows[idx], rows[idx+1]
			seq0, shift0 := rsKnownAt(g.NIDCell, i0%nSymbDL, (i0/nSymbDL)%2, cpNormal)
			seq1, shift1 := rsKnownAt(g.NIDCell, i1%nSymbDL, (i1/nSymbDL)%2, cpNormal)
			m0, m1 := 0, 0
			for j := 0; j < 72; j++ {
				n := localSubcarrier(j)
				nn := n
				if nn < 0 {
					nn += 72
				}
				onComb0 := (nn+36)%6 == shift0
				onComb1 := (nn+36)%6 == shift1
				var r0, r1 complex128
				if onComb0 {
					if m0 < len(seq0) && seq0[m0] != 0 {
						r0 = g.Data[i0][j] / seq0[m0]
					}
					m0++
				}
				if onComb1 {
					if m1 < len(seq1) && seq1[m1] != 0 {
						r1 = g.Data[i1][j] / seq1[m1]
					}
					m1++
				}
				if onComb0 && onComb1 {
					acc += cmplx.Conj(r0) * r1
				}
			}
		}
	}
	if acc == 0 {
		return 0
	}
	return cmplx.Phase(acc) / (2 * math.Pi * 0.0005)
}

// ApplyFOC applies the residual frequency correction to every row of the
// grid in place (does not correct inter-carrier interference).
// g.Timestamps are in captured-sample units (the same convention as
// lte.Cell.FrameStart), so they are converted to seconds by the
// capture's sample rate before multiplying by residualFHz.
func ApplyFOC(g *Grid, residualFHz, fsProgrammed, kFactor float64) {
	fs := fsProgrammed * kFactor
	for i := range g.Data {
		theta := -2 * math.Pi * residualFHz * g.Timestamps[i] / fs
		for j := range g.Data[i] {
			g.Data[i][j] *= complex(math.Cos(theta), math.Sin(theta))
		}
	}
}

// SuperFineTOE implements §4.6's TOE: compares RS at subcarrier k with
// RS at subcarrier k+3 of the next RS-bearing symbol, returning the
// estimated delay in samples.
func SuperFineTOE(g *Grid) float64 {
	rsRows := rsSymbolIndices(g)
	var acc complex128
	for idx := 0; idx+1 < len(rsRows); idx++ {
		i0, i1 := rsRows[idx], rsRows[idx+1]
		for j := 0; j+3 < 72; j++ {
			acc += cmplx.Conj(g.Data[i0][j]) * g.Data[i1][j+3]
		}
	}
	if acc == 0 {
		return 0
	}
	return -cmplx.Phase(acc) / 3 / (2 * math.Pi / 128)
}

// ApplyTOC applies a subcarrier-dependent phase ramp realizing the time
// offset correction, in place.
func ApplyTOC(g *Grid, delaySamples float64) {
	for i := range g.Data {
		for j := range g.Data[i] {
			cn := float64(localSubcarrier(j))
			theta := 2 * math.Pi * delaySamples * cn / 128
			g.Data[i][j] *= complex(math.Cos(theta), math.Sin(theta))
		}
	}
}
