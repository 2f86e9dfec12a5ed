// Package chanest implements per-antenna-port channel estimation and
// hexagonal interpolation over the time-frequency grid produced by
// package tfg.
package chanest

import (
	"sort"

	"github.com/openltescan/ltescan/internal/assert"
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/rom"
	"github.com/openltescan/ltescan/internal/lte/tfg"
)

// Estimate is one antenna port's channel estimate: the interpolated
// 72-subcarrier × NSymb grid and the estimated noise power.
type Estimate struct {
	CE       [][]complex128 // [symbol][subcarrier]
	NoisePow float64
}

// rsSymbolRows returns, for port p, the grid row indices carrying that
// port's reference symbols: symbols 0 and n_symb_dl-3 for ports 0/1,
// symbol 1 for ports 2/3.
func rsSymbolRows(g *tfg.Grid, p int) []int {
	nSymbDL := g.CPType.NSymbDL()
	var out []int
	for i := range g.Data {
		pos := i % nSymbDL
		switch {
		case p < 2 && (pos == 0 || pos == nSymbDL-3):
			out = append(out, i)
		case p >= 2 && pos == 1:
			out = append(out, i)
		}
	}
	return out
}

func localSubcarrier(j int) int {
	if j < 36 {
		return j - 36
	}
	return j - 35
}

// rawAt extracts the raw, RS-compensated channel estimate at grid row i
// for port p: one complex value per subcarrier that carries that port's
// RS (every 6th, 12 per symbol across a 72-wide window).
//
// The comb shift v genuinely alternates between a port's two RS symbol
// positions within a slot (36.211 6.10.1.2): ports 0/1 use shift
// n_id_cell%6 at l=0 and (3+n_id_cell)%6 at l=n_symb_dl-3, so the column
// set returned here is this row's real one, not a shared approximation —
// smooth and interpolate below key off each row's own cols.
func rawAt(g *tfg.Grid, p, i int) ([]complex128, []int) {
	nSymbDL := g.CPType.NSymbDL()
	l := i % nSymbDL
	ns := (i / nSymbDL) % 2
	cinit := rom.RSCInit(g.NIDCell, ns, l, g.CPType == lte.CPNormal)
	seq := rom.RSSequence(cinit)
	v := rom.RSFreqShift(p, ns, l, nSymbDL)
	shift := (v + g.NIDCell) % 6

	var vals []complex128
	var cols []int
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
		if m < len(seq) && seq[m] != 0 {
			vals = append(vals, g.Data[i][j]/seq[m])
		} else {
			vals = append(vals, 0)
		}
		cols = append(cols, j)
		m++
	}
	return vals, cols
}

// nearestIdx returns the index into cols whose subcarrier is nearest to
// target, used to look up a neighboring RS row's sample at a subcarrier
// it doesn't sample exactly (its comb shift differs from the row asking).
func nearestIdx(cols []int, target int) int {
	best, bestD := 0, 1<<30
	for k, c := range cols {
		d := c - target
		if d < 0 {
			d = -d
		}
		if d < bestD {
			bestD, best = d, k
		}
	}
	return best
}

// smooth applies the 7-point hexagonal stencil of §4.7 step 3: each
// RS-bearing row's own ±1 comb neighbors plus the nearest subcarrier in
// the previous and next RS-bearing rows. Adjacent RS rows of a port
// alternate comb shift (36.211 6.10.1.2), so "nearest" rather than
// "same index" is what makes this a genuine cross-row neighbor lookup.
func smooth(raw [][]complex128, cols [][]int) [][]complex128 {
	n := len(raw)
	out := make([][]complex128, n)
	for i := range raw {
		out[i] = make([]complex128, len(raw[i]))
		for k := range raw[i] {
			var acc complex128
			cnt := 0
			acc += raw[i][k]
			cnt++
			if k > 0 {
				acc += raw[i][k-1]
				cnt++
			}
			if k+1 < len(raw[i]) {
				acc += raw[i][k+1]
				cnt++
			}
			col := cols[i][k]
			if i > 0 && len(cols[i-1]) > 0 {
				acc += raw[i-1][nearestIdx(cols[i-1], col)]
				cnt++
			}
			if i+1 < n && len(cols[i+1]) > 0 {
				acc += raw[i+1][nearestIdx(cols[i+1], col)]
				cnt++
			}
			if cnt > 0 {
				out[i][k] = acc / complex(float64(cnt), 0)
			}
		}
	}
	return out
}

// EstimatePort computes the channel estimate for antenna-port hypothesis p
// over grid g, smoothing, measuring noise power, and hex-interpolating
// to the full 72 x NSymb grid.
func EstimatePort(g *tfg.Grid, p int) Estimate {
	rows := rsSymbolRows(g, p)
	if len(rows) == 0 {
		return Estimate{CE: make([][]complex128, len(g.Data))}
	}
	raw := make([][]complex128, len(rows))
	cols := make([][]int, len(rows))
	for i, row := range rows {
		vals, c := rawAt(g, p, row)
		raw[i] = vals
		cols[i] = c
	}
	filt := smooth(raw, cols)

	var noiseAcc float64
	count := 0
	for i := range raw {
		for k := range raw[i] {
			d := filt[i][k] - raw[i][k]
			noiseAcc += real(d)*real(d) + imag(d)*imag(d)
			count++
		}
	}
	noisePow := 0.0
	if count > 0 {
		noisePow = noiseAcc / float64(count)
	}
	assert.NotNaN(noisePow, "chanest.EstimatePort noise power is NaN")

	ce := interpolate(filt, cols, rows, len(g.Data))
	return Estimate{CE: ce, NoisePow: noisePow}
}

// plane2x2 solves the 3x3 plane-equation system for z = a*x + b*y + c
// given three (x,y,z) points, specialized per §9: the third column of
// the 3x3 system is all ones, so only a 2x2 inverse is needed.
func plane2x2(x0, y0 float64, z0 complex128, x1, y1 float64, z1 complex128, x2, y2 float64, z2 complex128) (a, b complex128, c complex128) {
	dx1, dy1 := x1-x0, y1-y0
	dx2, dy2 := x2-x0, y2-y0
	det := dx1*dy2 - dx2*dy1
	if det == 0 {
		return 0, 0, z0
	}
	dz1 := z1 - z0
	dz2 := z2 - z0
	a = complex((dy2*1)/det, 0)*dz1 + complex((-dy1*1)/det, 0)*dz2
	b = complex((-dx2*1)/det, 0)*dz1 + complex((dx1*1)/det, 0)*dz2
	c = z0 - a*complex(x0, 0) - b*complex(y0, 0)
	return a, b, c
}

// interpolate paints the full 72 x nOfdm grid from the smoothed,
// RS-row-only channel estimate via the hex-interpolation walk of §4.7
// step 5: for each pair of adjacent RS rows, sweep triangles left to
// right, painting every RE under the triangle by evaluating its plane
// equation. Rows before the first RS row replicate the first; rows
// past the last replicate the last. Adjacent RS rows generally carry
// different comb shifts, so each row's own column set is used rather
// than one shared array.
func interpolate(filt [][]complex128, cols [][]int, rsRows []int, nOfdm int) [][]complex128 {
	out := make([][]complex128, nOfdm)
	for i := range out {
		out[i] = make([]complex128, 72)
	}
	if len(rsRows) == 0 {
		return out
	}
	// Replicate edge rows.
	for i := 0; i < rsRows[0]; i++ {
		copy(out[i], paintRow(filt[0], cols[0]))
	}
	for i := rsRows[len(rsRows)-1]; i < nOfdm; i++ {
		copy(out[i], paintRow(filt[len(filt)-1], cols[len(cols)-1]))
	}

	for segIdx := 0; segIdx+1 < len(rsRows); segIdx++ {
		topRow, botRow := rsRows[segIdx], rsRows[segIdx+1]
		topVals, botVals := filt[segIdx], filt[segIdx+1]
		paintSegmentTriangles(out, cols[segIdx], cols[segIdx+1], topRow, botRow, topVals, botVals)
	}
	return out
}

// unionCols merges two rows' comb columns into one ascending, duplicate
// free list, used to walk triangles across a pair of RS rows whose comb
// shifts differ.
func unionCols(a, b []int) []int {
	seen := make(map[int]bool, len(a)+len(b))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		seen[c] = true
	}
	out := make([]int, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// valueAt returns row's sample at column col, falling back to the
// nearest comb sample when the row has no exact column there.
func valueAt(cols []int, vals []complex128, col int) complex128 {
	if len(cols) == 0 {
		return 0
	}
	return vals[nearestIdx(cols, col)]
}

// paintSegmentTriangles walks left to right across the union of the top
// and bottom rows' RS columns, splitting each (column-pair x row-pair)
// cell into the two triangles described in §4.7 step 5 and painting
// every RE in each triangle from its plane equation. Where one row
// lacks a comb sample at a union column (its own comb shift skips it),
// its nearest actual sample stands in.
func paintSegmentTriangles(out [][]complex128, topCols, botCols []int, topRow, botRow int, topVals, botVals []complex128) {
	x0, x1 := float64(topRow), float64(botRow)
	cols := unionCols(topCols, botCols)
	for ci := 0; ci+1 < len(cols); ci++ {
		c0, c1 := cols[ci], cols[ci+1]
		if c1 <= c0 {
			continue
		}
		t0, t1 := valueAt(topCols, topVals, c0), valueAt(topCols, topVals, c1)
		b0, b1 := valueAt(botCols, botVals, c0), valueAt(botCols, botVals, c1)

		// Triangle A: (topRow,c0) (topRow,c1) (botRow,c0).
		aA, bA, cA := plane2x2(x0, float64(c0), t0, x0, float64(c1), t1, x1, float64(c0), b0)
		// Triangle B: (topRow,c1) (botRow,c0) (botRow,c1).
		aB, bB, cB := plane2x2(x0, float64(c1), t1, x1, float64(c0), b0, x1, float64(c1), b1)

		for row := topRow; row <= botRow; row++ {
			for col := c0; col <= c1; col++ {
				fx, fy := float64(row), float64(col)
				u := (fx - x0) / (x1 - x0)
				v := (fy - float64(c0)) / (float64(c1) - float64(c0))
				if u+v <= 1 {
					out[row][col] = aA*complex(fx, 0) + bA*complex(fy, 0) + cA
				} else {
					out[row][col] = aB*complex(fx, 0) + bB*complex(fy, 0) + cB
				}
			}
		}
	}
}

// paintRow spreads a single RS row's samples across all 72 subcarriers
// by nearest-neighbor hold between RS columns.
func paintRow(vals []complex128, cols []int) []complex128 {
	out := make([]complex128, 72)
	if len(cols) == 0 {
		return out
	}
	for j := 0; j < 72; j++ {
		out[j] = vals[nearestIdx(cols, j)]
	}
	return out
}
