// Package mib implements PBCH resource-element extraction, per-port
// equalization, QAM-LLR demodulation, descrambling, rate-dematching,
// tail-biting Viterbi decode, and CRC-masked MIB field recovery — the
// blind decode search over antenna-port-count hypotheses described in
// §4.8.
package mib

import (
	"math/cmplx"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/chanest"
	"github.com/openltescan/ltescan/internal/lte/tfg"
)

// softSymbol is one equalized PBCH soft symbol and its effective noise
// variance, used for LLR demodulation.
type softSymbol struct {
	val complex128
	n0  float64
}

// pbchSymbolRows returns the grid rows (within one radio frame starting
// at frameOffset) carrying PBCH: the first n_symb_dl+... first four
// OFDM symbols of the second slot.
func pbchSymbolRows(cp lte.CPType, frameOffset int) []int {
	nSymbDL := cp.NSymbDL()
	base := frameOffset + nSymbDL // start of the second slot
	return []int{base, base + 1, base + 2, base + 3}
}

// extractFrame pulls the raw REs (and the matching channel estimates)
// for one PBCH frame instance, skipping REs on CRS-bearing PBCH symbols
// whose subcarrier index mod 3 equals n_id_cell mod 3.
func extractFrame(g *tfg.Grid, ces []chanest.Estimate, cp lte.CPType, nidCell, frameOffset int) ([]complex128, [][]complex128) {
	rows := pbchSymbolRows(cp, frameOffset)
	// CRS from ports 0/1 lands on symbol 0, and from ports 2/3 on symbol
	// 1, of every PBCH-bearing slot; extended CP additionally repeats the
	// port-0/1 CRS on symbol 3 (36.211 6.10.1.2).
	crsRows := map[int]bool{rows[0]: true, rows[1]: true}
	if cp == lte.CPExtended {
		crsRows[rows[0]+3] = true
	}

	var rx []complex128
	ceByPort := make([][]complex128, len(ces))

	for _, row := range rows {
		if row >= len(g.Data) {
			continue
		}
		punctured := crsRows[row]
		for j := 0; j < 72; j++ {
			n := localSubcarrierMIB(j)
			nn := n
			if nn < 0 {
				nn += 72
			}
			if punctured && nn%3 == ((nidCell%3)+3)%3 {
				continue
			}
			rx = append(rx, g.Data[row][j])
			for p := range ces {
				if row < len(ces[p].CE) {
					ceByPort[p] = append(ceByPort[p], ces[p].CE[row][j])
				} else {
					ceByPort[p] = append(ceByPort[p], 0)
				}
			}
		}
	}
	return rx, ceByPort
}

func localSubcarrierMIB(j int) int {
	if j < 36 {
		return j - 36
	}
	return j - 35
}

// equalize applies single-port conjugate equalization (nPorts==1) or
// pairwise SFBC/Alamouti zero-forcing (nPorts==2 or 4) to the raw REs,
// returning one soft symbol per RE.
func equalize(rx []complex128, ceByPort [][]complex128, noisePow []float64, nPorts int) []softSymbol {
	out := make([]softSymbol, len(rx))
	switch nPorts {
	case 1:
		ce := ceByPort[0]
		np := avg(noisePow[:1])
		for i, y := range rx {
			h := ce[i]
			mag2 := real(h)*real(h) + imag(h)*imag(h)
			if mag2 == 0 {
				continue
			}
			out[i] = softSymbol{val: y * cmplx.Conj(h) / complex(mag2, 0), n0: np / mag2}
		}
	case 2, 4:
		pairs := [][2]int{{0, 1}}
		if nPorts == 4 {
			pairs = append(pairs, [2]int{2, 3})
		}
		np := avg(noisePow)
		group := 0
		for i := 0; i+1 < len(rx); i += 2 {
			pp := pairs[group%len(pairs)]
			group++
			// Each port's channel is estimated once per RE, but an SFBC
			// pair shares one transmission interval, so average the pair's
			// two channel samples rather than taking one RE's each.
			h0 := (ceByPort[pp[0]][i] + ceByPort[pp[0]][i+1]) / 2
			h1 := (ceByPort[pp[1]][i] + ceByPort[pp[1]][i+1]) / 2
			y0, y1 := rx[i], rx[i+1]
			denom := real(h0)*real(h0) + imag(h0)*imag(h0) + real(h1)*real(h1) + imag(h1)*imag(h1)
			if denom == 0 {
				continue
			}
			s0 := (cmplx.Conj(h0)*y0 + h1*cmplx.Conj(y1)) / complex(denom, 0)
			s1 := (cmplx.Conj(h1)*y0 - h0*cmplx.Conj(y1)) / complex(denom, 0)
			out[i] = softSymbol{val: s0, n0: np / denom}
			out[i+1] = softSymbol{val: s1, n0: np / denom}
		}
	}
	return out
}

func avg(xs []float64) float64 {
	if len(xs) == 0 {
		return 1
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	v := s / float64(len(xs))
	if v <= 0 {
		return 1e-6
	}
	return v
}

// demodLLR QPSK-demodulates each soft symbol into two LLRs (I then Q).
func demodLLR(syms []softSymbol) []float64 {
	out := make([]float64, 0, 2*len(syms))
	for _, s := range syms {
		n0 := s.n0
		if n0 <= 0 {
			n0 = 1e-6
		}
		out = append(out, 4*real(s.val)/n0, 4*imag(s.val)/n0)
	}
	return out
}
