package rom

import "math"

// nRBMaxDL is the maximum downlink bandwidth (110 resource blocks,
// 36.211 6.10.1) the reference-signal sequence is always generated
// across; the pipeline then extracts only the subcarriers actually
// present in the capture bandwidth.
const nRBMaxDL = 110

// RSCInit computes the scrambling seed for the cell-specific reference
// signal carried on OFDM symbol l of slot ns (36.211 6.10.1.1).
// cpNormal selects normal (1) vs extended (0) cyclic prefix, per the spec.
func RSCInit(nIDCell, ns, l int, cpNormal bool) uint32 {
	ncp := 1
	if !cpNormal {
		ncp = 0
	}
	c := (1 << 10) * uint32(7*(ns+1)+l+1) * uint32(2*nIDCell+1)
	c += uint32(2*nIDCell + ncp)
	return c
}

// RSSequence returns the length-2*nRBMaxDL QPSK reference-signal sequence
// for the given scrambling seed (36.211 6.10.1.1):
//
//	r(m) = (1/sqrt2)(1-2c(2m)) + j(1/sqrt2)(1-2c(2m+1))
func RSSequence(cinit uint32) []complex128 {
	c := goldSeq(cinit, 2*2*nRBMaxDL)
	out := make([]complex128, 2*nRBMaxDL)
	const a = 1 / math.Sqrt2
	for m := range out {
		re := a * (1 - 2*float64(c[2*m]))
		im := a * (1 - 2*float64(c[2*m+1]))
		out[m] = complex(re, im)
	}
	return out
}

// RSFreqShift returns the antenna-port frequency shift v used to place a
// cell's RS subcarriers within each resource-block comb (36.211
// 6.10.1.2), given the port index p, slot number ns, and OFDM symbol
// index l within the slot (nSymbDL is 7 for normal CP, 6 for extended).
func RSFreqShift(p, ns, l, nSymbDL int) int {
	switch p {
	case 0:
		if l == 0 {
			return 0
		}
		return 3
	case 1:
		if l == 0 {
			return 3
		}
		return 0
	case 2:
		return 3 * (ns % 2)
	case 3:
		return 3 + 3*(ns%2)
	}
	return 0
}

// RSSubcarrier returns the absolute subcarrier index (within the
// nRBMaxDL*2-wide RS sequence indexing of RSSequence) that RS symbol m
// occupies for a cell with identity nIDCell and antenna-port shift v:
// k = 6*m + ((v + nIDCell) mod 6), per 36.211 6.10.1.2.
func RSSubcarrier(m, v, nIDCell int) int {
	return 6*m + ((v+nIDCell)%6)
}
