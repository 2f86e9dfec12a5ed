// Package rom holds the process-wide, read-only signal and scrambling
// tables the acquisition pipeline correlates against: PSS/SSS sequences,
// the PN scrambling generator, the CRC-16 polynomial, and the
// cell-specific reference-signal generator. The PSS tables are built once
// by a sync.Once-guarded initializer and never mutated afterward; the SSS,
// PN and reference-signal sequences and the CRC are computed afresh on
// every call and are not cached.
package rom

// goldSeq generates the length-n 3GPP pseudo-random (Gold) sequence used
// for PN scrambling (36.211 7.2) and for reference-signal generation
// (36.211 6.10.1), seeded by cinit.
//
// x1 is the fixed sequence with x1(0)=1, x1(n)=0 for 1<=n<31.
// x2 is seeded from the binary expansion of cinit.
// c(n) = (x1(n+Nc) + x2(n+Nc)) mod 2, with Nc = 1600.
func goldSeq(cinit uint32, n int) []int {
	const Nc = 1600
	total := n + Nc
	x1 := make([]int, total+31)
	x2 := make([]int, total+31)
	x1[0] = 1
	for i := 1; i < 31; i++ {
		x1[i] = 0
	}
	for i := 0; i < 31; i++ {
		x2[i] = int((cinit >> uint(i)) & 1)
	}
	for i := 0; i < total; i++ {
		x1[i+31] = (x1[i+3] + x1[i]) % 2
		x2[i+31] = (x2[i+3] + x2[i+2] + x2[i+1] + x2[i]) % 2
	}
	c := make([]int, n)
	for i := 0; i < n; i++ {
		c[i] = (x1[i+Nc] + x2[i+Nc]) % 2
	}
	return c
}

// PNSequence returns the length-n scrambling sequence used to descramble
// PBCH soft bits, seeded by the cell identity (36.211 6.6.1, c_init =
// n_id_cell).
func PNSequence(nIDCell, n int) []bool {
	bits := goldSeq(uint32(nIDCell), n)
	out := make([]bool, n)
	for i, b := range bits {
		out[i] = b == 1
	}
	return out
}

// CRC16Poly is the LTE CRC-16 generator polynomial D^16+D^12+D^5+1
// (36.212 5.1.1), with the leading D^16 term dropped (implicit) and the
// remaining coefficients listed MSB (D^15) first.
var CRC16Poly = []int{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

// CalcCRC16 computes the 16-bit CRC of bits (0/1 ints) under CRC16Poly.
// This is equivalent to dividing the message followed by 16 zero bits by
// the generator polynomial and keeping the remainder: each data bit is
// added into the feedback of the 16-stage shift register, so once the last
// data bit is in, the register already holds that remainder and no
// zero-bit flush follows.
func CalcCRC16(bits []int) []int {
	reg := make([]int, 16)
	step := func(b int) {
		fb := reg[0] ^ b
		copy(reg, reg[1:])
		reg[15] = 0
		if fb == 1 {
			for i := range reg {
				reg[i] ^= CRC16Poly[i]
			}
		}
	}
	for _, b := range bits {
		step(b)
	}
	return reg
}
