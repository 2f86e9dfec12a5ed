package rom

// m-sequence generator polynomials (36.211 6.11.2.1), each seeded
// x(0..3)=0, x(4)=1 and recursed to length 31.
func mSequence(tap2, tap3, tap4 int) []int {
	const n = 31
	x := make([]int, n+5)
	x[4] = 1
	for i := 0; i+5 <= n+4; i++ {
		v := x[i]
		if tap2 >= 0 {
			v ^= x[i+tap2]
		}
		if tap3 >= 0 {
			v ^= x[i+tap3]
		}
		if tap4 >= 0 {
			v ^= x[i+tap4]
		}
		x[i+5] = v
	}
	return x[:n]
}

// sTilde, cTilde, zTilde are the three base m-sequences s~, c~, z~ used to
// build the two SSS BPSK sequences (36.211 6.11.2.1):
//
//	s~: x(i+5) = (x(i+2) + x(i)) mod 2
//	c~: x(i+5) = (x(i+3) + x(i)) mod 2
//	z~: x(i+5) = (x(i+4) + x(i+2) + x(i+1) + x(i)) mod 2
func sTilde() []int { return mSequence(2, -1, -1) }
func cTilde() []int { return mSequence(3, -1, -1) }
func zTilde() []int { return mSequence(4, 2, 1) }

// sssM0M1 derives (m0, m1) from n_id_1 per 36.211 6.11.2.1.
func sssM0M1(nID1 int) (m0, m1 int) {
	qp := nID1 / 30
	q := (nID1 + qp*(qp+1)/2) / 30
	mp := nID1 + q*(q+1)/2
	m0 = mp % 31
	m1 = (m0 + mp/31 + 1) % 31
	return
}

func bpsk(x int) float64 {
	if x == 1 {
		return -1
	}
	return 1
}

// SSSFD returns the 62-sample frequency-domain SSS sequence (subcarriers
// -31..-1,1..31, matching rom.PSSFD's ordering) for the given (n_id_1,
// n_id_2) pair. secondHalf selects the subframe-5 variant (the SSS symbol
// in the second half-frame swaps the two BPSK sequences relative to
// subframe 0, which is how the frame-timing ambiguity is resolved once
// SSS is decoded).
func SSSFD(nID1, nID2 int, secondHalf bool) []complex128 {
	st, ct, zt := sTilde(), cTilde(), zTilde()
	m0, m1 := sssM0M1(nID1)

	s0 := make([]float64, 31)
	s1 := make([]float64, 31)
	c0 := make([]float64, 31)
	c1 := make([]float64, 31)
	z0 := make([]float64, 31)
	z1 := make([]float64, 31)
	for n := 0; n < 31; n++ {
		s0[n] = bpsk(st[(n+m0)%31])
		s1[n] = bpsk(st[(n+m1)%31])
		c0[n] = bpsk(ct[(n+nID2)%31])
		c1[n] = bpsk(ct[(n+nID2+3)%31])
		z0[n] = bpsk(zt[(n+(m0%8))%31])
		z1[n] = bpsk(zt[(n+(m1%8))%31])
	}

	d := make([]float64, 62)
	if !secondHalf {
		for n := 0; n < 31; n++ {
			d[2*n] = s0[n] * c0[n]
			d[2*n+1] = s1[n] * c1[n] * z0[n]
		}
	} else {
		for n := 0; n < 31; n++ {
			d[2*n] = s1[n] * c0[n]
			d[2*n+1] = s0[n] * c1[n] * z1[n]
		}
	}

	out := make([]complex128, 62)
	for i, v := range d {
		out[i] = complex(v, 0)
	}
	return out
}
