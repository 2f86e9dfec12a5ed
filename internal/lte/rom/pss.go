package rom

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

// pssRootIndex maps n_id_2 (0,1,2) to the Zadoff-Chu root index u used to
// generate the frequency-domain PSS sequence (36.211 6.11.1.1).
var pssRootIndex = [3]int{25, 29, 34}

var (
	pssOnce sync.Once
	pssFD   [3][]complex128 // length 62, subcarriers -31..-1,1..31
	pssTD   [3][]complex128 // length 137 = 128-pt IDFT + 9-sample CP
)

// zadoffChu62 generates the 62-sample frequency-domain PSS sequence for
// root index u, per 36.211 6.11.1.1:
//
//	d_u(n) = exp(-j*pi*u*n*(n+1)/63)       n = 0..30
//	d_u(n) = exp(-j*pi*u*(n+1)*(n+2)/63)   n = 31..61
func zadoffChu62(u int) []complex128 {
	d := make([]complex128, 62)
	for n := 0; n <= 30; n++ {
		theta := -math.Pi * float64(u) * float64(n) * float64(n+1) / 63.0
		d[n] = complex(math.Cos(theta), math.Sin(theta))
	}
	for n := 31; n <= 61; n++ {
		theta := -math.Pi * float64(u) * float64(n+1) * float64(n+2) / 63.0
		d[n] = complex(math.Cos(theta), math.Sin(theta))
	}
	return d
}

func buildPSS() {
	fft := fourier.NewCmplxFFT(128)
	for i, u := range pssRootIndex {
		fd := zadoffChu62(u)
		pssFD[i] = fd

		// Map the 62 frequency-domain samples onto a 128-point grid:
		// positive subcarriers 1..31 at bins 1..31, negative subcarriers
		// -31..-1 at bins 97..127 (DC and guard bins left at zero).
		grid := make([]complex128, 128)
		for n := 0; n < 31; n++ {
			grid[1+n] = fd[31+n]
		}
		for n := 0; n < 31; n++ {
			grid[128-31+n] = fd[n]
		}
		// IDFT (unnormalized; gonum's Sequence is the inverse of
		// Coefficients up to a factor of N), scaled by 1/128.
		td := fft.Sequence(nil, grid)
		sym := make([]complex128, 128)
		for k, v := range td {
			sym[k] = v / complex(128, 0)
		}
		// Prepend a 9-sample cyclic prefix (normal-CP short CP length)
		// to reach the 137-sample correlation template length used
		// throughout the coarse correlator.
		tmpl := make([]complex128, 137)
		copy(tmpl[0:9], sym[128-9:])
		copy(tmpl[9:], sym)
		pssTD[i] = tmpl
	}
}

// PSSFD returns the 62-sample frequency-domain PSS sequence for n_id_2.
func PSSFD(nID2 int) []complex128 {
	pssOnce.Do(buildPSS)
	return pssFD[nID2]
}

// PSSTD returns the 137-sample time-domain PSS correlation template for
// n_id_2 (128-point IDFT plus a 9-sample cyclic prefix).
func PSSTD(nID2 int) []complex128 {
	pssOnce.Do(buildPSS)
	return pssTD[nID2]
}
