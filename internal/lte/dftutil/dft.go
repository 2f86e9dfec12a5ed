// Package dftutil wraps gonum's complex FFT with the small set of
// operations the acquisition pipeline needs around 128-point OFDM symbol
// DFTs: a process-wide cached transform (mirroring the teacher's
// internal/dsp.CachedDSP — precompute the FFT plan once, reuse it for
// every symbol instead of rebuilding it per call) plus the LTE
// subcarrier-extraction and frequency-shift helpers every pipeline stage
// needs.
package dftutil

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/dsp/fourier"
)

var (
	mu     sync.Mutex
	plans  = map[int]*fourier.CmplxFFT{}
)

func plan(n int) *fourier.CmplxFFT {
	mu.Lock()
	defer mu.Unlock()
	if p, ok := plans[n]; ok {
		return p
	}
	p := fourier.NewCmplxFFT(n)
	plans[n] = p
	return p
}

// DFT computes the forward N-point DFT of x (which must have length N, or
// be zero-padded/truncated by the caller).
func DFT(x []complex128) []complex128 {
	p := plan(len(x))
	out := make([]complex128, len(x))
	return p.Coefficients(out, x)
}

// ExtractCentral returns the `half` subcarriers immediately below and
// above DC from a length-n DFT output, in the order
// [-half..-1, 1..half], skipping bin 0 (DC). For n=128, half=31 recovers
// the 62 PSS/SSS subcarriers; half=36 recovers the 72-subcarrier PBCH/RS
// grid used by TFG extraction.
func ExtractCentral(dftOut []complex128, half int) []complex128 {
	n := len(dftOut)
	out := make([]complex128, 2*half)
	// Negative subcarriers -half..-1 map to bins n-half..n-1.
	copy(out[0:half], dftOut[n-half:n])
	// Positive subcarriers 1..half map to bins 1..half.
	copy(out[half:2*half], dftOut[1:1+half])
	return out
}

// FShift applies a complex frequency shift of freqHz to td (time domain,
// at rate fsHz), i.e. td[n] *= exp(-j*2*pi*freqHz*n/fsHz), matching the
// pipeline's fshift() used throughout §4.1/§4.5/§4.6 to compensate for
// frequency offsets before correlation or DFT.
func FShift(td []complex128, freqHz, fsHz float64) []complex128 {
	out := make([]complex128, len(td))
	if fsHz == 0 {
		copy(out, td)
		return out
	}
	w := -2 * math.Pi * freqHz / fsHz
	for n, v := range td {
		theta := w * float64(n)
		rot := complex(math.Cos(theta), math.Sin(theta))
		out[n] = v * rot
	}
	return out
}
