// Package pss implements the PSS coarse correlator: the wideband,
// frequency-search cross-correlation of every captured sample position
// against all three PSS time-domain templates and every frequency
// hypothesis in the search set.
package pss

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/openltescan/ltescan/internal/assert"
	"github.com/openltescan/ltescan/internal/lte/dftutil"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// SearchParams bundles the capture-dependent parameters the correlator
// needs: the frequency search set and the sampling-clock relations that
// decide how the templates are frequency-shifted before correlation.
type SearchParams struct {
	FSearch       []float64 // Hz offsets to search, e.g. -100e3..100e3 step 5e3
	FcRequested   float64
	FcProgrammed  float64
	FsProgrammed  float64
	Twist         bool    // if true, recompute k_factor per frequency hypothesis
	KFactor       float64 // used for every hypothesis when Twist is false
	Workers       int     // 0 => runtime.GOMAXPROCS(0)
}

// Tensor is the flat, strided correlation tensor xc[t][k][f], t=0..2
// (n_id_2), k=0..N-137 (sample index), f=0..len(FSearch).
//
// Represented as a single contiguous buffer rather than nested slices:
// each worker in Correlate owns a disjoint (t,f) slab of Data and never
// touches another worker's slab, satisfying the "no shared mutable state
// between shards" requirement without needing a mutex.
type Tensor struct {
	NT, NK, NF int
	Data       []complex128
}

func newTensor(nt, nk, nf int) *Tensor {
	return &Tensor{NT: nt, NK: nk, NF: nf, Data: make([]complex128, nt*nk*nf)}
}

func (x *Tensor) index(t, k, f int) int { return (t*x.NK+k)*x.NF + f }

// At returns xc[t][k][f].
func (x *Tensor) At(t, k, f int) complex128 { return x.Data[x.index(t, k, f)] }

func (x *Tensor) set(t, k, f int, v complex128) {
	assert.True(t >= 0 && t < x.NT && k >= 0 && k < x.NK && f >= 0 && f < x.NF, "pss.Tensor.set index out of range")
	x.Data[x.index(t, k, f)] = v
}

// buildTemplate produces the conjugated, 1/137-scaled, frequency-shifted
// correlation template for PSS index t and frequency hypothesis foff,
// sampled at the given clock ratio.
func buildTemplate(t int, foff, fsProgrammed, kFactor float64) []complex128 {
	base := rom.PSSTD(t)
	fs := fsProgrammed * kFactor
	shifted := dftutil.FShift(base, foff, fs)
	out := make([]complex128, len(shifted))
	for i, v := range shifted {
		c := complex(real(v), -imag(v)) // conjugate
		out[i] = c / complex(float64(len(shifted)), 0)
	}
	return out
}

// Correlate computes the full xc tensor for capture buffer s against the
// three PSS templates and every frequency hypothesis in params.FSearch.
// The outer (t,f) loop is sharded across a worker pool; each worker
// computes one (t,f) slab of the output independently of all others.
func Correlate(ctx context.Context, s []complex128, params SearchParams) (*Tensor, error) {
	n := len(s)
	tmplLen := len(rom.PSSTD(0))
	nk := n - tmplLen
	if nk < 1 {
		nk = 0
	}
	nf := len(params.FSearch)
	x := newTensor(3, nk, nf)

	type job struct{ t, f int }
	jobs := make([]job, 0, 3*nf)
	for t := 0; t < 3; t++ {
		for f := 0; f < nf; f++ {
			jobs = append(jobs, job{t, f})
		}
	}

	workers := params.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	if workers < 1 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(jobs) + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if lo >= len(jobs) {
			break
		}
		if hi > len(jobs) {
			hi = len(jobs)
		}
		myJobs := jobs[lo:hi]
		g.Go(func() error {
			for _, j := range myJobs {
				if err := gctx.Err(); err != nil {
					return err
				}
				kFactor := params.KFactor
				if params.Twist {
					kFactor = (params.FcRequested - params.FSearch[j.f]) / params.FcProgrammed
				}
				tmpl := buildTemplate(j.t, params.FSearch[j.f], params.FsProgrammed, kFactor)
				for k := 0; k < nk; k++ {
					var acc complex128
					window := s[k : k+tmplLen]
					for m, tv := range tmpl {
						acc += tv * window[m]
					}
					x.set(j.t, k, j.f, acc)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return x, nil
}
