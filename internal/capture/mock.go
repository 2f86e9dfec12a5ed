package capture

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/rom"
)

// MockSource synthesizes a baseband capture containing a single PSS-bearing
// cell at a controllable power, frequency offset, and sample-rate error, for
// exercising the acquisition pipeline without real RF hardware.
//
// Only the PSS time-domain waveform is synthesized faithfully; SSS, the
// reference signal grid, and PBCH are left as noise. That is enough to drive
// the coarse-correlation and peak-search stages end to end, but a MockSource
// capture will never report SSSValid or MIBDecoded. No synthesizer for
// SSS, RS or PBCH exists in this package.
type MockSource struct {
	mu  sync.RWMutex
	cfg MockConfig
}

// MockConfig controls the synthetic cell embedded in a MockSource capture.
type MockConfig struct {
	NID2       int     // 0,1,2
	FreqOffset float64 // Hz, coarse carrier offset baked into the PSS tone
	PPMError   float64 // sample-rate error, ppm
	SNRdB      float64 // PSS tone power relative to the noise floor
	FsSim      float64 // simulated sample rate; 0 => lte.FSLTE
}

func NewMock(cfg MockConfig) *MockSource {
	if cfg.FsSim == 0 {
		cfg.FsSim = lte.FSLTE
	}
	return &MockSource{cfg: cfg}
}

func (m *MockSource) Close() error { return nil }

func (m *MockSource) SetFreqOffset(hz float64) {
	m.mu.Lock()
	m.cfg.FreqOffset = hz
	m.mu.Unlock()
}

func (m *MockSource) Capture(ctx context.Context, req Request) (Buffer, error) {
	m.mu.RLock()
	cfg := m.cfg
	m.mu.RUnlock()

	n := req.N
	if n == 0 {
		n = lte.CapLength
	}

	fs := cfg.FsSim * (1 + cfg.PPMError*1e-6)
	pssTD := rom.PSSTD(cfg.NID2)

	noiseSigma := 1.0
	pssAmp := noiseSigma * math.Pow(10, cfg.SNRdB/20)

	samples := make([]complex128, n)
	for i := range samples {
		re := rand.NormFloat64() * noiseSigma
		im := rand.NormFloat64() * noiseSigma
		samples[i] = complex(re, im)
	}

	period := lte.HalfFramePeriodSamples
	for start := 0; start+len(pssTD) <= n; start += period {
		for k, v := range pssTD {
			idx := start + k
			phase := 2 * math.Pi * cfg.FreqOffset * float64(idx) / fs
			rot := complex(math.Cos(phase), math.Sin(phase))
			samples[idx] += complex(real(v)*pssAmp, imag(v)*pssAmp) * rot
		}
	}

	if err := ctx.Err(); err != nil {
		return Buffer{}, err
	}

	return Buffer{
		Samples:      samples,
		FcRequested:  req.FcRequested,
		FcProgrammed: req.FcRequested * (1 + req.Correction*1e-6),
		FsRequested:  cfg.FsSim,
		FsProgrammed: fs,
	}, nil
}
