// Package tracker runs one lightweight worker per detected cell, computing
// a running CRS signal/noise power and coherence-bandwidth estimate and
// reporting it through a telemetry.Reporter. It is the continuous-operation
// counterpart to the one-shot search package: search finds cells, tracker
// watches them.
package tracker

import (
	"context"
	"math"
	"time"

	"github.com/openltescan/ltescan/internal/capture"
	"github.com/openltescan/ltescan/internal/dsp"
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/chanest"
	"github.com/openltescan/ltescan/internal/lte/mib"
	"github.com/openltescan/ltescan/internal/lte/tfg"
	"github.com/openltescan/ltescan/internal/logging"
	"github.com/openltescan/ltescan/internal/telemetry"
)

// Params configures a single cell's tracking worker.
type Params struct {
	FIFODepth       int
	MaxMIBFailures  int
	AveragingWeight float64 // exponential-average weight for new samples, 0..1
	SpectrumSize    int     // 0 disables the optional dBFS spectrum view
	Logger          logging.Logger
}

func defaultParams(p Params) Params {
	if p.FIFODepth <= 0 {
		p.FIFODepth = 8
	}
	if p.MaxMIBFailures <= 0 {
		p.MaxMIBFailures = 8
	}
	if p.AveragingWeight <= 0 {
		p.AveragingWeight = 0.1
	}
	if p.Logger == nil {
		p.Logger = logging.Default()
	}
	return p
}

// Worker tracks one cell: it receives capture buffers through Feed (the
// Manager forwards the shared search capture), re-estimates the channel,
// and reports a TrackSample on every update.
type Worker struct {
	cell     lte.Cell
	reporter telemetry.Reporter
	params   Params

	frames chan capture.Buffer

	crsSPAvg    [4]float64
	crsNPAvg    [4]float64
	mibFailures int
	spectrum    *dsp.CachedDSP
}

// NewWorker builds a tracker for an already-acquired cell.
func NewWorker(cell lte.Cell, reporter telemetry.Reporter, p Params) *Worker {
	p = defaultParams(p)
	w := &Worker{
		cell:     cell,
		reporter: reporter,
		params:   p,
		frames:   make(chan capture.Buffer, p.FIFODepth),
	}
	if p.SpectrumSize > 0 {
		w.spectrum = dsp.NewCachedDSP(p.SpectrumSize)
	}
	return w
}

// Feed enqueues a fresh capture buffer for this cell, dropping the oldest
// queued buffer (and reporting the drop through its return value) if the
// FIFO is full.
func (w *Worker) Feed(buf capture.Buffer) (dropped bool) {
	select {
	case w.frames <- buf:
		return false
	default:
		select {
		case <-w.frames:
		default:
		}
		select {
		case w.frames <- buf:
		default:
		}
		return true
	}
}

// Run drives the worker loop until ctx is canceled or the cell is dropped
// after too many consecutive MIB failures with no CRS energy above the
// noise floor.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case buf, ok := <-w.frames:
			if !ok {
				return
			}
			if !w.update(buf) {
				return
			}
		}
	}
}

func (w *Worker) update(buf capture.Buffer) bool {
	if len(buf.Samples) < lte.CapLength {
		return true
	}

	kFactor := lte.KFactor(buf.FcRequested, w.cell.FreqSuperfine, buf.FcProgrammed)
	grid := tfg.Extract(buf.Samples, w.cell.FrameStart, w.cell.CPType, w.cell.NIDCell(), w.cell.FreqSuperfine, buf.FsProgrammed, kFactor)

	sample := telemetry.TrackSample{
		NIDCell:    w.cell.NIDCell(),
		FrameStart: w.cell.FrameStart,
		BufferFill: len(w.frames),
		BufferPeak: cap(w.frames),
	}

	ces := make([]chanest.Estimate, 4)
	for port := 0; port < 4; port++ {
		ce := chanest.EstimatePort(grid, port)
		ces[port] = ce
		sp := signalPower(ce.CE)
		np := ce.NoisePow
		w.crsSPAvg[port] += w.params.AveragingWeight * (sp - w.crsSPAvg[port])
		w.crsNPAvg[port] += w.params.AveragingWeight * (np - w.crsNPAvg[port])

		snr := math.NaN()
		if np > 0 {
			snr = 10 * math.Log10(sp/np)
		}
		sample.Ports[port] = telemetry.PortSample{
			CRSSP:    sp,
			CRSNP:    np,
			SNRdB:    snr,
			CRSSPAvg: w.crsSPAvg[port],
			CRSNPAvg: w.crsNPAvg[port],
		}
	}

	sample.CoherenceBandwidthHz = coherenceBandwidth(w.crsSPAvg[:])

	if w.spectrum != nil && len(buf.Samples) >= w.params.SpectrumSize {
		narrow := make([]complex64, w.params.SpectrumSize)
		for i := range narrow {
			narrow[i] = complex64(buf.Samples[i])
		}
		_, dbfs := w.spectrum.FFTAndDBFS(narrow)
		sample.SpectrumDBFS = dbfs
	}

	mr := mib.Decode(grid, ces, w.cell.CPType, w.cell.NIDCell())
	if mr.Decoded {
		w.mibFailures = 0
		sample.MIBOK = true
		sample.SFN = mr.SFN
	} else {
		w.mibFailures++
		sample.MIBOK = false
	}

	sample.Timestamp = time.Now()
	w.reporter.Report(sample)

	if w.mibFailures >= w.params.MaxMIBFailures && w.crsSPAvg[0] <= w.crsNPAvg[0] {
		w.params.Logger.Info("dropping track: no CRS energy and repeated MIB failures",
			logging.Field{Key: "n_id_cell", Value: w.cell.NIDCell()})
		return false
	}
	return true
}

func signalPower(ce [][]complex128) float64 {
	if len(ce) == 0 {
		return 0
	}
	var acc float64
	n := 0
	for _, row := range ce {
		for _, v := range row {
			acc += real(v)*real(v) + imag(v)*imag(v)
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return acc / float64(n)
}

// coherenceBandwidth is a crude coherence-bandwidth figure: it treats the
// per-port average signal powers as successive lags, returns the first lag
// (from 1) whose power falls below half their mean, times 90kHz, and
// returns len(spAvg)*90kHz when none does. No frequency autocorrelation
// is computed.
func coherenceBandwidth(spAvg []float64) float64 {
	var dc float64
	for _, v := range spAvg {
		dc += v
	}
	if dc <= 0 {
		return 0
	}
	dc /= float64(len(spAvg))
	half := dc / 2
	for lag := 1; lag < len(spAvg); lag++ {
		if spAvg[lag] < half {
			return float64(lag) * 90e3
		}
	}
	return float64(len(spAvg)) * 90e3
}
