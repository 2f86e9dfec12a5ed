// Package search implements the top-level blind cell-acquisition
// orchestrator: it runs the PSS coarse correlator, peak search, SSS/ML
// detection, FOE, TFG extraction, channel estimation, and blind MIB
// decode over a capture buffer, in that order, producing a list of
// Cell records sorted by decreasing raw PSS peak power.
package search

import (
	"context"
	"fmt"
	"math"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/chanest"
	"github.com/openltescan/ltescan/internal/lte/foe"
	"github.com/openltescan/ltescan/internal/lte/mib"
	"github.com/openltescan/ltescan/internal/lte/peaksearch"
	"github.com/openltescan/ltescan/internal/lte/ppm"
	"github.com/openltescan/ltescan/internal/lte/pss"
	"github.com/openltescan/ltescan/internal/lte/sss"
	"github.com/openltescan/ltescan/internal/lte/tfg"
	"github.com/openltescan/ltescan/internal/logging"
)

// Params bundles every configurable knob of the acquisition pipeline.
type Params struct {
	FSearch       []float64
	FcRequested   float64
	FcProgrammed  float64
	FsProgrammed  float64
	Twist         bool
	KFactor       float64
	DSCombArm     int
	Thresh1NSigma float64
	Thresh2NSigma float64
	Workers       int
	Logger        logging.Logger
}

// DefaultParams fills in the observable defaults from the external
// interfaces table.
func DefaultParams(fcRequested, fcProgrammed, fsProgrammed float64) Params {
	fsearch := make([]float64, 0, 41)
	for f := -100e3; f <= 100e3; f += 5e3 {
		fsearch = append(fsearch, f)
	}
	return Params{
		FSearch:       fsearch,
		FcRequested:   fcRequested,
		FcProgrammed:  fcProgrammed,
		FsProgrammed:  fsProgrammed,
		Twist:         true,
		KFactor:       1,
		DSCombArm:     lte.DSCombArmDefault,
		Thresh1NSigma: lte.Thresh1NSigmaDefault,
		Thresh2NSigma: lte.Thresh2NSigmaDefault,
	}
}

// Acquire runs the full blind acquisition pipeline over buf.
func Acquire(ctx context.Context, buf []complex128, p Params) ([]lte.Cell, error) {
	if len(buf) < lte.CapLength {
		return nil, fmt.Errorf("search: %w (%d < %d)", lte.ErrCaptureShortage, len(buf), lte.CapLength)
	}
	logger := p.Logger
	if logger == nil {
		logger = logging.Default()
	}

	fSearch := p.FSearch
	if !p.Twist {
		res := ppm.Search(buf, ppm.Params{FOffsets: p.FSearch, FsProgrammed: p.FsProgrammed})
		if !math.IsNaN(res.PPM) {
			fSearch = res.F
			logger.Debug("ppm pre-search resolved", logging.Field{Key: "ppm", Value: res.PPM}, logging.Field{Key: "candidates", Value: len(fSearch)})
		} else {
			logger.Debug("ppm pre-search inconclusive, using full search set")
		}
	}

	xc, err := pss.Correlate(ctx, buf, pss.SearchParams{
		FSearch:      fSearch,
		FcRequested:  p.FcRequested,
		FcProgrammed: p.FcProgrammed,
		FsProgrammed: p.FsProgrammed,
		Twist:        p.Twist,
		KFactor:      p.KFactor,
		Workers:      p.Workers,
	})
	if err != nil {
		return nil, fmt.Errorf("search: coarse correlation: %w", err)
	}

	combined := peaksearch.Combine(xc, buf, peaksearch.Params{
		DSCombArm:     p.DSCombArm,
		Thresh1NSigma: p.Thresh1NSigma,
		KFactor:       p.KFactor,
		FsProgrammed:  p.FsProgrammed,
	})
	peaks := peaksearch.Search(combined)
	logger.Debug("peak search complete", logging.Field{Key: "peaks", Value: len(peaks)})

	cells := make([]lte.Cell, 0, len(peaks))
	for _, peak := range peaks {
		if err := ctx.Err(); err != nil {
			return cells, err
		}
		cell := lte.Cell{
			FcRequested:  p.FcRequested,
			FcProgrammed: p.FcProgrammed,
			NID2:         peak.NID2,
			Ind:          peak.Idx,
			Freq:         fSearch[peak.FIndex],
			PSSPow:       peak.Pow,
		}

		sssParams := sss.Params{FsProgrammed: p.FsProgrammed, KFactor: p.KFactor, Thresh2NSigma: p.Thresh2NSigma}
		sr := sss.Detect(buf, peak.Idx, peak.NID2, sssParams)
		if !sr.Valid {
			cells = append(cells, cell)
			continue
		}
		cell.SSSValid = true
		cell.NID1 = sr.NID1
		cell.CPType = sr.CPType
		cell.DuplexMode = sr.DuplexMode
		cell.FrameStart = sr.FrameStart

		sssOffset := sssOffsetFor(sr.CPType, sr.DuplexMode)
		freqFine := foe.Estimate(buf, peak.Idx, foe.Params{
			NID1: sr.NID1, NID2: peak.NID2, CPType: sr.CPType, DuplexMode: sr.DuplexMode,
			SSSOffset: sssOffset, FreqCoarse: cell.Freq, FsProgrammed: p.FsProgrammed, KFactor: p.KFactor,
		})
		cell.FreqFine = freqFine

		grid := tfg.Extract(buf, cell.FrameStart, cell.CPType, cell.NIDCell(), freqFine, p.FsProgrammed, p.KFactor)
		residualF := tfg.SuperFineFOE(grid, p.FsProgrammed, p.KFactor)
		tfg.ApplyFOC(grid, residualF, p.FsProgrammed, p.KFactor)
		delay := tfg.SuperFineTOE(grid)
		tfg.ApplyTOC(grid, delay)
		cell.FreqSuperfine = freqFine + residualF

		ces := make([]chanest.Estimate, 4)
		for port := 0; port < 4; port++ {
			ces[port] = chanest.EstimatePort(grid, port)
		}

		mr := mib.Decode(grid, ces, cell.CPType, cell.NIDCell())
		if mr.Decoded {
			cell.MIBDecoded = true
			cell.NPorts = mr.NPorts
			cell.NRBDL = mr.NRBDL
			cell.PHICHDuration = mr.PHICHDuration
			cell.PHICHResource = mr.PHICHResource
			cell.SFN = mr.SFN
		}

		cells = append(cells, cell)
	}
	return cells, nil
}

func sssOffsetFor(cp lte.CPType, dm lte.DuplexMode) int {
	switch {
	case cp == lte.CPNormal && dm == lte.FDD:
		return 128 + 9
	case cp == lte.CPExtended && dm == lte.FDD:
		return 128 + 32
	case cp == lte.CPNormal && dm == lte.TDD:
		return 3*(128+9) + 1
	case cp == lte.CPExtended && dm == lte.TDD:
		return 3 * (128 + 32)
	}
	return 128 + 9
}
