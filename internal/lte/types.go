package lte

import "math"

// Cell is the pipeline's central record. Fields are filled in progressively
// by each pipeline stage; a field whose producing stage was never reached,
// or whose gate rejected the candidate, keeps its zero value and is
// reported through the matching Valid/Decoded flag rather than through a
// sentinel value.
type Cell struct {
	FcRequested  float64
	FcProgrammed float64

	// Populated by the PSS stage.
	NID2   int
	Ind    int // PSS peak sample index, mod HalfFramePeriodSamples
	Freq   float64
	PSSPow float64

	// Populated by the SSS stage, only if SSSValid.
	SSSValid   bool
	NID1       int
	CPType     CPType
	DuplexMode DuplexMode
	FrameStart float64

	// Populated by FOE stages.
	FreqFine       float64
	FreqSuperfine  float64

	// Populated by blind MIB decode, only if MIBDecoded.
	MIBDecoded     bool
	NPorts         int
	NRBDL          int
	PHICHDuration  PHICHDuration
	PHICHResource  PHICHResource
	SFN            int
}

// NIDCell is the derived physical cell identity, 3*n_id_1 + n_id_2.
func (c Cell) NIDCell() int {
	return 3*c.NID1 + c.NID2
}

// NSymbDL returns 7 for normal CP, 6 for extended CP, matching CPType.NSymbDL.
func (c Cell) NSymbDL() int {
	return c.CPType.NSymbDL()
}

// FrameStartWrapBound returns the upper bound (exclusive) of the wrap
// interval [-0.5, bound) that FrameStart must satisfy, given the sampling
// parameters in effect when it was computed.
func FrameStartWrapBound(fsProgrammed, kFactor float64) float64 {
	return (2*HalfFramePeriodSamples - 0.5) * 16 / FSLTE * fsProgrammed * kFactor
}

// Wrap folds x into [lo, hi) using the same semantics as the original
// pipeline's WRAP macro: repeatedly add or subtract (hi-lo) until x lands
// in range.
func Wrap(x, lo, hi float64) float64 {
	span := hi - lo
	if span <= 0 {
		return x
	}
	y := math.Mod(x-lo, span)
	if y < 0 {
		y += span
	}
	r := y + lo
	if r >= hi {
		// y+lo can round up to hi when y is within an ulp of span.
		r = lo
	}
	return r
}

// KFactor computes the clock-error ratio from the defining relation
// k_factor = (fc_requested - freqOffset) / fc_programmed.
func KFactor(fcRequested, freqOffset, fcProgrammed float64) float64 {
	if fcProgrammed == 0 {
		return 1
	}
	return (fcRequested - freqOffset) / fcProgrammed
}

// SamplesPerFrame returns the number of *captured* samples spanning one
// LTE frame (19200 samples at fs_true), given the current k_factor.
func SamplesPerFrame(kFactor float64) float64 {
	if kFactor == 0 {
		return FramePeriodSamples
	}
	return FramePeriodSamples / kFactor
}
