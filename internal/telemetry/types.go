package telemetry

import "time"

// LockState mirrors a track's confidence in the cell it is following.
type LockState string

const (
	LockTentative LockState = "tentative"
	LockConfirmed LockState = "confirmed"
	LockLost      LockState = "lost"
)

// PortSample carries one antenna port's instantaneous and averaged CRS
// signal/noise power, taken directly from chanest.Estimate at report time.
type PortSample struct {
	CRSSP    float64 `json:"crsSp"`
	CRSNP    float64 `json:"crsNp"`
	SNRdB    float64 `json:"snrDb"`
	CRSSPAvg float64 `json:"crsSpAvg"`
	CRSNPAvg float64 `json:"crsNpAvg"`
}

// TrackSample is one tracker update for one cell: a direct transliteration
// of the original tracker's per-cell status line into a JSON-friendly
// shape, widened from a single angle/peak pair to PCI, frame timing, FIFO
// buffer occupancy, per-port CRS power, and coherence bandwidth.
type TrackSample struct {
	Timestamp            time.Time    `json:"timestamp"`
	NIDCell              int          `json:"nIdCell"`
	FrameStart           float64      `json:"frameStart"`
	LockState            LockState    `json:"lockState,omitempty"`
	BufferFill           int          `json:"bufferFill"`
	BufferPeak           int          `json:"bufferPeak"`
	Ports                [4]PortSample `json:"ports"`
	CoherenceBandwidthHz float64      `json:"coherenceBandwidthHz"`
	MIBOK                bool         `json:"mibOk"`
	SFN                  int          `json:"sfn"`
	SpectrumDBFS         []float64    `json:"spectrumDbfs,omitempty"`
}

// Reporter captures one tracker update for dashboards to consume.
type Reporter interface {
	Report(sample TrackSample)
}

// MultiReporter fans a tracker update out to multiple destinations.
type MultiReporter []Reporter

func (m MultiReporter) Report(sample TrackSample) {
	for _, r := range m {
		if r != nil {
			r.Report(sample)
		}
	}
}
