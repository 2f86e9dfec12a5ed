package telemetry

import (
	"fmt"

	"github.com/openltescan/ltescan/internal/logging"
)

// StdoutReporter prints one structured log line per tracker update per
// cell.
type StdoutReporter struct {
	logger logging.Logger
}

// NewStdoutReporter builds a stdout reporter with the provided logger.
func NewStdoutReporter(logger logging.Logger) StdoutReporter {
	if logger == nil {
		logger = logging.Default()
	}
	return StdoutReporter{logger: logger}
}

func (r StdoutReporter) Report(sample TrackSample) {
	fields := []logging.Field{
		{Key: "subsystem", Value: "tracker"},
		{Key: "n_id_cell", Value: sample.NIDCell},
		{Key: "frame_start", Value: sample.FrameStart},
		{Key: "buffer_fill", Value: sample.BufferFill},
		{Key: "buffer_peak", Value: sample.BufferPeak},
		{Key: "coherence_bw_hz", Value: sample.CoherenceBandwidthHz},
		{Key: "mib_ok", Value: sample.MIBOK},
	}
	if sample.MIBOK {
		fields = append(fields, logging.Field{Key: "sfn", Value: sample.SFN})
	}
	for port, p := range sample.Ports {
		fields = append(fields,
			logging.Field{Key: fmt.Sprintf("port_%d_snr_db", port), Value: p.SNRdB},
			logging.Field{Key: fmt.Sprintf("port_%d_crs_sp_avg", port), Value: p.CRSSPAvg},
			logging.Field{Key: fmt.Sprintf("port_%d_crs_np_avg", port), Value: p.CRSNPAvg},
		)
	}
	r.logger.Info("tracker sample", fields...)
}
