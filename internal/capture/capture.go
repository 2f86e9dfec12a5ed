// Package capture implements the IQ capture collaborator: the small
// interface the acquisition core consumes to obtain a buffer of complex
// baseband samples, plus the FileSource/MockSource/RTLSource backends
// that satisfy it.
package capture

import "context"

// Request describes one capture attempt.
type Request struct {
	FcRequested float64
	Correction  float64 // ppm
	N           int     // 0 => lte.CapLength
	ReadAll     bool
}

// Buffer is one capture result.
type Buffer struct {
	Samples      []complex128
	FcRequested  float64
	FcProgrammed float64
	FsRequested  float64 // NaN if unknown
	FsProgrammed float64
}

// Source captures the minimal IQ-acquisition operation required by the
// acquisition pipeline and the tracker.
type Source interface {
	Capture(ctx context.Context, req Request) (Buffer, error)
	Close() error
}
