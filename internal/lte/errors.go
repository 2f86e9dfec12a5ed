package lte

import "errors"

// ErrCaptureShortage indicates the capture buffer handed to the
// acquisition pipeline has fewer than CapLength samples; fatal to the
// current acquisition attempt.
var ErrCaptureShortage = errors.New("lte: capture buffer shorter than required acquisition length")

// ErrInvariant indicates a programmer-error invariant violation (an
// out-of-range cp_type, an inconsistent ROM-table constant, and similar
// conditions that should never occur given a correctly-built pipeline).
var ErrInvariant = errors.New("lte: invariant violation")
