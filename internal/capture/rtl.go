package capture

import (
	"context"
	"errors"
)

// RTLSource is the rtl-sdr backend. Linking against librtlsdr is left out
// of this build; NewRTL succeeds, but every Capture call returns an error
// rather than silently falling back to another backend.
type RTLSource struct {
	Device string
}

func NewRTL(device string) *RTLSource { return &RTLSource{Device: device} }

func (r *RTLSource) Close() error { return nil }

func (r *RTLSource) Capture(ctx context.Context, req Request) (Buffer, error) {
	return Buffer{}, errors.New("capture: rtlsdr backend not built in this environment")
}
