package capture

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/openltescan/ltescan/internal/lte"
)

// FileSource replays a .bin capture file: an optional 32-byte header
// (four little-endian float64 fields fc_requested, fc_programmed,
// fs_requested, fs_programmed, with NaN meaning "unknown" and a zero
// fc_requested meaning "no header present"), followed by a raw sequence
// of (I,Q) byte pairs, each byte u mapped as (u-127.5)/128 into [-1,1].
type FileSource struct {
	Path string
}

func NewFileSource(path string) *FileSource { return &FileSource{Path: path} }

func (f *FileSource) Close() error { return nil }

func (f *FileSource) Capture(ctx context.Context, req Request) (Buffer, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return Buffer{}, fmt.Errorf("capture: open %s: %w", f.Path, err)
	}
	defer file.Close()

	buf := Buffer{FsRequested: math.NaN(), FsProgrammed: math.NaN()}

	var header [32]byte
	n, err := io.ReadFull(file, header[:])
	haveHeader := false
	if err == nil && n == 32 {
		fcReq := math.Float64frombits(binary.LittleEndian.Uint64(header[0:8]))
		if fcReq != 0 {
			haveHeader = true
			buf.FcRequested = fcReq
			buf.FcProgrammed = math.Float64frombits(binary.LittleEndian.Uint64(header[8:16]))
			buf.FsRequested = math.Float64frombits(binary.LittleEndian.Uint64(header[16:24]))
			buf.FsProgrammed = math.Float64frombits(binary.LittleEndian.Uint64(header[24:32]))
		}
	}
	if !haveHeader {
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			return Buffer{}, fmt.Errorf("capture: rewind %s: %w", f.Path, err)
		}
	}

	if buf.FcRequested == 0 {
		buf.FcRequested = req.FcRequested
	}
	if buf.FcProgrammed == 0 {
		buf.FcProgrammed = req.FcRequested * (1 + req.Correction*1e-6)
	}

	raw, err := io.ReadAll(file)
	if err != nil {
		return Buffer{}, fmt.Errorf("capture: read %s: %w", f.Path, err)
	}
	if err := ctx.Err(); err != nil {
		return Buffer{}, err
	}

	nSamples := len(raw) / 2
	want := req.N
	if want == 0 {
		want = lte.CapLength
	}
	if !req.ReadAll && nSamples < want {
		return Buffer{}, fmt.Errorf("capture: %w (%d < %d)", lte.ErrCaptureShortage, nSamples, want)
	}
	if !req.ReadAll {
		nSamples = want
	}

	samples := make([]complex128, nSamples)
	for i := 0; i < nSamples; i++ {
		iByte, qByte := raw[2*i], raw[2*i+1]
		re := (float64(iByte) - 127.5) / 128.0
		im := (float64(qByte) - 127.5) / 128.0
		samples[i] = complex(re, im)
	}
	buf.Samples = samples
	return buf, nil
}
