package mib

import (
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/chanest"
	"github.com/openltescan/ltescan/internal/lte/rom"
	"github.com/openltescan/ltescan/internal/lte/tfg"
)

// nRBTable maps the 3-bit MIB DL-bandwidth field to n_rb_dl.
var nRBTable = [8]int{6, 15, 25, 50, 75, 100, 0, 0}

const (
	kBits = 40 // 24-bit MIB + 16-bit CRC, tail-biting rate-1/3

	subblockCols = 32 // C_subblock, 36.212 5.1.4.2
	subblockRows = (kBits + subblockCols - 1) / subblockCols
	streamLen    = subblockRows * subblockCols // K_Pi, per rate-1/3 stream
	codedLen     = 3 * streamLen                // K_w, the circular buffer period
)

// subblockColPerm is the fixed 32-column inter-column permutation pattern
// of 36.212 table 5.1.4-1.
var subblockColPerm = [subblockCols]int{
	0, 16, 8, 24, 4, 20, 12, 28, 2, 18, 10, 26, 6, 22, 14, 30,
	1, 17, 9, 25, 5, 21, 13, 29, 3, 19, 11, 27, 7, 23, 15, 31,
}

// subblockOrigIndex maps each position of an interleaved streamLen-bit
// sub-block back to the original (pre-interleave) bit index it carries,
// or -1 for a filler/NULL position. The forward interleaver writes ND
// NULL markers followed by the kBits real bit indices row-major into an
// R x C matrix, permutes the columns per subblockColPerm, and reads the
// result out column by column; inverting that bookkeeping once avoids
// recomputing it on every decode attempt.
var subblockOrigIndex = buildSubblockOrigIndex()

func buildSubblockOrigIndex() [streamLen]int {
	const nullMarker = -1
	nd := streamLen - kBits
	cells := make([]int, streamLen)
	for i := 0; i < nd; i++ {
		cells[i] = nullMarker
	}
	for i, idx := nd, 0; i < streamLen; i, idx = i+1, idx+1 {
		cells[i] = idx
	}

	var out [streamLen]int
	pos := 0
	for c := 0; c < subblockCols; c++ {
		srcCol := subblockColPerm[c]
		for r := 0; r < subblockRows; r++ {
			out[pos] = cells[r*subblockCols+srcCol]
			pos++
		}
	}
	return out
}

// subblockDeinterleave inverts the sub-block interleaver for one
// rate-1/3 stream, discarding the NULL filler positions.
func subblockDeinterleave(v []float64) []float64 {
	out := make([]float64, kBits)
	for k, orig := range subblockOrigIndex {
		if orig >= 0 {
			out[orig] = v[k]
		}
	}
	return out
}

// Result is the MIB decode outcome for one cell.
type Result struct {
	Decoded       bool
	NPorts        int
	NRBDL         int
	PHICHDuration lte.PHICHDuration
	PHICHResource lte.PHICHResource
	SFN           int
}

// rateDematch inverts 36.212's BCH rate matching: soft-combine the
// cyclically repeated codedLen-bit circular buffer, split it into the
// three interleaved rate-1/3 streams, then undo the sub-block
// interleaver on each to recover the systematic bit order the Viterbi
// decoder expects.
func rateDematch(llrs []float64) (y0, y1, y2 []float64) {
	buf := make([]float64, codedLen)
	for i, v := range llrs {
		buf[i%codedLen] += v
	}
	y0 = subblockDeinterleave(buf[0*streamLen : 1*streamLen])
	y1 = subblockDeinterleave(buf[1*streamLen : 2*streamLen])
	y2 = subblockDeinterleave(buf[2*streamLen : 3*streamLen])
	return
}

// descramble flips the sign of each LLR according to the PN scrambling
// bit at the matching position.
func descramble(llrs []float64, nidCell int) []float64 {
	pn := rom.PNSequence(nidCell, len(llrs))
	out := make([]float64, len(llrs))
	for i, v := range llrs {
		if pn[i] {
			out[i] = -v
		} else {
			out[i] = v
		}
	}
	return out
}

// crcMask returns the 16-bit CRC mask applied per port count (36.212
// 5.3.1.1): no mask for 1 port, invert all 16 bits for 2 ports, invert
// every other bit for 4 ports.
func crcMask(nPorts int) []int {
	m := make([]int, 16)
	switch nPorts {
	case 2:
		for i := range m {
			m[i] = 1
		}
	case 4:
		for i := range m {
			m[i] = i % 2
		}
	}
	return m
}

// tryDecode runs steps 4-7 of §4.8 on already-demodulated LLRs for one
// port-count hypothesis, returning the decoded 24 MIB bits on CRC match.
func tryDecode(llrs []float64, nidCell, nPorts int) ([]int, bool) {
	descr := descramble(llrs, nidCell)
	y0, y1, y2 := rateDematch(descr)
	bits := ViterbiTailBiting(y0, y1, y2)
	if bits == nil || len(bits) != kBits {
		return nil, false
	}
	msg := bits[:24]
	crcBits := bits[24:40]

	computed := rom.CalcCRC16(msg)
	mask := crcMask(nPorts)
	for i := range computed {
		computed[i] ^= mask[i]
	}
	for i := range computed {
		if computed[i] != crcBits[i] {
			return nil, false
		}
	}
	return msg, true
}

func bitsToInt(bits []int) int {
	v := 0
	for _, b := range bits {
		v = v<<1 | b
	}
	return v
}

// unpack decodes the 24 MIB payload bits (36.331): 3-bit DL bandwidth,
// 1-bit PHICH duration, 2-bit PHICH resource, 8-bit SFN-high, 10
// spare bits.
func unpack(msg []int, g int) Result {
	bw := bitsToInt(msg[0:3])
	phichDur := msg[3]
	phichRes := bitsToInt(msg[4:6])
	sfnHigh := bitsToInt(msg[6:14])

	r := Result{
		Decoded: true,
		NRBDL:   nRBTable[bw],
		SFN:     ((sfnHigh*4 - g) % 1024 + 1024) % 1024,
	}
	if phichDur == 1 {
		r.PHICHDuration = lte.PHICHExtended
	} else {
		r.PHICHDuration = lte.PHICHNormal
	}
	r.PHICHResource = lte.PHICHResource(phichRes)
	return r
}

// Decode runs the blind MIB search of §4.8 over both the port-count
// hypotheses {1,2,4} and the frame-timing hypothesis g in {0,1,2,3}: the
// PBCH scrambling sequence spans the full 40 ms/four-radio-frame
// repetition block, so the four captured frames carry four distinct
// scrambled segments and the captured frame order must be rotated by
// the true (unknown) g before descrambling will line up with the
// transmitter's. CRC disambiguates g the same way it disambiguates
// nPorts: wrong rotations simply fail the CRC check.
func Decode(grid *tfg.Grid, ces []chanest.Estimate, cp lte.CPType, nidCell int) Result {
	nSymbDL := cp.NSymbDL()
	var rxFrames [4][]complex128
	var ceFrames [4][][]complex128
	for frame := 0; frame < 4; frame++ {
		frameOffset := frame * 20 * nSymbDL
		rxFrames[frame], ceFrames[frame] = extractFrame(grid, ces, cp, nidCell, frameOffset)
	}

	noisePow := make([]float64, len(ces))
	for i, e := range ces {
		noisePow[i] = e.NoisePow
	}

	for g := 0; g < 4; g++ {
		var rx []complex128
		var ceByPort [][]complex128
		for m := 0; m < 4; m++ {
			k := ((m-g)%4 + 4) % 4 // captured[k] holds logical frame m under hypothesis g
			rx = append(rx, rxFrames[k]...)
			if ceByPort == nil {
				ceByPort = make([][]complex128, len(ceFrames[k]))
			}
			for p := range ceFrames[k] {
				ceByPort[p] = append(ceByPort[p], ceFrames[k][p]...)
			}
		}

		for _, nPorts := range []int{1, 2, 4} {
			if nPorts > len(ceByPort) {
				continue
			}
			syms := equalize(rx, ceByPort, noisePow, nPorts)
			llrs := demodLLR(syms)
			if msg, ok := tryDecode(llrs, nidCell, nPorts); ok {
				res := unpack(msg, g)
				res.NPorts = nPorts
				return res
			}
		}
	}
	return Result{}
}
