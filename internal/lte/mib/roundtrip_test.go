package mib

import (
	"testing"

	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/lte/chanest"
	"github.com/openltescan/ltescan/internal/lte/rom"
	"github.com/openltescan/ltescan/internal/lte/tfg"
)

// pbchPosition is one RE's (row, col) within a captured PBCH frame block,
// in the same row/column order extractFrame visits it.
type pbchPosition struct {
	row, col int
}

// pbchPositions mirrors extractFrame's RE-selection walk (same rows, same
// CRS puncture rule) without needing a populated grid, so a test can place
// known transmit symbols at exactly the REs the decoder will later read.
func pbchPositions(cp lte.CPType, nidCell, frameOffset int) []pbchPosition {
	rows := pbchSymbolRows(cp, frameOffset)
	crsRows := map[int]bool{rows[0]: true, rows[1]: true}
	if cp == lte.CPExtended {
		crsRows[rows[0]+3] = true
	}
	var out []pbchPosition
	for _, row := range rows {
		punctured := crsRows[row]
		for j := 0; j < 72; j++ {
			n := localSubcarrierMIB(j)
			nn := n
			if nn < 0 {
				nn += 72
			}
			if punctured && nn%3 == ((nidCell%3)+3)%3 {
				continue
			}
			out = append(out, pbchPosition{row: row, col: j})
		}
	}
	return out
}

// fillRS writes port p's reference symbols for grid row with a known,
// constant channel h, using the same cinit/shift derivation as
// chanest.rawAt so EstimatePort recovers h exactly.
func fillRS(g *tfg.Grid, row, p int, h complex128) {
	nSymbDL := g.CPType.NSymbDL()
	l := row % nSymbDL
	ns := (row / nSymbDL) % 2
	cinit := rom.RSCInit(g.NIDCell, ns, l, g.CPType == lte.CPNormal)
	seq := rom.RSSequence(cinit)
	v := rom.RSFreqShift(p, ns, l, nSymbDL)
	shift := (v + g.NIDCell) % 6
	m := 0
	for j := 0; j < 72; j++ {
		n := localSubcarrierMIB(j)
		nn := n
		if nn < 0 {
			nn += 72
		}
		if (nn+36)%6 != shift {
			continue
		}
		g.Data[row][j] = h * seq[m]
		m++
	}
}

// encodeTailBiting runs the rate-1/3 tail-biting convolutional encoder
// over bits, returning the three coded-bit streams.
func encodeTailBiting(bits []int) (c0, c1, c2 []int) {
	start := uint(bitsToInt(bits[len(bits)-memory:]))
	c0 = make([]int, len(bits))
	c1 = make([]int, len(bits))
	c2 = make([]int, len(bits))
	state := start
	for i, b := range bits {
		a, bb, cc, next := encodeStep(state, b)
		c0[i], c1[i], c2[i] = a, bb, cc
		state = next
	}
	return
}

func toFloatBits(bits []int) []float64 {
	out := make([]float64, len(bits))
	for i, b := range bits {
		out[i] = float64(b)
	}
	return out
}

// TestDecodeRoundTripsSyntheticPBCHFrame builds a full synthetic PBCH
// transmission (known MIB fields, real tail-biting encode, sub-block
// interleave, scrambling, and a constant per-port channel applied through
// the real reference-signal grid) and checks that chanest.EstimatePort
// followed by Decode recovers it exactly, exercising the TFG -> chanest ->
// MIB chain end to end rather than unit-by-unit.
func TestDecodeRoundTripsSyntheticPBCHFrame(t *testing.T) {
	const nidCell = 17
	const gTrue = 2
	const h = complex(1.3, -0.6)
	cp := lte.CPNormal
	nSymbDL := cp.NSymbDL()

	msg := make([]int, 24)
	// n_rb_dl field = 2 -> 25 (nRBTable index 2).
	msg[0], msg[1], msg[2] = 0, 1, 0
	msg[3] = 1 // extended PHICH duration
	msg[4], msg[5] = 1, 0
	sfnHigh := 170
	sfnBits := []int{1, 0, 1, 0, 1, 0, 1, 0}
	copy(msg[6:14], sfnBits)

	crcBits := rom.CalcCRC16(msg)
	bits40 := append(append([]int{}, msg...), crcBits...)

	c0, c1, c2 := encodeTailBiting(bits40)
	i0 := interleave(toFloatBits(c0))
	i1 := interleave(toFloatBits(c1))
	i2 := interleave(toFloatBits(c2))
	codeword := append(append(append([]float64{}, i0...), i1...), i2...)

	const totalBits = 1920 // 4 frames * 240 REs/frame * 2 bits/RE
	txBits := make([]float64, totalBits)
	for i := range txBits {
		txBits[i] = codeword[i%len(codeword)]
	}
	txAmp := make([]float64, totalBits)
	for i, b := range txBits {
		txAmp[i] = 1 - 2*b
	}
	scrambled := descramble(txAmp, nidCell)

	nRows := 4*20*nSymbDL + 2*nSymbDL
	g := &tfg.Grid{Data: make([][]complex128, nRows), Timestamps: make([]float64, nRows), CPType: cp, NIDCell: nidCell}
	for i := range g.Data {
		g.Data[i] = make([]complex128, 72)
	}
	for row := range g.Data {
		pos := row % nSymbDL
		if pos == 0 || pos == nSymbDL-3 {
			fillRS(g, row, 0, h)
		}
	}

	for m := 0; m < 4; m++ {
		k := ((m-gTrue)%4 + 4) % 4
		frameOffset := k * 20 * nSymbDL
		positions := pbchPositions(cp, nidCell, frameOffset)
		if len(positions) != 240 {
			t.Fatalf("expected 240 PBCH REs per normal-CP frame, got %d", len(positions))
		}
		base := m * 480
		for i, p := range positions {
			sym := complex(scrambled[base+2*i], scrambled[base+2*i+1])
			g.Data[p.row][p.col] = h * sym
		}
	}

	ces := []chanest.Estimate{chanest.EstimatePort(g, 0)}
	res := Decode(g, ces, cp, nidCell)

	if !res.Decoded {
		t.Fatal("expected the synthetic PBCH frame to decode successfully")
	}
	if res.NPorts != 1 {
		t.Fatalf("NPorts = %d, want 1", res.NPorts)
	}
	if res.NRBDL != 25 {
		t.Fatalf("NRBDL = %d, want 25", res.NRBDL)
	}
	if res.PHICHDuration != lte.PHICHExtended {
		t.Fatal("expected extended PHICH duration")
	}
	if res.PHICHResource != lte.PHICHResource(2) {
		t.Fatalf("PHICHResource = %v, want 2", res.PHICHResource)
	}
	wantSFN := ((sfnHigh*4-gTrue)%1024 + 1024) % 1024
	if res.SFN != wantSFN {
		t.Fatalf("SFN = %d, want %d", res.SFN, wantSFN)
	}
}
