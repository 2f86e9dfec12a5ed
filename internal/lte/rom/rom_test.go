package rom

import (
	"math"
	"math/cmplx"
	"testing"

	"pgregory.net/rapid"
)

func TestCalcCRC16KnownZero(t *testing.T) {
	bits := make([]int, 40)
	crc := CalcCRC16(bits)
	for i, b := range crc {
		if b != 0 {
			t.Fatalf("CRC of all-zero message should be zero, bit %d = %d", i, b)
		}
	}
}

func TestCalcCRC16Deterministic(t *testing.T) {
	bits := []int{1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 0, 1}
	a := CalcCRC16(bits)
	b := CalcCRC16(bits)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("CalcCRC16 not deterministic at bit %d", i)
		}
	}
}

func TestCalcCRC16SensitiveToSingleBitFlip(t *testing.T) {
	bits := []int{1, 0, 1, 1, 0, 0, 1, 1, 0, 1, 0, 0, 1, 0, 1, 1, 0, 0, 0, 1}
	base := CalcCRC16(bits)
	flipped := append([]int{}, bits...)
	flipped[3] ^= 1
	alt := CalcCRC16(flipped)
	same := true
	for i := range base {
		if base[i] != alt[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected CRC to change after a single-bit flip")
	}
}

func TestCalcCRC16PropertyLength16(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		bits := make([]int, n)
		for i := range bits {
			bits[i] = rapid.IntRange(0, 1).Draw(t, "bit")
		}
		crc := CalcCRC16(bits)
		if len(crc) != 16 {
			t.Fatalf("expected 16-bit CRC, got %d bits", len(crc))
		}
		for _, b := range crc {
			if b != 0 && b != 1 {
				t.Fatalf("CRC bit out of {0,1}: %d", b)
			}
		}
	})
}

func TestPNSequenceIsBinary(t *testing.T) {
	seq := PNSequence(42, 256)
	if len(seq) != 256 {
		t.Fatalf("expected length 256, got %d", len(seq))
	}
}

func TestPSSTDLengthAndUnitMagnitude(t *testing.T) {
	for nID2 := 0; nID2 < 3; nID2++ {
		td := PSSTD(nID2)
		if len(td) != 137 {
			t.Fatalf("n_id_2=%d: expected 137-sample template, got %d", nID2, len(td))
		}
		for i, v := range td {
			mag := cmplx.Abs(v)
			if mag < 0.5 || mag > 1.5 {
				t.Fatalf("n_id_2=%d sample %d: expected roughly unit magnitude, got %v", nID2, i, mag)
			}
		}
	}
}

func TestPSSTDCyclicPrefixMatchesTail(t *testing.T) {
	for nID2 := 0; nID2 < 3; nID2++ {
		td := PSSTD(nID2)
		for i := 0; i < 9; i++ {
			if td[i] != td[128+i] {
				t.Fatalf("n_id_2=%d: cyclic prefix sample %d does not match symbol tail", nID2, i)
			}
		}
	}
}

func TestPSSDistinctRootsAreDifferent(t *testing.T) {
	a := PSSFD(0)
	b := PSSFD(1)
	var diff float64
	for i := range a {
		d := a[i] - b[i]
		diff += real(d)*real(d) + imag(d)*imag(d)
	}
	if diff < 1 {
		t.Fatalf("expected distinct PSS roots to differ substantially, got energy %v", diff)
	}
}

func TestSSSFDLength(t *testing.T) {
	fd := SSSFD(25, 1, false)
	if len(fd) != 62 {
		t.Fatalf("expected 62-subcarrier SSS, got %d", len(fd))
	}
	for _, v := range fd {
		if cmplx.Abs(v) == 0 {
			t.Fatal("SSS subcarrier unexpectedly zero")
		}
	}
}

func TestSSSFDFirstSecondHalfDiffer(t *testing.T) {
	a := SSSFD(25, 1, false)
	b := SSSFD(25, 1, true)
	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatal("expected subframe-0 and subframe-5 SSS mappings to differ")
	}
}

func TestRSSequenceUnitMagnitude(t *testing.T) {
	cinit := RSCInit(25, 0, 0, true)
	seq := RSSequence(cinit)
	for i, v := range seq {
		if math.Abs(cmplx.Abs(v)-1) > 1e-9 {
			t.Fatalf("RS symbol %d: expected unit magnitude QPSK, got %v", i, cmplx.Abs(v))
		}
	}
}

func TestRSFreqShiftWithinCombPeriod(t *testing.T) {
	for p := 0; p < 4; p++ {
		v := RSFreqShift(p, 0, 0, 7)
		if v < 0 || v >= 6 {
			t.Fatalf("port %d: comb shift %d outside [0,6)", p, v)
		}
	}
}
