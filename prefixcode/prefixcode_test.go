package prefixcode

import (
	"math/rand"
	"testing"
)

func TestTrivialCode(t *testing.T) {
	// Scenario S1.
	lens := []uint8{1, 1}
	dt, err := NewDecodeTable(lens, 2, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	sym, l := dt.Lookup(0)
	if sym != 0 || l != 1 {
		t.Fatalf("Lookup(0) = (%d,%d), want (0,1)", sym, l)
	}
	sym, l = dt.Lookup(1)
	if sym != 1 || l != 1 {
		t.Fatalf("Lookup(1) = (%d,%d), want (1,1)", sym, l)
	}
}

func TestEmptyCode(t *testing.T) {
	// Scenario S2.
	lens := []uint8{0, 0, 0, 0}
	dt, err := NewDecodeTable(lens, 4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	for _, bits := range []uint32{0, 1, 0xF, 0x1234} {
		sym, l := dt.Lookup(bits & 0xF)
		if sym != 0 || l != 0 {
			t.Fatalf("Lookup(%x) = (%d,%d), want (0,0)", bits, sym, l)
		}
	}
}

func TestCanonicalLengths(t *testing.T) {
	// Scenario S3.
	freqs := []uint32{1, 1, 2, 5}
	lens, err := BuildLengths(4, 4, freqs)
	if err != nil {
		t.Fatal(err)
	}
	if !kraftEquality(lens) {
		t.Fatalf("lens %v do not satisfy Kraft equality", lens)
	}
	dt, err := NewDecodeTable(lens, 4, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	rebuilt := rebuildLens(t, dt, 4, 4)
	for s := range lens {
		if rebuilt[s] != lens[s] {
			t.Fatalf("symbol %d: decode table implies length %d, want %d", s, rebuilt[s], lens[s])
		}
	}
}

func kraftEquality(lens []uint8) bool {
	maxLen := 0
	for _, l := range lens {
		if int(l) > maxLen {
			maxLen = int(l)
		}
	}
	if maxLen == 0 {
		return true
	}
	var sum uint64
	any := false
	for _, l := range lens {
		if l == 0 {
			continue
		}
		any = true
		sum += uint64(1) << uint(maxLen-int(l))
	}
	if !any {
		return true
	}
	return sum == uint64(1)<<uint(maxLen)
}

// rebuildLens exhaustively probes every bitstring of length maxLen and
// reconstructs, for each symbol that has a nonzero length, the length
// implied by the decode table, per §8 property 2.
func rebuildLens(t *testing.T, dt *DecodeTable, numSyms, maxLen int) []uint8 {
	t.Helper()
	rebuilt := make([]uint8, numSyms)
	for bits := uint32(0); bits < uint32(1)<<uint(maxLen); bits++ {
		sym, l := dt.Lookup(bits)
		if l == 0 {
			continue
		}
		if rebuilt[sym] != 0 && rebuilt[sym] != l {
			t.Fatalf("symbol %d decodes with inconsistent lengths %d and %d", sym, rebuilt[sym], l)
		}
		rebuilt[sym] = l
	}
	return rebuilt
}

func TestRoundTripRandomAlphabets(t *testing.T) {
	sizes := []int{8, 37, 256, 1024}
	for _, n := range sizes {
		n := n
		t.Run("", func(t *testing.T) {
			rng := rand.New(rand.NewSource(int64(n)*1000 + 7))
			maxLen := 15
			if n <= 8 {
				maxLen = 4
			}
			freqs := make([]uint32, n)
			for i := range freqs {
				if rng.Intn(5) == 0 {
					continue // leave some symbols unused
				}
				freqs[i] = uint32(rng.Intn(1000) + 1)
			}
			lens, err := BuildLengths(n, maxLen, freqs)
			if err != nil {
				t.Fatal(err)
			}
			for _, l := range lens {
				if int(l) > maxLen {
					t.Fatalf("length %d exceeds max %d", l, maxLen)
				}
			}
			if !kraftEquality(lens) {
				t.Fatalf("Kraft equality violated for n=%d", n)
			}
			rootBits := maxLen
			if rootBits > 9 {
				rootBits = 9
			}
			dt, err := NewDecodeTable(lens, n, rootBits, maxLen)
			if err != nil {
				t.Fatal(err)
			}
			// Spot-check a sample of codewords via their canonical prefix
			// extended to maxLen bits (property 1), rather than the full
			// 2^maxLen sweep used for the small alphabets above.
			codewords, _ := canonicalCodewords(lens, maxLen)
			for s, l := range lens {
				if l == 0 {
					continue
				}
				prefix := reverseBits(codewords[s], int(l))
				got, gotLen := dt.Lookup(prefix)
				if got != uint16(s) || gotLen != l {
					t.Fatalf("symbol %d: Lookup(prefix)=(%d,%d), want (%d,%d)", s, got, gotLen, s, l)
				}
			}
		})
	}
}

func TestIncompleteCodeRejected(t *testing.T) {
	// One symbol of length 1 leaves half the codespace unassigned.
	lens := []uint8{1, 0}
	if _, err := NewDecodeTable(lens, 2, 1, 1); err == nil {
		t.Fatal("expected error for incomplete code")
	}
}

func TestDegenerateSingleSymbol(t *testing.T) {
	freqs := []uint32{0, 0, 7, 0}
	lens, err := BuildLengths(4, 4, freqs)
	if err != nil {
		t.Fatal(err)
	}
	if lens[2] != 1 || lens[0] != 1 {
		t.Fatalf("degenerate code lens = %v, want lens[0]=1, lens[2]=1", lens)
	}
	for s, l := range lens {
		if s != 0 && s != 2 && l != 0 {
			t.Fatalf("lens[%d] = %d, want 0", s, l)
		}
	}
}
