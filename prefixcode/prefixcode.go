// Package prefixcode builds canonical prefix (Huffman) codes on the encoder
// side and decode tables on the decoder side, for the small bounded
// alphabets XPRESS and LZX use (≤ 1024 symbols, codeword lengths up to 16
// bits). Only the shared code-construction utilities are implemented here;
// the bitstream readers and entropy coders that consume them are external
// collaborators.
//
// The tree-construction step follows the classic two-queue, in-place
// Huffman-tree algorithm (sorted leaves merged against a FIFO of
// already-produced internal nodes), with ties broken in favor of the leaf
// stream as real-world codecs require for solid-format compatibility.
// Length limiting uses the simple "redistribute the overflow" heuristic
// also found in zlib's gen_bitlen: it is not optimal, but it is adequate
// for alphabets this small, matching the source material's own tradeoff.
package prefixcode

import (
	"fmt"
	"sort"
)

// MaxSymbols bounds num_syms for BuildLengths, matching the XPRESS/LZX
// alphabets this package targets.
const MaxSymbols = 1024

type sortedLeaf struct {
	freq uint64
	sym  uint16
}

// BuildLengths implements §4.A.1: given per-symbol frequencies, produce a
// canonical set of codeword lengths no longer than maxLen. lens[s] is 0 for
// any symbol with freqs[s] == 0.
func BuildLengths(numSyms int, maxLen int, freqs []uint32) ([]uint8, error) {
	if numSyms < 2 || numSyms > MaxSymbols {
		return nil, fmt.Errorf("prefixcode: num_syms %d out of range [2,%d]", numSyms, MaxSymbols)
	}
	if len(freqs) != numSyms {
		return nil, fmt.Errorf("prefixcode: freqs has %d entries, want %d", len(freqs), numSyms)
	}
	if maxLen < 1 || maxLen > 16 {
		return nil, fmt.Errorf("prefixcode: max_codeword_len %d out of range [1,16]", maxLen)
	}

	lens := make([]uint8, numSyms)

	var used []sortedLeaf
	for s := 0; s < numSyms; s++ {
		if freqs[s] > 0 {
			used = append(used, sortedLeaf{freq: uint64(freqs[s]), sym: uint16(s)})
		}
	}

	switch len(used) {
	case 0:
		return lens, nil
	case 1:
		// Degenerate two-codeword code (§4.A.1 step 2): pair the single
		// used symbol with the smallest other symbol id so canonical
		// decoding still has two one-bit codewords.
		dummy := uint16(0)
		if used[0].sym == 0 {
			dummy = 1
		}
		lens[dummy] = 1
		lens[used[0].sym] = 1
		return lens, nil
	}

	sort.Slice(used, func(i, j int) bool {
		if used[i].freq != used[j].freq {
			return used[i].freq < used[j].freq
		}
		return used[i].sym < used[j].sym
	})

	n := len(used)
	depth := buildStrippedTree(used)
	lenCounts := depthsToLengthCounts(depth, maxLen)

	// Step 5: hand lengths out in descending order, longest to the
	// lowest-frequency (first, since `used` is frequency-ascending) symbol.
	assigned := make([]uint8, 0, n)
	for l := len(lenCounts) - 1; l >= 1; l-- {
		for k := 0; k < lenCounts[l]; k++ {
			assigned = append(assigned, uint8(l))
		}
	}
	if len(assigned) != n {
		return nil, fmt.Errorf("prefixcode: internal error, assigned %d lengths for %d symbols", len(assigned), n)
	}
	for i, l := range assigned {
		lens[used[i].sym] = l
	}
	return lens, nil
}

// buildStrippedTree implements §4.A.1 step 3: the in-place, two-stream
// Huffman tree build over leaves already sorted ascending by (freq, sym).
// It returns, for each leaf i, its depth in the resulting tree before any
// length limiting is applied.
func buildStrippedTree(used []sortedLeaf) []int {
	n := len(used)
	if n == 1 {
		return []int{0}
	}

	total := 2*n - 1
	weight := make([]uint64, total)
	parent := make([]int, total)
	for i := range parent {
		parent[i] = -1
	}
	for i, l := range used {
		weight[i] = l.freq
	}

	leafPtr := 0
	internalConsume := 0 // index into the FIFO of produced internals, 0-based
	producedInternals := 0

	selectMin := func() int {
		// Tie-break: a leaf and an internal of equal weight picks the leaf.
		if leafPtr < n {
			if internalConsume >= producedInternals || weight[leafPtr] <= weight[n+internalConsume] {
				idx := leafPtr
				leafPtr++
				return idx
			}
		}
		idx := n + internalConsume
		internalConsume++
		return idx
	}

	for i := 0; i < n-1; i++ {
		a := selectMin()
		b := selectMin()
		newIdx := n + i
		weight[newIdx] = weight[a] + weight[b]
		parent[a] = newIdx
		parent[b] = newIdx
		producedInternals++
	}

	root := total - 1
	depth := make([]int, total)
	depth[root] = 0
	for i := root - 1; i >= 0; i-- {
		depth[i] = depth[parent[i]] + 1
	}
	return depth[:n]
}

// depthsToLengthCounts builds a histogram lenCounts[1..maxLen] of leaf
// depths, applying the simple overflow-redistribution length-limiting
// policy of §4.A.1 step 4 when a depth exceeds maxLen.
func depthsToLengthCounts(depth []int, maxLen int) []int {
	maxObserved := maxLen
	for _, d := range depth {
		if d > maxObserved {
			maxObserved = d
		}
	}
	counts := make([]int, maxObserved+1)
	for _, d := range depth {
		counts[d]++
	}

	overflow := 0
	for l := maxObserved; l > maxLen; l-- {
		overflow += counts[l]
		counts[l] = 0
	}
	counts = counts[:maxLen+1]
	counts[maxLen] += overflow

	remaining := overflow
	for remaining > 0 {
		l := maxLen - 1
		for l >= 1 && counts[l] == 0 {
			l--
		}
		if l < 1 {
			// Cannot redistribute further; leave the code as-is (caller's
			// frequencies were pathological for this maxLen).
			break
		}
		counts[l]--
		counts[l+1] += 2
		counts[maxLen]--
		remaining -= 2
	}
	return counts
}

// canonicalCodewords computes the canonical MSB-first codeword for each
// symbol with lens[s] > 0, per §4.A.1 step 5 / §4.A.2's next_codewords
// recurrence. Symbols sharing a length receive codewords in ascending
// symbol-id order.
func canonicalCodewords(lens []uint8, maxLen int) (codewords []uint32, lenCounts []int) {
	lenCounts = make([]int, maxLen+2)
	for _, l := range lens {
		if l > 0 {
			lenCounts[l]++
		}
	}
	nextCode := make([]uint32, maxLen+2)
	nextCode[1] = 0
	for l := 2; l <= maxLen; l++ {
		nextCode[l] = (nextCode[l-1] + uint32(lenCounts[l-1])) << 1
	}
	codewords = make([]uint32, len(lens))
	for s, l := range lens {
		if l == 0 {
			continue
		}
		codewords[s] = nextCode[l]
		nextCode[l]++
	}
	return codewords, lenCounts
}

// Codewords returns the canonical MSB-first codeword for every symbol with
// lens[s] > 0 (§8 property 2's "lens -> canonical codewords" step).
func Codewords(lens []uint8, maxLen int) []uint32 {
	cw, _ := canonicalCodewords(lens, maxLen)
	return cw
}
