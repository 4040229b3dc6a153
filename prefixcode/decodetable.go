package prefixcode

import (
	"fmt"
	"sort"
)

// DecodeTable is a fully initialised two-level canonical-prefix-code decode
// table (§4.A.2, §4.A.3). Internally it is a root region plus zero or more
// subtables; the bit-level packing the source spec describes ("an array of
// 16-bit entries") is not observable outside Lookup, so it is kept as plain
// Go structs rather than hand-packed bitfields — callers never see raw
// entries.
type DecodeTable struct {
	rootBits int
	maxLen   int
	root     []tableEntry
	subs     [][]tableEntry
}

type tableEntry struct {
	symbol    uint16
	length    uint8 // total bits consumed, including any root-region bits
	isPointer bool
	subIdx    int
	subBits   uint8
}

// ErrInvalidCode is returned when lens does not describe a valid prefix
// code: a complete one, or an empty one (no symbol has a nonzero length).
var ErrInvalidCode = fmt.Errorf("prefixcode: lengths do not form a valid prefix code")

// NewDecodeTable implements §4.A.2. rootBits must be <= maxLen.
func NewDecodeTable(lens []uint8, numSyms int, rootBits int, maxLen int) (*DecodeTable, error) {
	if rootBits < 1 || rootBits > maxLen || maxLen > 16 {
		return nil, fmt.Errorf("prefixcode: invalid root_bits=%d max_codeword_len=%d", rootBits, maxLen)
	}
	if len(lens) != numSyms {
		return nil, fmt.Errorf("prefixcode: lens has %d entries, want %d", len(lens), numSyms)
	}

	lenCounts := make([]int, maxLen+2)
	for _, l := range lens {
		if int(l) > maxLen {
			return nil, fmt.Errorf("prefixcode: length %d exceeds max_codeword_len %d", l, maxLen)
		}
		if l > 0 {
			lenCounts[l]++
		}
	}

	remainder := int64(1)
	for l := 1; l <= maxLen; l++ {
		remainder = 2*remainder - int64(lenCounts[l])
		if remainder < 0 {
			return nil, ErrInvalidCode
		}
	}

	dt := &DecodeTable{rootBits: rootBits, maxLen: maxLen}
	dt.root = make([]tableEntry, 1<<uint(rootBits))

	if remainder == int64(1)<<uint(maxLen) {
		// Empty code: the whole table decodes to (symbol 0, length 0).
		return dt, nil
	}
	if remainder != 0 {
		return nil, ErrInvalidCode
	}

	type sym struct {
		id  uint16
		len uint8
	}
	var syms []sym
	for s, l := range lens {
		if l > 0 {
			syms = append(syms, sym{id: uint16(s), len: l})
		}
	}
	sort.Slice(syms, func(i, j int) bool {
		if syms[i].len != syms[j].len {
			return syms[i].len < syms[j].len
		}
		return syms[i].id < syms[j].id
	})

	lensOnly := make([]uint8, numSyms)
	copy(lensOnly, lens)
	codewords, _ := canonicalCodewords(lensOnly, maxLen)

	// Root region (§4.A.2 step 2): for every symbol with length <=
	// root_bits, write 2^(root_bits-L) copies. Entries are addressed by the
	// bit-reversal of the canonical codeword, the standard trick that lets
	// Lookup consume raw LSB-first bitstream bits directly.
	for _, s := range syms {
		if int(s.len) > rootBits {
			continue
		}
		rev := reverseBits(codewords[s.id], int(s.len))
		stride := uint32(1) << uint(s.len)
		for idx := rev; idx < uint32(len(dt.root)); idx += stride {
			dt.root[idx] = tableEntry{symbol: s.id, length: s.len}
		}
	}

	// Subtables (§4.A.2 steps 4-6), grouped by the root-bits prefix shared
	// by all subtable members.
	i := 0
	for i < len(syms) && int(syms[i].len) <= rootBits {
		i++
	}
	for i < len(syms) {
		groupStart := i
		rev0 := reverseBits(codewords[syms[i].id], int(syms[i].len))
		prefix := rev0 & ((1 << uint(rootBits)) - 1)
		maxL := syms[i].len
		j := i + 1
		for j < len(syms) {
			rev := reverseBits(codewords[syms[j].id], int(syms[j].len))
			if rev&((1<<uint(rootBits))-1) != prefix {
				break
			}
			if syms[j].len > maxL {
				maxL = syms[j].len
			}
			j++
		}

		subBits := int(maxL) - rootBits
		sub := make([]tableEntry, 1<<uint(subBits))
		for k := groupStart; k < j; k++ {
			s := syms[k]
			rev := reverseBits(codewords[s.id], int(s.len))
			subIdx := (rev >> uint(rootBits)) & ((1 << uint(subBits)) - 1)
			stride := uint32(1) << uint(int(s.len)-rootBits)
			for idx := subIdx; idx < uint32(len(sub)); idx += stride {
				sub[idx] = tableEntry{symbol: s.id, length: s.len}
			}
		}

		dt.subs = append(dt.subs, sub)
		dt.root[prefix] = tableEntry{isPointer: true, subIdx: len(dt.subs) - 1, subBits: uint8(subBits)}

		i = j
	}

	return dt, nil
}

// Lookup decodes the next codeword from bits, the next max_codeword_len
// bits of input with bit 0 being the next bit the bitstream would yield.
// It returns the decoded symbol and the number of bits it consumed. For an
// empty code (no symbols assigned), it always returns (0, 0).
func (dt *DecodeTable) Lookup(bits uint32) (symbol uint16, length uint8) {
	e := dt.root[bits&((1<<uint(dt.rootBits))-1)]
	if !e.isPointer {
		return e.symbol, e.length
	}
	sub := dt.subs[e.subIdx]
	idx := (bits >> uint(dt.rootBits)) & ((1 << uint(e.subBits)) - 1)
	e2 := sub[idx]
	return e2.symbol, e2.length
}

// reverseBits reverses the low n bits of v.
func reverseBits(v uint32, n int) uint32 {
	var r uint32
	for i := 0; i < n; i++ {
		r = (r << 1) | (v & 1)
		v >>= 1
	}
	return r
}
