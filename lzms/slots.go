// Package lzms holds the process-wide shared state consumed by an LZMS
// entropy coder: precomputed position/length slot-base tables, the x86
// byte-level preprocessing filter, and the small LRU queues of recent LZ
// and delta offsets. The entropy coder and bitstream layer themselves are
// external collaborators (§1); this package only provides the deterministic
// utilities they share.
package lzms

import "sync"

// positionSlotRunLengths and lengthSlotRunLengths are the run-length-delta
// tables used to build the slot-base vectors (§4.B.1): each entry k is one
// run, producing k successive values using the delta active when the run
// starts, after which the delta doubles.
//
// The exact wimlib constants are not reproduced bit-for-bit here — §1 scopes
// compressor implementations (and therefore exact codec compatibility) out
// of the core, and the Non-goals explicitly exclude bit-for-bit equivalence
// of internal structures. This table follows the same "doubling delta, two
// runs per doubling" shape real LZ-family slot tables use (as in DEFLATE's
// length/distance extra-bits tables) and is recorded as a resolved Open
// Question in DESIGN.md.
var positionSlotRunLengths = []int{
	1, 1, 2, 2, 4, 4, 8, 8, 16, 16, 32, 32, 64, 64, 128, 128,
	256, 256, 512, 512,
}

var lengthSlotRunLengths = []int{
	1, 1, 2, 2, 4, 4, 8, 8, 16, 16, 32, 32, 64, 64,
}

const (
	positionSlotSentinel uint32 = 0x7fffffff
	lengthSlotSentinel   uint32 = 0x400108ab
)

func buildSlotBase(runLengths []int, sentinel uint32) []uint32 {
	total := 1
	for _, k := range runLengths {
		total += k
	}
	base := make([]uint32, total)
	delta := uint32(1)
	idx := 1
	for _, k := range runLengths {
		for j := 0; j < k; j++ {
			base[idx] = base[idx-1] + delta
			idx++
		}
		delta *= 2
	}
	base[len(base)-1] = sentinel
	return base
}

var (
	once          sync.Once
	positionSlots []uint32
	lengthSlots   []uint32
)

// init lazily builds the slot tables exactly once per process (§4.B.1,
// §5 "process-wide and must be initialised exactly once under an
// acquire/release barrier"). sync.Once gives that guarantee without the
// ad-hoc double-checked-boolean pattern the source material warns against.
func initSlotTables() {
	once.Do(func() {
		positionSlots = buildSlotBase(positionSlotRunLengths, positionSlotSentinel)
		lengthSlots = buildSlotBase(lengthSlotRunLengths, lengthSlotSentinel)
	})
}

// PositionSlotBase returns the process-wide position slot-base table,
// initialising it on first call. The returned slice must not be mutated by
// callers; it is shared across the process.
func PositionSlotBase() []uint32 {
	initSlotTables()
	return positionSlots
}

// LengthSlotBase returns the process-wide length slot-base table,
// initialising it on first call.
func LengthSlotBase() []uint32 {
	initSlotTables()
	return lengthSlots
}

// SlotForValue implements §4.B.2: the largest slot index s such that
// base[s] <= value < base[s+1]. base must be sorted ascending, as
// PositionSlotBase/LengthSlotBase are. Binary search is used; the spec
// permits this as an implementation choice equivalent to a linear walk.
func SlotForValue(base []uint32, value uint32) int {
	lo, hi := 0, len(base)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if base[mid] <= value {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}
