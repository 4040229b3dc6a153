package lzms

// OffsetQueue implements the LZ recent-offset LRU queue of §4.B.4: the most
// recent N offsets, plus a one-slot "upcoming" staging field and a "prev"
// holding cell so a producer (the match finder) and a consumer (the range
// coder) can be one step out of phase without aliasing each other's view of
// "the current recent-offsets list".
type OffsetQueue struct {
	recent   []uint32
	prev     uint32
	upcoming uint32
}

// NewOffsetQueue creates a queue holding n recent offsets, with
// recent[i] initialised to i+1 per §4.B.4.
func NewOffsetQueue(n int) *OffsetQueue {
	q := &OffsetQueue{recent: make([]uint32, n)}
	for i := range q.recent {
		q.recent[i] = uint32(i + 1)
	}
	return q
}

// Recent returns the current recent-offset list, most-recently-used first.
func (q *OffsetQueue) Recent() []uint32 { return q.recent }

// Stage records the offset the producer wants to become the new
// most-recently-used entry; it does not take effect until Advance.
func (q *OffsetQueue) Stage(offset uint32) { q.upcoming = offset }

// Advance shifts prev into recent[0] (after bumping the rest down) and
// upcoming into prev, per §4.B.4's lagged-by-one-step update protocol.
func (q *OffsetQueue) Advance() {
	copy(q.recent[1:], q.recent[:len(q.recent)-1])
	q.recent[0] = q.prev
	q.prev = q.upcoming
	q.upcoming = 0
}

// DeltaPair is a (offset, power) recent-delta-match entry.
type DeltaPair struct {
	Offset uint32
	Power  uint32
}

// DeltaQueue is the delta-match counterpart of OffsetQueue (§4.B.4).
type DeltaQueue struct {
	recent   []DeltaPair
	prev     DeltaPair
	upcoming DeltaPair
}

// NewDeltaQueue creates a queue holding n recent (offset, power) pairs,
// with recent[i].Offset initialised to i+1 and Power 0.
func NewDeltaQueue(n int) *DeltaQueue {
	q := &DeltaQueue{recent: make([]DeltaPair, n)}
	for i := range q.recent {
		q.recent[i] = DeltaPair{Offset: uint32(i + 1)}
	}
	return q
}

// Recent returns the current recent (offset, power) list.
func (q *DeltaQueue) Recent() []DeltaPair { return q.recent }

// Stage records the pending entry for the next Advance.
func (q *DeltaQueue) Stage(p DeltaPair) { q.upcoming = p }

// Advance applies the same lagged update protocol as OffsetQueue.Advance.
func (q *DeltaQueue) Advance() {
	copy(q.recent[1:], q.recent[:len(q.recent)-1])
	q.recent[0] = q.prev
	q.prev = q.upcoming
	q.upcoming = DeltaPair{}
}
