package wimtree

import (
	"sort"
	"strings"
)

// caseFold approximates §4.D's "compares via upper-casing tables": Go's
// stdlib has no NLS-equivalent Windows upper-casing table, so
// strings.ToUpper (Unicode simple case folding) stands in. This is a
// documented approximation, not a claim of bit-for-bit NTFS/NLS parity.
func caseFold(name string) string {
	return strings.ToUpper(name)
}

// orderedIndex is a sorted-slice ordered map name -> *Dentry. None of the
// example repos import a balanced-tree/ordered-map library (the only
// go.mod hits for one are indirect dependencies of unrelated manifests,
// never exercised by any example's own code), so this is a from-scratch
// implementation in the spirit of the codec's own hand-rolled data
// structures (prefixcode's decode tables, lzms's slot tables): O(log n)
// lookup via binary search, O(n) insert/remove via slice shift, which is
// the honest cost of "ordered map" without a real balanced tree backing
// it.
type orderedIndex struct {
	entries []indexEntry
}

type indexEntry struct {
	key string
	d   *Dentry
}

func newOrderedIndex() *orderedIndex { return &orderedIndex{} }

func (idx *orderedIndex) search(key string) (int, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= key })
	if i < len(idx.entries) && idx.entries[i].key == key {
		return i, true
	}
	return i, false
}

func (idx *orderedIndex) get(key string) (*Dentry, bool) {
	i, ok := idx.search(key)
	if !ok {
		return nil, false
	}
	return idx.entries[i].d, true
}

// insert reports (existing, false) if key is already present, or
// (nil, true) once a new entry has been inserted.
func (idx *orderedIndex) insert(key string, d *Dentry) (*Dentry, bool) {
	i, ok := idx.search(key)
	if ok {
		return idx.entries[i].d, false
	}
	idx.entries = append(idx.entries, indexEntry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = indexEntry{key: key, d: d}
	return nil, true
}

func (idx *orderedIndex) remove(key string) {
	i, ok := idx.search(key)
	if !ok {
		return
	}
	idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
}

func (idx *orderedIndex) ordered() []*Dentry {
	out := make([]*Dentry, len(idx.entries))
	for i, e := range idx.entries {
		out[i] = e.d
	}
	return out
}

// ciSlot is one case-insensitive bucket: the representative dentry
// currently exposed through the CI index, plus any other dentries whose
// names fold to the same key, in insertion order (§4.D removal:
// "promote the next collision-list member").
type ciSlot struct {
	representative *Dentry
	collisions     []*Dentry
}

type ciIndex struct {
	entries []ciIndexEntry
}

type ciIndexEntry struct {
	key  string
	slot *ciSlot
}

func newCIIndex() *ciIndex { return &ciIndex{} }

func (idx *ciIndex) search(key string) (int, bool) {
	i := sort.Search(len(idx.entries), func(i int) bool { return idx.entries[i].key >= key })
	if i < len(idx.entries) && idx.entries[i].key == key {
		return i, true
	}
	return i, false
}

func (idx *ciIndex) get(key string) (*ciSlot, bool) {
	i, ok := idx.search(key)
	if !ok {
		return nil, false
	}
	return idx.entries[i].slot, true
}

func (idx *ciIndex) insert(key string, slot *ciSlot) {
	i, ok := idx.search(key)
	if ok {
		idx.entries[i].slot = slot
		return
	}
	idx.entries = append(idx.entries, ciIndexEntry{})
	copy(idx.entries[i+1:], idx.entries[i:])
	idx.entries[i] = ciIndexEntry{key: key, slot: slot}
}

func (idx *ciIndex) remove(key string) {
	i, ok := idx.search(key)
	if !ok {
		return
	}
	idx.entries = append(idx.entries[:i], idx.entries[i+1:]...)
}
