package dentry

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/gowim/wim/wimtypes"
)

func mustHash(b byte) wimtypes.Hash {
	var h wimtypes.Hash
	h[0] = b
	return h
}

func newFileNode(name string, hash wimtypes.Hash) *Node {
	return &Node{
		Name: name,
		Inode: &Inode{
			Attr:   0,
			Hash:   hash,
			LinkID: 0,
			Streams: []wimtypes.Stream{
				{Type: wimtypes.StreamData, Hash: hash},
			},
		},
	}
}

func newDirNode(name string, children ...*Node) *Node {
	return &Node{
		Name: name,
		Inode: &Inode{
			Attr: wimtypes.AttrDirectory,
		},
		Children: children,
	}
}

// TestRoundTripScenarioS5 mirrors §8's S5: a root containing two
// case-colliding files and a subdirectory with one named-stream file.
func TestRoundTripScenarioS5(t *testing.T) {
	adsFile := &Node{
		Name: "withads",
		Inode: &Inode{
			Attr: 0,
			Hash: mustHash(1),
			Streams: []wimtypes.Stream{
				{Type: wimtypes.StreamData, Hash: mustHash(1)},
				{Type: wimtypes.StreamData, Name: "ads", Hash: mustHash(2)},
			},
		},
	}
	sub := newDirNode("sub", adsFile)
	upperA := newFileNode("A.txt", mustHash(3))
	lowerA := newFileNode("a.txt", mustHash(4))
	root := newDirNode("", upperA, lowerA, sub)

	buf, err := NewResourceBuilder().Emit(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Parse(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "" {
		t.Fatalf("root name = %q, want empty", got.Name)
	}
	if len(got.Children) != 3 {
		t.Fatalf("root has %d children, want 3", len(got.Children))
	}

	byName := map[string]*Node{}
	for _, c := range got.Children {
		byName[c.Name] = c
	}
	if byName["A.txt"] == nil || byName["a.txt"] == nil || byName["sub"] == nil {
		t.Fatalf("missing expected children, got names %v", keysOf(byName))
	}
	if !byName["A.txt"].Inode.Hash.IsZero() && byName["A.txt"].Inode.Hash != mustHash(3) {
		t.Fatalf("A.txt hash = %v, want %v", byName["A.txt"].Inode.Hash, mustHash(3))
	}

	subGot := byName["sub"]
	if len(subGot.Children) != 1 {
		t.Fatalf("sub has %d children, want 1", len(subGot.Children))
	}
	adsGot := subGot.Children[0]
	if len(adsGot.Inode.Streams) != 2 {
		t.Fatalf("withads has %d streams, want 2", len(adsGot.Inode.Streams))
	}
	var sawNamed, sawUnnamed bool
	for _, s := range adsGot.Inode.Streams {
		if s.Name == "ads" {
			sawNamed = true
			if s.Type != wimtypes.StreamData {
				t.Errorf("named stream type = %v, want DATA", s.Type)
			}
		}
		if s.Name == "" {
			sawUnnamed = true
		}
	}
	if !sawNamed || !sawUnnamed {
		t.Fatalf("expected both a named and unnamed stream, streams=%v", adsGot.Inode.Streams)
	}
}

func keysOf(m map[string]*Node) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestCaseSensitiveCollisionDropsLater(t *testing.T) {
	root := newDirNode("", newFileNode("dup", mustHash(1)), newFileNode("dup", mustHash(2)))
	buf, err := NewResourceBuilder().Emit(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Children) != 1 {
		t.Fatalf("got %d children, want 1 (duplicate dropped)", len(got.Children))
	}
	if got.Children[0].Inode.Hash != mustHash(1) {
		t.Fatalf("surviving child has hash %v, want first-seen %v", got.Children[0].Inode.Hash, mustHash(1))
	}
}

// TestCycleRejected builds, by hand at the byte level (the codec's own
// emitter cannot produce a cyclic tree, since Go's *Node graph it walks
// would itself have to be cyclic to ask for one), a root whose only child
// is a directory "sub" whose subdir_offset points back at the sibling-list
// offset "sub" itself occupies — a one-level self-cycle (§8 property 10).
func TestCycleRejected(t *testing.T) {
	const (
		rootTerminatorOff = 104 // immediately after the root's own record
		subOff            = 112 // root's children list starts here
	)
	buf := make([]byte, 512)
	writeDirEntryAt(buf, 0, "", subOff) // root; its own sibling list ends at rootTerminatorOff
	// rootTerminatorOff..+8 stays zero: the 8-byte terminator for root's
	// (singleton) sibling list.
	writeDirEntryAt(buf, subOff, "sub", subOff) // "sub"'s children == its own sibling-list offset

	_, err := Parse(buf, 0)
	if err == nil {
		t.Fatal("expected cycle to be rejected")
	}
}

// writeDirEntryAt writes a single minimal directory dentry record (no
// streams, no extra items) at off, with the given name and subdir_offset.
// It writes nothing after the record; in a fresh zeroed buffer the next 8
// bytes read as a terminator.
func writeDirEntryAt(buf []byte, off int64, name string, subdirOffset int64) {
	put64 := func(at int64, v int64) {
		for i := 0; i < 8; i++ {
			buf[at+int64(i)] = byte(uint64(v) >> (8 * i))
		}
	}
	put32 := func(at int64, v uint32) {
		for i := 0; i < 4; i++ {
			buf[at+int64(i)] = byte(v >> (8 * i))
		}
	}
	put16 := func(at int64, v uint16) {
		buf[at] = byte(v)
		buf[at+1] = byte(v >> 8)
	}

	nameBytes := encodeUTF16LE(name)
	nameFieldLen := 0
	if len(nameBytes) > 0 {
		nameFieldLen = len(nameBytes) + 2
	}
	length := alignUp8(direntryFixedSize + int64(nameFieldLen))

	put64(off, length)
	put32(off+8, uint32(wimtypes.AttrDirectory))
	put32(off+12, 0xffffffff) // security id = none
	put64(off+16, subdirOffset)
	// 24..40 reserved, 40..64 timestamps, 64..84 hash: left zero.
	// 84..96 hard-link union: left zero.
	put16(off+96, 0)                      // numExtra
	put16(off+98, 0)                      // shortNameLen
	put16(off+100, uint16(len(nameBytes))) // longNameLen
	if len(nameBytes) > 0 {
		copy(buf[off+102:], nameBytes)
	}
	// terminator for this entry's own (empty) child list, at length-aligned
	// offset == subdirOffset when this node is itself the cycle target;
	// callers that need a non-cyclic child list write it separately.
}

func TestDegenerateEmptyRoot(t *testing.T) {
	buf := make([]byte, 8) // a single terminator
	got, err := Parse(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("got %v, want nil for an empty root", got)
	}
}

func TestTimestampsSurviveRoundTrip(t *testing.T) {
	want := time.Date(2021, 6, 15, 12, 30, 0, 0, time.UTC)
	f := newFileNode("stamped", mustHash(1))
	f.Inode.CreationTime = wimtypes.FileTimeFromTime(want)
	f.Inode.WriteTime = wimtypes.FileTimeFromTime(want)
	root := newDirNode("", f)

	buf, err := NewResourceBuilder().Emit(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Parse(buf, 0)
	if err != nil {
		t.Fatal(err)
	}
	gotTime := got.Children[0].Inode.WriteTime.Time()
	if !gotTime.Equal(want) {
		t.Fatalf("WriteTime round-tripped to %v, want %v", gotTime, want)
	}
}

func TestGoCmpIgnoresUnexportedOffsets(t *testing.T) {
	a := newFileNode("x", mustHash(1))
	b := newFileNode("x", mustHash(1))
	if diff := cmp.Diff(a, b, cmpopts.IgnoreUnexported(Node{})); diff != "" {
		t.Fatalf("unexpected diff (-a +b):\n%s", diff)
	}
}
