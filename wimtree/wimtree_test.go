package wimtree

import (
	"context"
	"sync"
	"testing"

	"github.com/gowim/wim/dentry"
	"github.com/gowim/wim/wimtypes"
)

func file(name string) *dentry.Node {
	return &dentry.Node{Name: name, Inode: &dentry.Inode{}}
}

func dir(name string, children ...*dentry.Node) *dentry.Node {
	return &dentry.Node{
		Name:     name,
		Inode:    &dentry.Inode{Attr: wimtypes.AttrDirectory},
		Children: children,
	}
}

func TestFromNodeBuildsIndexes(t *testing.T) {
	root := dir("",
		file("A.txt"),
		file("a.txt"),
		dir("sub", file("inner")),
	)
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(tr.Root.Children()) != 3 {
		t.Fatalf("got %d children, want 3", len(tr.Root.Children()))
	}

	got, ok := tr.Root.Lookup("A.txt", Sensitive)
	if !ok || got.Node.Name != "A.txt" {
		t.Fatalf("sensitive lookup of A.txt failed: %v %v", got, ok)
	}
	got, ok = tr.Root.Lookup("a.txt", Sensitive)
	if !ok || got.Node.Name != "a.txt" {
		t.Fatalf("sensitive lookup of a.txt failed: %v %v", got, ok)
	}

	// Case-insensitive lookup of the exact-cased name must resolve to that
	// exact dentry even though both collide under the same CI key.
	got, ok = tr.Root.Lookup("A.txt", Insensitive)
	if !ok || got.Node.Name != "A.txt" {
		t.Fatalf("insensitive lookup of A.txt = %v, %v; want exact match", got, ok)
	}
	got, ok = tr.Root.Lookup("a.txt", Insensitive)
	if !ok || got.Node.Name != "a.txt" {
		t.Fatalf("insensitive lookup of a.txt = %v, %v; want exact match", got, ok)
	}

	// A query that matches neither collision member exactly falls back to
	// the representative (first inserted).
	got, ok = tr.Root.Lookup("A.TXT", Insensitive)
	if !ok || got.Node.Name != "A.txt" {
		t.Fatalf("ambiguous insensitive lookup = %v, %v; want representative A.txt", got, ok)
	}
}

func TestLinkRejectsCaseSensitiveDuplicate(t *testing.T) {
	root := dir("")
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	a := newDentry(file("dup"))
	b := newDentry(file("dup"))
	if err := tr.Link(tr.Root, a); err != nil {
		t.Fatal(err)
	}
	if err := tr.Link(tr.Root, b); err == nil {
		t.Fatal("expected duplicate-name error")
	}
}

func TestUnlinkPromotesCollisionListMember(t *testing.T) {
	root := dir("")
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	upper := newDentry(file("DUP"))
	lower := newDentry(file("dup"))
	if err := tr.Link(tr.Root, upper); err != nil {
		t.Fatal(err)
	}
	if err := tr.Link(tr.Root, lower); err != nil {
		t.Fatal(err)
	}

	if err := tr.Unlink(upper); err != nil {
		t.Fatal(err)
	}

	got, ok := tr.Root.Lookup("dup", Insensitive)
	if !ok || got != lower {
		t.Fatalf("after unlinking representative, CI lookup = %v, %v; want promoted %v", got, ok, lower)
	}
}

func TestResolvePath(t *testing.T) {
	root := dir("", dir("sub", file("leaf.txt")))
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	got, err := tr.Resolve("/sub/leaf.txt", Sensitive)
	if err != nil {
		t.Fatal(err)
	}
	if got.Node.Name != "leaf.txt" {
		t.Fatalf("resolved %q, want leaf.txt", got.Node.Name)
	}
	if got.FullPath() != "/sub/leaf.txt" {
		t.Fatalf("FullPath = %q, want /sub/leaf.txt", got.FullPath())
	}

	if _, err := tr.Resolve("/sub/leaf.txt/nope", Sensitive); err != ErrNotDirectory {
		t.Fatalf("expected ErrNotDirectory walking through a file, got %v", err)
	}
	if _, err := tr.Resolve("/nope", Sensitive); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWalkPreOrderCaseSensitiveChildOrder(t *testing.T) {
	root := dir("", file("b"), file("a"), file("c"))
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := tr.Walk(func(d *Dentry) error {
		names = append(names, d.Node.Name)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []string{"", "a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestWalkPostOrderChildrenBeforeParent(t *testing.T) {
	root := dir("", dir("sub", file("a"), file("b")), file("top"))
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	if err := tr.WalkPost(func(d *Dentry) error {
		names = append(names, d.Node.Name)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "b", "sub", "top", ""}
	if len(names) != len(want) {
		t.Fatalf("got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("got %v, want %v", names, want)
		}
	}
}

func TestWalkConcurrentVisitsEveryDentry(t *testing.T) {
	root := dir("",
		dir("sub1", file("x"), file("y")),
		dir("sub2", file("z")),
		file("top"),
	)
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	var mu sync.Mutex
	count := 0
	err = tr.WalkConcurrent(context.Background(), func(d *Dentry) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	const want = 7 // root, sub1, x, y, sub2, z, top
	if count != want {
		t.Fatalf("visited %d dentries, want %d", count, want)
	}
}

// TestToNodeRoundTripsThroughResourceBuilder exercises the write-side
// bridge end to end: Tree -> ToNode -> dentry.NewResourceBuilder().Emit ->
// dentry.Parse -> FromNode, checking the rebuilt tree matches the
// original shape, including a named stream carried through the dentry
// codec rather than the tree layer itself.
func TestToNodeRoundTripsThroughResourceBuilder(t *testing.T) {
	adsFile := &dentry.Node{
		Name: "withads",
		Inode: &dentry.Inode{
			Streams: []wimtypes.Stream{
				{Type: wimtypes.StreamData},
				{Type: wimtypes.StreamData, Name: "ads"},
			},
		},
	}
	root := dir("", dir("sub", adsFile), file("top"), file("A.txt"))
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}

	buf, err := dentry.NewResourceBuilder().Emit(tr.ToNode())
	if err != nil {
		t.Fatalf("Emit(ToNode()): %v", err)
	}

	reparsed, err := dentry.Parse(buf, 0)
	if err != nil {
		t.Fatalf("Parse(Emit(ToNode())): %v", err)
	}
	got, err := FromNode(reparsed)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Root.Children()) != 3 {
		t.Fatalf("root has %d children after round trip, want 3", len(got.Root.Children()))
	}
	sub, ok := got.Root.Lookup("sub", Sensitive)
	if !ok || !sub.IsDir() {
		t.Fatalf("sub missing or not a directory after round trip: %v %v", sub, ok)
	}
	if len(sub.Children()) != 1 {
		t.Fatalf("sub has %d children after round trip, want 1", len(sub.Children()))
	}
	withads := sub.Children()[0]
	if withads.Node.Name != "withads" {
		t.Fatalf("sub's child = %q, want withads", withads.Node.Name)
	}
	if len(withads.Node.Inode.Streams) != 2 {
		t.Fatalf("withads has %d streams after round trip, want 2", len(withads.Node.Inode.Streams))
	}
	var sawNamed bool
	for _, s := range withads.Node.Inode.Streams {
		if s.Name == "ads" {
			sawNamed = true
		}
	}
	if !sawNamed {
		t.Fatalf("named stream %q did not survive the round trip, streams=%v", "ads", withads.Node.Inode.Streams)
	}

	if _, ok := got.Root.Lookup("top", Sensitive); !ok {
		t.Fatal("top missing after round trip")
	}
	if _, ok := got.Root.Lookup("A.txt", Sensitive); !ok {
		t.Fatal("A.txt missing after round trip")
	}
}

func TestVerifyAcyclicAcceptsParsedTree(t *testing.T) {
	root := dir("", dir("sub", file("leaf")))
	tr, err := FromNode(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := VerifyAcyclic(tr); err != nil {
		t.Fatalf("unexpected cycle error on acyclic tree: %v", err)
	}
}
