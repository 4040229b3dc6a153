// Package wimtree is the in-memory dual-indexed directory tree over a
// dentry.Node graph (§4.D). Package dentry owns the on-disk byte layout;
// this package owns the case-sensitive and case-insensitive ordered
// indexes, link/unlink, path resolution and traversal that make the parsed
// graph usable as a filesystem-shaped structure.
package wimtree

import (
	"runtime"
	"sync"

	"golang.org/x/xerrors"

	"github.com/gowim/wim/dentry"
)

// Warnings receives non-fatal anomaly reports, the same sink dentry.Parse
// accepts.
type Warnings = dentry.Warnings

// CaseSensitivity selects how a lookup or path-resolution call compares
// names (§4.D "Global case policy").
type CaseSensitivity int

const (
	// PlatformDefault defers to the tree's configured default, which in
	// turn defers to the process-wide default.
	PlatformDefault CaseSensitivity = iota
	Sensitive
	Insensitive
)

func (cs CaseSensitivity) String() string {
	switch cs {
	case Sensitive:
		return "SENSITIVE"
	case Insensitive:
		return "INSENSITIVE"
	default:
		return "PLATFORM_DEFAULT"
	}
}

var (
	defaultCaseSensitivity = platformDefaultCaseSensitivity()
	defaultOnce            sync.Once
)

func platformDefaultCaseSensitivity() CaseSensitivity {
	if runtime.GOOS == "windows" {
		return Insensitive
	}
	return Sensitive
}

// SetDefaultCaseSensitivity overrides the process-wide default case
// policy. Per §5 it is "a process-wide immutable-after-init datum set only
// during global library init": the first call wins, and it must happen
// before any Tree is built.
func SetDefaultCaseSensitivity(cs CaseSensitivity) {
	defaultOnce.Do(func() { defaultCaseSensitivity = cs })
}

func resolveCaseSensitivity(perCall, perTree CaseSensitivity) CaseSensitivity {
	if perCall != PlatformDefault {
		return perCall
	}
	if perTree != PlatformDefault {
		return perTree
	}
	return defaultCaseSensitivity
}

var nopWarnings = discardWarnings{}

type discardWarnings struct{}

func (discardWarnings) Warnf(string, ...interface{}) {}

// Errors returned by Link, Unlink and path resolution. These are the
// "errno-style discrimination" sentinels §4.D and the external-caller
// concern in §7 describe.
var (
	ErrNotDirectory     = xerrors.New("wimtree: not a directory")
	ErrNotFound         = xerrors.New("wimtree: not found")
	ErrDuplicateName    = xerrors.New("wimtree: duplicate name")
	ErrCannotUnlinkRoot = xerrors.New("wimtree: cannot unlink root")
)

// Dentry is a tree member: a named link to a dentry.Node, with parent
// pointer and (for directories) the case-sensitive/case-insensitive child
// indexes §4.D specifies.
type Dentry struct {
	Node   *dentry.Node
	Parent *Dentry

	tree *Tree
	cs   *orderedIndex
	ci   *ciIndex
}

func newDentry(n *dentry.Node) *Dentry {
	d := &Dentry{Node: n}
	if n.Inode != nil && n.Inode.Attr.IsDir() {
		d.cs = newOrderedIndex()
		d.ci = newCIIndex()
	}
	return d
}

// IsDir reports whether d carries the directory child indexes.
func (d *Dentry) IsDir() bool { return d.cs != nil }

// Children returns d's children in case-sensitive order (§4.D traversal
// order for emission and property setters).
func (d *Dentry) Children() []*Dentry {
	if d.cs == nil {
		return nil
	}
	return d.cs.ordered()
}

// Tree is a parsed metadata resource's directory graph plus its indexes.
// Per §5, an individual Tree is owned by one goroutine/thread at a time;
// concurrent use of two independent Trees is fine.
type Tree struct {
	Root *Dentry

	defaultCS CaseSensitivity
	warn      Warnings
}

// Option configures FromNode.
type Option func(*config)

type config struct {
	caseSensitivity CaseSensitivity
	warn            Warnings
}

// WithCaseSensitivity sets this tree's default case policy, overriding the
// process-wide default for lookups on this tree that pass PlatformDefault.
func WithCaseSensitivity(cs CaseSensitivity) Option {
	return func(c *config) { c.caseSensitivity = cs }
}

// WithWarnings routes non-fatal anomaly reports (duplicate names skipped
// during FromNode, ambiguous case-insensitive lookups) to w.
func WithWarnings(w Warnings) Option {
	return func(c *config) { c.warn = w }
}

// FromNode builds a Tree from a parsed dentry.Node graph (typically the
// return value of dentry.Parse), populating both indexes at every
// directory level.
func FromNode(root *dentry.Node, opts ...Option) (*Tree, error) {
	cfg := config{warn: nopWarnings}
	for _, o := range opts {
		o(&cfg)
	}
	t := &Tree{defaultCS: cfg.caseSensitivity, warn: cfg.warn}
	if root == nil {
		return t, nil
	}
	t.Root = newDentry(root)
	t.Root.tree = t
	if err := t.linkAll(t.Root, root.Children); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tree) linkAll(parent *Dentry, children []*dentry.Node) error {
	for _, c := range children {
		cd := newDentry(c)
		if err := t.Link(parent, cd); err != nil {
			if xerrors.Is(err, ErrDuplicateName) {
				t.warn.Warnf("wimtree: duplicate name %q under %q, skipping later entry", c.Name, parent.FullPath())
				continue
			}
			return err
		}
		if cd.IsDir() {
			if err := t.linkAll(cd, c.Children); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToNode flattens the tree back into a dentry.Node graph, with every
// directory's Children populated in case-sensitive order, ready for
// dentry.ResourceBuilder.Emit.
func (t *Tree) ToNode() *dentry.Node {
	if t.Root == nil {
		return nil
	}
	return toNode(t.Root)
}

func toNode(d *Dentry) *dentry.Node {
	if d.IsDir() {
		ordered := d.cs.ordered()
		children := make([]*dentry.Node, len(ordered))
		for i, c := range ordered {
			children[i] = toNode(c)
		}
		d.Node.Children = children
	}
	return d.Node
}

// Link inserts child under parent, per §4.D's insertion contract: a
// case-sensitive collision is always rejected; a case-insensitive-only
// collision succeeds, splicing child onto the existing representative's
// collision list.
func (t *Tree) Link(parent, child *Dentry) error {
	if !parent.IsDir() {
		return ErrNotDirectory
	}
	name := child.Node.Name
	if _, inserted := parent.cs.insert(name, child); !inserted {
		return xerrors.Errorf("wimtree: insert %q: %w", name, ErrDuplicateName)
	}
	key := caseFold(name)
	if slot, ok := parent.ci.get(key); ok {
		slot.collisions = append(slot.collisions, child)
	} else {
		parent.ci.insert(key, &ciSlot{representative: child})
	}
	child.Parent = parent
	child.tree = t
	return nil
}

// Unlink removes d from its parent's indexes, promoting the next
// collision-list member into the case-insensitive index if d was the
// representative (§4.D's removal contract).
func (t *Tree) Unlink(d *Dentry) error {
	p := d.Parent
	if p == nil {
		return ErrCannotUnlinkRoot
	}
	name := d.Node.Name
	p.cs.remove(name)

	key := caseFold(name)
	if slot, ok := p.ci.get(key); ok {
		if slot.representative == d {
			if len(slot.collisions) > 0 {
				slot.representative = slot.collisions[0]
				slot.collisions = slot.collisions[1:]
			} else {
				p.ci.remove(key)
			}
		} else {
			for i, c := range slot.collisions {
				if c == d {
					slot.collisions = append(slot.collisions[:i], slot.collisions[i+1:]...)
					break
				}
			}
		}
	}
	d.Parent = nil
	d.tree = nil
	return nil
}

// Lookup resolves name among dir's children using cs (PlatformDefault
// defers to the tree's, then the process's, default).
func (d *Dentry) Lookup(name string, cs CaseSensitivity) (*Dentry, bool) {
	if !d.IsDir() {
		return nil, false
	}
	var tcs CaseSensitivity
	if d.tree != nil {
		tcs = d.tree.defaultCS
	}
	switch resolveCaseSensitivity(cs, tcs) {
	case Sensitive:
		return d.cs.get(name)
	default:
		return d.lookupCI(name)
	}
}

// lookupCI implements §4.D's multiple-match rule: prefer an exact
// case-sensitive match among the collision set; otherwise return the
// representative and warn that the choice, while consistent for this
// insertion order, is not otherwise specified.
func (d *Dentry) lookupCI(name string) (*Dentry, bool) {
	slot, ok := d.ci.get(caseFold(name))
	if !ok {
		return nil, false
	}
	if slot.representative.Node.Name == name {
		return slot.representative, true
	}
	for _, c := range slot.collisions {
		if c.Node.Name == name {
			return c, true
		}
	}
	if d.tree != nil {
		d.tree.warn.Warnf("wimtree: case-insensitive lookup of %q resolved ambiguously to %q", name, slot.representative.Node.Name)
	}
	return slot.representative, true
}
