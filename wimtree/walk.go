package wimtree

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Walk visits t's dentries pre-order (parent before children, children in
// case-sensitive order), per §4.D — the order used for emission and
// property setters. A tree built by FromNode is acyclic by construction
// (the codec's parser rejects cycles), so Walk assumes acyclicity and does
// not track visited nodes.
func (t *Tree) Walk(fn func(*Dentry) error) error {
	if t.Root == nil {
		return nil
	}
	return walk(t.Root, fn)
}

func walk(d *Dentry, fn func(*Dentry) error) error {
	if err := fn(d); err != nil {
		return err
	}
	for _, c := range d.Children() {
		if err := walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}

// WalkPost visits t's dentries post-order (children before parent), the
// order §4.D specifies "for freeing".
func (t *Tree) WalkPost(fn func(*Dentry) error) error {
	if t.Root == nil {
		return nil
	}
	return walkPost(t.Root, fn)
}

func walkPost(d *Dentry, fn func(*Dentry) error) error {
	for _, c := range d.Children() {
		if err := walkPost(c, fn); err != nil {
			return err
		}
	}
	return fn(d)
}

// WalkConcurrent fans fn out across one goroutine per top-level subtree of
// t.Root, using errgroup.Group the way distri's internal/batch scheduler
// parallelizes independent package builds. Per §5's "per-archive
// mutability" contract, the caller must hold exclusive ownership of t for
// the duration of the call: concurrent mutation of the same tree from
// another goroutine during WalkConcurrent is not supported. fn is invoked
// with ctx cancellation observed per dentry, the "coarse point" §5
// specifies for the recursive walk.
func (t *Tree) WalkConcurrent(ctx context.Context, fn func(*Dentry) error) error {
	if t.Root == nil {
		return nil
	}
	eg, ctx := errgroup.WithContext(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(t.Root); err != nil {
		return err
	}
	for _, c := range t.Root.Children() {
		c := c
		eg.Go(func() error {
			return walkConcurrent(ctx, c, fn)
		})
	}
	return eg.Wait()
}

// walkConcurrent recurses sequentially within the goroutine assigned to
// one top-level subtree, observing ctx per dentry.
func walkConcurrent(ctx context.Context, d *Dentry, fn func(*Dentry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(d); err != nil {
		return err
	}
	for _, c := range d.Children() {
		if err := walkConcurrent(ctx, c, fn); err != nil {
			return err
		}
	}
	return nil
}

// graphNode adapts a *Dentry into a gonum graph.Node.
type graphNode struct {
	id int64
	d  *Dentry
}

func (n graphNode) ID() int64 { return n.id }

// VerifyAcyclic is a belt-and-suspenders check (§8 property 7) beyond the
// codec parser's inline cycle guard: it snapshots t into a
// simple.DirectedGraph, mirroring the dependency-DAG construction
// internal/batch uses for package build ordering, and runs topo.Sort over
// it.
func VerifyAcyclic(t *Tree) error {
	if t.Root == nil {
		return nil
	}
	g := simple.NewDirectedGraph()
	ids := make(map[*Dentry]int64)
	var nextID int64
	idFor := func(d *Dentry) int64 {
		if id, ok := ids[d]; ok {
			return id
		}
		id := nextID
		nextID++
		ids[d] = id
		return id
	}

	var addNodes func(d *Dentry) error
	addNodes = func(d *Dentry) error {
		dn := graphNode{id: idFor(d), d: d}
		for _, c := range d.Children() {
			if c == d {
				return xerrors.Errorf("wimtree: cycle detected: %q is its own child", d.Node.Name)
			}
			_, seen := ids[c]
			cn := graphNode{id: idFor(c), d: c}
			g.SetEdge(g.NewEdge(dn, cn)) // adds cn to g if not yet present
			if seen {
				continue // already added: descending again could loop forever
			}
			if err := addNodes(c); err != nil {
				return err
			}
		}
		return nil
	}
	g.AddNode(graphNode{id: idFor(t.Root), d: t.Root})
	if err := addNodes(t.Root); err != nil {
		return err
	}

	if _, err := topo.Sort(g); err != nil {
		if uo, ok := err.(topo.Unorderable); ok {
			return xerrors.Errorf("wimtree: cycle detected among %d dentries: %w", len(uo), err)
		}
		return err
	}
	return nil
}

var _ graph.Node = graphNode{}
