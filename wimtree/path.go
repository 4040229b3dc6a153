package wimtree

import "strings"

// Resolve implements §4.D's path-resolution contract: leading separators
// are trimmed, an empty path resolves to the root, each component is
// looked up under cs, and a trailing separator requires the final
// component to be a directory.
func (t *Tree) Resolve(path string, cs CaseSensitivity) (*Dentry, error) {
	path = strings.TrimLeft(path, "/\\")
	if path == "" {
		return t.Root, nil
	}
	trailingSep := strings.HasSuffix(path, "/") || strings.HasSuffix(path, "\\")

	cur := t.Root
	for _, comp := range splitPath(path) {
		if !cur.IsDir() {
			return nil, ErrNotDirectory
		}
		next, ok := cur.Lookup(comp, cs)
		if !ok {
			return nil, ErrNotFound
		}
		cur = next
	}
	if trailingSep && !cur.IsDir() {
		return nil, ErrNotDirectory
	}
	return cur, nil
}

// FullPath reconstructs d's path from the root, joined with "/".
func (d *Dentry) FullPath() string {
	var parts []string
	for n := d; n != nil && n.Parent != nil; n = n.Parent {
		parts = append(parts, n.Node.Name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/")
}

func splitPath(path string) []string {
	comps := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	return comps
}

// Lookup resolves a single top-level name under the tree's root,
// convenience wrapper over Root.Lookup.
func (t *Tree) Lookup(name string, cs CaseSensitivity) (*Dentry, bool) {
	if t.Root == nil {
		return nil, false
	}
	return t.Root.Lookup(name, cs)
}
