// Package dentry decodes and encodes the directory-entry stream inside a
// WIM metadata resource (§4.C). It owns the on-disk byte layout only; the
// in-memory indexed tree (case-sensitive/case-insensitive lookup, link and
// unlink) lives in package wimtree, which is built on top of the plain
// Node/Inode values this package produces.
package dentry

import (
	"golang.org/x/xerrors"

	"github.com/gowim/wim/wimtypes"
)

// Inode is the file identity referenced by one or more Nodes (hard links).
// It mirrors the attribute set distri's squashfs inode carries, widened
// for WIM/NTFS semantics (§3 Inode).
type Inode struct {
	Attr         wimtypes.Attr
	SecurityID   int32 // -1 = none
	CreationTime wimtypes.FileTime
	AccessTime   wimtypes.FileTime
	WriteTime    wimtypes.FileTime
	Hash         wimtypes.Hash // the record's default_hash as read by Parse; Emit derives that field from Streams

	// LinkID is the hard-link group id (inode number). Populated only when
	// Attr does not have AttrReparsePoint set; see DESIGN.md's Open
	// Question decision on reparse/hard-link union aliasing.
	LinkID int64

	// ReparseTag/ReparseReserved/NotRpFixed hold the reparse-point union;
	// populated only when Attr has AttrReparsePoint set.
	ReparseTag      uint32
	ReparseReserved uint32
	NotRpFixed      bool

	Streams []wimtypes.Stream
	Extra   []wimtypes.TaggedItem
}

// IsReparsePoint reports whether the inode's reparse union (rather than its
// hard-link union) is the live member of the on-disk field at offset 84.
func (n *Inode) IsReparsePoint() bool { return n.Attr.IsReparsePoint() }

// Node is a named link to an Inode, the in-memory counterpart of an on-disk
// dentry record. It carries only what the codec itself needs; wimtree.Dentry
// wraps a Node with the case-sensitive/case-insensitive index bookkeeping
// that makes it a tree member.
type Node struct {
	Name      string // long name; may be empty only for the root
	ShortName string
	Inode     *Inode
	Children  []*Node // present only when Inode.Attr.IsDir()

	// subdirOffset is populated by Parse (the on-disk value that located
	// this node's children) and recomputed by the ResourceBuilder on
	// Emit.
	subdirOffset int64

	// subdirOffsetFieldPos is the byte offset, within the buffer a
	// ResourceBuilder is writing, of this node's own subdir_offset field;
	// it is patched once the node's child block's start offset is known.
	subdirOffsetFieldPos int64
}

// SubdirOffset returns the offset this node's children were read from, or
// will be written to by a subsequent Emit using the same ResourceBuilder
// layout.
func (n *Node) SubdirOffset() int64 { return n.subdirOffset }

// Warnings receives non-fatal anomaly reports from Parse (§4.C.2,
// §7 "local / recovered" errors). Parse discards them (wimlog.Discard)
// unless WithWarnings is given.
type Warnings interface {
	Warnf(format string, args ...interface{})
}

var (
	// ErrInvalidMetadata is wrapped by every fatal parse failure (§7
	// OUT_OF_MEMORY's sibling: INVALID_METADATA_RESOURCE).
	ErrInvalidMetadata = xerrors.New("dentry: invalid metadata resource")
)
