package dentry

import (
	"github.com/gowim/wim/internal/bitio"
	"github.com/gowim/wim/wimtypes"
)

// ResourceBuilder emits a tree rooted at root into the on-disk dentry-stream
// layout (§4.C.4). It is the write-side counterpart of Parse, and the glue
// between the codec (this package) and package wimtree, which drives it by
// walking a *wimtree.Tree to produce the Node tree this package expects.
type ResourceBuilder struct {
	w *bitio.Writer
}

// NewResourceBuilder returns an empty builder.
func NewResourceBuilder() *ResourceBuilder { return &ResourceBuilder{w: bitio.NewWriter()} }

// Emit writes root's record, its terminator, and recursively every
// directory's child sibling-list, in the depth-first pre-order specified by
// §4.C.4, returning the finished buffer. Each directory's subdir_offset is
// back-filled once its own child block's start offset is known.
func (b *ResourceBuilder) Emit(root *Node) ([]byte, error) {
	if root == nil {
		return nil, nil
	}
	if err := emitSiblingList(b.w, []*Node{root}); err != nil {
		return nil, err
	}
	if err := emitChildBlock(b.w, root); err != nil {
		return nil, err
	}
	return b.w.Bytes(), nil
}

// emitChildBlock implements the depth-first pre-order walk of §4.C.4: it
// writes node's own child sibling-list (back-filling node's subdir_offset
// field, reserved as zero when node's record was written, now that the
// block's start offset is known), then recurses fully into each directory
// child — including that child's own descendants — before moving to the
// next child.
func emitChildBlock(w *bitio.Writer, node *Node) error {
	if !node.Inode.Attr.IsDir() {
		return nil
	}
	start := w.Len()
	node.subdirOffset = start
	w.PatchInt64(node.subdirOffsetFieldPos, start)
	if err := emitSiblingList(w, node.Children); err != nil {
		return err
	}
	for _, child := range node.Children {
		if err := emitChildBlock(w, child); err != nil {
			return err
		}
	}
	return nil
}

// emitSiblingList writes nodes as a contiguous 8-aligned record sequence
// followed by an 8-byte zero terminator.
func emitSiblingList(w *bitio.Writer, nodes []*Node) error {
	for _, n := range nodes {
		if err := emitOneDentry(w, n); err != nil {
			return err
		}
	}
	w.WriteUint64(0) // terminator
	return nil
}

func emitOneDentry(w *bitio.Writer, n *Node) error {
	start := w.Len()
	inode := n.Inode

	extras, defaultHash := layoutStreams(inode)

	w.WriteInt64(0) // length placeholder
	w.WriteUint32(uint32(inode.Attr))
	w.WriteInt32(inode.SecurityID)

	n.subdirOffsetFieldPos = w.Len()
	w.WriteInt64(0) // subdir_offset placeholder, patched by emitChildBlock if directory

	w.WriteZero(16) // reserved
	w.WriteUint64(uint64(inode.CreationTime))
	w.WriteUint64(uint64(inode.AccessTime))
	w.WriteUint64(uint64(inode.WriteTime))
	w.WriteBytes(defaultHash[:])

	if inode.Attr.IsReparsePoint() {
		w.WriteZero(4)
		w.WriteUint32(inode.ReparseTag)
		w.WriteZero(2)
		if inode.NotRpFixed {
			w.WriteUint16(1)
		} else {
			w.WriteUint16(0)
		}
	} else {
		w.WriteZero(4)
		w.WriteInt64(inode.LinkID)
	}

	w.WriteUint16(uint16(len(extras)))

	shortNameBytes := encodeUTF16LE(n.ShortName)
	longNameBytes := encodeUTF16LE(n.Name)
	w.WriteUint16(uint16(len(shortNameBytes)))
	w.WriteUint16(uint16(len(longNameBytes)))

	if len(longNameBytes) > 0 {
		w.WriteBytes(longNameBytes)
		w.WriteUint16(0)
	}
	if len(shortNameBytes) > 0 {
		w.WriteBytes(shortNameBytes)
		w.WriteUint16(0)
	}
	w.PadTo8(start)

	for _, item := range inode.Extra {
		w.WriteUint32(item.Tag)
		w.WriteUint32(uint32(len(item.Data)))
		w.WriteBytes(item.Data)
		w.PadTo8(start)
	}
	w.PadTo8(start)

	length := w.Len() - start
	w.PatchInt64(start, length)

	for _, s := range extras {
		if err := emitExtraStream(w, s); err != nil {
			return err
		}
	}
	return nil
}

func emitExtraStream(w *bitio.Writer, s wimtypes.Stream) error {
	start := w.Len()
	w.WriteInt64(0) // length placeholder
	w.WriteZero(8)  // reserved
	w.WriteBytes(s.Hash[:])
	nameBytes := encodeUTF16LE(s.Name)
	w.WriteUint16(uint16(len(nameBytes)))
	if len(nameBytes) > 0 {
		w.WriteBytes(nameBytes)
		w.WriteUint16(0)
	}
	w.PadTo8(start)
	length := w.Len() - start
	w.PatchInt64(start, length)
	return nil
}

// layoutStreams implements the length-field writing policy of §4.C.4: it
// decides whether extra stream entries are required and, if so, in what
// order, and what the record's own default_hash field should hold.
func layoutStreams(inode *Inode) (extras []wimtypes.Stream, defaultHash wimtypes.Hash) {
	if inode.Attr.IsEncrypted() {
		for _, s := range inode.Streams {
			if s.Type == wimtypes.StreamEFSRPCRawData {
				return nil, s.Hash
			}
		}
		return nil, wimtypes.Hash{}
	}

	var reparse *wimtypes.Stream
	var unnamedData *wimtypes.Stream
	var named []wimtypes.Stream
	for i := range inode.Streams {
		s := &inode.Streams[i]
		switch {
		case s.Type == wimtypes.StreamReparsePoint:
			reparse = s
		case s.Name != "":
			named = append(named, *s)
		case s.Type == wimtypes.StreamData:
			unnamedData = s
		}
	}

	if reparse == nil && len(named) == 0 {
		if unnamedData != nil {
			return nil, unnamedData.Hash
		}
		return nil, wimtypes.Hash{}
	}

	if reparse != nil {
		extras = append(extras, *reparse)
	}
	if unnamedData != nil {
		extras = append(extras, *unnamedData)
	} else {
		extras = append(extras, wimtypes.Stream{Type: wimtypes.StreamData})
	}
	extras = append(extras, named...)
	return extras, wimtypes.Hash{}
}
