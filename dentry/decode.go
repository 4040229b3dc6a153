package dentry

import (
	"encoding/binary"
	"unicode/utf16"

	"golang.org/x/xerrors"

	"github.com/gowim/wim/internal/bitio"
	"github.com/gowim/wim/internal/wimlog"
	"github.com/gowim/wim/wimtypes"
)

const (
	direntryFixedSize = 102
	streamFixedSize   = 38
)

var nopWarnings = wimlog.Discard

// ParseOption configures Parse.
type ParseOption func(*parseConfig)

type parseConfig struct {
	warn       Warnings
	bestEffort bool
}

// WithWarnings routes non-fatal anomaly reports (§4.C.2, §7) to w. Without
// it, Parse discards them (wimlog.Discard).
func WithWarnings(w Warnings) ParseOption {
	return func(c *parseConfig) { c.warn = w }
}

// BestEffort downgrades a subset of otherwise-fatal conditions to "stop and
// return the partial tree" instead of unwinding to empty (§8 Supplemented
// features): when any record in a sibling list fails to parse (for example
// an extra-stream overrun, or a list left unterminated at EOF), that list
// ends there and keeps the entries read before it. A cycle, or a failure in
// the root record itself, stays fatal.
func BestEffort(v bool) ParseOption {
	return func(c *parseConfig) { c.bestEffort = v }
}

// Parse decodes the dentry stream in buf starting at rootOffset, per §4.C.2.
// The root may be empty (nil, nil); otherwise it is returned with Name
// stripped to "" (any on-disk root name is dropped with a warning) and its
// Children populated by recursive descent through subdir_offset fields.
func Parse(buf []byte, rootOffset int64, opts ...ParseOption) (*Node, error) {
	cfg := parseConfig{warn: nopWarnings}
	for _, o := range opts {
		o(&cfg)
	}

	// The root's own sibling-list slot is read directly, bypassing the
	// generic per-sibling anomaly handling in parseSiblingList: an empty
	// name is expected and normal for the root, not the "unnamed
	// non-root dentry" anomaly that applies to every other level.
	r, next, err := parseOneDentry(buf, rootOffset, &cfg)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil // empty metadata resource
	}
	if term, _, err := parseOneDentry(buf, next, &cfg); err != nil {
		return nil, err
	} else if term != nil {
		return nil, xerrors.Errorf("dentry: %w: root directory has more than one entry", ErrInvalidMetadata)
	}
	if !r.Inode.Attr.IsDir() {
		return nil, xerrors.Errorf("dentry: %w: root is not a directory", ErrInvalidMetadata)
	}
	if r.Name != "" {
		cfg.warn.Warnf("dentry: root has non-empty name %q, stripping", r.Name)
		r.Name = ""
	}

	if r.subdirOffset != 0 {
		children, err := parseSiblingList(buf, r.subdirOffset, &cfg, map[int64]bool{r.subdirOffset: true})
		if err != nil {
			return nil, err
		}
		r.Children = children
	}
	return r, nil
}

// parseSiblingList reads a sequence of sibling dentry records starting at
// offset, recursing into any directory children, until a terminator (length
// <= 8) is found. ancestors is the chain of subdir_offsets already being
// visited, used for cycle detection (§4.C.2).
func parseSiblingList(buf []byte, offset int64, cfg *parseConfig, ancestors map[int64]bool) ([]*Node, error) {
	var out []*Node
	seen := make(map[string]bool)
	peek := bitio.NewCursor(buf, 0)
	cur := offset
	for {
		// Peek the length prefix before committing to a full
		// parseOneDentry call: a sibling list's terminator (length <= 8)
		// is common (every directory ends in one) and cheaper to detect
		// this way than by constructing and discarding a Cursor for it.
		if b, err := peek.PeekBytes(cur, 8); err == nil && int64(binary.LittleEndian.Uint64(b)) <= 8 {
			break
		}
		n, next, err := parseOneDentry(buf, cur, cfg)
		if err != nil {
			if cfg.bestEffort {
				return out, nil
			}
			return nil, err
		}
		if n == nil {
			break // terminator
		}
		if n.Name == "" {
			cfg.warn.Warnf("dentry: unnamed non-root dentry at offset %d, dropping", cur)
			cur = next
			continue
		}
		if n.Name == "." || n.Name == ".." {
			cfg.warn.Warnf("dentry: dentry named %q, dropping", n.Name)
			cur = next
			continue
		}
		if seen[n.Name] {
			cfg.warn.Warnf("dentry: case-sensitive collision on %q, dropping later entry", n.Name)
			cur = next
			continue
		}
		seen[n.Name] = true

		if n.subdirOffset != 0 {
			if !n.Inode.Attr.IsDir() {
				cfg.warn.Warnf("dentry: non-directory %q claims children, ignoring", n.Name)
			} else {
				if ancestors[n.subdirOffset] {
					return nil, xerrors.Errorf("dentry: %w: cycle at subdir_offset %d", ErrInvalidMetadata, n.subdirOffset)
				}
				childAncestors := make(map[int64]bool, len(ancestors)+1)
				for k := range ancestors {
					childAncestors[k] = true
				}
				childAncestors[n.subdirOffset] = true
				children, err := parseSiblingList(buf, n.subdirOffset, cfg, childAncestors)
				if err != nil {
					return nil, err
				}
				n.Children = children
			}
		}

		out = append(out, n)
		cur = next
	}
	return out, nil
}

// parseOneDentry reads a single dentry record at offset. It returns
// (nil, 0, nil) when the record is a terminator.
func parseOneDentry(buf []byte, offset int64, cfg *parseConfig) (*Node, int64, error) {
	c := bitio.NewCursor(buf, offset)

	length, err := c.Int64()
	if err != nil {
		return nil, 0, xerrors.Errorf("dentry: %w: reading length: %v", ErrInvalidMetadata, err)
	}
	if length <= 8 {
		return nil, 0, nil
	}
	if length < direntryFixedSize {
		return nil, 0, xerrors.Errorf("dentry: %w: length %d shorter than fixed header", ErrInvalidMetadata, length)
	}
	recEnd := offset + length
	if recEnd < offset || recEnd > int64(len(buf)) {
		return nil, 0, xerrors.Errorf("dentry: %w: length %d overruns buffer", ErrInvalidMetadata, length)
	}

	attrRaw, err := c.Uint32()
	if err != nil {
		return nil, 0, err
	}
	attr := wimtypes.Attr(attrRaw)
	secID, err := c.Int32()
	if err != nil {
		return nil, 0, err
	}
	subdirOffset, err := c.Int64()
	if err != nil {
		return nil, 0, err
	}
	c.Seek(c.Pos() + 16) // reserved
	creation, err := c.Uint64()
	if err != nil {
		return nil, 0, err
	}
	access, err := c.Uint64()
	if err != nil {
		return nil, 0, err
	}
	write, err := c.Uint64()
	if err != nil {
		return nil, 0, err
	}
	hashBytes, err := c.Bytes(20)
	if err != nil {
		return nil, 0, err
	}
	var hash wimtypes.Hash
	copy(hash[:], hashBytes)

	inode := &Inode{
		Attr:         attr,
		SecurityID:   secID,
		CreationTime: wimtypes.FileTime(creation),
		AccessTime:   wimtypes.FileTime(access),
		WriteTime:    wimtypes.FileTime(write),
		Hash:         hash,
	}

	if attr.IsReparsePoint() {
		if _, err := c.Uint32(); err != nil { // reserved
			return nil, 0, err
		}
		tag, err := c.Uint32()
		if err != nil {
			return nil, 0, err
		}
		if _, err := c.Uint16(); err != nil { // reserved
			return nil, 0, err
		}
		notFixed, err := c.Uint16()
		if err != nil {
			return nil, 0, err
		}
		inode.ReparseTag = tag
		inode.NotRpFixed = notFixed != 0
	} else {
		if _, err := c.Uint32(); err != nil { // reserved
			return nil, 0, err
		}
		linkID, err := c.Int64()
		if err != nil {
			return nil, 0, err
		}
		inode.LinkID = linkID
	}

	numExtra, err := c.Uint16()
	if err != nil {
		return nil, 0, err
	}
	shortNameLen, err := c.Uint16()
	if err != nil {
		return nil, 0, err
	}
	longNameLen, err := c.Uint16()
	if err != nil {
		return nil, 0, err
	}
	if shortNameLen%2 != 0 || longNameLen%2 != 0 {
		return nil, 0, xerrors.Errorf("dentry: %w: name length not divisible by 2", ErrInvalidMetadata)
	}

	namesStart := c.Pos()
	longNameBytes := int64(longNameLen)
	if longNameLen > 0 {
		longNameBytes += 2 // NUL terminator
	}
	shortNameBytes := int64(shortNameLen)
	if shortNameLen > 0 {
		shortNameBytes += 2
	}
	if namesStart+longNameBytes+shortNameBytes > recEnd {
		return nil, 0, xerrors.Errorf("dentry: %w: header length insufficient for declared name lengths", ErrInvalidMetadata)
	}

	var name, shortName string
	if longNameLen > 0 {
		b, err := c.Bytes(longNameBytes)
		if err != nil {
			return nil, 0, err
		}
		name = decodeUTF16LE(b[:longNameLen])
	}
	if shortNameLen > 0 {
		b, err := c.Bytes(shortNameBytes)
		if err != nil {
			return nil, 0, err
		}
		shortName = decodeUTF16LE(b[:shortNameLen])
		if !wimtypes.ValidateShortName(shortName) {
			cfg.warn.Warnf("dentry: implausible short name %q, keeping as-is", shortName)
		}
	}
	c.AlignUp8(offset)

	// Encrypted inodes carry at most one synthetic EFSRPC stream and no
	// extra-stream-entry records (§3 invariant 7); any tagged "extra"
	// bytes still occupy the space between names and the record end and
	// are read below like any other inode's extra blob.
	extra, n, err := parseExtra(buf, c.Pos(), recEnd)
	if err != nil {
		return nil, 0, err
	}
	inode.Extra = extra
	c.Seek(n)
	c.AlignUp8(offset)

	streams := make([]wimtypes.Stream, 0, int(numExtra)+1)
	streams = append(streams, wimtypes.Stream{Type: wimtypes.StreamUnknown, Hash: hash})
	for i := uint16(0); i < numExtra; i++ {
		s, next, err := parseExtraStream(buf, recEnd, c.Pos(), cfg)
		if err != nil {
			return nil, 0, err
		}
		streams = append(streams, s)
		c.Seek(next)
	}
	assignStreamTypes(inode, streams)

	node := &Node{
		Name:         name,
		ShortName:    shortName,
		Inode:        inode,
		subdirOffset: subdirOffset,
	}
	// The record's own length (recEnd) stops at the tagged-item padding;
	// any extra-stream entries (§4.C.4) physically follow recEnd, and the
	// loop above has already walked c past all of them and 8-aligned the
	// cursor after each one. The next sibling starts there, not at
	// alignUp8(recEnd).
	return node, c.Pos(), nil
}

// parseExtra reads the optional tagged-item blob between the end of the
// name fields (already 8-aligned by the caller) and recEnd. The blob format
// (tag uint32, length uint32, data) is a minimal, round-trip-preserving
// sub-format (§8 Supplemented features); an inode with no trailing bytes
// has an empty Extra slice.
func parseExtra(buf []byte, pos, recEnd int64) ([]wimtypes.TaggedItem, int64, error) {
	var items []wimtypes.TaggedItem
	c := bitio.NewCursor(buf, pos)
	for c.Pos() < recEnd {
		if recEnd-c.Pos() < 8 {
			break
		}
		tag, err := c.Uint32()
		if err != nil {
			return nil, 0, err
		}
		dataLen, err := c.Uint32()
		if err != nil {
			return nil, 0, err
		}
		if c.Pos()+int64(dataLen) > recEnd {
			return nil, 0, xerrors.Errorf("dentry: %w: tagged item overruns record", ErrInvalidMetadata)
		}
		data, err := c.Bytes(int64(dataLen))
		if err != nil {
			return nil, 0, err
		}
		cp := make([]byte, len(data))
		copy(cp, data)
		items = append(items, wimtypes.TaggedItem{Tag: tag, Data: cp})
		c.AlignUp8(pos)
	}
	return items, recEnd, nil
}

// parseExtraStream reads one extra-stream-entry record starting at offset,
// per §4.C.1. The second parameter (the owning record's end, as the caller
// passes it) is not used: an extra stream entry physically follows the
// dentry record in the buffer, not inside it, so its bounds are checked
// against the whole buffer.
func parseExtraStream(buf []byte, _ int64, offset int64, cfg *parseConfig) (wimtypes.Stream, int64, error) {
	c := bitio.NewCursor(buf, offset)
	length, err := c.Int64()
	if err != nil {
		return wimtypes.Stream{}, 0, xerrors.Errorf("dentry: %w: reading stream entry length: %v", ErrInvalidMetadata, err)
	}
	if length < streamFixedSize {
		return wimtypes.Stream{}, 0, xerrors.Errorf("dentry: %w: stream entry length %d shorter than fixed header", ErrInvalidMetadata, length)
	}
	end := offset + length
	if end < offset || end > int64(len(buf)) {
		return wimtypes.Stream{}, 0, xerrors.Errorf("dentry: %w: stream entry length %d overruns buffer", ErrInvalidMetadata, length)
	}
	c.Seek(c.Pos() + 8) // reserved
	hashBytes, err := c.Bytes(20)
	if err != nil {
		return wimtypes.Stream{}, 0, err
	}
	var hash wimtypes.Hash
	copy(hash[:], hashBytes)
	nameLen16, err := c.Uint16()
	if err != nil {
		return wimtypes.Stream{}, 0, err
	}
	if nameLen16%2 != 0 {
		return wimtypes.Stream{}, 0, xerrors.Errorf("dentry: %w: stream name length not divisible by 2", ErrInvalidMetadata)
	}
	nameBytes := int64(nameLen16)
	if nameLen16 > 0 {
		nameBytes += 2
	}
	if c.Pos()+nameBytes > end {
		return wimtypes.Stream{}, 0, xerrors.Errorf("dentry: %w: stream entry size too short for name", ErrInvalidMetadata)
	}
	var name string
	if nameLen16 > 0 {
		b, err := c.Bytes(nameBytes)
		if err != nil {
			return wimtypes.Stream{}, 0, err
		}
		name = decodeUTF16LE(b[:nameLen16])
	}
	return wimtypes.Stream{Type: wimtypes.StreamUnknown, Name: name, Hash: hash}, alignUp8(end), nil
}

// alignUp8 rounds v up to the next multiple of 8. §4.C.1: "Lengths must be
// rounded up to the next 8 when consumed" — a record's length field need
// not itself be a multiple of 8; the next record starts at the rounded-up
// offset.
func alignUp8(v int64) int64 { return (v + 7) &^ 7 }

func decodeUTF16LE(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(u))
}

func encodeUTF16LE(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2)
	for i, v := range u {
		b[2*i] = byte(v)
		b[2*i+1] = byte(v >> 8)
	}
	return b
}
