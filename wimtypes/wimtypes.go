// Package wimtypes holds value types shared by the dentry codec, the
// in-memory tree, and the Windows metadata harvester: content hashes,
// FILETIME timestamps, file attributes, stream types and tagged items.
//
// Layout and constants are grounded on the on-disk shapes documented by
// go-winio's wim package (direntry, streamentry, FileHeader) and on the
// FILE_ATTRIBUTE_* / reparse constants Windows tooling shares.
package wimtypes

import (
	"fmt"
	"time"
	"unicode/utf16"
)

// Hash is the 20-byte SHA-1 content hash identifying a stream's data blob.
type Hash [20]byte

// IsZero reports whether h is the sentinel "no data" hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) String() string {
	return fmt.Sprintf("%x", [20]byte(h))
}

// FileTime is a 100-nanosecond tick count since 1601-01-01 UTC, the Windows
// FILETIME epoch.
type FileTime uint64

const filetimeEpochOffset = 116444736000000000 // 1601-01-01 -> 1970-01-01, in 100ns ticks

// Time converts ft to a UTC time.Time.
func (ft FileTime) Time() time.Time {
	if ft < filetimeEpochOffset {
		return time.Unix(0, 0).UTC()
	}
	ticks := int64(ft) - filetimeEpochOffset
	return time.Unix(ticks/1e7, (ticks%1e7)*100).UTC()
}

// FileTimeFromTime converts a time.Time to a FileTime.
func FileTimeFromTime(t time.Time) FileTime {
	secs := t.Unix()
	nsec := int64(t.Nanosecond())
	ticks := secs*1e7 + nsec/100 + filetimeEpochOffset
	if ticks < 0 {
		return 0
	}
	return FileTime(ticks)
}

// Attr is the Windows file-attribute bitmask (FILE_ATTRIBUTE_*).
type Attr uint32

const (
	AttrReadonly     Attr = 1 << 0
	AttrHidden       Attr = 1 << 1
	AttrSystem       Attr = 1 << 2
	AttrDirectory    Attr = 1 << 4
	AttrArchive      Attr = 1 << 5
	AttrReparsePoint Attr = 1 << 10
	AttrCompressed   Attr = 1 << 11
	AttrEncrypted    Attr = 1 << 14
)

func (a Attr) IsDir() bool {
	return a&AttrDirectory != 0
}

func (a Attr) IsReparsePoint() bool {
	return a&AttrReparsePoint != 0
}

func (a Attr) IsEncrypted() bool {
	return a&AttrEncrypted != 0
}

// StreamType classifies a Stream (§3 Data Model).
type StreamType int

const (
	StreamUnknown StreamType = iota
	StreamData
	StreamReparsePoint
	StreamEFSRPCRawData
)

func (t StreamType) String() string {
	switch t {
	case StreamData:
		return "DATA"
	case StreamReparsePoint:
		return "REPARSE_POINT"
	case StreamEFSRPCRawData:
		return "EFSRPC_RAW_DATA"
	default:
		return "UNKNOWN"
	}
}

// Stream is a named or unnamed data flow attached to an inode.
type Stream struct {
	ID   uint32
	Type StreamType
	// Name is empty for the unnamed default data stream.
	Name string
	Hash Hash
}

// IsUnnamed reports whether s is the unnamed default stream.
func (s *Stream) IsUnnamed() bool {
	return s.Name == ""
}

// TaggedItem is a minimal (tag, payload) pair used to round-trip the small
// set of "extra" metadata items real images carry alongside an inode
// (object IDs, extended attributes) without claiming full semantic
// interpretation of their contents.
type TaggedItem struct {
	Tag  uint32
	Data []byte
}

// Known tags, named but not semantically interpreted.
const (
	TaggedItemObjectID uint32 = 0x00000001
	TaggedItemEA       uint32 = 0x00000002
)

// ValidateShortName reports whether name is plausible as an 8.3 short name:
// at most 12 UTF-16 code units and free of long-name-only separators. It
// does not attempt to regenerate a short name, only validate one already on
// disk.
func ValidateShortName(name string) bool {
	units := utf16.Encode([]rune(name))
	if len(units) == 0 || len(units) > 12 {
		return false
	}
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return false
		}
	}
	return true
}
