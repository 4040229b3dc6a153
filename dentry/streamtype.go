package dentry

import "github.com/gowim/wim/wimtypes"

// assignStreamTypes implements §4.C.3: given the record's default stream
// (slot 0, carrying inode.Hash under the sentinel empty name) and any extra
// stream entries (slots 1..N), assign each a StreamType in place.
func assignStreamTypes(inode *Inode, streams []wimtypes.Stream) {
	if inode.Attr.IsEncrypted() {
		for i := range streams {
			if streams[i].IsUnnamed() && !streams[i].Hash.IsZero() {
				streams[i].Type = wimtypes.StreamEFSRPCRawData
				inode.Streams = streams
				return
			}
		}
		inode.Streams = streams
		return
	}

	haveUnnamedData := false
	haveReparse := false
	fallback := -1
	for i := range streams {
		s := &streams[i]
		switch {
		case !s.IsUnnamed():
			s.Type = wimtypes.StreamData
		case inode.Attr.IsReparsePoint() && !s.Hash.IsZero() && !haveReparse:
			s.Type = wimtypes.StreamReparsePoint
			haveReparse = true
		case !s.Hash.IsZero() && !haveUnnamedData:
			s.Type = wimtypes.StreamData
			haveUnnamedData = true
		case s.Hash.IsZero():
			if fallback == -1 {
				fallback = i
			}
		}
	}
	if !haveUnnamedData && fallback != -1 {
		streams[fallback].Type = wimtypes.StreamData
	}
	inode.Streams = dropUnpromotedPlaceholders(streams)
}

// dropUnpromotedPlaceholders removes unnamed, zero-hash streams that never
// got promoted to a real type by the heuristic above — this is exactly the
// record's own default_hash slot when it was zeroed out because real
// content lives in the extra-stream entries instead (§4.C.4's "record's
// default_hash is zeroed" emission policy), not an observable stream.
func dropUnpromotedPlaceholders(streams []wimtypes.Stream) []wimtypes.Stream {
	out := streams[:0]
	for _, s := range streams {
		if s.Type == wimtypes.StreamUnknown && s.IsUnnamed() && s.Hash.IsZero() {
			continue
		}
		out = append(out, s)
	}
	return out
}
