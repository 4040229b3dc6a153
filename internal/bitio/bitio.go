// Package bitio provides bounds-checked little-endian readers over a
// contiguous in-memory byte buffer, the representation the dentry codec
// operates on (§4.C: "a contiguous metadata-resource byte buffer"). It
// plays the role that distr1-distri's squashfs package fills with
// binary.Read over io.SectionReader, adapted for random-access slice
// parsing instead of streaming, since dentry offsets (subdir_offset) jump
// around in the buffer rather than being consumed strictly in order.
package bitio

import (
	"encoding/binary"
	"fmt"
)

// ErrOverrun is returned whenever a read would extend past the end of the
// buffer, including overflow-safe checks on attacker-controlled lengths.
var ErrOverrun = fmt.Errorf("bitio: read overruns buffer")

// Cursor is a read-only position within a byte buffer.
type Cursor struct {
	buf []byte
	pos int64
}

// NewCursor creates a Cursor positioned at offset off within buf.
func NewCursor(buf []byte, off int64) *Cursor {
	return &Cursor{buf: buf, pos: off}
}

// Pos returns the current offset.
func (c *Cursor) Pos() int64 { return c.pos }

// Seek repositions the cursor to an absolute offset.
func (c *Cursor) Seek(off int64) { c.pos = off }

// Len returns the total buffer length.
func (c *Cursor) Len() int64 { return int64(len(c.buf)) }

// checkBounds reports whether [pos, pos+n) lies within the buffer,
// guarding against integer overflow on attacker-controlled n.
func (c *Cursor) checkBounds(pos, n int64) bool {
	if pos < 0 || n < 0 {
		return false
	}
	end := pos + n
	if end < pos { // overflow
		return false
	}
	return end <= int64(len(c.buf))
}

// Bytes returns n bytes starting at the cursor and advances it.
func (c *Cursor) Bytes(n int64) ([]byte, error) {
	if !c.checkBounds(c.pos, n) {
		return nil, ErrOverrun
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// PeekBytes returns n bytes starting at off without advancing the cursor.
func (c *Cursor) PeekBytes(off, n int64) ([]byte, error) {
	if !c.checkBounds(off, n) {
		return nil, ErrOverrun
	}
	return c.buf[off : off+n], nil
}

// Uint16 reads a little-endian uint16 and advances the cursor.
func (c *Cursor) Uint16() (uint16, error) {
	b, err := c.Bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian uint32 and advances the cursor.
func (c *Cursor) Uint32() (uint32, error) {
	b, err := c.Bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian uint64 and advances the cursor.
func (c *Cursor) Uint64() (uint64, error) {
	b, err := c.Bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Int64 reads a little-endian signed int64 and advances the cursor.
func (c *Cursor) Int64() (int64, error) {
	u, err := c.Uint64()
	return int64(u), err
}

// Int32 reads a little-endian signed int32 and advances the cursor.
func (c *Cursor) Int32() (int32, error) {
	u, err := c.Uint32()
	return int32(u), err
}

// AlignUp8 advances the cursor to the next 8-byte boundary relative to
// base (§4.C: "all 8-byte aligned").
func (c *Cursor) AlignUp8(base int64) {
	rel := c.pos - base
	pad := (8 - rel%8) % 8
	c.pos += pad
}

// Writer accumulates little-endian bytes into a growable buffer, the
// emission-side counterpart of Cursor.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int64 { return int64(len(w.buf)) }

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(b []byte) { w.buf = append(w.buf, b...) }

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	w.buf = append(w.buf, byte(v), byte(v>>8))
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

// WriteInt64 appends a little-endian signed int64.
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

// WriteInt32 appends a little-endian signed int32.
func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }

// WriteZero appends n zero bytes.
func (w *Writer) WriteZero(n int) {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

// PadTo8 pads the buffer with zero bytes until its length relative to base
// is a multiple of 8.
func (w *Writer) PadTo8(base int64) {
	rel := w.Len() - base
	pad := (8 - rel%8) % 8
	w.WriteZero(int(pad))
}

// PatchInt64 overwrites an already-written little-endian int64 at pos, used
// to back-fill forward references (e.g. a subdir_offset) once the target
// location becomes known.
func (w *Writer) PatchInt64(pos int64, v int64) {
	binary.LittleEndian.PutUint64(w.buf[pos:pos+8], uint64(v))
}
