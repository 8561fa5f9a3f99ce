// Package cursor provides a bounds-checked read primitive over an immutable
// byte slice. Every read checks position+n against the cursor's end before
// touching the backing array; sub-slicing never copies.
package cursor

import (
	"encoding/binary"
	"fmt"
)

// Cursor is a bounded view into a byte slice with an explicit read position.
type Cursor struct {
	data []byte
	pos  int
}

// New wraps data in a Cursor starting at position 0.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Len returns the total length of the underlying range.
func (c *Cursor) Len() int { return len(c.data) }

// Pos returns the current read position.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.data) - c.pos }

// Seek moves the read position to an absolute offset within the cursor.
func (c *Cursor) Seek(offset int) error {
	if offset < 0 || offset > len(c.data) {
		return &BoundsError{Offset: offset, Wanted: 0, Bound: len(c.data)}
	}
	c.pos = offset
	return nil
}

// BoundsError reports an attempted read past the cursor's bound.
type BoundsError struct {
	Offset int
	Wanted int
	Bound  int
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("cursor: read of %d bytes at offset %d exceeds bound %d", e.Wanted, e.Offset, e.Bound)
}

func (c *Cursor) need(n int) error {
	if n < 0 || c.pos+n > len(c.data) {
		return &BoundsError{Offset: c.pos, Wanted: n, Bound: len(c.data)}
	}
	return nil
}

// ReadFixedBytes returns a zero-copy slice of the next n bytes and advances the position.
func (c *Cursor) ReadFixedBytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.data[c.pos]
	c.pos++
	return v, nil
}

// ReadU16 reads a uint16 in the given byte order.
func (c *Cursor) ReadU16(order binary.ByteOrder) (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := order.Uint16(c.data[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

// ReadU32 reads a uint32 in the given byte order.
func (c *Cursor) ReadU32(order binary.ByteOrder) (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := order.Uint32(c.data[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

// ReadU64 reads a uint64 in the given byte order.
func (c *Cursor) ReadU64(order binary.ByteOrder) (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := order.Uint64(c.data[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

// ReadCStringAt reads a NUL-terminated string starting at offset (absolute,
// does not affect the cursor's position), failing if no NUL is found within
// maxLen bytes of offset (or before the cursor's end, whichever comes first).
func (c *Cursor) ReadCStringAt(offset, maxLen int) (string, error) {
	if offset < 0 || offset > len(c.data) {
		return "", &BoundsError{Offset: offset, Wanted: 0, Bound: len(c.data)}
	}
	end := offset + maxLen
	if end > len(c.data) || maxLen < 0 {
		end = len(c.data)
	}
	for i := offset; i < end; i++ {
		if c.data[i] == 0 {
			return string(c.data[offset:i]), nil
		}
	}
	return "", fmt.Errorf("cursor: no NUL terminator within %d bytes starting at %d", maxLen, offset)
}

// ReadCString reads a NUL-terminated string at the current position and
// advances past the terminator.
func (c *Cursor) ReadCString() (string, error) {
	start := c.pos
	for i := c.pos; i < len(c.data); i++ {
		if c.data[i] == 0 {
			s := string(c.data[start:i])
			c.pos = i + 1
			return s, nil
		}
	}
	return "", fmt.Errorf("cursor: no NUL terminator from offset %d", start)
}

// maxULEB128Bytes bounds ULEB128/SLEB128 decoding per spec.md §4.1: halt with
// an error after 10 continuation bytes.
const maxULEB128Bytes = 10

// ReadULEB128 decodes an unsigned little-endian base-128 varint.
func (c *Cursor) ReadULEB128() (uint64, error) {
	var result uint64
	var shift uint
	for i := 0; i < maxULEB128Bytes; i++ {
		b, err := c.ReadU8()
		if err != nil {
			return 0, fmt.Errorf("cursor: truncated ULEB128: %w", err)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
	return 0, fmt.Errorf("cursor: ULEB128 exceeds %d continuation bytes", maxULEB128Bytes)
}

// ReadSLEB128 decodes a signed little-endian base-128 varint.
func (c *Cursor) ReadSLEB128() (int64, error) {
	var result int64
	var shift uint
	var b byte
	var err error
	for i := 0; i < maxULEB128Bytes; i++ {
		b, err = c.ReadU8()
		if err != nil {
			return 0, fmt.Errorf("cursor: truncated SLEB128: %w", err)
		}
		result |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, fmt.Errorf("cursor: SLEB128 exceeds %d continuation bytes", maxULEB128Bytes)
}

// Subcursor returns a new Cursor over the zero-copy range [offset, offset+n)
// of the same backing array, independent of this cursor's position.
func (c *Cursor) Subcursor(offset, n int) (*Cursor, error) {
	if offset < 0 || n < 0 || offset+n > len(c.data) {
		return nil, &BoundsError{Offset: offset, Wanted: n, Bound: len(c.data)}
	}
	return &Cursor{data: c.data[offset : offset+n]}, nil
}

// Bytes returns the full underlying slice (zero-copy).
func (c *Cursor) Bytes() []byte { return c.data }
