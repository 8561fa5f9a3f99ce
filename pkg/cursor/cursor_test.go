package cursor

import (
	"encoding/binary"
	"testing"
)

func TestReadFixedWidth(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	c := New(data)

	u8, err := c.ReadU8()
	if err != nil || u8 != 0x01 {
		t.Fatalf("ReadU8 = %v, %v", u8, err)
	}
	u16, err := c.ReadU16(binary.LittleEndian)
	if err != nil || u16 != 0x0302 {
		t.Fatalf("ReadU16 = %#x, %v", u16, err)
	}
	u32, err := c.ReadU32(binary.BigEndian)
	if err != nil || u32 != 0x04050607 {
		t.Fatalf("ReadU32 = %#x, %v", u32, err)
	}
}

func TestOutOfBounds(t *testing.T) {
	c := New([]byte{0x01, 0x02})
	if _, err := c.ReadU32(binary.LittleEndian); err == nil {
		t.Fatal("expected bounds error")
	}
	var be *BoundsError
	if _, err := c.ReadFixedBytes(10); err == nil {
		t.Fatal("expected bounds error")
	} else if e, ok := err.(*BoundsError); !ok {
		t.Fatalf("expected *BoundsError, got %T", err)
	} else {
		be = e
	}
	if be.Bound != 2 {
		t.Fatalf("Bound = %d, want 2", be.Bound)
	}
}

func TestULEB128(t *testing.T) {
	// 300 encoded as ULEB128: 0xAC, 0x02
	c := New([]byte{0xAC, 0x02})
	v, err := c.ReadULEB128()
	if err != nil {
		t.Fatal(err)
	}
	if v != 300 {
		t.Fatalf("ReadULEB128 = %d, want 300", v)
	}
}

func TestULEB128Truncated(t *testing.T) {
	c := New([]byte{0x80, 0x80, 0x80})
	if _, err := c.ReadULEB128(); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestULEB128TooLong(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = 0x80
	}
	c := New(data)
	if _, err := c.ReadULEB128(); err == nil {
		t.Fatal("expected continuation-limit error")
	}
}

func TestSLEB128Negative(t *testing.T) {
	// -2 encoded as SLEB128: 0x7e
	c := New([]byte{0x7e})
	v, err := c.ReadSLEB128()
	if err != nil {
		t.Fatal(err)
	}
	if v != -2 {
		t.Fatalf("ReadSLEB128 = %d, want -2", v)
	}
}

func TestCString(t *testing.T) {
	c := New([]byte{'h', 'i', 0, 'x'})
	s, err := c.ReadCString()
	if err != nil || s != "hi" {
		t.Fatalf("ReadCString = %q, %v", s, err)
	}
	if c.Pos() != 3 {
		t.Fatalf("Pos = %d, want 3", c.Pos())
	}
}

func TestCStringNoTerminator(t *testing.T) {
	c := New([]byte{'h', 'i'})
	if _, err := c.ReadCString(); err == nil {
		t.Fatal("expected missing-NUL error")
	}
}

func TestSubcursorZeroCopy(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5}
	c := New(data)
	sub, err := c.Subcursor(2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(sub.Bytes()) != 3 || sub.Bytes()[0] != 2 {
		t.Fatalf("Subcursor bytes = %v", sub.Bytes())
	}
	// mutate through the subcursor's backing array and observe it in the parent
	sub.Bytes()[0] = 99
	if data[2] != 99 {
		t.Fatal("Subcursor should share the backing array, not copy it")
	}
}

func TestSubcursorOutOfBounds(t *testing.T) {
	c := New([]byte{0, 1, 2})
	if _, err := c.Subcursor(2, 5); err == nil {
		t.Fatal("expected bounds error")
	}
}
