package macho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/coreglyph/gomacho/types"
)

func name16(s string) [16]byte {
	var b [16]byte
	copy(b[:], s)
	return b
}

func TestDecodeSegment64WithSection(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, segment64Body{
		Name:    name16("__TEXT"),
		Addr:    0x1000,
		Memsz:   0x2000,
		Offset:  0,
		Filesz:  0x2000,
		Maxprot: 7,
		Prot:    5,
		Nsect:   1,
		Flag:    0,
	})
	binary.Write(&buf, binary.LittleEndian, types.Section64{
		Name:   name16("__text"),
		Seg:    name16("__TEXT"),
		Addr:   0x1000,
		Size:   0x10,
		Offset: 0x1000,
		Align:  4,
	})

	seg, err := decodeSegment64(cmdBase{}, buf.Bytes(), binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeSegment64: %v", err)
	}
	if seg.Name != "__TEXT" {
		t.Errorf("Name = %q, want __TEXT", seg.Name)
	}
	if len(seg.Sections) != 1 {
		t.Fatalf("got %d sections, want 1", len(seg.Sections))
	}
	if seg.Sections[0].SegNameMismatch() {
		t.Error("expected no segname mismatch")
	}
}

func TestDecodeSegment64SectionNameMismatch(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, segment64Body{
		Name:  name16("__DATA"),
		Nsect: 1,
	})
	binary.Write(&buf, binary.LittleEndian, types.Section64{
		Name: name16("__data"),
		Seg:  name16("__TEXT"), // deliberately wrong
	})

	seg, err := decodeSegment64(cmdBase{}, buf.Bytes(), binary.LittleEndian)
	if err != nil {
		t.Fatalf("decodeSegment64: %v", err)
	}
	if !seg.Sections[0].SegNameMismatch() {
		t.Error("expected segname mismatch to be flagged")
	}
}

func TestDecodeSegment64Truncated(t *testing.T) {
	if _, err := decodeSegment64(cmdBase{}, []byte{0x01, 0x02}, binary.LittleEndian); err == nil {
		t.Fatal("expected error decoding truncated segment body")
	}
}
