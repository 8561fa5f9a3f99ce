package macho

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/coreglyph/gomacho/types"
)

// buildMinimalHeader64 writes a little-endian 64-bit Mach-O header with no
// load commands: Magic, CPU, SubCPU, Type, NCommands, SizeCommands, Flags,
// Reserved, each a 4-byte field, in that order.
func buildMinimalHeader64(ncmds, sizeofcmds uint32) []byte {
	var buf bytes.Buffer
	for _, v := range []uint32{
		uint32(types.Magic64),
		uint32(types.CPUAmd64),
		0, // subcpu
		2, // MH_EXECUTE
		ncmds,
		sizeofcmds,
		0, // flags
		0, // reserved
	} {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func TestParseMinimalNonFat(t *testing.T) {
	data := buildMinimalHeader64(0, 0)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.FatHeader != nil {
		t.Fatal("expected non-fat result")
	}
	if len(f.Slices) != 1 {
		t.Fatalf("got %d slices, want 1", len(f.Slices))
	}
	s := f.Slices[0]
	if s.Header.CPU != types.CPUAmd64 {
		t.Errorf("CPU = %v, want CPUAmd64", s.Header.CPU)
	}
	if !s.Is64 {
		t.Error("Is64 = false, want true")
	}
	if len(s.Commands) != 0 {
		t.Errorf("got %d commands, want 0", len(s.Commands))
	}
}

func TestParseSliceRejectsFatMagic(t *testing.T) {
	var buf bytes.Buffer
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(types.MagicFat))
	buf.Write(b[:])
	binary.BigEndian.PutUint32(b[:], 0) // nfat_arch
	buf.Write(b[:])

	if _, err := ParseSlice(buf.Bytes()); err == nil {
		t.Fatal("expected error for fat magic passed to ParseSlice")
	}
}

func TestValidateCmdSizeSumMismatch(t *testing.T) {
	// Header claims 4 bytes of load-command data but carries none.
	data := buildMinimalHeader64(1, 4)

	if _, err := Parse(data); err == nil {
		t.Fatal("expected cmdsize-sum mismatch error")
	}
}

func TestParseFatTwoSlices(t *testing.T) {
	slice0 := buildMinimalHeader64(0, 0)
	slice1 := buildMinimalHeader64(0, 0)
	// slice1's own header names CPU386, matching its fat_arch entry below.
	binary.LittleEndian.PutUint32(slice1[4:8], uint32(types.CPU386))

	var buf bytes.Buffer
	put32 := func(v uint32) {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], v)
		buf.Write(b[:])
	}
	put32(uint32(types.MagicFat))
	put32(2) // nfat_arch

	headerLen := fatHeaderFixedSize + 2*fatArch32Size
	off0 := uint32(headerLen)
	off1 := off0 + uint32(len(slice0))

	put32(uint32(types.CPUAmd64))
	put32(0) // subcpu
	put32(off0)
	put32(uint32(len(slice0)))
	put32(0) // align

	put32(uint32(types.CPU386))
	put32(0)
	put32(off1)
	put32(uint32(len(slice1)))
	put32(0)

	buf.Write(slice0)
	buf.Write(slice1)

	f, err := Parse(buf.Bytes())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.FatHeader == nil || len(f.FatHeader.Archs) != 2 {
		t.Fatalf("expected 2 fat archs, got %+v", f.FatHeader)
	}
	if len(f.Slices) != 2 {
		t.Fatalf("got %d slices, want 2", len(f.Slices))
	}
	if f.Slices[0].Header.CPU != types.CPUAmd64 {
		t.Errorf("Slices[0].CPU = %v, want CPUAmd64", f.Slices[0].Header.CPU)
	}
	if f.Slices[1].Header.CPU != types.CPU386 {
		t.Errorf("Slices[1].CPU = %v, want CPU386", f.Slices[1].Header.CPU)
	}
}
