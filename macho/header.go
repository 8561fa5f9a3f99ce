package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// decodeMagic reads the first 4 bytes of data and classifies them against the
// eight recognized magic values, per spec.md 4.2. It returns the byte order
// the rest of the slice/file is encoded in and whether the magic identifies
// a 64-bit single-slice header; for fat magics is64/bo describe the fat
// header itself, not the contained slices.
func decodeMagic(data []byte) (magic types.Magic, bo binary.ByteOrder, is64 bool, fat bool, err error) {
	if len(data) < 4 {
		return 0, nil, false, false, errs.New(errs.OutOfBounds, "magic: fewer than 4 bytes available")
	}
	be := binary.BigEndian.Uint32(data)
	le := binary.LittleEndian.Uint32(data)

	switch {
	case be == uint32(types.Magic32):
		return types.Magic32, binary.BigEndian, false, false, nil
	case le == uint32(types.Magic32):
		return types.Magic32, binary.LittleEndian, false, false, nil
	case be == uint32(types.Magic64):
		return types.Magic64, binary.BigEndian, true, false, nil
	case le == uint32(types.Magic64):
		return types.Magic64, binary.LittleEndian, true, false, nil
	case be == uint32(types.MagicFat):
		return types.MagicFat, binary.BigEndian, false, true, nil
	case le == uint32(types.MagicFat):
		return types.MagicFatSwapped, binary.LittleEndian, false, true, nil
	case be == uint32(types.MagicFat64):
		return types.MagicFat64, binary.BigEndian, true, true, nil
	case le == uint32(types.MagicFat64):
		return types.MagicFat64Swap, binary.LittleEndian, true, true, nil
	default:
		return 0, nil, false, false, errs.New(errs.BadMagic, fmt.Sprintf("unrecognized magic %#08x / %#08x", be, le))
	}
}

// decodeFileHeader reads a 32- or 64-bit MachHeader at the start of data.
// A 64-bit header carries one trailing reserved word a 32-bit header lacks.
func decodeFileHeader(data []byte, bo binary.ByteOrder, is64 bool) (types.FileHeader, int, error) {
	size := types.FileHeaderSize32
	if is64 {
		size = types.FileHeaderSize64
	}
	if len(data) < size {
		return types.FileHeader{}, 0, errs.New(errs.OutOfBounds, fmt.Sprintf("header: need %d bytes, have %d", size, len(data)))
	}
	var hdr types.FileHeader
	r := bytes.NewReader(data[:size])
	fields := []interface{}{&hdr.Magic, &hdr.CPU, &hdr.SubCPU, &hdr.Type, &hdr.NCommands, &hdr.SizeCommands, &hdr.Flags}
	if is64 {
		fields = append(fields, &hdr.Reserved)
	}
	if err := readFields(r, bo, fields...); err != nil {
		return types.FileHeader{}, 0, errs.Wrap(errs.MalformedRecord, "file header", err)
	}
	return hdr, size, nil
}
