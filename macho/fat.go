package macho

import (
	"encoding/binary"
	"fmt"

	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// FatArch describes one architecture slice inside a fat (universal) binary.
type FatArch struct {
	CPU      types.CPU
	SubCPU   types.CPUSubtype
	Offset   uint64
	Size     uint64
	Align    uint32
	Reserved uint32 // 64-bit fat headers only
}

// FatHeader is the decoded form of a fat (universal) binary's leading
// struct fat_header plus its fat_arch/fat_arch_64 table, per spec.md 4.2.
// The teacher's own NewFatFile is an unimplemented stub
// (panic("MagicFat not handled yet")), so this is grounded directly in the
// documented on-disk layout rather than adapted teacher code.
type FatHeader struct {
	Magic types.Magic
	Archs []FatArch
}

const (
	fatHeaderFixedSize = 8  // magic (already consumed) + nfat_arch
	fatArch32Size      = 20 // cputype, cpusubtype, offset, size, align
	fatArch64Size      = 32 // + reserved, all fields widened to 64-bit
)

// decodeFatHeader reads the fat_header/fat_arch(_64) table starting at
// offset 0 of data (data[0:4] is the magic, already classified by the
// caller). The header and arch table are big-endian for MagicFat/MagicFat64
// and little-endian for the swapped variants MagicFatSwapped/MagicFat64Swap.
func decodeFatHeader(data []byte, magic types.Magic, is64 bool) (*FatHeader, error) {
	if len(data) < fatHeaderFixedSize {
		return nil, errs.New(errs.OutOfBounds, "fat header: fewer than 8 bytes available")
	}
	var bo binary.ByteOrder = binary.BigEndian
	if magic == types.MagicFatSwapped || magic == types.MagicFat64Swap {
		bo = binary.LittleEndian
	}
	nArch := bo.Uint32(data[4:8])

	archSize := fatArch32Size
	if is64 {
		archSize = fatArch64Size
	}
	need := fatHeaderFixedSize + int(nArch)*archSize
	if int(nArch) > len(data)/archSize || need > len(data) {
		return nil, errs.New(errs.MalformedRecord, fmt.Sprintf("fat header: nfat_arch %d exceeds available bytes", nArch))
	}

	fh := &FatHeader{Magic: magic, Archs: make([]FatArch, 0, nArch)}
	off := fatHeaderFixedSize
	for i := uint32(0); i < nArch; i++ {
		var a FatArch
		if is64 {
			a.CPU = types.CPU(bo.Uint32(data[off:]))
			a.SubCPU = types.CPUSubtype(bo.Uint32(data[off+4:]))
			a.Offset = bo.Uint64(data[off+8:])
			a.Size = bo.Uint64(data[off+16:])
			a.Align = bo.Uint32(data[off+24:])
			a.Reserved = bo.Uint32(data[off+28:])
		} else {
			a.CPU = types.CPU(bo.Uint32(data[off:]))
			a.SubCPU = types.CPUSubtype(bo.Uint32(data[off+4:]))
			a.Offset = uint64(bo.Uint32(data[off+8:]))
			a.Size = uint64(bo.Uint32(data[off+12:]))
			a.Align = bo.Uint32(data[off+16:])
		}
		fh.Archs = append(fh.Archs, a)
		off += archSize
	}

	if err := validateNoOverlap(fh.Archs, len(data)); err != nil {
		return nil, err
	}
	return fh, nil
}

// validateNoOverlap enforces spec.md 4.2's invariant: each slice's
// (offset, offset+size) lies within the image and slices do not overlap.
func validateNoOverlap(archs []FatArch, imageLen int) error {
	type span struct{ lo, hi uint64 }
	spans := make([]span, 0, len(archs))
	for i, a := range archs {
		hi := a.Offset + a.Size
		if hi < a.Offset || hi > uint64(imageLen) {
			return errs.New(errs.OutOfBounds, fmt.Sprintf("fat arch %d: range [%d,+%d) exceeds image length %d", i, a.Offset, a.Size, imageLen))
		}
		spans = append(spans, span{a.Offset, hi})
	}
	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			if spans[i].lo < spans[j].hi && spans[j].lo < spans[i].hi {
				return errs.New(errs.MalformedRecord, fmt.Sprintf("fat arch %d overlaps fat arch %d", i, j))
			}
		}
	}
	return nil
}
