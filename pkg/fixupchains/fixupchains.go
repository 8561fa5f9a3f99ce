// Package fixupchains decodes the LC_DYLD_CHAINED_FIXUPS payload: an
// imports table, a symbol-name pool, and a per-segment table of pointer
// chains threaded through the image's bound/rebased pointer slots.
package fixupchains

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// Import is one decoded entry of the chained-fixups imports table.
type Import struct {
	Name       string
	LibOrdinal int64
	Weak       bool
	Addend     int64
}

// FixupKind discriminates a Fixup's payload.
type FixupKind int

const (
	KindRebase FixupKind = iota
	KindBind
)

// Fixup is one resolved pointer-chain slot.
type Fixup struct {
	SegmentOffset uint64 // segment_offset from the owning starts-in-segment record
	FileOffset    uint64 // absolute offset of this pointer slot within the slice
	Kind          FixupKind
	RebaseTarget  uint64 // valid when Kind == KindRebase
	ImportIndex   uint64 // valid when Kind == KindBind: index into ChainedFixups.Imports
	Addend        int64  // valid when Kind == KindBind
}

// ChainedFixups is the full decoded LC_DYLD_CHAINED_FIXUPS payload.
type ChainedFixups struct {
	Version       uint32
	ImportsFormat types.DCImportsFormat
	SymbolsFormat types.DCSymbolsFormat
	Imports       []Import
	Fixups        []Fixup
}

// Decode reads the chained-fixups blob at data[offset:offset+size]. Unlike
// the export trie, dyld_chained_starts_in_segment.SegmentOffset addresses
// the whole mapped slice, not this blob, so pointer-chain words are read
// from data directly rather than from the sub-slice — the same addressing
// walkDcFixupChain uses via its whole-file io.SectionReader.
func Decode(data []byte, offset, size int) (*ChainedFixups, error) {
	if offset < 0 || size < 0 || offset+size > len(data) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("chained fixups range [%d,+%d) exceeds image length %d", offset, size, len(data)))
	}
	blob := data[offset : offset+size]
	if len(blob) < 28 {
		return nil, errs.New(errs.OutOfBounds, "chained fixups header: fewer than 28 bytes available")
	}
	bo := binary.LittleEndian
	var hdr types.DyldChainedFixupsHeader
	if err := binary.Read(bytes.NewReader(blob[:28]), bo, &hdr); err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "chained fixups header", err)
	}

	cf := &ChainedFixups{Version: hdr.FixupsVersion, ImportsFormat: hdr.ImportsFormat, SymbolsFormat: hdr.SymbolsFormat}

	symbolPool, err := decodeSymbolPool(blob, hdr)
	if err != nil {
		return nil, err
	}
	imports, err := decodeImports(blob, hdr, symbolPool)
	if err != nil {
		return nil, err
	}
	cf.Imports = imports

	fixups, err := decodeStarts(data, blob, int(hdr.StartsOffset))
	if err != nil {
		return nil, err
	}
	cf.Fixups = fixups
	return cf, nil
}

func decodeSymbolPool(blob []byte, hdr types.DyldChainedFixupsHeader) ([]byte, error) {
	if int(hdr.SymbolsOffset) > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("symbol pool offset %d exceeds blob length %d", hdr.SymbolsOffset, len(blob)))
	}
	pool := blob[hdr.SymbolsOffset:]
	if hdr.SymbolsFormat == types.DC_SFORMAT_UNCOMPRESSED {
		return pool, nil
	}
	zr, err := zlib.NewReader(bytes.NewReader(pool))
	if err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "zlib-compressed symbol pool", err)
	}
	defer zr.Close()
	decompressed, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "zlib-compressed symbol pool", err)
	}
	return decompressed, nil
}

func decodeImports(blob []byte, hdr types.DyldChainedFixupsHeader, pool []byte) ([]Import, error) {
	imports := make([]Import, 0, hdr.ImportsCount)
	var entrySize int
	switch hdr.ImportsFormat {
	case types.DC_IMPORT:
		entrySize = 4
	case types.DC_IMPORT_ADDEND:
		entrySize = 8
	case types.DC_IMPORT_ADDEND64:
		entrySize = 12
	default:
		return nil, errs.New(errs.UnknownDiscriminant, fmt.Sprintf("unrecognized imports_format %d", hdr.ImportsFormat))
	}

	need := int(hdr.ImportsOffset) + int(hdr.ImportsCount)*entrySize
	if int(hdr.ImportsOffset) > len(blob) || need > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("imports table [%d,+%d) exceeds blob length %d", hdr.ImportsOffset, int(hdr.ImportsCount)*entrySize, len(blob)))
	}
	r := bytes.NewReader(blob[hdr.ImportsOffset:need])

	nameOf := func(off uint64) (string, error) {
		if off >= uint64(len(pool)) {
			return "", errs.New(errs.MalformedRecord, fmt.Sprintf("import name offset %d exceeds symbol pool size %d", off, len(pool)))
		}
		end := off
		for end < uint64(len(pool)) && pool[end] != 0 {
			end++
		}
		return string(pool[off:end]), nil
	}

	for i := uint32(0); i < hdr.ImportsCount; i++ {
		switch hdr.ImportsFormat {
		case types.DC_IMPORT:
			var raw uint32
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("import %d", i), err)
			}
			d := types.DyldChainedImport(raw)
			name, err := nameOf(uint64(d.NameOffset()))
			if err != nil {
				return nil, err
			}
			imports = append(imports, Import{Name: name, LibOrdinal: int64(d.LibOrdinal()), Weak: d.WeakImport()})
		case types.DC_IMPORT_ADDEND:
			var raw uint32
			var addend int32
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("import %d", i), err)
			}
			if err := binary.Read(r, binary.LittleEndian, &addend); err != nil {
				return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("import %d addend", i), err)
			}
			d := types.DyldChainedImport(raw)
			name, err := nameOf(uint64(d.NameOffset()))
			if err != nil {
				return nil, err
			}
			imports = append(imports, Import{Name: name, LibOrdinal: int64(d.LibOrdinal()), Weak: d.WeakImport(), Addend: int64(addend)})
		case types.DC_IMPORT_ADDEND64:
			var raw uint64
			var addend uint64
			if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
				return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("import %d", i), err)
			}
			if err := binary.Read(r, binary.LittleEndian, &addend); err != nil {
				return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("import %d addend", i), err)
			}
			d := types.DyldChainedImport64(raw)
			name, err := nameOf(d.NameOffset())
			if err != nil {
				return nil, err
			}
			imports = append(imports, Import{Name: name, LibOrdinal: int64(d.LibOrdinal()), Weak: d.WeakImport(), Addend: int64(addend)})
		}
	}
	return imports, nil
}

// ptrFormat describes a pointer_format's on-wire entry size and chain
// stride unit, matching the per-case comments in the teacher's
// walkDcFixupChain ("stride 8", "stride 4", "stride 1").
type ptrFormat struct {
	entrySize int
	stride    int
}

var ptrFormats = map[types.DCPtrKind]ptrFormat{
	types.DYLD_CHAINED_PTR_ARM64E:              {8, 8},
	types.DYLD_CHAINED_PTR_64:                  {8, 4},
	types.DYLD_CHAINED_PTR_32:                  {4, 4},
	types.DYLD_CHAINED_PTR_32_CACHE:            {4, 4},
	types.DYLD_CHAINED_PTR_32_FIRMWARE:         {4, 4},
	types.DYLD_CHAINED_PTR_64_OFFSET:           {8, 4},
	types.DYLD_CHAINED_PTR_ARM64E_KERNEL:       {8, 4},
	types.DYLD_CHAINED_PTR_64_KERNEL_CACHE:     {8, 4},
	types.DYLD_CHAINED_PTR_ARM64E_USERLAND:     {8, 8},
	types.DYLD_CHAINED_PTR_ARM64E_FIRMWARE:     {8, 4},
	types.DYLD_CHAINED_PTR_X86_64_KERNEL_CACHE: {8, 1},
	types.DYLD_CHAINED_PTR_ARM64E_USERLAND24:   {8, 8},
}

// decodeStarts walks dyld_chained_starts_in_image/dyld_chained_starts_in_segment
// and every pointer chain each segment's page_start table seeds.
func decodeStarts(sliceData, blob []byte, startsOffset int) ([]Fixup, error) {
	if startsOffset < 0 || startsOffset+4 > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("starts table offset %d exceeds blob length %d", startsOffset, len(blob)))
	}
	segCount := binary.LittleEndian.Uint32(blob[startsOffset:])
	need := startsOffset + 4 + int(segCount)*4
	if need > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("starts table seg_count %d exceeds blob length %d", segCount, len(blob)))
	}

	var fixups []Fixup
	for s := uint32(0); s < segCount; s++ {
		segInfoOff := binary.LittleEndian.Uint32(blob[startsOffset+4+int(s)*4:])
		if segInfoOff == 0 {
			continue // no fixups in this segment
		}
		abs := startsOffset + int(segInfoOff)
		segFixups, err := decodeSegmentStarts(sliceData, blob, abs)
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, fmt.Sprintf("segment %d starts", s), err)
		}
		fixups = append(fixups, segFixups...)
	}
	return fixups, nil
}

func decodeSegmentStarts(sliceData, blob []byte, off int) ([]Fixup, error) {
	if off < 0 || off+22 > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("segment_info at %d exceeds blob length %d", off, len(blob)))
	}
	var info types.DyldChainedStartsInSegment
	if err := binary.Read(bytes.NewReader(blob[off:off+22]), binary.LittleEndian, &info); err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "dyld_chained_starts_in_segment", err)
	}
	pf, ok := ptrFormats[info.PointerFormat]
	if !ok {
		return nil, errs.New(errs.UnknownDiscriminant, fmt.Sprintf("unrecognized pointer_format %d", info.PointerFormat))
	}
	if uint64(info.PageCount)*uint64(info.PageSize) == 0 {
		return nil, nil
	}

	pageStartsOff := off + 22
	need := pageStartsOff + int(info.PageCount)*2
	if need > len(blob) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("page_start table exceeds blob length %d", len(blob)))
	}

	overflowOff := pageStartsOff + int(info.PageCount)*2

	var fixups []Fixup
	for p := uint16(0); p < info.PageCount; p++ {
		pageStart := binary.LittleEndian.Uint16(blob[pageStartsOff+int(p)*2:])
		if pageStart == uint16(types.DYLD_CHAINED_PTR_START_NONE) {
			continue
		}
		if pageStart&uint16(types.DYLD_CHAINED_PTR_START_MULTI) != 0 {
			chainFixups, err := walkMultiStartPage(sliceData, blob, info, pf, p, overflowOff, int(pageStart&^uint16(types.DYLD_CHAINED_PTR_START_MULTI)))
			if err != nil {
				return nil, err
			}
			fixups = append(fixups, chainFixups...)
			continue
		}
		chainFixups, err := walkChain(sliceData, info, pf, p, pageStart)
		if err != nil {
			return nil, err
		}
		fixups = append(fixups, chainFixups...)
	}
	return fixups, nil
}

// walkMultiStartPage walks every chain seeded on a page whose page_start
// carries DYLD_CHAINED_PTR_START_MULTI: the real start offsets live in an
// overflow array following the page_start table, one uint16 per chain,
// each masked with DYLD_CHAINED_PTR_START_LAST on the final entry for the
// page, per dyld_chained_starts_in_segment's overflow convention.
func walkMultiStartPage(sliceData, blob []byte, info types.DyldChainedStartsInSegment, pf ptrFormat, pageIndex uint16, overflowOff, index int) ([]Fixup, error) {
	var fixups []Fixup
	for {
		entryOff := overflowOff + index*2
		if entryOff < 0 || entryOff+2 > len(blob) {
			return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("chain overflow entry %d exceeds blob length %d", index, len(blob)))
		}
		entry := binary.LittleEndian.Uint16(blob[entryOff:])
		start := entry &^ uint16(types.DYLD_CHAINED_PTR_START_LAST)
		chainFixups, err := walkChain(sliceData, info, pf, pageIndex, start)
		if err != nil {
			return nil, err
		}
		fixups = append(fixups, chainFixups...)
		if entry&uint16(types.DYLD_CHAINED_PTR_START_LAST) != 0 {
			break
		}
		index++
	}
	return fixups, nil
}

func walkChain(sliceData []byte, info types.DyldChainedStartsInSegment, pf ptrFormat, pageIndex uint16, pageStart uint16) ([]Fixup, error) {
	base := info.SegmentOffset + uint64(pageIndex)*uint64(info.PageSize)
	var fixups []Fixup
	visited := map[uint64]bool{}
	cur := uint64(pageStart)

	for {
		fileOff := base + cur
		if visited[fileOff] {
			return nil, errs.New(errs.CycleDetected, fmt.Sprintf("fixup chain revisits offset %d on page %d", fileOff, pageIndex))
		}
		visited[fileOff] = true

		if int(fileOff)+pf.entrySize > len(sliceData) {
			return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("fixup pointer at %d exceeds slice length %d", fileOff, len(sliceData)))
		}
		var raw uint64
		if pf.entrySize == 8 {
			raw = binary.LittleEndian.Uint64(sliceData[fileOff:])
		} else {
			raw = uint64(binary.LittleEndian.Uint32(sliceData[fileOff:]))
		}

		next, fx, err := decodePointer(info.PointerFormat, raw)
		if err != nil {
			return nil, err
		}
		fx.SegmentOffset = info.SegmentOffset
		fx.FileOffset = fileOff
		fixups = append(fixups, fx)

		if next == 0 {
			break
		}
		cur += next * uint64(pf.stride)
	}
	return fixups, nil
}

func decodePointer(format types.DCPtrKind, raw uint64) (next uint64, fx Fixup, err error) {
	switch format {
	case types.DYLD_CHAINED_PTR_ARM64E, types.DYLD_CHAINED_PTR_ARM64E_KERNEL,
		types.DYLD_CHAINED_PTR_ARM64E_USERLAND, types.DYLD_CHAINED_PTR_ARM64E_FIRMWARE:
		isBind := types.DcpArm64eIsBind(raw)
		isAuth := types.DcpArm64eIsAuth(raw)
		next = types.DcpArm64eNext(raw)
		switch {
		case isBind && isAuth:
			b := types.DyldChainedPtrArm64eAuthBind(raw)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal())}
		case isBind:
			b := types.DyldChainedPtrArm64eBind(raw)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal()), Addend: int64(b.SignExtendedAddend())}
		case isAuth:
			r := types.DyldChainedPtrArm64eAuthRebase(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		default:
			r := types.DyldChainedPtrArm64eRebase(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		}
	case types.DYLD_CHAINED_PTR_ARM64E_USERLAND24:
		isBind := types.DcpArm64eIsBind(raw)
		isAuth := types.DcpArm64eIsAuth(raw)
		next = types.DcpArm64eNext(raw)
		switch {
		case isBind && isAuth:
			b := types.DyldChainedPtrArm64eAuthBind24(raw)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal())}
		case isBind:
			b := types.DyldChainedPtrArm64eBind24(raw)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal()), Addend: int64(b.SignExtendedAddend())}
		case isAuth:
			// Rebase records share the plain arm64e layout regardless of the
			// 24-bit-ordinal bind variant in use on this page.
			r := types.DyldChainedPtrArm64eAuthRebase(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		default:
			r := types.DyldChainedPtrArm64eRebase(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		}
	case types.DYLD_CHAINED_PTR_64, types.DYLD_CHAINED_PTR_64_OFFSET:
		isBind := types.Generic64IsBind(raw)
		next = types.Generic64Next(raw)
		switch {
		case isBind:
			b := types.DyldChainedPtr64Bind(raw)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal()), Addend: int64(b.Addend())}
		case format == types.DYLD_CHAINED_PTR_64:
			r := types.DyldChainedPtr64Rebase(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		default:
			r := types.DyldChainedPtr64RebaseOffset(raw)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		}
	case types.DYLD_CHAINED_PTR_64_KERNEL_CACHE, types.DYLD_CHAINED_PTR_X86_64_KERNEL_CACHE:
		r := types.DyldChainedPtr64KernelCacheRebase(raw)
		next = r.Next()
		fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
	case types.DYLD_CHAINED_PTR_32:
		raw32 := uint32(raw)
		isBind := types.Generic32IsBind(raw32)
		next = uint64(types.Generic32Next(raw32))
		if isBind {
			b := types.DyldChainedPtr32Bind(raw32)
			fx = Fixup{Kind: KindBind, ImportIndex: uint64(b.Ordinal()), Addend: int64(b.Addend())}
		} else {
			r := types.DyldChainedPtr32Rebase(raw32)
			fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
		}
	case types.DYLD_CHAINED_PTR_32_CACHE:
		r := types.DyldChainedPtr32CacheRebase(uint32(raw))
		next = uint64(r.Next())
		fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
	case types.DYLD_CHAINED_PTR_32_FIRMWARE:
		r := types.DyldChainedPtr32FirmwareRebase(uint32(raw))
		next = uint64(r.Next())
		fx = Fixup{Kind: KindRebase, RebaseTarget: uint64(r.Offset())}
	default:
		return 0, Fixup{}, errs.New(errs.UnknownDiscriminant, fmt.Sprintf("unrecognized pointer_format %d", format))
	}
	return next, fx, nil
}
