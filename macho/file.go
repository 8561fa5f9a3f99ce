package macho

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/coreglyph/gomacho/pkg/codesign"
	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/pkg/exporttrie"
	"github.com/coreglyph/gomacho/pkg/fixupchains"
	"github.com/coreglyph/gomacho/types"
)

// ParsedSlice is the top-level parsed value for one Mach-O slice: its
// header, its ordered load commands, and the resolved sub-decoder outputs
// for whichever of those commands carry a data range into the slice, per
// spec.md 4.9. Aggregation never fails once every sub-decoder has already
// succeeded — it is pure composition over their results.
type ParsedSlice struct {
	Header    types.FileHeader
	ByteOrder binary.ByteOrder
	Is64      bool
	Data      []byte // zero-copy view of this slice's own byte range

	Commands []LoadCommand
	Segments []Segment
	Symtab   *Symtab
	Dysymtab *Dysymtab

	Exports       []exporttrie.Export
	ChainedFixups *fixupchains.ChainedFixups
	CodeSignature *codesign.SuperBlob
}

// File is the result of parsing a whole input image: either one slice
// (FatHeader nil) or a fat (universal) binary's full set of slices, in the
// same order as FatHeader.Archs.
type File struct {
	FatHeader *FatHeader
	Slices    []ParsedSlice
}

// Parse implements spec.md 6's `parse(bytes) → FatOrSingle`: classify the
// leading magic and dispatch to a single-slice parse or a fat parse.
func Parse(data []byte) (*File, error) {
	magic, bo, is64, fat, err := decodeMagic(data)
	if err != nil {
		return nil, err
	}
	if !fat {
		ps, err := parseSliceWith(data, bo, is64)
		if err != nil {
			return nil, err
		}
		return &File{Slices: []ParsedSlice{*ps}}, nil
	}

	fh, err := decodeFatHeader(data, magic, is64)
	if err != nil {
		return nil, err
	}
	slices, err := parseFatSlices(data, fh)
	if err != nil {
		return nil, err
	}
	return &File{FatHeader: fh, Slices: slices}, nil
}

// ParseSlice implements spec.md 6's `parse_slice(bytes, slice_range) →
// ParsedSlice`: data is already the slice's own byte range (e.g. one fat
// arch's [offset, offset+size), or a whole non-fat file).
func ParseSlice(data []byte) (*ParsedSlice, error) {
	_, bo, is64, fat, err := decodeMagic(data)
	if err != nil {
		return nil, err
	}
	if fat {
		return nil, errs.New(errs.BadMagic, "ParseSlice given a fat-binary magic; use Parse or parse one fat arch's byte range")
	}
	return parseSliceWith(data, bo, is64)
}

// maxFatWorkers bounds the worker pool spec.md 5 permits (but does not
// require) for parallelizing across a fat binary's disjoint slices.
const maxFatWorkers = 4

// parseFatSlices decodes every fat arch's slice, each against its own
// disjoint byte range (disjointness already enforced by decodeFatHeader's
// validateNoOverlap), with a bounded worker pool. Results preserve
// fh.Archs's order regardless of completion order.
func parseFatSlices(data []byte, fh *FatHeader) ([]ParsedSlice, error) {
	slices := make([]ParsedSlice, len(fh.Archs))
	failures := make([]error, len(fh.Archs))

	sem := make(chan struct{}, maxFatWorkers)
	var wg sync.WaitGroup
	for i, a := range fh.Archs {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, a FatArch) {
			defer wg.Done()
			defer func() { <-sem }()
			ps, err := ParseSlice(data[a.Offset : a.Offset+a.Size])
			if err != nil {
				failures[i] = errs.Wrap(errs.MalformedRecord, fmt.Sprintf("fat arch %d (%s)", i, a.CPU), err)
				return
			}
			slices[i] = *ps
		}(i, a)
	}
	wg.Wait()

	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}
	return slices, nil
}

func parseSliceWith(data []byte, bo binary.ByteOrder, is64 bool) (*ParsedSlice, error) {
	hdr, headerSize, err := decodeFileHeader(data, bo, is64)
	if err != nil {
		return nil, err
	}

	cmds, segs, symtab, dysymtab, err := decodeLoadCommands(data, headerSize, bo, hdr)
	if err != nil {
		return nil, err
	}
	if err := validateCmdSizeSum(cmds, hdr); err != nil {
		return nil, err
	}
	if err := validateSectionBounds(segs, len(data)); err != nil {
		return nil, err
	}

	exports, err := resolveExports(data, cmds)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "export trie", err)
	}
	fixups, err := resolveChainedFixups(data, cmds)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "chained fixups", err)
	}
	codeSig, err := resolveCodeSignature(data, cmds)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "code signature", err)
	}

	return &ParsedSlice{
		Header:        hdr,
		ByteOrder:     bo,
		Is64:          is64,
		Data:          data,
		Commands:      cmds,
		Segments:      segs,
		Symtab:        symtab,
		Dysymtab:      dysymtab,
		Exports:       exports,
		ChainedFixups: fixups,
		CodeSignature: codeSig,
	}, nil
}

// validateCmdSizeSum enforces spec.md 8's invariant: the sum of cmdsize
// over the load-command stream equals the header's declared sizeofcmds.
func validateCmdSizeSum(cmds []LoadCommand, hdr types.FileHeader) error {
	var sum int
	for _, c := range cmds {
		sum += len(c.Raw())
	}
	if uint32(sum) != hdr.SizeCommands {
		return errs.New(errs.MalformedRecord, fmt.Sprintf("load command stream: cmdsize sum %d does not match header sizeofcmds %d", sum, hdr.SizeCommands))
	}
	return nil
}

// validateSectionBounds enforces spec.md 4.4's offset+size bound: a
// non-zerofill section's file range must fall entirely inside the slice
// that contains it. Zerofill sections carry no file content (their bytes
// live only in memory at load time), so offset/size describe no file range
// and are exempt.
func validateSectionBounds(segs []Segment, sliceLen int) error {
	for _, seg := range segs {
		for _, s := range seg.Sections {
			switch s.Flags.Kind() {
			case types.Zerofill, types.ThreadLocalZerofill, types.GbZerofill:
				continue
			}
			end := uint64(s.Offset) + s.Size
			if end > uint64(sliceLen) {
				return errs.New(errs.OutOfBounds, fmt.Sprintf("section %s.%s: offset %d + size %d exceeds slice length %d", seg.Name, s.Name, s.Offset, s.Size, sliceLen))
			}
		}
	}
	return nil
}

// resolveExports prefers LC_DYLD_EXPORTS_TRIE (the modern, standalone form)
// and falls back to LC_DYLD_INFO(_ONLY)'s embedded export_off/export_size
// range, per spec.md 4.6.
func resolveExports(data []byte, cmds []LoadCommand) ([]exporttrie.Export, error) {
	for _, c := range cmds {
		if c.Command() != types.LC_DYLD_EXPORTS_TRIE {
			continue
		}
		led := c.(LinkEditData)
		if led.Size == 0 {
			return nil, nil
		}
		return exporttrie.Decode(data, int(led.Offset), int(led.Size))
	}
	for _, c := range cmds {
		di, ok := c.(DyldInfo)
		if !ok || di.ExportSize == 0 {
			continue
		}
		return exporttrie.Decode(data, int(di.ExportOff), int(di.ExportSize))
	}
	return nil, nil
}

func resolveChainedFixups(data []byte, cmds []LoadCommand) (*fixupchains.ChainedFixups, error) {
	for _, c := range cmds {
		if c.Command() != types.LC_DYLD_CHAINED_FIXUPS {
			continue
		}
		led := c.(LinkEditData)
		if led.Size == 0 {
			return nil, nil
		}
		return fixupchains.Decode(data, int(led.Offset), int(led.Size))
	}
	return nil, nil
}

func resolveCodeSignature(data []byte, cmds []LoadCommand) (*codesign.SuperBlob, error) {
	for _, c := range cmds {
		if c.Command() != types.LC_CODE_SIGNATURE {
			continue
		}
		led := c.(LinkEditData)
		if led.Size == 0 {
			return nil, nil
		}
		return codesign.Decode(data, int(led.Offset), int(led.Size))
	}
	return nil, nil
}
