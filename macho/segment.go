package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// Section is the decoded form of one section record nested inside a segment
// load command, per spec.md 4.4.
type Section struct {
	Name      string
	Seg       string
	Addr      uint64
	Size      uint64
	Offset    uint32
	Align     uint32
	Reloff    uint32
	Nreloc    uint32
	Flags     types.SectionFlag
	Reserved1 uint32
	Reserved2 uint32
	Reserved3 uint32 // 64-bit only

	// segNameMismatch records that this section's Seg field disagrees with
	// the owning segment's name, a malformed-but-survivable condition.
	segNameMismatch bool
}

// SegNameMismatch reports whether this section's declared segment name
// differs from the segment that actually contains it.
func (s Section) SegNameMismatch() bool { return s.segNameMismatch }

// Segment is the decoded form of an LC_SEGMENT/LC_SEGMENT_64 command,
// including its nested Section records.
type Segment struct {
	cmdBase
	Name     string
	Addr     uint64
	Memsz    uint64
	Offset   uint64
	Filesz   uint64
	Maxprot  types.VmProtection
	Prot     types.VmProtection
	Flag     types.SegFlag
	Sections []Section
}

// segment32Body is types.Segment32 without its embedded LoadCmd/Len fields,
// which the caller has already stripped off into cmdBase before calling in.
type segment32Body struct {
	Name    [16]byte
	Addr    uint32
	Memsz   uint32
	Offset  uint32
	Filesz  uint32
	Maxprot types.VmProtection
	Prot    types.VmProtection
	Nsect   uint32
	Flag    types.SegFlag
}

type segment64Body struct {
	Name    [16]byte
	Addr    uint64
	Memsz   uint64
	Offset  uint64
	Filesz  uint64
	Maxprot types.VmProtection
	Prot    types.VmProtection
	Nsect   uint32
	Flag    types.SegFlag
}

func decodeSegment32(base cmdBase, body []byte, bo binary.ByteOrder) (*Segment, error) {
	var raw segment32Body
	r := bytes.NewReader(body)
	if err := binary.Read(r, bo, &raw); err != nil {
		return nil, errs.Wrap(errs.OutOfBounds, "LC_SEGMENT fixed header", err)
	}
	seg := &Segment{
		cmdBase: base,
		Name:    cstringTrim(raw.Name[:]),
		Addr:    uint64(raw.Addr),
		Memsz:   uint64(raw.Memsz),
		Offset:  uint64(raw.Offset),
		Filesz:  uint64(raw.Filesz),
		Maxprot: raw.Maxprot,
		Prot:    raw.Prot,
		Flag:    raw.Flag,
	}
	for i := uint32(0); i < raw.Nsect; i++ {
		var sh types.Section32
		if err := binary.Read(r, bo, &sh); err != nil {
			return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("section %d of segment %s", i, seg.Name), err)
		}
		seg.Sections = append(seg.Sections, sectionFrom32(sh))
	}
	if err := validateSections(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func decodeSegment64(base cmdBase, body []byte, bo binary.ByteOrder) (*Segment, error) {
	var raw segment64Body
	r := bytes.NewReader(body)
	if err := binary.Read(r, bo, &raw); err != nil {
		return nil, errs.Wrap(errs.OutOfBounds, "LC_SEGMENT_64 fixed header", err)
	}
	seg := &Segment{
		cmdBase: base,
		Name:    cstringTrim(raw.Name[:]),
		Addr:    raw.Addr,
		Memsz:   raw.Memsz,
		Offset:  raw.Offset,
		Filesz:  raw.Filesz,
		Maxprot: raw.Maxprot,
		Prot:    raw.Prot,
		Flag:    raw.Flag,
	}
	for i := uint32(0); i < raw.Nsect; i++ {
		var sh types.Section64
		if err := binary.Read(r, bo, &sh); err != nil {
			return nil, errs.Wrap(errs.OutOfBounds, fmt.Sprintf("section %d of segment %s", i, seg.Name), err)
		}
		seg.Sections = append(seg.Sections, sectionFrom64(sh))
	}
	if err := validateSections(seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func sectionFrom32(sh types.Section32) Section {
	return Section{
		Name: cstringTrim(sh.Name[:]), Seg: cstringTrim(sh.Seg[:]),
		Addr: uint64(sh.Addr), Size: uint64(sh.Size), Offset: sh.Offset, Align: sh.Align,
		Reloff: sh.Reloff, Nreloc: sh.Nreloc, Flags: sh.Flags,
		Reserved1: sh.Reserve1, Reserved2: sh.Reserve2,
	}
}

func sectionFrom64(sh types.Section64) Section {
	return Section{
		Name: cstringTrim(sh.Name[:]), Seg: cstringTrim(sh.Seg[:]),
		Addr: sh.Addr, Size: sh.Size, Offset: sh.Offset, Align: sh.Align,
		Reloff: sh.Reloff, Nreloc: sh.Nreloc, Flags: sh.Flags,
		Reserved1: sh.Reserve1, Reserved2: sh.Reserve2, Reserved3: sh.Reserve3,
	}
}

// validateSections enforces spec.md 4.4's non-fatal segname check; the
// offset+size-within-slice bound is enforced once the whole slice's
// length is known, by validateSectionBounds in file.go.
func validateSections(seg *Segment) error {
	for i := range seg.Sections {
		if seg.Sections[i].Seg != seg.Name {
			seg.Sections[i].segNameMismatch = true
		}
	}
	return nil
}
