package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// Symbol is the decoded, string-resolved form of one Nlist32/Nlist64 record.
type Symbol struct {
	Name  string
	Type  types.NType
	Sect  uint8
	Desc  types.NDescType
	Value uint64
}

// Symtab is the decoded form of LC_SYMTAB: the string-resolved symbol list,
// per spec.md 4.5.
type Symtab struct {
	cmdBase
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
	Syms    []Symbol
}

// symtabBody is types.SymtabCmd without its embedded LoadCmd/Len fields.
type symtabBody struct {
	Symoff  uint32
	Nsyms   uint32
	Stroff  uint32
	Strsize uint32
}

func decodeSymtab(base cmdBase, body []byte, sliceData []byte, bo binary.ByteOrder, is64 bool) (*Symtab, error) {
	var raw symtabBody
	if err := binary.Read(bytes.NewReader(body), bo, &raw); err != nil {
		return nil, errs.Wrap(errs.OutOfBounds, "LC_SYMTAB fixed header", err)
	}
	st := &Symtab{
		cmdBase: base,
		Symoff:  raw.Symoff,
		Nsyms:   raw.Nsyms,
		Stroff:  raw.Stroff,
		Strsize: raw.Strsize,
	}
	if int(raw.Stroff)+int(raw.Strsize) > len(sliceData) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("string table [%d,+%d) exceeds slice length %d", raw.Stroff, raw.Strsize, len(sliceData)))
	}
	strtab := sliceData[raw.Stroff : raw.Stroff+raw.Strsize]

	recSize := 12
	if is64 {
		recSize = 16
	}
	need := int(raw.Symoff) + int(raw.Nsyms)*recSize
	if int(raw.Symoff) > len(sliceData) || need > len(sliceData) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("symbol table [%d,+%d) exceeds slice length %d", raw.Symoff, raw.Nsyms*uint32(recSize), len(sliceData)))
	}
	symdata := sliceData[raw.Symoff:need]
	r := bytes.NewReader(symdata)

	st.Syms = make([]Symbol, 0, raw.Nsyms)
	for i := uint32(0); i < raw.Nsyms; i++ {
		name, typ, sect, desc, value, err := readOneNlist(r, bo, is64)
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, fmt.Sprintf("symbol %d", i), err)
		}
		if int(name) >= len(strtab) {
			return nil, errs.New(errs.MalformedRecord, fmt.Sprintf("symbol %d: string index %d exceeds string table size %d", i, name, len(strtab)))
		}
		st.Syms = append(st.Syms, Symbol{
			Name:  cstringTrim(strtab[name:]),
			Type:  typ,
			Sect:  sect,
			Desc:  desc,
			Value: value,
		})
	}
	return st, nil
}

func readOneNlist(r *bytes.Reader, bo binary.ByteOrder, is64 bool) (name uint32, typ types.NType, sect uint8, desc types.NDescType, value uint64, err error) {
	if err = binary.Read(r, bo, &name); err != nil {
		return
	}
	if err = binary.Read(r, bo, &typ); err != nil {
		return
	}
	if err = binary.Read(r, bo, &sect); err != nil {
		return
	}
	if err = binary.Read(r, bo, &desc); err != nil {
		return
	}
	if is64 {
		var v uint64
		err = binary.Read(r, bo, &v)
		value = v
	} else {
		var v uint32
		err = binary.Read(r, bo, &v)
		value = uint64(v)
	}
	return
}

// Dysymtab is the decoded form of LC_DYSYMTAB, per spec.md 4.5.
type Dysymtab struct {
	cmdBase
	Ilocalsym      uint32
	Nlocalsym      uint32
	Iextdefsym     uint32
	Nextdefsym     uint32
	Iundefsym      uint32
	Nundefsym      uint32
	Tocoffset      uint32
	Ntoc           uint32
	Modtaboff      uint32
	Nmodtab        uint32
	Extrefsymoff   uint32
	Nextrefsyms    uint32
	Indirectsymoff uint32
	Nindirectsyms  uint32
	Extreloff      uint32
	Nextrel        uint32
	Locreloff      uint32
	Nlocrel        uint32
	IndirectSyms   []uint32
}

// dysymtabBody is types.DysymtabCmd without its embedded LoadCmd/Len fields.
type dysymtabBody struct {
	Ilocalsym      uint32
	Nlocalsym      uint32
	Iextdefsym     uint32
	Nextdefsym     uint32
	Iundefsym      uint32
	Nundefsym      uint32
	Tocoffset      uint32
	Ntoc           uint32
	Modtaboff      uint32
	Nmodtab        uint32
	Extrefsymoff   uint32
	Nextrefsyms    uint32
	Indirectsymoff uint32
	Nindirectsyms  uint32
	Extreloff      uint32
	Nextrel        uint32
	Locreloff      uint32
	Nlocrel        uint32
}

func decodeDysymtab(base cmdBase, body []byte, sliceData []byte, bo binary.ByteOrder, symtab *Symtab) (*Dysymtab, error) {
	var raw dysymtabBody
	if err := binary.Read(bytes.NewReader(body), bo, &raw); err != nil {
		return nil, errs.Wrap(errs.OutOfBounds, "LC_DYSYMTAB fixed header", err)
	}
	dt := &Dysymtab{
		cmdBase: base, Ilocalsym: raw.Ilocalsym, Nlocalsym: raw.Nlocalsym,
		Iextdefsym: raw.Iextdefsym, Nextdefsym: raw.Nextdefsym,
		Iundefsym: raw.Iundefsym, Nundefsym: raw.Nundefsym,
		Tocoffset: raw.Tocoffset, Ntoc: raw.Ntoc,
		Modtaboff: raw.Modtaboff, Nmodtab: raw.Nmodtab,
		Extrefsymoff: raw.Extrefsymoff, Nextrefsyms: raw.Nextrefsyms,
		Indirectsymoff: raw.Indirectsymoff, Nindirectsyms: raw.Nindirectsyms,
		Extreloff: raw.Extreloff, Nextrel: raw.Nextrel,
		Locreloff: raw.Locreloff, Nlocrel: raw.Nlocrel,
	}

	if symtab != nil {
		nsyms := symtab.Nsyms
		for _, rng := range [][2]uint32{
			{raw.Ilocalsym, raw.Nlocalsym},
			{raw.Iextdefsym, raw.Nextdefsym},
			{raw.Iundefsym, raw.Nundefsym},
		} {
			idx, n := rng[0], rng[1]
			if n > 0 && (idx > nsyms || idx+n > nsyms) {
				return nil, errs.New(errs.MalformedRecord, fmt.Sprintf("symbol range [%d,+%d) exceeds symtab count %d", idx, n, nsyms))
			}
		}
	}

	if raw.Nindirectsyms > 0 {
		need := int(raw.Indirectsymoff) + int(raw.Nindirectsyms)*4
		if int(raw.Indirectsymoff) > len(sliceData) || need > len(sliceData) {
			return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("indirect symbol table [%d,+%d) exceeds slice length %d", raw.Indirectsymoff, raw.Nindirectsyms*4, len(sliceData)))
		}
		dt.IndirectSyms = make([]uint32, raw.Nindirectsyms)
		for i := range dt.IndirectSyms {
			dt.IndirectSyms[i] = bo.Uint32(sliceData[int(raw.Indirectsymoff)+i*4:])
		}
	}
	return dt, nil
}
