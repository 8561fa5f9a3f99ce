package types

import (
	"fmt"
	"strings"
)

// Nlist32 is the on-disk layout of a 32-bit symbol table entry (an LC_SYMTAB
// record when the containing file uses Magic32).
type Nlist32 struct {
	Name  uint32
	Type  NType
	Sect  uint8
	Desc  uint16
	Value uint32
}

// Nlist64 is the on-disk layout of a 64-bit symbol table entry.
type Nlist64 struct {
	Name  uint32
	Type  NType
	Sect  uint8
	Desc  uint16
	Value uint64
}

// NType is the n_type byte of a symbol table entry: four disjoint
// bitfields (STAB, PEXT, TYPE, EXT) rather than a single enumerant.
type NType uint8

const (
	NStab     NType = 0xe0 // if any of these bits are set, a symbolic debugging entry
	NPext     NType = 0x10 // private external symbol bit
	NTypeMask NType = 0x0e // mask for the type bits
	NExt      NType = 0x01 // external symbol bit
)

const (
	NUndf NType = 0x0 // undefined, n_sect == 0 (no section)
	NAbs  NType = 0x2 // absolute, n_sect == 0 (no section)
	NSect NType = 0xe // defined in section number n_sect
	NPbud NType = 0xc // prebound undefined (defined in a dylib)
	NIndr NType = 0xa // indirect
)

func (t NType) IsDebugSym() bool             { return t&NStab != 0 }
func (t NType) IsPrivateExternalSym() bool   { return t&NPext != 0 }
func (t NType) IsExternalSym() bool          { return t&NExt != 0 }
func (t NType) IsUndefinedSym() bool         { return t&NTypeMask == NUndf }
func (t NType) IsAbsoluteSym() bool          { return t&NTypeMask == NAbs }
func (t NType) IsDefinedInSection() bool     { return t&NTypeMask == NSect }
func (t NType) IsPreboundUndefinedSym() bool { return t&NTypeMask == NPbud }
func (t NType) IsIndirectSym() bool          { return t&NTypeMask == NIndr }

// String renders the symbol type, substituting secName for a defined-in-section
// symbol since the raw n_sect field is just a 1-based section index.
func (t NType) String(secName string) string {
	var parts []string
	if t.IsDebugSym() {
		parts = append(parts, "debug")
	}
	if t.IsPrivateExternalSym() {
		parts = append(parts, "private_external")
	}
	if t.IsExternalSym() {
		parts = append(parts, "external")
	}
	switch {
	case t.IsUndefinedSym():
		parts = append(parts, "undefined")
	case t.IsAbsoluteSym():
		parts = append(parts, "absolute")
	case t.IsDefinedInSection():
		if secName != "" {
			parts = append(parts, secName)
		} else {
			parts = append(parts, "section")
		}
	case t.IsPreboundUndefinedSym():
		parts = append(parts, "prebound_undefined")
	case t.IsIndirectSym():
		parts = append(parts, "indirect")
	}
	return strings.Join(parts, "|")
}

// NDescType is the n_desc field of a symbol table entry: reference type,
// library ordinal, and a handful of independent marker bits.
type NDescType uint16

const ReferenceTypeMask NDescType = 0x7

const (
	ReferenceFlagUndefinedNonLazy        NDescType = 0
	ReferenceFlagUndefinedLazy           NDescType = 1
	ReferenceFlagDefined                 NDescType = 2
	ReferenceFlagPrivateDefined          NDescType = 3
	ReferenceFlagPrivateUndefinedNonLazy NDescType = 4
	ReferenceFlagPrivateUndefinedLazy    NDescType = 5
)

func (d NDescType) ReferenceType() NDescType { return d & ReferenceTypeMask }

func (d NDescType) LibraryOrdinal() uint8 { return uint8(d >> 8) }

const (
	SelfLibraryOrdinal   = 0x0
	MaxLibraryOrdinal    = 0xfd
	DynamicLookupOrdinal = 0xfe
	ExecutableOrdinal    = 0xff
)

const (
	NDescNoDeadStrip NDescType = 0x0020
	DescDiscarded   NDescType = 0x0020
	WeakRef         NDescType = 0x0040
	WeakDef         NDescType = 0x0080
	RefToWeak       NDescType = 0x0080
	ArmThumbDef     NDescType = 0x0008
	SymbolResolver  NDescType = 0x0100
	AltEntry        NDescType = 0x0200
	NColdFunc       NDescType = 0x0400
)

func (d NDescType) IsWeakRef() bool        { return d&WeakRef != 0 }
func (d NDescType) IsWeakDef() bool        { return d&WeakDef != 0 }
func (d NDescType) IsNoDeadStrip() bool    { return d&NDescNoDeadStrip != 0 }
func (d NDescType) IsArmThumbDef() bool    { return d&ArmThumbDef != 0 }
func (d NDescType) IsSymbolResolver() bool { return d&SymbolResolver != 0 }
func (d NDescType) IsAltEntry() bool       { return d&AltEntry != 0 }
func (d NDescType) IsColdFunc() bool       { return d&NColdFunc != 0 }

func (d NDescType) String() string {
	var parts []string
	if d.IsWeakRef() {
		parts = append(parts, "weak_ref")
	}
	if d.IsWeakDef() {
		parts = append(parts, "weak_def")
	}
	if d.IsNoDeadStrip() {
		parts = append(parts, "no_dead_strip")
	}
	if d.IsSymbolResolver() {
		parts = append(parts, "resolver")
	}
	if d.IsAltEntry() {
		parts = append(parts, "alt_entry")
	}
	if ord := d.LibraryOrdinal(); ord != 0 {
		parts = append(parts, fmt.Sprintf("ordinal=%d", ord))
	}
	return strings.Join(parts, "|")
}

// Symbolic debugger stab values (N_GSYM, N_FUN, ...), present in Nlist
// entries only when IsDebugSym is true.
const (
	NGsym   NType = 0x20
	NFname  NType = 0x22
	NFun    NType = 0x24
	NStsym  NType = 0x26
	NLcsym  NType = 0x28
	NBnsym  NType = 0x2e
	NAst    NType = 0x32
	NOpt    NType = 0x3c
	NRsym   NType = 0x40
	NSline  NType = 0x44
	NEnsym  NType = 0x4e
	NSsym   NType = 0x60
	NSo     NType = 0x64
	NOso    NType = 0x66
	NLsym   NType = 0x80
	NBincl  NType = 0x82
	NSol    NType = 0x84
	NParams NType = 0x86
	NVersion NType = 0x88
	NOlevel NType = 0x8A
	NPsym   NType = 0xa0
	NEincl  NType = 0xa2
	NEntry  NType = 0xa4
	NLbrac  NType = 0xc0
	NExcl   NType = 0xc2
	NRbrac  NType = 0xe0
	NBcomm  NType = 0xe2
	NEcomm  NType = 0xe4
	NEcoml  NType = 0xe8
	NLeng   NType = 0xfe
)
