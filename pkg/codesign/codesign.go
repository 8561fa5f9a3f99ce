// Package codesign decodes the LC_CODE_SIGNATURE SuperBlob: the
// CodeDirectory, embedded Requirements expressions, Entitlements plist and
// CMS signature blobs described by spec.md 4.8. Entitlements and the CMS
// signature are kept opaque (plist text / DER bytes respectively); neither
// is a goal of this decoder.
package codesign

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/coreglyph/gomacho/pkg/errs"
)

// Magic identifies the blob kind embedded at a SuperBlob index offset.
type Magic uint32

const (
	MagicRequirement             Magic = 0xfade0c00
	MagicRequirements            Magic = 0xfade0c01
	MagicCodeDirectory           Magic = 0xfade0c02
	MagicEmbeddedSignature       Magic = 0xfade0cc0
	MagicEmbeddedSignatureOld    Magic = 0xfade0b02
	MagicLibraryDependencyBlob   Magic = 0xfade0c05
	MagicEmbeddedEntitlements    Magic = 0xfade7171
	MagicEmbeddedEntitlementsDER Magic = 0xfade7172
	MagicDetachedSignature       Magic = 0xfade0cc1
	MagicBlobWrapper             Magic = 0xfade0b01
)

func (m Magic) String() string {
	switch m {
	case MagicRequirement:
		return "Requirement"
	case MagicRequirements:
		return "Requirements"
	case MagicCodeDirectory:
		return "CodeDirectory"
	case MagicEmbeddedSignature:
		return "EmbeddedSignature"
	case MagicEmbeddedSignatureOld:
		return "EmbeddedSignatureOld"
	case MagicLibraryDependencyBlob:
		return "LibraryDependencyBlob"
	case MagicEmbeddedEntitlements:
		return "EmbeddedEntitlements"
	case MagicEmbeddedEntitlementsDER:
		return "EmbeddedEntitlementsDER"
	case MagicDetachedSignature:
		return "DetachedSignature"
	case MagicBlobWrapper:
		return "BlobWrapper"
	default:
		return fmt.Sprintf("Magic(%#x)", uint32(m))
	}
}

// SlotType is the index entry's role in the SuperBlob.
type SlotType uint32

const (
	SlotCodeDirectory             SlotType = 0
	SlotInfo                      SlotType = 1
	SlotRequirements              SlotType = 2
	SlotResourceDir               SlotType = 3
	SlotApplication               SlotType = 4
	SlotEntitlements              SlotType = 5
	SlotRepSpecific               SlotType = 6
	SlotEntitlementsDER           SlotType = 7
	SlotAlternateCodeDirectories  SlotType = 0x1000
	SlotAlternateCodeDirectories1 SlotType = 0x1001
	SlotAlternateCodeDirectories2 SlotType = 0x1002
	SlotAlternateCodeDirectories3 SlotType = 0x1003
	SlotAlternateCodeDirectories4 SlotType = 0x1004
	SlotCMSSignature              SlotType = 0x10000
	SlotIdentification            SlotType = 0x10001
	SlotTicket                    SlotType = 0x10002
)

func (t SlotType) String() string {
	switch {
	case t == SlotCodeDirectory:
		return "CodeDirectory"
	case t == SlotInfo:
		return "Info.plist"
	case t == SlotRequirements:
		return "Requirements"
	case t == SlotResourceDir:
		return "ResourceDir"
	case t == SlotApplication:
		return "Application"
	case t == SlotEntitlements:
		return "Entitlements"
	case t == SlotRepSpecific:
		return "RepSpecific"
	case t == SlotEntitlementsDER:
		return "EntitlementsDER"
	case t >= SlotAlternateCodeDirectories && t <= SlotAlternateCodeDirectories4:
		return fmt.Sprintf("AlternateCodeDirectory%d", t-SlotAlternateCodeDirectories)
	case t == SlotCMSSignature:
		return "CMSSignature"
	case t == SlotIdentification:
		return "Identification"
	case t == SlotTicket:
		return "Ticket"
	default:
		return fmt.Sprintf("SlotType(%#x)", uint32(t))
	}
}

// SpecialSlot is one negative-indexed hash preceding the code directory's
// ordinary code-page hashes (Info.plist, Requirements, ... by convention).
type SpecialSlot struct {
	Index SlotType
	Hash  []byte
	Bound bool // false when the hash is all-zero: the slot exists but nothing is bound to it
}

// CodeSlot is one ordinary code-page hash.
type CodeSlot struct {
	Page uint32
	Hash []byte
}

// CodeDirectory is a decoded cs_code_directory (CSSLOT_CODEDIRECTORY or one
// of the CSSLOT_ALTERNATE_CODEDIRECTORIES variants), per spec.md 4.8.
type CodeDirectory struct {
	Version      uint32
	Flags        uint32
	Identifier   string
	TeamID       string // empty unless Version >= SUPPORTS_TEAMID and a team offset is present
	HashType     uint8
	HashSize     uint8
	Platform     uint8
	PageSize     uint32 // decoded from the on-disk log2 byte; 0 means unbounded
	CodeLimit    uint64
	ExecSegBase  uint64
	ExecSegLimit uint64
	ExecSegFlags uint64
	SpecialSlots []SpecialSlot
	CodeSlots    []CodeSlot
}

// cdVersion thresholds gating CodeDirectoryType's trailing fields.
const (
	cdSupportsScatter     = 0x20100
	cdSupportsTeamID      = 0x20200
	cdSupportsCodeLimit64 = 0x20300
	cdSupportsExecSeg     = 0x20400
	cdSupportsRuntime     = 0x20500
)

// Requirement is one decoded internal-requirement expression (spec.md 4.8's
// Requirements blob), rendered as a requirement-language string the way
// `codesign -d -r-` would print it (e.g. `identifier "com.foo" and anchor apple`).
type Requirement struct {
	Type   uint32
	Detail string
}

// Opaque holds a blob this decoder does not interpret, keyed by the slot
// it was found at and the blob's own magic.
type Opaque struct {
	Slot  SlotType
	Magic Magic
	Data  []byte
}

// SuperBlob is the decoded form of an LC_CODE_SIGNATURE's embedded
// signature SuperBlob.
type SuperBlob struct {
	Magic           Magic
	CodeDirectories []CodeDirectory // slot 0 plus any CSSLOT_ALTERNATE_CODEDIRECTORIES*
	Requirements    []Requirement
	Entitlements    string // raw plist XML; not further parsed, per spec.md Non-goals
	EntitlementsDER []byte // raw ASN.1/DER; not decoded
	CMSSignature    []byte // raw PKCS#7/CMS bytes; never decoded, per spec.md Non-goals
	Unrecognized    []Opaque
}

const (
	sbHeaderSize    = 12 // Magic, Length, Count
	blobIndexSize   = 8  // Type, Offset
	blobHeaderSize  = 8  // Magic, Length
	maxReqRecursion = 64
)

// Decode parses the SuperBlob at data[offset:offset+size].
func Decode(data []byte, offset, size int) (*SuperBlob, error) {
	if offset < 0 || size < 0 || offset+size > len(data) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("code signature range [%d,+%d) exceeds image length %d", offset, size, len(data)))
	}
	blob := data[offset : offset+size]
	if len(blob) < sbHeaderSize {
		return nil, errs.New(errs.OutOfBounds, "code signature: fewer than 12 bytes available")
	}

	magic := Magic(binary.BigEndian.Uint32(blob[0:4]))
	count := binary.BigEndian.Uint32(blob[8:12])

	need := sbHeaderSize + int(count)*blobIndexSize
	if need > len(blob) {
		return nil, errs.New(errs.MalformedRecord, fmt.Sprintf("code signature: index count %d exceeds blob length %d", count, len(blob)))
	}

	sb := &SuperBlob{Magic: magic}
	for i := 0; i < int(count); i++ {
		off := sbHeaderSize + i*blobIndexSize
		slot := SlotType(binary.BigEndian.Uint32(blob[off : off+4]))
		entryOff := binary.BigEndian.Uint32(blob[off+4 : off+8])

		if err := decodeSlot(sb, blob, slot, int(entryOff)); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

func decodeSlot(sb *SuperBlob, blob []byte, slot SlotType, entryOff int) error {
	if entryOff < 0 || entryOff+blobHeaderSize > len(blob) {
		return errs.New(errs.OutOfBounds, fmt.Sprintf("code signature slot %s: entry offset %d out of range", slot, entryOff))
	}
	entryMagic := Magic(binary.BigEndian.Uint32(blob[entryOff : entryOff+4]))
	entryLen := binary.BigEndian.Uint32(blob[entryOff+4 : entryOff+8])
	if entryLen < blobHeaderSize || entryOff+int(entryLen) > len(blob) {
		return errs.New(errs.TruncatedBlob, fmt.Sprintf("code signature slot %s: declared length %d exceeds parent blob", slot, entryLen))
	}
	full := blob[entryOff : entryOff+int(entryLen)]

	switch slot {
	case SlotCodeDirectory, SlotAlternateCodeDirectories, SlotAlternateCodeDirectories1,
		SlotAlternateCodeDirectories2, SlotAlternateCodeDirectories3, SlotAlternateCodeDirectories4:
		cd, err := decodeCodeDirectory(full)
		if err != nil {
			return err
		}
		sb.CodeDirectories = append(sb.CodeDirectories, *cd)
	case SlotRequirements:
		reqs, err := decodeRequirements(full)
		if err != nil {
			return err
		}
		sb.Requirements = append(sb.Requirements, reqs...)
	case SlotEntitlements:
		sb.Entitlements = string(bytes.TrimRight(full[blobHeaderSize:], "\x00"))
	case SlotEntitlementsDER:
		sb.EntitlementsDER = append([]byte(nil), full[blobHeaderSize:]...)
	case SlotCMSSignature:
		sb.CMSSignature = append([]byte(nil), full[blobHeaderSize:]...)
	default:
		sb.Unrecognized = append(sb.Unrecognized, Opaque{
			Slot:  slot,
			Magic: entryMagic,
			Data:  append([]byte(nil), full[blobHeaderSize:]...),
		})
	}
	return nil
}

// decodeCodeDirectory reads a cs_code_directory struct, version-gating its
// trailing optional fields, then resolves the identifier/team strings and
// the special- and code-slot hash arrays. full includes the blob's own
// 8-byte header: every offset field inside a CodeDirectory is relative to
// full[0], not to the struct body that follows the header.
func decodeCodeDirectory(full []byte) (*CodeDirectory, error) {
	const fixedSize = 44 // header(8) + version..spare2, ending right after PageSize/Spare2
	if len(full) < fixedSize {
		return nil, errs.New(errs.OutOfBounds, "code directory: fewer bytes than the fixed header requires")
	}
	r := bytes.NewReader(full[8:fixedSize])
	var version, flags, hashOffset, identOffset, nSpecial, nCode, codeLimit32, spare2 uint32
	var hashSize, hashType, platform, pageSizeLog2 uint8
	for _, f := range []interface{}{&version, &flags, &hashOffset, &identOffset, &nSpecial, &nCode, &codeLimit32} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "code directory fixed fields", err)
		}
	}
	for _, f := range []interface{}{&hashSize, &hashType, &platform, &pageSizeLog2} {
		if err := binary.Read(r, binary.BigEndian, f); err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "code directory hash/page fields", err)
		}
	}
	if err := binary.Read(r, binary.BigEndian, &spare2); err != nil {
		return nil, errs.Wrap(errs.MalformedRecord, "code directory spare2", err)
	}

	cd := &CodeDirectory{
		Version:   version,
		Flags:     flags,
		HashType:  hashType,
		HashSize:  hashSize,
		Platform:  platform,
		CodeLimit: uint64(codeLimit32),
	}
	if pageSizeLog2 > 0 {
		cd.PageSize = 1 << pageSizeLog2
	}

	pos := fixedSize
	var scatterOffset, teamOffset uint32
	if version >= cdSupportsScatter && pos+4 <= len(full) {
		scatterOffset = binary.BigEndian.Uint32(full[pos : pos+4])
		pos += 4
	}
	_ = scatterOffset // decoded for offset bookkeeping; scatter vectors are legacy and unused by any live toolchain
	if version >= cdSupportsTeamID && pos+4 <= len(full) {
		teamOffset = binary.BigEndian.Uint32(full[pos : pos+4])
		pos += 4
	}
	if version >= cdSupportsCodeLimit64 && pos+12 <= len(full) {
		codeLimit64 := binary.BigEndian.Uint64(full[pos+4 : pos+12])
		if codeLimit64 != 0 {
			cd.CodeLimit = codeLimit64
		}
		pos += 12
	}
	if version >= cdSupportsExecSeg && pos+24 <= len(full) {
		cd.ExecSegBase = binary.BigEndian.Uint64(full[pos : pos+8])
		cd.ExecSegLimit = binary.BigEndian.Uint64(full[pos+8 : pos+16])
		cd.ExecSegFlags = binary.BigEndian.Uint64(full[pos+16 : pos+24])
		pos += 24
	}
	// version >= cdSupportsRuntime's Runtime/PreEncryptOffset fields locate
	// pre-encryption hash slots (FairPlay-encrypted binaries); not modeled.

	if identOffset > 0 {
		id, err := cStringAt(full, int(identOffset))
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "code directory identifier", err)
		}
		cd.Identifier = id
	}
	if teamOffset > 0 {
		team, err := cStringAt(full, int(teamOffset))
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "code directory team id", err)
		}
		cd.TeamID = team
	}

	hashSz := int(hashSize)
	specialStart := int(hashOffset) - int(nSpecial)*hashSz
	if hashSz > 0 && nSpecial > 0 {
		if specialStart < 0 || specialStart+int(nSpecial)*hashSz > len(full) {
			return nil, errs.New(errs.OutOfBounds, "code directory special slot hashes exceed blob bounds")
		}
		for i := uint32(0); i < nSpecial; i++ {
			off := specialStart + int(i)*hashSz
			hash := full[off : off+hashSz]
			cd.SpecialSlots = append(cd.SpecialSlots, SpecialSlot{
				Index: SlotType(nSpecial - i),
				Hash:  append([]byte(nil), hash...),
				Bound: !isAllZero(hash),
			})
		}
	}
	if hashSz > 0 && nCode > 0 {
		codeStart := int(hashOffset)
		if codeStart < 0 || codeStart+int(nCode)*hashSz > len(full) {
			return nil, errs.New(errs.OutOfBounds, "code directory code slot hashes exceed blob bounds")
		}
		for i := uint32(0); i < nCode; i++ {
			off := codeStart + int(i)*hashSz
			hash := full[off : off+hashSz]
			cd.CodeSlots = append(cd.CodeSlots, CodeSlot{
				Page: i,
				Hash: append([]byte(nil), hash...),
			})
		}
	}
	return cd, nil
}

func isAllZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func cStringAt(full []byte, off int) (string, error) {
	if off < 0 || off > len(full) {
		return "", errs.New(errs.OutOfBounds, fmt.Sprintf("string offset %d out of range", off))
	}
	end := off
	for end < len(full) && full[end] != 0 {
		end++
	}
	if end >= len(full) {
		return "", errs.New(errs.TruncatedBlob, "no NUL terminator before end of blob")
	}
	return string(full[off:end]), nil
}

// decodeRequirements reads a CSSLOT_REQUIREMENTS blob: the outer
// MAGIC_REQUIREMENTS wrapper (header + a single Data/count word, per the
// on-disk layout this decoder targets) followed by one Type/Offset entry
// and its bytecode expression, evaluated by evalRequirementSet.
func decodeRequirements(full []byte) ([]Requirement, error) {
	if len(full) < blobHeaderSize+4 {
		return nil, errs.New(errs.OutOfBounds, "requirements blob: fewer bytes than the outer header requires")
	}
	body := full[blobHeaderSize+4:] // skip BlobHeader + the vector's Data word
	if len(body) < 8 {
		return []Requirement{{Detail: "empty requirement set"}}, nil
	}
	reqType := binary.BigEndian.Uint32(body[0:4])
	reqOffset := binary.BigEndian.Uint32(body[4:8])

	detail, err := evalRequirementSet(body, reqType, int(reqOffset))
	if err != nil {
		return nil, err
	}
	return []Requirement{{Type: reqType, Detail: detail}}, nil
}

// evalRequirementSet walks every top-level expression starting at
// body[offset:] until the body is exhausted, joining them the way
// `codesign -d -r-` lays out a requirement set.
func evalRequirementSet(body []byte, reqType uint32, offset int) (string, error) {
	const (
		hostRequirementType       = 1
		designatedRequirementType = 3
	)
	if reqType != hostRequirementType && reqType != designatedRequirementType {
		return "", errs.New(errs.UnknownDiscriminant, fmt.Sprintf("requirement type %d not supported", reqType))
	}
	if offset < 0 || offset > len(body) {
		return "", errs.New(errs.OutOfBounds, fmt.Sprintf("requirement set offset %d out of range", offset))
	}
	r := bytes.NewReader(body[offset:])

	var parts []string
	for r.Len() > 0 {
		part, err := evalExpression(r, slTop, 0)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if reqType == hostRequirementType {
		return "host => " + strings.Join(parts, " "), nil
	}
	return strings.Join(parts, " "), nil
}

// Requirement expression opcodes (cs_requirement.h's exprForm). The high
// byte carries forward-compatibility flags; the low 24 bits are the opcode.
type exprOp uint32

const (
	opFlagMask     exprOp = 0xFF000000
	opGenericFalse exprOp = 0x80000000
	opGenericSkip  exprOp = 0x40000000
)

const (
	opFalse exprOp = iota
	opTrue
	opIdent
	opAppleAnchor
	opAnchorHash
	opInfoKeyValue
	opAnd
	opOr
	opCDHash
	opNot
	opInfoKeyField
	opCertField
	opTrustedCert
	opTrustedCerts
	opCertGeneric
	opAppleGenericAnchor
	opEntitlementField
	opCertPolicy
	opNamedAnchor
	opNamedCode
)

type matchOp uint32

const (
	matchExists matchOp = iota
	matchEqual
	matchContains
	matchBeginsWith
	matchEndsWith
	matchLessThan
	matchGreaterThan
	matchLessEqual
	matchGreaterEqual
)

// syntax levels control when evalExpression parenthesizes a nested
// and/or/not so the rendered string round-trips through the same
// grammar `codesign` itself uses.
const (
	slPrimary = iota
	slAnd
	slOr
	slTop
)

// evalExpression decodes one requirement expression node, recursing into
// opAnd/opOr/opNot. depth bounds the recursion the teacher's own decoder
// left unbounded: a maliciously or corruptly nested expression fails with
// a diagnostic instead of exhausting the goroutine stack.
func evalExpression(r *bytes.Reader, syntaxLevel int, depth int) (string, error) {
	if depth > maxReqRecursion {
		return "", errs.New(errs.MalformedRecord, fmt.Sprintf("requirement expression nests deeper than %d", maxReqRecursion))
	}
	var op exprOp
	if err := binary.Read(r, binary.BigEndian, &op); err != nil {
		return "", errs.Wrap(errs.MalformedRecord, "requirement opcode", err)
	}

	switch op {
	case opFalse:
		return "never", nil
	case opTrue:
		return "always", nil
	case opIdent:
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("identifier %q", data), nil
	case opAppleAnchor:
		return "anchor apple", nil
	case opAppleGenericAnchor:
		return "anchor apple generic", nil
	case opAnchorHash:
		slot, err := reqCertSlot(r)
		if err != nil {
			return "", err
		}
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("certificate %s = %x", slot, data), nil
	case opInfoKeyValue:
		key, err := reqData(r)
		if err != nil {
			return "", err
		}
		val, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("info[%s] = %s", key, val), nil
	case opAnd, opOr:
		joiner, threshold := " and ", slAnd
		if op == opOr {
			joiner, threshold = " or ", slOr
		}
		lhs, err := evalExpression(r, threshold, depth+1)
		if err != nil {
			return "", err
		}
		rhs, err := evalExpression(r, threshold, depth+1)
		if err != nil {
			return "", err
		}
		out := lhs + joiner + rhs
		if syntaxLevel < threshold {
			out = "(" + out + ")"
		}
		return out, nil
	case opNot:
		part, err := evalExpression(r, slPrimary, depth+1)
		if err != nil {
			return "", err
		}
		return "! " + part, nil
	case opCDHash:
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("cdhash %x", data), nil
	case opInfoKeyField:
		key, err := reqData(r)
		if err != nil {
			return "", err
		}
		match, err := reqMatch(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("info[%s] %s", key, match), nil
	case opEntitlementField:
		key, err := reqData(r)
		if err != nil {
			return "", err
		}
		match, err := reqMatch(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("entitlement[%s] %s", key, match), nil
	case opCertField:
		slot, err := reqCertSlot(r)
		if err != nil {
			return "", err
		}
		field, err := reqData(r)
		if err != nil {
			return "", err
		}
		match, err := reqMatch(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("certificate %s[%s] %s", slot, field, match), nil
	case opCertGeneric:
		slot, err := reqCertSlot(r)
		if err != nil {
			return "", err
		}
		oid, err := reqData(r)
		if err != nil {
			return "", err
		}
		match, err := reqMatch(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("certificate %s[field.%s] %s", slot, reqOID(oid), match), nil
	case opCertPolicy:
		slot, err := reqCertSlot(r)
		if err != nil {
			return "", err
		}
		oid, err := reqData(r)
		if err != nil {
			return "", err
		}
		match, err := reqMatch(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("certificate %s[policy.%s] %s", slot, reqOID(oid), match), nil
	case opTrustedCert:
		slot, err := reqCertSlot(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("certificate %s trusted", slot), nil
	case opTrustedCerts:
		return "anchor trusted", nil
	case opNamedAnchor:
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("anchor apple %s", data), nil
	case opNamedCode:
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s)", data), nil
	default:
		switch {
		case op&opGenericFalse != 0:
			return fmt.Sprintf("false /* opcode %d */", op&^opFlagMask), nil
		case op&opGenericSkip != 0:
			return fmt.Sprintf("/* opcode %d */", op&^opFlagMask), nil
		default:
			return "", errs.New(errs.UnknownDiscriminant, fmt.Sprintf("requirement opcode %d not understood", op))
		}
	}
}

// reqData reads a 4-byte-aligned length-prefixed byte string.
func reqData(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", errs.Wrap(errs.MalformedRecord, "requirement data length", err)
	}
	aligned := (n + 3) &^ 3
	buf := make([]byte, aligned)
	if _, err := r.Read(buf); err != nil {
		return "", errs.Wrap(errs.TruncatedBlob, "requirement data", err)
	}
	return string(buf[:n]), nil
}

func reqMatch(r *bytes.Reader) (string, error) {
	var op matchOp
	if err := binary.Read(r, binary.BigEndian, &op); err != nil {
		return "", errs.Wrap(errs.MalformedRecord, "requirement match opcode", err)
	}
	switch op {
	case matchExists:
		return "/* exists */", nil
	case matchEqual, matchContains, matchBeginsWith, matchEndsWith,
		matchLessThan, matchGreaterThan, matchLessEqual, matchGreaterEqual:
		data, err := reqData(r)
		if err != nil {
			return "", err
		}
		switch op {
		case matchEqual:
			return fmt.Sprintf("= %q", data), nil
		case matchContains:
			return fmt.Sprintf("~ %s", data), nil
		case matchBeginsWith:
			return fmt.Sprintf("= %s*", data), nil
		case matchEndsWith:
			return fmt.Sprintf("= *%s", data), nil
		case matchLessThan:
			return fmt.Sprintf("< %s", data), nil
		case matchGreaterThan:
			return fmt.Sprintf("> %s", data), nil
		case matchLessEqual:
			return fmt.Sprintf("<= %s", data), nil
		default:
			return fmt.Sprintf(">= %s", data), nil
		}
	default:
		return "", errs.New(errs.UnknownDiscriminant, fmt.Sprintf("match opcode %d not understood", op))
	}
}

func reqCertSlot(r *bytes.Reader) (string, error) {
	var slot int32
	if err := binary.Read(r, binary.BigEndian, &slot); err != nil {
		return "", errs.Wrap(errs.MalformedRecord, "requirement cert slot", err)
	}
	switch slot {
	case 0:
		return "leaf", nil
	case -1:
		return "root", nil
	default:
		return fmt.Sprintf("%d", slot), nil
	}
}

// reqOID renders a DER-style variable-length-quantity OID byte string as
// dotted decimal, per ITU-T X.690.
func reqOID(data string) string {
	b := []byte(data)
	if len(b) == 0 {
		return ""
	}
	var out strings.Builder
	first := true
	var val, first2 uint32
	idx := 0
	for idx < len(b) {
		v, adv, ok := readOIDComponent(b[idx:])
		if !ok {
			return ""
		}
		idx += adv
		if first {
			first2 = v / 40
			if first2 > 2 {
				first2 = 2
			}
			val = v - first2*40
			fmt.Fprintf(&out, "%d.%d", first2, val)
			first = false
			continue
		}
		fmt.Fprintf(&out, ".%d", v)
	}
	return out.String()
}

func readOIDComponent(b []byte) (uint32, int, bool) {
	var v uint32
	for i, c := range b {
		v = v*128 + uint32(c&0x7f)
		if c&0x80 == 0 {
			return v, i + 1, true
		}
	}
	return 0, 0, false
}
