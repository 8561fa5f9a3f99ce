package codesign

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func put32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func put64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func cstring(s string) []byte {
	return append([]byte(s), 0)
}

// buildCodeDirectory assembles a version-0x20200 (TeamID-capable)
// CodeDirectory blob: fixed header, scatterOffset, teamOffset, the
// identifier/team strings, then one special-slot hash and one code-slot
// hash immediately around hashOffset.
func buildCodeDirectory(identifier, teamID string, specialHash, codeHash [4]byte) []byte {
	ident := cstring(identifier)
	team := cstring(teamID)

	identOffset := uint32(52)
	teamOffset := identOffset + uint32(len(ident))
	specialStart := teamOffset + uint32(len(team))
	hashOffset := specialStart + 4 // one special slot, hashSize 4

	var buf bytes.Buffer
	put32(&buf, uint32(MagicCodeDirectory))
	totalLen := hashOffset + 4 // one code slot, hashSize 4
	put32(&buf, totalLen)

	put32(&buf, 0x20200) // version: supports team ID
	put32(&buf, 0)       // flags
	put32(&buf, hashOffset)
	put32(&buf, identOffset)
	put32(&buf, 1) // nSpecialSlots
	put32(&buf, 1) // nCodeSlots
	put32(&buf, totalLen)
	buf.WriteByte(4) // hashSize
	buf.WriteByte(1) // hashType (SHA1 placeholder)
	buf.WriteByte(0) // platform
	buf.WriteByte(12) // pageSizeLog2 -> 4096
	put32(&buf, 0)     // spare2

	put32(&buf, 0)          // scatterOffset
	put32(&buf, teamOffset) // teamOffset

	buf.Write(ident)
	buf.Write(team)
	buf.Write(specialHash[:])
	buf.Write(codeHash[:])

	if uint32(buf.Len()) != totalLen {
		panic("buildCodeDirectory: length mismatch")
	}
	return buf.Bytes()
}

// wrapSuperBlob assembles a SuperBlob header + index table around the given
// (slot, entry-bytes) pairs, each entry already carrying its own blob header.
func wrapSuperBlob(entries map[SlotType][]byte) []byte {
	var buf bytes.Buffer
	headerLen := sbHeaderSize + len(entries)*blobIndexSize

	offs := make(map[SlotType]int)
	pos := headerLen
	slots := make([]SlotType, 0, len(entries))
	for s := range entries {
		slots = append(slots, s)
	}
	for _, s := range slots {
		offs[s] = pos
		pos += len(entries[s])
	}

	put32(&buf, uint32(MagicEmbeddedSignature))
	put32(&buf, uint32(pos))
	put32(&buf, uint32(len(entries)))
	for _, s := range slots {
		put32(&buf, uint32(s))
		put32(&buf, uint32(offs[s]))
	}
	for _, s := range slots {
		buf.Write(entries[s])
	}
	return buf.Bytes()
}

func TestDecodeCodeDirectory(t *testing.T) {
	cd := buildCodeDirectory("com.test.exe", "TEAMID1234", [4]byte{0xAA, 0xBB, 0xCC, 0xDD}, [4]byte{0x11, 0x22, 0x33, 0x44})
	data := wrapSuperBlob(map[SlotType][]byte{SlotCodeDirectory: cd})

	sb, err := Decode(data, 0, len(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sb.CodeDirectories) != 1 {
		t.Fatalf("got %d code directories, want 1", len(sb.CodeDirectories))
	}
	got := sb.CodeDirectories[0]
	if got.Identifier != "com.test.exe" {
		t.Errorf("Identifier = %q, want com.test.exe", got.Identifier)
	}
	if got.TeamID != "TEAMID1234" {
		t.Errorf("TeamID = %q, want TEAMID1234", got.TeamID)
	}
	if got.PageSize != 4096 {
		t.Errorf("PageSize = %d, want 4096", got.PageSize)
	}
	if len(got.SpecialSlots) != 1 || !got.SpecialSlots[0].Bound {
		t.Fatalf("SpecialSlots = %+v, want one bound slot", got.SpecialSlots)
	}
	if len(got.CodeSlots) != 1 || !bytes.Equal(got.CodeSlots[0].Hash, []byte{0x11, 0x22, 0x33, 0x44}) {
		t.Fatalf("CodeSlots = %+v", got.CodeSlots)
	}
}

func TestDecodeRequirementsIdentifierAndAnchorApple(t *testing.T) {
	var expr bytes.Buffer
	binary.Write(&expr, binary.BigEndian, opAnd)
	binary.Write(&expr, binary.BigEndian, opIdent)
	put32(&expr, uint32(len("com.foo")))
	expr.Write(cstring("com.foo")[:len("com.foo")])
	expr.Write(bytes.Repeat([]byte{0}, ((len("com.foo")+3)&^3)-len("com.foo")))
	binary.Write(&expr, binary.BigEndian, opAppleAnchor)

	var body bytes.Buffer
	put32(&body, 3) // designatedRequirementType
	put32(&body, 8) // offset of the expression, right after this 8-byte header
	body.Write(expr.Bytes())

	var full bytes.Buffer
	put32(&full, uint32(MagicRequirements))
	put32(&full, uint32(blobHeaderSize+4+body.Len()))
	put32(&full, 1) // requirement count in the outer vector
	full.Write(body.Bytes())

	data := wrapSuperBlob(map[SlotType][]byte{SlotRequirements: full.Bytes()})
	sb, err := Decode(data, 0, len(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(sb.Requirements) != 1 {
		t.Fatalf("got %d requirements, want 1", len(sb.Requirements))
	}
	want := `identifier "com.foo" and anchor apple`
	if sb.Requirements[0].Detail != want {
		t.Errorf("Detail = %q, want %q", sb.Requirements[0].Detail, want)
	}
}

func TestDecodeEntitlementsOpaque(t *testing.T) {
	plist := []byte("<plist>fake</plist>")
	var full bytes.Buffer
	put32(&full, uint32(MagicEmbeddedEntitlements))
	put32(&full, uint32(blobHeaderSize+len(plist)))
	full.Write(plist)

	data := wrapSuperBlob(map[SlotType][]byte{SlotEntitlements: full.Bytes()})
	sb, err := Decode(data, 0, len(data))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if sb.Entitlements != string(plist) {
		t.Errorf("Entitlements = %q, want %q", sb.Entitlements, string(plist))
	}
}

func TestDecodeOutOfBoundsRange(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	if _, err := Decode(data, 0, 100); err == nil {
		t.Fatal("expected out-of-bounds error, got nil")
	}
}
