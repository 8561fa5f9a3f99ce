package macho

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDecodeSymtab64(t *testing.T) {
	strtab := []byte("\x00main\x00")

	var symRec bytes.Buffer
	binary.Write(&symRec, binary.LittleEndian, uint32(1)) // name: "main"
	symRec.WriteByte(0)                                    // type
	symRec.WriteByte(1)                                    // sect
	binary.Write(&symRec, binary.LittleEndian, uint16(0))  // desc
	binary.Write(&symRec, binary.LittleEndian, uint64(0x2000))

	sliceData := append(append([]byte{}, symRec.Bytes()...), strtab...)

	body := make([]byte, 16)
	binary.LittleEndian.PutUint32(body[0:4], 0)                       // symoff
	binary.LittleEndian.PutUint32(body[4:8], 1)                       // nsyms
	binary.LittleEndian.PutUint32(body[8:12], uint32(symRec.Len()))   // stroff
	binary.LittleEndian.PutUint32(body[12:16], uint32(len(strtab)))   // strsize

	st, err := decodeSymtab(cmdBase{}, body, sliceData, binary.LittleEndian, true)
	if err != nil {
		t.Fatalf("decodeSymtab: %v", err)
	}
	if len(st.Syms) != 1 {
		t.Fatalf("got %d symbols, want 1", len(st.Syms))
	}
	if st.Syms[0].Name != "main" {
		t.Errorf("Name = %q, want main", st.Syms[0].Name)
	}
	if st.Syms[0].Value != 0x2000 {
		t.Errorf("Value = %#x, want 0x2000", st.Syms[0].Value)
	}
}

func TestDecodeSymtabStringIndexOutOfBounds(t *testing.T) {
	strtab := []byte("\x00")

	var symRec bytes.Buffer
	binary.Write(&symRec, binary.LittleEndian, uint32(50)) // way past strtab
	symRec.WriteByte(0)
	symRec.WriteByte(0)
	binary.Write(&symRec, binary.LittleEndian, uint16(0))
	binary.Write(&symRec, binary.LittleEndian, uint64(0))

	sliceData := append(append([]byte{}, symRec.Bytes()...), strtab...)

	body := make([]byte, 16)
	binary.LittleEndian.PutUint32(body[0:4], 0)
	binary.LittleEndian.PutUint32(body[4:8], 1)
	binary.LittleEndian.PutUint32(body[8:12], uint32(symRec.Len()))
	binary.LittleEndian.PutUint32(body[12:16], uint32(len(strtab)))

	if _, err := decodeSymtab(cmdBase{}, body, sliceData, binary.LittleEndian, true); err == nil {
		t.Fatal("expected out-of-bounds string index error")
	}
}

func TestDecodeDysymtabIndirectSyms(t *testing.T) {
	indirect := []byte{
		0x01, 0x00, 0x00, 0x00,
		0x02, 0x00, 0x00, 0x00,
	}
	body := make([]byte, 18*4)
	// Indirectsymoff is the 13th field (index 12), Nindirectsyms the 14th (index 13).
	binary.LittleEndian.PutUint32(body[12*4:13*4], 0) // Indirectsymoff
	binary.LittleEndian.PutUint32(body[13*4:14*4], 2) // Nindirectsyms

	dt, err := decodeDysymtab(cmdBase{}, body, indirect, binary.LittleEndian, nil)
	if err != nil {
		t.Fatalf("decodeDysymtab: %v", err)
	}
	if len(dt.IndirectSyms) != 2 || dt.IndirectSyms[0] != 1 || dt.IndirectSyms[1] != 2 {
		t.Fatalf("IndirectSyms = %v, want [1 2]", dt.IndirectSyms)
	}
}
