package types

import "testing"

func TestStringNameKnownAndUnknown(t *testing.T) {
	if got := CPUAmd64.String(); got != "Amd64" {
		t.Errorf("CPUAmd64.String() = %q, want Amd64", got)
	}
	unknown := CPU(0x7fffffff)
	if got := unknown.String(); got != "Unknown(0x7fffffff)" {
		t.Errorf("unknown CPU.String() = %q, want Unknown(0x7fffffff)", got)
	}
}

func TestExtractBits(t *testing.T) {
	v := uint64(0b1011_0100)
	if got := ExtractBits(v, 2, 3); got != 0b101 {
		t.Errorf("ExtractBits(v, 2, 3) = %b, want 101", got)
	}
	if got := ExtractBits(v, 0, 4); got != 0b0100 {
		t.Errorf("ExtractBits(v, 0, 4) = %b, want 0100", got)
	}
}
