package types

import (
	"encoding/binary"
	"fmt"
)

// VmProtection is a bitfield of r/w/x permissions as used by segment
// maxprot/initprot fields.
type VmProtection int32

func (v VmProtection) Read() bool    { return (v & 0x01) != 0 }
func (v VmProtection) Write() bool   { return (v & 0x02) != 0 }
func (v VmProtection) Execute() bool { return (v & 0x04) != 0 }

func (v VmProtection) String() string {
	var protStr string
	if v.Read() {
		protStr += "r"
	} else {
		protStr += "-"
	}
	if v.Write() {
		protStr += "w"
	} else {
		protStr += "-"
	}
	if v.Execute() {
		protStr += "x"
	} else {
		protStr += "-"
	}
	return protStr
}

// UUID is the payload of LC_UUID.
type UUID [16]byte

func (u UUID) String() string {
	return fmt.Sprintf("%02X%02X%02X%02X-%02X%02X-%02X%02X-%02X%02X-%02X%02X%02X%02X%02X%02X",
		u[0], u[1], u[2], u[3], u[4], u[5], u[6], u[7], u[8], u[9], u[10], u[11], u[12], u[13], u[14], u[15])
}

// Platform identifies the target OS of a BuildVersionCmd.
type Platform uint32

const (
	PlatformUnknown          Platform = 0
	PlatformMacOS            Platform = 1
	PlatformIOS              Platform = 2
	PlatformTvOS             Platform = 3
	PlatformWatchOS          Platform = 4
	PlatformBridgeOS         Platform = 5
	PlatformMacCatalyst      Platform = 6
	PlatformIOSSimulator     Platform = 7
	PlatformTvOSSimulator    Platform = 8
	PlatformWatchOSSimulator Platform = 9
	PlatformDriverKit        Platform = 10
)

var platformStrings = []IntName{
	{uint32(PlatformUnknown), "unknown"},
	{uint32(PlatformMacOS), "macOS"},
	{uint32(PlatformIOS), "iOS"},
	{uint32(PlatformTvOS), "tvOS"},
	{uint32(PlatformWatchOS), "watchOS"},
	{uint32(PlatformBridgeOS), "bridgeOS"},
	{uint32(PlatformMacCatalyst), "macCatalyst"},
	{uint32(PlatformIOSSimulator), "iOSSimulator"},
	{uint32(PlatformTvOSSimulator), "tvOSSimulator"},
	{uint32(PlatformWatchOSSimulator), "watchOSSimulator"},
	{uint32(PlatformDriverKit), "driverKit"},
}

func (p Platform) String() string { return StringName(uint32(p), platformStrings, false) }

// Version is a packed xxxx.yy.zz version field (16-bit major, 8-bit minor,
// 8-bit patch; e.g. LC_VERSION_MIN_* sdk/version).
type Version uint32

func (v Version) String() string {
	s := make([]byte, 4)
	binary.BigEndian.PutUint32(s, uint32(v))
	return fmt.Sprintf("%d.%d.%d", binary.BigEndian.Uint16(s[:2]), s[2], s[3])
}

// SrcVersion is the bit-packed A.B.C.D.E version field of LC_SOURCE_VERSION.
type SrcVersion uint64

func (sv SrcVersion) String() string {
	a := sv >> 40
	b := (sv >> 30) & 0x3ff
	c := (sv >> 20) & 0x3ff
	d := (sv >> 10) & 0x3ff
	e := sv & 0x3ff
	return fmt.Sprintf("%d.%d.%d.%d.%d", a, b, c, d, e)
}

// Tool identifies the build tool in a BuildToolVersion entry.
type Tool uint32

const (
	ToolClang Tool = 1
	ToolSwift Tool = 2
	ToolLd    Tool = 3
)

var toolStrings = []IntName{
	{uint32(ToolClang), "clang"},
	{uint32(ToolSwift), "swift"},
	{uint32(ToolLd), "ld"},
}

func (t Tool) String() string { return StringName(uint32(t), toolStrings, false) }

// BuildToolVersion is one entry of LC_BUILD_VERSION's ntools array.
type BuildToolVersion struct {
	Tool    Tool
	Version Version
}

// DataInCodeEntry is one entry of the LC_DATA_IN_CODE table.
type DataInCodeEntry struct {
	Offset uint32
	Length uint16
	Kind   DiceKind
}

type DiceKind uint16

const (
	KindData           DiceKind = 0x0001
	KindJumpTable8     DiceKind = 0x0002
	KindJumpTable16    DiceKind = 0x0003
	KindJumpTable32    DiceKind = 0x0004
	KindAbsJumpTable32 DiceKind = 0x0005
)

var diceKindStrings = []IntName{
	{uint32(KindData), "data"},
	{uint32(KindJumpTable8), "jump-table-8"},
	{uint32(KindJumpTable16), "jump-table-16"},
	{uint32(KindJumpTable32), "jump-table-32"},
	{uint32(KindAbsJumpTable32), "abs-jump-table-32"},
}

func (k DiceKind) String() string { return StringName(uint32(k), diceKindStrings, false) }
