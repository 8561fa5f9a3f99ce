package macho

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/coreglyph/gomacho/pkg/cursor"
	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// LoadCommand is the decoded form of one entry in a slice's load command
// stream. Every recognized opcode gets a typed payload; everything else
// decodes to Unknown, per spec.md 4.3 ("this is not an error").
type LoadCommand interface {
	Command() types.LoadCmd
	Raw() []byte
}

type cmdBase struct {
	Cmd     types.LoadCmd
	RawData []byte
}

func (b cmdBase) Command() types.LoadCmd { return b.Cmd }
func (b cmdBase) Raw() []byte            { return b.RawData }

// Unknown retains an unrecognized load command's raw bytes unchanged.
type Unknown struct {
	cmdBase
}

// Dylib covers every "load a dylib" variant: LC_LOAD_DYLIB, LC_ID_DYLIB,
// LC_LOAD_WEAK_DYLIB, LC_REEXPORT_DYLIB, LC_LAZY_LOAD_DYLIB, LC_LOAD_UPWARD_DYLIB.
type Dylib struct {
	cmdBase
	Name           string
	Time           uint32
	CurrentVersion types.Version
	CompatVersion  types.Version
}

// Dylinker covers LC_LOAD_DYLINKER, LC_ID_DYLINKER, LC_DYLD_ENVIRONMENT.
type Dylinker struct {
	cmdBase
	Name string
}

type Thread struct {
	cmdBase
	States []ThreadState
}

type UUID struct {
	cmdBase
	ID types.UUID
}

type Rpath struct {
	cmdBase
	Path string
}

// LinkEditData covers every linkedit_data_command opcode: LC_CODE_SIGNATURE,
// LC_SEGMENT_SPLIT_INFO, LC_FUNCTION_STARTS, LC_DATA_IN_CODE,
// LC_DYLIB_CODE_SIGN_DRS, LC_LINKER_OPTIMIZATION_HINT, LC_DYLD_EXPORTS_TRIE,
// LC_DYLD_CHAINED_FIXUPS. Offset/Size point into the file, not the command.
type LinkEditData struct {
	cmdBase
	Offset uint32
	Size   uint32
}

type EncryptionInfo struct {
	cmdBase
	Offset  uint32
	Size    uint32
	CryptID types.EncryptionSystem
}

type DyldInfo struct {
	cmdBase
	RebaseOff    uint32
	RebaseSize   uint32
	BindOff      uint32
	BindSize     uint32
	WeakBindOff  uint32
	WeakBindSize uint32
	LazyBindOff  uint32
	LazyBindSize uint32
	ExportOff    uint32
	ExportSize   uint32
}

// VersionMin covers the legacy per-OS opcodes: LC_VERSION_MIN_MACOSX,
// LC_VERSION_MIN_IPHONEOS, LC_VERSION_MIN_TVOS, LC_VERSION_MIN_WATCHOS.
type VersionMin struct {
	cmdBase
	Version types.Version
	Sdk     types.Version
}

type BuildToolVersion = types.BuildToolVersion

type BuildVersion struct {
	cmdBase
	Platform types.Platform
	MinOS    types.Version
	Sdk      types.Version
	Tools    []BuildToolVersion
}

type EntryPoint struct {
	cmdBase
	Offset    uint64
	StackSize uint64
}

type SourceVersion struct {
	cmdBase
	Version types.SrcVersion
}

type LinkerOption struct {
	cmdBase
	Strings []string
}

type Note struct {
	cmdBase
	DataOwner string
	Offset    uint64
	Size      uint64
}

type FilesetEntry struct {
	cmdBase
	Addr    uint64
	Offset  uint64
	EntryID string
}

// Routines covers LC_ROUTINES / LC_ROUTINES_64.
type Routines struct {
	cmdBase
	InitAddress uint64
	InitModule  uint64
}

// SubReference covers LC_SUB_FRAMEWORK/UMBRELLA/CLIENT/LIBRARY — each names
// one other image this one is logically nested under.
type SubReference struct {
	cmdBase
	Name string
}

type TwolevelHints struct {
	cmdBase
	Offset   uint32
	NumHints uint32
}

type PrebindCksum struct {
	cmdBase
	CheckSum uint32
}

type PreboundDylib struct {
	cmdBase
	Name          string
	NumModules    uint32
	LinkedModules uint32
}

// decodeLoadCommands reads exactly hdr.NCommands records starting at
// cmdStreamOff within sliceData, per spec.md 4.3. sliceData is the full byte
// range of the enclosing Slice, since LC_SYMTAB/LC_DYSYMTAB point at symbol
// and string tables that live outside the command stream itself.
func decodeLoadCommands(sliceData []byte, cmdStreamOff int, bo binary.ByteOrder, hdr types.FileHeader) ([]LoadCommand, []Segment, *Symtab, *Dysymtab, error) {
	cmds := make([]LoadCommand, 0, hdr.NCommands)
	var segs []Segment
	var symtab *Symtab
	var dysymtab *Dysymtab

	off := cmdStreamOff
	is64 := hdr.Magic == types.Magic64
	for i := uint32(0); i < hdr.NCommands; i++ {
		if off+8 > len(sliceData) {
			return nil, nil, nil, nil, errs.New(errs.MalformedRecord, fmt.Sprintf("load command %d: truncated cmd/cmdsize header", i))
		}
		cmd := types.LoadCmd(bo.Uint32(sliceData[off:]))
		size := bo.Uint32(sliceData[off+4:])
		if size < 8 || int(size) > len(sliceData)-off {
			return nil, nil, nil, nil, errs.New(errs.MalformedRecord, fmt.Sprintf("load command %d (%s): invalid cmdsize %d", i, cmd, size))
		}
		align := uint32(4)
		if is64 {
			align = 8
		}
		if size%align != 0 {
			return nil, nil, nil, nil, errs.New(errs.MalformedRecord, fmt.Sprintf("load command %d (%s): cmdsize %d not aligned to %d bytes", i, cmd, size, align))
		}
		raw := sliceData[off : off+int(size)]
		cmdOff := off
		off += int(size)

		switch cmd {
		case types.LC_SYMTAB:
			st, err := decodeSymtab(cmdBase{Cmd: cmd, RawData: raw}, raw[8:], sliceData, bo, is64)
			if err != nil {
				return nil, nil, nil, nil, errs.Wrap(errs.MalformedRecord, fmt.Sprintf("load command %d (LC_SYMTAB) at offset %#x", i, cmdOff), err)
			}
			cmds = append(cmds, st)
			symtab = st
			continue
		case types.LC_DYSYMTAB:
			dt, err := decodeDysymtab(cmdBase{Cmd: cmd, RawData: raw}, raw[8:], sliceData, bo, symtab)
			if err != nil {
				return nil, nil, nil, nil, errs.Wrap(errs.MalformedRecord, fmt.Sprintf("load command %d (LC_DYSYMTAB) at offset %#x", i, cmdOff), err)
			}
			cmds = append(cmds, dt)
			dysymtab = dt
			continue
		}

		lc, seg, err := decodeOneCommand(cmd, raw, bo, hdr.CPU)
		if err != nil {
			return nil, nil, nil, nil, errs.Wrap(errs.MalformedRecord, fmt.Sprintf("load command %d (%s) at offset %#x", i, cmd, cmdOff), err)
		}
		cmds = append(cmds, lc)
		if seg != nil {
			segs = append(segs, *seg)
		}
	}
	return cmds, segs, symtab, dysymtab, nil
}

func decodeOneCommand(cmd types.LoadCmd, raw []byte, bo binary.ByteOrder, cpu types.CPU) (LoadCommand, *Segment, error) {
	base := cmdBase{Cmd: cmd, RawData: raw}
	body := raw[8:]
	r := bytes.NewReader(body)

	switch cmd {
	case types.LC_SEGMENT:
		seg, err := decodeSegment32(base, body, bo)
		return seg, seg, err
	case types.LC_SEGMENT_64:
		seg, err := decodeSegment64(base, body, bo)
		return seg, seg, err

	case types.LC_LOAD_DYLIB, types.LC_ID_DYLIB, types.LC_LOAD_WEAK_DYLIB,
		types.LC_REEXPORT_DYLIB, types.LC_LAZY_LOAD_DYLIB, types.LC_LOAD_UPWARD_DYLIB:
		var nameOff, timeVal uint32
		var cur, compat types.Version
		if err := readFields(r, bo, &nameOff, &timeVal, &cur, &compat); err != nil {
			return nil, nil, err
		}
		name, err := cstringAt(body, nameOff)
		if err != nil {
			return nil, nil, err
		}
		return Dylib{cmdBase: base, Name: name, Time: timeVal, CurrentVersion: cur, CompatVersion: compat}, nil, nil

	case types.LC_LOAD_DYLINKER, types.LC_ID_DYLINKER, types.LC_DYLD_ENVIRONMENT:
		var nameOff uint32
		if err := readFields(r, bo, &nameOff); err != nil {
			return nil, nil, err
		}
		name, err := cstringAt(body, nameOff)
		if err != nil {
			return nil, nil, err
		}
		return Dylinker{cmdBase: base, Name: name}, nil, nil

	case types.LC_THREAD, types.LC_UNIXTHREAD:
		cur := cursor.New(body)
		var states []ThreadState
		for cur.Remaining() >= 8 {
			st, err := decodeThreadState(cur, bo, cpu)
			if err != nil {
				return nil, nil, err
			}
			states = append(states, st)
		}
		return Thread{cmdBase: base, States: states}, nil, nil

	case types.LC_UUID:
		var u types.UUID
		if err := readFields(r, bo, &u); err != nil {
			return nil, nil, err
		}
		return UUID{cmdBase: base, ID: u}, nil, nil

	case types.LC_RPATH:
		var pathOff uint32
		if err := readFields(r, bo, &pathOff); err != nil {
			return nil, nil, err
		}
		path, err := cstringAt(body, pathOff)
		if err != nil {
			return nil, nil, err
		}
		return Rpath{cmdBase: base, Path: path}, nil, nil

	case types.LC_CODE_SIGNATURE, types.LC_SEGMENT_SPLIT_INFO, types.LC_FUNCTION_STARTS,
		types.LC_DATA_IN_CODE, types.LC_DYLIB_CODE_SIGN_DRS, types.LC_LINKER_OPTIMIZATION_HINT,
		types.LC_DYLD_EXPORTS_TRIE, types.LC_DYLD_CHAINED_FIXUPS:
		var dataOff, dataSize uint32
		if err := readFields(r, bo, &dataOff, &dataSize); err != nil {
			return nil, nil, err
		}
		return LinkEditData{cmdBase: base, Offset: dataOff, Size: dataSize}, nil, nil

	case types.LC_ENCRYPTION_INFO:
		var off, size uint32
		var cryptID types.EncryptionSystem
		if err := readFields(r, bo, &off, &size, &cryptID); err != nil {
			return nil, nil, err
		}
		return EncryptionInfo{cmdBase: base, Offset: off, Size: size, CryptID: cryptID}, nil, nil

	case types.LC_ENCRYPTION_INFO_64:
		var off, size uint32
		var cryptID types.EncryptionSystem
		var pad uint32
		if err := readFields(r, bo, &off, &size, &cryptID, &pad); err != nil {
			return nil, nil, err
		}
		return EncryptionInfo{cmdBase: base, Offset: off, Size: size, CryptID: cryptID}, nil, nil

	case types.LC_DYLD_INFO, types.LC_DYLD_INFO_ONLY:
		var d DyldInfo
		d.cmdBase = base
		if err := readFields(r, bo, &d.RebaseOff, &d.RebaseSize, &d.BindOff, &d.BindSize,
			&d.WeakBindOff, &d.WeakBindSize, &d.LazyBindOff, &d.LazyBindSize,
			&d.ExportOff, &d.ExportSize); err != nil {
			return nil, nil, err
		}
		return d, nil, nil

	case types.LC_VERSION_MIN_MACOSX, types.LC_VERSION_MIN_IPHONEOS,
		types.LC_VERSION_MIN_TVOS, types.LC_VERSION_MIN_WATCHOS:
		var v, sdk types.Version
		if err := readFields(r, bo, &v, &sdk); err != nil {
			return nil, nil, err
		}
		return VersionMin{cmdBase: base, Version: v, Sdk: sdk}, nil, nil

	case types.LC_BUILD_VERSION:
		var platform types.Platform
		var minOS, sdk types.Version
		var numTools uint32
		if err := readFields(r, bo, &platform, &minOS, &sdk, &numTools); err != nil {
			return nil, nil, err
		}
		tools := make([]BuildToolVersion, 0, numTools)
		for i := uint32(0); i < numTools; i++ {
			var t BuildToolVersion
			if err := readFields(r, bo, &t.Tool, &t.Version); err != nil {
				return nil, nil, err
			}
			tools = append(tools, t)
		}
		return BuildVersion{cmdBase: base, Platform: platform, MinOS: minOS, Sdk: sdk, Tools: tools}, nil, nil

	case types.LC_MAIN:
		var off, stack uint64
		if err := readFields(r, bo, &off, &stack); err != nil {
			return nil, nil, err
		}
		return EntryPoint{cmdBase: base, Offset: off, StackSize: stack}, nil, nil

	case types.LC_SOURCE_VERSION:
		var v types.SrcVersion
		if err := readFields(r, bo, &v); err != nil {
			return nil, nil, err
		}
		return SourceVersion{cmdBase: base, Version: v}, nil, nil

	case types.LC_LINKER_OPTION:
		var count uint32
		if err := readFields(r, bo, &count); err != nil {
			return nil, nil, err
		}
		strs, err := splitNulStrings(body[4:], int(count))
		if err != nil {
			return nil, nil, err
		}
		return LinkerOption{cmdBase: base, Strings: strs}, nil, nil

	case types.LC_NOTE:
		var owner [16]byte
		var off, size uint64
		if err := readFields(r, bo, &owner, &off, &size); err != nil {
			return nil, nil, err
		}
		return Note{cmdBase: base, DataOwner: cstringTrim(owner[:]), Offset: off, Size: size}, nil, nil

	case types.LC_FILESET_ENTRY:
		var addr, foff uint64
		var entryIDOff, reserved uint32
		if err := readFields(r, bo, &addr, &foff, &entryIDOff, &reserved); err != nil {
			return nil, nil, err
		}
		entryID, err := cstringAt(body, entryIDOff)
		if err != nil {
			return nil, nil, err
		}
		return FilesetEntry{cmdBase: base, Addr: addr, Offset: foff, EntryID: entryID}, nil, nil

	case types.LC_ROUTINES:
		var initAddr, initModule uint32
		var pad [6]uint32
		if err := readFields(r, bo, &initAddr, &initModule, &pad); err != nil {
			return nil, nil, err
		}
		return Routines{cmdBase: base, InitAddress: uint64(initAddr), InitModule: uint64(initModule)}, nil, nil

	case types.LC_ROUTINES_64:
		var initAddr, initModule uint64
		var pad [5]uint64
		if err := readFields(r, bo, &initAddr, &initModule, &pad); err != nil {
			return nil, nil, err
		}
		return Routines{cmdBase: base, InitAddress: initAddr, InitModule: initModule}, nil, nil

	case types.LC_SUB_FRAMEWORK, types.LC_SUB_UMBRELLA, types.LC_SUB_CLIENT, types.LC_SUB_LIBRARY:
		var nameOff uint32
		if err := readFields(r, bo, &nameOff); err != nil {
			return nil, nil, err
		}
		name, err := cstringAt(body, nameOff)
		if err != nil {
			return nil, nil, err
		}
		return SubReference{cmdBase: base, Name: name}, nil, nil

	case types.LC_TWOLEVEL_HINTS:
		var off, n uint32
		if err := readFields(r, bo, &off, &n); err != nil {
			return nil, nil, err
		}
		return TwolevelHints{cmdBase: base, Offset: off, NumHints: n}, nil, nil

	case types.LC_PREBIND_CKSUM:
		var sum uint32
		if err := readFields(r, bo, &sum); err != nil {
			return nil, nil, err
		}
		return PrebindCksum{cmdBase: base, CheckSum: sum}, nil, nil

	case types.LC_PREBOUND_DYLIB:
		var nameOff, numModules, linkedModules uint32
		if err := readFields(r, bo, &nameOff, &numModules, &linkedModules); err != nil {
			return nil, nil, err
		}
		name, err := cstringAt(body, nameOff)
		if err != nil {
			return nil, nil, err
		}
		return PreboundDylib{cmdBase: base, Name: name, NumModules: numModules, LinkedModules: linkedModules}, nil, nil

	default:
		return Unknown{cmdBase: base}, nil, nil
	}
}

func readFields(r *bytes.Reader, bo binary.ByteOrder, fields ...interface{}) error {
	for _, f := range fields {
		if err := binary.Read(r, bo, f); err != nil {
			return errs.Wrap(errs.OutOfBounds, "load command field", err)
		}
	}
	return nil
}

func cstringAt(body []byte, off uint32) (string, error) {
	if int(off) > len(body) {
		return "", errs.New(errs.MalformedRecord, fmt.Sprintf("string offset %d exceeds command length %d", off, len(body)))
	}
	return cstringTrim(body[off:]), nil
}

func cstringTrim(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func splitNulStrings(b []byte, count int) ([]string, error) {
	strs := make([]string, 0, count)
	pos := 0
	for i := 0; i < count; i++ {
		start := pos
		for pos < len(b) && b[pos] != 0 {
			pos++
		}
		if pos >= len(b) {
			return nil, errs.New(errs.MalformedRecord, fmt.Sprintf("linker option string %d missing NUL terminator", i))
		}
		strs = append(strs, string(b[start:pos]))
		pos++
	}
	return strs, nil
}
