// Package exporttrie decodes the export trie format used by
// LC_DYLD_EXPORTS_TRIE and LC_DYLD_INFO's export_off/export_size range.
package exporttrie

import (
	"fmt"

	"github.com/coreglyph/gomacho/pkg/cursor"
	"github.com/coreglyph/gomacho/pkg/errs"
	"github.com/coreglyph/gomacho/types"
)

// Export is one decoded (name, terminal info) pair from an export trie.
type Export struct {
	Name  string
	Flags types.ExportFlag
	Info  Info
}

// Info carries the terminal payload variant selected by Flags' kind bits.
type Info struct {
	Address      uint64 // regular / thread-local / absolute exports
	ReExportName string // ReExport() flag: name in the target dylib (empty = same name)
	LibraryOrdinal uint64 // ReExport() flag: 1-based dylib ordinal
	StubOffset     uint64 // StubAndResolver() flag
	ResolverOffset uint64 // StubAndResolver() flag
}

type pendingNode struct {
	offset   uint64
	path     []byte
	visited  map[uint64]bool // shared across one root-to-leaf path, copy-on-branch
}

// Decode walks the trie rooted at data[offset:offset+size], returning every
// reachable export in depth-first order, per spec.md 4.6. A child offset
// revisited along the current path, or one exceeding the trie's size, fails
// with a cycle diagnostic rather than looping forever.
func Decode(data []byte, offset, size int) ([]Export, error) {
	if offset < 0 || size < 0 || offset+size > len(data) {
		return nil, errs.New(errs.OutOfBounds, fmt.Sprintf("export trie range [%d,+%d) exceeds image length %d", offset, size, len(data)))
	}
	trie := data[offset : offset+size]

	var exports []Export
	stack := []pendingNode{{offset: 0, visited: map[uint64]bool{0: true}}}

	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		c, err := cursor.New(trie).Subcursor(0, len(trie))
		if err != nil {
			return nil, err
		}
		if err := c.Seek(int(n.offset)); err != nil {
			return nil, errs.Wrap(errs.TruncatedBlob, "trie node offset", err)
		}

		terminalSize, err := c.ReadULEB128()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "trie terminal size", err)
		}

		if terminalSize != 0 {
			exp, err := decodeTerminal(c, n.path)
			if err != nil {
				return nil, err
			}
			exports = append(exports, exp)
		}

		if err := c.Seek(int(n.offset) + int(terminalSize) + uleb128Len(terminalSize)); err != nil {
			return nil, errs.Wrap(errs.TruncatedBlob, "trie child count", err)
		}
		childCount, err := c.ReadU8()
		if err != nil {
			return nil, errs.Wrap(errs.MalformedRecord, "trie child count", err)
		}

		for i := uint8(0); i < childCount; i++ {
			edge, err := c.ReadCString()
			if err != nil {
				return nil, errs.Wrap(errs.MalformedRecord, "trie edge string", err)
			}
			childOff, err := c.ReadULEB128()
			if err != nil {
				return nil, errs.Wrap(errs.MalformedRecord, "trie child offset", err)
			}
			if childOff >= uint64(len(trie)) {
				return nil, errs.New(errs.CycleDetected, fmt.Sprintf("trie child offset %d exceeds trie size %d", childOff, len(trie)))
			}
			if n.visited[childOff] {
				return nil, errs.New(errs.CycleDetected, fmt.Sprintf("trie cycle: child offset %d revisited on current path", childOff))
			}
			childPath := make([]byte, len(n.path)+len(edge))
			copy(childPath, n.path)
			copy(childPath[len(n.path):], edge)

			childVisited := make(map[uint64]bool, len(n.visited)+1)
			for k := range n.visited {
				childVisited[k] = true
			}
			childVisited[childOff] = true

			stack = append(stack, pendingNode{offset: childOff, path: childPath, visited: childVisited})
		}
	}
	return exports, nil
}

func decodeTerminal(c *cursor.Cursor, path []byte) (Export, error) {
	flagVal, err := c.ReadULEB128()
	if err != nil {
		return Export{}, errs.Wrap(errs.MalformedRecord, "trie terminal flags", err)
	}
	flags := types.ExportFlag(flagVal)

	var info Info
	switch {
	case flags.ReExport():
		ord, err := c.ReadULEB128()
		if err != nil {
			return Export{}, errs.Wrap(errs.MalformedRecord, "trie reexport ordinal", err)
		}
		name, err := c.ReadCString()
		if err != nil {
			return Export{}, errs.Wrap(errs.MalformedRecord, "trie reexport name", err)
		}
		info.LibraryOrdinal = ord
		info.ReExportName = name
	case flags.StubAndResolver():
		stub, err := c.ReadULEB128()
		if err != nil {
			return Export{}, errs.Wrap(errs.MalformedRecord, "trie stub offset", err)
		}
		resolver, err := c.ReadULEB128()
		if err != nil {
			return Export{}, errs.Wrap(errs.MalformedRecord, "trie resolver offset", err)
		}
		info.StubOffset = stub
		info.ResolverOffset = resolver
	default:
		addr, err := c.ReadULEB128()
		if err != nil {
			return Export{}, errs.Wrap(errs.MalformedRecord, "trie address", err)
		}
		info.Address = addr
	}

	return Export{Name: string(path), Flags: flags, Info: info}, nil
}

// uleb128Len reports how many bytes a previously-decoded ULEB128 value
// occupied on the wire, needed to seek past the terminal payload.
func uleb128Len(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
