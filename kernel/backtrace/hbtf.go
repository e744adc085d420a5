// Package backtrace parses the Hadron Backtrace Format (HBTF) and Hadron
// Kernel Image Format (HKIF) payloads a host-side build step extracts from
// the kernel ELF, and resolves a raw program-counter value back to a
// function name, byte offset and source line for panic output.
package backtrace

import "encoding/binary"

const (
	hbtfMagic0 = 'H'
	hbtfMagic1 = 'B'
	hbtfMagic2 = 'T'
	hbtfMagic3 = 'F'

	hbtfVersion = 1

	hbtfHeaderSize = 32
	symEntrySize   = 20
	lineEntrySize  = 16
)

// ParseError reports why a backtrace payload was rejected. Distinct from
// kernel.Error (rather than reusing it) because kernel/panic.go imports this
// package directly; kernel.Error living in package kernel would create an
// import cycle.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "backtrace: " + e.Reason }

var (
	errBadMagic    = &ParseError{"bad magic"}
	errTooShort    = &ParseError{"payload shorter than header"}
	errBadVersion  = &ParseError{"unsupported version"}
	errTableBounds = &ParseError{"table extends past payload"}
)

// Table is a parsed symbol/line/string table, regardless of whether it came
// from a standalone HBTF payload or the section directory inside an HKIF
// image. Both formats share the same 20-byte symbol and 16-byte line entry
// layouts, sorted by address, looked up via binary search.
type Table struct {
	symData    []byte
	symCount   int
	lineData   []byte
	lineCount  int
	stringData []byte
}

// ParseHBTF parses a standalone HBTF payload, the format the bootloader
// hands the kernel as a module (see bootinfo.Info.Backtrace).
func ParseHBTF(data []byte) (*Table, error) {
	if len(data) < hbtfHeaderSize {
		return nil, errTooShort
	}
	if data[0] != hbtfMagic0 || data[1] != hbtfMagic1 || data[2] != hbtfMagic2 || data[3] != hbtfMagic3 {
		return nil, errBadMagic
	}
	if binary.LittleEndian.Uint32(data[4:8]) != hbtfVersion {
		return nil, errBadVersion
	}

	symCount := int(binary.LittleEndian.Uint32(data[8:12]))
	symOffset := int(binary.LittleEndian.Uint32(data[12:16]))
	lineCount := int(binary.LittleEndian.Uint32(data[16:20]))
	lineOffset := int(binary.LittleEndian.Uint32(data[20:24]))
	stringsOffset := int(binary.LittleEndian.Uint32(data[24:28]))
	stringsSize := int(binary.LittleEndian.Uint32(data[28:32]))

	symEnd := symOffset + symCount*symEntrySize
	lineEnd := lineOffset + lineCount*lineEntrySize
	stringsEnd := stringsOffset + stringsSize
	if symEnd > len(data) || lineEnd > len(data) || stringsEnd > len(data) {
		return nil, errTableBounds
	}

	return &Table{
		symData:    data[symOffset:symEnd],
		symCount:   symCount,
		lineData:   data[lineOffset:lineEnd],
		lineCount:  lineCount,
		stringData: data[stringsOffset:stringsEnd],
	}, nil
}

// LookupSymbol finds the function symbol whose range contains offset (a
// program counter with the kernel's virtual base already subtracted) using
// the same rule the original HBTF generator's own verification tests use:
// the symbol table is sorted by address, so a binary search finds the
// highest entry with addr<=offset, then a zero-size symbol (addr/size not
// tracked precisely, e.g. for an ifunc) is accepted unconditionally while a
// sized symbol is rejected once offset falls past addr+size.
func (t *Table) LookupSymbol(offset uint64) (name string, funcOffset uint64, ok bool) {
	if t == nil || t.symCount == 0 {
		return "", 0, false
	}

	idx, found := t.searchSymbol(offset)
	if !found {
		return "", 0, false
	}

	entryOff := idx * symEntrySize
	addr := binary.LittleEndian.Uint64(t.symData[entryOff:])
	size := binary.LittleEndian.Uint32(t.symData[entryOff+8:])
	nameOff := binary.LittleEndian.Uint32(t.symData[entryOff+12:])

	funcOffset = offset - addr
	if size > 0 && funcOffset >= uint64(size) {
		return "", 0, false
	}

	name, ok = readNulString(t.stringData, nameOff)
	if !ok {
		return "", 0, false
	}
	return name, funcOffset, true
}

// LookupLine finds the line-table entry covering offset with the same
// addr<=offset binary search LookupSymbol uses, but with no size bound:
// line entries mark the start of a statement, and the match holds until the
// next higher entry, however far away that is.
func (t *Table) LookupLine(offset uint64) (file string, line uint32, ok bool) {
	if t == nil || t.lineCount == 0 {
		return "", 0, false
	}

	idx, found := t.searchLine(offset)
	if !found {
		return "", 0, false
	}

	entryOff := idx * lineEntrySize
	fileOff := binary.LittleEndian.Uint32(t.lineData[entryOff+8:])
	lineNum := binary.LittleEndian.Uint32(t.lineData[entryOff+12:])

	file, ok = readNulString(t.stringData, fileOff)
	if !ok {
		return "", 0, false
	}
	return file, lineNum, true
}

func (t *Table) searchSymbol(offset uint64) (idx int, ok bool) {
	lo, hi := 0, t.symCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		addr := binary.LittleEndian.Uint64(t.symData[mid*symEntrySize:])
		if addr <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, false
	}
	return lo - 1, true
}

func (t *Table) searchLine(offset uint64) (idx int, ok bool) {
	lo, hi := 0, t.lineCount
	for lo < hi {
		mid := lo + (hi-lo)/2
		addr := binary.LittleEndian.Uint64(t.lineData[mid*lineEntrySize:])
		if addr <= offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo == 0 {
		return 0, false
	}
	return lo - 1, true
}

// readNulString reads a NUL-terminated string out of a string pool starting
// at offset.
func readNulString(pool []byte, offset uint32) (string, bool) {
	if int(offset) >= len(pool) {
		return "", false
	}
	rest := pool[offset:]
	for i, b := range rest {
		if b == 0 {
			return string(rest[:i]), true
		}
	}
	return "", false
}
