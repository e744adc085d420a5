package main

import "encoding/binary"

const (
	hbtfMagic      = "HBTF"
	hbtfVersion    = 1
	hbtfHeaderSize = 32
	symEntrySize   = 20
	lineEntrySize  = 16
)

// buildHBTF serializes a standalone HBTF payload: a 32-byte header followed
// by the symbol table, the line table, and the deduplicated string pool, in
// that order. The layout matches kernel/backtrace.ParseHBTF field for
// field; this function and that parser are two views of the same format.
func buildHBTF(syms []funcSymbol, lines []lineInfo) []byte {
	pool := newStringPool()

	symTable := make([]byte, 0, len(syms)*symEntrySize)
	for _, s := range syms {
		nameOff := pool.insert(s.Name)
		entry := make([]byte, symEntrySize)
		binary.LittleEndian.PutUint64(entry[0:8], s.Addr)
		binary.LittleEndian.PutUint32(entry[8:12], s.Size)
		binary.LittleEndian.PutUint32(entry[12:16], nameOff)
		symTable = append(symTable, entry...)
	}

	lineTable := make([]byte, 0, len(lines)*lineEntrySize)
	for _, l := range lines {
		fileOff := pool.insert(l.File)
		entry := make([]byte, lineEntrySize)
		binary.LittleEndian.PutUint64(entry[0:8], l.Addr)
		binary.LittleEndian.PutUint32(entry[8:12], fileOff)
		binary.LittleEndian.PutUint32(entry[12:16], l.Line)
		lineTable = append(lineTable, entry...)
	}

	symOffset := uint32(hbtfHeaderSize)
	lineOffset := symOffset + uint32(len(symTable))
	stringsOffset := lineOffset + uint32(len(lineTable))

	header := make([]byte, hbtfHeaderSize)
	copy(header[0:4], hbtfMagic)
	binary.LittleEndian.PutUint32(header[4:8], hbtfVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(syms)))
	binary.LittleEndian.PutUint32(header[12:16], symOffset)
	binary.LittleEndian.PutUint32(header[16:20], uint32(len(lines)))
	binary.LittleEndian.PutUint32(header[20:24], lineOffset)
	binary.LittleEndian.PutUint32(header[24:28], stringsOffset)
	binary.LittleEndian.PutUint32(header[28:32], uint32(len(pool.data)))

	out := make([]byte, 0, int(stringsOffset)+len(pool.data))
	out = append(out, header...)
	out = append(out, symTable...)
	out = append(out, lineTable...)
	out = append(out, pool.data...)
	return out
}
