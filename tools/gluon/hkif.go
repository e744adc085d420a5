package main

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	hkifMagic      = "HKIF"
	hkifHeaderSize = 64
	dirEntrySize   = 16
	checksumOffset = 0x3C

	sectionSymbols = 2
	sectionLines   = 3
	sectionStrings = 4

	flagHasBacktrace = 1 << 1
)

// hkifParams is the kernel image metadata that goes in the HKIF header
// alongside the embedded symbol/line/string sections.
type hkifParams struct {
	KernelVirtBase  uint64
	KernelImageSize uint64
	EntryPoint      uint64
}

// buildHKIF wraps an HBTF-shaped symbol/line/string layout in an HKIF
// image: a 64-byte header, a section directory, then the three sections
// back to back. The checksum is a CRC-32 over the whole buffer computed
// with the checksum field itself zeroed, matching what
// kernel/backtrace.ParseHKIF recomputes and compares against.
func buildHKIF(params hkifParams, syms []funcSymbol, lines []lineInfo) []byte {
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

	type section struct {
		typ    uint32
		offset uint32
		size   uint32
	}

	dirOffset := uint32(hkifHeaderSize)
	sections := []section{
		{sectionSymbols, 0, uint32(len(symTable))},
		{sectionLines, 0, uint32(len(lineTable))},
		{sectionStrings, 0, uint32(len(pool.data))},
	}

	dataOffset := dirOffset + uint32(len(sections)*dirEntrySize)
	sections[0].offset = dataOffset
	sections[1].offset = sections[0].offset + sections[0].size
	sections[2].offset = sections[1].offset + sections[1].size
	totalSize := sections[2].offset + sections[2].size

	header := make([]byte, hkifHeaderSize)
	copy(header[0:4], hkifMagic)
	binary.LittleEndian.PutUint16(header[4:6], 1)
	binary.LittleEndian.PutUint16(header[6:8], flagHasBacktrace)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(sections)))
	binary.LittleEndian.PutUint32(header[12:16], dirOffset)
	binary.LittleEndian.PutUint64(header[16:24], params.KernelVirtBase)
	binary.LittleEndian.PutUint64(header[24:32], params.KernelImageSize)
	binary.LittleEndian.PutUint64(header[32:40], params.EntryPoint)
	binary.LittleEndian.PutUint32(header[56:60], totalSize)

	directory := make([]byte, 0, len(sections)*dirEntrySize)
	for _, s := range sections {
		entry := make([]byte, dirEntrySize)
		binary.LittleEndian.PutUint32(entry[0:4], s.typ)
		binary.LittleEndian.PutUint32(entry[4:8], s.offset)
		binary.LittleEndian.PutUint32(entry[8:12], s.size)
		directory = append(directory, entry...)
	}

	out := make([]byte, 0, int(totalSize))
	out = append(out, header...)
	out = append(out, directory...)
	out = append(out, symTable...)
	out = append(out, lineTable...)
	out = append(out, pool.data...)

	for i := 0; i < 4; i++ {
		out[checksumOffset+i] = 0
	}
	checksum := crc32.ChecksumIEEE(out)
	binary.LittleEndian.PutUint32(out[checksumOffset:checksumOffset+4], checksum)

	return out
}
