package proc

import "encoding/binary"

// Section header types relevant to relocation processing.
const (
	shtSymtab = 2
	shtRela   = 4
	shtDynsym = 11
)

const (
	elf64ShdrSize = 64
	elf64SymSize  = 24
)

// elf64SectionHeader is a parsed ELF64 section header entry.
type elf64SectionHeader struct {
	Type    uint32
	Offset  uint64
	Size    uint64
	Link    uint32
	Entsize uint64
}

// sectionHeaders parses every section header entry named by h out of data.
// Callers must have already validated h via ParseElf64Header, which checked
// that the whole table fits within data.
func sectionHeaders(data []byte, h *Elf64Header) []elf64SectionHeader {
	shdrs := make([]elf64SectionHeader, 0, h.Shnum)
	for i := uint16(0); i < h.Shnum; i++ {
		b := data[uint64(h.Shoff)+uint64(i)*uint64(h.Shentsize):]
		shdrs = append(shdrs, elf64SectionHeader{
			Type:    binary.LittleEndian.Uint32(b[4:]),
			Link:    binary.LittleEndian.Uint32(b[40:]),
			Offset:  binary.LittleEndian.Uint64(b[24:]),
			Size:    binary.LittleEndian.Uint64(b[32:]),
			Entsize: binary.LittleEndian.Uint64(b[56:]),
		})
	}
	return shdrs
}

// relaSections finds every SHT_RELA section header.
func relaSections(shdrs []elf64SectionHeader) []elf64SectionHeader {
	var relas []elf64SectionHeader
	for _, sh := range shdrs {
		if sh.Type == shtRela {
			relas = append(relas, sh)
		}
	}
	return relas
}

// symbolValue returns the st_value field of the symIndex'th entry of the
// symbol table described by symtab. A PIE binary's self-relocations
// (R_X86_64_RELATIVE) carry symIndex 0 and never reach this lookup.
func symbolValue(data []byte, symtab elf64SectionHeader, symIndex uint32) uint64 {
	if symtab.Entsize == 0 {
		return 0
	}
	off := symtab.Offset + uint64(symIndex)*symtab.Entsize
	if off+8 > uint64(len(data)) {
		return 0
	}
	return binary.LittleEndian.Uint64(data[off+8:])
}
