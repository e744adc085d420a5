// Package proc loads ELF64 executables into fresh address spaces and hands
// the resulting entry point to the async executor. See spec.md §4.H.
package proc

import "encoding/binary"

const (
	elfMagic0 = 0x7f
	elfMagic1 = 'E'
	elfMagic2 = 'L'
	elfMagic3 = 'F'

	elfClass64    = 2
	elfData2LSB   = 1
	etExec        = 2
	etDyn         = 3
	emX86_64      = 62
	elf64EhdrSize = 64
	elf64PhdrSize = 56

	// PTLoad identifies a loadable program header segment.
	PTLoad = 1
)

// ElfError identifies why an ELF image was rejected. Held as package-level
// vars, like kernel.Error, since the allocator is not available this early.
type ElfError struct{ msg string }

func (e *ElfError) Error() string { return e.msg }

var (
	ErrBadMagic            = &ElfError{"invalid ELF magic bytes"}
	ErrUnsupportedClass    = &ElfError{"unsupported ELF class (expected ELFCLASS64)"}
	ErrUnsupportedEncoding = &ElfError{"unsupported data encoding (expected little-endian)"}
	ErrUnsupportedMachine  = &ElfError{"unsupported machine type (expected EM_X86_64)"}
	ErrUnsupportedType     = &ElfError{"unsupported ELF type (expected ET_EXEC or ET_DYN)"}
	ErrTruncated           = &ElfError{"input data truncated"}
	ErrInvalidOffset       = &ElfError{"invalid header offset or size"}
)

// Elf64Header is a parsed ELF64 file header.
type Elf64Header struct {
	Type      uint16
	Machine   uint16
	Entry     uint64
	Phoff     uint64
	Phnum     uint16
	Phentsize uint16
	Shoff     uint64
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

// IsPIE reports whether the header describes a position-independent
// executable (ET_DYN), which needs relocations applied after loading.
func (h *Elf64Header) IsPIE() bool { return h.Type == etDyn }

// ParseElf64Header validates and parses the ELF64 file header, including
// the bounds of the program (and, if present, section) header tables.
func ParseElf64Header(data []byte) (*Elf64Header, *ElfError) {
	if len(data) < elf64EhdrSize {
		return nil, ErrTruncated
	}

	if data[0] != elfMagic0 || data[1] != elfMagic1 || data[2] != elfMagic2 || data[3] != elfMagic3 {
		return nil, ErrBadMagic
	}
	if data[4] != elfClass64 {
		return nil, ErrUnsupportedClass
	}
	if data[5] != elfData2LSB {
		return nil, ErrUnsupportedEncoding
	}

	h := &Elf64Header{
		Type:      binary.LittleEndian.Uint16(data[16:]),
		Machine:   binary.LittleEndian.Uint16(data[18:]),
		Entry:     binary.LittleEndian.Uint64(data[24:]),
		Phoff:     binary.LittleEndian.Uint64(data[32:]),
		Shoff:     binary.LittleEndian.Uint64(data[40:]),
		Phentsize: binary.LittleEndian.Uint16(data[54:]),
		Phnum:     binary.LittleEndian.Uint16(data[56:]),
		Shentsize: binary.LittleEndian.Uint16(data[58:]),
		Shnum:     binary.LittleEndian.Uint16(data[60:]),
		Shstrndx:  binary.LittleEndian.Uint16(data[62:]),
	}

	if h.Type != etExec && h.Type != etDyn {
		return nil, ErrUnsupportedType
	}
	if h.Machine != emX86_64 {
		return nil, ErrUnsupportedMachine
	}

	phEnd, overflow := addOverflows64(h.Phoff, uint64(h.Phnum)*uint64(h.Phentsize))
	if overflow || phEnd > uint64(len(data)) {
		return nil, ErrInvalidOffset
	}
	if h.Phnum > 0 && uint64(h.Phentsize) < elf64PhdrSize {
		return nil, ErrInvalidOffset
	}

	if h.Shnum > 0 {
		if uint64(h.Shentsize) < 64 {
			return nil, ErrInvalidOffset
		}
		shEnd, overflow := addOverflows64(h.Shoff, uint64(h.Shnum)*uint64(h.Shentsize))
		if overflow || shEnd > uint64(len(data)) {
			return nil, ErrInvalidOffset
		}
	}

	return h, nil
}

// addOverflows64 adds a and b, reporting whether the addition wrapped.
func addOverflows64(a, b uint64) (sum uint64, overflow bool) {
	sum = a + b
	return sum, sum < a
}

// Elf64ProgramHeader is a parsed ELF64 program header entry.
type Elf64ProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Filesz uint64
	Memsz  uint64
}

const (
	// PFlagExec, PFlagWrite and PFlagRead are the standard ELF segment
	// permission bits (p_flags), independent of architecture.
	PFlagExec  = 1 << 0
	PFlagWrite = 1 << 1
	PFlagRead  = 1 << 2
)

// ProgramHeaders parses every program header entry named by h out of data.
// Callers must have already validated h via ParseElf64Header, which checked
// that the whole table fits within data.
func ProgramHeaders(data []byte, h *Elf64Header) []Elf64ProgramHeader {
	phdrs := make([]Elf64ProgramHeader, 0, h.Phnum)
	for i := uint16(0); i < h.Phnum; i++ {
		b := data[uint64(h.Phoff)+uint64(i)*uint64(h.Phentsize):]
		phdrs = append(phdrs, Elf64ProgramHeader{
			Type:   binary.LittleEndian.Uint32(b[0:]),
			Flags:  binary.LittleEndian.Uint32(b[4:]),
			Offset: binary.LittleEndian.Uint64(b[8:]),
			Vaddr:  binary.LittleEndian.Uint64(b[16:]),
			// p_paddr at b[24:32] is skipped; this loader has no notion
			// of physical load addresses distinct from the virtual ones.
			Filesz: binary.LittleEndian.Uint64(b[32:]),
			Memsz:  binary.LittleEndian.Uint64(b[40:]),
		})
	}
	return phdrs
}
