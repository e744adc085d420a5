package proc

import "encoding/binary"

// x86_64 relocation types (ELF ABI supplement).
const (
	rX8664None     = 0
	rX866464       = 1
	rX8664PC32     = 2
	rX8664PLT32    = 4
	rX8664GlobDat  = 6
	rX8664Relative = 8
	rX866432       = 10
	rX866432S      = 11
)

const elf64RelaSize = 24

// Elf64Rela is a parsed ELF64 relocation entry with addend (SHT_RELA).
type Elf64Rela struct {
	Offset uint64
	Type   uint32
	Sym    uint32
	Addend int64
}

// RelasAt parses the relocation entries found in data[offset:end].
func RelasAt(data []byte, offset, end int) []Elf64Rela {
	relas := make([]Elf64Rela, 0, (end-offset)/elf64RelaSize)
	for offset+elf64RelaSize <= end {
		b := data[offset:]
		info := binary.LittleEndian.Uint64(b[8:])
		relas = append(relas, Elf64Rela{
			Offset: binary.LittleEndian.Uint64(b[0:]),
			Type:   uint32(info),
			Sym:    uint32(info >> 32),
			Addend: int64(binary.LittleEndian.Uint64(b[16:])),
		})
		offset += elf64RelaSize
	}
	return relas
}

// RelocWidth identifies how many bytes of the computed RelocValue must be
// written at the relocation target.
type RelocWidth uint8

const (
	RelocWidth32 RelocWidth = iota
	RelocWidth64
)

// RelocError explains why computeX8664Reloc rejected a relocation entry.
type RelocError struct{ msg string }

func (e *RelocError) Error() string { return e.msg }

// ErrRelocOverflow is returned when the computed value does not fit in the
// relocation's target field width.
var ErrRelocOverflow = &RelocError{"relocation value overflow"}

func errUnsupportedRelocType(t uint32) *RelocError {
	return &RelocError{"unsupported relocation type"}
}

// computeX8664Reloc computes the relocation value for an x86-64 relocation
// entry. This is pure arithmetic: it has no memory side effects, so the
// same logic that decides what to write also decides, independently of any
// address space, whether the value even fits.
//
// symValue is the resolved symbol value (0 for R_X86_64_RELATIVE). baseAddr
// is the segment load base, used by R_X86_64_RELATIVE for ET_DYN images.
// placeAddr is the virtual address the relocation is written at (P).
func computeX8664Reloc(rela Elf64Rela, symValue, baseAddr, placeAddr uint64) (value uint64, width RelocWidth, err *RelocError) {
	s := symValue
	a := rela.Addend
	p := int64(placeAddr)
	b := baseAddr

	switch rela.Type {
	case rX8664None:
		return 0, RelocWidth64, nil

	case rX866464:
		return s + uint64(a), RelocWidth64, nil

	case rX8664PC32, rX8664PLT32:
		result := int64(s) + a - p
		truncated := int32(result)
		if int64(truncated) != result {
			return 0, RelocWidth32, ErrRelocOverflow
		}
		return uint64(uint32(truncated)), RelocWidth32, nil

	case rX8664GlobDat:
		return s, RelocWidth64, nil

	case rX8664Relative:
		return b + uint64(a), RelocWidth64, nil

	case rX866432:
		result := s + uint64(a)
		if result > 0xffffffff {
			return 0, RelocWidth32, ErrRelocOverflow
		}
		return result, RelocWidth32, nil

	case rX866432S:
		result := int64(s) + a
		truncated := int32(result)
		if int64(truncated) != result {
			return 0, RelocWidth32, ErrRelocOverflow
		}
		return uint64(uint32(truncated)), RelocWidth32, nil

	default:
		return 0, RelocWidth64, errUnsupportedRelocType(rela.Type)
	}
}
