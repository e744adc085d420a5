package proc

import "testing"

func makeElfHeader(elfType, machine uint16, phnum, phentsize uint16, phoff uint64) []byte {
	buf := make([]byte, elf64EhdrSize)
	buf[0], buf[1], buf[2], buf[3] = elfMagic0, elfMagic1, elfMagic2, elfMagic3
	buf[4] = elfClass64
	buf[5] = elfData2LSB
	putU16(buf[16:], elfType)
	putU16(buf[18:], machine)
	putU64(buf[24:], 0x401000)
	putU64(buf[32:], phoff)
	putU16(buf[54:], phentsize)
	putU16(buf[56:], phnum)
	return buf
}

func putU16(b []byte, v uint16) { b[0], b[1] = byte(v), byte(v>>8) }
func putU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}

func TestParseElf64HeaderValid(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	h, err := ParseElf64Header(data)
	if err != nil {
		t.Fatal(err)
	}
	if h.Type != etExec || h.Machine != emX86_64 || h.Entry != 0x401000 {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestParseElf64HeaderAcceptsDyn(t *testing.T) {
	data := makeElfHeader(etDyn, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	h, err := ParseElf64Header(data)
	if err != nil {
		t.Fatal(err)
	}
	if !h.IsPIE() {
		t.Fatal("expected ET_DYN header to report IsPIE")
	}
}

func TestParseElf64HeaderRejectsBadMagic(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	data[0] = 0
	if _, err := ParseElf64Header(data); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic; got %v", err)
	}
}

func TestParseElf64HeaderRejects32BitClass(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	data[4] = 1
	if _, err := ParseElf64Header(data); err != ErrUnsupportedClass {
		t.Fatalf("expected ErrUnsupportedClass; got %v", err)
	}
}

func TestParseElf64HeaderRejectsBigEndian(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	data[5] = 2
	if _, err := ParseElf64Header(data); err != ErrUnsupportedEncoding {
		t.Fatalf("expected ErrUnsupportedEncoding; got %v", err)
	}
}

func TestParseElf64HeaderRejectsWrongMachine(t *testing.T) {
	data := makeElfHeader(etExec, 3, 0, elf64PhdrSize, elf64EhdrSize)
	if _, err := ParseElf64Header(data); err != ErrUnsupportedMachine {
		t.Fatalf("expected ErrUnsupportedMachine; got %v", err)
	}
}

func TestParseElf64HeaderRejectsUnsupportedType(t *testing.T) {
	data := makeElfHeader(1, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	if _, err := ParseElf64Header(data); err != ErrUnsupportedType {
		t.Fatalf("expected ErrUnsupportedType; got %v", err)
	}
}

func TestParseElf64HeaderRejectsTruncated(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 0, elf64PhdrSize, elf64EhdrSize)
	if _, err := ParseElf64Header(data[:32]); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated; got %v", err)
	}
}

func TestParseElf64HeaderRejectsPhdrOutOfBounds(t *testing.T) {
	data := makeElfHeader(etExec, emX86_64, 1, elf64PhdrSize, elf64EhdrSize)
	// phoff + phnum*phentsize overruns the (too-short) buffer.
	if _, err := ParseElf64Header(data); err != ErrInvalidOffset {
		t.Fatalf("expected ErrInvalidOffset; got %v", err)
	}
}

func TestParseElf64HeaderAcceptsHeaderWithPhdr(t *testing.T) {
	buf := make([]byte, int(elf64EhdrSize)+int(elf64PhdrSize))
	copy(buf, makeElfHeader(etExec, emX86_64, 1, elf64PhdrSize, elf64EhdrSize))

	phdr := buf[elf64EhdrSize:]
	putU32(phdr[0:], PTLoad)
	putU32(phdr[4:], PFlagRead|PFlagExec)
	putU64(phdr[16:], 0x400000)
	putU64(phdr[32:], 0x100)
	putU64(phdr[40:], 0x100)

	h, err := ParseElf64Header(buf)
	if err != nil {
		t.Fatal(err)
	}

	phdrs := ProgramHeaders(buf, h)
	if len(phdrs) != 1 {
		t.Fatalf("expected 1 program header; got %d", len(phdrs))
	}
	if phdrs[0].Type != PTLoad || phdrs[0].Vaddr != 0x400000 {
		t.Fatalf("unexpected program header: %+v", phdrs[0])
	}
}

func putU32(b []byte, v uint32) {
	for i := 0; i < 4; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
