package proc

import (
	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/mem/vmm"
)

// LoadError wraps a failure encountered while loading a binary into a
// fresh process, distinguishing which stage of the pipeline rejected it.
type LoadError struct {
	Stage string
	Err   error
}

func (e *LoadError) Error() string { return e.Stage + ": " + e.Err.Error() }
func (e *LoadError) Unwrap() error { return e.Err }

const (
	// userStackTop sits just below the non-canonical address hole; the
	// stack grows downward from here.
	userStackTop = uintptr(0x7fff_ffff_f000)

	// userStackSize is the fixed size reserved for a process's stack.
	userStackSize = 64 * uintptr(mem.Kb)
)

// LoadProcess parses an ELF64 image, builds a fresh address space for it
// (loadable segments mapped, relocations applied for PIE images, a stack
// mapped and seeded with argv) and returns a Process ready to hand to the
// executor along with the entry point and initial stack pointer it should
// be polled with. An argv block that would extend below the mapped user
// stack is rejected before anything is written.
func LoadProcess(data []byte, argv []string, allocFn vmm.FrameAllocatorFn) (*Process, uintptr, uintptr, error) {
	header, elfErr := ParseElf64Header(data)
	if elfErr != nil {
		return nil, 0, 0, &LoadError{"parse header", elfErr}
	}

	phdrs := ProgramHeaders(data, header)

	as, err := NewAddressSpace(allocFn)
	if err != nil {
		return nil, 0, 0, &LoadError{"create address space", err}
	}

	for i := range phdrs {
		ph := &phdrs[i]
		if ph.Type != PTLoad {
			continue
		}
		if err := mapSegment(as, data, ph, allocFn); err != nil {
			return nil, 0, 0, &LoadError{"map segment", err}
		}
	}

	if header.IsPIE() {
		if err := applyRelocations(as, data, header, allocFn); err != nil {
			return nil, 0, 0, &LoadError{"apply relocations", err}
		}
	}

	if err := mapUserStack(as, allocFn); err != nil {
		return nil, 0, 0, &LoadError{"map stack", err}
	}

	block, rsp := BuildArgvBlock(userStackTop, argv)
	if rsp < userStackTop-userStackSize || rsp > userStackTop {
		return nil, 0, 0, &LoadError{"write argv", &kernel.Error{Module: "proc", Message: "argv block does not fit in the user stack"}}
	}
	if err := as.WriteAt(rsp, block); err != nil {
		return nil, 0, 0, &LoadError{"write argv", err}
	}

	return newProcess(as), uintptr(header.Entry), rsp, nil
}

// mapSegment maps every page backing a single PT_LOAD segment, page-aligning
// the segment's bounds, copying file content into the pages it covers and
// leaving the remainder (including the whole of a pure-bss segment) zeroed.
func mapSegment(as *AddressSpace, data []byte, ph *Elf64ProgramHeader, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	flags := vmm.FlagUserAccessible
	if ph.Flags&PFlagWrite != 0 {
		flags |= vmm.FlagRW
	}
	if ph.Flags&PFlagExec == 0 {
		flags |= vmm.FlagNoExecute
	}

	pageSize := uintptr(mem.PageSize)
	segStart := uintptr(ph.Vaddr) &^ (pageSize - 1)
	segEnd := (uintptr(ph.Vaddr) + uintptr(ph.Memsz) + pageSize - 1) &^ (pageSize - 1)

	segData := fileSegmentBytes(data, ph)

	for pageAddr := segStart; pageAddr < segEnd; pageAddr += pageSize {
		fileBytes := segmentPageBytes(segData, ph.Vaddr, pageAddr, pageSize)

		page := vmm.PageFromAddress(pageAddr)
		if err := as.MapSegment(page, flags, fileBytes, allocFn); err != nil {
			return err
		}
	}
	return nil
}

// segmentPageBytes returns the slice of segData (the segment's on-disk
// bytes) that belongs in the page starting at pageAddr, positioned at the
// offset within that page where the segment's data actually starts. Pages
// that fall entirely past the end of segData (the segment's bss tail, or a
// page straddling the file/bss boundary past what segData covers) return
// nil, leaving the whole page to be zero-filled by the caller.
func segmentPageBytes(segData []byte, segVaddr uint64, pageAddr, pageSize uintptr) []byte {
	pageOffsetInSeg := int64(pageAddr) - int64(segVaddr)
	if pageOffsetInSeg >= int64(len(segData)) {
		return nil
	}

	start := pageOffsetInSeg
	destOffset := uintptr(0)
	if start < 0 {
		destOffset = uintptr(-start)
		start = 0
	}
	end := start + int64(pageSize) - int64(destOffset)
	if end > int64(len(segData)) {
		end = int64(len(segData))
	}
	if end <= start {
		return nil
	}

	buf := make([]byte, destOffset+uintptr(end-start))
	copy(buf[destOffset:], segData[start:end])
	return buf
}

// fileSegmentBytes returns the portion of data backing a segment's on-disk
// contents (ph.Filesz bytes starting at ph.Offset); bytes past Filesz up to
// Memsz are zero-filled (bss) and are not part of this slice.
func fileSegmentBytes(data []byte, ph *Elf64ProgramHeader) []byte {
	start := ph.Offset
	end := start + ph.Filesz
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	if start > end {
		return nil
	}
	return data[start:end]
}

// mapUserStack maps and zeroes the fixed-size stack region below
// userStackTop.
func mapUserStack(as *AddressSpace, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	flags := vmm.FlagRW | vmm.FlagUserAccessible | vmm.FlagNoExecute
	pageSize := uintptr(mem.PageSize)
	stackBottom := userStackTop - userStackSize

	for pageAddr := stackBottom; pageAddr < userStackTop; pageAddr += pageSize {
		page := vmm.PageFromAddress(pageAddr)
		if err := as.MapSegment(page, flags, nil, allocFn); err != nil {
			return err
		}
	}
	return nil
}

// applyRelocations walks every SHT_RELA section in the image and applies
// each entry's x86-64 relocation directly into the freshly mapped address
// space.
func applyRelocations(as *AddressSpace, data []byte, header *Elf64Header, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	shdrs := sectionHeaders(data, header)
	baseAddr := uint64(0)

	for _, rs := range relaSections(shdrs) {
		var symtab elf64SectionHeader
		if int(rs.Link) < len(shdrs) {
			symtab = shdrs[rs.Link]
		}

		for _, rela := range RelasAt(data, int(rs.Offset), int(rs.Offset+rs.Size)) {
			symValue := uint64(0)
			if rela.Sym != 0 {
				symValue = symbolValue(data, symtab, rela.Sym)
			}

			placeAddr := baseAddr + rela.Offset
			value, width, relocErr := computeX8664Reloc(rela, symValue, baseAddr, placeAddr)
			if relocErr != nil {
				return &kernel.Error{Module: "proc", Message: relocErr.Error()}
			}

			buf := make([]byte, 8)
			n := 8
			if width == RelocWidth32 {
				n = 4
			}
			putLE(buf[:n], value)
			if err := as.WriteAt(uintptr(placeAddr), buf[:n]); err != nil {
				return err
			}
		}
	}
	return nil
}

func putLE(b []byte, v uint64) {
	for i := range b {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
