package proc

import (
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/mem/hhdm"
	"hadron/kernel/mem/vmm"
)

// kernelPML4Start and kernelPML4End bound the PML4 entries that describe
// the shared kernel upper half (canonical addresses with bit 47 set). Entry
// 511 is excluded: vmm.PageDirectoryTable.Init points it at the new table's
// own frame to build that table's recursive self-mapping, and copying the
// active table's self-referential entry over it would point a fresh
// address space's recursive slot at the wrong table.
const (
	kernelPML4Start = 256
	kernelPML4End   = 510
)

// AddressSpace is a process's private page directory table, seeded with a
// shallow copy of the kernel's upper half so kernel code stays reachable
// after a context switch into user mode.
type AddressSpace struct {
	pdt vmm.PageDirectoryTable
}

// NewAddressSpace allocates a fresh PML4 frame, bootstraps it as a
// PageDirectoryTable and copies the currently active table's kernel-half
// entries into it.
func NewAddressSpace(allocFn vmm.FrameAllocatorFn) (*AddressSpace, *kernel.Error) {
	frame, err := allocFn()
	if err != nil {
		return nil, err
	}

	as := &AddressSpace{}
	if err := as.pdt.Init(frame, allocFn); err != nil {
		return nil, err
	}
	if err := as.pdt.CopyKernelHalf(kernelPML4Start, kernelPML4End, allocFn); err != nil {
		return nil, err
	}
	return as, nil
}

// MapSegment maps a single page of a loadable segment into this address
// space, zeroing it and copying at most one page worth of file content (the
// caller is responsible for splitting a segment across pages). flags should
// not include vmm.FlagPresent; Map always sets it.
func (as *AddressSpace) MapSegment(page vmm.Page, flags vmm.PageTableEntryFlag, fileBytes []byte, allocFn vmm.FrameAllocatorFn) *kernel.Error {
	frame, err := allocFn()
	if err != nil {
		return err
	}

	dst := hhdm.ToVirtual(frame.Address())
	mem.Memset(dst, 0, mem.PageSize)
	if len(fileBytes) > 0 {
		mem.Memcopy(dst, uintptr(unsafe.Pointer(&fileBytes[0])), mem.Size(len(fileBytes)))
	}

	return as.pdt.Map(page, frame, flags, allocFn)
}

// WriteAt writes data into this address space at userVA, which must already
// be mapped. The new table is not active yet, so every byte is resolved to
// its backing frame through PageDirectoryTable.Translate and written via the
// direct map rather than through ordinary pointer dereferences.
func (as *AddressSpace) WriteAt(userVA uintptr, data []byte) *kernel.Error {
	for len(data) > 0 {
		physAddr, err := as.pdt.Translate(userVA)
		if err != nil {
			return err
		}

		pageOffset := userVA & uintptr(mem.PageSize-1)
		chunk := uintptr(mem.PageSize) - pageOffset
		if chunk > uintptr(len(data)) {
			chunk = uintptr(len(data))
		}

		mem.Memcopy(hhdm.ToVirtual(physAddr), uintptr(unsafe.Pointer(&data[0])), mem.Size(chunk))

		data = data[chunk:]
		userVA += chunk
	}
	return nil
}

// Activate switches the CPU's root page table to this address space.
func (as *AddressSpace) Activate() { as.pdt.Activate() }
