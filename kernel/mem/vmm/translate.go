package vmm

import (
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/mem/pmm"
)

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address in the currently active PDT.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	return physAddrFromPTE(pte, virtAddr), nil
}

// Translate resolves virtAddr against this PDT rather than whichever one is
// currently active. A loaded process's address space is built up long
// before its PDT is switched in: the loader still needs to read back the
// argv bytes it just wrote so it can hand the entry point an accurate RSP,
// and it can only do that through the same temporary-retarget trick Map
// and Unmap already use to reach an inactive table's entries.
func (pdt PageDirectoryTable) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		activePdtFrame   = pmm.Frame(activePDTFn() >> mem.PageShift)
		lastPdtEntryAddr uintptr
		lastPdtEntry     *pageTableEntry
	)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntryAddr = activePdtFrame.Address() + (((1 << pageLevelBits[0]) - 1) << mem.PointerShift)
		lastPdtEntry = (*pageTableEntry)(unsafe.Pointer(lastPdtEntryAddr))
		lastPdtEntry.SetFrame(pdt.pdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	pte, err := pteForAddress(virtAddr)

	if activePdtFrame != pdt.pdtFrame {
		lastPdtEntry.SetFrame(activePdtFrame)
		flushTLBEntryFn(lastPdtEntryAddr)
	}

	if err != nil {
		return 0, err
	}
	return physAddrFromPTE(pte, virtAddr), nil
}

// physAddrFromPTE combines a resolved page table entry with the
// page-offset bits of virtAddr to produce a full physical address.
func physAddrFromPTE(pte *pageTableEntry, virtAddr uintptr) uintptr {
	return pte.Frame().Address() + (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1))
}
