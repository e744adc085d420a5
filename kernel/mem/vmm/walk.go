package vmm

import (
	"unsafe"

	"hadron/kernel/mem"
)

// ptePtrFn resolves a page table entry's address to a pointer. Tests
// override it to redirect page table walks into plain Go memory instead of
// the recursively-mapped page directory table.
var ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
	return unsafe.Pointer(entryAddr)
}

// pageTableWalker is invoked once per page level visited by walk. Returning
// false aborts the walk before visiting the next level.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk descends the active page directory table for virtAddr, invoking
// walkFn at every level from the top-most table down to the final
// page table entry. It relies on the recursive self-mapping installed in
// the last PDT entry (pdtVirtualAddr) to reach every intermediate table
// through ordinary virtual addressing.
func walk(virtAddr uintptr, walkFn pageTableWalker) {
	var level uint8
	var tableAddr, entryAddr, entryIndex uintptr

	for level, tableAddr = uint8(0), pdtVirtualAddr; level < pageLevels; level, tableAddr = level+1, entryAddr {
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mem.PointerShift)

		if ok := walkFn(level, (*pageTableEntry)(ptePtrFn(entryAddr))); !ok {
			return
		}

		entryAddr <<= pageLevelBits[level]
	}
}
