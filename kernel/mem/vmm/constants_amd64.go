package vmm

import "math"

const (
	// pageLevels indicates the number of page table levels supported by
	// the amd64 architecture (PML4, PDPT, PD, PT).
	pageLevels = 4

	// ptePhysPageMask extracts the physical frame address from a page
	// table entry; bits 12-51 hold it on this architecture.
	ptePhysPageMask = uintptr(0x000ffffffffff000)

	// tempMappingAddr is a reserved virtual page used for temporary
	// physical page mappings (e.g. mapping an inactive PDT page to clear
	// or patch it). It decodes to page level indices 510, 511, 511, 511.
	tempMappingAddr = uintptr(0Xffffff7ffffff000)
)

var (
	// pdtVirtualAddr exploits the recursive mapping installed in the last
	// PDT entry: setting every page level index to the max value makes
	// the MMU walk back into the P4 table at every level, landing on the
	// P4 table itself.
	pdtVirtualAddr = uintptr(math.MaxUint64 &^ ((1 << 12) - 1))

	// pageLevelBits is the number of virtual address bits consumed by
	// each page level (512 entries per level on amd64).
	pageLevelBits = [pageLevels]uint8{9, 9, 9, 9}

	// pageLevelShifts is the bit shift needed to extract each page level
	// index from a virtual address.
	pageLevelShifts = [pageLevels]uint8{39, 30, 21, 12}
)

const (
	// FlagPresent is set when the page is resident in memory.
	FlagPresent PageTableEntryFlag = 1 << iota

	// FlagRW is set if the page can be written to.
	FlagRW

	// FlagUserAccessible is set if user-mode code may access this page.
	FlagUserAccessible

	// FlagWriteThroughCaching implies write-through caching when set,
	// write-back caching when cleared.
	FlagWriteThroughCaching

	// FlagDoNotCache prevents this page from being cached.
	FlagDoNotCache

	// FlagAccessed is set by the CPU when the page is accessed.
	FlagAccessed

	// FlagDirty is set by the CPU when the page is modified.
	FlagDirty

	// FlagHugePage selects a 2Mb page instead of a 4K page.
	FlagHugePage

	// FlagGlobal prevents the TLB entry for this page from being flushed
	// on a CR3 reload.
	FlagGlobal

	// FlagCopyOnWrite marks a page for copy-on-write duplication on the
	// next write fault. Mutually exclusive with FlagRW.
	FlagCopyOnWrite = 1 << 9

	// FlagNoExecute marks a page as containing non-executable data.
	FlagNoExecute = 1 << 63
)
