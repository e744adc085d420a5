package cap

import (
	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/mem/hhdm"
	"hadron/kernel/mem/pmm"
	"hadron/kernel/mem/vmm"
)

var mmioToken MMIOToken

// MMIOToken authorizes mapping a physical MMIO range into kernel virtual
// space for the lifetime of the driver, and translating physical to
// kernel-virtual addresses through the direct map.
type MMIOToken struct{}

// MapPermanent maps the physical range [physAddr, physAddr+size) into kernel
// virtual space with the given flags. The mapping is never torn down; MMIO
// ranges live for the driver's lifetime, which is the kernel's lifetime.
func (MMIOToken) MapPermanent(physAddr uintptr, size mem.Size, flags vmm.PageTableEntryFlag) (uintptr, *kernel.Error) {
	size = size.AlignUp(mem.PageSize)
	base, err := mmioAlloc.Allocate(size)
	if err != nil {
		return 0, err
	}

	pages := size.Pages()
	for i := uint32(0); i < pages; i++ {
		page := vmm.PageFromAddress(base + uintptr(i)*uintptr(mem.PageSize))
		frame := pmm.FrameFromAddress(physAddr + uintptr(i)*uintptr(mem.PageSize))
		if err := vmm.Map(page, frame, flags, pmm.AllocateFrame); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// Translate returns the direct-map kernel-virtual address for a physical
// address, for MMIO regions that don't need a dedicated mapping.
func (MMIOToken) Translate(physAddr uintptr) uintptr {
	return hhdm.ToVirtual(physAddr)
}

// mmioAlloc carves permanent mappings out of the virtual range reserved for
// MMIO, set once during VMM bring-up. A bump allocator is sufficient since
// MMIO mappings are never torn down.
var mmioAlloc = vmm.NewBumpAllocator(0, 0)

// SetMMIORegion installs the virtual address range MapPermanent carves
// mappings from. Must be called once during boot before any driver is
// probed.
func SetMMIORegion(base uintptr, size mem.Size) {
	mmioAlloc = vmm.NewBumpAllocator(base, size)
}
