package cap

import (
	"hadron/kernel"
	"hadron/kernel/mem/hhdm"
	"hadron/kernel/mem/pmm"
)

var dmaToken DMAToken

// DMAToken authorizes allocating and freeing contiguous physical frames for
// DMA buffers, and translating between physical and direct-map virtual
// addresses.
type DMAToken struct{}

// AllocateFrames reserves n contiguous physical frames and returns the first.
func (DMAToken) AllocateFrames(n uint64) (pmm.Frame, *kernel.Error) {
	return pmm.AllocateFrames(n)
}

// Free releases n contiguous frames starting at base.
func (DMAToken) Free(base pmm.Frame, n uint64) *kernel.Error {
	return pmm.DeallocateFrames(base, n)
}

// Translate returns the direct-map kernel-virtual address backing a physical
// address, so a driver can read/write a DMA buffer without a fresh mapping.
func (DMAToken) Translate(physAddr uintptr) uintptr {
	return hhdm.ToVirtual(physAddr)
}
