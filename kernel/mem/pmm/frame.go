// Package pmm contains code that manages physical memory frame allocations.
package pmm

import (
	"math"

	"hadron/kernel/mem"
)

// Frame describes a physical memory page index. Frame 0 refers to the
// physical address range [0, mem.PageSize).
type Frame uint64

// InvalidFrame is returned by frame allocators when they fail to reserve the
// requested frame(s).
const InvalidFrame = Frame(math.MaxUint64)

// IsValid returns true if this is a valid frame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the Frame containing the given physical address.
// The address is rounded down to the containing page boundary.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame(physAddr >> mem.PageShift)
}
