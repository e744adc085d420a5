package vmm

import (
	"sort"

	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/mem/pmm"
)

var (
	// ErrRegionExhausted is returned by a BumpAllocator, or by
	// FreeListRegionAllocator falling back to its watermark, when the
	// owning region has no more address space to hand out.
	ErrRegionExhausted = &kernel.Error{Module: "vmm", Message: "virtual region exhausted"}

	// ErrFreeListFull is returned by FreeListRegionAllocator.Deallocate
	// when a freed range cannot be coalesced into an existing entry and
	// the fixed-capacity free list has no room for a new one.
	ErrFreeListFull = &kernel.Error{Module: "vmm", Message: "free list capacity exhausted"}
)

// freeRange is a free range of virtual addresses.
type freeRange struct {
	base uintptr
	size mem.Size
}

func (r freeRange) end() uintptr { return r.base + uintptr(r.size) }

// BumpAllocator hands out ever-increasing addresses from a virtual region
// and never reclaims them. It backs the MMIO window kernel/cap hands out
// through MMIOToken, whose mappings are permanent. (The kernel heap's
// address space comes from EarlyReserveRegion instead.)
type BumpAllocator struct {
	base uintptr
	size mem.Size
	next uintptr
}

// NewBumpAllocator creates a BumpAllocator over [base, base+size).
func NewBumpAllocator(base uintptr, size mem.Size) *BumpAllocator {
	return &BumpAllocator{base: base, size: size, next: base}
}

// Allocate reserves a page-aligned span of size bytes and returns its base
// address. Returns ErrRegionExhausted if the region has no more room.
func (b *BumpAllocator) Allocate(size mem.Size) (uintptr, *kernel.Error) {
	size = size.AlignUp(mem.PageSize)

	if uintptr(size) > b.base+uintptr(b.size)-b.next {
		return 0, ErrRegionExhausted
	}

	addr := b.next
	b.next += uintptr(size)
	return addr, nil
}

// maxFreeRanges bounds the free list kept by FreeListRegionAllocator. Like
// the lockdep class/edge tables, capacity is fixed and exhaustion degrades
// to an explicit error rather than a dynamic resize.
const maxFreeRanges = 64

// FreeListRegionAllocator sub-allocates a virtual region using a
// first-fit free list plus a bump watermark for territory the free list has
// never seen. It suits regions that both grow and shrink over the kernel's
// lifetime; no package in this tree constructs one.
type FreeListRegionAllocator struct {
	base      uintptr
	size      mem.Size
	watermark uintptr

	// free is sorted by base and never contains two adjacent ranges;
	// every entry satisfies base+size <= watermark.
	free []freeRange
}

// NewFreeListRegionAllocator creates a FreeListRegionAllocator over
// [base, base+size).
func NewFreeListRegionAllocator(base uintptr, size mem.Size) *FreeListRegionAllocator {
	return &FreeListRegionAllocator{
		base:      base,
		size:      size,
		watermark: base,
		free:      make([]freeRange, 0, maxFreeRanges),
	}
}

// Allocate reserves a page-aligned span of size bytes, preferring a carve
// from the free list over bumping the watermark.
func (a *FreeListRegionAllocator) Allocate(size mem.Size) (uintptr, *kernel.Error) {
	size = size.AlignUp(mem.PageSize)

	for i := range a.free {
		r := a.free[i]
		if r.size < size {
			continue
		}

		addr := r.base
		if r.size == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i].base += uintptr(size)
			a.free[i].size -= size
		}
		return addr, nil
	}

	if uintptr(size) > a.base+uintptr(a.size)-a.watermark {
		return 0, ErrRegionExhausted
	}

	addr := a.watermark
	a.watermark += uintptr(size)
	return addr, nil
}

// Deallocate returns [addr, addr+size) to the allocator, retracting the
// watermark when the freed range sits at the tail and coalescing with
// neighboring free ranges otherwise.
func (a *FreeListRegionAllocator) Deallocate(addr uintptr, size mem.Size) *kernel.Error {
	size = size.AlignUp(mem.PageSize)

	if addr+uintptr(size) == a.watermark {
		a.watermark = addr

		// Keep retracting while the new tail abuts the last free entry.
		for len(a.free) > 0 {
			last := a.free[len(a.free)-1]
			if last.end() != a.watermark {
				break
			}
			a.watermark = last.base
			a.free = a.free[:len(a.free)-1]
		}
		return nil
	}

	idx := sort.Search(len(a.free), func(i int) bool { return a.free[i].base > addr })

	abutsPrev := idx > 0 && a.free[idx-1].end() == addr
	abutsNext := idx < len(a.free) && addr+uintptr(size) == a.free[idx].base

	switch {
	case abutsPrev && abutsNext:
		a.free[idx-1].size += size + a.free[idx].size
		a.free = append(a.free[:idx], a.free[idx+1:]...)
	case abutsPrev:
		a.free[idx-1].size += size
	case abutsNext:
		a.free[idx].base = addr
		a.free[idx].size += size
	default:
		if len(a.free) >= maxFreeRanges {
			return ErrFreeListFull
		}
		a.free = append(a.free, freeRange{})
		copy(a.free[idx+1:], a.free[idx:])
		a.free[idx] = freeRange{base: addr, size: size}
	}

	return nil
}

// FreeBytes returns the number of bytes currently reclaimable from this
// allocator, across both the free list and the untouched tail of the region.
func (a *FreeListRegionAllocator) FreeBytes() mem.Size {
	total := mem.Size(a.base+uintptr(a.size)) - mem.Size(a.watermark)
	for _, r := range a.free {
		total += r.size
	}
	return total
}

var (
	// earlyReserveLastUsed tracks the next address handed out by
	// EarlyReserveRegion, moving downward from the end of the kernel
	// address space. This bump-down region exists alongside the more
	// general BumpAllocator/FreeListRegionAllocator above because it must
	// be usable before any VirtualRegion has been carved out: it backs
	// the Go runtime's own sysReserve calls during early boot.
	earlyReserveLastUsed = tempMappingAddr

	errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining virtual address space not large enough to satisfy reservation request"}

	// ReservedZeroedFrame is a single always-zero physical frame mapped
	// read-only with FlagCopyOnWrite wherever a lazily-allocated page is
	// referenced before it is ever written to.
	ReservedZeroedFrame pmm.Frame

	// protectReservedZeroedPage is set once ReservedZeroedFrame has been
	// initialized; from that point on it must never be mapped RW.
	protectReservedZeroedPage bool
)

// EarlyReserveRegion reserves a page-aligned contiguous virtual memory
// region of the requested size and returns its base address. Allocates
// downward from the end of the kernel address space; intended only for use
// before the kernel's named virtual regions have been set up.
func EarlyReserveRegion(size mem.Size) (uintptr, *kernel.Error) {
	size = size.AlignUp(mem.PageSize)

	if uintptr(size) > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= uintptr(size)
	return earlyReserveLastUsed, nil
}
