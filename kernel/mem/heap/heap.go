// Package heap implements the kernel's general-purpose dynamic allocator: a
// first-fit, address-sorted linked list of free blocks that grows on demand
// by calling back into the virtual/physical memory managers. See
// spec.md §4.D.
package heap

import (
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/sync"
)

const (
	// MinBlock is the smallest block size the allocator will ever hand
	// out or keep on the free list; it must be large enough to hold a
	// blockHeader.
	MinBlock = mem.Size(32)

	// BlockAlign is the minimum alignment applied to every allocation.
	BlockAlign = mem.Size(16)

	// minGrow is the smallest region requested from GrowFunc, regardless
	// of how small the triggering allocation was, so a grow is worth the
	// round-trip through the VMM/PMM.
	minGrow = 64 * mem.Kb
)

// blockHeader is stored at the start of every free block.
type blockHeader struct {
	size mem.Size
	next uintptr // address of the next free block, or 0
}

func headerAt(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

// GrowFunc requests at least minSize bytes of fresh, mapped, zeroed address
// space from the layer above (VMM region allocator + PMM). It returns the
// base and actual size of the region it was able to provide.
type GrowFunc func(minSize mem.Size) (uintptr, mem.Size, *kernel.Error)

// Allocator is a first-fit, address-sorted free-list allocator.
type Allocator struct {
	lock *sync.SpinLock

	head      uintptr // address of the first free block, or 0
	heapStart uintptr
	heapEnd   uintptr
	allocated mem.Size

	growFn GrowFunc
}

// global is the kernel's single heap instance, installed by Init.
var global = &Allocator{}

func init() {
	global.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(global)), "heap", sync.LevelHeap, sync.KindSpinLock)
}

// Init seeds the heap with a single free block spanning [start, start+size).
// start must be page-aligned and point at mapped, zeroed memory; size must
// be at least MinBlock.
func Init(start uintptr, size mem.Size) {
	global.Init(start, size)
}

// Init is the method form of the package-level Init, useful for tests that
// want an isolated allocator instance.
func (a *Allocator) Init(start uintptr, size mem.Size) {
	a.heapStart = start
	a.heapEnd = start + uintptr(size)

	h := headerAt(start)
	h.size = size
	h.next = 0
	a.head = start
}

// RegisterGrowFunc installs the callback used to request more address space
// once the free list cannot satisfy a request.
func RegisterGrowFunc(f GrowFunc) { global.RegisterGrowFunc(f) }

// RegisterGrowFunc is the method form of the package-level function.
func (a *Allocator) RegisterGrowFunc(f GrowFunc) {
	a.lock.Acquire()
	a.growFn = f
	a.lock.Release()
}

// Allocate reserves size bytes aligned to align and returns its address, or
// ErrOutOfMemory if the request cannot be satisfied even after growing. A
// call grows the heap at most once: if the region the grow callback returns
// still cannot hold the request, Allocate fails without asking again.
func Allocate(size, align mem.Size) (uintptr, *kernel.Error) {
	return global.Allocate(size, align)
}

// Allocate is the method form of the package-level function.
func (a *Allocator) Allocate(size, align mem.Size) (uintptr, *kernel.Error) {
	if size < MinBlock {
		size = MinBlock
	}
	if align < BlockAlign {
		align = BlockAlign
	}

	a.lock.Acquire()
	if addr, ok := a.findFirstFit(size, align); ok {
		a.allocated += size
		a.lock.Release()
		return addr, nil
	}

	growFn := a.growFn
	// The grow callback acquires the PMM lock, whose level is lower than
	// the heap's; the heap lock is released first so it is never held
	// while a lower-level lock is acquired.
	a.lock.Release()

	if growFn == nil {
		return 0, ErrOutOfMemory
	}

	need := size
	if need < minGrow {
		need = minGrow
	}

	base, got, err := growFn(need)
	if err != nil {
		return 0, ErrOutOfMemory
	}

	a.lock.Acquire()
	defer a.lock.Release()

	a.addFreeRegion(base, got)
	if end := base + uintptr(got); end > a.heapEnd {
		a.heapEnd = end
	}

	addr, ok := a.findFirstFit(size, align)
	if !ok {
		return 0, ErrOutOfMemory
	}
	a.allocated += size
	return addr, nil
}

// Deallocate returns a previously allocated [addr, addr+size) span to the
// free list, coalescing with adjacent free blocks.
func Deallocate(addr uintptr, size mem.Size) {
	global.Deallocate(addr, size)
}

// Deallocate is the method form of the package-level function.
func (a *Allocator) Deallocate(addr uintptr, size mem.Size) {
	if size < MinBlock {
		size = MinBlock
	}

	a.lock.Acquire()
	defer a.lock.Release()

	a.allocated -= size
	a.addFreeRegion(addr, size)
}

// AllocatedBytes returns the number of bytes currently handed out.
func AllocatedBytes() mem.Size { return global.AllocatedBytes() }

// AllocatedBytes is the method form of the package-level function.
func (a *Allocator) AllocatedBytes() mem.Size {
	a.lock.Acquire()
	defer a.lock.Release()
	return a.allocated
}

// addFreeRegion inserts [addr, addr+size) into the free list in
// address-sorted order, coalescing with whichever neighbors it abuts.
// Callers must hold a.lock.
func (a *Allocator) addFreeRegion(addr uintptr, size mem.Size) {
	h := headerAt(addr)
	h.size = size
	h.next = 0
	a.insertAndCoalesce(addr)
}

func (a *Allocator) insertAndCoalesce(addr uintptr) {
	var prev uintptr
	cur := a.head

	for cur != 0 && cur < addr {
		prev = cur
		cur = headerAt(cur).next
	}

	if prev != 0 {
		prevHdr := headerAt(prev)
		if prev+uintptr(prevHdr.size) == addr {
			prevHdr.size += headerAt(addr).size
			mergedEnd := prev + uintptr(prevHdr.size)
			if cur != 0 && mergedEnd == cur {
				curHdr := headerAt(cur)
				prevHdr.size += curHdr.size
				prevHdr.next = curHdr.next
			}
			return
		}
	}

	blockHdr := headerAt(addr)
	if cur != 0 && addr+uintptr(blockHdr.size) == cur {
		curHdr := headerAt(cur)
		blockHdr.size += curHdr.size
		blockHdr.next = curHdr.next
	} else {
		blockHdr.next = cur
	}

	if prev == 0 {
		a.head = addr
	} else {
		headerAt(prev).next = addr
	}
}

// findFirstFit removes and returns the address of the first free block
// large enough to hold size bytes aligned to align, splitting off any
// leftover front padding or tail remainder back onto the free list.
// Callers must hold a.lock.
func (a *Allocator) findFirstFit(size, align mem.Size) (uintptr, bool) {
	var prev uintptr
	cur := a.head

	for cur != 0 {
		hdr := headerAt(cur)
		blockSize := hdr.size

		allocStart := alignUp(cur, align)
		allocEnd := allocStart + uintptr(size)

		if allocEnd <= cur+uintptr(blockSize) {
			next := hdr.next

			if prev == 0 {
				a.head = next
			} else {
				headerAt(prev).next = next
			}

			frontPadding := mem.Size(allocStart - cur)
			if frontPadding >= MinBlock {
				a.addFreeRegion(cur, frontPadding)
			}

			usedSize := mem.Size(allocStart-cur) + size
			if blockSize > usedSize {
				remAddr := uintptr(mem.Size(allocStart + uintptr(size)).AlignUp(BlockAlign))
				remSize := mem.Size(cur+uintptr(blockSize)) - mem.Size(remAddr)
				if remSize >= MinBlock {
					a.addFreeRegion(remAddr, remSize)
				}
			}

			return allocStart, true
		}

		prev = cur
		cur = hdr.next
	}

	return 0, false
}

func alignUp(addr uintptr, align mem.Size) uintptr {
	a := uintptr(align)
	return (addr + a - 1) &^ (a - 1)
}
