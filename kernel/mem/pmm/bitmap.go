// Package pmm implements the kernel's physical memory manager: a
// bitmap-backed frame allocator sized to the highest usable physical address
// the bootloader reports. See spec.md §4.B.
package pmm

import (
	"math/bits"
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/bootinfo"
	"hadron/kernel/mem"
	"hadron/kernel/mem/hhdm"
	"hadron/kernel/sync"
)

// PhysicalMemoryBitmap tracks, one bit per frame, whether a physical page
// frame is allocated (1) or free (0). The bitmap's own backing store lives
// in ordinary physical memory, addressed through the direct map, so no
// dynamic allocator is required to bring it up.
type PhysicalMemoryBitmap struct {
	bits []uint64

	totalFrames uint64
	freeFrames  uint64

	// searchHint is the word index the next AllocateFrame scan starts
	// from, so repeated allocations don't re-scan already-full words.
	searchHint uint64

	lock *sync.SpinLock
}

// global is the kernel's single PMM instance, installed by Init.
var global *PhysicalMemoryBitmap

// panicFn aborts the kernel on an unrecoverable PMM error (double-free,
// corruption). Tests substitute it to observe the failure without actually
// halting.
var panicFn = func(err *kernel.Error) {
	panic(err)
}

// Init places the frame bitmap in the first usable region reported by info
// that is large enough to hold it, zeroes it (every tracked frame starts
// free), then reserves every frame occupied by a non-usable region, by the
// kernel image [kernelStart, kernelEnd), and by the bitmap's own backing
// store.
func Init(info *bootinfo.Info, kernelStart, kernelEnd uintptr) *kernel.Error {
	highest := info.HighestUsableAddress()
	total := highest >> mem.PageShift
	if total == 0 {
		return ErrNoBitmapRegion
	}

	words := (total + 63) / 64
	bitmapBytes := mem.Size(words * 8).AlignUp(mem.PageSize)

	bitmapPhys, ok := findBitmapRegion(info, bitmapBytes)
	if !ok {
		return ErrNoBitmapRegion
	}

	virt := hhdm.ToVirtual(bitmapPhys)
	mem.Memset(virt, 0, bitmapBytes)
	bitSlice := unsafeUint64Slice(virt, int(words))

	pmm := &PhysicalMemoryBitmap{
		bits:        bitSlice,
		totalFrames: total,
		freeFrames:  total,
		lock:        sync.NewSpinLock(uintptr(unsafe.Pointer(&global)), "PMM", sync.LevelPMM, sync.KindSpinLock),
	}

	// (i) bits above totalFrames (the padding up to a word boundary) are
	// inaccessible and permanently reserved so the scanners never hand
	// them out.
	for f := total; f < words*64; f++ {
		pmm.setBit(f)
	}

	info.VisitMemoryMap(func(e *bootinfo.MemoryMapEntry) bool {
		if e.Type == bootinfo.MemUsable {
			return true
		}
		pmm.reserveRange(e.PhysAddress, e.PhysAddress+e.Length)
		return true
	})

	pmm.reserveRange(uint64(kernelStart), uint64(kernelEnd))
	pmm.reserveRange(uint64(bitmapPhys), uint64(bitmapPhys)+uint64(bitmapBytes))

	global = pmm
	return nil
}

// findBitmapRegion returns the physical base of the first MemUsable region
// whose page-aligned remainder can hold need bytes.
func findBitmapRegion(info *bootinfo.Info, need mem.Size) (uintptr, bool) {
	var base uintptr
	found := false
	info.VisitMemoryMap(func(e *bootinfo.MemoryMapEntry) bool {
		if e.Type != bootinfo.MemUsable {
			return true
		}
		start := uint64(mem.Size(e.PhysAddress).AlignUp(mem.PageSize))
		if start+uint64(need) <= e.PhysAddress+e.Length {
			base = uintptr(start)
			found = true
			return false
		}
		return true
	})
	return base, found
}

func unsafeUint64Slice(addr uintptr, words int) []uint64 {
	type sliceHeader struct {
		data uintptr
		len  int
		cap  int
	}
	hdr := sliceHeader{data: addr, len: words, cap: words}
	return *(*[]uint64)(unsafe.Pointer(&hdr))
}

// reserveRange marks every frame overlapping [start, end) reserved, without
// double-counting frames that are already reserved (region reservations
// during Init can overlap, e.g. the bitmap sitting inside a usable region
// already shrunk by the kernel image reservation).
func (p *PhysicalMemoryBitmap) reserveRange(start, end uint64) {
	first := start >> mem.PageShift
	last := (end + uint64(mem.PageSize) - 1) >> mem.PageShift
	for f := first; f < last && f < p.totalFrames; f++ {
		if !p.testBit(f) {
			p.setBit(f)
			p.freeFrames--
		}
	}
}

func (p *PhysicalMemoryBitmap) testBit(frame uint64) bool {
	return p.bits[frame/64]&(1<<(frame%64)) != 0
}

func (p *PhysicalMemoryBitmap) setBit(frame uint64) {
	p.bits[frame/64] |= 1 << (frame % 64)
}

func (p *PhysicalMemoryBitmap) clearBit(frame uint64) {
	p.bits[frame/64] &^= 1 << (frame % 64)
}

// TotalFrames returns the number of frames the bitmap tracks.
func TotalFrames() uint64 {
	if global == nil {
		return 0
	}
	return global.totalFrames
}

// FreeFrames returns the number of currently unallocated frames.
func FreeFrames() uint64 {
	if global == nil {
		return 0
	}
	global.lock.Acquire()
	defer global.lock.Release()
	return global.freeFrames
}

// AllocateFrame returns the lowest-indexed free frame, starting the scan
// from searchHint so repeated calls don't re-walk already-exhausted words.
func AllocateFrame() (Frame, *kernel.Error) {
	if global == nil {
		return InvalidFrame, ErrOutOfMemory
	}
	return global.allocateFrame()
}

func (p *PhysicalMemoryBitmap) allocateFrame() (Frame, *kernel.Error) {
	p.lock.Acquire()
	defer p.lock.Release()

	if p.freeFrames == 0 {
		return InvalidFrame, ErrOutOfMemory
	}

	nWords := uint64(len(p.bits))
	for i := uint64(0); i < nWords; i++ {
		idx := (p.searchHint + i) % nWords
		word := p.bits[idx]
		if word == ^uint64(0) {
			continue
		}
		bitPos := uint64(bits.TrailingZeros64(^word))
		frame := idx*64 + bitPos
		if frame >= p.totalFrames {
			continue
		}
		p.bits[idx] = word | (1 << bitPos)
		p.freeFrames--
		p.searchHint = idx
		return Frame(frame), nil
	}
	return InvalidFrame, ErrOutOfMemory
}

// AllocateFrames returns the base of the first run of n contiguous free
// frames. There is no fit policy beyond first-fit.
func AllocateFrames(n uint64) (Frame, *kernel.Error) {
	if global == nil {
		return InvalidFrame, ErrOutOfMemory
	}
	return global.allocateFrames(n)
}

func (p *PhysicalMemoryBitmap) allocateFrames(n uint64) (Frame, *kernel.Error) {
	if n == 0 {
		return InvalidFrame, ErrInvalidFrame
	}

	p.lock.Acquire()
	defer p.lock.Release()

	if p.freeFrames < n {
		return InvalidFrame, ErrOutOfMemory
	}

	var runStart, runLen uint64
	haveRun := false

	for frame := uint64(0); frame < p.totalFrames; {
		if frame%64 == 0 && frame+64 <= p.totalFrames && p.bits[frame/64] == 0 {
			if !haveRun {
				runStart, haveRun = frame, true
			}
			runLen += 64
			if runLen >= n {
				break
			}
			frame += 64
			continue
		}
		if p.testBit(frame) {
			runLen, haveRun = 0, false
		} else {
			if !haveRun {
				runStart, haveRun = frame, true
			}
			runLen++
			if runLen >= n {
				break
			}
		}
		frame++
	}

	if !haveRun || runLen < n {
		return InvalidFrame, ErrOutOfMemory
	}

	for f := runStart; f < runStart+n; f++ {
		p.setBit(f)
	}
	p.freeFrames -= n
	if runStart/64 < p.searchHint {
		p.searchHint = runStart / 64
	}
	return Frame(runStart), nil
}

// DeallocateFrame returns f to the free pool, poisoning its contents in
// debug builds. Freeing a frame that is already free is a double-free and
// panics via panicFn.
func DeallocateFrame(f Frame) *kernel.Error {
	if global == nil {
		return ErrInvalidFrame
	}
	return global.deallocateFrame(f)
}

func (p *PhysicalMemoryBitmap) deallocateFrame(f Frame) *kernel.Error {
	frame := uint64(f)

	p.lock.Acquire()
	if frame >= p.totalFrames {
		p.lock.Release()
		return ErrInvalidFrame
	}
	if DebugChecks && !p.testBit(frame) {
		p.lock.Release()
		panicFn(&kernel.Error{Module: "pmm", Message: "double free"})
		return nil
	}
	p.clearBit(frame)
	p.freeFrames++
	if frame/64 < p.searchHint {
		p.searchHint = frame / 64
	}
	p.lock.Release()

	poisonFrame(f)
	return nil
}

// DeallocateFrames frees a run of n frames starting at base.
func DeallocateFrames(base Frame, n uint64) *kernel.Error {
	for f := uint64(base); f < uint64(base)+n; f++ {
		if err := DeallocateFrame(Frame(f)); err != nil {
			return err
		}
	}
	return nil
}
