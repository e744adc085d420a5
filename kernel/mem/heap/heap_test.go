package heap

import (
	"testing"
	"unsafe"

	"hadron/kernel"
	"hadron/kernel/mem"
	"hadron/kernel/sync"
)

// newTestAllocator builds an Allocator backed by an ordinary Go byte slice
// standing in for mapped heap memory, exactly as pmm's bitmap tests stand in
// for physical memory.
func newTestAllocator(t *testing.T, size mem.Size) (*Allocator, []byte) {
	t.Helper()

	backing := make([]byte, int(size)+int(BlockAlign))
	start := uintptr(mem.Size(uintptr(unsafe.Pointer(&backing[0]))).AlignUp(BlockAlign))

	a := &Allocator{}
	a.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(a)), "heap-test", sync.LevelHeap, sync.KindSpinLock)
	a.Init(start, size)
	return a, backing
}

func TestAllocAndDeallocSingle(t *testing.T) {
	a, _ := newTestAllocator(t, 4*mem.Kb)

	addr, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr == 0 {
		t.Fatalf("expected non-zero address")
	}

	a.Deallocate(addr, 64)
	if a.AllocatedBytes() != 0 {
		t.Fatalf("expected 0 allocated bytes after dealloc, got %d", a.AllocatedBytes())
	}
}

func TestAllocRespectsAlignment(t *testing.T) {
	a, _ := newTestAllocator(t, 4*mem.Kb)

	for _, align := range []mem.Size{16, 32, 64, 128} {
		addr, err := a.Allocate(32, align)
		if err != nil {
			t.Fatalf("Allocate align=%d: %v", align, err)
		}
		if addr%uintptr(align) != 0 {
			t.Fatalf("address %x not aligned to %d", addr, align)
		}
		a.Deallocate(addr, 32)
	}
}

func TestAllocReturnsErrorWhenExhausted(t *testing.T) {
	a, _ := newTestAllocator(t, 128)

	if _, err := a.Allocate(128, BlockAlign); err != nil {
		t.Fatalf("first allocation should fit exactly: %v", err)
	}

	if _, err := a.Allocate(MinBlock, BlockAlign); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
}

func TestDeallocCoalescesWithPredecessor(t *testing.T) {
	a, _ := newTestAllocator(t, 256)

	first, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate first: %v", err)
	}
	second, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate second: %v", err)
	}

	a.Deallocate(first, 64)
	a.Deallocate(second, 64)

	// A single allocation spanning both original blocks should now
	// succeed, proving the free list coalesced them into one run.
	addr, err := a.Allocate(128, BlockAlign)
	if err != nil {
		t.Fatalf("expected coalesced block to satisfy a 128-byte request: %v", err)
	}
	if addr != first {
		t.Fatalf("expected merged block to start at %x, got %x", first, addr)
	}
}

func TestDeallocCoalescesWithSuccessor(t *testing.T) {
	a, _ := newTestAllocator(t, 256)

	first, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate first: %v", err)
	}
	second, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate second: %v", err)
	}

	// Free the second block first, then the first; insertAndCoalesce
	// must still merge them regardless of free order.
	a.Deallocate(second, 64)
	a.Deallocate(first, 64)

	addr, err := a.Allocate(128, BlockAlign)
	if err != nil {
		t.Fatalf("expected coalesced block to satisfy a 128-byte request: %v", err)
	}
	if addr != first {
		t.Fatalf("expected merged block to start at %x, got %x", first, addr)
	}
}

func TestAllocSplitsLargeBlock(t *testing.T) {
	a, _ := newTestAllocator(t, 4*mem.Kb)

	before := a.head
	hdr := headerAt(before)
	wholeSize := hdr.size

	addr, err := a.Allocate(64, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if addr != before {
		t.Fatalf("expected allocation to come from the start of the only free block")
	}

	remainderHdr := headerAt(a.head)
	if remainderHdr.size >= wholeSize {
		t.Fatalf("expected remainder to shrink after split, got %d (was %d)", remainderHdr.size, wholeSize)
	}
}

func TestMinBlockSizeEnforced(t *testing.T) {
	a, _ := newTestAllocator(t, 4*mem.Kb)

	addr, err := a.Allocate(1, BlockAlign)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	a.Deallocate(addr, 1)
	if got := headerAt(a.head); got.size < MinBlock {
		t.Fatalf("free block shrunk below MinBlock: %d", got.size)
	}
}

func TestGrowCallbackInvoked(t *testing.T) {
	a, backing := newTestAllocator(t, 64)

	extra := make([]byte, int(minGrow)+int(BlockAlign))
	extraStart := uintptr(mem.Size(uintptr(unsafe.Pointer(&extra[0]))).AlignUp(BlockAlign))

	called := false
	a.RegisterGrowFunc(func(minSize mem.Size) (uintptr, mem.Size, *kernel.Error) {
		called = true
		if minSize < minGrow {
			t.Fatalf("expected grow request to be clamped to minGrow, got %d", minSize)
		}
		return extraStart, minGrow, nil
	})

	// The initial 64-byte region can't satisfy this request alone.
	if _, err := a.Allocate(200, BlockAlign); err != nil {
		t.Fatalf("Allocate after grow: %v", err)
	}
	if !called {
		t.Fatalf("expected grow callback to run once the free list was exhausted")
	}
	_ = backing
}

func TestMultipleAllocDeallocCycles(t *testing.T) {
	a, _ := newTestAllocator(t, 16*mem.Kb)

	var live []uintptr
	var sizes []mem.Size
	for i := 0; i < 200; i++ {
		size := mem.Size(32 + (i%5)*16)
		addr, err := a.Allocate(size, BlockAlign)
		if err != nil {
			t.Fatalf("iteration %d: Allocate: %v", i, err)
		}
		live = append(live, addr)
		sizes = append(sizes, size)

		if i%3 == 0 && len(live) > 0 {
			a.Deallocate(live[0], sizes[0])
			live, sizes = live[1:], sizes[1:]
		}
	}

	for j, addr := range live {
		a.Deallocate(addr, sizes[j])
	}

	if a.AllocatedBytes() != 0 {
		t.Fatalf("expected all bytes freed, got %d allocated", a.AllocatedBytes())
	}
}
