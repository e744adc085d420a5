package pmm

import (
	"unsafe"

	"hadron/kernel/mem"
	"hadron/kernel/mem/hhdm"
)

// poisonPattern is written across a frame's contents when it is freed, so
// that a later read of still-poisoned memory signals a use-after-free
// instead of silently returning stale data.
const poisonPattern uint32 = 0xdeaddead

func poisonFrame(f Frame) {
	if !DebugChecks {
		return
	}
	base := hhdm.ToVirtual(f.Address())
	words := uintptr(mem.PageSize) / 4
	for i := uintptr(0); i < words; i++ {
		*(*uint32)(unsafe.Pointer(base + i*4)) = poisonPattern
	}
}

// isPoisoned reports whether a frame's contents still match the pattern
// written by poisonFrame, i.e. nothing has written to it since it was freed.
func isPoisoned(f Frame) bool {
	base := hhdm.ToVirtual(f.Address())
	words := uintptr(mem.PageSize) / 4
	for i := uintptr(0); i < words; i++ {
		if *(*uint32)(unsafe.Pointer(base + i*4)) != poisonPattern {
			return false
		}
	}
	return true
}
