package backtrace

import (
	"unsafe"

	"hadron/kernel/cpu"
)

// frameLimit bounds how many frames Walk follows, guarding against a
// corrupt or cyclic RBP chain while panicking.
const frameLimit = 64

// readBasePointerFn is mocked by tests so Walk's traversal logic can be
// exercised against a fake, entirely Go-side frame chain.
var readBasePointerFn = cpu.ReadBasePointer

// Walk follows the saved-RBP frame-pointer chain rooted at its caller,
// invoking visit with each return address it finds (the standard x86-64
// layout the Go amd64 compiler maintains by default: [rbp] holds the
// caller's saved rbp, [rbp+8] holds the return address). It stops once
// visit returns false, the chain reaches a zero or misaligned frame
// pointer, or frameLimit frames have been walked.
func Walk(visit func(pc uintptr) bool) {
	bp := readBasePointerFn()
	for i := 0; i < frameLimit && bp != 0; i++ {
		if bp&7 != 0 {
			return
		}
		retAddr := *(*uintptr)(unsafe.Pointer(bp + 8))
		if retAddr == 0 {
			return
		}
		if !visit(retAddr) {
			return
		}
		bp = *(*uintptr)(unsafe.Pointer(bp))
	}
}
