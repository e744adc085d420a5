// Package percpu tracks the small amount of per-CPU state the kernel needs
// before a full SMP scheduler exists (spec.md explicitly excludes SMP at the
// scheduler level from this core; per-CPU data is still required by the
// lockdep tracker's held-lock stacks, see spec.md §4.E).
package percpu

import "sync/atomic"

// MaxCPUs bounds the number of CPUs this kernel image can track per-CPU
// state for. It is a compile-time constant, matching the lockdep tracker's
// other fixed-capacity bounds (spec.md §4.E).
const MaxCPUs = 8

// ready is flipped to true once the bootstrap CPU has finished setting up
// per-CPU state. Code that runs earlier (early boot) must not index into
// per-CPU arrays.
var ready atomic.Bool

// MarkReady records that per-CPU state is safe to use.
func MarkReady() { ready.Store(true) }

// Ready reports whether per-CPU state has been initialized.
func Ready() bool { return ready.Load() }

// CurrentID returns the ID of the CPU executing the calling goroutine.
//
// This kernel's scheduler is single-threaded-cooperative per spec.md §4.G
// and §5 ("Non-goals: SMP at the scheduler level"); secondary CPU bring-up
// would assign each application processor a fixed ID during its bootstrap
// trampoline and store it in a CPU-local variable (e.g. via %gs). Until that
// bring-up path exists, every caller runs on the bootstrap CPU.
func CurrentID() int {
	return 0
}
