// Package sync provides the kernel's leveled spin lock, the one mutual
// exclusion primitive available before the scheduler and heap exist, plus a
// runtime lock-dependency tracker (lockdep) layered on top of it. See
// spec.md §4.E.
package sync

import "sync/atomic"

// SpinLock is a lock where each task trying to acquire it busy-waits until
// the lock becomes available. Every SpinLock belongs to a named class with a
// nominal level. The lockdep tracker records which classes are held when
// another class is acquired and reports ordering cycles; it does not compare
// the levels of the classes involved.
//
// Re-acquiring a lock already held by the caller deadlocks, same as the
// teacher's Spinlock — there is no recursive variant.
type SpinLock struct {
	state uint32
	class classID
}

// NewSpinLock registers a new lock class and returns a ready-to-use,
// unlocked SpinLock. name and level should be the same for every instance of
// a logical lock (e.g. every per-pool PMM lock uses name "PMM", level
// LevelPMM) so that lockdep can recognize repeated acquisitions of "the same
// kind of lock" as distinct from a true ordering violation. Pass the lock's
// own address as addr so repeated registration (e.g. package init order) is
// idempotent.
func NewSpinLock(addr uintptr, name string, level uint8, kind LockKind) *SpinLock {
	return &SpinLock{class: registerClass(addr, name, level, kind)}
}

// Acquire blocks until the lock can be acquired by the currently active
// task.
func (l *SpinLock) Acquire() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		for atomic.LoadUint32(&l.state) != 0 {
			// busy-wait; real hardware would issue a PAUSE here.
		}
	}
	onAcquire(l.class)
}

// TryAcquire attempts to acquire the lock without blocking, returning true
// on success.
func (l *SpinLock) TryAcquire() bool {
	if atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		onAcquire(l.class)
		return true
	}
	return false
}

// Release relinquishes a held lock. Calling Release on an unheld lock has no
// effect beyond clearing the bit it would already hold.
func (l *SpinLock) Release() {
	onRelease(l.class)
	atomic.StoreUint32(&l.state, 0)
}
