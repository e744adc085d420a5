package async

import (
	"sync/atomic"
	"unsafe"

	"hadron/kernel/irq"
	"hadron/kernel/sync"
)

// IrqLine bridges a hardware interrupt vector to the async world. It holds
// at most one active waker; Wait returns a Future that installs the calling
// task's waker and resolves once the trampoline has fired at least once
// since the last successful wait.
type IrqLine struct {
	lock    *sync.SpinLock
	pending int32
	waker   *Waker
}

// NewIrqLine registers a trampoline for vector and returns the line that
// observes it. The trampoline itself must stay allocation-free and must
// never log or take a lock at or above the IRQ trampoline's level
// (spec.md §4.G) — it only bumps an atomic counter and signals a waker.
func NewIrqLine(vector irq.Vector) *IrqLine {
	l := &IrqLine{}
	l.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(l)), "irq-line", sync.LevelIRQTrampoline, sync.KindSpinLock)
	irq.HandleIRQ(vector, l.trampoline)
	return l
}

func (l *IrqLine) trampoline() {
	atomic.AddInt32(&l.pending, 1)
	l.lock.Acquire()
	w := l.waker
	l.lock.Release()
	if w != nil {
		w.Wake()
	}
}

// Wait returns a Future that resolves once the line has fired at least once
// since the previous successful wait.
func (l *IrqLine) Wait() Future {
	return &irqWaitFuture{line: l}
}

type irqWaitFuture struct {
	line      *IrqLine
	installed *Waker
}

func (f *irqWaitFuture) Poll(w *Waker) PollResult {
	f.line.lock.Acquire()
	f.line.waker = w
	f.line.lock.Release()
	f.installed = w

	// Re-check after installing the waker so an IRQ that fired between
	// the previous poll and this one is not lost to a race.
	for {
		n := atomic.LoadInt32(&f.line.pending)
		if n == 0 {
			return Pending
		}
		if atomic.CompareAndSwapInt32(&f.line.pending, n, n-1) {
			return Ready
		}
	}
}

// Cancel uninstalls this future's waker from the line, so a later IRQ does
// not wake a task that has already been dropped.
func (f *irqWaitFuture) Cancel() {
	if f.installed == nil {
		return
	}
	f.line.lock.Acquire()
	if f.line.waker == f.installed {
		f.line.waker = nil
	}
	f.line.lock.Release()
}
