// Package async implements the kernel's single-threaded cooperative task
// executor and the IRQ-to-future bridge drivers use to wait on interrupts.
// See spec.md §4.G.
package async

import "sync/atomic"

// PollResult is what a Future's Poll call reports: whether it produced a
// value (Ready) or needs to be woken again later (Pending).
type PollResult uint8

const (
	Pending PollResult = iota
	Ready
)

// Future is a unit of work that makes progress one Poll call at a time.
// Poll must install w as the future's waker before returning Pending, so a
// later event can re-enqueue the owning task; it must not retain w past
// returning Ready.
type Future interface {
	Poll(w *Waker) PollResult
}

// Canceler is implemented by futures that hold a registration (an IrqLine
// waker slot, a timer entry) that must be torn down if the owning task is
// dropped before the future completes. Not every Future needs it, so it is
// checked with a type assertion rather than folded into Future itself.
type Canceler interface {
	Cancel()
}

// TaskID identifies a task known to an Executor.
type TaskID uint32

// Waker is a reference-counted handle back to one task. Waking a task pushes
// it onto its executor's ready queue at most once, even if Wake is called
// multiple times before the task is next polled.
type Waker struct {
	id  TaskID
	exe *Executor
	refs int32
}

// Wake enqueues the task this waker belongs to, if it isn't already
// enqueued.
func (w *Waker) Wake() {
	if w == nil || w.exe == nil {
		return
	}
	w.exe.enqueue(w.id)
}

// Clone increments the waker's reference count and returns it. Interrupt
// trampolines and timer callbacks that may outlive a single poll hold their
// own clone so the waker is not torn down while still reachable from
// elsewhere.
func (w *Waker) Clone() *Waker {
	atomic.AddInt32(&w.refs, 1)
	return w
}

// Drop decrements the waker's reference count. It does not free anything —
// the kernel has no generational GC concept for these — it exists so
// Canceler implementations can tell whether any holder still might call
// Wake.
func (w *Waker) Drop() {
	atomic.AddInt32(&w.refs, -1)
}

// Live reports whether any clone of this waker is still outstanding.
func (w *Waker) Live() bool {
	return atomic.LoadInt32(&w.refs) > 0
}
