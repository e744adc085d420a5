package async

import (
	"testing"
	"unsafe"

	"hadron/kernel/sync"
)

func newTestIrqLine() *IrqLine {
	l := &IrqLine{}
	l.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(l)), "irq-line-test", sync.LevelIRQTrampoline, sync.KindSpinLock)
	return l
}

type countingFuture struct {
	readyAfter int
	polls      int
}

func (f *countingFuture) Poll(w *Waker) PollResult {
	f.polls++
	if f.polls >= f.readyAfter {
		return Ready
	}
	w.Wake()
	return Pending
}

func TestSpawnAndRunOnceDropsCompletedTask(t *testing.T) {
	e := newExecutor()

	f := &countingFuture{readyAfter: 1}
	id, ok := e.Spawn("test", f)
	if !ok {
		t.Fatalf("expected Spawn to succeed")
	}

	if !e.RunOnce() {
		t.Fatalf("expected a ready task to run")
	}
	if f.polls != 1 {
		t.Fatalf("expected exactly one poll, got %d", f.polls)
	}
	if e.slotFor(id) != nil {
		t.Fatalf("expected completed task to be dropped from the table")
	}
	if e.RunOnce() {
		t.Fatalf("expected no more ready tasks")
	}
}

func TestPendingTaskReenqueuesItself(t *testing.T) {
	e := newExecutor()

	f := &countingFuture{readyAfter: 3}
	e.Spawn("test", f)

	for i := 0; i < 3; i++ {
		if !e.RunOnce() {
			t.Fatalf("expected round %d to find a ready task", i)
		}
	}
	if f.polls != 3 {
		t.Fatalf("expected 3 polls, got %d", f.polls)
	}
	if e.RunOnce() {
		t.Fatalf("expected the task to be gone after completing")
	}
}

func TestWakeIsIdempotentWhileAlreadyEnqueued(t *testing.T) {
	e := newExecutor()

	f := &countingFuture{readyAfter: 5}
	e.Spawn("test", f)

	slot := e.slotFor(0)
	if slot == nil {
		t.Fatalf("expected task 0 to exist")
	}
	w := slot.waker

	// Waking several times before the task is polled must not grow the
	// ready queue past one entry for this task.
	w.Wake()
	w.Wake()
	w.Wake()

	if n := len(e.ready); n != 1 {
		t.Fatalf("expected exactly one ready-queue entry, got %d", n)
	}
}

func TestIrqLineWaitConsumesOnePendingPerReady(t *testing.T) {
	line := newTestIrqLine()

	line.trampoline()
	line.trampoline()

	fut := line.Wait()
	e := newExecutor()
	e.Spawn("irq-waiter", fut)

	if !e.RunOnce() {
		t.Fatalf("expected the waiter to be ready immediately")
	}
	// Two trampoline fires → two Ready resolutions available. The first
	// Wait() above consumed one; a second Wait() should see the other.
	fut2 := line.Wait()
	id2, _ := e.Spawn("irq-waiter-2", fut2)
	if !e.RunOnce() {
		t.Fatalf("expected the second waiter to be ready too")
	}
	_ = id2
}

func TestIrqLineWaitPendingUntilTrampolineFires(t *testing.T) {
	line := newTestIrqLine()
	e := newExecutor()
	e.Spawn("waiter", line.Wait())

	if !e.RunOnce() {
		t.Fatalf("expected the initial poll to run")
	}
	if e.RunOnce() {
		t.Fatalf("expected no fire yet, task should stay pending and not re-enqueue itself")
	}

	line.trampoline()
	if !e.RunOnce() {
		t.Fatalf("expected the waiter to become ready once the trampoline fired")
	}
}

func TestSelectResolvesOnFirstReadyAndCancelsRest(t *testing.T) {
	winner := &countingFuture{readyAfter: 1}
	loser := &cancelTrackingFuture{}

	sel := NewSelect(winner, loser)
	w := &Waker{id: 0, exe: newExecutor(), refs: 1}

	if sel.Poll(w) != Ready {
		t.Fatalf("expected Select to resolve once any future is ready")
	}
	if sel.Winner() != 0 {
		t.Fatalf("expected index 0 to win, got %d", sel.Winner())
	}
	if !loser.canceled {
		t.Fatalf("expected the losing future to be canceled")
	}
}

type cancelTrackingFuture struct{ canceled bool }

func (f *cancelTrackingFuture) Poll(w *Waker) PollResult { return Pending }
func (f *cancelTrackingFuture) Cancel()                  { f.canceled = true }
