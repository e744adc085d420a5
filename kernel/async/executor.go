package async

import (
	"unsafe"

	"hadron/kernel/cap"
	"hadron/kernel/sync"
)

const maxTasks = 256

type taskSlot struct {
	used     bool
	name     string
	future   Future
	waker    *Waker
	enqueued bool
}

// Executor is a single-threaded cooperative scheduler: a fixed-capacity task
// table plus a FIFO ready queue. Run pops a ready task, polls it, and drops
// it from the table if it completed.
type Executor struct {
	lock *sync.SpinLock

	tasks  [maxTasks]taskSlot
	ready  []TaskID
	nextID TaskID
}

// global is the kernel's single executor instance.
var global = newExecutor()

func newExecutor() *Executor {
	e := &Executor{}
	e.lock = sync.NewSpinLock(uintptr(unsafe.Pointer(e)), "async-executor", sync.LevelExecutor, sync.KindSpinLock)
	return e
}

// Init installs the global executor as the kernel's task spawn target, so
// cap.TaskSpawnerToken.Spawn reaches it.
func Init() {
	cap.RegisterSpawnFunc(func(name string, t cap.Task) {
		Spawn(name, pollOnlyFuture{t})
	})
}

// pollOnlyFuture adapts a cap.Task (a plain "is it done yet" poll with no
// waker) onto Future by busy-polling it every executor tick instead of
// waiting for a wake. Driver-submitted tasks that need real waking should
// build their Future directly against an IrqLine rather than going through
// cap.Task.
type pollOnlyFuture struct{ t cap.Task }

func (p pollOnlyFuture) Poll(w *Waker) PollResult {
	if p.t.Poll() {
		return Ready
	}
	w.Wake()
	return Pending
}

// Spawn submits f for execution under name on the global executor.
func Spawn(name string, f Future) (TaskID, bool) {
	return global.Spawn(name, f)
}

// Spawn is the method form of the package-level function.
func (e *Executor) Spawn(name string, f Future) (TaskID, bool) {
	e.lock.Acquire()
	defer e.lock.Release()

	for i := range e.tasks {
		if !e.tasks[i].used {
			id := e.nextID
			e.nextID++
			e.tasks[i] = taskSlot{
				used:   true,
				name:   name,
				future: f,
				waker:  &Waker{id: id, exe: e, refs: 1},
			}
			e.enqueueLocked(id)
			return id, true
		}
	}
	return 0, false
}

func (e *Executor) slotFor(id TaskID) *taskSlot {
	for i := range e.tasks {
		if e.tasks[i].used && e.tasks[i].waker.id == id {
			return &e.tasks[i]
		}
	}
	return nil
}

func (e *Executor) enqueue(id TaskID) {
	e.lock.Acquire()
	e.enqueueLocked(id)
	e.lock.Release()
}

func (e *Executor) enqueueLocked(id TaskID) {
	slot := e.slotFor(id)
	if slot == nil || slot.enqueued {
		return
	}
	slot.enqueued = true
	e.ready = append(e.ready, id)
}

// RunOnce polls the next ready task, if any, and reports whether it did. A
// task that returns Ready is dropped from the table; a task that returns
// Pending stays installed and will run again only once its waker fires.
func RunOnce() bool { return global.RunOnce() }

// RunOnce is the method form of the package-level function.
func (e *Executor) RunOnce() bool {
	e.lock.Acquire()
	if len(e.ready) == 0 {
		e.lock.Release()
		return false
	}
	id := e.ready[0]
	e.ready = e.ready[1:]

	slot := e.slotFor(id)
	if slot == nil {
		e.lock.Release()
		return true
	}
	slot.enqueued = false
	future, waker := slot.future, slot.waker
	e.lock.Release()

	if future.Poll(waker) == Ready {
		e.lock.Acquire()
		if s := e.slotFor(id); s != nil {
			*s = taskSlot{}
		}
		e.lock.Release()
	}
	return true
}

// Run polls ready tasks forever, halting the CPU between rounds when the
// ready queue drains — the idle loop a real scheduler hands control back to.
func Run(idle func()) {
	global.Run(idle)
}

// Run is the method form of the package-level function.
func (e *Executor) Run(idle func()) {
	for {
		if !e.RunOnce() && idle != nil {
			idle()
		}
	}
}
