package sync

import (
	"sync/atomic"

	"hadron/kernel/percpu"
)

// Compile-time capacity bounds for the lock dependency tracker. Exceeding
// any of these silently degrades to "no tracking" for the offending class or
// edge rather than crashing the debug infrastructure (spec.md §4.E).
const (
	maxClasses = 64
	maxHeld    = 16
	maxEdges   = 256
)

// LockKind records what flavor of lock a class represents, for diagnostic
// messages only.
type LockKind uint8

const (
	KindSpinLock LockKind = iota
	KindIRQSpinLock
)

func (k LockKind) String() string {
	switch k {
	case KindIRQSpinLock:
		return "IrqSpinLock"
	default:
		return "SpinLock"
	}
}

// Well-known nominal levels used throughout the kernel core (spec.md §5).
// Lower levels must be acquired before higher ones.
const (
	LevelPMM            = 3
	LevelVMM            = 4
	LevelHeap           = 5
	LevelLogger         = 6
	LevelDeviceRegistry = 7
	LevelVT             = 8
	LevelIRQTrampoline  = 8
	LevelExecutor       = 9
)

// classID identifies a registered lock class; classID(-1) means "unassigned".
type classID int16

const noClass classID = -1

type classEntry struct {
	addr  uintptr
	name  string
	level uint8
	kind  LockKind
	used  bool
}

// lockdep is the global, lock-free-except-for-graphLock dependency tracker.
// Its own bookkeeping never goes through a tracked SpinLock: tracking the
// tracker would recurse forever.
var lockdep struct {
	classes    [maxClasses]classEntry
	classCount int32

	// graph[a*maxClasses+b] is set when class a was held while class b
	// was acquired.
	graph [maxClasses * maxClasses]atomicBool

	edges      [maxEdges][2]classID
	edgeCount  int32

	// held is the per-CPU stack of currently-held classes.
	held [percpu.MaxCPUs][maxHeld]classID
	heldLen [percpu.MaxCPUs]int32

	rawSpin  atomicBool
	reporting atomicBool // reentrancy guard for cycle reports
}

type atomicBool struct{ v int32 }

func (b *atomicBool) CompareAndSwap(old, new bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if new {
		n = 1
	}
	return atomic.CompareAndSwapInt32(&b.v, o, n)
}
func (b *atomicBool) Load() bool  { return atomic.LoadInt32(&b.v) != 0 }
func (b *atomicBool) Store(v bool) {
	if v {
		atomic.StoreInt32(&b.v, 1)
	} else {
		atomic.StoreInt32(&b.v, 0)
	}
}

func graphLock() {
	for !lockdep.rawSpin.CompareAndSwap(false, true) {
		for lockdep.rawSpin.Load() {
		}
	}
}

func graphUnlock() {
	lockdep.rawSpin.Store(false)
}

// registerClass assigns (or returns the existing) classID for a lock at the
// given address, idempotent by address per spec.md §8 ("Registration is
// idempotent by lock address").
func registerClass(addr uintptr, name string, level uint8, kind LockKind) classID {
	graphLock()
	defer graphUnlock()

	for i := int32(0); i < lockdep.classCount; i++ {
		if lockdep.classes[i].used && lockdep.classes[i].addr == addr {
			return classID(i)
		}
	}

	if lockdep.classCount >= maxClasses {
		// Degrade to "no tracking" rather than crash the debug
		// infrastructure.
		return noClass
	}

	id := classID(lockdep.classCount)
	lockdep.classes[id] = classEntry{addr: addr, name: name, level: level, kind: kind, used: true}
	lockdep.classCount++
	return id
}

// DeadlockReport describes a detected (or potential) lock-ordering problem.
type DeadlockReport struct {
	// Cycle lists the class names forming the detected cycle, in
	// acquisition order.
	Cycle []string
}

// reportFn receives deadlock reports; tests substitute this to observe
// detections without panicking. The default panics, since a confirmed cycle
// means the kernel has a programming bug (spec.md §7: "lockdep cycle ...
// panic via the kernel panic path").
var reportFn = func(r DeadlockReport) {
	panic(r)
}

// onAcquire records that class `id` was just acquired on the current CPU,
// pushes it onto the per-CPU held stack, and adds an edge from every
// currently-held class to it. If the new edge closes a cycle, reportFn is
// invoked.
func onAcquire(id classID) {
	if id == noClass || !percpu.Ready() {
		return
	}
	cpu := percpu.CurrentID()
	if cpu >= percpu.MaxCPUs {
		return
	}

	graphLock()

	heldLen := lockdep.heldLen[cpu]
	for i := int32(0); i < heldLen; i++ {
		from := lockdep.held[cpu][i]
		if from == id {
			continue
		}
		addEdgeLocked(from, id)
	}

	if heldLen < maxHeld {
		lockdep.held[cpu][heldLen] = id
		lockdep.heldLen[cpu] = heldLen + 1
	}

	graphUnlock()
}

// onRelease pops class `id` from the current CPU's held stack. Locks are
// released in RAII/LIFO order in this codebase, but onRelease tolerates
// out-of-order release by scanning for the entry rather than assuming the
// top of the stack.
func onRelease(id classID) {
	if id == noClass || !percpu.Ready() {
		return
	}
	cpu := percpu.CurrentID()
	if cpu >= percpu.MaxCPUs {
		return
	}

	graphLock()
	defer graphUnlock()

	heldLen := lockdep.heldLen[cpu]
	for i := int32(0); i < heldLen; i++ {
		if lockdep.held[cpu][i] == id {
			copy(lockdep.held[cpu][i:heldLen-1], lockdep.held[cpu][i+1:heldLen])
			lockdep.heldLen[cpu] = heldLen - 1
			return
		}
	}
}

// addEdgeLocked records edge from->to and, if it is new, searches for a path
// back from `to` to `from`; such a path plus the new edge forms a cycle.
// Callers must hold graphLock.
func addEdgeLocked(from, to classID) {
	idx := int(from)*maxClasses + int(to)
	if lockdep.graph[idx].Load() {
		return // edge already known
	}

	if lockdep.edgeCount < maxEdges {
		lockdep.edges[lockdep.edgeCount] = [2]classID{from, to}
		lockdep.edgeCount++
	}
	lockdep.graph[idx].Store(true)

	if path := findPathLocked(to, from); path != nil {
		cycle := append([]classID{from}, path...)
		reportCycle(cycle)
	}
}

// findPathLocked runs DFS from `start` looking for `target`, returning the
// path (excluding start, including target) if found. Callers must hold
// graphLock.
func findPathLocked(start, target classID) []classID {
	var visited [maxClasses]bool
	var stack []classID
	var path []classID

	var dfs func(classID) []classID
	dfs = func(node classID) []classID {
		if visited[node] {
			return nil
		}
		visited[node] = true
		stack = append(stack, node)
		for next := classID(0); int(next) < int(lockdep.classCount); next++ {
			if !lockdep.graph[int(node)*maxClasses+int(next)].Load() {
				continue
			}
			if next == target {
				result := make([]classID, len(stack))
				copy(result, stack)
				return append(result, next)
			}
			if found := dfs(next); found != nil {
				return found
			}
		}
		stack = stack[:len(stack)-1]
		return nil
	}

	path = dfs(start)
	return path
}

// reportCycle guards against recursing into itself while formatting a
// report (spec.md §4.E: "a reentrancy guard to avoid infinite recursion when
// reporting").
func reportCycle(cycle []classID) {
	if !lockdep.reporting.CompareAndSwap(false, true) {
		return
	}
	defer lockdep.reporting.Store(false)

	names := make([]string, len(cycle))
	for i, c := range cycle {
		names[i] = lockdep.classes[c].name
	}
	reportFn(DeadlockReport{Cycle: names})
}

// resetForTest clears all lockdep global state. Exists only for tests.
func resetForTest() {
	graphLock()
	defer graphUnlock()
	lockdep.classCount = 0
	lockdep.edgeCount = 0
	for i := range lockdep.classes {
		lockdep.classes[i] = classEntry{}
	}
	for i := range lockdep.graph {
		lockdep.graph[i].Store(false)
	}
	for cpu := range lockdep.heldLen {
		lockdep.heldLen[cpu] = 0
	}
}
