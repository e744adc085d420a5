package sync

import (
	"strings"
	"testing"

	"hadron/kernel/percpu"
)

func captureReports() (reports *[]DeadlockReport, restore func()) {
	origReportFn := reportFn
	var got []DeadlockReport
	reportFn = func(r DeadlockReport) {
		got = append(got, r)
	}
	return &got, func() { reportFn = origReportFn }
}

func TestLockdepTwoNodeOrderingViolation(t *testing.T) {
	resetForTest()
	percpu.MarkReady()
	reports, restore := captureReports()
	defer restore()

	a := NewSpinLock(0x10, "A", 1, KindSpinLock)
	b := NewSpinLock(0x11, "B", 2, KindSpinLock)

	// Path 1: A then B.
	a.Acquire()
	b.Acquire()
	b.Release()
	a.Release()

	if len(*reports) != 0 {
		t.Fatalf("expected no report after the first A->B ordering, got %+v", *reports)
	}

	// Path 2: B then A — closes the cycle A->B->A.
	b.Acquire()
	a.Acquire()
	a.Release()
	b.Release()

	if len(*reports) != 1 {
		t.Fatalf("expected exactly one deadlock report, got %d: %+v", len(*reports), *reports)
	}

	joined := strings.Join((*reports)[0].Cycle, ",")
	if !strings.Contains(joined, "A") || !strings.Contains(joined, "B") {
		t.Fatalf("expected report to mention both A and B, got %q", joined)
	}
}

func TestLockdepThreeNodeCycle(t *testing.T) {
	resetForTest()
	percpu.MarkReady()
	reports, restore := captureReports()
	defer restore()

	a := NewSpinLock(0x20, "A", 1, KindSpinLock)
	b := NewSpinLock(0x21, "B", 2, KindSpinLock)
	c := NewSpinLock(0x22, "C", 3, KindSpinLock)

	a.Acquire()
	b.Acquire()
	b.Release()
	a.Release()

	b.Acquire()
	c.Acquire()
	c.Release()
	b.Release()

	if len(*reports) != 0 {
		t.Fatalf("expected no report yet, got %+v", *reports)
	}

	// Closing edge: C then A completes the cycle A->B->C->A.
	c.Acquire()
	a.Acquire()
	a.Release()
	c.Release()

	if len(*reports) != 1 {
		t.Fatalf("expected exactly one deadlock report for the 3-cycle, got %d: %+v", len(*reports), *reports)
	}
}

func TestLockdepRegistrationIdempotentByAddress(t *testing.T) {
	resetForTest()

	id1 := registerClass(0x99, "dup", 1, KindSpinLock)
	id2 := registerClass(0x99, "dup", 1, KindSpinLock)
	id3 := registerClass(0x98, "other", 1, KindSpinLock)

	if id1 != id2 {
		t.Fatalf("expected repeated registration of the same address to reuse the class, got %d and %d", id1, id2)
	}
	if id3 == id1 {
		t.Fatalf("expected a distinct address to get a distinct class")
	}
}

func TestLockdepDegradesPastCapacity(t *testing.T) {
	resetForTest()

	for i := 0; i < maxClasses; i++ {
		if id := registerClass(uintptr(0x1000+i), "c", 1, KindSpinLock); id == noClass {
			t.Fatalf("expected class %d to register within capacity", i)
		}
	}

	if id := registerClass(0xdead, "overflow", 1, KindSpinLock); id != noClass {
		t.Fatalf("expected registration past capacity to degrade to noClass, got %d", id)
	}
}
