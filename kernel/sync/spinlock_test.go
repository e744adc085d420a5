package sync

import (
	"sync"
	"testing"
	"time"
)

func TestSpinLock(t *testing.T) {
	var (
		sl         = NewSpinLock(0x1000, "test-lock", 10, KindSpinLock)
		wg         sync.WaitGroup
		numWorkers = 10
	)

	sl.Acquire()

	if sl.TryAcquire() != false {
		t.Error("expected TryAcquire to return false when lock is held")
	}

	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func(worker int) {
			sl.Acquire()
			sl.Release()
			wg.Done()
		}(i)
	}

	<-time.After(50 * time.Millisecond)
	sl.Release()
	wg.Wait()
}

func TestSpinLockAddressIsIdempotent(t *testing.T) {
	resetForTest()

	a := NewSpinLock(0x2000, "dup-lock", 1, KindSpinLock)
	b := NewSpinLock(0x2000, "dup-lock", 1, KindSpinLock)

	if a.class != b.class {
		t.Fatalf("expected registering the same lock address twice to return the same class, got %d and %d", a.class, b.class)
	}
}
