package slim

import (
	"testing"
	"time"
)

func queueLen(l *FairLock) int {
	l.lockQueue()
	defer l.unlockQueue()
	n := 0
	for w := l.head; w != nil; w = w.next {
		n++
	}
	return n
}

// waitQueueLen waits until l has exactly n queued waiters.
func waitQueueLen(t *testing.T, l *FairLock, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for queueLen(l) != n {
		if time.Now().After(deadline) {
			t.Fatalf("queue length = %d, want %d", queueLen(l), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNewOwner_Unique(t *testing.T) {
	seen := make(map[Owner]bool)
	for range 1000 {
		o := NewOwner()
		if o == 0 {
			t.Fatal("NewOwner returned zero")
		}
		if seen[o] {
			t.Fatalf("duplicate owner %d", o)
		}
		seen[o] = true
	}
}

func TestDefaultSpinCount(t *testing.T) {
	if ncpu == 1 && DefaultSpinCount != 0 {
		t.Errorf("DefaultSpinCount = %d on a uniprocessor", DefaultSpinCount)
	}
	if ncpu > 1 && DefaultSpinCount <= 0 {
		t.Errorf("DefaultSpinCount = %d on %d CPUs", DefaultSpinCount, ncpu)
	}
}
