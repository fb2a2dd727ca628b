package slim

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestReentrantLock_Recursion(t *testing.T) {
	l := NewReentrantLock(0)
	a := NewOwner()

	const depth = 50
	for i := range depth {
		if !l.TryEnter(a) {
			t.Fatalf("re-entry %d failed", i)
		}
	}
	if d := l.Depth(a); d != depth {
		t.Fatalf("Depth = %d, want %d", d, depth)
	}
	for i := range depth {
		if err := l.Exit(a); err != nil {
			t.Fatalf("exit %d: %v", i, err)
		}
	}
	if l.Owner() != 0 || l.lock.IsLocked() {
		t.Fatal("lock still held after matching exits")
	}
	if err := l.Exit(a); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("extra Exit = %v, want ErrInvalidLockOperation", err)
	}
}

func TestReentrantLock_ExitByNonOwner(t *testing.T) {
	l := NewReentrantLock(0)
	a, b := NewOwner(), NewOwner()
	l.Enter(a)
	if err := l.Exit(b); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("Exit by non-owner = %v, want ErrInvalidLockOperation", err)
	}
	if !l.IsOwned(a) {
		t.Fatal("failed Exit changed ownership")
	}
	if l.TryEnter(b) {
		t.Fatal("TryEnter by another owner succeeded")
	}
	if err := l.Exit(a); err != nil {
		t.Fatal(err)
	}
}

func TestReentrantLock_HandoffAfterOutermostExit(t *testing.T) {
	l := NewReentrantLock(DefaultSpinCount)
	a, b := NewOwner(), NewOwner()

	l.Enter(a)
	l.Enter(a)
	l.Enter(a)

	done := make(chan Outcome, 1)
	go func() {
		done <- l.WaitOne(b, Infinite)
	}()
	waitQueueLen(t, &l.lock, 1)

	for i := range 2 {
		if err := l.Exit(a); err != nil {
			t.Fatal(err)
		}
		if !l.IsOwned(a) {
			t.Fatalf("A lost the lock after exit %d", i+1)
		}
		select {
		case <-done:
			t.Fatalf("B acquired after exit %d", i+1)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := l.Exit(a); err != nil {
		t.Fatal(err)
	}
	select {
	case o := <-done:
		if o != Success {
			t.Fatalf("B's WaitOne = %v, want success", o)
		}
	case <-time.After(time.Second):
		t.Fatal("B was not handed the lock")
	}
	if !l.IsOwned(b) {
		t.Fatalf("owner = %d, want B (%d)", l.Owner(), b)
	}
	if err := l.Exit(a); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("fourth Exit by A = %v, want ErrInvalidLockOperation", err)
	}
	if err := l.Exit(b); err != nil {
		t.Fatal(err)
	}
}

func TestReentrantLock_Timeout(t *testing.T) {
	l := NewReentrantLock(0)
	a, b := NewOwner(), NewOwner()
	l.Enter(a)
	if o := l.WaitOne(b, WithTimeout(10*time.Millisecond)); o != Timeout {
		t.Fatalf("WaitOne = %v, want timeout", o)
	}
	if !l.IsOwned(a) {
		t.Fatal("timeout changed ownership")
	}
	if err := l.Exit(a); err != nil {
		t.Fatal(err)
	}
}

func TestReentrantLock_Concurrent(t *testing.T) {
	l := NewReentrantLock(DefaultSpinCount)
	const workers = 8
	const iters = 2000
	var counter int
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			o := NewOwner()
			for range iters {
				l.Enter(o)
				l.Enter(o)
				counter++
				if err := l.Exit(o); err != nil {
					t.Error(err)
				}
				if err := l.Exit(o); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	if counter != workers*iters {
		t.Fatalf("counter = %d, want %d", counter, workers*iters)
	}
}

func TestReentrantLock_ExitCompletelyReenter(t *testing.T) {
	l := NewReentrantLock(0)
	a, b := NewOwner(), NewOwner()
	l.Enter(a)
	l.Enter(a)
	l.Enter(a)

	depth, err := l.ExitCompletely(a)
	if err != nil {
		t.Fatal(err)
	}
	if depth != 2 {
		t.Fatalf("ExitCompletely = %d, want 2", depth)
	}
	if l.lock.IsLocked() {
		t.Fatal("inner lock held after ExitCompletely")
	}

	// A failed wait re-acquires the lock in full.
	if err := l.Reenter(a, Timeout, depth); err != nil {
		t.Fatal(err)
	}
	if d := l.Depth(a); d != 3 {
		t.Fatalf("Depth after Reenter = %d, want 3", d)
	}

	if _, err := l.ExitCompletely(b); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("ExitCompletely by non-owner = %v", err)
	}
	if err := l.EnqueueWaiter(b, NewWaitNode(&ParkToken{}, 0)); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("EnqueueWaiter by non-owner = %v", err)
	}
	if err := l.Reenter(b, Success, 0); !errors.Is(err, ErrInvalidLockOperation) {
		t.Fatalf("Reenter(success) while owned by another = %v", err)
	}
	for range 3 {
		if err := l.Exit(a); err != nil {
			t.Fatal(err)
		}
	}
}

func TestReentrantLock_EnqueueWaiter(t *testing.T) {
	l := NewReentrantLock(0)
	a, b := NewOwner(), NewOwner()
	l.Enter(a)

	tok := &ParkToken{}
	if err := l.EnqueueWaiter(a, NewWaitNode(tok, 0)); err != nil {
		t.Fatal(err)
	}
	done := make(chan error)
	go func() {
		o := tok.Park(Infinite)
		done <- l.Reenter(b, o, 0)
	}()

	if err := l.Exit(a); err != nil {
		t.Fatal(err)
	}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if !l.IsOwned(b) {
		t.Fatal("enqueued waiter did not receive the lock")
	}
	if err := l.Exit(b); err != nil {
		t.Fatal(err)
	}
}

func TestReentrantLock_ZeroOwnerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("TryEnter(0) did not panic")
		}
	}()
	NewReentrantLock(0).TryEnter(0)
}
