package slim

import (
	"fmt"
	"sync/atomic"
)

// MonitorLock is the surface a condition variable needs from its lock.
//
//   - IsOwned: whether o holds the lock.
//   - ExitCompletely: fully releases the lock whatever its recursion depth
//     and returns the depth snapshot needed to restore it.
//   - Reenter: re-establishes ownership after a condition wait. If the wait
//     succeeded, the waking party already handed the lock over and only
//     the bookkeeping is restored; otherwise the lock is fully re-acquired
//     first.
//   - EnqueueWaiter: appends a prepared node straight into the lock queue
//     as an already-authorized waiter. The caller must hold the lock.
type MonitorLock interface {
	IsOwned(o Owner) bool
	ExitCompletely(o Owner) (int, error)
	Reenter(o Owner, waitOutcome Outcome, depth int) error
	EnqueueWaiter(o Owner, n *WaitNode) error

	// withdrawWaiter removes a node placed by EnqueueWaiter whose token
	// did not resolve to Success. The caller holds the lock.
	withdrawWaiter(n *WaitNode)
}

// ReentrantLock is a FairLock that tracks its owner and may be re-acquired
// by that owner without blocking.
//
// Go has no goroutine identity, so every call names its Owner explicitly
// (see NewOwner). Each acquisition by the owner must be matched by one
// Exit; the lock is handed to the next waiter, in FIFO order, only when
// the outermost Exit runs.
//
// Bind returns an owner-bound view that can be passed to WaitAny and
// WaitAll. ReentrantLock also implements MonitorLock for Cond.
//
// Implementation:
// It composes a FairLock with owner and count fields. owner is read by
// non-owners deciding whether they are re-entering, so it is atomic;
// count is only touched by the goroutine holding the inner lock.
type ReentrantLock struct {
	_     noCopy
	lock  FairLock
	owner atomic.Uint64
	count int
}

var _ MonitorLock = (*ReentrantLock)(nil)

// NewReentrantLock returns an unowned ReentrantLock whose inner FairLock
// spins up to spinCount times before parking.
func NewReentrantLock(spinCount int) *ReentrantLock {
	l := &ReentrantLock{}
	if spinCount > 0 {
		l.lock.spins = int32(spinCount)
	}
	return l
}

// Owner returns the current owner, or zero if unowned.
func (l *ReentrantLock) Owner() Owner {
	return Owner(l.owner.Load())
}

// Depth returns how many times o currently holds the lock (zero if o is
// not the owner).
func (l *ReentrantLock) Depth(o Owner) int {
	if !l.IsOwned(o) {
		return 0
	}
	return l.count + 1
}

// TryEnter acquires the lock for o, or re-enters it if o already owns it,
// without blocking.
func (l *ReentrantLock) TryEnter(o Owner) bool {
	mustOwner(o)
	return l.tryAcquireFor(o)
}

// Enter acquires the lock for o, blocking as long as necessary.
func (l *ReentrantLock) Enter(o Owner) {
	l.WaitOne(o, Infinite)
}

// WaitOne acquires the lock for o, giving up as directed by cancel.
func (l *ReentrantLock) WaitOne(o Owner, cancel CancelArgs) Outcome {
	mustOwner(o)
	if l.tryAcquireFor(o) {
		return Success
	}
	out := l.lock.WaitOne(cancel)
	if out == Success {
		l.owner.Store(uint64(o))
	}
	return out
}

// Exit releases one level of ownership held by o. The outermost Exit
// releases the inner lock, handing it to the next waiter.
// It reports ErrInvalidLockOperation if o is not the owner.
func (l *ReentrantLock) Exit(o Owner) error {
	if !l.IsOwned(o) {
		return fmt.Errorf("exit by owner %d: %w", o, ErrInvalidLockOperation)
	}
	l.exit()
	return nil
}

func (l *ReentrantLock) exit() {
	if l.count != 0 {
		l.count--
		return
	}
	l.owner.Store(0)
	l.lock.release()
}

func (l *ReentrantLock) tryAcquireFor(o Owner) bool {
	if l.lock.tryAcquire() {
		l.owner.Store(uint64(o))
		return true
	}
	if l.IsOwned(o) {
		l.count++
		return true
	}
	return false
}

func mustOwner(o Owner) {
	if o == 0 {
		panic("slim: zero Owner")
	}
}

// ============================================================================
// MonitorLock
// ============================================================================

// IsOwned reports whether o owns the lock.
func (l *ReentrantLock) IsOwned(o Owner) bool {
	return o != 0 && Owner(l.owner.Load()) == o
}

// ExitCompletely releases every level held by o and returns the recursion
// count to pass back to Reenter.
func (l *ReentrantLock) ExitCompletely(o Owner) (int, error) {
	if !l.IsOwned(o) {
		return 0, fmt.Errorf("exit completely by owner %d: %w", o, ErrInvalidLockOperation)
	}
	depth := l.count
	l.count = 0
	l.exit()
	return depth, nil
}

// Reenter restores ownership for o after a condition wait that started
// with ExitCompletely.
func (l *ReentrantLock) Reenter(o Owner, waitOutcome Outcome, depth int) error {
	mustOwner(o)
	if depth < 0 {
		return fmt.Errorf("reenter with depth %d: %w", depth, ErrInvalidLockOperation)
	}
	if waitOutcome != Success {
		l.lock.WaitOne(Infinite)
	} else if cur := Owner(l.owner.Load()); cur != 0 && cur != o {
		return fmt.Errorf("reenter by owner %d while held by %d: %w", o, cur, ErrInvalidLockOperation)
	}
	l.owner.Store(uint64(o))
	l.count = depth
	return nil
}

// EnqueueWaiter appends n to the inner lock queue as an authorized waiter.
// o must own the lock.
func (l *ReentrantLock) EnqueueWaiter(o Owner, n *WaitNode) error {
	if !l.IsOwned(o) {
		return fmt.Errorf("enqueue waiter by owner %d: %w", o, ErrInvalidLockOperation)
	}
	l.lock.enqueueLocked(n)
	return nil
}

func (l *ReentrantLock) withdrawWaiter(n *WaitNode) {
	l.lock.cancelAcquire(n)
}

// ============================================================================
// Waitable
// ============================================================================

// Bind returns a Waitable that acquires and releases l on behalf of o.
func (l *ReentrantLock) Bind(o Owner) Waitable {
	mustOwner(o)
	return reentrantView{l: l, o: o}
}

type reentrantView struct {
	l *ReentrantLock
	o Owner
}

func (v reentrantView) allowsAcquire() bool {
	return v.l.lock.allowsAcquire() || v.l.IsOwned(v.o)
}

func (v reentrantView) tryAcquire() bool {
	return v.l.tryAcquireFor(v.o)
}

func (v reentrantView) waitAnyPrologue(t *ParkToken, key int) *WaitNode {
	return v.enqueue(v.l.lock.waitAnyPrologue, t, key)
}

func (v reentrantView) waitAllPrologue(t *ParkToken, key int) *WaitNode {
	return v.enqueue(v.l.lock.waitAllPrologue, t, key)
}

// enqueue re-enters for the owner or runs the inner prologue, which may
// still acquire the lock synchronously if it was released meanwhile. Both
// sync paths leave o recorded as the owner.
func (v reentrantView) enqueue(prologue func(*ParkToken, int) *WaitNode, t *ParkToken, key int) *WaitNode {
	if v.l.IsOwned(v.o) {
		v.l.count++
		return nil
	}
	n := prologue(t, key)
	if n == nil {
		v.l.owner.Store(uint64(v.o))
	}
	return n
}

func (v reentrantView) waitEpilogue() {
	v.l.owner.Store(uint64(v.o))
}

func (v reentrantView) undoAcquire() {
	v.l.exit()
}

func (v reentrantView) cancelAcquire(n *WaitNode) {
	v.l.lock.cancelAcquire(n)
}

func (v reentrantView) release() bool {
	if !v.l.IsOwned(v.o) {
		return false
	}
	v.l.exit()
	return true
}

func (v reentrantView) identity() any {
	return v.l
}

func (v reentrantView) signalError() error {
	return fmt.Errorf("release by owner %d: %w", v.o, ErrInvalidLockOperation)
}
