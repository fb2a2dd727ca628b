package slim

import (
	"sync/atomic"
)

// FairLock is a strictly FIFO mutual-exclusion lock.
//
// Unlike sync.Mutex, which lets newcomers barge past sleeping waiters,
// FairLock never releases the lock "to the world" while anyone is queued:
// Exit hands ownership directly to the head of the queue. A newcomer can
// only win the lock with the fast CAS when no queue exists.
//
// It is a Waitable, so it can take part in WaitAny and WaitAll, and every
// blocking acquire honors CancelArgs (timeout, alerter).
//
// Implementation:
//   - state bit 0: locked. bit 1: queue bit, a spin bit guarding head/tail
//     and node states for a handful of instructions.
//   - Acquire: CAS on the locked bit; then up to spinCount bounded spins;
//     then append a WaitNode to the queue and park on its token.
//   - Exit: pop the head and contribute to its token. If the token was
//     already resolved elsewhere (timeout, alert, another WaitAny member),
//     the node is dropped and the next one is tried. An empty queue clears
//     the locked bit.
//
// Invariant: the queue is non-empty only while the lock is held.
//
// Trade-offs:
//   - Pros: starvation free, acquisition order equals enqueue order.
//   - Cons: no lock-free release; under contention every release is a
//     handoff, so a convoy forms when holders are descheduled.
//
// The zero value is an unlocked lock that does not spin.
type FairLock struct {
	_     noCopy
	state atomic.Uint32
	spins int32
	head  *WaitNode
	tail  *WaitNode
}

const (
	lockedBit = 1
	queueBit  = 2
)

// NewFairLock returns an unlocked FairLock that spins up to spinCount
// times before parking. DefaultSpinCount is a reasonable choice.
func NewFairLock(spinCount int) *FairLock {
	l := &FairLock{}
	if spinCount > 0 {
		l.spins = int32(spinCount)
	}
	return l
}

// TryAcquire acquires the lock if it is free, without queueing.
func (l *FairLock) TryAcquire() bool {
	return l.tryAcquire()
}

// IsLocked reports whether the lock is held.
func (l *FairLock) IsLocked() bool {
	return l.state.Load()&lockedBit != 0
}

// Lock acquires the lock, blocking as long as necessary.
func (l *FairLock) Lock() {
	l.WaitOne(Infinite)
}

// Unlock releases the lock.
//
// panic if the lock is not held.
func (l *FairLock) Unlock() {
	if !l.release() {
		panic("slim: unlock of unlocked FairLock")
	}
}

// WaitOne acquires the lock, giving up as directed by cancel.
func (l *FairLock) WaitOne(cancel CancelArgs) Outcome {
	if l.tryAcquire() {
		return Success
	}
	if cancel.Timeout < 0 {
		return Timeout
	}
	for i := range int(l.spins) {
		if l.allowsAcquire() && l.tryAcquire() {
			return Success
		}
		spinWait(i)
	}

	t := &ParkToken{}
	n := l.enqueue(t, 0)
	if n == nil {
		return Success
	}
	o := t.Park(cancel)
	if o != Success {
		l.cancelAcquire(n)
	}
	return o
}

// Exit releases the lock, handing it to the longest waiting goroutine if
// there is one. It reports ErrInvalidLockOperation if the lock is not held.
func (l *FairLock) Exit() error {
	if !l.release() {
		return l.signalError()
	}
	return nil
}

// Release is an alias of Exit.
func (l *FairLock) Release() error {
	return l.Exit()
}

func (l *FairLock) lockQueue() uint32 {
	var spins int
	for {
		s := l.state.Load()
		if s&queueBit == 0 && l.state.CompareAndSwap(s, s|queueBit) {
			return s | queueBit
		}
		yield(&spins)
	}
}

func (l *FairLock) unlockQueue() {
	l.state.And(^uint32(queueBit))
}

// enqueue appends a node for t, unless the lock turns out to be free, in
// which case it is acquired and nil is returned.
func (l *FairLock) enqueue(t *ParkToken, key int) *WaitNode {
	if l.tryAcquire() {
		return nil
	}
	n := NewWaitNode(t, key)
	s := l.lockQueue()
	for s&lockedBit == 0 {
		// Released while we took the queue bit. With the queue bit held only
		// a fast-path CAS can race us here.
		if l.state.CompareAndSwap(s, s|lockedBit) {
			l.unlockQueue()
			return nil
		}
		s = l.state.Load()
	}
	l.link(n)
	l.unlockQueue()
	return n
}

// enqueueLocked appends n as an already-authorized waiter. The caller holds
// the lock.
func (l *FairLock) enqueueLocked(n *WaitNode) {
	l.lockQueue()
	l.link(n)
	l.unlockQueue()
}

// link and unlink require the queue bit.
func (l *FairLock) link(n *WaitNode) {
	n.state = nodeQueued
	n.prev = l.tail
	n.next = nil
	if l.tail == nil {
		l.head = n
	} else {
		l.tail.next = n
	}
	l.tail = n
}

func (l *FairLock) unlink(n *WaitNode) {
	if n.prev == nil {
		l.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		l.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev, n.next = nil, nil
}

// ============================================================================
// Waitable
// ============================================================================

func (l *FairLock) allowsAcquire() bool {
	return l.state.Load()&lockedBit == 0
}

func (l *FairLock) tryAcquire() bool {
	for {
		s := l.state.Load()
		if s&lockedBit != 0 {
			return false
		}
		if l.state.CompareAndSwap(s, s|lockedBit) {
			return true
		}
	}
}

func (l *FairLock) waitAnyPrologue(t *ParkToken, key int) *WaitNode {
	return l.enqueue(t, key)
}

func (l *FairLock) waitAllPrologue(t *ParkToken, key int) *WaitNode {
	return l.enqueue(t, key)
}

func (l *FairLock) waitEpilogue() {}

func (l *FairLock) undoAcquire() {
	l.release()
}

func (l *FairLock) cancelAcquire(n *WaitNode) {
	l.lockQueue()
	switch n.state {
	case nodeQueued:
		l.unlink(n)
		n.state = nodeDropped
		l.unlockQueue()
	case nodeGranted:
		// Handed over before we got here; nobody will use it.
		n.state = nodeDropped
		l.unlockQueue()
		l.release()
	default:
		l.unlockQueue()
	}
}

func (l *FairLock) release() bool {
	s := l.lockQueue()
	if s&lockedBit == 0 {
		l.unlockQueue()
		return false
	}
	for n := l.head; n != nil; n = l.head {
		l.unlink(n)
		if n.token.tryLock(n.key) {
			n.state = nodeGranted
			l.unlockQueue()
			return true
		}
		n.state = nodeDropped
	}
	l.state.Store(0)
	return true
}

func (l *FairLock) identity() any {
	return l
}

func (l *FairLock) signalError() error {
	return ErrInvalidLockOperation
}
