package slim

import (
	"fmt"
)

// Cond is a condition variable bound to a MonitorLock.
//
// Unlike sync.Cond, a woken waiter does not race for the lock again:
// Signal moves it straight into the lock queue, so it gets the lock by
// handoff when the signaller (and anyone queued before it) exits.
// Waits honor CancelArgs; a waiter that times out or is alerted still
// re-acquires the lock before Wait returns.
//
// The waiter list is only touched while holding the lock.
type Cond struct {
	_    noCopy
	l    MonitorLock
	head *WaitNode
	tail *WaitNode
}

// NewCond returns a Cond bound to l.
func NewCond(l MonitorLock) *Cond {
	return &Cond{l: l}
}

// Wait releases the lock held by o, waits for Signal or Broadcast (or for
// cancel to fire), and re-acquires the lock at its previous depth before
// returning.
func (c *Cond) Wait(o Owner, cancel CancelArgs) (Outcome, error) {
	if !c.l.IsOwned(o) {
		return Cancelled, fmt.Errorf("cond wait by owner %d: %w", o, ErrInvalidLockOperation)
	}
	t := &ParkToken{}
	n := NewWaitNode(t, 0)
	c.push(n)

	depth, err := c.l.ExitCompletely(o)
	if err != nil {
		c.unlink(n)
		return Cancelled, err
	}
	out := t.Park(cancel)
	if err := c.l.Reenter(o, out, depth); err != nil {
		return out, err
	}
	if out != Success {
		if n.inCond {
			c.unlink(n)
		} else {
			c.l.withdrawWaiter(n)
		}
	}
	return out, nil
}

// Signal moves the longest waiting goroutine, if any, into the lock queue.
// o must own the lock.
func (c *Cond) Signal(o Owner) error {
	if !c.l.IsOwned(o) {
		return fmt.Errorf("cond signal by owner %d: %w", o, ErrInvalidLockOperation)
	}
	for n := c.head; n != nil; n = c.head {
		c.unlink(n)
		if n.token.IsResolved() {
			// Gave up already; it cleans up after itself.
			continue
		}
		return c.l.EnqueueWaiter(o, n)
	}
	return nil
}

// Broadcast moves every waiting goroutine into the lock queue.
// o must own the lock.
func (c *Cond) Broadcast(o Owner) error {
	if !c.l.IsOwned(o) {
		return fmt.Errorf("cond broadcast by owner %d: %w", o, ErrInvalidLockOperation)
	}
	for n := c.head; n != nil; n = c.head {
		c.unlink(n)
		if n.token.IsResolved() {
			continue
		}
		if err := c.l.EnqueueWaiter(o, n); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cond) push(n *WaitNode) {
	n.inCond = true
	n.prev = c.tail
	n.next = nil
	if c.tail == nil {
		c.head = n
	} else {
		c.tail.next = n
	}
	c.tail = n
}

func (c *Cond) unlink(n *WaitNode) {
	if n.prev == nil {
		c.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		c.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev, n.next = nil, nil
	n.inCond = false
}
