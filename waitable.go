package slim

// Waitable is implemented by every primitive that can take part in single
// waits and in composite waits (WaitAny, WaitAll).
//
// The interface is sealed: its methods form the protocol between a
// primitive and the wait coordinator.
//
//   - allowsAcquire: advisory, non-blocking "would tryAcquire succeed now".
//   - tryAcquire: non-blocking attempt; on success every acquire-side
//     effect has happened.
//   - waitAnyPrologue / waitAllPrologue: acquire synchronously (return nil)
//     or enqueue a node bound to the shared token and return it.
//   - waitEpilogue: finishes deferred acquire effects after the token
//     resolved to Success through the slow path.
//   - undoAcquire: exactly reverses a tryAcquire or waitEpilogue.
//   - cancelAcquire: withdraws a node whose token was resolved by some other
//     source. If the node was granted in the meantime, the acquisition is
//     released again on the caller's behalf.
//   - release / signalError: release-style call and the error to report
//     when it is invalid.
//   - identity: the underlying primitive, shared by every view of it.
type Waitable interface {
	allowsAcquire() bool
	tryAcquire() bool
	waitAnyPrologue(t *ParkToken, key int) *WaitNode
	waitAllPrologue(t *ParkToken, key int) *WaitNode
	waitEpilogue()
	undoAcquire()
	cancelAcquire(n *WaitNode)
	release() bool
	signalError() error
	identity() any
}

// WaitAny waits until any one of ws is acquired.
//
// Members are tried in order, and the first one acquired synchronously
// wins without touching the members after it. Otherwise the caller parks
// once on a token shared by all members; the first member to hand itself
// over wins and every other queued member is withdrawn.
//
// It returns the winner's index with Success, or -1 with Timeout, Alerted
// or Cancelled. On failure none of ws is left acquired.
//
// panic if ws is empty.
func WaitAny(ws []Waitable, cancel CancelArgs) (int, Outcome) {
	if len(ws) == 0 {
		panic("slim: WaitAny needs at least one waitable")
	}
	t := &ParkToken{}
	nodes := make([]*WaitNode, len(ws))
	for i, w := range ws {
		var n *WaitNode
		if !w.allowsAcquire() || !w.tryAcquire() {
			n = w.waitAnyPrologue(t, i)
		}
		if n != nil {
			nodes[i] = n
			continue
		}
		// Acquired synchronously. Earlier members may already be queued on
		// t and one of them may have been handed over meanwhile, so claim
		// the token before declaring i the winner.
		winner := i
		if i > 0 && !t.resolve(Cancelled, i) {
			w.undoAcquire()
			_, winner, _ = t.result()
			ws[winner].waitEpilogue()
		}
		withdraw(ws[:i], nodes, winner)
		return winner, Success
	}

	o, key := t.park(cancel)
	if o != Success {
		withdraw(ws, nodes, noKey)
		return -1, o
	}
	ws[key].waitEpilogue()
	withdraw(ws, nodes, key)
	return key, Success
}

func withdraw(ws []Waitable, nodes []*WaitNode, winner int) {
	for i, w := range ws {
		if i != winner && nodes[i] != nil {
			w.cancelAcquire(nodes[i])
		}
	}
}

// WaitAll waits until every one of ws is acquired, holding each member
// from the moment it is acquired until the call returns.
//
// Members that can be acquired synchronously are taken immediately; the
// rest are queued on one shared token that resolves to Success only after
// all of them were handed over. On Timeout, Alerted or Cancelled every
// member already acquired is rolled back and every queued member is
// withdrawn, so nothing is left acquired.
//
// Callers whose member sets overlap can deadlock each other without a
// timeout or alerter, since each may hold part of the other's set.
//
// panic if ws is empty or lists the same waitable twice, including two
// owner views of one ReentrantLock.
func WaitAll(ws []Waitable, cancel CancelArgs) Outcome {
	if len(ws) == 0 {
		panic("slim: WaitAll needs at least one waitable")
	}
	for i := 1; i < len(ws); i++ {
		for j := range i {
			if ws[i].identity() == ws[j].identity() {
				panic("slim: WaitAll lists the same waitable twice")
			}
		}
	}

	t := NewParkToken(len(ws))
	nodes := make([]*WaitNode, len(ws))
	for i, w := range ws {
		if !w.allowsAcquire() || !w.tryAcquire() {
			nodes[i] = w.waitAllPrologue(t, i)
		}
		if nodes[i] == nil {
			// Only handoffs touch t before park, and those never resolve it
			// to anything but Success.
			t.tryLock(i)
		}
	}

	o, _ := t.park(cancel)
	if o == Success {
		for i, w := range ws {
			if nodes[i] != nil {
				w.waitEpilogue()
			}
		}
		return Success
	}

	for i, w := range ws {
		if nodes[i] == nil {
			w.undoAcquire()
		} else {
			w.cancelAcquire(nodes[i])
		}
	}
	return o
}

// SignalAndWait releases signal and then waits on wait.
//
// If signal cannot be released by the caller, its error is reported and
// wait is not attempted.
func SignalAndWait(signal, wait Waitable, cancel CancelArgs) (Outcome, error) {
	if !signal.release() {
		return Cancelled, signal.signalError()
	}
	_, o := WaitAny([]Waitable{wait}, cancel)
	return o, nil
}
