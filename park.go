package slim

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/llxisdsh/slim/internal/opt"
)

// Outcome is the result of a blocking wait.
type Outcome int32

const (
	// Success means the wait acquired what it was waiting for.
	Success Outcome = iota
	// Timeout means the CancelArgs timeout expired first.
	Timeout
	// Alerted means the CancelArgs alerter was set first.
	Alerted
	// Cancelled means the token was resolved by its owner without waiting,
	// or by an external TryResolve(Cancelled).
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Timeout:
		return "timeout"
	case Alerted:
		return "alerted"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("Outcome(%d)", int32(o))
	}
}

// Poll is a CancelArgs timeout that makes a wait return Timeout instead of
// blocking.
const Poll time.Duration = -1

// CancelArgs configures how a single blocking call may be cut short.
//
//   - Timeout == 0: wait forever.
//   - Timeout < 0 (Poll): never block.
//   - Timeout > 0: give up with Timeout after that duration.
//   - Alerter != nil: give up with Alerted once the alerter is set.
//
// The zero value waits forever and cannot be alerted.
type CancelArgs struct {
	Timeout time.Duration
	Alerter *Alerter
}

// Infinite is a CancelArgs that waits forever.
var Infinite = CancelArgs{}

// WithTimeout returns CancelArgs that give up after d.
func WithTimeout(d time.Duration) CancelArgs {
	return CancelArgs{Timeout: d}
}

// WithAlerter returns CancelArgs that give up when a is set.
func WithAlerter(a *Alerter) CancelArgs {
	return CancelArgs{Alerter: a}
}

// ParkToken is a single-use handle for one pending wait.
//
// It moves from Pending to Resolved exactly once. Any number of goroutines
// may race to resolve it; exactly one wins, and only the winner may apply
// the side effects of its outcome (for example, consider a lock handed
// over). The winner also wakes the goroutine blocked in Park.
//
// A token created with count n needs n handoff contributions before it
// resolves to Success; this is how WaitAll collects all members on one
// token. The zero value is a pending token needing one contribution.
//
// Implementation:
// A single 64-bit word.
//   - Pending:  bit 63 clear, low 32 bits = remaining contributions - 1.
//   - Resolved: bit 63 set, bits 32-39 = Outcome, low 32 bits = winning key.
type ParkToken struct {
	_     noCopy
	state atomic.Uint64
	sema  opt.Sema
}

const (
	tokenResolved = uint64(1) << 63
	tokenOutShift = 32
	tokenOutMask  = 0xff
	noKey         = -1
)

// NewParkToken returns a pending token that resolves to Success after
// count handoff contributions.
//
// panic if count < 1.
func NewParkToken(count int) *ParkToken {
	if count < 1 {
		panic("slim: park token count must be positive")
	}
	t := &ParkToken{}
	t.state.Store(uint64(count - 1))
	return t
}

// IsResolved reports whether the token has left the Pending state.
func (t *ParkToken) IsResolved() bool {
	return t.state.Load()&tokenResolved != 0
}

// Outcome returns the resolved outcome. ok is false while pending.
func (t *ParkToken) Outcome() (o Outcome, ok bool) {
	o, _, ok = t.result()
	return o, ok
}

func (t *ParkToken) result() (Outcome, int, bool) {
	s := t.state.Load()
	if s&tokenResolved == 0 {
		return Success, noKey, false
	}
	return Outcome((s >> tokenOutShift) & tokenOutMask), int(int32(uint32(s))), true
}

// TryResolve attempts the Pending to Resolved(o) transition and reports
// whether this call won it. Once resolved, further calls report false.
func (t *ParkToken) TryResolve(o Outcome) bool {
	return t.resolve(o, noKey)
}

func (t *ParkToken) resolve(o Outcome, key int) bool {
	next := tokenResolved | uint64(uint8(o))<<tokenOutShift | uint64(uint32(int32(key)))
	for {
		s := t.state.Load()
		if s&tokenResolved != 0 {
			return false
		}
		if t.state.CompareAndSwap(s, next) {
			t.sema.Release()
			return true
		}
	}
}

// tryLock records one handoff contribution made on behalf of the member
// identified by key. It returns false when the token is already resolved,
// in which case the caller must not treat anything as handed over. The
// last contribution resolves the token to Success with that key.
func (t *ParkToken) tryLock(key int) bool {
	for {
		s := t.state.Load()
		if s&tokenResolved != 0 {
			return false
		}
		if uint32(s) != 0 {
			if t.state.CompareAndSwap(s, s-1) {
				return true
			}
			continue
		}
		next := tokenResolved | uint64(uint8(Success))<<tokenOutShift | uint64(uint32(int32(key)))
		if t.state.CompareAndSwap(s, next) {
			t.sema.Release()
			return true
		}
	}
}

// Park blocks until the token is resolved by any source, or until the
// timeout or alerter of cancel fires, and returns the resolved outcome.
// A token must be parked on at most once.
func (t *ParkToken) Park(cancel CancelArgs) Outcome {
	o, _ := t.park(cancel)
	return o
}

func (t *ParkToken) park(cancel CancelArgs) (Outcome, int) {
	var (
		timer      *time.Timer
		registered bool
	)
	if a := cancel.Alerter; a != nil && !t.IsResolved() {
		if a.register(t) {
			registered = true
		} else {
			t.resolve(Alerted, noKey)
		}
	}
	switch {
	case cancel.Timeout < 0:
		t.resolve(Timeout, noKey)
	case cancel.Timeout > 0 && !t.IsResolved():
		timer = time.AfterFunc(cancel.Timeout, func() {
			t.resolve(Timeout, noKey)
		})
	}

	// Exactly one resolver released the semaphore.
	t.sema.Acquire()

	if timer != nil {
		timer.Stop()
	}
	if registered {
		cancel.Alerter.deregister(t)
	}
	o, key, _ := t.result()
	return o, key
}

// WaitNode links a ParkToken into one Waitable's wait queue.
//
// A node is enqueued at most once and never reinserted after it leaves the
// queue, whether it left by handoff (granted) or by cancellation (dropped).
// Its state is guarded by the queue lock of the Waitable that holds it.
type WaitNode struct {
	prev, next *WaitNode
	token      *ParkToken
	key        int
	state      uint8
	inCond     bool // parked on a Cond queue, guarded by the monitor lock
}

const (
	nodeIdle uint8 = iota
	nodeQueued
	nodeGranted
	nodeDropped
)

// NewWaitNode returns an idle node for token t on behalf of member key.
func NewWaitNode(t *ParkToken, key int) *WaitNode {
	return &WaitNode{token: t, key: key}
}

// Token returns the token the node resolves.
func (n *WaitNode) Token() *ParkToken {
	return n.token
}

// Key returns the composite-wait member index the node belongs to.
func (n *WaitNode) Key() int {
	return n.key
}
