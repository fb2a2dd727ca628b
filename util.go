package slim

import (
	"runtime"
	"sync/atomic"
	_ "unsafe" // for linkname
)

// ============================================================================
// Locker Utilities
// ============================================================================

// noCopy may be added to structs which must not be copied
// after the first use.
//
// See https://golang.org/issues/8005#issuecomment-190753527
// for details.
//
// Note that it must not be embedded, due to the Lock and Unlock methods.
type noCopy struct{}

// Lock is a no-op used by -copylocks checker from `go vet`.
func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

func trySpin(spins *int) bool {
	if runtime_canSpin(*spins) {
		*spins++
		runtime_doSpin()
		return true
	}
	return false
}

// yield backs off inside short critical sections (the queue bit). Those
// are held for a handful of instructions, so a Gosched is enough once the
// runtime refuses to let us spin.
func yield(spins *int) {
	if trySpin(spins) {
		return
	}
	*spins = 0
	runtime.Gosched()
}

// spinWait burns one iteration of a bounded acquire spin.
func spinWait(i int) {
	if ncpu > 1 && i&0xf != 0xf {
		runtime_doSpin()
		return
	}
	runtime.Gosched()
}

var ncpu = runtime.NumCPU()

// DefaultSpinCount is the spin bound used by Lock and Enter style calls on
// locks created by NewFairLock(DefaultSpinCount). It is zero on uniprocessors.
var DefaultSpinCount = func() int {
	if ncpu > 1 {
		return 200
	}
	return 0
}()

// nolint:all
//
//go:linkname runtime_canSpin sync.runtime_canSpin
//goland:noinspection ALL
func runtime_canSpin(i int) bool

// nolint:all
//
//go:linkname runtime_doSpin sync.runtime_doSpin
//goland:noinspection ALL
func runtime_doSpin()

// ============================================================================
// Identity
// ============================================================================

// Owner identifies a logical thread of control for ownership-tracking
// locks. Go does not expose goroutine identity, so callers allocate one
// with NewOwner and pass it explicitly. The zero Owner means "unowned".
type Owner uint64

var ownerSeq atomic.Uint64

// NewOwner returns a process-unique, non-zero Owner.
func NewOwner() Owner {
	return Owner(ownerSeq.Add(1))
}
