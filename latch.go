package slim

import (
	"sync/atomic"

	"github.com/llxisdsh/slim/internal/opt"
)

// CountDownLatch is a one-shot "wait for N signals" door.
// Wait blocks until Signal has been called N times; after that every
// current and future Wait returns immediately.
//
// Size: 16 bytes (8 byte state + 4 byte semaphore + padding).
type CountDownLatch struct {
	_ noCopy
	// state 64-bit:
	//   High 32: remaining signals
	//   Low 32: waiter count
	state atomic.Uint64
	sema  opt.Sema
}

const latchOneSignal = 1 << 32

// NewCountDownLatch returns a latch that opens after n signals.
//
// panic if n < 0.
func NewCountDownLatch(n int) *CountDownLatch {
	if n < 0 {
		panic("slim: negative latch count")
	}
	l := &CountDownLatch{}
	l.state.Store(uint64(n) * latchOneSignal)
	return l
}

// Count returns the number of signals still needed.
func (l *CountDownLatch) Count() int {
	return int(l.state.Load() >> 32)
}

// Signal records one signal. The signal that brings the count to zero
// wakes every waiter. It returns true for that signal.
//
// panic if the latch is already open.
func (l *CountDownLatch) Signal() bool {
	for {
		s := l.state.Load()
		remaining := s >> 32
		if remaining == 0 {
			panic("slim: latch signalled too many times")
		}
		if remaining > 1 {
			if l.state.CompareAndSwap(s, s-latchOneSignal) {
				return false
			}
			continue
		}
		if l.state.CompareAndSwap(s, 0) {
			waiters := uint32(s)
			for range waiters {
				l.sema.Release()
			}
			return true
		}
	}
}

// Wait blocks until the count reaches zero.
func (l *CountDownLatch) Wait() {
	for {
		s := l.state.Load()
		if s>>32 == 0 {
			return
		}
		if l.state.CompareAndSwap(s, s+1) {
			l.sema.Acquire()
			return
		}
	}
}
