package slim

import (
	"context"
	"sync/atomic"

	"github.com/llxisdsh/pb"
)

// Alerter is a cooperative, cross-goroutine cancellation flag.
//
// A wait whose CancelArgs carry an Alerter returns Alerted once the alerter
// is set, whether it was set before the wait started or while it was
// parked. Setting is one-way; an Alerter cannot be reset.
//
// Implementation:
// Parked tokens register themselves in a concurrent set for the duration
// of the park only. Set flips the flag and then resolves every registered
// token with Alerted; a token registering concurrently re-checks the flag
// after registering, so one of the two sides always sees the other.
//
// It is zero-value usable.
type Alerter struct {
	_      noCopy
	set    atomic.Bool
	parked pb.MapOf[*ParkToken, struct{}]
}

// NewAlerter returns an unset Alerter.
func NewAlerter() *Alerter {
	return &Alerter{}
}

// IsSet reports whether the alerter has been set.
func (a *Alerter) IsSet() bool {
	return a.set.Load()
}

// Set sets the alerter and alerts every wait currently parked on it.
// It returns true if this call set it, false if it was already set.
func (a *Alerter) Set() bool {
	if !a.set.CompareAndSwap(false, true) {
		return false
	}
	a.parked.Range(func(t *ParkToken, _ struct{}) bool {
		t.resolve(Alerted, noKey)
		return true
	})
	return true
}

// AlertOnDone sets a when ctx is done. The returned stop function detaches
// it, reporting whether it did so before the alert fired.
func (a *Alerter) AlertOnDone(ctx context.Context) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		a.Set()
	})
}

// register adds t to the parked set. It returns false if the alerter is
// already set, in which case t is not registered.
func (a *Alerter) register(t *ParkToken) bool {
	if a.set.Load() {
		return false
	}
	a.parked.ProcessEntry(
		t,
		func(l *pb.EntryOf[*ParkToken, struct{}]) (*pb.EntryOf[*ParkToken, struct{}], struct{}, bool) {
			if l != nil {
				return l, struct{}{}, true
			}
			return &pb.EntryOf[*ParkToken, struct{}]{Value: struct{}{}}, struct{}{}, false
		},
	)
	if a.set.Load() {
		a.parked.Delete(t)
		return false
	}
	return true
}

func (a *Alerter) deregister(t *ParkToken) {
	a.parked.Delete(t)
}
