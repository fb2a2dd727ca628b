package slim

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestParkToken_SingleResolution(t *testing.T) {
	const (
		rounds    = 500
		resolvers = 8
	)
	outcomes := []Outcome{Success, Timeout, Alerted, Cancelled}
	for range rounds {
		tok := &ParkToken{}
		var winners atomic.Int32
		var won atomic.Int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		wg.Add(resolvers)
		for i := range resolvers {
			go func() {
				defer wg.Done()
				<-start
				o := outcomes[i%len(outcomes)]
				if tok.TryResolve(o) {
					winners.Add(1)
					won.Store(int32(o))
				}
			}()
		}
		close(start)
		got := tok.Park(Infinite)
		wg.Wait()

		if n := winners.Load(); n != 1 {
			t.Fatalf("%d resolvers won, want 1", n)
		}
		if got != Outcome(won.Load()) {
			t.Fatalf("Park returned %v, winner resolved %v", got, Outcome(won.Load()))
		}
		if o, ok := tok.Outcome(); !ok || o != got {
			t.Fatalf("Outcome() = %v, %v after resolution to %v", o, ok, got)
		}
		if tok.TryResolve(Timeout) {
			t.Fatal("TryResolve succeeded on a resolved token")
		}
	}
}

func TestParkToken_Contributions(t *testing.T) {
	tok := NewParkToken(3)
	if !tok.tryLock(0) || !tok.tryLock(1) {
		t.Fatal("early contributions rejected")
	}
	if tok.IsResolved() {
		t.Fatal("resolved before the last contribution")
	}
	if !tok.tryLock(2) {
		t.Fatal("last contribution rejected")
	}
	o, key, ok := tok.result()
	if !ok || o != Success || key != 2 {
		t.Fatalf("result = %v, %d, %v; want success, 2, true", o, key, ok)
	}
	if tok.tryLock(3) {
		t.Fatal("contribution accepted after resolution")
	}
	if got := tok.Park(Infinite); got != Success {
		t.Fatalf("Park = %v, want success", got)
	}
}

func TestParkToken_ContributionLosesToTimeout(t *testing.T) {
	tok := NewParkToken(2)
	tok.tryLock(0)
	if !tok.TryResolve(Timeout) {
		t.Fatal("TryResolve lost on a pending token")
	}
	if tok.tryLock(1) {
		t.Fatal("contribution accepted after timeout")
	}
	if got := tok.Park(Infinite); got != Timeout {
		t.Fatalf("Park = %v, want timeout", got)
	}
}

func TestParkToken_Poll(t *testing.T) {
	tok := &ParkToken{}
	if got := tok.Park(WithTimeout(Poll)); got != Timeout {
		t.Fatalf("Park(Poll) = %v, want timeout", got)
	}
}

func TestParkToken_Timeout(t *testing.T) {
	tok := &ParkToken{}
	start := time.Now()
	if got := tok.Park(WithTimeout(20 * time.Millisecond)); got != Timeout {
		t.Fatalf("Park = %v, want timeout", got)
	}
	if d := time.Since(start); d < 20*time.Millisecond {
		t.Errorf("Park returned after %v, before the timeout", d)
	}
}

func TestParkToken_ResolvedWhileParked(t *testing.T) {
	tok := &ParkToken{}
	time.AfterFunc(10*time.Millisecond, func() {
		tok.tryLock(7)
	})
	o, key := tok.park(WithTimeout(time.Second))
	if o != Success || key != 7 {
		t.Fatalf("park = %v, %d; want success, 7", o, key)
	}
}

func TestNewParkToken_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewParkToken(0) did not panic")
		}
	}()
	NewParkToken(0)
}

func TestOutcome_String(t *testing.T) {
	cases := map[Outcome]string{
		Success:    "success",
		Timeout:    "timeout",
		Alerted:    "alerted",
		Cancelled:  "cancelled",
		Outcome(9): "Outcome(9)",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int32(o), got, want)
		}
	}
}
