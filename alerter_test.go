package slim

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAlerter_WhileParked(t *testing.T) {
	a := NewAlerter()
	const n = 10
	var wg sync.WaitGroup
	results := make(chan Outcome, n)
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			results <- (&ParkToken{}).Park(WithAlerter(a))
		}()
	}

	time.Sleep(20 * time.Millisecond)
	if !a.Set() {
		t.Fatal("first Set reported already set")
	}
	if a.Set() {
		t.Fatal("second Set reported it set the alerter")
	}
	wg.Wait()
	close(results)
	for o := range results {
		if o != Alerted {
			t.Errorf("Park = %v, want alerted", o)
		}
	}
}

func TestAlerter_SetBeforePark(t *testing.T) {
	var a Alerter
	a.Set()
	if !a.IsSet() {
		t.Fatal("IsSet false after Set")
	}

	done := make(chan Outcome)
	go func() {
		done <- (&ParkToken{}).Park(CancelArgs{Timeout: time.Second, Alerter: &a})
	}()
	select {
	case o := <-done:
		if o != Alerted {
			t.Fatalf("Park = %v, want alerted", o)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Park blocked on an already set alerter")
	}
}

func TestAlerter_DeregistersOnReturn(t *testing.T) {
	var a Alerter
	tok := &ParkToken{}
	tok.TryResolve(Success)
	if o := tok.Park(WithAlerter(&a)); o != Success {
		t.Fatalf("Park = %v, want success", o)
	}

	tok = &ParkToken{}
	if o := tok.Park(CancelArgs{Timeout: 5 * time.Millisecond, Alerter: &a}); o != Timeout {
		t.Fatalf("Park = %v, want timeout", o)
	}
	n := 0
	a.parked.Range(func(*ParkToken, struct{}) bool {
		n++
		return true
	})
	if n != 0 {
		t.Fatalf("%d tokens still registered", n)
	}
}

func TestAlerter_AlertOnDone(t *testing.T) {
	a := NewAlerter()
	ctx, cancel := context.WithCancel(context.Background())
	a.AlertOnDone(ctx)

	l := &FairLock{}
	l.Lock()
	done := make(chan Outcome)
	go func() {
		done <- l.WaitOne(WithAlerter(a))
	}()
	waitQueueLen(t, l, 1)
	cancel()

	select {
	case o := <-done:
		if o != Alerted {
			t.Fatalf("WaitOne = %v, want alerted", o)
		}
	case <-time.After(time.Second):
		t.Fatal("context cancellation did not alert the waiter")
	}
	waitQueueLen(t, l, 0)
	if err := l.Exit(); err != nil {
		t.Fatal(err)
	}
	if l.IsLocked() {
		t.Fatal("lock still held after the only holder exited")
	}
}

func TestAlerter_AlertOnDoneStop(t *testing.T) {
	a := NewAlerter()
	ctx, cancel := context.WithCancel(context.Background())
	stop := a.AlertOnDone(ctx)
	if !stop() {
		t.Fatal("stop reported the alert already fired")
	}
	cancel()
	time.Sleep(10 * time.Millisecond)
	if a.IsSet() {
		t.Fatal("alerter set after stop")
	}
}
