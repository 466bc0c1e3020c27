package systimer

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"firmcore/sys/systick"
)

func TestOneShot(t *testing.T) {
	var clk systick.ManualClock
	p := New(&clk, nil)

	fired := 0
	tm, err := p.Create(func() { fired++ })
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := tm.Set(10); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	clk.Advance(9 * time.Millisecond)
	if n := p.Dispatch(); n != 0 {
		t.Fatalf("Dispatch() before deadline = %d, want 0", n)
	}
	clk.Advance(time.Millisecond)
	p.Dispatch()
	clk.Advance(50 * time.Millisecond)
	p.Dispatch()
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if tm.Armed() {
		t.Fatalf("Armed() after firing = true, want false")
	}
}

func TestPeriodic(t *testing.T) {
	var clk systick.ManualClock
	p := New(&clk, nil)

	fired := 0
	tm, _ := p.Create(func() { fired++ })
	tm.SetPeriodic(5)
	for i := 0; i < 20; i++ {
		clk.Advance(time.Millisecond)
		p.Dispatch()
	}
	if fired != 4 {
		t.Fatalf("fired = %d, want 4", fired)
	}
	if !tm.Unset() {
		t.Fatalf("Unset() = false, want true")
	}
	clk.Advance(time.Second)
	p.Dispatch()
	if fired != 4 {
		t.Fatalf("fired after Unset = %d, want 4", fired)
	}
}

func TestPoolExhaustion(t *testing.T) {
	p := New(&systick.ManualClock{}, nil)
	var timers []*Timer
	for i := 0; i < MaxTimers; i++ {
		tm, err := p.Create(nil)
		if err != nil {
			t.Fatalf("Create() #%d error = %v", i, err)
		}
		timers = append(timers, tm)
	}
	if _, err := p.Create(nil); !errors.Is(err, ErrNoTimer) {
		t.Fatalf("Create() on full pool error = %v, want ErrNoTimer", err)
	}
	timers[3].Delete()
	if err := timers[3].Set(1); !errors.Is(err, ErrDeleted) {
		t.Fatalf("Set() after Delete error = %v, want ErrDeleted", err)
	}
	if _, err := p.Create(nil); err != nil {
		t.Fatalf("Create() after Delete error = %v", err)
	}
}

func TestStart(t *testing.T) {
	p := New(systick.NewHostClock(), nil)
	var fired atomic.Bool
	tm, _ := p.Create(func() { fired.Store(true) })
	tm.Set(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	deadline := time.After(2 * time.Second)
	for !fired.Load() {
		select {
		case <-deadline:
			t.Fatalf("timer did not fire")
		case <-time.After(time.Millisecond):
		}
	}
}
