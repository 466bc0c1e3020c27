// Package systimer provides one-shot and periodic software timers on top of
// the systick timebase.
package systimer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/systick"
)

// MaxTimers is the size of the timer pool.
const MaxTimers = 8

var (
	ErrNoTimer = errors.New("systimer: no free timer")
	ErrDeleted = errors.New("systimer: timer deleted")
)

// Timer is a slot in the pool.
type Timer struct {
	pool     *Pool
	idx      int
	callback func()

	inUse    bool
	armed    bool
	deadline systick.Ticks
	period   uint32
}

// Pool owns the timers and fires them from Dispatch.
type Pool struct {
	mu     sync.Mutex
	clock  systick.Clock
	log    hclog.Logger
	timers [MaxTimers]Timer
}

func New(clock systick.Clock, log hclog.Logger) *Pool {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	p := &Pool{clock: clock, log: log}
	for i := range p.timers {
		p.timers[i].pool = p
		p.timers[i].idx = i
	}
	return p
}

// Create takes a free timer. The callback runs from Dispatch, outside the
// pool lock, and must not block.
func (p *Pool) Create(callback func()) (*Timer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.timers {
		t := &p.timers[i]
		if t.inUse {
			continue
		}
		t.inUse = true
		t.armed = false
		t.callback = callback
		return t, nil
	}
	return nil, ErrNoTimer
}

// Set arms a one-shot timer that fires ms milliseconds from now.
func (t *Timer) Set(ms uint32) error { return t.arm(ms, 0) }

// SetPeriodic arms a timer that fires every ms milliseconds.
func (t *Timer) SetPeriodic(ms uint32) error { return t.arm(ms, ms) }

func (t *Timer) arm(ms, period uint32) error {
	p := t.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	if !t.inUse {
		return ErrDeleted
	}
	t.deadline = systick.Timeout(p.clock, ms)
	t.period = period
	t.armed = true
	return nil
}

// Unset disarms the timer and reports whether it was armed.
func (t *Timer) Unset() bool {
	p := t.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	was := t.armed
	t.armed = false
	return was
}

// Delete returns the timer to the pool.
func (t *Timer) Delete() {
	p := t.pool
	p.mu.Lock()
	defer p.mu.Unlock()

	t.inUse = false
	t.armed = false
	t.callback = nil
}

// Armed reports whether the timer will fire.
func (t *Timer) Armed() bool {
	p := t.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	return t.armed
}

// Dispatch fires every expired timer and returns how many fired.
func (p *Pool) Dispatch() int {
	var due []func()

	p.mu.Lock()
	for i := range p.timers {
		t := &p.timers[i]
		if !t.inUse || !t.armed || !systick.Expired(p.clock, t.deadline) {
			continue
		}
		if t.period > 0 {
			t.deadline = systick.Ticks(uint32(t.deadline) + t.period)
		} else {
			t.armed = false
		}
		if t.callback != nil {
			due = append(due, t.callback)
		}
	}
	p.mu.Unlock()

	for _, cb := range due {
		cb()
	}
	return len(due)
}

// Start runs Dispatch from a 1ms ticker until ctx is cancelled.
func (p *Pool) Start(ctx context.Context) {
	go func() {
		t := time.NewTicker(time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Debug("timer dispatch stopped")
				return
			case <-t.C:
				p.Dispatch()
			}
		}
	}()
}
