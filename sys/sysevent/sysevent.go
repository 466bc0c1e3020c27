// Package sysevent is the single blocking wait point of the kernel: it
// services every registered driver and waits until an awaited handle is
// ready or the deadline passes.
package sysevent

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
	"firmcore/sys/systick"
)

// DefaultQuantum bounds a single wait so drivers without interrupts are
// still polled regularly.
const DefaultQuantum = 10 * time.Millisecond

// Error is a poll failure.
type Error uint8

const (
	ErrReentrant Error = iota + 1
	ErrNoTask
)

func (e Error) String() string {
	switch e {
	case ErrReentrant:
		return "poll already in progress"
	case ErrNoTask:
		return "no task to poll for"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "sysevent: " + e.String() }

// Events holds read and write readiness. The zero value means the deadline
// passed with nothing ready.
type Events struct {
	Read  syshandle.Mask
	Write syshandle.Mask
}

// Empty reports whether nothing is ready.
func (e Events) Empty() bool { return e.Read == 0 && e.Write == 0 }

// Poller waits on the handle registry.
type Poller struct {
	reg     *syshandle.Registry
	sched   *systask.Scheduler
	clock   systick.Clock
	quantum time.Duration
	busy    atomic.Bool
	log     hclog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithQuantum sets the longest single wait.
func WithQuantum(d time.Duration) Option {
	return func(p *Poller) { p.quantum = d }
}

// WithLogger sets the logger.
func WithLogger(log hclog.Logger) Option {
	return func(p *Poller) { p.log = log.Named("sysevent") }
}

func New(reg *syshandle.Registry, sched *systask.Scheduler, clock systick.Clock, opts ...Option) *Poller {
	p := &Poller{
		reg:     reg,
		sched:   sched,
		clock:   clock,
		quantum: DefaultQuantum,
		log:     hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll waits on behalf of the active task.
func (p *Poller) Poll(awaited Events, deadline systick.Ticks) (Events, error) {
	t := p.sched.Active()
	if t == nil {
		return Events{}, ErrNoTask
	}
	return p.PollFor(t.ID(), awaited, deadline)
}

// PollFor waits on behalf of task. Every iteration polls all drivers before
// evaluating readiness, so a handle made ready by another driver's Poll is
// seen in the same iteration.
func (p *Poller) PollFor(task systask.ID, awaited Events, deadline systick.Ticks) (Events, error) {
	if !p.busy.CompareAndSwap(false, true) {
		return Events{}, ErrReentrant
	}
	defer p.busy.Store(false)

	for {
		p.reg.PollAll(awaited.Read, awaited.Write)

		got := Events{
			Read:  p.reg.ReadReady(task, awaited.Read),
			Write: p.reg.WriteReady(task, awaited.Write),
		}
		if !got.Empty() {
			return got, nil
		}
		if systick.Expired(p.clock, deadline) {
			return Events{}, nil
		}
		p.wait(deadline)
	}
}

func (p *Poller) wait(deadline systick.Ticks) {
	d := systick.Remaining(p.clock, deadline)
	if d > p.quantum || d <= 0 {
		d = p.quantum
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.reg.Woken():
	case <-timer.C:
	}
}
