package syshandle

import (
	"sync"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/systask"
)

// Error is a registry failure.
type Error uint8

const (
	ErrInvalidHandle Error = iota + 1
	ErrAlreadyRegistered
	ErrNotRegistered
	ErrNotReadable
)

func (e Error) String() string {
	switch e {
	case ErrInvalidHandle:
		return "invalid handle"
	case ErrAlreadyRegistered:
		return "handle already registered"
	case ErrNotRegistered:
		return "handle not registered"
	case ErrNotReadable:
		return "handle has no data"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "syshandle: " + e.String() }

type slot struct {
	handler    Handler
	readParam  any
	writeParam any
}

// Registry maps handles to their drivers. Registration happens from kernel
// context; signals may arrive from any goroutine standing in for an
// interrupt and only take the short signal lock.
type Registry struct {
	mu    sync.RWMutex
	slots [Count]slot

	// sig guards the latched params. It is never held across a callback.
	sig  sync.Mutex
	wake chan struct{}

	log hclog.Logger
}

func NewRegistry(log hclog.Logger) *Registry {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Registry{
		wake: make(chan struct{}, 1),
		log:  log.Named("syshandle"),
	}
}

// Register binds h to handler.
func (r *Registry) Register(h Handle, handler Handler) error {
	if !h.Valid() || handler == nil {
		return ErrInvalidHandle
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[h].handler != nil {
		return ErrAlreadyRegistered
	}
	r.slots[h] = slot{handler: handler}
	r.log.Debug("registered", "handle", h)
	return nil
}

// Unregister removes the driver of h.
func (r *Registry) Unregister(h Handle) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.slots[h].handler == nil {
		return ErrNotRegistered
	}
	r.slots[h] = slot{}
	r.log.Debug("unregistered", "handle", h)
	return nil
}

// Registered reports whether h has a driver.
func (r *Registry) Registered(h Handle) bool {
	if !h.Valid() {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[h].handler != nil
}

// SignalReadReady latches param for h and wakes a pending poll. It never
// blocks and may be called from interrupt context.
func (r *Registry) SignalReadReady(h Handle, param any) {
	if !h.Valid() {
		return
	}
	r.sig.Lock()
	r.slots[h].readParam = param
	r.sig.Unlock()
	r.Wake()
}

// SignalWriteReady is the write side of SignalReadReady.
func (r *Registry) SignalWriteReady(h Handle, param any) {
	if !h.Valid() {
		return
	}
	r.sig.Lock()
	r.slots[h].writeParam = param
	r.sig.Unlock()
	r.Wake()
}

// Wake interrupts a pending wait without latching anything.
func (r *Registry) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Woken is signalled after any signal. A single pending wakeup is kept.
func (r *Registry) Woken() <-chan struct{} { return r.wake }

func (r *Registry) handler(h Handle) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[h].handler
}

// Read copies pending data of h for task into p.
func (r *Registry) Read(h Handle, task systask.ID, p []byte) (int, error) {
	if !h.Valid() {
		return 0, ErrInvalidHandle
	}
	handler := r.handler(h)
	if handler == nil {
		return 0, ErrNotRegistered
	}
	rd, ok := handler.(Reader)
	if !ok {
		return 0, ErrNotReadable
	}
	return rd.Read(task, p), nil
}

func (r *Registry) handlers() [Count]Handler {
	var hs [Count]Handler
	r.mu.RLock()
	for i := range r.slots {
		hs[i] = r.slots[i].handler
	}
	r.mu.RUnlock()
	return hs
}

// PollAll calls Poll on every registered driver.
func (r *Registry) PollAll(readAwaited, writeAwaited Mask) {
	for h, handler := range r.handlers() {
		if handler == nil {
			continue
		}
		handler.Poll(readAwaited.Has(Handle(h)), writeAwaited.Has(Handle(h)))
	}
}

// ReadReady evaluates read readiness of every awaited handle for task.
func (r *Registry) ReadReady(task systask.ID, awaited Mask) Mask {
	return r.ready(task, awaited, false)
}

// WriteReady evaluates write readiness of every awaited handle for task.
func (r *Registry) WriteReady(task systask.ID, awaited Mask) Mask {
	return r.ready(task, awaited, true)
}

func (r *Registry) ready(task systask.ID, awaited Mask, write bool) Mask {
	var out Mask
	for _, h := range awaited.Handles() {
		handler := r.handler(h)
		if handler == nil {
			continue
		}
		r.sig.Lock()
		param := r.slots[h].readParam
		if write {
			param = r.slots[h].writeParam
		}
		r.sig.Unlock()

		var ok bool
		if write {
			ok = handler.CheckWriteReady(task, param)
		} else {
			ok = handler.CheckReadReady(task, param)
		}
		if ok {
			out |= Bit(h)
		}
	}
	return out
}

// TaskCreated forwards task creation to every driver. If one vetoes, the
// drivers that accepted are told the task was killed.
func (r *Registry) TaskCreated(task systask.ID) bool {
	hs := r.handlers()
	for i, handler := range hs {
		if handler == nil || handler.TaskCreated(task) {
			continue
		}
		r.log.Warn("task vetoed", "task", task, "handle", Handle(i))
		for j := 0; j < i; j++ {
			if hs[j] != nil {
				hs[j].TaskKilled(task)
			}
		}
		return false
	}
	return true
}

// TaskKilled forwards task death to every driver.
func (r *Registry) TaskKilled(task systask.ID) {
	for _, handler := range r.handlers() {
		if handler != nil {
			handler.TaskKilled(task)
		}
	}
}

var _ systask.Observer = (*Registry)(nil)
