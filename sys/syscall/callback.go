package syscall

import (
	"firmcore/sys/systask"
)

// InvokeCallback calls the unprivileged function at addr from inside a
// supervisor call and returns the value it passes to ReturnFromCallback.
// Only one callback per task may be in flight. A callback that finishes
// without returning through ReturnFromCallback terminates the task.
func (d *Dispatcher) InvokeCallback(t *systask.Task, addr uint32, args [4]uint32) (uint32, error) {
	st := &d.state[t.ID()]
	frame := &systask.Frame{Num: uint32(ReturnFromCallback)}
	switch {
	case st.inCallback:
		return 0, ErrCallbackPending
	case st.tramp == nil:
		return 0, ErrNoTrampoline
	case !d.grants(t).ProbeExecute(addr):
		d.violation(t, TitleAccessViolation, frame)
		return 0, ErrNotApplet
	}

	st.inCallback, st.returned, st.result = true, false, 0
	defer func() { st.inCallback = false }()

	d.cfg.Scheduler.Unprivileged(func() { st.tramp(addr, args) })

	if !st.returned {
		d.violation(t, TitleInvalidSyscall, frame)
		return 0, ErrNoReturn
	}
	return st.result, nil
}
