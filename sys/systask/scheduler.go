package systask

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/mem"
)

// Observer is told about task creation and death. A false return from
// TaskCreated vetoes the task.
type Observer interface {
	TaskCreated(id ID) bool
	TaskKilled(id ID)
}

// ErrorHandler presents the postmortem of the kernel task. It is the last
// code to run before the system halts.
type ErrorHandler func(pm *Postmortem)

// SVCHandler services a supervisor call on behalf of t.
type SVCHandler func(t *Task, f *Frame)

// Config configures a Scheduler.
type Config struct {
	// StackArea bounds every task stack.
	StackArea    mem.Region
	ErrorHandler ErrorHandler
	Logger       hclog.Logger
}

// Scheduler owns the task table. All methods other than Active, Task and
// IsAlive are called from the active task only.
type Scheduler struct {
	mu     sync.Mutex
	tasks  [MaxTasks]*Task
	active *Task
	kernel *Task

	area     mem.Region
	onError  ErrorHandler
	observer Observer
	svc      SVCHandler
	onSwitch func(from, to *Task)

	log hclog.Logger
}

// NewScheduler creates the scheduler and its kernel task, which is bound to
// the calling goroutine and is active on return.
func NewScheduler(cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	k := &Task{
		id:      KernelID,
		state:   StateRunning,
		started: true,
		wake:    make(chan bool),
		pm:      Postmortem{Task: KernelID},
	}
	s := &Scheduler{
		area:    cfg.StackArea,
		onError: cfg.ErrorHandler,
		kernel:  k,
		active:  k,
		log:     log.Named("systask"),
	}
	s.tasks[KernelID] = k
	return s
}

// SetObserver installs the task lifecycle observer.
func (s *Scheduler) SetObserver(o Observer) { s.observer = o }

// SetSVCHandler installs the supervisor call handler.
func (s *Scheduler) SetSVCHandler(h SVCHandler) { s.svc = h }

// SetErrorHandler replaces the kernel error handler.
func (s *Scheduler) SetErrorHandler(h ErrorHandler) { s.onError = h }

// OnSwitch installs a hook called on every context switch, after the new
// task has been marked running and before it resumes.
func (s *Scheduler) OnSwitch(fn func(from, to *Task)) { s.onSwitch = fn }

// Kernel returns the kernel task.
func (s *Scheduler) Kernel() *Task { return s.kernel }

// Active returns the task currently executing.
func (s *Scheduler) Active() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Task returns the live or dead task with the given id, or nil.
func (s *Scheduler) Task(id ID) *Task {
	if int(id) >= MaxTasks {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks[id]
}

// IsAlive reports whether t can still run.
func (s *Scheduler) IsAlive(t *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.state != StateDead && t.state != StateUninitialized
}

// State returns the lifecycle state of t.
func (s *Scheduler) State(t *Task) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.state
}

// Postmortem returns a copy of the termination record of t.
func (s *Scheduler) Postmortem(t *Task) Postmortem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t.pm
}

// NewTask allocates a task id and validates the stack. The stack must lie
// inside the scheduler's stack area, be at least MinStackSize bytes,
// aligned, and not overlap any other task's stack.
func (s *Scheduler) NewTask(stack mem.Region, flags Flags, owner any) (*Task, error) {
	if stack.Size < MinStackSize || !stack.Aligned(StackAlign) ||
		!s.area.Contains(stack.Start, stack.Size) {
		return nil, fmt.Errorf("%w %s", ErrInvalidStack, stack)
	}

	s.mu.Lock()
	slot := -1
	for i := range s.tasks {
		t := s.tasks[i]
		if t == nil {
			if slot < 0 {
				slot = i
			}
			continue
		}
		if t.stack.Overlaps(stack) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: task %d", ErrStackOverlap, t.id)
		}
	}
	if slot < 0 {
		s.mu.Unlock()
		return nil, ErrNoFreeSlot
	}
	t := &Task{
		id:    ID(slot),
		state: StateInitialized,
		flags: flags,
		stack: stack,
		owner: owner,
		wake:  make(chan bool),
		done:  make(chan struct{}),
		pm:    Postmortem{Task: ID(slot)},
	}
	s.tasks[slot] = t
	s.mu.Unlock()

	if s.observer != nil && !s.observer.TaskCreated(t.id) {
		s.mu.Lock()
		s.tasks[slot] = nil
		s.mu.Unlock()
		return nil, ErrRejected
	}
	s.log.Debug("task created", "id", t.id, "stack", stack.String())
	return t, nil
}

// Release frees the id of a dead task so it can be reused.
func (s *Scheduler) Release(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.id == KernelID || s.tasks[t.id] != t {
		return ErrUnknownTask
	}
	if t.state != StateDead {
		return ErrNotDead
	}
	s.tasks[t.id] = nil
	t.state = StateUninitialized
	return nil
}

// YieldTo switches to t and returns when some task switches back to the
// caller. Yielding to the active task is a no-op.
func (s *Scheduler) YieldTo(t *Task) error {
	s.mu.Lock()
	cur := s.active
	switch {
	case t == cur:
		s.mu.Unlock()
		return nil
	case t.state == StateDead || t.state == StateUninitialized:
		s.mu.Unlock()
		return ErrDead
	case !t.started && t.entry == nil:
		s.mu.Unlock()
		return ErrNoEntrypoint
	}
	cur.state = StateYielded
	s.resumeLocked(cur, t)

	if ok := <-cur.wake; !ok {
		// Killed while parked.
		runtime.Goexit()
	}
	return nil
}

// resumeLocked hands the baton from cur to t. It is called with s.mu held
// and releases it.
func (s *Scheduler) resumeLocked(cur, t *Task) {
	t.state = StateRunning
	s.active = t
	start := !t.started
	t.started = true
	s.mu.Unlock()

	if s.onSwitch != nil {
		s.onSwitch(cur, t)
	}
	if start {
		go s.run(t)
		return
	}
	t.wake <- true
}

func (s *Scheduler) run(t *Task) {
	defer close(t.done)
	defer func() {
		r := recover()
		if r == nil {
			// Either a normal exit already handed off, or the task was
			// killed while parked and the killer holds the baton.
			return
		}
		s.fault(t, r)
	}()
	code := t.entry(t.args[0], t.args[1], t.args[2])
	s.terminate(t, Postmortem{Reason: ReasonExit, ExitCode: code})
}

// fault terminates t after a recovered panic.
func (s *Scheduler) fault(t *Task, r any) {
	file, line := faultSite()
	s.terminate(t, Postmortem{
		Reason:  ReasonFault,
		Message: fmt.Sprint(r),
		File:    file,
		Line:    line,
		Stack:   captureStack(),
	})
}

// Exit terminates t with a normal exit code.
func (s *Scheduler) Exit(t *Task, code int32) error {
	return s.terminate(t, Postmortem{Reason: ReasonExit, ExitCode: code})
}

// ExitError terminates t with a user visible error.
func (s *Scheduler) ExitError(t *Task, title, message, footer string) error {
	return s.terminate(t, Postmortem{Reason: ReasonError, Title: title, Message: message, Footer: footer})
}

// ExitFatal terminates t after an unrecoverable condition.
func (s *Scheduler) ExitFatal(t *Task, message, file string, line int) error {
	return s.terminate(t, Postmortem{Reason: ReasonFatal, Message: message, File: file, Line: line})
}

// Kill terminates t from outside, recording ExitKilled.
func (s *Scheduler) Kill(t *Task) error {
	return s.Exit(t, ExitKilled)
}

// Fault terminates the active task as if it had panicked with r. The
// kernel uses it for panics recovered on its own goroutine.
func (s *Scheduler) Fault(r any) {
	s.fault(s.Active(), r)
}

// terminate records pm and ends t. If t is the active task, control passes
// to the kernel task and terminate does not return. If t is the kernel
// task, the error handler runs and terminate returns.
func (s *Scheduler) terminate(t *Task, pm Postmortem) error {
	s.mu.Lock()
	if t.state == StateDead || t.state == StateUninitialized {
		s.mu.Unlock()
		return ErrDead
	}
	prev := t.state
	pm.Task = t.id
	t.pm = pm
	t.state = StateDead
	t.deferred = nil
	active := s.active == t
	s.mu.Unlock()

	s.log.Debug("task terminated", "id", t.id, "reason", pm.Reason, "code", pm.ExitCode)
	if t.id != KernelID && s.observer != nil {
		s.observer.TaskKilled(t.id)
	}

	switch {
	case t.id == KernelID:
		if s.onError != nil {
			s.onError(&t.pm)
		}
		return nil
	case active:
		s.mu.Lock()
		s.resumeLocked(t, s.kernel)
		runtime.Goexit()
	case prev == StateYielded:
		t.wake <- false
		<-t.done
	}
	return nil
}

// Unprivileged runs fn on behalf of the active task with handler mode
// dropped, as when the kernel calls back into applet code from a
// supervisor call.
func (s *Scheduler) Unprivileged(fn func()) {
	t := s.Active()
	prev := t.inHandler
	t.inHandler = false
	defer func() { t.inHandler = prev }()
	fn()
}

// SVC runs the supervisor call handler for the active task in handler
// mode.
func (s *Scheduler) SVC(f *Frame) {
	t := s.Active()
	if s.svc == nil {
		return
	}
	t.inHandler = true
	defer func() { t.inHandler = false }()
	s.svc(t, f)
}
