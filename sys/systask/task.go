// Package systask implements cooperative system tasks: isolated stacks, an
// explicit context switch, and the postmortem left behind when a task ends.
//
// Each task other than the kernel task runs on its own goroutine. Control is
// passed like a baton: the goroutine that holds it is the active task and
// every other started task is parked on its wake channel, so exactly one
// task executes at any time.
package systask

import (
	"fmt"

	"firmcore/sys/mem"
)

// ID identifies a task for its whole lifetime.
type ID uint8

const (
	// KernelID is the task the scheduler is created on.
	KernelID ID = 0
	// MaxTasks includes the kernel task.
	MaxTasks = 4
	// MinStackSize is the smallest stack a task may be given.
	MinStackSize = 1024
	// StackAlign is the AAPCS stack alignment.
	StackAlign = 8
)

// State is a task lifecycle state.
type State uint8

const (
	StateUninitialized State = iota
	StateInitialized
	StateRunning
	StateYielded
	StateDead
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StateYielded:
		return "yielded"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Flags modify how a task runs.
type Flags uint32

const (
	// FlagUnprivileged marks a task that runs applet code.
	FlagUnprivileged Flags = 1 << iota
)

// Entrypoint is the first function a task runs. Returning from it is a
// normal exit with the returned code.
type Entrypoint func(a0, a1, a2 uint32) int32

// Frame is the register file of a supervisor call: the syscall number and
// six argument slots. Results are written back into Args.
type Frame struct {
	Num  uint32
	Args [6]uint32
}

// Task is a schedulable execution context.
type Task struct {
	id    ID
	state State
	flags Flags
	stack mem.Region
	owner any

	entry Entrypoint
	args  [3]uint32

	pm Postmortem

	// wake carries the baton; false asks a parked goroutine to unwind.
	wake    chan bool
	done    chan struct{}
	started bool

	inHandler bool
	deferred  *Frame
}

func (t *Task) ID() ID { return t.id }

// Owner returns the object the task was created for, such as an applet.
func (t *Task) Owner() any { return t.owner }

func (t *Task) Flags() Flags { return t.flags }

func (t *Task) Stack() mem.Region { return t.stack }

// InHandler reports whether the task is executing a supervisor call.
func (t *Task) InHandler() bool { return t.inHandler }

// Unprivileged reports whether the task runs applet code outside handler
// mode.
func (t *Task) Unprivileged() bool {
	return t.flags&FlagUnprivileged != 0 && !t.inHandler
}

// Defer parks a supervisor call to be completed by the kernel task after
// the task yields.
func (t *Task) Defer(f *Frame) { t.deferred = f }

// TakeDeferred returns and clears the parked supervisor call.
func (t *Task) TakeDeferred() *Frame {
	f := t.deferred
	t.deferred = nil
	return f
}

// PushCall prepares the task to call entry(a0, a1, a2) when first switched
// to.
func (t *Task) PushCall(entry Entrypoint, a0, a1, a2 uint32) error {
	switch {
	case t.state == StateDead:
		return ErrDead
	case t.started || t.state != StateInitialized:
		return ErrAlreadyStarted
	case entry == nil:
		return ErrNoEntrypoint
	}
	t.entry = entry
	t.args = [3]uint32{a0, a1, a2}
	return nil
}

func (t *Task) String() string {
	return fmt.Sprintf("task%d(%s)", t.id, t.state)
}
