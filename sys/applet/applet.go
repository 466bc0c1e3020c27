// Package applet binds a system task to a restricted memory layout and
// makes the privilege transition around it explicit.
package applet

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"firmcore/sys/mem"
	"firmcore/sys/systask"
)

// Error is an applet lifecycle failure.
type Error uint8

const (
	ErrUnloaded Error = iota + 1
	ErrNoTask
	ErrTaskExists
	ErrDead
	ErrIncompatibleABI
)

func (e Error) String() string {
	switch e {
	case ErrUnloaded:
		return "applet unloaded"
	case ErrNoTask:
		return "applet has no task"
	case ErrTaskExists:
		return "applet already has a task"
	case ErrDead:
		return "applet task is dead"
	case ErrIncompatibleABI:
		return "incompatible syscall ABI"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "applet: " + e.String() }

// Layout describes the memory an applet owns. Unused regions are empty.
type Layout struct {
	Code [2]mem.Region
	Data [2]mem.Region
}

// Privileges are capabilities beyond the applet's own memory.
type Privileges struct {
	AssetsAreaAccess bool
}

// Header identifies an applet image.
type Header struct {
	Name string
	// ABI is the syscall ABI version the image was built against.
	ABI string
}

// Platform performs the backend specific parts of the lifecycle.
type Platform interface {
	// Open exposes the applet's regions to unprivileged code.
	Open(a *Applet) error
	// Close restores privileged-only access.
	Close(a *Applet) error
	// Unload releases backend resources held for the applet.
	Unload(a *Applet) error
}

// Applet is an isolated application unit.
type Applet struct {
	sched    *systask.Scheduler
	platform Platform

	task     *systask.Task
	layout   Layout
	priv     Privileges
	header   Header
	unloaded bool
}

// New returns an empty applet scheduled by sched.
func New(sched *systask.Scheduler, platform Platform) *Applet {
	return &Applet{sched: sched, platform: platform}
}

// Init assigns the layout and privileges. It does not touch protection
// state. An applet that still holds a task must be unloaded first.
func (a *Applet) Init(layout Layout, priv Privileges, header Header) error {
	if a.task != nil {
		return ErrTaskExists
	}
	a.layout = layout
	a.priv = priv
	a.header = header
	a.unloaded = false
	return nil
}

// CreateTask creates the applet's task on stack and pushes the entry call.
func (a *Applet) CreateTask(stack mem.Region, entry systask.Entrypoint, a0, a1, a2 uint32) error {
	if a.unloaded {
		return ErrUnloaded
	}
	if a.task != nil {
		return ErrTaskExists
	}
	t, err := a.sched.NewTask(stack, systask.FlagUnprivileged, a)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	if err := t.PushCall(entry, a0, a1, a2); err != nil {
		a.sched.Kill(t)
		a.sched.Release(t)
		return fmt.Errorf("push call: %w", err)
	}
	a.task = t
	return nil
}

func (a *Applet) Task() *systask.Task { return a.task }

func (a *Applet) Layout() Layout { return a.layout }

func (a *Applet) Privileges() Privileges { return a.priv }

func (a *Applet) Header() Header { return a.header }

// Run opens the applet's regions and switches to its task. It returns when
// the task yields back or terminates. Opening is the last step before the
// switch.
func (a *Applet) Run() error {
	switch {
	case a.unloaded:
		return ErrUnloaded
	case a.task == nil:
		return ErrNoTask
	case !a.sched.IsAlive(a.task):
		return ErrDead
	}
	if err := a.platform.Open(a); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	return a.sched.YieldTo(a.task)
}

// Stop closes the applet's regions without touching its task.
func (a *Applet) Stop() error {
	if a.unloaded {
		return ErrUnloaded
	}
	return a.platform.Close(a)
}

// Unload terminates the task if it is still alive, reverts protection,
// releases platform resources and the task id. The applet cannot run again
// until re-initialized.
func (a *Applet) Unload() error {
	if a.unloaded {
		return ErrUnloaded
	}
	if a.task != nil && a.sched.IsAlive(a.task) {
		if err := a.sched.Kill(a.task); err != nil {
			return fmt.Errorf("kill: %w", err)
		}
	}
	if err := a.platform.Close(a); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := a.platform.Unload(a); err != nil {
		return fmt.Errorf("unload: %w", err)
	}
	if a.task != nil {
		a.sched.Release(a.task)
	}
	*a = Applet{sched: a.sched, platform: a.platform, unloaded: true}
	return nil
}

// IsAlive reports whether the applet's task can still run.
func (a *Applet) IsAlive() bool {
	return a.task != nil && a.sched.IsAlive(a.task)
}

// Postmortem returns the termination record of the applet's task.
func (a *Applet) Postmortem() systask.Postmortem {
	if a.task == nil {
		return systask.Postmortem{}
	}
	return a.sched.Postmortem(a.task)
}

// Grants lists the memory the applet may name in syscall arguments.
func (a *Applet) Grants(assets mem.Region) mem.Grants {
	var g mem.Grants
	for _, r := range a.layout.Code {
		if !r.IsEmpty() {
			g = append(g, mem.Grant{Region: r, Access: mem.AccessRead | mem.AccessExecute})
		}
	}
	for _, r := range a.layout.Data {
		if !r.IsEmpty() {
			g = append(g, mem.Grant{Region: r, Access: mem.AccessRead | mem.AccessWrite})
		}
	}
	if a.task != nil {
		g = append(g, mem.Grant{Region: a.task.Stack(), Access: mem.AccessRead | mem.AccessWrite})
	}
	if a.priv.AssetsAreaAccess && !assets.IsEmpty() {
		g = append(g, mem.Grant{Region: assets, Access: mem.AccessRead})
	}
	return g
}

// Active returns the applet owning the active task, or nil when the kernel
// or a plain system task is running.
func Active(sched *systask.Scheduler) *Applet {
	t := sched.Active()
	if t == nil {
		return nil
	}
	a, _ := t.Owner().(*Applet)
	return a
}

// VerifyHeader checks that an image built against h.ABI can run on a
// kernel providing kernelABI.
func VerifyHeader(h Header, kernelABI string) error {
	have, err := semver.NewVersion(kernelABI)
	if err != nil {
		return fmt.Errorf("kernel abi %q: %w", kernelABI, err)
	}
	want, err := semver.NewConstraint("^" + h.ABI)
	if err != nil {
		return fmt.Errorf("%s abi %q: %w", h.Name, h.ABI, err)
	}
	if !want.Check(have) {
		return fmt.Errorf("%w: %s needs %s, kernel has %s", ErrIncompatibleABI, h.Name, h.ABI, kernelABI)
	}
	return nil
}
