// Package system brings the kernel core up in a fixed order and owns the
// sanctioned ways for it to end.
package system

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/applet"
	"firmcore/sys/ipc"
	"firmcore/sys/mem"
	"firmcore/sys/syscall"
	"firmcore/sys/sysevent"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
	"firmcore/sys/systick"
	"firmcore/sys/systimer"
)

// Error is a bootstrap failure.
type Error uint8

const (
	ErrAlreadyInitialized Error = iota + 1
	ErrNoStackArea
)

func (e Error) String() string {
	switch e {
	case ErrAlreadyInitialized:
		return "system already initialized"
	case ErrNoStackArea:
		return "no stack area configured"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "system: " + e.String() }

// Config selects the optional parts of the core and the platform hooks.
type Config struct {
	// StackArea bounds every task stack.
	StackArea mem.Region
	// Assets is the shared read-only area privileged applets may map.
	Assets mem.Region

	// Clock defaults to the host monotonic clock.
	Clock systick.Clock
	// PollQuantum bounds a single wait in sysevent.
	PollQuantum time.Duration

	IPC bool
	// Console receives applet debug output. Nil disables the console.
	Console io.Writer

	Storage  syscall.Storage
	Platform applet.Platform
	Space    *mem.Space

	// SecureMonitor routes every failure through EmergencyRescue.
	SecureMonitor bool
	// Halt stops the system for good. The default blocks forever.
	Halt func()
	// Reboot restarts the device. The default calls Halt.
	Reboot func()

	Logger hclog.Logger
}

// System is the process-wide kernel context.
type System struct {
	Clock    systick.Clock
	Timers   *systimer.Pool
	Sched    *systask.Scheduler
	Handles  *syshandle.Registry
	Events   *sysevent.Poller
	IPC      *ipc.IPC
	Console  io.Writer
	Syscalls *syscall.Dispatcher
	Space    *mem.Space

	cfg     Config
	handler systask.ErrorHandler
	stop    context.CancelFunc
	log     hclog.Logger
}

var initialized atomic.Bool

// attachIPC is replaced in tests to fail the IPC stage.
var attachIPC = (*ipc.IPC).Attach

// Init brings the core up: tick source, timers, task scheduler, IPC and the
// debug console, in that order. It may be called once per process; the
// calling goroutine becomes the kernel task. handler presents the
// postmortem when the kernel task terminates.
func Init(cfg Config, handler systask.ErrorHandler) (_ *System, err error) {
	if cfg.StackArea.IsEmpty() {
		return nil, ErrNoStackArea
	}
	if !initialized.CompareAndSwap(false, true) {
		return nil, ErrAlreadyInitialized
	}
	var cancel context.CancelFunc
	defer func() {
		if err == nil {
			return
		}
		if cancel != nil {
			cancel()
		}
		initialized.Store(false)
	}()
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	if cfg.Halt == nil {
		cfg.Halt = func() { select {} }
	}
	if cfg.Reboot == nil {
		cfg.Reboot = cfg.Halt
	}
	if cfg.Space == nil {
		cfg.Space = mem.NewSpace()
	}
	if cfg.Platform == nil {
		cfg.Platform = applet.NewEmulator()
	}

	s := &System{cfg: cfg, handler: handler, Space: cfg.Space, log: log.Named("system")}

	s.Clock = cfg.Clock
	if s.Clock == nil {
		s.Clock = systick.NewHostClock()
	}
	s.log.Debug("init", "stage", "systick")

	s.Timers = systimer.New(s.Clock, log)
	var ctx context.Context
	ctx, cancel = context.WithCancel(context.Background())
	s.stop = cancel
	s.Timers.Start(ctx)
	s.log.Debug("init", "stage", "systimer")

	s.Sched = systask.NewScheduler(systask.Config{
		StackArea:    cfg.StackArea,
		ErrorHandler: s.fail,
		Logger:       log,
	})
	s.Handles = syshandle.NewRegistry(log)
	s.Sched.SetObserver(s.Handles)
	s.log.Debug("init", "stage", "systask")

	if cfg.IPC {
		s.IPC = ipc.New(s.Handles, func() systask.ID { return s.Sched.Active().ID() }, log)
		if err := attachIPC(s.IPC, s.Handles); err != nil {
			return nil, fmt.Errorf("ipc: %w", err)
		}
		s.log.Debug("init", "stage", "ipc")
	}

	if cfg.Console != nil {
		s.Console = cfg.Console
		s.log.Debug("init", "stage", "dbgconsole")
	}

	opts := []sysevent.Option{sysevent.WithLogger(log)}
	if cfg.PollQuantum > 0 {
		opts = append(opts, sysevent.WithQuantum(cfg.PollQuantum))
	}
	s.Events = sysevent.New(s.Handles, s.Sched, s.Clock, opts...)

	s.Syscalls = syscall.New(syscall.Config{
		Scheduler: s.Sched,
		Space:     s.Space,
		Poller:    s.Events,
		Clock:     s.Clock,
		Handles:   s.Handles,
		IPC:       s.IPC,
		Console:   s.Console,
		Storage:   cfg.Storage,
		Assets:    cfg.Assets,
		Logger:    log,
	})
	s.Syscalls.Install()

	s.log.Info("initialized", "ipc", cfg.IPC, "console", cfg.Console != nil, "abi", syscall.ABIVersion)
	return s, nil
}

// Shutdown stops background timer dispatch. The system cannot be
// initialized again in the same process.
func (s *System) Shutdown() {
	s.stop()
}

// Config returns the configuration Init ran with, defaults applied.
func (s *System) Config() Config { return s.cfg }
