package system

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/applet"
	"firmcore/sys/ipc"
	"firmcore/sys/mem"
	"firmcore/sys/syscall"
	"firmcore/sys/sysevent"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

var (
	stackArea = mem.Region{Start: 0x2000_0000, Size: 0x1_0000}
	appStack  = mem.Region{Start: 0x2000_4000, Size: 0x1000}
	appCode   = mem.Region{Start: 0x0810_0000, Size: 0x1000}
	appData   = mem.Region{Start: 0x2003_0000, Size: 0x2000}
)

// syncBuffer is a bytes.Buffer safe for the timer goroutine's logging.
type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func testInit(t *testing.T, cfg Config, handler systask.ErrorHandler) *System {
	t.Helper()
	initialized.Store(false)
	if cfg.StackArea.IsEmpty() {
		cfg.StackArea = stackArea
	}
	if cfg.Halt == nil {
		cfg.Halt = func() {}
	}
	s, err := Init(cfg, handler)
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() {
		s.Shutdown()
		s.Space.Close()
		initialized.Store(false)
	})
	return s
}

func demoImage(entry func(c *syscall.Client) int32) Image {
	return Image{
		Header: applet.Header{Name: "demo", ABI: "1.0.0"},
		Layout: applet.Layout{
			Code: [2]mem.Region{appCode},
			Data: [2]mem.Region{appData},
		},
		Stack: appStack,
		Entry: entry,
	}
}

func TestInitOrder(t *testing.T) {
	var out syncBuffer
	log := hclog.New(&hclog.LoggerOptions{Output: &out, Level: hclog.Debug})
	testInit(t, Config{IPC: true, Console: &bytes.Buffer{}, Logger: log}, nil)

	got := out.String()
	last := -1
	for _, stage := range []string{"systick", "systimer", "systask", "ipc", "dbgconsole"} {
		i := strings.Index(got, "stage="+stage)
		if i < 0 {
			t.Fatalf("stage %s not logged:\n%s", stage, got)
		}
		if i < last {
			t.Fatalf("stage %s out of order:\n%s", stage, got)
		}
		last = i
	}
}

func TestInitOptionalParts(t *testing.T) {
	s := testInit(t, Config{}, nil)
	if s.IPC != nil {
		t.Fatalf("IPC = %v, want nil", s.IPC)
	}
	if s.Console != nil {
		t.Fatalf("Console = %v, want nil", s.Console)
	}
	if s.Sched.Active() != s.Sched.Kernel() {
		t.Fatalf("Active() is not the kernel task")
	}
}

func TestInitTwice(t *testing.T) {
	testInit(t, Config{}, nil)
	if _, err := Init(Config{StackArea: stackArea}, nil); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("Init() error = %v, want %v", err, ErrAlreadyInitialized)
	}
}

func TestInitNoStackArea(t *testing.T) {
	initialized.Store(false)
	if _, err := Init(Config{}, nil); !errors.Is(err, ErrNoStackArea) {
		t.Fatalf("Init() error = %v, want %v", err, ErrNoStackArea)
	}
	if initialized.Load() {
		t.Fatalf("failed Init left the system initialized")
	}
}

func TestInitFailureRollsBack(t *testing.T) {
	initialized.Store(false)
	failed := errors.New("attach failed")
	attachIPC = func(*ipc.IPC, *syshandle.Registry) error { return failed }
	defer func() { attachIPC = (*ipc.IPC).Attach }()

	if _, err := Init(Config{StackArea: stackArea, IPC: true}, nil); !errors.Is(err, failed) {
		t.Fatalf("Init() error = %v, want %v", err, failed)
	}
	if initialized.Load() {
		t.Fatalf("failed Init left the system initialized")
	}
	attachIPC = (*ipc.IPC).Attach
	s := testInit(t, Config{IPC: true}, nil)
	if s.IPC == nil {
		t.Fatalf("IPC = nil after retry")
	}
}

func TestExitErrorRunsHandlerThenHalts(t *testing.T) {
	var seq []string
	var got systask.Postmortem
	s := testInit(t, Config{Halt: func() { seq = append(seq, "halt") }}, func(pm *systask.Postmortem) {
		seq = append(seq, "handler")
		got = *pm
	})

	s.ExitError("Update failed", "Bad image", "Hold power to retry")

	if strings.Join(seq, ",") != "handler,halt" {
		t.Fatalf("sequence = %v, want [handler halt]", seq)
	}
	if got.Reason != systask.ReasonError || got.Title != "Update failed" || got.Footer != "Hold power to retry" {
		t.Fatalf("postmortem = %+v", got)
	}
}

func TestExitFatal(t *testing.T) {
	var got systask.Postmortem
	s := testInit(t, Config{}, func(pm *systask.Postmortem) { got = *pm })
	s.ExitFatal("invariant broken", "boot.go", 12)
	if got.Reason != systask.ReasonFatal || got.File != "boot.go" || got.Line != 12 {
		t.Fatalf("postmortem = %+v", got)
	}
}

func TestEmergencyRescueContainsHandlerPanic(t *testing.T) {
	rebooted := make(chan struct{}, 1)
	halted := false
	s := testInit(t, Config{
		SecureMonitor: true,
		Halt:          func() { halted = true },
		Reboot:        func() { rebooted <- struct{}{} },
	}, func(*systask.Postmortem) { panic("display gone") })

	s.Exit(3)

	select {
	case <-rebooted:
	case <-time.After(time.Second):
		t.Fatalf("Reboot was not called")
	}
	if halted {
		t.Fatalf("Halt called under the secure monitor")
	}
}

func TestRunAppletExit(t *testing.T) {
	var console bytes.Buffer
	s := testInit(t, Config{Console: &console}, nil)

	l, err := s.LoadApplet(demoImage(func(c *syscall.Client) int32 {
		c.Write([]byte("hello"))
		return 7
	}))
	if err != nil {
		t.Fatalf("LoadApplet() error = %v", err)
	}
	pm, err := s.RunApplet(l)
	if err != nil {
		t.Fatalf("RunApplet() error = %v", err)
	}
	if pm.Reason != systask.ReasonExit || pm.ExitCode != 7 {
		t.Fatalf("postmortem = %+v, want exit 7", pm)
	}
	if console.String() != "hello" {
		t.Fatalf("console = %q, want %q", console.String(), "hello")
	}
	if err := s.UnloadApplet(l); err != nil {
		t.Fatalf("UnloadApplet() error = %v", err)
	}
	if s.Space.Mapped(appData.Start, 1) {
		t.Fatalf("data still mapped after unload")
	}
}

func TestRunAppletPollsInKernel(t *testing.T) {
	s := testInit(t, Config{PollQuantum: time.Millisecond}, nil)

	var got sysevent.Events
	l, err := s.LoadApplet(demoImage(func(c *syscall.Client) int32 {
		got = c.Poll(sysevent.Events{Read: syshandle.MaskOf(syshandle.Button)}, c.Timeout(5))
		return 0
	}))
	if err != nil {
		t.Fatalf("LoadApplet() error = %v", err)
	}
	pm, err := s.RunApplet(l)
	if err != nil {
		t.Fatalf("RunApplet() error = %v", err)
	}
	if pm.Reason != systask.ReasonExit {
		t.Fatalf("postmortem = %+v", pm)
	}
	if !got.Empty() {
		t.Fatalf("Poll() = %+v, want empty on timeout", got)
	}
}

func TestRunAppletViolation(t *testing.T) {
	s := testInit(t, Config{}, nil)
	l, err := s.LoadApplet(demoImage(func(c *syscall.Client) int32 {
		f := systask.Frame{Num: uint32(syscall.DbgConsoleWrite)}
		f.Args[0], f.Args[1] = 0x2001_0000, 16
		s.Sched.SVC(&f)
		return 0
	}))
	if err != nil {
		t.Fatalf("LoadApplet() error = %v", err)
	}
	pm, _ := s.RunApplet(l)
	if pm.Reason != systask.ReasonError || pm.Title != syscall.TitleAccessViolation {
		t.Fatalf("postmortem = %+v, want access violation", pm)
	}
}

func TestLoadAppletIncompatible(t *testing.T) {
	s := testInit(t, Config{}, nil)
	img := demoImage(func(*syscall.Client) int32 { return 0 })
	img.Header.ABI = "2.0.0"
	if _, err := s.LoadApplet(img); !errors.Is(err, applet.ErrIncompatibleABI) {
		t.Fatalf("LoadApplet() error = %v, want %v", err, applet.ErrIncompatibleABI)
	}
	if s.Space.Mapped(appCode.Start, 1) {
		t.Fatalf("incompatible image was mapped")
	}
}

func TestLoadAppletNoEntry(t *testing.T) {
	s := testInit(t, Config{}, nil)
	if _, err := s.LoadApplet(demoImage(nil)); !errors.Is(err, ErrNoEntry) {
		t.Fatalf("LoadApplet() error = %v, want %v", err, ErrNoEntry)
	}
}
