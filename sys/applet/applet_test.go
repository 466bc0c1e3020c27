package applet

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"firmcore/sys/mem"
	"firmcore/sys/mpu"
	"firmcore/sys/mpu/mpumock"
	"firmcore/sys/systask"
)

var (
	stackArea = mem.Region{Start: 0x2000_0000, Size: 0x10000}
	assets    = mem.Region{Start: 0x0820_0000, Size: 0x4_0000}
	layout    = Layout{
		Code: [2]mem.Region{{Start: 0x0810_0000, Size: 0x1_0000}},
		Data: [2]mem.Region{{Start: 0x2003_0000, Size: 0x8000}},
	}
	stack = mem.Region{Start: 0x2000_4000, Size: 0x1000}
)

func within(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out")
	}
}

// yielder parks in the kernel forever.
func yielder(sched *systask.Scheduler) systask.Entrypoint {
	return func(a0, a1, a2 uint32) int32 {
		for {
			sched.YieldTo(sched.Kernel())
		}
	}
}

func newHardwareApplet(t *testing.T, priv Privileges) (*Applet, *systask.Scheduler, *mpu.Simulated, *Hardware) {
	t.Helper()
	sched := systask.NewScheduler(systask.Config{StackArea: stackArea})
	sim := mpu.NewSimulated()
	hw := NewHardware(sim, assets)
	a := New(sched, hw)
	a.Init(layout, priv, Header{Name: "test", ABI: "1.0.0"})
	if err := a.CreateTask(stack, yielder(sched), 0, 0, 0); err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	return a, sched, sim, hw
}

func TestRunThenUnloadWithoutStop(t *testing.T) {
	a, sched, sim, hw := newHardwareApplet(t, Privileges{AssetsAreaAccess: true})
	task := a.Task()

	within(t, func() {
		if err := a.Run(); err != nil {
			t.Errorf("Run() error = %v", err)
		}
	})
	if !hw.IsOpen(a) || sim.OpenSlots() != 4 {
		t.Fatalf("after Run: open=%v slots=%d, want true, 4", hw.IsOpen(a), sim.OpenSlots())
	}

	within(t, func() {
		if err := a.Unload(); err != nil {
			t.Errorf("Unload() error = %v", err)
		}
	})
	if sched.IsAlive(task) {
		t.Fatalf("task alive after Unload")
	}
	if n := sim.OpenSlots(); n != 0 {
		t.Fatalf("OpenSlots() after Unload = %d, want 0", n)
	}
	if err := a.Run(); !errors.Is(err, ErrUnloaded) {
		t.Fatalf("Run() after Unload error = %v, want ErrUnloaded", err)
	}
	if a.IsAlive() {
		t.Fatalf("IsAlive() after Unload = true")
	}
	if sched.Task(task.ID()) != nil {
		t.Fatalf("task id %d not released", task.ID())
	}
}

func TestRunTwiceOpensOnce(t *testing.T) {
	a, _, sim, hw := newHardwareApplet(t, Privileges{})

	within(t, func() {
		a.Run()
		a.Run()
	})
	opens, closes := sim.Transitions()
	if opens != 3 || closes != 0 {
		t.Fatalf("Transitions() = %d, %d, want 3, 0", opens, closes)
	}
	if sim.Unprivileged(assets.Start) {
		t.Fatalf("assets unprivileged without privilege")
	}

	a.Stop()
	a.Stop()
	if hw.IsOpen(a) || sim.OpenSlots() != 0 {
		t.Fatalf("after Stop: open=%v slots=%d", hw.IsOpen(a), sim.OpenSlots())
	}
	if _, closes := sim.Transitions(); closes != 3 {
		t.Fatalf("closes = %d, want 3", closes)
	}
	within(t, func() { a.Unload() })
}

func TestWindowOpenedBeforeSwitch(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mpumock.NewMockController(ctrl)
	sched := systask.NewScheduler(systask.Config{StackArea: stackArea})
	a := New(sched, NewHardware(m, assets))
	a.Init(layout, Privileges{}, Header{})

	opened := 0
	m.EXPECT().SetUnprivileged(gomock.Any(), gomock.Any()).DoAndReturn(func(mpu.Slot, mem.Region) error {
		opened++
		return nil
	}).Times(3)
	m.EXPECT().SetPrivileged(gomock.Any()).Return(nil).Times(3)

	openedAtEntry := -1
	a.CreateTask(stack, func(a0, a1, a2 uint32) int32 {
		openedAtEntry = opened
		return 0
	}, 0, 0, 0)

	within(t, func() { a.Run() })
	if openedAtEntry != 3 {
		t.Fatalf("regions opened at first instruction = %d, want 3", openedAtEntry)
	}
	within(t, func() { a.Unload() })
}

func TestRunFailsWhenOpenFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mpumock.NewMockController(ctrl)
	sched := systask.NewScheduler(systask.Config{StackArea: stackArea})
	a := New(sched, NewHardware(m, assets))
	a.Init(layout, Privileges{}, Header{})
	ran := false
	a.CreateTask(stack, func(a0, a1, a2 uint32) int32 { ran = true; return 0 }, 0, 0, 0)

	boom := errors.New("mpu")
	m.EXPECT().SetUnprivileged(mpu.SlotCode0, layout.Code[0]).Return(boom)

	if err := a.Run(); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
	if ran {
		t.Fatalf("task ran with a failed window")
	}
}

func TestEmulatorRunIsPureSwitch(t *testing.T) {
	sched := systask.NewScheduler(systask.Config{StackArea: stackArea})
	emu := NewEmulator()
	a := New(sched, emu)
	a.Init(layout, Privileges{}, Header{})
	a.CreateTask(stack, func(a0, a1, a2 uint32) int32 { return int32(a0) }, 9, 0, 0)

	within(t, func() { a.Run() })
	if a.IsAlive() {
		t.Fatalf("IsAlive() after return = true")
	}
	if pm := a.Postmortem(); pm.ExitCode != 9 {
		t.Fatalf("ExitCode = %d, want 9", pm.ExitCode)
	}
	if err := a.Run(); !errors.Is(err, ErrDead) {
		t.Fatalf("Run() on dead applet error = %v, want ErrDead", err)
	}
	if err := a.Unload(); err != nil {
		t.Fatalf("Unload() error = %v", err)
	}
	if emu.Loaded(a) {
		t.Fatalf("library still held after Unload")
	}
}

func TestActive(t *testing.T) {
	sched := systask.NewScheduler(systask.Config{StackArea: stackArea})
	a := New(sched, NewEmulator())
	a.Init(layout, Privileges{}, Header{})

	var seen *Applet
	a.CreateTask(stack, func(a0, a1, a2 uint32) int32 {
		seen = Active(sched)
		return 0
	}, 0, 0, 0)
	if Active(sched) != nil {
		t.Fatalf("Active() in kernel = non-nil")
	}
	within(t, func() { a.Run() })
	if seen != a {
		t.Fatalf("Active() inside applet = %p, want %p", seen, a)
	}
}

func TestGrants(t *testing.T) {
	a, _, _, _ := newHardwareApplet(t, Privileges{AssetsAreaAccess: true})
	g := a.Grants(assets)

	if !g.ProbeExecute(layout.Code[0].Start) {
		t.Fatalf("code not executable")
	}
	if g.ProbeWrite(layout.Code[0].Start, 4) {
		t.Fatalf("code writable")
	}
	if !g.ProbeWrite(stack.Start, stack.Size) {
		t.Fatalf("stack not writable")
	}
	if !g.ProbeRead(assets.Start, 16) || g.ProbeWrite(assets.Start, 16) {
		t.Fatalf("assets access wrong")
	}
	b, _, _, _ := newHardwareApplet(t, Privileges{})
	if b.Grants(assets).ProbeRead(assets.Start, 1) {
		t.Fatalf("assets readable without privilege")
	}
}

func TestVerifyHeader(t *testing.T) {
	cases := []struct {
		applet, kernel string
		ok             bool
	}{
		{"1.2.0", "1.2.0", true},
		{"1.2.0", "1.4.1", true},
		{"1.4.0", "1.2.0", false},
		{"1.0.0", "2.0.0", false},
	}
	for _, c := range cases {
		err := VerifyHeader(Header{Name: "x", ABI: c.applet}, c.kernel)
		if (err == nil) != c.ok {
			t.Fatalf("VerifyHeader(%s on %s) error = %v, want ok=%v", c.applet, c.kernel, err, c.ok)
		}
		if !c.ok && !errors.Is(err, ErrIncompatibleABI) {
			t.Fatalf("VerifyHeader() error = %v, want ErrIncompatibleABI", err)
		}
	}
	if err := VerifyHeader(Header{ABI: "not-a-version"}, "1.0.0"); err == nil {
		t.Fatalf("VerifyHeader(garbage) error = nil")
	}
}

func TestInitRefusedWhileTaskHeld(t *testing.T) {
	a, sched, _, _ := newHardwareApplet(t, Privileges{})
	task := a.Task()

	if err := a.Init(layout, Privileges{}, Header{Name: "other"}); !errors.Is(err, ErrTaskExists) {
		t.Fatalf("Init() error = %v, want %v", err, ErrTaskExists)
	}
	if a.Task() != task || !sched.IsAlive(task) {
		t.Fatalf("Init() dropped the live task")
	}
	if a.Header().Name != "test" {
		t.Fatalf("Header().Name = %q, want %q", a.Header().Name, "test")
	}

	within(t, func() { a.Unload() })
	if err := a.Init(layout, Privileges{}, Header{Name: "other"}); err != nil {
		t.Fatalf("Init() after Unload error = %v", err)
	}
}
