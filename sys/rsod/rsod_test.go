package rsod

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"

	"firmcore/hal"
	"firmcore/sys/systask"
	"firmcore/sys/systick"
	"firmcore/sys/systimer"
)

func TestLinesError(t *testing.T) {
	pm := &systask.Postmortem{Reason: systask.ReasonError, Title: "Wipe failed", Message: "Storage locked", Footer: "Restart"}
	got := strings.Join(Lines(pm), "|")
	if got != "Wipe failed|Storage locked||Restart" {
		t.Fatalf("Lines() = %q", got)
	}
}

func TestLinesFatalHidesDetails(t *testing.T) {
	pm := &systask.Postmortem{Reason: systask.ReasonFatal, Message: "secret key mismatch", File: "boot.go", Line: 77}
	got := strings.Join(Lines(pm), "\n")
	if strings.Contains(got, "secret") || strings.Contains(got, "boot.go") {
		t.Fatalf("Lines() leaks details: %q", got)
	}
	if !strings.Contains(got, Code(pm)) {
		t.Fatalf("Lines() = %q, want code %s", got, Code(pm))
	}
	other := *pm
	other.Line = 78
	if Code(&other) == Code(pm) {
		t.Fatalf("Code() does not distinguish failure sites")
	}
}

func TestRenderPaintsScreen(t *testing.T) {
	fb := hal.NewMemFramebuffer(120, 80)
	s := New(fb, Config{})
	pm := &systask.Postmortem{Reason: systask.ReasonExit, ExitCode: 3}
	if err := s.Render(pm); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if fb.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", fb.Frames())
	}
	bg := hal.RGB565(background.R, background.G, background.B)
	if got := fb.Pixel(119, 79); got != bg {
		t.Fatalf("corner pixel = %#04x, want background %#04x", got, bg)
	}
	text := false
	for y := 0; y < 40 && !text; y++ {
		for x := 0; x < 120; x++ {
			if fb.Pixel(x, y) == 0xFFFF {
				text = true
				break
			}
		}
	}
	if !text {
		t.Fatalf("no text drawn")
	}
}

func TestHandlerInfiniteLoopHalts(t *testing.T) {
	var halted, rebooted bool
	s := New(hal.NewMemFramebuffer(64, 64), Config{
		InfiniteLoop: true,
		Halt:         func() { halted = true },
		Reboot:       func() { rebooted = true },
	})
	s.Handler(&systask.Postmortem{Reason: systask.ReasonFault, Message: "boom"})
	if !halted || rebooted {
		t.Fatalf("halted = %v, rebooted = %v, want true, false", halted, rebooted)
	}
}

func TestHandlerRebootsAfterTimer(t *testing.T) {
	pool := systimer.New(systick.NewHostClock(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	rebooted := make(chan struct{})
	s := New(hal.NewMemFramebuffer(64, 64), Config{
		RebootAfter: 5 * time.Millisecond,
		Timers:      pool,
		Reboot:      func() { close(rebooted) },
	})
	go s.Handler(&systask.Postmortem{Reason: systask.ReasonExit})

	select {
	case <-rebooted:
	case <-time.After(2 * time.Second):
		t.Fatalf("Reboot was not called")
	}
}

func TestHandlerLogsTimerFailure(t *testing.T) {
	pool := systimer.New(systick.NewHostClock(), nil)
	for i := 0; i < systimer.MaxTimers; i++ {
		if _, err := pool.Create(func() {}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	var out bytes.Buffer
	rebooted := make(chan struct{})
	s := New(hal.NewMemFramebuffer(64, 64), Config{
		RebootAfter: 5 * time.Millisecond,
		Timers:      pool,
		Reboot:      func() { close(rebooted) },
		Logger:      hclog.New(&hclog.LoggerOptions{Output: &out, Level: hclog.Warn}),
	})
	go s.Handler(&systask.Postmortem{Reason: systask.ReasonExit})

	select {
	case <-rebooted:
	case <-time.After(2 * time.Second):
		t.Fatalf("Reboot was not called")
	}
	if log := out.String(); !strings.Contains(log, systimer.ErrNoTimer.Error()) {
		t.Fatalf("log = %q, want the timer error", log)
	}
}
