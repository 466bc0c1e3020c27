package button

import (
	"context"
	"testing"
	"time"

	"firmcore/hal"
	"firmcore/sys/syshandle"
)

func TestPollQueuesHALEvents(t *testing.T) {
	reg := syshandle.NewRegistry(nil)
	src := make(chan hal.KeyEvent, 4)
	d := New(reg, src, nil)
	if err := d.Attach(); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	awaited := syshandle.MaskOf(syshandle.Button)

	if got := reg.ReadReady(1, awaited); got != 0 {
		t.Fatalf("ReadReady() = %v before any event", got)
	}
	src <- hal.KeyEvent{Code: hal.KeyButton, Press: true}
	src <- hal.KeyEvent{Code: hal.KeyButton, Press: false}
	reg.PollAll(awaited, 0)
	if got := reg.ReadReady(1, awaited); got != awaited {
		t.Fatalf("ReadReady() = %v, want %v", got, awaited)
	}

	buf := make([]byte, 3*EventSize)
	n, err := reg.Read(syshandle.Button, 1, buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	evs := Decode(buf[:n])
	if len(evs) != 2 || !evs[0].Pressed || evs[1].Pressed || evs[0].Key != hal.KeyButton {
		t.Fatalf("Decode() = %+v", evs)
	}
	if got := reg.ReadReady(1, awaited); got != 0 {
		t.Fatalf("ReadReady() = %v after draining", got)
	}
}

func TestReadWholeRecordsOnly(t *testing.T) {
	d := New(syshandle.NewRegistry(nil), nil, nil)
	d.Push(Event{Key: hal.KeyButton, Pressed: true})
	if n := d.Read(1, make([]byte, EventSize-1)); n != 0 {
		t.Fatalf("Read() = %d, want 0 for a short buffer", n)
	}
	if _, ok := d.Next(); !ok {
		t.Fatalf("event lost by a short read")
	}
}

func TestRunSignals(t *testing.T) {
	reg := syshandle.NewRegistry(nil)
	src := make(chan hal.KeyEvent)
	d := New(reg, src, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	src <- hal.KeyEvent{Code: hal.KeyPower, Press: true}
	select {
	case <-reg.Woken():
	case <-time.After(time.Second):
		t.Fatalf("Run did not wake the registry")
	}
	ev, ok := d.Next()
	if !ok || ev.Key != hal.KeyPower {
		t.Fatalf("Next() = %+v, %v", ev, ok)
	}
}
