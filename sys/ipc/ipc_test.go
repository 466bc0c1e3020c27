package ipc

import (
	"bytes"
	"errors"
	"testing"

	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

// harness switches the calling task identity by hand.
type harness struct {
	ipc *IPC
	reg *syshandle.Registry
	cur systask.ID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{reg: syshandle.NewRegistry(nil)}
	h.ipc = New(h.reg, func() systask.ID { return h.cur }, nil)
	if err := h.ipc.Attach(h.reg); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	return h
}

func (h *harness) as(id systask.ID) *IPC {
	h.cur = id
	return h.ipc
}

func TestThreeFitFourthAfterFree(t *testing.T) {
	h := newHarness(t)
	const t1, t2 = systask.ID(1), systask.ID(2)

	if err := h.as(t1).Register(t2, make([]byte, 256)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	payload := bytes.Repeat([]byte{0x5a}, 64)
	for i := 0; i < 3; i++ {
		if err := h.as(t2).Send(t1, uint32(i), payload); err != nil {
			t.Fatalf("Send() #%d error = %v", i, err)
		}
	}
	if err := h.as(t2).Send(t1, 3, payload); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Send() #3 error = %v, want ErrNoSpace", err)
	}

	msg, ok := h.as(t1).TryReceive(t2)
	if !ok {
		t.Fatalf("TryReceive() ok = false, want true")
	}
	if msg.Fn != 0 || msg.Remote != t2 || !bytes.Equal(msg.Data, payload) {
		t.Fatalf("TryReceive() = fn %d remote %d len %d", msg.Fn, msg.Remote, len(msg.Data))
	}
	if err := h.as(t1).Free(msg); err != nil {
		t.Fatalf("Free() error = %v", err)
	}
	if err := h.as(t2).Send(t1, 3, payload); err != nil {
		t.Fatalf("Send() after Free error = %v", err)
	}

	for want := uint32(1); want <= 3; want++ {
		msg, ok := h.as(t1).TryReceive(t2)
		if !ok || msg.Fn != want {
			t.Fatalf("TryReceive() = %d, %v, want %d, true", msg.Fn, ok, want)
		}
		if want == 3 && msg.Offset() != 0 {
			t.Fatalf("wrapped message offset = %d, want 0", msg.Offset())
		}
		h.as(t1).Free(msg)
	}
	if _, ok := h.as(t1).TryReceive(t2); ok {
		t.Fatalf("TryReceive() on drained buffer ok = true")
	}
}

func TestCapacityAccounting(t *testing.T) {
	const capacity = 128
	sizes := []int{0, 1, 4, 13, 40}
	// Framed: 8, 12, 12, 24, 48 = 104; 24 bytes left.
	h := newHarness(t)
	h.as(1).Register(2, make([]byte, capacity))

	used := 0
	for _, n := range sizes {
		if err := h.as(2).Send(1, 0, make([]byte, n)); err != nil {
			t.Fatalf("Send(%d) error = %v", n, err)
		}
		used += int(framedSize(n))
	}
	if used != 104 {
		t.Fatalf("framed total = %d, want 104", used)
	}
	if err := h.as(2).Send(1, 0, make([]byte, 16)); err != nil {
		t.Fatalf("Send(16) filling buffer error = %v", err)
	}
	if err := h.as(2).Send(1, 0, nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Send() on full buffer error = %v, want ErrNoSpace", err)
	}

	// Free the first two messages: 8 + 12 = 20 bytes reclaimed.
	for i := 0; i < 2; i++ {
		msg, _ := h.as(1).TryReceive(2)
		h.as(1).Free(msg)
	}
	if err := h.as(2).Send(1, 0, make([]byte, 12)); err != nil {
		t.Fatalf("Send(12) into reclaimed space error = %v", err)
	}
	if err := h.as(2).Send(1, 0, nil); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Send() past reclaimed space error = %v, want ErrNoSpace", err)
	}
}

func TestOutOfOrderFree(t *testing.T) {
	h := newHarness(t)
	h.as(1).Register(2, make([]byte, 64))
	for i := 0; i < 2; i++ {
		h.as(2).Send(1, uint32(i), make([]byte, 16))
	}
	a, _ := h.as(1).TryReceive(2)
	b, _ := h.as(1).TryReceive(2)

	if err := h.as(1).Free(b); err != nil {
		t.Fatalf("Free(b) error = %v", err)
	}
	if err := h.as(1).Free(b); !errors.Is(err, ErrNotReceived) {
		t.Fatalf("double Free() error = %v, want ErrNotReceived", err)
	}
	if err := h.as(2).Send(1, 2, make([]byte, 24)); !errors.Is(err, ErrNoSpace) {
		t.Fatalf("Send() before prefix freed error = %v, want ErrNoSpace", err)
	}
	h.as(1).Free(a)
	if err := h.as(2).Send(1, 2, make([]byte, 56)); err != nil {
		t.Fatalf("Send() after all freed error = %v", err)
	}
}

func TestSendFailures(t *testing.T) {
	h := newHarness(t)
	if err := h.as(2).Send(1, 0, nil); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("Send() unregistered error = %v, want ErrNoBuffer", err)
	}
	h.as(1).Register(2, make([]byte, 32))
	if err := h.as(2).Send(1, 0, make([]byte, 25)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("Send(25) error = %v, want ErrTooLarge", err)
	}
	if err := h.as(3).Send(1, 0, nil); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("Send() from other task error = %v, want ErrNoBuffer", err)
	}
	if err := h.as(2).Send(systask.MaxTasks, 0, nil); !errors.Is(err, ErrInvalidRemote) {
		t.Fatalf("Send(invalid) error = %v, want ErrInvalidRemote", err)
	}
}

func TestRegisterWhilePending(t *testing.T) {
	h := newHarness(t)
	if err := h.as(1).Register(2, make([]byte, 30)); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("Register(30 bytes) error = %v, want ErrMisaligned", err)
	}
	h.as(1).Register(2, make([]byte, 64))
	h.as(2).Send(1, 7, []byte{1, 2, 3})

	if err := h.as(1).Register(2, make([]byte, 128)); !errors.Is(err, ErrPending) {
		t.Fatalf("Register() with pending error = %v, want ErrPending", err)
	}
	if err := h.as(1).Unregister(2); !errors.Is(err, ErrPending) {
		t.Fatalf("Unregister() with pending error = %v, want ErrPending", err)
	}
	msg, _ := h.as(1).TryReceive(2)
	if msg.Fn != 7 || !bytes.Equal(msg.Data, []byte{1, 2, 3}) {
		t.Fatalf("pending message lost: fn %d data %v", msg.Fn, msg.Data)
	}
	if err := h.as(1).Register(2, make([]byte, 128)); !errors.Is(err, ErrPending) {
		t.Fatalf("Register() with unfreed message error = %v, want ErrPending", err)
	}
	h.as(1).Free(msg)
	if err := h.as(1).Register(2, make([]byte, 128)); err != nil {
		t.Fatalf("Register() after Free error = %v", err)
	}
	if err := h.as(1).Unregister(2); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
}

func TestReadinessPerTask(t *testing.T) {
	h := newHarness(t)
	h.as(1).Register(2, make([]byte, 64))
	h.as(3).Register(2, make([]byte, 64))
	h.as(2).Send(1, 0, nil)

	awaited := syshandle.Bit(syshandle.IPC(2))
	if got := h.reg.ReadReady(1, awaited); got != awaited {
		t.Fatalf("ReadReady(task 1) = %v, want %v", got, awaited)
	}
	if got := h.reg.ReadReady(3, awaited); got != 0 {
		t.Fatalf("ReadReady(task 3) = %v, want none", got)
	}
	h.as(1).TryReceive(2)
	if got := h.reg.ReadReady(1, awaited); got != 0 {
		t.Fatalf("ReadReady() after receive = %v, want none", got)
	}
}

func TestTaskKilledDropsBuffers(t *testing.T) {
	h := newHarness(t)
	h.as(1).Register(2, make([]byte, 64))
	h.as(2).Send(1, 0, nil)

	h.reg.TaskKilled(1)
	if err := h.as(2).Send(1, 0, nil); !errors.Is(err, ErrNoBuffer) {
		t.Fatalf("Send() to dead task error = %v, want ErrNoBuffer", err)
	}
}
