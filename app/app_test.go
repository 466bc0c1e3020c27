package app

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"firmcore/hal"
	"firmcore/sys/rsod"
	"firmcore/sys/systask"
)

type memFlash struct {
	mu  sync.Mutex
	mem []byte
}

func newMemFlash(size int) *memFlash {
	f := &memFlash{mem: make([]byte, size)}
	for i := range f.mem {
		f.mem[i] = 0xFF
	}
	return f
}

func (f *memFlash) SizeBytes() uint32       { return uint32(len(f.mem)) }
func (f *memFlash) EraseBlockBytes() uint32 { return 4096 }

func (f *memFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(p, f.mem[off:]), nil
}

func (f *memFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copy(f.mem[off:], p), nil
}

func (f *memFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := off; i < off+size; i++ {
		f.mem[i] = 0xFF
	}
	return nil
}

type lines struct {
	mu sync.Mutex
	l  []string
}

func (r *lines) WriteLineString(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.l = append(r.l, s)
}

func (r *lines) WriteLineBytes(b []byte) { r.WriteLineString(string(b)) }

func (r *lines) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.l, "\n")
}

type ticker struct{ ch chan uint64 }

func newTicker(ctx context.Context) *ticker {
	t := &ticker{ch: make(chan uint64, 16)}
	go func() {
		tk := time.NewTicker(time.Millisecond)
		defer tk.Stop()
		var seq uint64
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				seq++
				select {
				case t.ch <- seq:
				default:
				}
			}
		}
	}()
	return t
}

func (t *ticker) Ticks() <-chan uint64 { return t.ch }

type testPower struct {
	halted chan struct{}
}

func (p *testPower) Halt() {
	close(p.halted)
	runtime.Goexit()
}

func (p *testPower) Reboot() { p.Halt() }

type testHAL struct {
	log   *lines
	fb    *hal.MemFramebuffer
	keys  chan hal.KeyEvent
	flash *memFlash
	t     *ticker
	power *testPower
}

func (h *testHAL) Logger() hal.Logger   { return h.log }
func (h *testHAL) Display() hal.Display { return h }
func (h *testHAL) Input() hal.Input     { return h }
func (h *testHAL) Flash() hal.Flash     { return h.flash }
func (h *testHAL) Time() hal.Time       { return h.t }
func (h *testHAL) Power() hal.Power     { return h.power }

func (h *testHAL) Framebuffer() hal.Framebuffer { return h.fb }
func (h *testHAL) Keyboard() hal.Keyboard       { return h }
func (h *testHAL) Touch() hal.Touchscreen       { return nil }

func (h *testHAL) Events() <-chan hal.KeyEvent { return h.keys }

func TestRunDemoToRSOD(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &testHAL{
		log:   &lines{},
		fb:    hal.NewMemFramebuffer(160, 120),
		keys:  make(chan hal.KeyEvent, 4),
		flash: newMemFlash(64 * 1024),
		t:     newTicker(ctx),
		power: &testPower{halted: make(chan struct{})},
	}
	h.keys <- hal.KeyEvent{Code: hal.KeyButton, Press: true}

	cfg := DefaultConfig()
	cfg.DemoDuration = 200
	cfg.RSODForever = true
	cfg.MPU = true
	go Run(ctx, h, cfg)

	select {
	case <-h.power.halted:
	case <-time.After(10 * time.Second):
		t.Fatalf("system did not halt; log:\n%s", h.log.String())
	}

	log := h.log.String()
	for _, want := range []string{"storage unlocked", "button 1 pressed=true", "demo done"} {
		if !strings.Contains(log, want) {
			t.Fatalf("log missing %q:\n%s", want, log)
		}
	}
	bg := h.fb.Pixel(h.fb.Width()-1, h.fb.Height()-1)
	if want := rsodBackground(); bg != want {
		t.Fatalf("corner pixel = %#04x, want RSOD background %#04x", bg, want)
	}
}

func rsodBackground() uint16 {
	fb := hal.NewMemFramebuffer(4, 4)
	rsod.New(fb, rsod.Config{}).Render(&systask.Postmortem{Reason: systask.ReasonExit})
	return fb.Pixel(3, 3)
}
