//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
)

// ErrReboot is returned by the host runners when the kernel asked for a
// reboot.
var ErrReboot = errors.New("reboot requested")

// HostConfig configures the host HAL.
type HostConfig struct {
	Width, Height int
	// FlashPath is the backing file of the emulated flash.
	FlashPath string
	LogOutput io.Writer
}

func (c *HostConfig) defaults() {
	if c.Width <= 0 {
		c.Width = 240
	}
	if c.Height <= 0 {
		c.Height = 240
	}
	if c.FlashPath == "" {
		c.FlashPath = os.Getenv("FIRMCORE_FLASH_PATH")
	}
	if c.FlashPath == "" {
		c.FlashPath = hostFlashDefaultPath
	}
	if c.LogOutput == nil {
		c.LogOutput = os.Stdout
	}
}

type hostHAL struct {
	logger *hostLogger
	fb     *MemFramebuffer
	kbd    *hostKeyboard
	touch  *hostTouch
	t      *hostTime
	flash  *hostFlash
	power  *hostPower
}

// NewHost returns the host HAL implementation.
func NewHost(cfg HostConfig) HAL {
	cfg.defaults()
	return &hostHAL{
		logger: &hostLogger{w: cfg.LogOutput},
		fb:     NewMemFramebuffer(cfg.Width, cfg.Height),
		kbd:    newHostKeyboard(),
		touch:  newHostTouch(),
		t:      newHostTime(),
		flash:  newHostFlash(cfg.FlashPath),
		power:  newHostPower(),
	}
}

func (h *hostHAL) Logger() Logger   { return h.logger }
func (h *hostHAL) Display() Display { return hostDisplay{fb: h.fb} }
func (h *hostHAL) Input() Input     { return hostInput{kbd: h.kbd, touch: h.touch} }
func (h *hostHAL) Flash() Flash     { return h.flash }
func (h *hostHAL) Time() Time       { return h.t }
func (h *hostHAL) Power() Power     { return h.power }

type hostDisplay struct {
	fb *MemFramebuffer
}

func (d hostDisplay) Framebuffer() Framebuffer { return d.fb }

type hostInput struct {
	kbd   *hostKeyboard
	touch *hostTouch
}

func (in hostInput) Keyboard() Keyboard { return in.kbd }
func (in hostInput) Touch() Touchscreen { return in.touch }

type hostLogger struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *hostLogger) WriteLineString(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.w, s)
}

func (l *hostLogger) WriteLineBytes(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.w.Write(b)
	l.w.Write([]byte{'\n'})
}

// hostPower parks the calling goroutine until the runner shuts down.
type hostPower struct {
	once     sync.Once
	stopped  chan struct{}
	mu       sync.Mutex
	rebooted bool
}

func newHostPower() *hostPower {
	return &hostPower{stopped: make(chan struct{})}
}

func (p *hostPower) Halt() {
	<-p.stopped
	runtime.Goexit()
}

func (p *hostPower) Reboot() {
	p.mu.Lock()
	p.rebooted = true
	p.mu.Unlock()
	runtime.Goexit()
}

func (p *hostPower) stop() {
	p.once.Do(func() { close(p.stopped) })
}

func (p *hostPower) rebootRequested() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rebooted
}
