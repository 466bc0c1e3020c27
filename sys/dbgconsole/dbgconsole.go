// Package dbgconsole is the debug console applets write to. Output goes to
// a terminal on the framebuffer and, a line at a time, to the log.
package dbgconsole

import (
	"bytes"
	"sync"

	"github.com/hashicorp/go-hclog"
	"tinygo.org/x/tinyfont/proggy"
	"tinygo.org/x/tinyterm"

	"firmcore/hal"
)

// maxLine bounds a line held back for the log while waiting for its
// newline.
const maxLine = 256

type Console struct {
	mu sync.Mutex

	fb   hal.Framebuffer
	disp *hal.FBDisplay
	term *tinyterm.Terminal
	cfg  tinyterm.Config
	rows int
	row  int

	pending []byte
	log     hclog.Logger
}

// New returns a console drawing on fb. A nil fb gives a log-only console.
func New(fb hal.Framebuffer, log hclog.Logger) *Console {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	c := &Console{fb: fb, log: log.Named("console")}
	if fb == nil || fb.Width() == 0 || fb.Height() == 0 {
		return c
	}

	font := &proggy.TinySZ8pt7b
	c.cfg = tinyterm.Config{
		Font:       font,
		FontHeight: int16(font.YAdvance),
		FontOffset: int16(font.YAdvance) * 3 / 4,
	}
	c.disp = hal.NewFBDisplay(fb)
	c.term = tinyterm.NewTerminal(c.disp)
	c.rows = fb.Height() / int(c.cfg.FontHeight)
	c.reset()
	return c
}

// reset blanks the screen and restarts output at the top.
func (c *Console) reset() {
	c.fb.ClearRGB(0, 0, 0)
	c.term.Configure(&c.cfg)
	c.row = 0
}

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.term != nil {
		c.draw(p)
	}
	c.mirror(p)
	return len(p), nil
}

// draw writes p to the terminal line by line, starting over at the top
// when the screen is full.
func (c *Console) draw(p []byte) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			c.term.Write(p)
			break
		}
		if c.row >= c.rows-1 {
			c.reset()
		}
		c.term.Write(p[:i+1])
		c.row++
		p = p[i+1:]
	}
	if err := c.disp.Display(); err != nil {
		c.log.Trace("present failed", "error", err)
	}
}

func (c *Console) mirror(p []byte) {
	for len(p) > 0 {
		i := bytes.IndexByte(p, '\n')
		if i < 0 {
			c.pending = append(c.pending, p...)
			if len(c.pending) >= maxLine {
				c.flushLocked()
			}
			return
		}
		c.pending = append(c.pending, p[:i]...)
		c.flushLocked()
		p = p[i+1:]
	}
}

func (c *Console) flushLocked() {
	line := bytes.TrimRight(c.pending, "\r")
	c.log.Info(string(line))
	c.pending = c.pending[:0]
}

// Flush logs a pending partial line.
func (c *Console) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) > 0 {
		c.flushLocked()
	}
}
