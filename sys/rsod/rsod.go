// Package rsod renders the red screen of death for a terminated kernel and
// decides what happens after it.
package rsod

import (
	"fmt"
	"hash/crc32"
	"image/color"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"tinygo.org/x/tinyfont"
	"tinygo.org/x/tinyfont/proggy"

	"firmcore/hal"
	"firmcore/sys/systask"
	"firmcore/sys/systimer"
)

// DefaultRebootAfter is how long the screen stays up before a reboot when
// InfiniteLoop is off.
const DefaultRebootAfter = 10 * time.Second

var (
	background = color.RGBA{R: 0xC0, G: 0x10, B: 0x10, A: 0xFF}
	foreground = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
)

type Config struct {
	// InfiniteLoop keeps the screen up until power off.
	InfiniteLoop bool
	RebootAfter  time.Duration
	// Timers arms the reboot timeout. Without a pool a plain timer is
	// used.
	Timers *systimer.Pool

	Halt   func()
	Reboot func()
	Logger hclog.Logger
}

type Screen struct {
	fb   hal.Framebuffer
	disp *hal.FBDisplay
	font *tinyfont.Font
	cfg  Config
	log  hclog.Logger
}

func New(fb hal.Framebuffer, cfg Config) *Screen {
	if cfg.RebootAfter <= 0 {
		cfg.RebootAfter = DefaultRebootAfter
	}
	if cfg.Halt == nil {
		cfg.Halt = func() { select {} }
	}
	if cfg.Reboot == nil {
		cfg.Reboot = cfg.Halt
	}
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Screen{
		fb:   fb,
		disp: hal.NewFBDisplay(fb),
		font: &proggy.TinySZ8pt7b,
		cfg:  cfg,
		log:  log.Named("rsod"),
	}
}

// UseTimers arms later reboot timeouts from p. The pool usually exists only
// after the screen has been handed to the kernel as its error handler.
func (s *Screen) UseTimers(p *systimer.Pool) {
	s.cfg.Timers = p
}

// Code is the short identifier shown instead of details for fatal errors
// and faults, so the screen reveals nothing about the failure site.
func Code(pm *systask.Postmortem) string {
	sum := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s\x00%s\x00%d", pm.Message, pm.File, pm.Line)))
	return fmt.Sprintf("%08X", sum)
}

// Lines is the text shown for pm, title first.
func Lines(pm *systask.Postmortem) []string {
	switch pm.Reason {
	case systask.ReasonExit:
		return []string{"SYSTEM EXIT", fmt.Sprintf("Exit code: %d", pm.ExitCode)}
	case systask.ReasonError:
		lines := []string{pm.Title}
		if pm.Message != "" {
			lines = append(lines, pm.Message)
		}
		if pm.Footer != "" {
			lines = append(lines, "", pm.Footer)
		}
		return lines
	case systask.ReasonFatal, systask.ReasonFault:
		return []string{"INTERNAL ERROR", "Code: " + Code(pm), "", "Please contact support."}
	default:
		return []string{"SYSTEM HALTED"}
	}
}

// Render draws pm and presents the frame.
func (s *Screen) Render(pm *systask.Postmortem) error {
	if s.fb == nil {
		return nil
	}
	s.fb.ClearRGB(background.R, background.G, background.B)

	lineHeight := int16(s.font.YAdvance)
	_, advance := tinyfont.LineWidth(s.font, "0")
	if lineHeight <= 0 || advance == 0 {
		return s.disp.Display()
	}
	const margin = 4
	cols := (int16(s.fb.Width()) - 2*margin) / int16(advance)
	if cols <= 0 {
		cols = 1
	}

	y := int16(margin) + lineHeight
	maxY := int16(s.fb.Height()) - margin
	for _, line := range Lines(pm) {
		if line == "" {
			y += lineHeight
			continue
		}
		for len(line) > 0 && y <= maxY {
			chunk, rest := takeRunes(line, cols)
			tinyfont.WriteLine(s.disp, s.font, margin, y, chunk, foreground)
			y += lineHeight
			line = strings.TrimLeft(rest, " ")
		}
	}
	return s.disp.Display()
}

// Handler renders the postmortem, logs the details the screen leaves out,
// and then halts or reboots. It does not return.
func (s *Screen) Handler(pm *systask.Postmortem) {
	s.log.Error("system halted", "reason", pm.Reason, "detail", pm.String())
	if len(pm.Stack) > 0 {
		s.log.Debug("stack", "trace", string(pm.Stack))
	}
	if err := s.Render(pm); err != nil {
		s.log.Warn("render failed", "error", err)
	}
	if s.cfg.InfiniteLoop {
		s.cfg.Halt()
		return
	}
	s.waitReboot()
	s.cfg.Reboot()
}

func (s *Screen) waitReboot() {
	fired := make(chan struct{}, 1)
	if s.cfg.Timers != nil {
		t, err := s.cfg.Timers.Create(func() {
			select {
			case fired <- struct{}{}:
			default:
			}
		})
		if err == nil {
			defer t.Delete()
			if err = t.Set(uint32(s.cfg.RebootAfter / time.Millisecond)); err == nil {
				<-fired
				return
			}
		}
		s.log.Warn("no reboot timer, using wall clock", "error", err)
	}
	<-time.After(s.cfg.RebootAfter)
}

func takeRunes(s string, n int16) (prefix, rest string) {
	if n <= 0 || s == "" {
		return "", s
	}
	i := 0
	for count := int16(0); i < len(s) && count < n; count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return s[:i], s[i:]
}
