//go:build tinygo && baremetal

package hal

import (
	"machine"
	"time"

	"tinygo.org/x/drivers/st7789"
)

// Board wiring: UART0 on GP0/GP1 at 115200 8N1, ST7789 panel on SPI1, the
// user button on GP20 (active low).
const (
	panelWidth  = 240
	panelHeight = 240
)

type tinyGoHAL struct {
	logger *uartLogger
	fb     *MemFramebuffer
	kbd    *pinKeyboard
	touch  noTouch
	t      *tinyGoTime
	power  tinyGoPower
}

// New returns the board HAL.
func New() HAL {
	uart := machine.UART0
	uart.Configure(machine.UARTConfig{
		BaudRate: 115200,
		TX:       machine.GP0,
		RX:       machine.GP1,
	})

	fb := NewMemFramebuffer(panelWidth, panelHeight)
	if panel, ok := newPanel(); ok {
		fb.present = panel.present
	}
	return &tinyGoHAL{
		logger: &uartLogger{uart: uart},
		fb:     fb,
		kbd:    newPinKeyboard(machine.GP20),
		t:      newTinyGoTime(),
	}
}

func (h *tinyGoHAL) Logger() Logger   { return h.logger }
func (h *tinyGoHAL) Display() Display { return tinyGoDisplay{fb: h.fb} }
func (h *tinyGoHAL) Input() Input     { return tinyGoInput{kbd: h.kbd} }
func (h *tinyGoHAL) Flash() Flash     { return noFlash{} }
func (h *tinyGoHAL) Time() Time       { return h.t }
func (h *tinyGoHAL) Power() Power     { return h.power }

type tinyGoDisplay struct {
	fb Framebuffer
}

func (d tinyGoDisplay) Framebuffer() Framebuffer { return d.fb }

type tinyGoInput struct {
	kbd *pinKeyboard
}

func (in tinyGoInput) Keyboard() Keyboard { return in.kbd }
func (in tinyGoInput) Touch() Touchscreen { return noTouch{} }

type panel struct {
	dev *st7789.Device
	row []byte
}

func newPanel() (*panel, bool) {
	if err := machine.SPI1.Configure(machine.SPIConfig{
		SCK:       machine.GP10,
		SDO:       machine.GP11,
		Frequency: 40_000_000,
		Mode:      3,
	}); err != nil {
		return nil, false
	}
	dev := st7789.New(machine.SPI1, machine.GP12, machine.GP8, machine.GP9, machine.GP13)
	dev.Configure(st7789.Config{Width: panelWidth, Height: panelHeight})
	return &panel{dev: &dev, row: make([]byte, panelWidth*2)}, true
}

// present streams the framebuffer row by row, swapping to the panel's
// big-endian RGB565 order.
func (p *panel) present(buf []byte, width, height int) error {
	stride := width * 2
	for y := 0; y < height; y++ {
		src := buf[y*stride : (y+1)*stride]
		for i := 0; i+1 < len(src); i += 2 {
			p.row[i], p.row[i+1] = src[i+1], src[i]
		}
		if err := p.dev.DrawRGBBitmap8(0, int16(y), p.row, int16(width), 1); err != nil {
			return err
		}
	}
	return nil
}

type pinKeyboard struct {
	ch  chan KeyEvent
	pin machine.Pin
}

// newPinKeyboard samples pin every 5ms, which also debounces it.
func newPinKeyboard(pin machine.Pin) *pinKeyboard {
	pin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	k := &pinKeyboard{ch: make(chan KeyEvent, 8), pin: pin}
	go func() {
		pressed := false
		for {
			time.Sleep(5 * time.Millisecond)
			now := !k.pin.Get()
			if now == pressed {
				continue
			}
			pressed = now
			select {
			case k.ch <- KeyEvent{Code: KeyButton, Press: now}:
			default:
			}
		}
	}()
	return k
}

func (k *pinKeyboard) Events() <-chan KeyEvent { return k.ch }

type noTouch struct{}

func (noTouch) Events() <-chan TouchEvent { return nil }

type tinyGoTime struct {
	ch  chan uint64
	seq uint64
}

func newTinyGoTime() *tinyGoTime {
	t := &tinyGoTime{ch: make(chan uint64, 16)}
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for range ticker.C {
			t.seq++
			select {
			case t.ch <- t.seq:
			default:
			}
		}
	}()
	return t
}

func (t *tinyGoTime) Ticks() <-chan uint64 { return t.ch }

type uartLogger struct {
	uart *machine.UART
}

func (l *uartLogger) WriteLineString(s string) {
	for i := 0; i < len(s); i++ {
		l.uart.WriteByte(s[i])
	}
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

func (l *uartLogger) WriteLineBytes(b []byte) {
	l.uart.Write(b)
	l.uart.WriteByte('\r')
	l.uart.WriteByte('\n')
}

type tinyGoPower struct{}

func (tinyGoPower) Halt() {
	for {
		time.Sleep(time.Hour)
	}
}

func (tinyGoPower) Reboot() {
	machine.CPUReset()
	select {}
}

// noFlash reports flash as absent; the secure element owns the PIN store
// on this board.
type noFlash struct{}

func (noFlash) SizeBytes() uint32                   { return 0 }
func (noFlash) EraseBlockBytes() uint32             { return 0 }
func (noFlash) ReadAt([]byte, uint32) (int, error)  { return 0, ErrNotImplemented }
func (noFlash) WriteAt([]byte, uint32) (int, error) { return 0, ErrNotImplemented }
func (noFlash) Erase(uint32, uint32) error          { return ErrNotImplemented }
