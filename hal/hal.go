package hal

import "errors"

// Logger writes newline-delimited log lines.
type Logger interface {
	WriteLineString(s string)
	WriteLineBytes(b []byte)
}

var ErrNotImplemented = errors.New("not implemented")

// PixelFormat defines the framebuffer pixel encoding.
type PixelFormat uint8

const (
	// PixelFormatRGB565 is 16bpp: rrrrrggggggbbbbb.
	PixelFormatRGB565 PixelFormat = iota + 1
)

// Framebuffer is a simple pixel buffer plus a "present" hook.
type Framebuffer interface {
	Width() int
	Height() int
	Format() PixelFormat
	StrideBytes() int
	Buffer() []byte
	ClearRGB(r, g, b uint8)
	Present() error
}

// KeyCode identifies a physical key. The device has a single button; host
// builds map a few keyboard keys onto it.
type KeyCode uint16

const (
	KeyUnknown KeyCode = iota
	KeyButton
	KeyPower
)

// KeyEvent is a key press or release.
type KeyEvent struct {
	Code  KeyCode
	Press bool
}

// Keyboard provides key events (best-effort on each platform).
type Keyboard interface {
	Events() <-chan KeyEvent
}

// TouchEvent is a touch contact change in framebuffer coordinates.
type TouchEvent struct {
	X, Y  int16
	Press bool
}

// Touchscreen provides touch events.
type Touchscreen interface {
	Events() <-chan TouchEvent
}

// Display provides access to the framebuffer (if available).
type Display interface {
	Framebuffer() Framebuffer
}

// Input provides access to input devices (if available).
type Input interface {
	Keyboard() Keyboard
	Touch() Touchscreen
}

// Flash provides raw access to non-volatile memory.
//
// It is intentionally low-level: addresses and erase blocks only. Writes
// may only clear bits; Erase sets a block back to 0xFF.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Time provides a base tick stream of 1ms ticks.
type Time interface {
	Ticks() <-chan uint64
}

// Power ends the current boot.
type Power interface {
	// Halt stops the system for good. It does not return.
	Halt()
	// Reboot restarts the device. It does not return.
	Reboot()
}

// HAL provides the only contact point between the kernel and the outside
// world.
type HAL interface {
	Logger() Logger
	Display() Display
	Input() Input
	Flash() Flash
	Time() Time
	Power() Power
}
