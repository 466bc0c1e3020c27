package hal

import (
	"image/color"

	"tinygo.org/x/drivers"
)

// FBDisplay draws on a Framebuffer through the tinygo drivers Displayer
// interface, so tinyfont and tinyterm can render into it.
type FBDisplay struct {
	fb Framebuffer
}

var _ drivers.Displayer = (*FBDisplay)(nil)

// NewFBDisplay wraps fb. A nil fb yields a zero-size display.
func NewFBDisplay(fb Framebuffer) *FBDisplay {
	return &FBDisplay{fb: fb}
}

func (d *FBDisplay) usable() []byte {
	if d.fb == nil || d.fb.Format() != PixelFormatRGB565 {
		return nil
	}
	return d.fb.Buffer()
}

func (d *FBDisplay) Size() (x, y int16) {
	if d.fb == nil {
		return 0, 0
	}
	return int16(d.fb.Width()), int16(d.fb.Height())
}

func (d *FBDisplay) SetPixel(x, y int16, c color.RGBA) {
	buf := d.usable()
	if buf == nil {
		return
	}
	ix, iy := int(x), int(y)
	if ix < 0 || ix >= d.fb.Width() || iy < 0 || iy >= d.fb.Height() {
		return
	}
	off := iy*d.fb.StrideBytes() + ix*2
	if off+1 >= len(buf) {
		return
	}
	pixel := RGB565(c.R, c.G, c.B)
	buf[off] = byte(pixel)
	buf[off+1] = byte(pixel >> 8)
}

func (d *FBDisplay) Display() error {
	if d.fb == nil {
		return nil
	}
	return d.fb.Present()
}

// FillRectangle clips to the framebuffer.
func (d *FBDisplay) FillRectangle(x, y, width, height int16, c color.RGBA) error {
	buf := d.usable()
	if buf == nil {
		return nil
	}
	w, h := d.fb.Width(), d.fb.Height()
	x0 := clampInt(int(x), 0, w)
	y0 := clampInt(int(y), 0, h)
	x1 := clampInt(int(x)+int(width), 0, w)
	y1 := clampInt(int(y)+int(height), 0, h)
	if x0 >= x1 || y0 >= y1 {
		return nil
	}

	pixel := RGB565(c.R, c.G, c.B)
	lo, hi := byte(pixel), byte(pixel>>8)
	stride := d.fb.StrideBytes()
	for py := y0; py < y1; py++ {
		row := py * stride
		for px := x0; px < x1; px++ {
			off := row + px*2
			if off+1 >= len(buf) {
				break
			}
			buf[off] = lo
			buf[off+1] = hi
		}
	}
	return nil
}

// ScrollUp moves the content up by lines and clears the exposed rows.
func (d *FBDisplay) ScrollUp(lines int16, bg color.RGBA) error {
	buf := d.usable()
	if buf == nil || lines <= 0 {
		return nil
	}
	w, h := d.fb.Width(), d.fb.Height()
	n := int(lines)
	if n >= h {
		return d.FillRectangle(0, 0, int16(w), int16(h), bg)
	}
	stride := d.fb.StrideBytes()
	src := n * stride
	end := h * stride
	if end > len(buf) {
		end = len(buf)
	}
	if src < end {
		copy(buf, buf[src:end])
	}
	return d.FillRectangle(0, int16(h-n), int16(w), int16(n), bg)
}

// SetScroll is a no-op; scrolling is done in software.
func (d *FBDisplay) SetScroll(line int16) {}

func (d *FBDisplay) SetRotation(rotation drivers.Rotation) error {
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
