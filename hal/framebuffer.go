package hal

import "sync"

// MemFramebuffer is an RGB565 framebuffer in RAM. Present hands the buffer
// to an optional panel driver.
type MemFramebuffer struct {
	mu      sync.Mutex
	width   int
	height  int
	stride  int
	buf     []byte
	present func(buf []byte, width, height int) error
	frames  int
}

// NewMemFramebuffer returns a cleared width x height framebuffer.
func NewMemFramebuffer(width, height int) *MemFramebuffer {
	stride := width * 2
	return &MemFramebuffer{
		width:  width,
		height: height,
		stride: stride,
		buf:    make([]byte, stride*height),
	}
}

func (f *MemFramebuffer) Width() int          { return f.width }
func (f *MemFramebuffer) Height() int         { return f.height }
func (f *MemFramebuffer) Format() PixelFormat { return PixelFormatRGB565 }
func (f *MemFramebuffer) StrideBytes() int    { return f.stride }
func (f *MemFramebuffer) Buffer() []byte      { return f.buf }

func (f *MemFramebuffer) ClearRGB(r, g, b uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fill(f.buf, r, g, b)
}

func (f *MemFramebuffer) Present() error {
	f.mu.Lock()
	f.frames++
	present := f.present
	f.mu.Unlock()
	if present == nil {
		return nil
	}
	return present(f.buf, f.width, f.height)
}

// Frames counts Present calls.
func (f *MemFramebuffer) Frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frames
}

// Pixel returns the RGB565 value at x, y.
func (f *MemFramebuffer) Pixel(x, y int) uint16 {
	off := y*f.stride + x*2
	if x < 0 || y < 0 || x >= f.width || off+1 >= len(f.buf) {
		return 0
	}
	return uint16(f.buf[off]) | uint16(f.buf[off+1])<<8
}

func (f *MemFramebuffer) snapshot(dst []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copy(dst, f.buf)
}
