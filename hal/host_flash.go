//go:build !tinygo

package hal

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

const (
	hostFlashDefaultPath      = "firmcore.flash"
	hostFlashDefaultSizeBytes = 256 * 1024
	hostFlashEraseBlockBytes  = 4096
)

var ErrFlashWriteRequiresErase = errors.New("flash write requires erase")

// hostFlash emulates NOR flash over a file mapped into memory.
type hostFlash struct {
	mu    sync.Mutex
	mem   []byte
	close func() error
}

func newHostFlash(path string) *hostFlash {
	mem, closeFn, err := openFlashImage(path, hostFlashDefaultSizeBytes)
	if err != nil {
		return &hostFlash{}
	}
	return &hostFlash{mem: mem, close: closeFn}
}

func (f *hostFlash) SizeBytes() uint32       { return uint32(len(f.mem)) }
func (f *hostFlash) EraseBlockBytes() uint32 { return hostFlashEraseBlockBytes }

func (f *hostFlash) span(p []byte, off uint32, op string) ([]byte, error) {
	if f.mem == nil {
		return nil, ErrNotImplemented
	}
	if off >= uint32(len(f.mem)) {
		return nil, fmt.Errorf("flash %s at %d: %w", op, off, os.ErrInvalid)
	}
	end := uint64(off) + uint64(len(p))
	if end > uint64(len(f.mem)) {
		end = uint64(len(f.mem))
	}
	return f.mem[off:end], nil
}

func (f *hostFlash) ReadAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src, err := f.span(p, off, "read")
	if err != nil {
		return 0, err
	}
	return copy(p, src), nil
}

// WriteAt only clears bits, like NOR flash.
func (f *hostFlash) WriteAt(p []byte, off uint32) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dst, err := f.span(p, off, "write")
	if err != nil {
		return 0, err
	}
	for i := range dst {
		if dst[i]&p[i] != p[i] {
			return 0, ErrFlashWriteRequiresErase
		}
	}
	return copy(dst, p), nil
}

func (f *hostFlash) Erase(off, size uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mem == nil {
		return ErrNotImplemented
	}
	if size == 0 {
		return nil
	}
	if off%hostFlashEraseBlockBytes != 0 || size%hostFlashEraseBlockBytes != 0 ||
		uint64(off)+uint64(size) > uint64(len(f.mem)) {
		return fmt.Errorf("flash erase off=%d size=%d: %w", off, size, os.ErrInvalid)
	}
	for i := range f.mem[off : off+size] {
		f.mem[off+uint32(i)] = 0xFF
	}
	return nil
}

func (f *hostFlash) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.close == nil {
		return nil
	}
	err := f.close()
	f.mem, f.close = nil, nil
	return err
}
