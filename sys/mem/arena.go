package mem

import "errors"

var ErrArenaFull = errors.New("mem: arena exhausted")

// Arena is a bump allocator over a mapped region. Applet code uses it to
// place syscall buffers at addresses the kernel can probe.
type Arena struct {
	region Region
	buf    []byte
	next   uint32
}

// NewArena returns an arena over the region backed by buf.
func NewArena(r Region, buf []byte) *Arena {
	return &Arena{region: r, buf: buf[:r.Size]}
}

// Alloc reserves n bytes aligned to the word size and returns their address
// and backing slice.
func (a *Arena) Alloc(n uint32) (uint32, []byte, error) {
	off := (a.next + WordSize - 1) &^ (WordSize - 1)
	if uint64(off)+uint64(n) > uint64(a.region.Size) {
		return 0, nil, ErrArenaFull
	}
	a.next = off + n
	b := a.buf[off : off+n : off+n]
	clear(b)
	return a.region.Start + off, b, nil
}

// Put copies p into freshly allocated arena memory.
func (a *Arena) Put(p []byte) (uint32, error) {
	addr, b, err := a.Alloc(uint32(len(p)))
	if err != nil {
		return 0, err
	}
	copy(b, p)
	return addr, nil
}

// Reset forgets every allocation.
func (a *Arena) Reset() { a.next = 0 }

// Region returns the region the arena allocates from.
func (a *Arena) Region() Region { return a.region }
