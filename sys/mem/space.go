package mem

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrOverlap    = errors.New("mem: region overlaps an existing mapping")
	ErrNotMapped  = errors.New("mem: range not mapped")
	ErrEmptyRange = errors.New("mem: empty region")
)

type mapping struct {
	region Region
	buf    []byte
}

// Space is the emulated physical address space. Every region a task can be
// granted is backed by memory mapped here, so the kernel can copy syscall
// arguments in and out by address.
type Space struct {
	mu       sync.Mutex
	mappings []mapping
}

// NewSpace returns an empty address space.
func NewSpace() *Space {
	return &Space{}
}

// Map allocates zeroed backing memory for r.
func (s *Space) Map(r Region) ([]byte, error) {
	if r.IsEmpty() {
		return nil, ErrEmptyRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mappings {
		if m.region.Overlaps(r) {
			return nil, fmt.Errorf("map %s: %w (%s)", r, ErrOverlap, m.region)
		}
	}
	buf, err := allocBacking(int(r.Size))
	if err != nil {
		return nil, fmt.Errorf("map %s: %w", r, err)
	}
	s.mappings = append(s.mappings, mapping{region: r, buf: buf})
	sort.Slice(s.mappings, func(i, j int) bool {
		return s.mappings[i].region.Start < s.mappings[j].region.Start
	})
	return buf, nil
}

// Unmap releases the mapping starting exactly at r.Start.
func (s *Space) Unmap(r Region) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.mappings {
		if m.region != r {
			continue
		}
		s.mappings = append(s.mappings[:i], s.mappings[i+1:]...)
		return freeBacking(m.buf)
	}
	return fmt.Errorf("unmap %s: %w", r, ErrNotMapped)
}

// Slice returns the backing bytes of [addr, addr+size). The range must fall
// inside a single mapping. Callers are expected to have probed the range
// against the caller's grants first.
func (s *Space) Slice(addr, size uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range s.mappings {
		if !m.region.Contains(addr, size) {
			continue
		}
		off := addr - m.region.Start
		return m.buf[off : off+size : off+size], nil
	}
	return nil, fmt.Errorf("slice %#08x+%#x: %w", addr, size, ErrNotMapped)
}

// Mapped reports whether the whole range is backed by a single mapping.
func (s *Space) Mapped(addr, size uint32) bool {
	_, err := s.Slice(addr, size)
	return err == nil
}

// Close unmaps everything.
func (s *Space) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, m := range s.mappings {
		if err := freeBacking(m.buf); err != nil {
			errs = append(errs, err)
		}
	}
	s.mappings = nil
	return errors.Join(errs...)
}
