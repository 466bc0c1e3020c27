// Package mem describes the address space seen by tasks: regions, access
// grants used by the syscall probes, and the emulated memory backing them.
package mem

import "fmt"

// WordSize is the native word size of the target (Cortex-M).
const WordSize = 4

// Region is a contiguous range of the 32-bit address space.
type Region struct {
	Start uint32
	Size  uint32
}

// End returns the first address past the region. It is computed in 64 bits
// so a region ending at the top of the address space does not wrap.
func (r Region) End() uint64 {
	return uint64(r.Start) + uint64(r.Size)
}

// IsEmpty reports whether the region has no bytes.
func (r Region) IsEmpty() bool { return r.Size == 0 }

// Contains reports whether [addr, addr+size) lies entirely inside r.
func (r Region) Contains(addr, size uint32) bool {
	if r.Size == 0 {
		return false
	}
	end := uint64(addr) + uint64(size)
	return addr >= r.Start && end <= r.End()
}

// Overlaps reports whether r and o share at least one byte.
func (r Region) Overlaps(o Region) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return uint64(r.Start) < o.End() && uint64(o.Start) < r.End()
}

// Aligned reports whether both start and size are multiples of n.
func (r Region) Aligned(n uint32) bool {
	return n != 0 && r.Start%n == 0 && r.Size%n == 0
}

func (r Region) String() string {
	return fmt.Sprintf("[%#08x+%#x]", r.Start, r.Size)
}

// Access is a set of permitted access kinds.
type Access uint8

const (
	AccessRead Access = 1 << iota
	AccessWrite
	AccessExecute
)

func (a Access) String() string {
	var b [3]byte
	b[0], b[1], b[2] = '-', '-', '-'
	if a&AccessRead != 0 {
		b[0] = 'r'
	}
	if a&AccessWrite != 0 {
		b[1] = 'w'
	}
	if a&AccessExecute != 0 {
		b[2] = 'x'
	}
	return string(b[:])
}

// Grant authorizes an access kind on a region.
type Grant struct {
	Region Region
	Access Access
}

// Grants is the set of regions a task may touch from unprivileged mode.
type Grants []Grant

// Probe reports whether the whole range [addr, addr+size) lies inside a
// single grant that carries every bit of access. A zero-sized range is
// accepted since nothing will be dereferenced.
func (g Grants) Probe(addr, size uint32, access Access) bool {
	if size == 0 {
		return true
	}
	if uint64(addr)+uint64(size) > 1<<32 {
		return false
	}
	for _, gr := range g {
		if gr.Access&access != access {
			continue
		}
		if gr.Region.Contains(addr, size) {
			return true
		}
	}
	return false
}

func (g Grants) ProbeRead(addr, size uint32) bool  { return g.Probe(addr, size, AccessRead) }
func (g Grants) ProbeWrite(addr, size uint32) bool { return g.Probe(addr, size, AccessWrite) }

// ProbeExecute checks that addr points at executable code.
func (g Grants) ProbeExecute(addr uint32) bool {
	return g.Probe(addr, 1, AccessExecute)
}
