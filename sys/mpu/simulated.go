package mpu

import (
	"sync"

	"firmcore/sys/mem"
)

// Simulated is a Controller that keeps region attributes in memory. The
// emulator and tests use it in place of MPU registers.
type Simulated struct {
	mu     sync.Mutex
	slots  [SlotCount]mem.Region
	unpriv [SlotCount]bool
	opens  int
	closes int
}

func NewSimulated() *Simulated {
	return &Simulated{}
}

func (s *Simulated) SetUnprivileged(slot Slot, region mem.Region) error {
	if err := slot.valid(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = region
	s.unpriv[slot] = true
	s.opens++
	return nil
}

func (s *Simulated) SetPrivileged(slot Slot) error {
	if err := slot.valid(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpriv[slot] = false
	s.closes++
	return nil
}

// Unprivileged reports whether addr falls in a slot currently open to
// unprivileged code.
func (s *Simulated) Unprivileged(addr uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.unpriv[i] && s.slots[i].Contains(addr, 1) {
			return true
		}
	}
	return false
}

// OpenSlots returns the number of slots currently unprivileged.
func (s *Simulated) OpenSlots() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.unpriv {
		if u {
			n++
		}
	}
	return n
}

// Transitions returns how many times slots were opened and closed.
func (s *Simulated) Transitions() (opens, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens, s.closes
}
