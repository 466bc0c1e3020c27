package mpu

import (
	"errors"
	"fmt"
	"sync"
)

// Window is the set of regions opened to unprivileged code while an applet
// runs. Its state is tracked explicitly: Open on an open window and Close on
// a closed window leave the hardware untouched.
type Window struct {
	mu      sync.Mutex
	ctrl    Controller
	regions []Assignment
	open    bool
}

// NewWindow returns a closed window over the given assignments. Empty
// regions are skipped.
func NewWindow(ctrl Controller, regions ...Assignment) *Window {
	w := &Window{ctrl: ctrl}
	for _, a := range regions {
		if a.Region.IsEmpty() {
			continue
		}
		w.regions = append(w.regions, a)
	}
	return w
}

// IsOpen reports whether the regions are currently unprivileged.
func (w *Window) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// Regions returns the assignments covered by the window.
func (w *Window) Regions() []Assignment {
	return append([]Assignment(nil), w.regions...)
}

// Open marks every region unprivileged. If a slot fails, slots already
// opened are restored and the window stays closed.
func (w *Window) Open() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.open {
		return nil
	}
	for i, a := range w.regions {
		if err := a.Slot.valid(); err != nil {
			w.rollback(i)
			return err
		}
		if err := w.ctrl.SetUnprivileged(a.Slot, a.Region); err != nil {
			w.rollback(i)
			return fmt.Errorf("open %s %s: %w", a.Slot, a.Region, err)
		}
	}
	w.open = true
	return nil
}

func (w *Window) rollback(n int) {
	for i := n - 1; i >= 0; i-- {
		_ = w.ctrl.SetPrivileged(w.regions[i].Slot)
	}
}

// Close restores privileged-only access on every region.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.open {
		return nil
	}
	var errs []error
	for i := len(w.regions) - 1; i >= 0; i-- {
		a := w.regions[i]
		if err := w.ctrl.SetPrivileged(a.Slot); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", a.Slot, err))
		}
	}
	// The window counts as closed even on error; a slot that failed to
	// close is reported, and reopening would program it again anyway.
	w.open = false
	return errors.Join(errs...)
}

func (s Slot) valid() error {
	if s >= SlotCount {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, uint8(s))
	}
	return nil
}
