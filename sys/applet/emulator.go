package applet

import (
	"errors"
	"sync"
)

var ErrNoLibrary = errors.New("applet: no library loaded")

// Emulator runs applets as shared libraries in the kernel process.
// Protection comes from the process boundary of the host, so Open and Close
// only switch context.
type Emulator struct {
	mu      sync.Mutex
	handles map[*Applet]uintptr
}

func NewEmulator() *Emulator {
	return &Emulator{handles: make(map[*Applet]uintptr)}
}

func (e *Emulator) Open(*Applet) error  { return nil }
func (e *Emulator) Close(*Applet) error { return nil }

// Unload closes the library loaded for a, if any.
func (e *Emulator) Unload(a *Applet) error {
	e.mu.Lock()
	h, ok := e.handles[a]
	delete(e.handles, a)
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return dlclose(h)
}

// Loaded reports whether a library is held for a.
func (e *Emulator) Loaded(a *Applet) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.handles[a]
	return ok
}
