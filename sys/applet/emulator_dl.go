//go:build (darwin || linux) && !tinygo

package applet

import (
	"fmt"

	"github.com/ebitengine/purego"

	"firmcore/sys/systask"
)

// EntrySymbol is the function every applet library exports.
const EntrySymbol = "applet_main"

// Load opens the applet library at path for a and returns its entrypoint.
func (e *Emulator) Load(a *Applet, path string) (systask.Entrypoint, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	if _, err := purego.Dlsym(h, EntrySymbol); err != nil {
		purego.Dlclose(h)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	var entry func(a0, a1, a2 uint32) int32
	purego.RegisterLibFunc(&entry, h, EntrySymbol)

	e.mu.Lock()
	e.handles[a] = h
	e.mu.Unlock()
	return entry, nil
}

func dlclose(h uintptr) error {
	return purego.Dlclose(h)
}
