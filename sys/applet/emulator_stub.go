//go:build !(darwin || linux) || tinygo

package applet

import "firmcore/sys/systask"

// Load is unavailable without a dynamic loader.
func (e *Emulator) Load(*Applet, string) (systask.Entrypoint, error) {
	return nil, ErrNoLibrary
}

func dlclose(uintptr) error { return nil }
