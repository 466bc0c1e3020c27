// Package buildinfo identifies the running firmware build.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

// Set at link time with -ldflags "-X firmcore/internal/buildinfo.Version=...".
var (
	Version = "dev"
	Commit  = ""
)

var (
	vcsOnce     sync.Once
	vcsRevision string
	vcsModified bool
)

func readVCS() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			vcsRevision = s.Value
		case "vcs.modified":
			vcsModified = s.Value == "true"
		}
	}
}

// Revision is the commit the firmware was built from, taken from the
// linker flag or else from the toolchain's VCS stamp. Empty when unknown.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	vcsOnce.Do(readVCS)
	return vcsRevision
}

// Short returns a compact build identifier for the window title and boot log.
func Short() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	rev := Revision()
	if rev == "" {
		return "dev"
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if Commit == "" && vcsModified {
		rev += "+dirty"
	}
	return rev
}
