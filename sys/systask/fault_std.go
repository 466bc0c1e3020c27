//go:build !tinygo

package systask

import (
	"runtime"
	"runtime/debug"
	"strings"
)

func captureStack() []byte {
	return debug.Stack()
}

// faultSite returns the location of the frame that panicked. It must be
// called from the deferred function that recovered.
func faultSite() (string, int) {
	pc := make([]uintptr, 64)
	n := runtime.Callers(2, pc)
	frames := runtime.CallersFrames(pc[:n])
	panicking := false
	for {
		f, more := frames.Next()
		switch {
		case f.Function == "runtime.gopanic":
			panicking = true
		case panicking && !strings.HasPrefix(f.Function, "runtime."):
			return f.File, f.Line
		}
		if !more {
			return "", 0
		}
	}
}
