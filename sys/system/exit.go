package system

import (
	"fmt"

	"firmcore/sys/systask"
)

// fail is the scheduler's error handler: it presents the kernel task's
// postmortem and then halts.
func (s *System) fail(pm *systask.Postmortem) {
	s.log.Error("kernel terminated", "reason", pm.Reason, "detail", pm.String())
	if s.cfg.SecureMonitor {
		s.EmergencyRescue(pm)
		return
	}
	if s.handler != nil {
		s.handler(pm)
	}
	s.cfg.Halt()
}

// Exit terminates the kernel normally.
func (s *System) Exit(code int32) {
	s.Sched.Exit(s.Sched.Kernel(), code)
}

// ExitError terminates the kernel with a message for the user. The device
// stays halted until the user acts.
func (s *System) ExitError(title, message, footer string) {
	s.Sched.ExitError(s.Sched.Kernel(), title, message, footer)
}

// ExitFatal terminates the kernel after a broken invariant.
func (s *System) ExitFatal(message, file string, line int) {
	s.Sched.ExitFatal(s.Sched.Kernel(), message, file, line)
}

// ErrorShutdown halts with a titled message, as boot and update flows do
// for recoverable-looking errors.
func (s *System) ErrorShutdown(title, message, footer string) {
	s.ExitError(title, message, footer)
}

// EmergencyRescue presents pm from a fresh goroutine, so a corrupted
// kernel stack does not get in the way, then reboots unconditionally. A
// handler that panics is contained.
func (s *System) EmergencyRescue(pm *systask.Postmortem) {
	rescued := *pm
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("error handler failed", "panic", fmt.Sprint(r))
			}
		}()
		if s.handler != nil {
			s.handler(&rescued)
		}
	}()
	<-done
	s.log.Warn("rebooting")
	s.cfg.Reboot()
}
