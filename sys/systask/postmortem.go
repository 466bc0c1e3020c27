package systask

import "fmt"

// Reason is why a task terminated.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonExit
	ReasonError
	ReasonFatal
	ReasonFault
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonExit:
		return "exit"
	case ReasonError:
		return "error"
	case ReasonFatal:
		return "fatal"
	case ReasonFault:
		return "fault"
	default:
		return "unknown"
	}
}

// ExitKilled is the exit code recorded for a task terminated by Kill.
const ExitKilled = -1

// Postmortem is the outcome of a terminated task. Which fields are set
// depends on Reason: ExitCode for ReasonExit, Title/Message/Footer for
// ReasonError, Message/File/Line for ReasonFatal and ReasonFault.
type Postmortem struct {
	Task     ID
	Reason   Reason
	ExitCode int32

	Title   string
	Message string
	Footer  string

	File  string
	Line  int
	Stack []byte
}

func (pm *Postmortem) String() string {
	switch pm.Reason {
	case ReasonExit:
		return fmt.Sprintf("task %d exited with code %d", pm.Task, pm.ExitCode)
	case ReasonError:
		return fmt.Sprintf("task %d error: %s: %s", pm.Task, pm.Title, pm.Message)
	case ReasonFatal, ReasonFault:
		return fmt.Sprintf("task %d %s: %s at %s:%d", pm.Task, pm.Reason, pm.Message, pm.File, pm.Line)
	default:
		return fmt.Sprintf("task %d running", pm.Task)
	}
}
