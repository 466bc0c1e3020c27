package systask

// Error is a task management failure.
type Error uint8

const (
	ErrNoFreeSlot Error = iota + 1
	ErrInvalidStack
	ErrStackOverlap
	ErrAlreadyStarted
	ErrNoEntrypoint
	ErrDead
	ErrNotDead
	ErrRejected
	ErrUnknownTask
)

func (e Error) String() string {
	switch e {
	case ErrNoFreeSlot:
		return "no free task slot"
	case ErrInvalidStack:
		return "invalid stack region"
	case ErrStackOverlap:
		return "stack overlaps another task"
	case ErrAlreadyStarted:
		return "task already started"
	case ErrNoEntrypoint:
		return "task has no entrypoint"
	case ErrDead:
		return "task is dead"
	case ErrNotDead:
		return "task is still alive"
	case ErrRejected:
		return "task rejected by observer"
	case ErrUnknownTask:
		return "unknown task"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "systask: " + e.String() }
