package syscall

// Error is a dispatcher failure reported to kernel callers.
type Error uint8

const (
	ErrCallbackPending Error = iota + 1
	ErrNotApplet
	ErrNoTrampoline
	ErrNoReturn
)

func (e Error) String() string {
	switch e {
	case ErrCallbackPending:
		return "callback already in progress"
	case ErrNotApplet:
		return "caller is not an applet"
	case ErrNoTrampoline:
		return "no callback trampoline"
	case ErrNoReturn:
		return "callback did not return"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "syscall: " + e.String() }

// Titles used when a caller is terminated for breaking the protocol.
const (
	TitleInvalidSyscall  = "Invalid syscall"
	TitleAccessViolation = "Access violation"
)
