// Package syscall is the boundary between unprivileged applet code and the
// kernel: a closed, versioned enumeration of supervisor calls, the
// privileged dispatcher, and the applet side stubs.
package syscall

import "fmt"

// ABIVersion is the version of the numbering and argument layout below.
// Numbers are never reused; adding a call bumps the minor version.
const ABIVersion = "1.2.0"

// Number selects a supervisor call.
type Number uint32

const (
	SystemExit      Number = 1
	SystemExitError Number = 2
	SystemExitFatal Number = 3

	SystickCycles Number = 4
	SystickMs     Number = 5
	SystickUs     Number = 6

	SysEventsPoll Number = 7

	IPCRegister    Number = 8
	IPCUnregister  Number = 9
	IPCSend        Number = 10
	IPCTryReceive  Number = 11
	IPCMessageFree Number = 12

	DbgConsoleWrite Number = 13

	RngGet Number = 14

	StorageInit   Number = 15
	StorageUnlock Number = 16

	SyshandleRead Number = 17

	// ReturnFromCallback ends an unprivileged callback started by the
	// kernel. It is not a general purpose call.
	ReturnFromCallback Number = 0xff
)

var names = map[Number]string{
	SystemExit:         "system_exit",
	SystemExitError:    "system_exit_error",
	SystemExitFatal:    "system_exit_fatal",
	SystickCycles:      "systick_cycles",
	SystickMs:          "systick_ms",
	SystickUs:          "systick_us",
	SysEventsPoll:      "sysevents_poll",
	IPCRegister:        "ipc_register",
	IPCUnregister:      "ipc_unregister",
	IPCSend:            "ipc_send",
	IPCTryReceive:      "ipc_try_receive",
	IPCMessageFree:     "ipc_message_free",
	DbgConsoleWrite:    "dbg_console_write",
	RngGet:             "rng_get",
	StorageInit:        "storage_init",
	StorageUnlock:      "storage_unlock",
	SyshandleRead:      "syshandle_read",
	ReturnFromCallback: "return_from_callback",
}

// Valid reports whether n is part of the enumeration.
func (n Number) Valid() bool {
	_, ok := names[n]
	return ok
}

func (n Number) String() string {
	if s, ok := names[n]; ok {
		return s
	}
	return fmt.Sprintf("syscall(%d)", uint32(n))
}

// Numbers returns the enumeration in ascending order.
func Numbers() []Number {
	out := make([]Number, 0, len(names))
	for n := Number(0); n <= ReturnFromCallback; n++ {
		if n.Valid() {
			out = append(out, n)
		}
	}
	return out
}

// Result values in slot 0 for calls that succeed or fail.
const (
	Failure uint32 = 0
	Success uint32 = 1
)

// Memory layouts shared with applets.
const (
	// EventsSize is {read, write uint32}.
	EventsSize = 8
	// MessageSize is {remote, fn, data ptr, size uint32}.
	MessageSize = 16
)
