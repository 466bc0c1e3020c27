package syscall

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/applet"
	"firmcore/sys/ipc"
	"firmcore/sys/mem"
	"firmcore/sys/sysevent"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
	"firmcore/sys/systick"
)

// ProgressFunc reports progress of a long storage operation. Returning
// true asks the operation to abort.
type ProgressFunc func(wait, progress uint32) bool

// Storage is the secure storage collaborator reached through syscalls.
type Storage interface {
	Init(salt []byte) error
	Unlock(pin []byte, progress ProgressFunc) bool
}

// Trampoline runs the unprivileged callback at addr. It must end the
// callback with a ReturnFromCallback supervisor call.
type Trampoline func(addr uint32, args [4]uint32)

// Config wires a Dispatcher. Handles, IPC, Console and Storage are
// optional.
type Config struct {
	Scheduler *systask.Scheduler
	Space     *mem.Space
	Poller    *sysevent.Poller
	Clock     systick.Clock
	Handles   *syshandle.Registry
	IPC       *ipc.IPC
	Console   io.Writer
	Storage   Storage
	// Assets is the shared assets area granted to privileged applets.
	Assets mem.Region
	Logger hclog.Logger
}

type taskState struct {
	tramp Trampoline

	storageCallback uint32

	inCallback bool
	returned   bool
	result     uint32

	// Receive buffer address per remote, to map message views back to
	// buffer offsets.
	ipcBuf [systask.MaxTasks]uint32
}

// Dispatcher services supervisor calls in handler mode.
type Dispatcher struct {
	cfg   Config
	log   hclog.Logger
	state [systask.MaxTasks]taskState
}

func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Dispatcher{cfg: cfg, log: log.Named("syscall")}
}

// Install makes d the scheduler's supervisor call handler.
func (d *Dispatcher) Install() {
	d.cfg.Scheduler.SetSVCHandler(d.HandleSVC)
}

// Attach resets per task state and installs the callback trampoline of a
// freshly created applet task.
func (d *Dispatcher) Attach(t *systask.Task, tramp Trampoline) {
	d.state[t.ID()] = taskState{tramp: tramp}
}

func (d *Dispatcher) grants(t *systask.Task) mem.Grants {
	a, ok := t.Owner().(*applet.Applet)
	if !ok {
		return nil
	}
	return a.Grants(d.cfg.Assets)
}

// violation terminates t. On the active task it does not return.
func (d *Dispatcher) violation(t *systask.Task, title string, f *systask.Frame) {
	d.log.Warn("terminating task", "task", t.ID(), "reason", title, "syscall", Number(f.Num))
	d.cfg.Scheduler.ExitError(t, title, fmt.Sprintf("%s by task %d", Number(f.Num), t.ID()), "")
}

// read returns the caller's bytes at [addr, addr+n) after probing them.
func (d *Dispatcher) read(t *systask.Task, f *systask.Frame, addr, n uint32) []byte {
	if !d.grants(t).ProbeRead(addr, n) {
		d.violation(t, TitleAccessViolation, f)
		return nil
	}
	if n == 0 {
		return nil
	}
	b, err := d.cfg.Space.Slice(addr, n)
	if err != nil {
		d.violation(t, TitleAccessViolation, f)
		return nil
	}
	return b
}

// write is the writable counterpart of read.
func (d *Dispatcher) write(t *systask.Task, f *systask.Frame, addr, n uint32) []byte {
	if !d.grants(t).ProbeWrite(addr, n) {
		d.violation(t, TitleAccessViolation, f)
		return nil
	}
	if n == 0 {
		return nil
	}
	b, err := d.cfg.Space.Slice(addr, n)
	if err != nil {
		d.violation(t, TitleAccessViolation, f)
		return nil
	}
	return b
}

func boolResult(ok bool) uint32 {
	if ok {
		return Success
	}
	return Failure
}

func put64(f *systask.Frame, v uint64) {
	f.Args[0] = uint32(v)
	f.Args[1] = uint32(v >> 32)
}

// HandleSVC services one supervisor call from t. Unknown numbers and
// arguments naming memory t may not access terminate t.
func (d *Dispatcher) HandleSVC(t *systask.Task, f *systask.Frame) {
	a := f.Args
	switch Number(f.Num) {
	case SystemExit:
		d.cfg.Scheduler.Exit(t, int32(a[0]))

	case SystemExitError:
		title := d.read(t, f, a[0], a[1])
		msg := d.read(t, f, a[2], a[3])
		footer := d.read(t, f, a[4], a[5])
		d.cfg.Scheduler.ExitError(t, string(title), string(msg), string(footer))

	case SystemExitFatal:
		msg := d.read(t, f, a[0], a[1])
		file := d.read(t, f, a[2], a[3])
		d.cfg.Scheduler.ExitFatal(t, string(msg), string(file), int(a[4]))

	case SystickCycles:
		put64(f, d.cfg.Clock.Cycles())
	case SystickMs:
		f.Args[0] = d.cfg.Clock.Ms()
	case SystickUs:
		put64(f, d.cfg.Clock.Us())

	case SysEventsPoll:
		d.read(t, f, a[0], EventsSize)
		d.write(t, f, a[1], EventsSize)
		// Waiting happens in the kernel task so the applet window can be
		// closed while it blocks.
		t.Defer(f)
		d.cfg.Scheduler.YieldTo(d.cfg.Scheduler.Kernel())

	case IPCRegister:
		f.Args[0] = d.ipcRegister(t, f)
	case IPCUnregister:
		f.Args[0] = Failure
		if remote, ok := taskArg(a[0]); ok && d.cfg.IPC != nil {
			f.Args[0] = boolResult(d.cfg.IPC.Unregister(remote) == nil)
		}
	case IPCSend:
		data := d.read(t, f, a[2], a[3])
		f.Args[0] = Failure
		if remote, ok := taskArg(a[0]); ok && d.cfg.IPC != nil {
			f.Args[0] = boolResult(d.cfg.IPC.Send(remote, a[1], data) == nil)
		}
	case IPCTryReceive:
		f.Args[0] = d.ipcTryReceive(t, f)
	case IPCMessageFree:
		f.Args[0] = d.ipcFree(t, f)

	case DbgConsoleWrite:
		p := d.read(t, f, a[0], a[1])
		f.Args[0] = 0
		if d.cfg.Console != nil {
			n, _ := d.cfg.Console.Write(p)
			f.Args[0] = uint32(n)
		}

	case RngGet:
		b := d.write(t, f, a[0], a[1])
		_, err := rand.Read(b)
		f.Args[0] = boolResult(err == nil)

	case StorageInit:
		f.Args[0] = d.storageInit(t, f)
	case StorageUnlock:
		f.Args[0] = d.storageUnlock(t, f)

	case SyshandleRead:
		b := d.write(t, f, a[1], a[2])
		f.Args[0] = 0
		if h, ok := handleArg(a[0]); ok && d.cfg.Handles != nil {
			n, err := d.cfg.Handles.Read(h, t.ID(), b)
			if err == nil {
				f.Args[0] = uint32(n)
			}
		}

	case ReturnFromCallback:
		st := &d.state[t.ID()]
		if !st.inCallback || st.returned {
			d.violation(t, TitleInvalidSyscall, f)
			return
		}
		st.returned = true
		st.result = a[0]

	default:
		d.violation(t, TitleInvalidSyscall, f)
	}
}

// Complete finishes a deferred SysEventsPoll on behalf of t. It runs in the
// kernel task while t is parked.
func (d *Dispatcher) Complete(t *systask.Task, f *systask.Frame) {
	if Number(f.Num) != SysEventsPoll {
		return
	}
	aw, err := d.cfg.Space.Slice(f.Args[0], EventsSize)
	if err != nil {
		f.Args[0] = Failure
		return
	}
	awaited := sysevent.Events{
		Read:  syshandle.Mask(binary.LittleEndian.Uint32(aw)),
		Write: syshandle.Mask(binary.LittleEndian.Uint32(aw[4:])),
	}
	got, err := d.cfg.Poller.PollFor(t.ID(), awaited, systick.Ticks(f.Args[2]))
	if err != nil {
		d.log.Warn("deferred poll failed", "task", t.ID(), "error", err)
	}
	out, err := d.cfg.Space.Slice(f.Args[1], EventsSize)
	if err != nil {
		f.Args[0] = Failure
		return
	}
	binary.LittleEndian.PutUint32(out, uint32(got.Read))
	binary.LittleEndian.PutUint32(out[4:], uint32(got.Write))
	f.Args[0] = Success
}

// taskArg and handleArg range-check a raw argument slot before narrowing it.
func taskArg(v uint32) (systask.ID, bool) {
	if v >= systask.MaxTasks {
		return 0, false
	}
	return systask.ID(v), true
}

func handleArg(v uint32) (syshandle.Handle, bool) {
	if v >= uint32(syshandle.Count) {
		return 0, false
	}
	return syshandle.Handle(v), true
}

func (d *Dispatcher) ipcRegister(t *systask.Task, f *systask.Frame) uint32 {
	addr, size := f.Args[1], f.Args[2]
	buf := d.write(t, f, addr, size)
	remote, ok := taskArg(f.Args[0])
	if !ok || d.cfg.IPC == nil || addr%mem.WordSize != 0 {
		return Failure
	}
	if err := d.cfg.IPC.Register(remote, buf); err != nil {
		return Failure
	}
	d.state[t.ID()].ipcBuf[remote] = addr
	return Success
}

// ipcTryReceive reads the remote from the message struct and fills in the
// rest.
func (d *Dispatcher) ipcTryReceive(t *systask.Task, f *systask.Frame) uint32 {
	m := d.write(t, f, f.Args[0], MessageSize)
	if d.cfg.IPC == nil {
		return Failure
	}
	remote, ok := taskArg(binary.LittleEndian.Uint32(m))
	if !ok {
		return Failure
	}
	msg, ok := d.cfg.IPC.TryReceive(remote)
	if !ok {
		return Failure
	}
	data := d.state[t.ID()].ipcBuf[remote] + msg.Offset() + ipc.HeaderSize
	binary.LittleEndian.PutUint32(m[4:], msg.Fn)
	binary.LittleEndian.PutUint32(m[8:], data)
	binary.LittleEndian.PutUint32(m[12:], uint32(len(msg.Data)))
	return Success
}

func (d *Dispatcher) ipcFree(t *systask.Task, f *systask.Frame) uint32 {
	m := d.read(t, f, f.Args[0], MessageSize)
	if d.cfg.IPC == nil {
		return Failure
	}
	remote, ok := taskArg(binary.LittleEndian.Uint32(m))
	if !ok {
		return Failure
	}
	data := binary.LittleEndian.Uint32(m[8:])
	base := d.state[t.ID()].ipcBuf[remote]
	if data < base+ipc.HeaderSize {
		return Failure
	}
	return boolResult(d.cfg.IPC.Release(remote, data-base-ipc.HeaderSize) == nil)
}

func (d *Dispatcher) storageInit(t *systask.Task, f *systask.Frame) uint32 {
	cb := f.Args[0]
	if cb != 0 && !d.grants(t).ProbeExecute(cb) {
		d.violation(t, TitleAccessViolation, f)
		return Failure
	}
	salt := d.read(t, f, f.Args[1], f.Args[2])
	if d.cfg.Storage == nil {
		return Failure
	}
	d.state[t.ID()].storageCallback = cb
	return boolResult(d.cfg.Storage.Init(salt) == nil)
}

func (d *Dispatcher) storageUnlock(t *systask.Task, f *systask.Frame) uint32 {
	pin := d.read(t, f, f.Args[0], f.Args[1])
	if d.cfg.Storage == nil {
		return Failure
	}
	// Copy out of applet memory; the callback may overwrite it.
	pin = append([]byte(nil), pin...)
	cb := d.state[t.ID()].storageCallback
	progress := func(wait, progress uint32) bool {
		if cb == 0 {
			return false
		}
		r, err := d.InvokeCallback(t, cb, [4]uint32{wait, progress})
		return err == nil && r != 0
	}
	return boolResult(d.cfg.Storage.Unlock(pin, progress))
}
