package syscall

import (
	"encoding/binary"

	"firmcore/sys/mem"
	"firmcore/sys/sysevent"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
	"firmcore/sys/systick"
)

// callbackBase is where callback addresses start inside the code region.
const callbackBase = 0x100

// Client is the applet side of the boundary. Arguments are marshalled into
// the applet's own memory and passed by address, the way compiled applet
// code would.
type Client struct {
	sched *systask.Scheduler
	space *mem.Space

	// heap holds allocations that outlive a call, such as IPC buffers.
	heap *mem.Arena
	// scratch is reset before every call.
	scratch *mem.Arena

	code      mem.Region
	callbacks map[uint32]func(args [4]uint32) uint32
}

func NewClient(sched *systask.Scheduler, space *mem.Space, heap, scratch *mem.Arena, code mem.Region) *Client {
	return &Client{
		sched:     sched,
		space:     space,
		heap:      heap,
		scratch:   scratch,
		code:      code,
		callbacks: make(map[uint32]func([4]uint32) uint32),
	}
}

func (c *Client) svc(n Number, args ...uint32) systask.Frame {
	f := systask.Frame{Num: uint32(n)}
	copy(f.Args[:], args)
	c.sched.SVC(&f)
	return f
}

// put copies p into scratch memory. An empty p is passed as a null pointer.
func (c *Client) put(p []byte) (uint32, uint32) {
	if len(p) == 0 {
		return 0, 0
	}
	addr, err := c.scratch.Put(p)
	if err != nil {
		c.ExitFatal("scratch exhausted", "client.go", 0)
	}
	return addr, uint32(len(p))
}

func (c *Client) alloc(n uint32) (uint32, []byte) {
	addr, b, err := c.scratch.Alloc(n)
	if err != nil {
		c.ExitFatal("scratch exhausted", "client.go", 0)
	}
	return addr, b
}

// Exit ends the applet. It does not return.
func (c *Client) Exit(code int32) {
	c.scratch.Reset()
	c.svc(SystemExit, uint32(code))
}

// ExitError ends the applet with a message for the user.
func (c *Client) ExitError(title, message, footer string) {
	c.scratch.Reset()
	tp, tl := c.put([]byte(title))
	mp, ml := c.put([]byte(message))
	fp, fl := c.put([]byte(footer))
	c.svc(SystemExitError, tp, tl, mp, ml, fp, fl)
}

// ExitFatal ends the applet after a broken invariant.
func (c *Client) ExitFatal(message, file string, line int) {
	c.scratch.Reset()
	mp, ml := c.put([]byte(message))
	fp, fl := c.put([]byte(file))
	c.svc(SystemExitFatal, mp, ml, fp, fl, uint32(line))
}

func (c *Client) Ms() uint32 {
	return c.svc(SystickMs).Args[0]
}

func (c *Client) Us() uint64 {
	f := c.svc(SystickUs)
	return uint64(f.Args[0]) | uint64(f.Args[1])<<32
}

func (c *Client) Cycles() uint64 {
	f := c.svc(SystickCycles)
	return uint64(f.Args[0]) | uint64(f.Args[1])<<32
}

// Timeout returns the deadline ms from now.
func (c *Client) Timeout(ms uint32) systick.Ticks {
	return systick.Ticks(c.Ms() + ms)
}

// Poll blocks until an awaited handle is ready or the deadline passes.
func (c *Client) Poll(awaited sysevent.Events, deadline systick.Ticks) sysevent.Events {
	c.scratch.Reset()
	ap, ab := c.alloc(EventsSize)
	binary.LittleEndian.PutUint32(ab, uint32(awaited.Read))
	binary.LittleEndian.PutUint32(ab[4:], uint32(awaited.Write))
	sp, sb := c.alloc(EventsSize)

	if c.svc(SysEventsPoll, ap, sp, uint32(deadline)).Args[0] != Success {
		return sysevent.Events{}
	}
	return sysevent.Events{
		Read:  syshandle.Mask(binary.LittleEndian.Uint32(sb)),
		Write: syshandle.Mask(binary.LittleEndian.Uint32(sb[4:])),
	}
}

// IPCRegister allocates a size byte receive buffer for messages from
// remote.
func (c *Client) IPCRegister(remote systask.ID, size uint32) bool {
	addr, _, err := c.heap.Alloc(size)
	if err != nil {
		return false
	}
	return c.svc(IPCRegister, uint32(remote), addr, size).Args[0] == Success
}

func (c *Client) IPCUnregister(remote systask.ID) bool {
	return c.svc(IPCUnregister, uint32(remote)).Args[0] == Success
}

func (c *Client) IPCSend(remote systask.ID, fn uint32, data []byte) bool {
	c.scratch.Reset()
	p, n := c.put(data)
	return c.svc(IPCSend, uint32(remote), fn, p, n).Args[0] == Success
}

// Message is a received IPC message. Data aliases the receive buffer until
// IPCFree.
type Message struct {
	Remote systask.ID
	Fn     uint32
	Data   []byte

	addr uint32
}

func (c *Client) IPCTryReceive(remote systask.ID) (Message, bool) {
	c.scratch.Reset()
	mp, mb := c.alloc(MessageSize)
	binary.LittleEndian.PutUint32(mb, uint32(remote))
	if c.svc(IPCTryReceive, mp).Args[0] != Success {
		return Message{}, false
	}
	msg := Message{
		Remote: remote,
		Fn:     binary.LittleEndian.Uint32(mb[4:]),
		addr:   binary.LittleEndian.Uint32(mb[8:]),
	}
	if n := binary.LittleEndian.Uint32(mb[12:]); n > 0 {
		data, err := c.space.Slice(msg.addr, n)
		if err != nil {
			return Message{}, false
		}
		msg.Data = data
	}
	return msg, true
}

func (c *Client) IPCFree(msg Message) bool {
	c.scratch.Reset()
	mp, mb := c.alloc(MessageSize)
	binary.LittleEndian.PutUint32(mb, uint32(msg.Remote))
	binary.LittleEndian.PutUint32(mb[4:], msg.Fn)
	binary.LittleEndian.PutUint32(mb[8:], msg.addr)
	binary.LittleEndian.PutUint32(mb[12:], uint32(len(msg.Data)))
	return c.svc(IPCMessageFree, mp).Args[0] == Success
}

// Write sends p to the debug console.
func (c *Client) Write(p []byte) (int, error) {
	c.scratch.Reset()
	addr, n := c.put(p)
	return int(c.svc(DbgConsoleWrite, addr, n).Args[0]), nil
}

// Read copies pending records of handle h into p and returns the bytes
// read.
func (c *Client) Read(h syshandle.Handle, p []byte) int {
	c.scratch.Reset()
	addr, buf := c.alloc(uint32(len(p)))
	n := c.svc(SyshandleRead, uint32(h), addr, uint32(len(p))).Args[0]
	return copy(p, buf[:n])
}

// Random fills b from the kernel RNG.
func (c *Client) Random(b []byte) bool {
	c.scratch.Reset()
	addr, buf := c.alloc(uint32(len(b)))
	if c.svc(RngGet, addr, uint32(len(b))).Args[0] != Success {
		return false
	}
	copy(b, buf)
	return true
}

// RegisterCallback gives fn an address in the applet code region the kernel
// can call back into.
func (c *Client) RegisterCallback(fn func(args [4]uint32) uint32) uint32 {
	addr := c.code.Start + callbackBase + uint32(len(c.callbacks))*mem.WordSize
	c.callbacks[addr] = fn
	return addr
}

// Trampoline is the entry the kernel uses for callbacks.
func (c *Client) Trampoline(addr uint32, args [4]uint32) {
	var r uint32
	if fn := c.callbacks[addr]; fn != nil {
		r = fn(args)
	}
	c.svc(ReturnFromCallback, r)
}

// StorageInit sets up storage with salt. progress, if set, is called during
// long operations; returning true aborts them.
func (c *Client) StorageInit(progress ProgressFunc, salt []byte) bool {
	var cb uint32
	if progress != nil {
		cb = c.RegisterCallback(func(args [4]uint32) uint32 {
			if progress(args[0], args[1]) {
				return 1
			}
			return 0
		})
	}
	c.scratch.Reset()
	sp, sl := c.put(salt)
	return c.svc(StorageInit, cb, sp, sl).Args[0] == Success
}

func (c *Client) StorageUnlock(pin []byte) bool {
	c.scratch.Reset()
	p, n := c.put(pin)
	return c.svc(StorageUnlock, p, n).Args[0] == Success
}
