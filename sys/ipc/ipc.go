// Package ipc passes messages between tasks through ring buffers owned by
// the receiver. Sending never blocks: a message either fits in the
// receiver's buffer or the send fails.
package ipc

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"firmcore/sys/mem"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

// HeaderSize is the framing in front of every payload: fn and size, both
// little endian uint32.
const HeaderSize = 8

// Error is an IPC failure.
type Error uint8

const (
	ErrMisaligned Error = iota + 1
	ErrInvalidRemote
	ErrPending
	ErrNoBuffer
	ErrNoSpace
	ErrTooLarge
	ErrNotReceived
)

func (e Error) String() string {
	switch e {
	case ErrMisaligned:
		return "buffer not word aligned"
	case ErrInvalidRemote:
		return "invalid remote task"
	case ErrPending:
		return "messages outstanding"
	case ErrNoBuffer:
		return "no buffer registered"
	case ErrNoSpace:
		return "buffer full"
	case ErrTooLarge:
		return "message larger than buffer"
	case ErrNotReceived:
		return "message not received"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "ipc: " + e.String() }

// Message is a received message. Data aliases the receiver's buffer and is
// valid until Free.
type Message struct {
	Remote systask.ID
	Fn     uint32
	Data   []byte

	off uint32
}

// Offset is the position of the message header in the receive buffer.
func (m Message) Offset() uint32 { return m.off }

type entry struct {
	off       uint32
	framed    uint32
	size      uint32
	fn        uint32
	delivered bool
	freed     bool
}

type key struct {
	receiver, remote systask.ID
}

type queue struct {
	buf  []byte
	msgs []entry
}

// IPC holds every registered receive buffer.
type IPC struct {
	mu     sync.Mutex
	queues map[key]*queue
	reg    *syshandle.Registry
	self   func() systask.ID
	log    hclog.Logger
}

// New returns an IPC whose caller identity is given by self, normally the
// active task.
func New(reg *syshandle.Registry, self func() systask.ID, log hclog.Logger) *IPC {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &IPC{
		queues: make(map[key]*queue),
		reg:    reg,
		self:   self,
		log:    log.Named("ipc"),
	}
}

func validRemote(id systask.ID) bool { return int(id) < systask.MaxTasks }

func framedSize(n int) uint32 {
	return uint32(HeaderSize + (n+mem.WordSize-1)&^(mem.WordSize-1))
}

// Register designates buf to receive messages from remote. Replacing a
// buffer that still holds messages fails with ErrPending.
func (i *IPC) Register(remote systask.ID, buf []byte) error {
	if !validRemote(remote) {
		return ErrInvalidRemote
	}
	if len(buf)%mem.WordSize != 0 || len(buf) < HeaderSize {
		return ErrMisaligned
	}
	k := key{i.self(), remote}

	i.mu.Lock()
	defer i.mu.Unlock()
	if q := i.queues[k]; q != nil && len(q.msgs) > 0 {
		return ErrPending
	}
	i.queues[k] = &queue{buf: buf}
	i.log.Debug("buffer registered", "receiver", k.receiver, "remote", remote, "size", len(buf))
	return nil
}

// Unregister drops the buffer for remote. It fails with ErrPending while
// messages are outstanding.
func (i *IPC) Unregister(remote systask.ID) error {
	if !validRemote(remote) {
		return ErrInvalidRemote
	}
	k := key{i.self(), remote}

	i.mu.Lock()
	defer i.mu.Unlock()
	q := i.queues[k]
	if q == nil {
		return ErrNoBuffer
	}
	if len(q.msgs) > 0 {
		return ErrPending
	}
	delete(i.queues, k)
	return nil
}

// Send copies data into remote's buffer for the calling task.
func (i *IPC) Send(remote systask.ID, fn uint32, data []byte) error {
	if !validRemote(remote) {
		return ErrInvalidRemote
	}
	sender := i.self()

	i.mu.Lock()
	q := i.queues[key{remote, sender}]
	if q == nil {
		i.mu.Unlock()
		return ErrNoBuffer
	}
	n := framedSize(len(data))
	if n > uint32(len(q.buf)) {
		i.mu.Unlock()
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, n, len(q.buf))
	}
	off, ok := q.alloc(n)
	if !ok {
		i.mu.Unlock()
		return ErrNoSpace
	}
	binary.LittleEndian.PutUint32(q.buf[off:], fn)
	binary.LittleEndian.PutUint32(q.buf[off+4:], uint32(len(data)))
	copy(q.buf[off+HeaderSize:], data)
	q.msgs = append(q.msgs, entry{off: off, framed: n, size: uint32(len(data)), fn: fn})
	i.mu.Unlock()

	if i.reg != nil {
		i.reg.SignalReadReady(syshandle.IPC(sender), nil)
	}
	return nil
}

// alloc finds room for n bytes after the newest message, wrapping to the
// start of the buffer when the tail is too short.
func (q *queue) alloc(n uint32) (uint32, bool) {
	size := uint32(len(q.buf))
	if len(q.msgs) == 0 {
		return 0, n <= size
	}
	first := q.msgs[0]
	last := q.msgs[len(q.msgs)-1]
	end := last.off + last.framed

	if last.off >= first.off {
		if end+n <= size {
			return end, true
		}
		return 0, n <= first.off
	}
	return end, end+n <= first.off
}

// TryReceive returns the oldest undelivered message from remote.
func (i *IPC) TryReceive(remote systask.ID) (Message, bool) {
	if !validRemote(remote) {
		return Message{}, false
	}
	k := key{i.self(), remote}

	i.mu.Lock()
	defer i.mu.Unlock()
	q := i.queues[k]
	if q == nil {
		return Message{}, false
	}
	for j := range q.msgs {
		e := &q.msgs[j]
		if e.delivered {
			continue
		}
		e.delivered = true
		start := e.off + HeaderSize
		return Message{
			Remote: remote,
			Fn:     e.fn,
			Data:   q.buf[start : start+e.size : start+e.size],
			off:    e.off,
		}, true
	}
	return Message{}, false
}

// Free releases a received message.
func (i *IPC) Free(msg Message) error {
	return i.Release(msg.Remote, msg.off)
}

// Release frees the received message at off in the buffer for remote.
// Space is reclaimed once every older message is free too.
func (i *IPC) Release(remote systask.ID, off uint32) error {
	if !validRemote(remote) {
		return ErrInvalidRemote
	}
	k := key{i.self(), remote}

	i.mu.Lock()
	defer i.mu.Unlock()
	q := i.queues[k]
	if q == nil {
		return ErrNoBuffer
	}
	for j := range q.msgs {
		e := &q.msgs[j]
		if e.off != off || !e.delivered || e.freed {
			continue
		}
		e.freed = true
		for len(q.msgs) > 0 && q.msgs[0].freed {
			q.msgs = q.msgs[1:]
		}
		return nil
	}
	return ErrNotReceived
}

// Pending reports whether receiver has an undelivered message from remote.
func (i *IPC) Pending(receiver, remote systask.ID) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	q := i.queues[key{receiver, remote}]
	if q == nil {
		return false
	}
	for _, e := range q.msgs {
		if !e.delivered {
			return true
		}
	}
	return false
}

func (i *IPC) drop(receiver, remote systask.ID) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.queues, key{receiver, remote})
}
