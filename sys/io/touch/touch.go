// Package touch is the touch panel input driver, exposed through the Touch
// syshandle.
package touch

import (
	"context"
	"encoding/binary"

	"github.com/hashicorp/go-hclog"

	"firmcore/hal"
	"firmcore/sys/io/fifo"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

// EventSize is the encoded size of an Event: x, y (int16 LE), pressed and
// a pad byte, padded to a word.
const EventSize = 8

const depth = 32

type Event struct {
	X, Y    int16
	Pressed bool
}

func (e Event) encode(p []byte) {
	binary.LittleEndian.PutUint16(p, uint16(e.X))
	binary.LittleEndian.PutUint16(p[2:], uint16(e.Y))
	clear(p[4:EventSize])
	if e.Pressed {
		p[4] = 1
	}
}

// Decode parses the records returned by a syshandle read.
func Decode(p []byte) []Event {
	var out []Event
	for ; len(p) >= EventSize; p = p[EventSize:] {
		out = append(out, Event{
			X:       int16(binary.LittleEndian.Uint16(p)),
			Y:       int16(binary.LittleEndian.Uint16(p[2:])),
			Pressed: p[4] != 0,
		})
	}
	return out
}

type Driver struct {
	syshandle.NopHandler
	reg   *syshandle.Registry
	src   <-chan hal.TouchEvent
	queue *fifo.Queue[Event]
	log   hclog.Logger
}

func New(reg *syshandle.Registry, src <-chan hal.TouchEvent, log hclog.Logger) *Driver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Driver{
		reg:   reg,
		src:   src,
		queue: fifo.New[Event](depth),
		log:   log.Named("touch"),
	}
}

func (d *Driver) Attach() error {
	return d.reg.Register(syshandle.Touch, d)
}

// Push queues ev and wakes pollers. Safe from interrupt context.
func (d *Driver) Push(ev Event) {
	if d.queue.Push(ev) {
		d.log.Trace("event dropped", "total", d.queue.Dropped())
	}
	d.reg.SignalReadReady(syshandle.Touch, nil)
}

func convert(ev hal.TouchEvent) Event {
	return Event{X: ev.X, Y: ev.Y, Pressed: ev.Press}
}

// Run forwards HAL events as they arrive until ctx is done.
func (d *Driver) Run(ctx context.Context) {
	if d.src == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.src:
			if !ok {
				return
			}
			d.Push(convert(ev))
		}
	}
}

func (d *Driver) Poll(readAwaited, _ bool) {
	for d.src != nil {
		select {
		case ev, ok := <-d.src:
			if !ok {
				return
			}
			d.Push(convert(ev))
		default:
			return
		}
	}
}

func (d *Driver) CheckReadReady(systask.ID, any) bool {
	return d.queue.Len() > 0
}

func (d *Driver) Read(_ systask.ID, p []byte) int {
	n := 0
	for len(p)-n >= EventSize {
		ev, ok := d.queue.Pop()
		if !ok {
			break
		}
		ev.encode(p[n:])
		n += EventSize
	}
	return n
}

func (d *Driver) Next() (Event, bool) {
	return d.queue.Pop()
}
