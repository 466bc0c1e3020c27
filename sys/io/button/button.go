// Package button is the button input driver. Key transitions from the HAL
// are queued and offered to tasks through the Button syshandle.
package button

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"firmcore/hal"
	"firmcore/sys/io/fifo"
	"firmcore/sys/syshandle"
	"firmcore/sys/systask"
)

// EventSize is the encoded size of an Event: key, pressed, two pad bytes.
const EventSize = 4

const depth = 16

// Event is one key transition.
type Event struct {
	Key     hal.KeyCode
	Pressed bool
}

func (e Event) encode(p []byte) {
	p[0] = byte(e.Key)
	p[1] = 0
	if e.Pressed {
		p[1] = 1
	}
	p[2], p[3] = 0, 0
}

// Decode parses the records returned by a syshandle read.
func Decode(p []byte) []Event {
	var out []Event
	for ; len(p) >= EventSize; p = p[EventSize:] {
		out = append(out, Event{Key: hal.KeyCode(p[0]), Pressed: p[1] != 0})
	}
	return out
}

type Driver struct {
	syshandle.NopHandler
	reg   *syshandle.Registry
	src   <-chan hal.KeyEvent
	queue *fifo.Queue[Event]
	log   hclog.Logger
}

// New returns a driver fed from src. src may be nil when events are pushed
// directly.
func New(reg *syshandle.Registry, src <-chan hal.KeyEvent, log hclog.Logger) *Driver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Driver{
		reg:   reg,
		src:   src,
		queue: fifo.New[Event](depth),
		log:   log.Named("button"),
	}
}

// Attach registers the driver as the Button handle.
func (d *Driver) Attach() error {
	return d.reg.Register(syshandle.Button, d)
}

// Push queues ev and wakes pollers. Safe from interrupt context.
func (d *Driver) Push(ev Event) {
	if d.queue.Push(ev) {
		d.log.Warn("event dropped", "total", d.queue.Dropped())
	}
	d.reg.SignalReadReady(syshandle.Button, nil)
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
			d.Push(Event{Key: ev.Code, Pressed: ev.Press})
		}
	}
}

// Poll drains events the HAL has buffered.
func (d *Driver) Poll(readAwaited, _ bool) {
	if d.src == nil {
		return
	}
	for {
		select {
		case ev, ok := <-d.src:
			if !ok {
				return
			}
			d.Push(Event{Key: ev.Code, Pressed: ev.Press})
		default:
			return
		}
	}
}

func (d *Driver) CheckReadReady(systask.ID, any) bool {
	return d.queue.Len() > 0
}

// Read copies whole events into p.
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

// Next pops one event for kernel side consumers.
func (d *Driver) Next() (Event, bool) {
	return d.queue.Pop()
}
