//go:build !tinygo

package hal

import "time"

// hostTime converts wall time elapsed between runner frames into 1ms ticks.
type hostTime struct {
	ch  chan uint64
	seq uint64

	last time.Time
	acc  time.Duration
}

func newHostTime() *hostTime {
	return &hostTime{ch: make(chan uint64, 1024)}
}

func (t *hostTime) Ticks() <-chan uint64 { return t.ch }

func (t *hostTime) step(now time.Time) {
	if t.last.IsZero() {
		t.last = now
		t.emit(1)
		return
	}
	t.acc += now.Sub(t.last)
	t.last = now

	ticks := uint64(t.acc / time.Millisecond)
	if ticks == 0 {
		return
	}
	t.acc %= time.Millisecond
	t.emit(ticks)
}

// emit drops ticks the consumer is too slow to take.
func (t *hostTime) emit(n uint64) {
	for i := uint64(0); i < n; i++ {
		t.seq++
		select {
		case t.ch <- t.seq:
		default:
		}
	}
}
