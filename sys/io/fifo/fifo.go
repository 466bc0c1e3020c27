// Package fifo is the bounded event queue shared by the input drivers.
package fifo

import "sync"

// Queue is a bounded FIFO. Push from interrupt context never blocks; when
// full the oldest entry is dropped.
type Queue[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    int
	n       int
	dropped uint32
}

func New[T any](depth int) *Queue[T] {
	if depth < 1 {
		depth = 1
	}
	return &Queue[T]{buf: make([]T, depth)}
}

// Push appends v and reports whether an older entry was dropped for it.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := false
	if q.n == len(q.buf) {
		q.head = (q.head + 1) % len(q.buf)
		q.n--
		q.dropped++
		dropped = true
	}
	q.buf[(q.head+q.n)%len(q.buf)] = v
	q.n++
	return dropped
}

func (q *Queue[T]) Pop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var zero T
	if q.n == 0 {
		return zero, false
	}
	v := q.buf[q.head]
	q.buf[q.head] = zero
	q.head = (q.head + 1) % len(q.buf)
	q.n--
	return v, true
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}

// Dropped counts entries lost to overflow.
func (q *Queue[T]) Dropped() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
