package fifo

import "testing"

func TestQueueOrder(t *testing.T) {
	q := New[int](4)
	for i := 1; i <= 3; i++ {
		q.Push(i)
	}
	for want := 1; want <= 3; want++ {
		got, ok := q.Pop()
		if !ok || got != want {
			t.Fatalf("Pop() = %d, %v, want %d, true", got, ok, want)
		}
	}
	if _, ok := q.Pop(); ok {
		t.Fatalf("Pop() on empty queue succeeded")
	}
}

func TestQueueDropsOldest(t *testing.T) {
	q := New[int](2)
	q.Push(1)
	q.Push(2)
	if !q.Push(3) {
		t.Fatalf("Push() on full queue did not report a drop")
	}
	if got, _ := q.Pop(); got != 2 {
		t.Fatalf("Pop() = %d, want 2", got)
	}
	if q.Len() != 1 || q.Dropped() != 1 {
		t.Fatalf("Len() = %d, Dropped() = %d, want 1, 1", q.Len(), q.Dropped())
	}
}
