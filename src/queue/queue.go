package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Dequeue when no item arrived in time.
var ErrTimeout = errors.New("queue: dequeue timed out")

// Queue is an unbounded FIFO shared between realtime goroutines.
// Any number of producers and consumers may use it concurrently.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	head  int
	// signal holds at most one pending wakeup for waiting consumers.
	signal chan struct{}
}

// New ...
func New[T any](capacityHint int) *Queue[T] {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &Queue[T]{
		items:  make([]T, 0, capacityHint),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends item to the tail. It never blocks.
func (q *Queue[T]) Enqueue(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// TryDequeue removes the head item without waiting.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

// Dequeue waits for the head item. A timeout <= 0 waits until ctx is done.
func (q *Queue[T]) Dequeue(ctx context.Context, timeout time.Duration) (T, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}
	for {
		q.mu.Lock()
		item, ok := q.pop()
		q.mu.Unlock()
		if ok {
			return item, nil
		}
		select {
		case <-q.signal:
		case <-deadline:
			var zero T
			return zero, ErrTimeout
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Len ...
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// pop must be called with mu held.
func (q *Queue[T]) pop() (T, bool) {
	var zero T
	if q.head == len(q.items) {
		return zero, false
	}
	item := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	} else if q.head > cap(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		for i := n; i < len(q.items); i++ {
			q.items[i] = zero
		}
		q.items = q.items[:n]
		q.head = 0
	}
	if q.head < len(q.items) {
		// wake the next waiter since the signal slot was consumed
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return item, true
}
