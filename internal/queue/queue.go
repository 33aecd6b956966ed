// Package queue provides an unbounded FIFO shared between goroutines.
package queue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO. Pushes never block. Once closed, pops drain
// what is left and then return the close error.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	err    error
	notify chan struct{}
	closed chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Notify receives a value after pushes. A single consumer can select on it
// and then Drain.
func (q *Queue[T]) Notify() <-chan struct{} {
	return q.notify
}

// Push appends v, or returns the close error.
func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.items = append(q.items, v)
	q.signal()
	return nil
}

// Close stops further pushes. Only the first error is kept.
func (q *Queue[T]) Close(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	close(q.closed)
}

// Drain removes and returns everything queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pop waits for the next item.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items[0] = zero
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return v, nil
		}
		if q.err != nil {
			err := q.err
			q.mu.Unlock()
			return zero, err
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-q.closed:
		case <-q.notify:
		}
	}
}
