package queue

import (
	"context"
	"iter"

	"github.com/c360/protosignal/errors"
)

// ErrClosed is returned by Get once the close sentinel has been consumed,
// and by Put after Close.
var ErrClosed = errors.ErrQueueClosed

// Queue is a bounded FIFO with replace-oldest overflow.
type Queue[T any] interface {
	// Put appends item, evicting the oldest item when the queue is full.
	// It never blocks and fails only after Close.
	Put(item T) error

	// Get removes and returns the oldest item, waiting until one is
	// available, ctx is done, or the close sentinel is reached.
	Get(ctx context.Context) (T, error)

	// All yields items until the sentinel is reached or ctx is done.
	All(ctx context.Context) iter.Seq[T]

	// Close enqueues the terminal sentinel. Calling it again is a no-op.
	Close() error

	// Len returns the number of items waiting, excluding the sentinel.
	Len() int

	// Capacity returns the maximum number of items held.
	Capacity() int

	// Stats returns queue statistics (always available for observability).
	Stats() *Statistics
}

// DropCallback is called, outside the queue lock, with every item evicted
// by overflow.
type DropCallback[T any] func(item T)

// NewBlocking creates a queue whose consumers wait on a condition variable.
func NewBlocking[T any](capacity int, options ...Option[T]) (Queue[T], error) {
	c, err := newCore(capacity, applyOptions(options...))
	if err != nil {
		return nil, err
	}
	return newBlockingQueue(c), nil
}

// NewCooperative creates a queue whose consumers suspend on a wake-up
// channel. The returned queue also implements Waker.
func NewCooperative[T any](capacity int, options ...Option[T]) (Queue[T], error) {
	c, err := newCore(capacity, applyOptions(options...))
	if err != nil {
		return nil, err
	}
	return newCooperativeQueue(c), nil
}

// Waker is implemented by queues that expose their wake-up channel.
type Waker interface {
	// Ready receives a value whenever items may have become available.
	Ready() <-chan struct{}
}

func all[T any](ctx context.Context, q Queue[T]) iter.Seq[T] {
	return func(yield func(T) bool) {
		for {
			item, err := q.Get(ctx)
			if err != nil {
				return
			}
			if !yield(item) {
				return
			}
		}
	}
}
