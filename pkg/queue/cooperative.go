package queue

import (
	"context"
	"iter"
)

// cooperativeQueue suspends consumers in a select on a one-slot wake
// channel, so Get composes with ctx and callers can watch Ready alongside
// other channels.
type cooperativeQueue[T any] struct {
	*core[T]
	wake chan struct{}
}

func newCooperativeQueue[T any](c *core[T]) *cooperativeQueue[T] {
	return &cooperativeQueue[T]{core: c, wake: make(chan struct{}, 1)}
}

func (q *cooperativeQueue[T]) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Ready receives a value whenever items may have become available.
func (q *cooperativeQueue[T]) Ready() <-chan struct{} {
	return q.wake
}

// Put appends item, evicting the oldest item when full.
func (q *cooperativeQueue[T]) Put(item T) error {
	return q.put(item, q.signal)
}

// Get suspends until an item is available, the sentinel is reached, or ctx
// is done.
func (q *cooperativeQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T
	for {
		q.mu.Lock()
		if q.drained {
			q.mu.Unlock()
			q.signal()
			return zero, ErrClosed
		}
		e, ok := q.popLocked()
		more := q.size > 0
		q.mu.Unlock()

		if ok {
			// Pass the token on so another consumer sees what is left.
			if more || e.last {
				q.signal()
			}
			if e.last {
				return zero, ErrClosed
			}
			return e.item, nil
		}

		select {
		case <-q.wake:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// All yields items until the sentinel is reached or ctx is done.
func (q *cooperativeQueue[T]) All(ctx context.Context) iter.Seq[T] {
	return all[T](ctx, q)
}

// Close enqueues the sentinel and wakes a suspended consumer.
func (q *cooperativeQueue[T]) Close() error {
	q.close(q.signal)
	return nil
}

// Len returns the number of queued items.
func (q *cooperativeQueue[T]) Len() int { return q.len() }

// Capacity returns the maximum number of items held.
func (q *cooperativeQueue[T]) Capacity() int { return q.capacity }

// Stats returns queue statistics.
func (q *cooperativeQueue[T]) Stats() *Statistics { return q.stats }
