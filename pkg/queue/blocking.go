package queue

import (
	"context"
	"iter"
	"sync"
)

// blockingQueue parks consumers on a sync.Cond.
type blockingQueue[T any] struct {
	*core[T]
	notEmpty *sync.Cond
}

func newBlockingQueue[T any](c *core[T]) *blockingQueue[T] {
	return &blockingQueue[T]{core: c, notEmpty: sync.NewCond(&c.mu)}
}

// Put appends item, evicting the oldest item when full.
func (q *blockingQueue[T]) Put(item T) error {
	return q.put(item, q.notEmpty.Signal)
}

// Get waits for an item. Cancelling ctx wakes the waiter.
func (q *blockingQueue[T]) Get(ctx context.Context) (T, error) {
	var zero T

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.notEmpty.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if q.drained {
			return zero, ErrClosed
		}
		if e, ok := q.popLocked(); ok {
			if e.last {
				// Wake every other consumer so they observe drained.
				q.notEmpty.Broadcast()
				return zero, ErrClosed
			}
			return e.item, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		q.notEmpty.Wait()
	}
}

// All yields items until the sentinel is reached or ctx is done.
func (q *blockingQueue[T]) All(ctx context.Context) iter.Seq[T] {
	return all[T](ctx, q)
}

// Close enqueues the sentinel and wakes a waiting consumer.
func (q *blockingQueue[T]) Close() error {
	q.close(q.notEmpty.Signal)
	return nil
}

// Len returns the number of queued items.
func (q *blockingQueue[T]) Len() int { return q.len() }

// Capacity returns the maximum number of items held.
func (q *blockingQueue[T]) Capacity() int { return q.capacity }

// Stats returns queue statistics.
func (q *blockingQueue[T]) Stats() *Statistics { return q.stats }
