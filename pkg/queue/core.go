package queue

import (
	"sync"

	"github.com/c360/protosignal/errors"
)

// entry is one ring slot. The close sentinel is an entry with last set.
type entry[T any] struct {
	item T
	last bool
}

// core is the ring and bookkeeping shared by both backends. All fields
// below mu are guarded by it.
type core[T any] struct {
	capacity int
	stats    *Statistics
	metrics  *queueMetrics
	onDrop   DropCallback[T]

	mu      sync.Mutex
	ring    []entry[T]
	head    int
	size    int
	closed  bool // sentinel enqueued
	drained bool // sentinel consumed
}

func newCore[T any](capacity int, opts *queueOptions[T]) (*core[T], error) {
	if capacity <= 0 {
		capacity = 1
	}

	var metrics *queueMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newQueueMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "queue", "newCore", "metrics registration")
		}
	}

	// One extra slot keeps room for the sentinel without evicting a
	// real item.
	return &core[T]{
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
		onDrop:   opts.dropCallback,
		ring:     make([]entry[T], capacity+1),
	}, nil
}

// pushLocked appends e. A real item evicts the oldest entry when capacity
// items are queued. Returns the evicted item, if any.
func (c *core[T]) pushLocked(e entry[T]) (T, bool) {
	var dropped T
	evicted := false

	if !e.last && c.size == c.capacity {
		old := c.ring[c.head]
		c.ring[c.head] = entry[T]{}
		c.head = (c.head + 1) % len(c.ring)
		c.size--
		dropped, evicted = old.item, true

		c.stats.Overflow()
		if c.metrics != nil {
			c.metrics.recordOverflow()
		}
	}

	c.ring[(c.head+c.size)%len(c.ring)] = e
	c.size++

	if !e.last {
		c.stats.Put()
		c.stats.UpdateSize(int64(c.size))
		if c.metrics != nil {
			c.metrics.recordPut(c.size, c.capacity)
		}
	}
	return dropped, evicted
}

// popLocked removes the oldest entry.
func (c *core[T]) popLocked() (entry[T], bool) {
	if c.size == 0 {
		return entry[T]{}, false
	}
	e := c.ring[c.head]
	c.ring[c.head] = entry[T]{}
	c.head = (c.head + 1) % len(c.ring)
	c.size--

	if e.last {
		c.drained = true
		return e, true
	}
	c.stats.Get()
	c.stats.UpdateSize(int64(c.size))
	if c.metrics != nil {
		c.metrics.recordGet(c.size, c.capacity)
	}
	return e, true
}

// put runs the shared Put path; notify is called under the lock after a
// successful append.
func (c *core[T]) put(item T, notify func()) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errors.WrapInvalid(ErrClosed, "Queue", "Put", "enqueue")
	}
	dropped, evicted := c.pushLocked(entry[T]{item: item})
	notify()
	c.mu.Unlock()

	if evicted {
		c.drop(dropped)
	}
	return nil
}

// close enqueues the sentinel once.
func (c *core[T]) close(notify func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.pushLocked(entry[T]{last: true})
	notify()
}

func (c *core[T]) drop(item T) {
	c.stats.Drop()
	if c.metrics != nil {
		c.metrics.recordDrop()
	}
	if c.onDrop != nil {
		c.onDrop(item)
	}
}

func (c *core[T]) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed && !c.drained {
		return c.size - 1
	}
	return c.size
}
