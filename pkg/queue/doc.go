// Package queue provides bounded FIFO queues that never block producers.
//
// When a queue is full, Put evicts the oldest item and appends the new one
// in a single critical section, so a concurrent consumer draining the last
// slot can never observe a half-finished eviction. Consumers block (or
// suspend) in Get until an item arrives.
//
// Two backends implement the same Queue contract:
//   - NewBlocking: a mutex and sync.Cond, for goroutines that simply wait
//   - NewCooperative: a wake-up channel, for consumers that select over
//     several sources via Ready
//
// Close enqueues a terminal sentinel. Items ahead of it are still delivered;
// once a consumer reaches it every Get returns ErrClosed:
//
//	q, _ := queue.NewCooperative[Event](256)
//	go func() {
//	    for ev := range q.All(ctx) {
//	        handle(ev)
//	    }
//	}()
//	q.Put(ev)
//	q.Close()
//
// Statistics are always collected. Prometheus metrics are enabled with
// WithMetrics.
package queue
