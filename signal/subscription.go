package signal

import (
	stderrors "errors"
	"sync"

	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/pkg/queue"
)

// SubscribeOption configures Subscribe.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	blocking  bool
	queueOpts []queue.Option[Signal]
}

// WithBlockingQueue backs the subscription with the condition-variable
// queue instead of the cooperative one.
func WithBlockingQueue() SubscribeOption {
	return func(o *subscribeOptions) {
		o.blocking = true
	}
}

// WithQueueOptions passes options through to the queue constructor.
func WithQueueOptions(opts ...queue.Option[Signal]) SubscribeOption {
	return func(o *subscribeOptions) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// Subscription is a slot that feeds an overflow queue, decoupling a single
// consumer from the emitters. When the consumer falls behind, the oldest
// queued signals are dropped.
type Subscription struct {
	bus   Bus
	id    SlotID
	queue queue.Queue[Signal]
	once  sync.Once
}

// Subscribe connects a queue-backed slot to bus. Replayed state from a
// caching store is already queued when Subscribe returns.
func Subscribe(bus Bus, filter Filter, capacity int, opts ...SubscribeOption) (*Subscription, error) {
	o := &subscribeOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	newQueue := queue.NewCooperative[Signal]
	if o.blocking {
		newQueue = queue.NewBlocking[Signal]
	}
	q, err := newQueue(capacity, o.queueOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "Subscription", "Subscribe", "queue creation")
	}

	id := bus.Connect(filter, func(sig Signal) error {
		// A delivery racing Close is dropped quietly.
		if err := q.Put(sig); err != nil && !stderrors.Is(err, queue.ErrClosed) {
			return err
		}
		return nil
	})
	if id == 0 {
		q.Close()
		return nil, errors.WrapInvalid(errors.ErrAlreadyStopped, "Subscription", "Subscribe", "connect")
	}
	return &Subscription{bus: bus, id: id, queue: q}, nil
}

// ID returns the slot id.
func (s *Subscription) ID() SlotID {
	return s.id
}

// Queue returns the queue the slot feeds. Consumers read it with Get or
// All until it reports queue.ErrClosed.
func (s *Subscription) Queue() queue.Queue[Signal] {
	return s.queue
}

// Close disconnects the slot and closes the queue. Signals already queued
// are still delivered before the close is observed.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.bus.Disconnect(s.id)
		s.queue.Close()
	})
	return nil
}
