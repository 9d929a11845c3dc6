package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/signal"
)

// Directions used in logs and metric labels.
const (
	DirectionOut = "out"
	DirectionIn  = "in"
)

// Transport moves raw payloads between processes. natsclient.Client
// satisfies it.
type Transport interface {
	Publish(ctx context.Context, subject string, data []byte) error
	Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error
}

// Stats counts relay traffic.
type Stats struct {
	Sent     uint64
	Received uint64
	Echoes   uint64 // own envelopes dropped on receipt
	Failures uint64
}

type counters struct {
	sent, received, echoes, failures atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Sent:     c.sent.Load(),
		Received: c.received.Load(),
		Echoes:   c.echoes.Load(),
		Failures: c.failures.Load(),
	}
}

// echoGuard marks signals the subscriber is emitting so the publisher on
// the same bus does not send them back out. Emit delivers synchronously,
// so a mark lives exactly as long as the Emit call.
type echoGuard struct {
	mu      sync.Mutex
	pending map[signal.Signal]int
}

func newEchoGuard() *echoGuard {
	return &echoGuard{pending: make(map[signal.Signal]int)}
}

func (g *echoGuard) enter(sig signal.Signal) {
	g.mu.Lock()
	g.pending[sig]++
	g.mu.Unlock()
}

func (g *echoGuard) leave(sig signal.Signal) {
	g.mu.Lock()
	if g.pending[sig] <= 1 {
		delete(g.pending, sig)
	} else {
		g.pending[sig]--
	}
	g.mu.Unlock()
}

func (g *echoGuard) remote(sig signal.Signal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[sig] > 0
}

// Publisher is a slot that forwards every matching signal on a bus to the
// transport, wrapped in an envelope stamped with its origin. A caching
// store replays its state to the publisher when it starts.
type Publisher struct {
	bus       signal.Bus
	transport Transport
	codec     *EnvelopeCodec
	opts      *options
	guard     *echoGuard
	stats     counters

	startMu sync.Mutex // serializes Start and Stop
	mu      sync.Mutex
	id      signal.SlotID
	ctx     context.Context
}

// NewPublisher creates a Publisher for bus.
func NewPublisher(bus signal.Bus, transport Transport, opts ...Option) (*Publisher, error) {
	o := applyOptions("publisher", opts)
	ec, err := NewEnvelopeCodec(o.format, o.resolver)
	if err != nil {
		return nil, errors.Wrap(err, "Publisher", "NewPublisher", "envelope codec")
	}
	return newPublisher(bus, transport, ec, o, newEchoGuard()), nil
}

func newPublisher(bus signal.Bus, transport Transport, ec *EnvelopeCodec, o *options, guard *echoGuard) *Publisher {
	return &Publisher{bus: bus, transport: transport, codec: ec, opts: o, guard: guard}
}

// Origin returns the origin id stamped on outgoing envelopes.
func (p *Publisher) Origin() string {
	return p.opts.origin
}

// Stats returns a snapshot of the traffic counters.
func (p *Publisher) Stats() Stats {
	return p.stats.snapshot()
}

// Start connects the publisher to its bus. ctx is passed to every
// transport publish.
func (p *Publisher) Start(ctx context.Context) error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	if p.id != 0 {
		p.mu.Unlock()
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Publisher", "Start", "connect slot")
	}
	p.ctx = ctx
	p.mu.Unlock()

	// Connect may replay cached state through publish; it must not hold mu.
	id := p.bus.Connect(p.opts.filter(), p.publish)
	if id == 0 {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Publisher", "Start", "connect slot")
	}

	p.mu.Lock()
	p.id = id
	p.mu.Unlock()

	p.opts.logger.Info("Relay publisher started", "prefix", p.opts.prefix, "format", p.codec.Format())
	return nil
}

// Stop disconnects the publisher. Stopping twice is a no-op.
func (p *Publisher) Stop() error {
	p.startMu.Lock()
	defer p.startMu.Unlock()

	p.mu.Lock()
	id := p.id
	p.id = 0
	p.mu.Unlock()

	if id != 0 {
		p.bus.Disconnect(id)
		p.opts.logger.Info("Relay publisher stopped", "sent", p.stats.sent.Load())
	}
	return nil
}

func (p *Publisher) publishContext() context.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return context.Background()
	}
	return p.ctx
}

// publish is the slot callback. Failures are returned to the store, which
// logs them.
func (p *Publisher) publish(sig signal.Signal) error {
	if p.guard.remote(sig) {
		return nil
	}

	data, err := p.codec.Marshal(Envelope{Origin: p.opts.origin, SentAt: time.Now().UTC(), Signal: sig})
	if err != nil {
		p.failed()
		return errors.Wrap(err, "Publisher", "publish", "encode "+sig.String())
	}

	subject := p.opts.subject(sig.Topic)
	if err := p.transport.Publish(p.publishContext(), subject, data); err != nil {
		p.failed()
		return errors.WrapTransient(err, "Publisher", "publish", "publish "+subject)
	}

	p.stats.sent.Add(1)
	if p.opts.metrics != nil {
		p.opts.metrics.RecordRelayMessage(DirectionOut)
	}
	return nil
}

func (p *Publisher) failed() {
	p.stats.failures.Add(1)
	if p.opts.metrics != nil {
		p.opts.metrics.RecordRelayError(DirectionOut)
	}
}

// Subscriber receives envelopes from the transport and emits the signals
// they carry into a bus. Envelopes stamped with its own origin are
// dropped.
type Subscriber struct {
	bus       signal.Bus
	transport Transport
	codec     *EnvelopeCodec
	opts      *options
	guard     *echoGuard
	topics    signal.Filter
	stats     counters

	mu      sync.Mutex
	running bool
	stopped bool
	// ctx is set once, before any handler is registered.
	ctx    context.Context
	cancel context.CancelFunc
}

// NewSubscriber creates a Subscriber emitting into bus.
func NewSubscriber(bus signal.Bus, transport Transport, opts ...Option) (*Subscriber, error) {
	o := applyOptions("subscriber", opts)
	ec, err := NewEnvelopeCodec(o.format, o.resolver)
	if err != nil {
		return nil, errors.Wrap(err, "Subscriber", "NewSubscriber", "envelope codec")
	}
	return newSubscriber(bus, transport, ec, o, newEchoGuard()), nil
}

func newSubscriber(bus signal.Bus, transport Transport, ec *EnvelopeCodec, o *options, guard *echoGuard) *Subscriber {
	return &Subscriber{
		bus:       bus,
		transport: transport,
		codec:     ec,
		opts:      o,
		guard:     guard,
		topics:    signal.Topics(o.topics...),
	}
}

// Origin returns the origin id whose envelopes are dropped.
func (s *Subscriber) Origin() string {
	return s.opts.origin
}

// Stats returns a snapshot of the traffic counters.
func (s *Subscriber) Stats() Stats {
	return s.stats.snapshot()
}

// Start subscribes to the relay subjects. Received signals are emitted
// until ctx is done or Stop is called.
func (s *Subscriber) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Subscriber", "Start", "subscribe")
	}
	if s.stopped {
		// The transport cannot drop the old handlers, so no restart.
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Subscriber", "Start", "subscribe")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, subject := range s.opts.subscriptions() {
		if err := s.transport.Subscribe(s.ctx, subject, s.handle); err != nil {
			s.cancel()
			s.stopped = true
			return errors.WrapTransient(err, "Subscriber", "Start", "subscribe "+subject)
		}
	}

	s.running = true
	s.opts.logger.Info("Relay subscriber started", "subjects", s.opts.subscriptions(), "format", s.codec.Format())
	return nil
}

// Stop stops emitting received signals. The transport subscription stays
// registered until the transport is closed; later messages are ignored. A
// stopped Subscriber cannot be started again.
func (s *Subscriber) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.stopped = true
	s.cancel()
	s.opts.logger.Info("Relay subscriber stopped", "received", s.stats.received.Load())
	return nil
}

func (s *Subscriber) handle(ctx context.Context, data []byte) {
	if s.ctx.Err() != nil || ctx.Err() != nil {
		return
	}

	env, err := s.codec.Unmarshal(data)
	if err != nil {
		s.stats.failures.Add(1)
		if s.opts.metrics != nil {
			s.opts.metrics.RecordRelayError(DirectionIn)
		}
		s.opts.logger.Warn("Dropping undecodable envelope", "bytes", len(data), "error", err)
		return
	}

	if env.Origin == s.opts.origin {
		s.stats.echoes.Add(1)
		return
	}
	if !s.topics.Accepts(env.Signal) {
		return
	}

	s.stats.received.Add(1)
	if s.opts.metrics != nil {
		s.opts.metrics.RecordRelayMessage(DirectionIn)
	}

	sig := env.Signal
	s.guard.enter(sig)
	defer s.guard.leave(sig)
	s.bus.Emit(sig)
}

// Relay mirrors a bus over a transport in both directions: local signals
// are published, remote ones are emitted locally, and neither loops back.
type Relay struct {
	pub *Publisher
	sub *Subscriber
}

// New creates a Relay for bus. The publisher and subscriber share one
// origin id and envelope codec.
func New(bus signal.Bus, transport Transport, opts ...Option) (*Relay, error) {
	o := applyOptions("relay", opts)
	ec, err := NewEnvelopeCodec(o.format, o.resolver)
	if err != nil {
		return nil, errors.Wrap(err, "Relay", "New", "envelope codec")
	}
	guard := newEchoGuard()
	return &Relay{
		pub: newPublisher(bus, transport, ec, o, guard),
		sub: newSubscriber(bus, transport, ec, o, guard),
	}, nil
}

// Origin returns the relay's origin id.
func (r *Relay) Origin() string {
	return r.pub.Origin()
}

// Publisher returns the outgoing half.
func (r *Relay) Publisher() *Publisher {
	return r.pub
}

// Subscriber returns the incoming half.
func (r *Relay) Subscriber() *Subscriber {
	return r.sub
}

// Start starts the publisher, which replays cached local state to the
// transport, and then the subscriber.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.pub.Start(ctx); err != nil {
		return err
	}
	if err := r.sub.Start(ctx); err != nil {
		_ = r.pub.Stop()
		return err
	}
	return nil
}

// Stop stops both halves.
func (r *Relay) Stop() error {
	err := r.sub.Stop()
	if perr := r.pub.Stop(); err == nil {
		err = perr
	}
	return err
}

// Run starts the relay, waits for ctx to be done and stops it. It fits an
// errgroup.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return r.Stop()
}
