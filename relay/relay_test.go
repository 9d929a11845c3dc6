package relay

import (
	"bytes"
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/metric"
	"github.com/c360/protosignal/signal"
	"github.com/c360/protosignal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// node is one process in a relayed pair: a caching store, its relay and a
// recorder of everything the store delivers.
type node struct {
	store *signal.CachingStore
	relay *Relay

	mu   sync.Mutex
	seen []signal.Signal
}

func newNode(t *testing.T, transport Transport, origin string, opts ...Option) *node {
	t.Helper()
	n := &node{store: signal.NewCachingStore(signal.WithName(origin), signal.WithLogger(quietLogger()))}
	t.Cleanup(func() { _ = n.store.Close() })

	opts = append([]Option{WithOrigin(origin), WithResolver(testutil.Types()), WithLogger(quietLogger())}, opts...)
	r, err := New(n.store, transport, opts...)
	require.NoError(t, err)
	n.relay = r

	n.store.Connect(signal.Filter{}, func(sig signal.Signal) error {
		n.mu.Lock()
		n.seen = append(n.seen, sig)
		n.mu.Unlock()
		return nil
	})
	return n
}

func (n *node) delivered() []signal.Signal {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]signal.Signal(nil), n.seen...)
}

func TestRelay_MirrorsSignalsBetweenStores(t *testing.T) {
	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			ctx := context.Background()
			transport := testutil.NewMockNATSClient()

			a := newNode(t, transport, "node-a", WithFormat(format))
			b := newNode(t, transport, "node-b", WithFormat(format))
			require.NoError(t, a.relay.Start(ctx))
			require.NoError(t, b.relay.Start(ctx))
			defer a.relay.Stop()
			defer b.relay.Stop()

			payload := inner(t, "probe", 3)
			a.store.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "d1", payload))

			cached := b.store.Cached("devices")
			require.Len(t, cached, 1)
			assert.Equal(t, "d1", cached[0].Key)
			assert.True(t, proto.Equal(payload, cached[0].Payload))

			// Exactly one message on the wire: b does not send it back.
			assert.Equal(t, 1, transport.GetMessageCount("signals.devices"))
			assert.Len(t, a.delivered(), 1)
			assert.Len(t, b.delivered(), 1)

			assert.Equal(t, Stats{Sent: 1}, a.relay.Publisher().Stats())
			assert.Equal(t, Stats{Echoes: 1}, a.relay.Subscriber().Stats())
			assert.Equal(t, Stats{}, b.relay.Publisher().Stats())
			assert.Equal(t, Stats{Received: 1}, b.relay.Subscriber().Stats())
		})
	}
}

func TestRelay_RemovalPropagates(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()

	a := newNode(t, transport, "node-a")
	b := newNode(t, transport, "node-b")
	require.NoError(t, a.relay.Start(ctx))
	require.NoError(t, b.relay.Start(ctx))

	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "d1", inner(t, "one", 1)))
	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "d2", inner(t, "two", 2)))
	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionRemoval, "d1", nil))

	cached := b.store.Cached("devices")
	require.Len(t, cached, 1)
	assert.Equal(t, "d2", cached[0].Key)
}

func TestRelay_StartPublishesCachedState(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()

	a := newNode(t, transport, "node-a")
	b := newNode(t, transport, "node-b")
	require.NoError(t, b.relay.Start(ctx))

	a.store.Emit(signal.NewSignal("status", wrapperspb.String("ready")))
	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionUpdate, "d1", inner(t, "probe", 1)))
	assert.Empty(t, b.store.Topics())

	require.NoError(t, a.relay.Start(ctx))

	assert.Equal(t, []string{"devices", "status"}, b.store.Topics())
	status := b.store.Cached("status")
	require.Len(t, status, 1)
	assert.True(t, proto.Equal(wrapperspb.String("ready"), status[0].Payload))

	// Replayed mapping state travels as an addition.
	devices := b.store.Cached("devices")
	require.Len(t, devices, 1)
	assert.Equal(t, signal.ActionAddition, b.delivered()[0].Action)
}

func TestRelay_TopicRestriction(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()

	a := newNode(t, transport, "node-a", WithTopics("devices"))
	b := newNode(t, transport, "node-b")
	require.NoError(t, a.relay.Start(ctx))
	require.NoError(t, b.relay.Start(ctx))

	a.store.Emit(signal.NewSignal("rooms", wrapperspb.String("kitchen")))
	a.store.Emit(signal.NewSignal("devices", wrapperspb.String("probe")))

	assert.Equal(t, []string{"signals.devices"}, transport.Subjects())
	assert.Equal(t, []string{"devices"}, b.store.Topics())

	// a only listens on its topics, so b's rooms signal never reaches it.
	b.store.Emit(signal.NewSignal("rooms", wrapperspb.String("hall")))
	rooms := a.store.Cached("rooms")
	require.Len(t, rooms, 1)
	assert.True(t, proto.Equal(wrapperspb.String("kitchen"), rooms[0].Payload))
	assert.Equal(t, uint64(0), a.relay.Subscriber().Stats().Received)
}

func TestRelay_SubjectPrefixAndContentFilter(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()

	a := newNode(t, transport, "node-a",
		WithSubjectPrefix("site1.bus."),
		WithMatch(func(sig signal.Signal) bool { return sig.Key != "private" }))
	require.NoError(t, a.relay.Start(ctx))

	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "private", nil))
	a.store.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "public", nil))

	assert.Equal(t, 1, transport.GetMessageCount("site1.bus.devices"))
}

func TestRelay_DropsUndecodableMessages(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()
	registry := metric.NewMetricsRegistry()

	a := newNode(t, transport, "node-a", WithMetrics(registry))
	require.NoError(t, a.relay.Start(ctx))

	require.NoError(t, transport.Publish(ctx, "signals.devices", []byte{0xff, 0x01}))

	assert.Empty(t, a.store.Topics())
	assert.Equal(t, uint64(1), a.relay.Subscriber().Stats().Failures)
	assert.Equal(t, 1.0, promtestutil.ToFloat64(registry.CoreMetrics().RelayErrors.WithLabelValues(DirectionIn)))
}

func TestRelay_Metrics(t *testing.T) {
	ctx := context.Background()
	transport := testutil.NewMockNATSClient()
	regA := metric.NewMetricsRegistry()
	regB := metric.NewMetricsRegistry()

	a := newNode(t, transport, "node-a", WithMetrics(regA))
	b := newNode(t, transport, "node-b", WithMetrics(regB))
	require.NoError(t, a.relay.Start(ctx))
	require.NoError(t, b.relay.Start(ctx))

	a.store.Emit(signal.NewSignal("status", wrapperspb.String("one")))
	a.store.Emit(signal.NewSignal("status", wrapperspb.String("two")))

	assert.Equal(t, 2.0, promtestutil.ToFloat64(regA.CoreMetrics().RelayMessages.WithLabelValues(DirectionOut)))
	assert.Equal(t, 2.0, promtestutil.ToFloat64(regB.CoreMetrics().RelayMessages.WithLabelValues(DirectionIn)))
	assert.Equal(t, 0.0, promtestutil.ToFloat64(regB.CoreMetrics().RelayMessages.WithLabelValues(DirectionOut)))
}

// failingTransport accepts subscriptions and fails every publish.
type failingTransport struct{}

func (failingTransport) Publish(context.Context, string, []byte) error {
	return errors.ErrConnectionLost
}

func (failingTransport) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return nil
}

func TestPublisher_TransportFailureReportedToStore(t *testing.T) {
	var slotErrs []*signal.SlotError
	store := signal.NewStore(signal.WithLogger(quietLogger()),
		signal.WithErrorHandler(func(se *signal.SlotError) { slotErrs = append(slotErrs, se) }))

	pub, err := NewPublisher(store, failingTransport{}, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, pub.Start(context.Background()))

	store.Emit(signal.NewSignal("status", wrapperspb.String("x")))

	require.Len(t, slotErrs, 1)
	assert.ErrorIs(t, slotErrs[0].Err, errors.ErrConnectionLost)
	assert.True(t, errors.IsTransient(slotErrs[0].Err))
	assert.Equal(t, Stats{Failures: 1}, pub.Stats())
}

func TestPublisher_Lifecycle(t *testing.T) {
	store := signal.NewStore()
	transport := testutil.NewMockNATSClient()

	pub, err := NewPublisher(store, transport, WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.NotEmpty(t, pub.Origin())

	require.NoError(t, pub.Start(context.Background()))
	err = pub.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)
	assert.Equal(t, 1, store.Slots())

	require.NoError(t, pub.Stop())
	require.NoError(t, pub.Stop())
	assert.Equal(t, 0, store.Slots())

	store.Emit(signal.NewSignal("status", nil))
	assert.Empty(t, transport.Subjects())

	require.NoError(t, store.Close())
	err = pub.Start(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestSubscriber_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := signal.NewCachingStore()
	transport := testutil.NewMockNATSClient()

	sub, err := NewSubscriber(store, transport, WithLogger(quietLogger()), WithResolver(testutil.Types()))
	require.NoError(t, err)
	require.NoError(t, sub.Start(ctx))
	assert.ErrorIs(t, sub.Start(ctx), errors.ErrAlreadyStarted)

	ec, err := NewEnvelopeCodec(FormatProto, nil)
	require.NoError(t, err)

	send := func(topic string) {
		data, err := ec.Marshal(Envelope{Origin: "peer", Signal: signal.NewSignal(topic, wrapperspb.String(topic))})
		require.NoError(t, err)
		require.NoError(t, transport.Publish(ctx, "signals."+topic, data))
	}

	send("before")
	require.NoError(t, sub.Stop())
	send("after")

	assert.Equal(t, []string{"before"}, store.Topics())
	assert.ErrorIs(t, sub.Start(ctx), errors.ErrAlreadyStopped)
}

func TestSubscriber_CancelledContextStopsDelivery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := signal.NewCachingStore()
	transport := testutil.NewMockNATSClient()

	sub, err := NewSubscriber(store, transport, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.NoError(t, sub.Start(ctx))

	ec, err := NewEnvelopeCodec(FormatProto, nil)
	require.NoError(t, err)
	data, err := ec.Marshal(Envelope{Origin: "peer", Signal: signal.NewSignal("status", nil)})
	require.NoError(t, err)

	cancel()
	require.NoError(t, transport.Publish(context.Background(), "signals.status", data))
	assert.Empty(t, store.Topics())
	assert.Equal(t, Stats{}, sub.Stats())
}

type subscribeFailure struct{ failingTransport }

func (subscribeFailure) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return stderrors.New("no permission")
}

func TestRelay_StartRollsBackOnSubscribeFailure(t *testing.T) {
	store := signal.NewStore()
	r, err := New(store, subscribeFailure{}, WithLogger(quietLogger()))
	require.NoError(t, err)

	err = r.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, 0, store.Slots())
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	store := signal.NewStore()
	r, err := New(store, testutil.NewMockNATSClient(), WithLogger(quietLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return store.Slots() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, store.Slots())
}

func TestEchoGuard(t *testing.T) {
	g := newEchoGuard()
	sig := signal.NewSignal("t", wrapperspb.String("x"))
	other := signal.NewSignal("t", wrapperspb.String("x"))

	g.enter(sig)
	g.enter(sig)
	assert.True(t, g.remote(sig))
	assert.False(t, g.remote(other), "distinct payload instances are distinct signals")

	g.leave(sig)
	assert.True(t, g.remote(sig))
	g.leave(sig)
	assert.False(t, g.remote(sig))
}
