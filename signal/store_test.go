package signal

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/c360/protosignal/metric"
)

// recorder collects delivered signals.
type recorder struct {
	mu      sync.Mutex
	signals []Signal
}

func (r *recorder) callback(sig Signal) error {
	r.mu.Lock()
	r.signals = append(r.signals, sig)
	r.mu.Unlock()
	return nil
}

func (r *recorder) payloads() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.signals))
	for i, sig := range r.signals {
		out[i] = payloadString(sig)
	}
	return out
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.signals)
}

func payloadString(sig Signal) string {
	if s, ok := sig.Payload.(*wrapperspb.StringValue); ok {
		return s.GetValue()
	}
	return ""
}

func str(s string) proto.Message {
	return wrapperspb.String(s)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestStore_DeliversInRegistrationOrder(t *testing.T) {
	store := NewStore()

	var order []string
	store.Connect(Filter{}, func(Signal) error { order = append(order, "first"); return nil })
	store.Connect(Filter{}, func(Signal) error { order = append(order, "second"); return nil })
	store.Connect(Filter{}, func(Signal) error { order = append(order, "third"); return nil })

	store.Emit(NewSignal("t", str("v")))
	assert.Equal(t, []string{"first", "second", "third"}, order)
	assert.Equal(t, 3, store.Slots())
}

func TestStore_TopicFilter(t *testing.T) {
	store := NewStore()

	var all, alarms, both recorder
	store.Connect(Filter{}, all.callback)
	store.Connect(Topics("alarms"), alarms.callback)
	store.Connect(Topics("alarms", "events"), both.callback)

	store.Emit(NewSignal("alarms", str("a1")))
	store.Emit(NewSignal("events", str("e1")))
	store.Emit(NewSignal("other", str("o1")))

	assert.Equal(t, []string{"a1", "e1", "o1"}, all.payloads())
	assert.Equal(t, []string{"a1"}, alarms.payloads())
	assert.Equal(t, []string{"a1", "e1"}, both.payloads())
}

func TestStore_ContentFilter(t *testing.T) {
	store := NewStore()

	var rec recorder
	store.Connect(Filter{
		Topics: []string{"devices"},
		Match:  func(sig Signal) bool { return sig.Key == "d1" },
	}, rec.callback)

	store.Emit(NewMappingSignal("devices", ActionAddition, "d1", str("one")))
	store.Emit(NewMappingSignal("devices", ActionAddition, "d2", str("two")))
	store.Emit(NewMappingSignal("other", ActionAddition, "d1", str("three")))

	assert.Equal(t, []string{"one"}, rec.payloads())
}

func TestStore_CallbackFailureIsolation(t *testing.T) {
	var logs bytes.Buffer
	var failures []*SlotError
	store := NewStore(
		WithName("isolation"),
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil))),
		WithErrorHandler(func(se *SlotError) { failures = append(failures, se) }),
	)

	boom := stderrors.New("boom")
	failing := store.Connect(Topics("t"), func(Signal) error { return boom })
	var rec recorder
	store.Connect(Topics("t"), rec.callback)

	assert.NotPanics(t, func() { store.Emit(NewSignal("t", str("v"))) })
	assert.Equal(t, []string{"v"}, rec.payloads())

	require.Len(t, failures, 1)
	assert.Equal(t, failing, failures[0].Slot)
	assert.Equal(t, "isolation", failures[0].Store)
	assert.Equal(t, "t", failures[0].Signal.Topic)
	assert.ErrorIs(t, failures[0], boom)
	assert.Contains(t, logs.String(), "Slot callback failed")
	assert.Contains(t, logs.String(), "topic=t")
}

func TestStore_PanickingCallbackIsolated(t *testing.T) {
	var failures []*SlotError
	store := NewStore(
		WithLogger(quietLogger()),
		WithErrorHandler(func(se *SlotError) { failures = append(failures, se) }),
	)

	store.Connect(Filter{}, func(Signal) error { panic("kaboom") })
	store.Connect(Filter{Match: func(Signal) bool { panic("bad filter") }}, func(Signal) error { return nil })
	var rec recorder
	store.Connect(Filter{}, rec.callback)

	assert.NotPanics(t, func() { store.Emit(NewSignal("t", str("v"))) })
	assert.Equal(t, []string{"v"}, rec.payloads())
	require.Len(t, failures, 2)
	assert.Equal(t, "kaboom", failures[0].Panic)
	assert.Equal(t, "bad filter", failures[1].Panic)
}

func TestStore_Disconnect(t *testing.T) {
	store := NewStore()

	var rec recorder
	id := store.Connect(Filter{}, rec.callback)
	require.NotZero(t, id)

	store.Emit(NewSignal("t", str("before")))
	assert.True(t, store.Disconnect(id))
	assert.False(t, store.Disconnect(id))
	store.Emit(NewSignal("t", str("after")))

	assert.Equal(t, []string{"before"}, rec.payloads())
	assert.Equal(t, 0, store.Slots())
}

func TestStore_ConnectRejectsNilCallback(t *testing.T) {
	store := NewStore()
	assert.Zero(t, store.Connect(Filter{}, nil))
	assert.Equal(t, 0, store.Slots())
}

func TestStore_ReentrantCallbacks(t *testing.T) {
	store := NewStore()

	var late recorder
	var selfID SlotID
	selfID = store.Connect(Topics("t"), func(sig Signal) error {
		store.Disconnect(selfID)
		store.Connect(Topics("t"), late.callback)
		store.Emit(NewSignal("t", str("from-callback")))
		return nil
	})

	store.Emit(NewSignal("t", str("outer")))
	assert.Equal(t, []string{"from-callback"}, late.payloads())
	assert.Equal(t, 1, store.Slots())
}

func TestStore_Close(t *testing.T) {
	store := NewStore()

	var rec recorder
	store.Connect(Filter{}, rec.callback)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	store.Emit(NewSignal("t", str("ignored")))
	assert.Zero(t, rec.len())
	assert.Zero(t, store.Connect(Filter{}, rec.callback))
	assert.Equal(t, 0, store.Slots())
}

func TestStore_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	store := NewStore(WithName("m"), WithMetrics(registry), WithLogger(quietLogger()))
	m := registry.CoreMetrics()

	id := store.Connect(Filter{}, func(Signal) error { return stderrors.New("no") })
	store.Connect(Filter{}, func(Signal) error { return nil })
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Slots.WithLabelValues("m")))

	store.Emit(NewSignal("t", str("v")))
	store.Emit(NewSignal("t", str("w")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SignalsEmitted.WithLabelValues("m")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SlotErrors.WithLabelValues("m")))

	store.Disconnect(id)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Slots.WithLabelValues("m")))
}

func TestStore_ConcurrentUse(t *testing.T) {
	store := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Emit(NewSignal("t", str("v")))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				var rec recorder
				id := store.Connect(Topics("t"), rec.callback)
				store.Disconnect(id)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, store.Slots())
}

func TestMappingAction_String(t *testing.T) {
	assert.Equal(t, "addition", ActionAddition.String())
	assert.Equal(t, "removal", ActionRemoval.String())
	assert.Equal(t, "MappingAction(9)", MappingAction(9).String())
	assert.Equal(t, "devices[d1] update", NewMappingSignal("devices", ActionUpdate, "d1", nil).String())
}
