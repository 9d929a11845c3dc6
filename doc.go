// Package protosignal converts protobuf messages to and from plain Go values
// and distributes them as topic signals with replay for late subscribers.
//
// # Packages
//
// The module is split into small packages that build on one another:
//
//	codec       Builder and Dissecter between messages and map[string]any trees
//	pkg/symbol  symbolic enum names and their shortest unambiguous forms
//	pkg/queue   bounded overflow queues, cooperative and blocking
//	signal      Store, CachingStore and queue-backed subscriptions
//	relay       mirrors a store's signals over NATS
//	config      layered JSON/YAML configuration with env overrides
//	natsclient  NATS connection management with reconnect and circuit breaker
//	metric      Prometheus registry and HTTP exposition
//	errors      classified errors (invalid, transient, fatal)
//
// # Quick Start
//
//	store := signal.NewCachingStore()
//	defer store.Close()
//
//	msg, err := codec.NewBuilder().Build(mt, map[string]any{"name": "probe"})
//	if err != nil {
//		return err
//	}
//	store.Emit(signal.NewSignal("status", msg))
//
//	sub, err := signal.Subscribe(store, signal.Topics("status"), 64)
//	if err != nil {
//		return err
//	}
//	for sig := range sub.Queue().All(ctx) {
//		v, _ := codec.NewDissecter().Decode(sig.Payload)
//		fmt.Println(sig.Topic, v)
//	}
//
// A subscription to a CachingStore first receives the cached state of every
// matching topic, then live signals in emission order.
//
// # Command
//
// cmd/protosignal-relay runs a CachingStore behind a NATS relay and prints
// every signal it holds as a JSON line on stdout.
package protosignal
