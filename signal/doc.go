// Package signal provides topic-based fan-out of protobuf payloads.
//
// A Store delivers every emitted Signal synchronously, in registration
// order, to each connected slot whose Filter accepts it. A slot callback
// that returns an error or panics is isolated: the failure is logged,
// counted and forwarded to the optional error handler, and delivery to the
// remaining slots continues. Emit never fails.
//
//	store := signal.NewStore(signal.WithLogger(logger))
//	id := store.Connect(signal.Topics("alarms"), func(sig signal.Signal) error {
//	    return handle(sig.Payload)
//	})
//	store.Emit(signal.NewSignal("alarms", payload))
//	store.Disconnect(id)
//
// A CachingStore additionally keeps the latest payload per topic, or per
// topic and key for mapping signals, and replays that state to every slot
// when it connects. Replay finishes before any live signal reaches the new
// slot; live signals emitted meanwhile are held back and delivered right
// after, so the slot sees neither a gap nor a duplicate.
//
//	cs := signal.NewCachingStore()
//	cs.Emit(signal.NewMappingSignal("devices", signal.ActionAddition, "d1", p1))
//	cs.Connect(signal.Filter{}, cb) // cb receives d1 before Connect returns
//
// Subscribe bridges a store to a single consumer goroutine through an
// overflow queue, so slow consumers never block emitters.
package signal
