// Package relay mirrors a signal bus across processes over a pub/sub
// transport such as NATS.
//
// # Envelopes
//
// Every relayed signal travels in a SignalEnvelope, a protobuf message
// built at runtime from a descriptor (see EnvelopeDescriptor). The payload
// is packed into google.protobuf.Any, so receivers need the payload types
// in their Resolver. Two wire formats are supported:
//
//   - FormatProto: the envelope's protobuf wire bytes.
//   - FormatCBOR: the envelope dissected into a map by the codec package and
//     CBOR-encoded, with enum symbols such as "ADDITION" instead of numbers.
//
// # Subjects
//
// A signal on topic t is published to "<prefix>.<t>", "signals.<t>" by
// default. A subscriber listens on "<prefix>.>" or, when WithTopics is
// used, on one subject per topic.
//
// # Loop prevention
//
// Each relay stamps envelopes with an origin id and drops envelopes
// carrying its own. A Relay's publisher also skips signals its own
// subscriber is emitting, so a received signal is never sent back out.
//
// Basic usage:
//
//	store := signal.NewCachingStore()
//	r, err := relay.New(store, natsClient,
//	    relay.WithFormat(relay.FormatCBOR),
//	    relay.WithResolver(types),
//	)
//	if err != nil {
//	    return err
//	}
//	return r.Run(ctx)
//
// Starting a Relay on a CachingStore publishes the cached state, which lets
// peers that joined earlier catch up.
package relay
