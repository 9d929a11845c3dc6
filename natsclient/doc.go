// Package natsclient wraps a core NATS connection with a circuit breaker,
// retrying connection setup, health monitoring and structured logging. It is
// the transport the relay uses to mirror signals between processes.
//
// # Connection lifecycle
//
// A Client moves through Disconnected, Connecting, Connected and
// Reconnecting. Every failed Connect counts towards the circuit breaker
// (default threshold 5); once it opens, Connect fails fast with
// ErrCircuitOpen until the backoff elapses. The backoff doubles each round
// up to WithMaxBackoff. A successful connection or reconnection resets it.
//
// Connect makes a single attempt. ConnectWithRetry repeats it with
// exponential backoff from pkg/retry and stops early when the circuit opens
// or the context is done:
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("protosignal-relay"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithMetrics(registry),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// # Publish and subscribe
//
// Publish and Subscribe carry raw payloads. Subjects may use the "*" and ">"
// wildcards. Each handler invocation receives a context derived from the
// subscription context with a 30 second deadline:
//
//	err = client.Subscribe(ctx, "signals.>", func(msgCtx context.Context, data []byte) {
//	    // decode and emit
//	})
//
// Both return ErrNotConnected while the connection is down. Errors are
// classified with the errors package, so errors.IsTransient reports whether
// a caller may retry.
//
// # Metrics
//
// WithMetrics records connection status, reconnects and circuit breaker
// state in the registry's core metrics (protosignal_nats_*).
//
// # Testing
//
// NewTestClient starts a disposable NATS server with testcontainers and
// returns a connected client. Tests that use it carry the integration build
// tag.
package natsclient
