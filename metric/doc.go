// Package metric provides Prometheus-based metrics collection and an HTTP
// server for protosignal processes.
//
// The MetricsRegistry owns a private Prometheus registry holding the bus
// metrics (Metrics type), Go runtime collectors, and any component metrics
// registered through the MetricsRegistrar interface, such as queue and cache
// statistics. Registration is keyed by owner and metric name so duplicate
// registrations fail with an invalid-class error instead of panicking.
//
// Basic usage:
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//
//	go func() {
//	    if err := server.Start(); err != nil {
//	        slog.Error("metrics server failed", "error", err)
//	    }
//	}()
//	defer server.Stop()
//
//	store := signal.NewCachingStore(signal.WithMetrics(registry))
//
// Bus metrics:
//
//	protosignal_signals_emitted_total{store}
//	protosignal_signals_replayed_total{store}
//	protosignal_slot_errors_total{store}
//	protosignal_slots{store}
//	protosignal_relay_messages_total{direction}
//	protosignal_relay_errors_total{direction}
//	protosignal_nats_connected
//	protosignal_nats_reconnects_total
//	protosignal_nats_circuit_breaker
package metric
