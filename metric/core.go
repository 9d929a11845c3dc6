package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by this module.
const Namespace = "protosignal"

// Metrics contains the signal bus metrics shared by every store, relay and
// transport in the process.
type Metrics struct {
	// Store metrics
	SignalsEmitted  *prometheus.CounterVec
	SignalsReplayed *prometheus.CounterVec
	SlotErrors      *prometheus.CounterVec
	Slots           *prometheus.GaugeVec

	// Relay metrics
	RelayMessages *prometheus.CounterVec
	RelayErrors   *prometheus.CounterVec

	// NATS metrics
	NATSConnected      prometheus.Gauge
	NATSReconnects     prometheus.Counter
	NATSCircuitBreaker prometheus.Gauge
}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "signals_emitted_total",
				Help:      "Total number of signals emitted into a store",
			},
			[]string{"store"},
		),

		SignalsReplayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "signals_replayed_total",
				Help:      "Total number of cached signals replayed to late subscribers",
			},
			[]string{"store"},
		),

		SlotErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "slot_errors_total",
				Help:      "Total number of slot callbacks that returned an error or panicked",
			},
			[]string{"store"},
		),

		Slots: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "slots",
				Help:      "Number of connected slots",
			},
			[]string{"store"},
		),

		RelayMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Total number of signals relayed over the transport",
			},
			[]string{"direction"},
		),

		RelayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "relay",
				Name:      "errors_total",
				Help:      "Total number of signals that failed to encode, decode or publish",
			},
			[]string{"direction"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),

		NATSCircuitBreaker: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "nats",
				Name:      "circuit_breaker",
				Help:      "NATS circuit breaker status (0=closed, 1=open)",
			},
		),
	}
}

func (c *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.SignalsEmitted,
		c.SignalsReplayed,
		c.SlotErrors,
		c.Slots,
		c.RelayMessages,
		c.RelayErrors,
		c.NATSConnected,
		c.NATSReconnects,
		c.NATSCircuitBreaker,
	}
}

// RecordEmit increments the emitted signal counter
func (c *Metrics) RecordEmit(store string) {
	c.SignalsEmitted.WithLabelValues(store).Inc()
}

// RecordReplay adds n replayed signals
func (c *Metrics) RecordReplay(store string, n int) {
	c.SignalsReplayed.WithLabelValues(store).Add(float64(n))
}

// RecordSlotError increments the slot error counter
func (c *Metrics) RecordSlotError(store string) {
	c.SlotErrors.WithLabelValues(store).Inc()
}

// RecordSlots updates the connected slot gauge
func (c *Metrics) RecordSlots(store string, n int) {
	c.Slots.WithLabelValues(store).Set(float64(n))
}

// RecordRelayMessage increments the relay counter for a direction ("in" or "out")
func (c *Metrics) RecordRelayMessage(direction string) {
	c.RelayMessages.WithLabelValues(direction).Inc()
}

// RecordRelayError increments the relay error counter for a direction
func (c *Metrics) RecordRelayError(direction string) {
	c.RelayErrors.WithLabelValues(direction).Inc()
}

// RecordNATSStatus updates NATS connection status
func (c *Metrics) RecordNATSStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	c.NATSConnected.Set(value)
}

// RecordNATSReconnect increments reconnection counter
func (c *Metrics) RecordNATSReconnect() {
	c.NATSReconnects.Inc()
}

// RecordCircuitBreakerState updates circuit breaker status
func (c *Metrics) RecordCircuitBreakerState(open bool) {
	value := 0.0
	if open {
		value = 1.0
	}
	c.NATSCircuitBreaker.Set(value)
}
