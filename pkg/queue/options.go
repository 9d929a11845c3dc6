package queue

import (
	"github.com/c360/protosignal/metric"
)

// Option configures a queue using the functional options pattern.
type Option[T any] func(*queueOptions[T])

// queueOptions holds internal configuration. Statistics are always
// collected and are not an option.
type queueOptions[T any] struct {
	dropCallback DropCallback[T]

	// metricsReg is optional; when set, statistics are also exported as
	// Prometheus metrics labelled with metricsPrefix.
	metricsReg    *metric.MetricsRegistry
	metricsPrefix string
}

// WithMetrics enables Prometheus metrics export for queue statistics.
// A nil registry or empty prefix leaves metrics disabled.
func WithMetrics[T any](registry *metric.MetricsRegistry, prefix string) Option[T] {
	return func(opts *queueOptions[T]) {
		if registry != nil && prefix != "" {
			opts.metricsReg = registry
			opts.metricsPrefix = prefix
		}
	}
}

// WithDropCallback sets a function called with every item evicted by
// overflow.
func WithDropCallback[T any](callback DropCallback[T]) Option[T] {
	return func(opts *queueOptions[T]) {
		opts.dropCallback = callback
	}
}

func applyOptions[T any](options ...Option[T]) *queueOptions[T] {
	opts := &queueOptions[T]{}
	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}
	return opts
}
