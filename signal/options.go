package signal

import (
	"log/slog"

	"github.com/c360/protosignal/metric"
)

// Option configures a Store or CachingStore.
type Option func(*options)

type options struct {
	name       string
	logger     *slog.Logger
	metrics    *metric.Metrics
	errHandler func(*SlotError)
}

// WithName sets the store name used in logs and metric labels.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger for slot failures. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records emit, replay, slot and failure counts in the
// registry's bus metrics.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.metrics = registry.CoreMetrics()
	}
}

// WithErrorHandler forwards every slot failure to fn after it is logged.
// fn runs on the emitting goroutine.
func WithErrorHandler(fn func(*SlotError)) Option {
	return func(o *options) {
		o.errHandler = fn
	}
}

func applyOptions(defaultName string, opts []Option) *options {
	o := &options{name: defaultName}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "signal", "store", o.name)
	return o
}
