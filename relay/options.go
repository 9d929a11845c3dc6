package relay

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/c360/protosignal/metric"
	"github.com/c360/protosignal/signal"
)

// DefaultSubjectPrefix is the subject namespace signals are relayed under.
const DefaultSubjectPrefix = "signals"

// Option configures a Publisher, Subscriber or Relay.
type Option func(*options)

type options struct {
	prefix   string
	format   Format
	topics   []string
	origin   string
	resolver Resolver
	logger   *slog.Logger
	metrics  *metric.Metrics
	match    func(signal.Signal) bool
}

// WithSubjectPrefix sets the subject prefix. Signals on topic t travel on
// "<prefix>.<t>".
func WithSubjectPrefix(prefix string) Option {
	return func(o *options) {
		if prefix = strings.Trim(prefix, "."); prefix != "" {
			o.prefix = prefix
		}
	}
}

// WithFormat sets the wire format. Defaults to FormatProto.
func WithFormat(format Format) Option {
	return func(o *options) {
		if format != "" {
			o.format = format
		}
	}
}

// WithTopics restricts relaying to the given topics. By default every
// topic is relayed.
func WithTopics(topics ...string) Option {
	return func(o *options) {
		o.topics = append(o.topics, topics...)
	}
}

// WithOrigin sets the origin id stamped on published envelopes and used to
// drop echoes. Defaults to a random UUID.
func WithOrigin(origin string) Option {
	return func(o *options) {
		if origin != "" {
			o.origin = origin
		}
	}
}

// WithResolver sets the resolver for payload types. Defaults to
// protoregistry.GlobalTypes.
func WithResolver(resolver Resolver) Option {
	return func(o *options) {
		o.resolver = resolver
	}
}

// WithMatch adds a content filter applied to outgoing signals.
func WithMatch(match func(signal.Signal) bool) Option {
	return func(o *options) {
		o.match = match
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics counts relayed and failed messages per direction.
func WithMetrics(registry *metric.MetricsRegistry) Option {
	return func(o *options) {
		o.metrics = registry.CoreMetrics()
	}
}

func applyOptions(role string, opts []Option) *options {
	o := &options{
		prefix: DefaultSubjectPrefix,
		format: FormatProto,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.origin == "" {
		o.origin = uuid.NewString()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.logger = o.logger.With("component", "relay", "role", role, "origin", o.origin)
	return o
}

func (o *options) filter() signal.Filter {
	return signal.Filter{Topics: o.topics, Match: o.match}
}

// subject returns the subject for topic.
func (o *options) subject(topic string) string {
	return o.prefix + "." + topic
}

// subscriptions returns the subjects to subscribe to: one per configured
// topic, or the prefix wildcard.
func (o *options) subscriptions() []string {
	if len(o.topics) == 0 {
		return []string{o.prefix + ".>"}
	}
	subjects := make([]string, len(o.topics))
	for i, t := range o.topics {
		subjects[i] = o.subject(t)
	}
	return subjects
}
