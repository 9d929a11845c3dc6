package codec

import (
	"google.golang.org/protobuf/reflect/protoregistry"
)

// Option configures a Builder or Dissecter.
type Option func(*options)

type options struct {
	registry *TypeRegistry
	resolver protoregistry.MessageTypeResolver
	strict   bool
	validate bool
}

// WithRegistry uses registry instead of a private registry seeded with the
// built-in conversions. The registry is shared by reference; use Clone to
// give each component its own.
func WithRegistry(registry *TypeRegistry) Option {
	return func(o *options) {
		if registry != nil {
			o.registry = registry
		}
	}
}

// WithResolver sets the resolver used to find concrete message types by
// name. Defaults to protoregistry.GlobalTypes.
func WithResolver(resolver protoregistry.MessageTypeResolver) Option {
	return func(o *options) {
		if resolver != nil {
			o.resolver = resolver
		}
	}
}

// WithStrict makes the Builder reject mappings that omit a field key. Keys
// holding null count as present. A oneof group needs one member key.
func WithStrict() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithValidation makes the Builder reject mapping keys that name no field.
func WithValidation() Option {
	return func(o *options) {
		o.validate = true
	}
}

func applyOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.registry == nil {
		o.registry = NewTypeRegistry()
	}
	if o.resolver == nil {
		o.resolver = protoregistry.GlobalTypes
	}
	return o
}
