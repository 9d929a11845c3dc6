package codec

import (
	"slices"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// Encoder converts a dynamic value into a message of the type it is
// registered for.
type Encoder func(value any) (proto.Message, error)

// Decoder converts a message of the type it is registered for into a
// dynamic value. The built-in Timestamp decoder returns UTC times, so a
// time.Time from another zone comes back Equal but not ==.
type Decoder func(m proto.Message) (any, error)

// TypeRegistry maps fully-qualified message names to conversion overrides.
// Lookups are exact; there is no inheritance and no removal. Each registry
// owns its maps, so registering on one never affects another.
type TypeRegistry struct {
	mu       sync.RWMutex
	encoders map[protoreflect.FullName]Encoder
	decoders map[protoreflect.FullName]Decoder
}

// NewTypeRegistry returns a registry seeded with a fresh copy of the
// built-in conversions for the well-known types.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		encoders: builtinEncoders(),
		decoders: builtinDecoders(),
	}
}

// NewEmptyTypeRegistry returns a registry with no conversions at all, so
// every message, including the well-known types, is handled field by field.
func NewEmptyTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		encoders: make(map[protoreflect.FullName]Encoder),
		decoders: make(map[protoreflect.FullName]Decoder),
	}
}

// RegisterEncoder sets the encoder for name, replacing any previous one.
func (r *TypeRegistry) RegisterEncoder(name protoreflect.FullName, enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.encoders[name] = enc
}

// RegisterDecoder sets the decoder for name, replacing any previous one.
func (r *TypeRegistry) RegisterDecoder(name protoreflect.FullName, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[name] = dec
}

// Encoder returns the encoder registered for name.
func (r *TypeRegistry) Encoder(name protoreflect.FullName) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.encoders[name]
	return enc, ok && enc != nil
}

// Decoder returns the decoder registered for name.
func (r *TypeRegistry) Decoder(name protoreflect.FullName) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.decoders[name]
	return dec, ok && dec != nil
}

// Clone returns an independent copy of the registry.
func (r *TypeRegistry) Clone() *TypeRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := NewEmptyTypeRegistry()
	for k, v := range r.encoders {
		c.encoders[k] = v
	}
	for k, v := range r.decoders {
		c.decoders[k] = v
	}
	return c
}

// Names returns every type name with an encoder or decoder, sorted.
func (r *TypeRegistry) Names() []protoreflect.FullName {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[protoreflect.FullName]struct{}, len(r.encoders))
	for k := range r.encoders {
		seen[k] = struct{}{}
	}
	for k := range r.decoders {
		seen[k] = struct{}{}
	}
	names := make([]protoreflect.FullName, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
