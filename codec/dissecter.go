package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"

	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/pkg/cache"
)

// Dissecter converts typed messages into dynamic values. It is total over
// well-formed messages: absent fields decode to their zero value, unset
// message fields and unset oneof members to nil. A Dissecter is safe for
// concurrent use.
type Dissecter struct {
	registry *TypeRegistry
	resolver protoregistry.MessageTypeResolver
	enums    *enumCodec
}

// NewDissecter creates a Dissecter. Without WithRegistry it owns a private
// registry seeded with the built-in conversions.
func NewDissecter(opts ...Option) *Dissecter {
	o := applyOptions(opts)
	return &Dissecter{
		registry: o.registry,
		resolver: o.resolver,
		enums:    newEnumCodec(),
	}
}

// Registry returns the dissecter's type registry.
func (d *Dissecter) Registry() *TypeRegistry {
	return d.registry
}

// SymbolCacheStats returns the statistics of the enum symbol table cache.
func (d *Dissecter) SymbolCacheStats() *cache.Statistics {
	return d.enums.stats()
}

// Decode converts m into a dynamic value. Registered decoders take over
// entirely for their type; other messages decode to a map keyed by every
// field name of the schema.
func (d *Dissecter) Decode(m proto.Message) (any, error) {
	acc, err := Accessor(m)
	if err != nil {
		return nil, err
	}
	return d.decodeMessage(acc)
}

// DecodeMap decodes the fields of m into a map, bypassing any decoder
// registered for m's own type. Nested messages still use the registry.
func (d *Dissecter) DecodeMap(m proto.Message) (map[string]any, error) {
	acc, err := Accessor(m)
	if err != nil {
		return nil, err
	}
	return d.decodeFields(acc)
}

// DecodeBytes unmarshals data as the message type called name, found
// through the resolver, and decodes it.
func (d *Dissecter) DecodeBytes(name protoreflect.FullName, data []byte) (any, error) {
	mt, err := d.resolver.FindMessageByName(name)
	if err != nil {
		return nil, &DecodeError{Kind: UnknownType, Type: name, Err: err}
	}
	m := mt.New().Interface()
	if err := proto.Unmarshal(data, m); err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"Dissecter", "DecodeBytes", "unmarshal "+string(name))
	}
	return d.Decode(m)
}

func (d *Dissecter) decodeMessage(m FieldAccessor) (any, error) {
	name := m.Descriptor().FullName()
	if dec, ok := d.registry.Decoder(name); ok {
		v, err := dec(m.Interface())
		if err != nil {
			return nil, errors.Wrap(err, "Dissecter", "Decode", "decoder for "+string(name))
		}
		return v, nil
	}
	return d.decodeFields(m)
}

func (d *Dissecter) decodeFields(m FieldAccessor) (map[string]any, error) {
	fds := m.Descriptor().Fields()
	out := make(map[string]any, fds.Len())

	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		name := string(fd.Name())

		if od := fd.ContainingOneof(); od != nil {
			if set := m.WhichOneof(od); set == nil || set.Number() != fd.Number() {
				out[name] = nil
				continue
			}
		}

		v, err := d.decodeField(m, fd)
		if err != nil {
			return nil, err
		}
		out[name] = v
	}
	return out, nil
}

func (d *Dissecter) decodeField(m FieldAccessor, fd protoreflect.FieldDescriptor) (any, error) {
	switch KindOf(fd) {
	case MapField:
		mp := m.Get(fd).Map()
		out := make(map[string]any, mp.Len())
		var err error
		mp.Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
			var dv any
			if dv, err = d.decodeElement(fd.MapValue(), v); err != nil {
				return false
			}
			out[k.String()] = dv
			return true
		})
		if err != nil {
			return nil, err
		}
		return out, nil

	case RepeatedField:
		list := m.Get(fd).List()
		out := make([]any, list.Len())
		for i := range out {
			v, err := d.decodeElement(fd, list.Get(i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case MessageField:
		if !m.Has(fd) {
			return nil, nil
		}
		return d.decodeElement(fd, m.Get(fd))

	default:
		return d.decodeElement(fd, m.Get(fd))
	}
}

func (d *Dissecter) decodeElement(fd protoreflect.FieldDescriptor, v protoreflect.Value) (any, error) {
	switch ElementKindOf(fd) {
	case MessageField:
		return d.decodeMessage(v.Message())
	case EnumField:
		return d.enums.decode(fd.Enum(), v.Enum())
	default:
		return decodeScalar(fd, v), nil
	}
}
