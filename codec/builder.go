package codec

import (
	stderrors "errors"
	"fmt"
	"slices"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/dynamicpb"

	"github.com/c360/protosignal/pkg/cache"
)

// Builder converts dynamic values into typed messages. It consults its
// TypeRegistry for every message type before recursing field by field.
// A Builder is safe for concurrent use.
type Builder struct {
	registry *TypeRegistry
	resolver protoregistry.MessageTypeResolver
	strict   bool
	validate bool
	enums    *enumCodec
}

// NewBuilder creates a Builder. Without WithRegistry it owns a private
// registry seeded with the built-in conversions.
func NewBuilder(opts ...Option) *Builder {
	o := applyOptions(opts)
	return &Builder{
		registry: o.registry,
		resolver: o.resolver,
		strict:   o.strict,
		validate: o.validate,
		enums:    newEnumCodec(),
	}
}

// Registry returns the builder's type registry.
func (b *Builder) Registry() *TypeRegistry {
	return b.registry
}

// SymbolCacheStats returns the statistics of the enum symbol table cache.
func (b *Builder) SymbolCacheStats() *cache.Statistics {
	return b.enums.stats()
}

// Build creates a message of type mt from value.
func (b *Builder) Build(mt protoreflect.MessageType, value any) (proto.Message, error) {
	if mt == nil {
		return nil, invalid("nil message type")
	}
	m := mt.New()
	if err := b.fill("", m, value); err != nil {
		return nil, err
	}
	return m.Interface(), nil
}

// BuildFromDescriptor creates a message described by md from value. The
// resolver's concrete type is used when it knows md's full name, otherwise
// the result is a dynamicpb message.
func (b *Builder) BuildFromDescriptor(md protoreflect.MessageDescriptor, value any) (proto.Message, error) {
	if md == nil {
		return nil, invalid("nil message descriptor")
	}
	return b.Build(b.messageType(md), value)
}

// BuildInto fills m from value. Fields named by value replace the current
// ones; other fields are left untouched.
func (b *Builder) BuildInto(m proto.Message, value any) error {
	acc, err := Accessor(m)
	if err != nil {
		return &EncodeError{Kind: InvalidInput, Err: err}
	}
	return b.fill("", acc, value)
}

func (b *Builder) messageType(md protoreflect.MessageDescriptor) protoreflect.MessageType {
	if mt, err := b.resolver.FindMessageByName(md.FullName()); err == nil {
		return mt
	}
	return dynamicpb.NewMessageType(md)
}

func (b *Builder) fill(path string, m FieldAccessor, value any) error {
	md := m.Descriptor()
	name := md.FullName()

	if pm, ok := value.(proto.Message); ok && pm.ProtoReflect().Descriptor().FullName() == name {
		if err := copyMessage(m, pm); err != nil {
			return &EncodeError{Kind: InvalidInput, Type: name, Path: path, Err: err}
		}
		return nil
	}

	if enc, ok := b.registry.Encoder(name); ok {
		out, err := enc(value)
		if err != nil {
			return annotate(err, name, path)
		}
		if out == nil {
			return nil
		}
		if got := out.ProtoReflect().Descriptor().FullName(); got != name {
			return &EncodeError{Kind: TypeMismatch, Type: name, Path: path,
				Err: fmt.Errorf("encoder returned %s", got)}
		}
		if err := copyMessage(m, out); err != nil {
			return &EncodeError{Kind: InvalidInput, Type: name, Path: path, Err: err}
		}
		return nil
	}

	fields, ok := asMapping(value)
	if !ok {
		return annotate(mismatch("mapping", value), name, path)
	}

	if b.strict {
		if missing := missingKeys(md, fields); len(missing) > 0 {
			return &EncodeError{Kind: InvalidInput, Type: name, Path: path, Fields: missing,
				Err: fmt.Errorf("missing keys")}
		}
	}
	if b.validate {
		if extra := unexpectedKeys(md, fields); len(extra) > 0 {
			return &EncodeError{Kind: UnexpectedField, Type: name, Path: path, Fields: extra}
		}
	}

	fds := md.Fields()
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		raw, present := fields[string(fd.Name())]
		if !present || raw == nil {
			continue
		}
		if err := b.setField(joinPath(path, string(fd.Name())), m, fd, raw); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) setField(path string, m FieldAccessor, fd protoreflect.FieldDescriptor, raw any) error {
	owner := m.Descriptor().FullName()

	switch KindOf(fd) {
	case MapField:
		entries, ok := asMapping(raw)
		if !ok {
			return annotate(mismatch("mapping", raw), owner, path)
		}
		mp := m.NewField(fd).Map()
		keys := make([]string, 0, len(entries))
		for k := range entries {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			entryPath := keyPath(path, k)
			mk, err := parseMapKey(fd.MapKey(), k)
			if err != nil {
				return annotate(err, owner, entryPath)
			}
			v, err := b.encodeElement(owner, entryPath, fd.MapValue(), entries[k], mp.NewValue)
			if err != nil {
				return err
			}
			mp.Set(mk, v)
		}
		m.Set(fd, protoreflect.ValueOfMap(mp))

	case RepeatedField:
		items, ok := asSequence(raw)
		if !ok {
			items = []any{raw}
		}
		list := m.NewField(fd).List()
		for i, item := range items {
			v, err := b.encodeElement(owner, indexPath(path, i), fd, item, list.NewElement)
			if err != nil {
				return err
			}
			list.Append(v)
		}
		m.Set(fd, protoreflect.ValueOfList(list))

	default:
		v, err := b.encodeElement(owner, path, fd, raw, func() protoreflect.Value { return m.NewField(fd) })
		if err != nil {
			return err
		}
		m.Set(fd, v)
	}
	return nil
}

// encodeElement encodes one singular value of fd. Null is rejected here;
// absent and null fields never reach it.
func (b *Builder) encodeElement(owner protoreflect.FullName, path string, fd protoreflect.FieldDescriptor,
	raw any, newValue func() protoreflect.Value) (protoreflect.Value, error) {
	if raw == nil {
		return protoreflect.Value{}, &EncodeError{Kind: InvalidInput, Type: owner, Path: path,
			Err: fmt.Errorf("null element")}
	}

	switch ElementKindOf(fd) {
	case MessageField:
		v := newValue()
		if err := b.fill(path, v.Message(), raw); err != nil {
			return protoreflect.Value{}, err
		}
		return v, nil

	case EnumField:
		n, err := b.enums.encode(fd.Enum(), raw)
		if err != nil {
			return protoreflect.Value{}, annotate(err, owner, path)
		}
		return protoreflect.ValueOfEnum(n), nil

	default:
		v, err := encodeScalar(fd, raw)
		if err != nil {
			return protoreflect.Value{}, annotate(err, owner, path)
		}
		return v, nil
	}
}

// annotate fills in the location of an EncodeError that lacks one. Any
// other error becomes an InvalidInput EncodeError wrapping it.
func annotate(err error, name protoreflect.FullName, path string) error {
	var ee *EncodeError
	if !stderrors.As(err, &ee) {
		return &EncodeError{Kind: InvalidInput, Type: name, Path: path, Err: err}
	}
	located := *ee
	if located.Type == "" {
		located.Type = name
	}
	if located.Path == "" {
		located.Path = path
	}
	return &located
}

// missingKeys lists the field keys absent from fields. A real oneof group
// is reported by its group name when none of its members is present.
func missingKeys(md protoreflect.MessageDescriptor, fields map[string]any) []string {
	var missing []string

	oneofs := md.Oneofs()
	for i := 0; i < oneofs.Len(); i++ {
		od := oneofs.Get(i)
		if od.IsSynthetic() {
			continue
		}
		found := false
		members := od.Fields()
		for j := 0; j < members.Len() && !found; j++ {
			_, found = fields[string(members.Get(j).Name())]
		}
		if !found {
			missing = append(missing, string(od.Name()))
		}
	}

	fds := md.Fields()
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			continue
		}
		if _, ok := fields[string(fd.Name())]; !ok {
			missing = append(missing, string(fd.Name()))
		}
	}

	slices.Sort(missing)
	return missing
}

func unexpectedKeys(md protoreflect.MessageDescriptor, fields map[string]any) []string {
	var extra []string
	for k := range fields {
		if md.Fields().ByName(protoreflect.Name(k)) == nil {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	return extra
}
