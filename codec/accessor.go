package codec

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// FieldAccessor is the reflective view of a message the codec works
// through. protoreflect.Message satisfies it for generated and dynamicpb
// messages alike, so the codec never depends on generated code shape.
type FieldAccessor interface {
	Descriptor() protoreflect.MessageDescriptor
	Get(protoreflect.FieldDescriptor) protoreflect.Value
	Set(protoreflect.FieldDescriptor, protoreflect.Value)
	Has(protoreflect.FieldDescriptor) bool
	Clear(protoreflect.FieldDescriptor)
	Mutable(protoreflect.FieldDescriptor) protoreflect.Value
	NewField(protoreflect.FieldDescriptor) protoreflect.Value
	WhichOneof(protoreflect.OneofDescriptor) protoreflect.FieldDescriptor
	Interface() protoreflect.ProtoMessage
}

// Accessor returns the field accessor of m. A nil or typed-nil message has
// no schema and yields a NotAMessage DecodeError.
func Accessor(m proto.Message) (FieldAccessor, error) {
	if m == nil {
		return nil, &DecodeError{Kind: NotAMessage}
	}
	rm := m.ProtoReflect()
	if !rm.IsValid() {
		return nil, &DecodeError{Kind: NotAMessage}
	}
	return rm, nil
}

// FieldKind is the shape of a field as the codec dispatches on it.
type FieldKind int

// Field shapes.
const (
	ScalarField FieldKind = iota
	EnumField
	MessageField
	MapField
	RepeatedField
)

// String returns the string representation of FieldKind
func (k FieldKind) String() string {
	switch k {
	case ScalarField:
		return "scalar"
	case EnumField:
		return "enum"
	case MessageField:
		return "message"
	case MapField:
		return "map"
	case RepeatedField:
		return "repeated"
	default:
		return "unknown"
	}
}

// KindOf returns the shape of fd. Maps and lists take precedence over the
// element kind.
func KindOf(fd protoreflect.FieldDescriptor) FieldKind {
	switch {
	case fd.IsMap():
		return MapField
	case fd.IsList():
		return RepeatedField
	default:
		return ElementKindOf(fd)
	}
}

// ElementKindOf returns the shape of a single element of fd, ignoring its
// cardinality. For map fields pass fd.MapValue().
func ElementKindOf(fd protoreflect.FieldDescriptor) FieldKind {
	switch fd.Kind() {
	case protoreflect.MessageKind, protoreflect.GroupKind:
		return MessageField
	case protoreflect.EnumKind:
		return EnumField
	default:
		return ScalarField
	}
}
