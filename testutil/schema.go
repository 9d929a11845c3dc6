package testutil

import (
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"

	// Registers the well-known type descriptors the fixture file depends on.
	_ "google.golang.org/protobuf/types/known/durationpb"
	_ "google.golang.org/protobuf/types/known/structpb"
	_ "google.golang.org/protobuf/types/known/timestamppb"
	_ "google.golang.org/protobuf/types/known/wrapperspb"
)

// FixturePackage is the protobuf package of the fixture schema.
const FixturePackage = "protosignal.test.v1"

var (
	schemaOnce sync.Once
	schemaFile protoreflect.FileDescriptor
	schemaErr  error
)

// Schema returns the fixture file descriptor. It declares:
//
//	enum Color { COLOR_RED; COLOR_GREEN; COLOR_BLUE }
//	enum Mode  { MODE_AUTO; MODE_MODE_AUTO }
//	message Scalars { every scalar kind, plus a Color }
//	message Inner   { name, count, repeated tags }
//	message Outer   { map, oneof group, repeated and nested messages, well-known types }
//
// The descriptor is built once and shared.
func Schema() protoreflect.FileDescriptor {
	schemaOnce.Do(func() {
		schemaFile, schemaErr = protodesc.NewFile(fixtureFile(), protoregistry.GlobalFiles)
	})
	if schemaErr != nil {
		panic(fmt.Sprintf("testutil: build fixture schema: %v", schemaErr))
	}
	return schemaFile
}

// Message returns the fixture message descriptor with the given short name.
func Message(name string) protoreflect.MessageDescriptor {
	md := Schema().Messages().ByName(protoreflect.Name(name))
	if md == nil {
		panic(fmt.Sprintf("testutil: no fixture message %q", name))
	}
	return md
}

// Enum returns the fixture enum descriptor with the given short name.
func Enum(name string) protoreflect.EnumDescriptor {
	ed := Schema().Enums().ByName(protoreflect.Name(name))
	if ed == nil {
		panic(fmt.Sprintf("testutil: no fixture enum %q", name))
	}
	return ed
}

// MessageType returns a dynamic message type for the fixture message name.
func MessageType(name string) protoreflect.MessageType {
	return dynamicpb.NewMessageType(Message(name))
}

// Types returns a fresh type registry holding every fixture message and enum
// as dynamic types.
func Types() *protoregistry.Types {
	types := new(protoregistry.Types)
	file := Schema()
	for i := 0; i < file.Enums().Len(); i++ {
		if err := types.RegisterEnum(dynamicpb.NewEnumType(file.Enums().Get(i))); err != nil {
			panic(err)
		}
	}
	for i := 0; i < file.Messages().Len(); i++ {
		if err := types.RegisterMessage(dynamicpb.NewMessageType(file.Messages().Get(i))); err != nil {
			panic(err)
		}
	}
	return types
}

func fixtureFile() *descriptorpb.FileDescriptorProto {
	return &descriptorpb.FileDescriptorProto{
		Name:    proto.String("protosignal/test/v1/fixture.proto"),
		Package: proto.String(FixturePackage),
		Syntax:  proto.String("proto3"),
		Dependency: []string{
			"google/protobuf/duration.proto",
			"google/protobuf/struct.proto",
			"google/protobuf/timestamp.proto",
			"google/protobuf/wrappers.proto",
		},
		EnumType: []*descriptorpb.EnumDescriptorProto{
			enum("Color", "COLOR_RED", "COLOR_GREEN", "COLOR_BLUE"),
			enum("Mode", "MODE_AUTO", "MODE_MODE_AUTO"),
		},
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("Scalars"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("double_value", 1, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					scalar("float_value", 2, descriptorpb.FieldDescriptorProto_TYPE_FLOAT),
					scalar("int32_value", 3, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					scalar("int64_value", 4, descriptorpb.FieldDescriptorProto_TYPE_INT64),
					scalar("uint32_value", 5, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
					scalar("uint64_value", 6, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
					scalar("sint32_value", 7, descriptorpb.FieldDescriptorProto_TYPE_SINT32),
					scalar("sint64_value", 8, descriptorpb.FieldDescriptorProto_TYPE_SINT64),
					scalar("fixed32_value", 9, descriptorpb.FieldDescriptorProto_TYPE_FIXED32),
					scalar("fixed64_value", 10, descriptorpb.FieldDescriptorProto_TYPE_FIXED64),
					scalar("sfixed32_value", 11, descriptorpb.FieldDescriptorProto_TYPE_SFIXED32),
					scalar("sfixed64_value", 12, descriptorpb.FieldDescriptorProto_TYPE_SFIXED64),
					scalar("bool_value", 13, descriptorpb.FieldDescriptorProto_TYPE_BOOL),
					scalar("string_value", 14, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("bytes_value", 15, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
					typed("color", 16, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".protosignal.test.v1.Color"),
					typed("mode", 17, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".protosignal.test.v1.Mode"),
				},
			},
			{
				Name: proto.String("Inner"),
				Field: []*descriptorpb.FieldDescriptorProto{
					scalar("name", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					scalar("count", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32),
					repeated(scalar("tags", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING)),
				},
			},
			{
				Name: proto.String("Outer"),
				Field: []*descriptorpb.FieldDescriptorProto{
					repeated(typed("m", 1, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Outer.MEntry")),
					oneof(scalar("group_field_a", 2, descriptorpb.FieldDescriptorProto_TYPE_INT32), 0),
					oneof(scalar("group_field_b", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING), 0),
					oneof(typed("group_field_c", 4, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Inner"), 0),
					repeated(typed("items", 5, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Inner")),
					typed("inner", 6, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Inner"),
					repeated(typed("colors", 7, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".protosignal.test.v1.Color")),
					repeated(typed("by_id", 8, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Outer.ByIdEntry")),
					typed("created", 9, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Timestamp"),
					typed("ttl", 10, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Duration"),
					typed("attrs", 11, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Struct"),
					typed("limit", 12, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Int64Value"),
					optional(scalar("note", 13, descriptorpb.FieldDescriptorProto_TYPE_STRING), 1),
					repeated(scalar("values", 14, descriptorpb.FieldDescriptorProto_TYPE_INT64)),
					typed("extra", 15, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Value"),
					typed("color", 16, descriptorpb.FieldDescriptorProto_TYPE_ENUM, ".protosignal.test.v1.Color"),
				},
				NestedType: []*descriptorpb.DescriptorProto{
					mapEntry("MEntry",
						scalar("key", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
						scalar("value", 2, descriptorpb.FieldDescriptorProto_TYPE_INT64)),
					mapEntry("ByIdEntry",
						scalar("key", 1, descriptorpb.FieldDescriptorProto_TYPE_INT32),
						typed("value", 2, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".protosignal.test.v1.Inner")),
				},
				OneofDecl: []*descriptorpb.OneofDescriptorProto{
					{Name: proto.String("group")},
					{Name: proto.String("_note")},
				},
			},
		},
	}
}

func enum(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	ed := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		ed.Value = append(ed.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return ed
}

func scalar(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(number),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   kind.Enum(),
	}
}

func typed(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	fd := scalar(name, number, kind)
	fd.TypeName = proto.String(typeName)
	return fd
}

func repeated(fd *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	fd.Label = descriptorpb.FieldDescriptorProto_LABEL_REPEATED.Enum()
	return fd
}

func oneof(fd *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	fd.OneofIndex = proto.Int32(index)
	return fd
}

func optional(fd *descriptorpb.FieldDescriptorProto, index int32) *descriptorpb.FieldDescriptorProto {
	fd.Proto3Optional = proto.Bool(true)
	return oneof(fd, index)
}

func mapEntry(name string, key, value *descriptorpb.FieldDescriptorProto) *descriptorpb.DescriptorProto {
	return &descriptorpb.DescriptorProto{
		Name:    proto.String(name),
		Field:   []*descriptorpb.FieldDescriptorProto{key, value},
		Options: &descriptorpb.MessageOptions{MapEntry: proto.Bool(true)},
	}
}
