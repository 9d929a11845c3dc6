package codec

import (
	"reflect"

	"google.golang.org/protobuf/proto"
)

// copyMessage merges src into dst. Both must share a full name. Instances of
// the same Go type and descriptor merge directly; anything else, such as a
// generated message into a dynamicpb one, is copied through deterministic
// wire bytes.
func copyMessage(dst FieldAccessor, src proto.Message) error {
	sm := src.ProtoReflect()
	if sm.Descriptor() == dst.Descriptor() && reflect.TypeOf(src) == reflect.TypeOf(dst.Interface()) {
		proto.Merge(dst.Interface(), src)
		return nil
	}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(src)
	if err != nil {
		return err
	}
	return proto.UnmarshalOptions{Merge: true}.Unmarshal(data, dst.Interface())
}
