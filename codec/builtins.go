package codec

import (
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Well-known type names with built-in conversions.
const (
	DoubleValueName protoreflect.FullName = "google.protobuf.DoubleValue"
	FloatValueName  protoreflect.FullName = "google.protobuf.FloatValue"
	Int64ValueName  protoreflect.FullName = "google.protobuf.Int64Value"
	UInt64ValueName protoreflect.FullName = "google.protobuf.UInt64Value"
	Int32ValueName  protoreflect.FullName = "google.protobuf.Int32Value"
	UInt32ValueName protoreflect.FullName = "google.protobuf.UInt32Value"
	BoolValueName   protoreflect.FullName = "google.protobuf.BoolValue"
	StringValueName protoreflect.FullName = "google.protobuf.StringValue"
	BytesValueName  protoreflect.FullName = "google.protobuf.BytesValue"
	TimestampName   protoreflect.FullName = "google.protobuf.Timestamp"
	DurationName    protoreflect.FullName = "google.protobuf.Duration"
	ValueName       protoreflect.FullName = "google.protobuf.Value"
	StructName      protoreflect.FullName = "google.protobuf.Struct"
	ListValueName   protoreflect.FullName = "google.protobuf.ListValue"
)

var wrapperNames = []protoreflect.FullName{
	DoubleValueName, FloatValueName, Int64ValueName, UInt64ValueName,
	Int32ValueName, UInt32ValueName, BoolValueName, StringValueName, BytesValueName,
}

func builtinEncoders() map[protoreflect.FullName]Encoder {
	return map[protoreflect.FullName]Encoder{
		DoubleValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Double(v.Float()) },
			&wrapperspb.DoubleValue{}),
		FloatValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Float(float32(v.Float())) },
			&wrapperspb.FloatValue{}),
		Int64ValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Int64(v.Int()) },
			&wrapperspb.Int64Value{}),
		UInt64ValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.UInt64(v.Uint()) },
			&wrapperspb.UInt64Value{}),
		Int32ValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Int32(int32(v.Int())) },
			&wrapperspb.Int32Value{}),
		UInt32ValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.UInt32(uint32(v.Uint())) },
			&wrapperspb.UInt32Value{}),
		BoolValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Bool(v.Bool()) },
			&wrapperspb.BoolValue{}),
		StringValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.String(v.String()) },
			&wrapperspb.StringValue{}),
		BytesValueName: wrapperEncoder(func(v protoreflect.Value) proto.Message { return wrapperspb.Bytes(v.Bytes()) },
			&wrapperspb.BytesValue{}),
		TimestampName: encodeTimestamp,
		DurationName:  encodeDuration,
		ValueName:     encodeValue,
		StructName:    encodeStruct,
		ListValueName: encodeListValue,
	}
}

func builtinDecoders() map[protoreflect.FullName]Decoder {
	decoders := map[protoreflect.FullName]Decoder{
		TimestampName: decodeTimestamp,
		DurationName:  decodeDuration,
		ValueName:     decodeValue,
		StructName:    decodeStruct,
		ListValueName: decodeListValue,
	}
	for _, name := range wrapperNames {
		decoders[name] = decodeWrapper
	}
	return decoders
}

// wrapperEncoder encodes a bare scalar into a wrapper message, applying the
// same coercion rules as a plain field of the wrapped kind.
func wrapperEncoder(wrap func(protoreflect.Value) proto.Message, zero proto.Message) Encoder {
	fd := zero.ProtoReflect().Descriptor().Fields().ByNumber(1)
	return func(value any) (proto.Message, error) {
		v, err := encodeScalar(fd, value)
		if err != nil {
			return nil, err
		}
		return wrap(v), nil
	}
}

func decodeWrapper(m proto.Message) (any, error) {
	rm := m.ProtoReflect()
	fd := rm.Descriptor().Fields().ByNumber(1)
	if fd == nil {
		return nil, fmt.Errorf("%s has no value field", rm.Descriptor().FullName())
	}
	return decodeScalar(fd, rm.Get(fd)), nil
}

// encodeTimestamp accepts time.Time, an RFC 3339 string, or epoch seconds.
func encodeTimestamp(value any) (proto.Message, error) {
	switch v := value.(type) {
	case time.Time:
		return timestamppb.New(v), nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return timestamppb.New(*v), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return nil, &EncodeError{Kind: InvalidInput, Err: err}
		}
		return timestamppb.New(t), nil
	}
	if i, ok := asInt64(value); ok {
		return &timestamppb.Timestamp{Seconds: i}, nil
	}
	if f, ok := asFloat64(value); ok {
		sec, frac := math.Modf(f)
		return timestamppb.New(time.Unix(int64(sec), int64(frac*1e9))), nil
	}
	return nil, mismatch("time.Time, RFC 3339 string or epoch seconds", value)
}

// decodeTimestamp normalises to UTC; the zone is not part of the message.
func decodeTimestamp(m proto.Message) (any, error) {
	seconds, nanos := secondsNanos(m)
	return time.Unix(seconds, int64(nanos)).UTC(), nil
}

// encodeDuration accepts time.Duration, a time.ParseDuration string, or seconds.
func encodeDuration(value any) (proto.Message, error) {
	switch v := value.(type) {
	case time.Duration:
		return durationpb.New(v), nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, &EncodeError{Kind: InvalidInput, Err: err}
		}
		return durationpb.New(d), nil
	}
	if i, ok := asInt64(value); ok {
		return &durationpb.Duration{Seconds: i}, nil
	}
	if f, ok := asFloat64(value); ok {
		return durationpb.New(time.Duration(f * float64(time.Second))), nil
	}
	return nil, mismatch("time.Duration, duration string or seconds", value)
}

func decodeDuration(m proto.Message) (any, error) {
	seconds, nanos := secondsNanos(m)
	return time.Duration(seconds)*time.Second + time.Duration(nanos), nil
}

// secondsNanos reads fields 1 and 2 of a Timestamp or Duration reflectively,
// so dynamic instances decode the same as generated ones.
func secondsNanos(m proto.Message) (int64, int32) {
	rm := m.ProtoReflect()
	fields := rm.Descriptor().Fields()
	var seconds int64
	var nanos int32
	if fd := fields.ByNumber(1); fd != nil {
		seconds = rm.Get(fd).Int()
	}
	if fd := fields.ByNumber(2); fd != nil {
		nanos = int32(rm.Get(fd).Int())
	}
	return seconds, nanos
}

func encodeValue(value any) (proto.Message, error) {
	v, err := structpb.NewValue(value)
	if err != nil {
		return nil, &EncodeError{Kind: TypeMismatch, Err: err}
	}
	return v, nil
}

func encodeStruct(value any) (proto.Message, error) {
	fields, ok := value.(map[string]any)
	if !ok {
		return nil, mismatch("mapping", value)
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, &EncodeError{Kind: TypeMismatch, Err: err}
	}
	return s, nil
}

func encodeListValue(value any) (proto.Message, error) {
	items, ok := asSequence(value)
	if !ok {
		return nil, mismatch("sequence", value)
	}
	l, err := structpb.NewList(items)
	if err != nil {
		return nil, &EncodeError{Kind: TypeMismatch, Err: err}
	}
	return l, nil
}

func decodeValue(m proto.Message) (any, error) {
	v, err := toKnown(m, &structpb.Value{})
	if err != nil {
		return nil, err
	}
	return v.AsInterface(), nil
}

func decodeStruct(m proto.Message) (any, error) {
	s, err := toKnown(m, &structpb.Struct{})
	if err != nil {
		return nil, err
	}
	return s.AsMap(), nil
}

func decodeListValue(m proto.Message) (any, error) {
	l, err := toKnown(m, &structpb.ListValue{})
	if err != nil {
		return nil, err
	}
	return l.AsSlice(), nil
}

// toKnown returns m as the generated type T, copying dynamic instances into dst.
func toKnown[T proto.Message](m proto.Message, dst T) (T, error) {
	if t, ok := m.(T); ok {
		return t, nil
	}
	if err := copyMessage(dst.ProtoReflect(), m); err != nil {
		return dst, err
	}
	return dst, nil
}
