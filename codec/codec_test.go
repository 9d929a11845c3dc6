package codec

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/testutil"
)

func fixtureName(name string) protoreflect.FullName {
	return protoreflect.FullName(testutil.FixturePackage + "." + name)
}

func TestRoundTrip(t *testing.T) {
	value := map[string]any{
		"m":             map[string]any{"k1": int64(1), "k2": int64(2)},
		"group_field_a": int64(5),
		"items": []any{
			map[string]any{"name": "a", "count": int64(1), "tags": []any{"x", "y"}},
			map[string]any{"name": "b", "count": int64(2), "tags": []any{}},
		},
		"inner":   map[string]any{"name": "in", "count": int64(3), "tags": []any{}},
		"colors":  []any{"RED", "BLUE"},
		"by_id":   map[string]any{"7": map[string]any{"name": "seven", "count": int64(7), "tags": []any{}}},
		"created": time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC),
		"ttl":     90 * time.Second,
		"attrs":   map[string]any{"a": 1.5, "b": "x", "c": []any{true, nil}},
		"limit":   int64(10),
		"note":    "hello",
		"values":  []any{int64(1), int64(-2)},
		"extra":   "free",
		"color":   "GREEN",
	}

	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), value)
	require.NoError(t, err)

	decoded, err := NewDissecter().Decode(msg)
	require.NoError(t, err)
	got, ok := decoded.(map[string]any)
	require.True(t, ok)

	for k, want := range value {
		assert.Equal(t, want, got[k], "field %s", k)
	}
	assert.Nil(t, got["group_field_b"])
	assert.Nil(t, got["group_field_c"])
}

func TestRoundTrip_ThroughWireBytes(t *testing.T) {
	value := map[string]any{
		"name":  "wire",
		"count": int64(-4),
		"tags":  []any{"a"},
	}
	msg, err := NewBuilder().Build(testutil.MessageType("Inner"), value)
	require.NoError(t, err)

	data, err := proto.Marshal(msg)
	require.NoError(t, err)

	d := NewDissecter(WithResolver(testutil.Types()))
	decoded, err := d.DecodeBytes(fixtureName("Inner"), data)
	require.NoError(t, err)
	assert.Equal(t, value, decoded)
}

func TestMapAndOneofFidelity(t *testing.T) {
	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"m":             map[string]any{"k1": 1, "k2": 2},
		"group_field_a": 5,
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"k1": int64(1), "k2": int64(2)}, got["m"])
	assert.Equal(t, int64(5), got["group_field_a"])
	assert.Nil(t, got["group_field_b"])
	assert.Nil(t, got["group_field_c"])
}

func TestOneofLastMemberWins(t *testing.T) {
	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"group_field_a": 5,
		"group_field_b": "b",
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Nil(t, got["group_field_a"])
	assert.Equal(t, "b", got["group_field_b"])
}

func TestDecode_ZeroValues(t *testing.T) {
	got, err := NewDissecter().DecodeMap(dynamicpb.NewMessage(testutil.Message("Outer")))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{}, got["m"])
	assert.Equal(t, []any{}, got["items"])
	assert.Nil(t, got["inner"])
	assert.Nil(t, got["created"])
	assert.Nil(t, got["limit"])
	assert.Nil(t, got["note"])
	assert.Nil(t, got["group_field_a"])
	assert.Equal(t, "RED", got["color"])

	scalars, err := NewDissecter().DecodeMap(dynamicpb.NewMessage(testutil.Message("Scalars")))
	require.NoError(t, err)
	assert.Equal(t, int64(0), scalars["int32_value"])
	assert.Equal(t, uint64(0), scalars["fixed64_value"])
	assert.Equal(t, float64(0), scalars["float_value"])
	assert.Equal(t, false, scalars["bool_value"])
	assert.Equal(t, "", scalars["string_value"])
	assert.Empty(t, scalars["bytes_value"])
}

func TestBuild_ScalarCoercion(t *testing.T) {
	tests := []struct {
		name  string
		field string
		value any
		want  any
		kind  EncodeErrorKind
	}{
		{"int widened to double", "double_value", 3, float64(3), 0},
		{"int widened to float", "float_value", int8(2), float64(2), 0},
		{"json number int", "int64_value", json.Number("42"), int64(42), 0},
		{"json number float", "double_value", json.Number("1.25"), 1.25, 0},
		{"uint into int32", "int32_value", uint16(7), int64(7), 0},
		{"sint64", "sint64_value", int64(-9), int64(-9), 0},
		{"uint64 max", "uint64_value", uint64(1<<64 - 1), uint64(1<<64 - 1), 0},
		{"bytes", "bytes_value", []byte("raw"), []byte("raw"), 0},
		{"float into int", "int32_value", 1.5, nil, TypeMismatch},
		{"string into bool", "bool_value", "true", nil, TypeMismatch},
		{"string into bytes", "bytes_value", "raw", nil, TypeMismatch},
		{"int into string", "string_value", 1, nil, TypeMismatch},
		{"int32 overflow", "int32_value", int64(1) << 40, nil, InvalidInput},
		{"negative unsigned", "uint32_value", -1, nil, InvalidInput},
		{"uint32 overflow", "fixed32_value", uint64(1) << 33, nil, InvalidInput},
		{"float32 max", "float_value", float64(math.MaxFloat32), float64(math.MaxFloat32), 0},
		{"float32 infinity", "float_value", math.Inf(-1), math.Inf(-1), 0},
		{"float32 overflow", "float_value", 1e300, nil, InvalidInput},
		{"float32 negative overflow", "float_value", -1e300, nil, InvalidInput},
	}

	b := NewBuilder()
	d := NewDissecter()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := b.Build(testutil.MessageType("Scalars"), map[string]any{tc.field: tc.value})
			if tc.kind != 0 {
				var ee *EncodeError
				require.ErrorAs(t, err, &ee)
				assert.Equal(t, tc.kind, ee.Kind)
				assert.Equal(t, tc.field, ee.Path)
				assert.Equal(t, fixtureName("Scalars"), ee.Type)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			got, err := d.DecodeMap(msg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got[tc.field])
		})
	}
}

func TestBuild_TypedCollections(t *testing.T) {
	type label string

	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"m":      map[string]int64{"k1": 1, "k2": 2},
		"by_id":  map[label]map[string]any{"7": {"name": "seven"}},
		"inner":  map[string]string{"name": "typed"},
		"values": []int64{3, 4},
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"k1": int64(1), "k2": int64(2)}, got["m"])
	assert.Equal(t, "seven", got["by_id"].(map[string]any)["7"].(map[string]any)["name"])
	assert.Equal(t, "typed", got["inner"].(map[string]any)["name"])
	assert.Equal(t, []any{int64(3), int64(4)}, got["values"])

	_, err = NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"m": map[int]int64{1: 1},
	})
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, TypeMismatch, ee.Kind)
	assert.Equal(t, "m", ee.Path)
}

func TestBuild_NotAMapping(t *testing.T) {
	_, err := NewBuilder().Build(testutil.MessageType("Inner"), []any{"x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, "", ee.Path)
	assert.Equal(t, fixtureName("Inner"), ee.Type)
}

func TestBuild_NestedErrorPath(t *testing.T) {
	_, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"items": []any{
			map[string]any{"name": "ok"},
			map[string]any{"name": 5},
		},
	})

	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, TypeMismatch, ee.Kind)
	assert.Equal(t, "items[1].name", ee.Path)
	assert.Equal(t, fixtureName("Inner"), ee.Type)
	assert.Contains(t, err.Error(), "items[1].name")

	_, err = NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"by_id": map[string]any{"seven": map[string]any{}},
	})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, TypeMismatch, ee.Kind)
	assert.Equal(t, "by_id[seven]", ee.Path)
}

func TestBuild_NullHandling(t *testing.T) {
	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"inner": nil,
		"note":  nil,
		"limit": nil,
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Nil(t, got["inner"])
	assert.Nil(t, got["note"])
	assert.Nil(t, got["limit"])

	_, err = NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"values": []any{int64(1), nil},
	})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestBuild_BareScalarWrappedAsList(t *testing.T) {
	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"values": 7,
		"items":  map[string]any{"name": "only"},
		"colors": []string{"RED", "GREEN"},
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7)}, got["values"])
	assert.Equal(t, []any{"RED", "GREEN"}, got["colors"])
	items := got["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "only", items[0].(map[string]any)["name"])
}

func TestBuild_StrictMode(t *testing.T) {
	b := NewBuilder(WithStrict())

	_, err := b.Build(testutil.MessageType("Inner"), map[string]any{"name": "x"})
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, InvalidInput, ee.Kind)
	assert.Equal(t, []string{"count", "tags"}, ee.Fields)

	_, err = b.Build(testutil.MessageType("Inner"), map[string]any{"name": "x", "count": nil, "tags": nil})
	assert.NoError(t, err, "null keys count as present")

	outer := map[string]any{}
	fds := testutil.Message("Outer").Fields()
	for i := 0; i < fds.Len(); i++ {
		fd := fds.Get(i)
		if od := fd.ContainingOneof(); od != nil && !od.IsSynthetic() {
			continue
		}
		outer[string(fd.Name())] = nil
	}
	_, err = b.Build(testutil.MessageType("Outer"), outer)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, []string{"group"}, ee.Fields)

	outer["group_field_b"] = "b"
	_, err = b.Build(testutil.MessageType("Outer"), outer)
	assert.NoError(t, err)
}

func TestBuild_ValidationMode(t *testing.T) {
	value := map[string]any{"name": "x", "bogus": 1, "alpha": 2}

	_, err := NewBuilder().Build(testutil.MessageType("Inner"), value)
	assert.NoError(t, err, "extra keys are ignored by default")

	_, err = NewBuilder(WithValidation()).Build(testutil.MessageType("Inner"), value)
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, UnexpectedField, ee.Kind)
	assert.Equal(t, []string{"alpha", "bogus"}, ee.Fields)
	assert.ErrorIs(t, err, errors.ErrUnexpectedField)
}

func TestEnum_FallbackResolution(t *testing.T) {
	b := NewBuilder()
	d := NewDissecter()
	mt := testutil.MessageType("Scalars")

	short, err := b.Build(mt, map[string]any{"color": "RED"})
	require.NoError(t, err)
	full, err := b.Build(mt, map[string]any{"color": "COLOR_RED"})
	require.NoError(t, err)
	fd := testutil.Message("Scalars").Fields().ByName("color")
	assert.Equal(t, full.ProtoReflect().Get(fd).Enum(), short.ProtoReflect().Get(fd).Enum())

	blue, err := b.Build(mt, map[string]any{"color": "BLUE"})
	require.NoError(t, err)
	assert.Equal(t, protoreflect.EnumNumber(2), blue.ProtoReflect().Get(fd).Enum())

	_, err = b.Build(mt, map[string]any{"color": "PURPLE"})
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, UnknownEnumSymbol, ee.Kind)
	assert.Equal(t, "color", ee.Path)
	assert.ErrorIs(t, err, errors.ErrUnknownEnumSymbol)

	numeric, err := b.Build(mt, map[string]any{"color": 1})
	require.NoError(t, err)
	got, err := d.DecodeMap(numeric)
	require.NoError(t, err)
	assert.Equal(t, "GREEN", got["color"])

	unknown, err := b.Build(mt, map[string]any{"color": 9})
	require.NoError(t, err, "integral input passes through unchecked")
	got, err = d.DecodeMap(unknown)
	require.NoError(t, err)
	assert.Equal(t, int64(9), got["color"])

	_, err = b.Build(mt, map[string]any{"color": true})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

// Stripping the shared prefix can make a short symbol collide with a full
// one: Mode has MODE_AUTO and MODE_MODE_AUTO, and MODE_MODE_AUTO decodes to
// "MODE_AUTO", which encodes back to MODE_AUTO. The exact match wins; this
// behaviour is accepted as is.
func TestEnum_SuffixAmbiguity(t *testing.T) {
	b := NewBuilder()
	d := NewDissecter()
	mt := testutil.MessageType("Scalars")

	msg, err := b.Build(mt, map[string]any{"mode": 1})
	require.NoError(t, err)
	got, err := d.DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, "MODE_AUTO", got["mode"])

	again, err := b.Build(mt, map[string]any{"mode": got["mode"]})
	require.NoError(t, err)
	fd := testutil.Message("Scalars").Fields().ByName("mode")
	assert.Equal(t, protoreflect.EnumNumber(0), again.ProtoReflect().Get(fd).Enum())
}

func TestEnum_SymbolTableCached(t *testing.T) {
	d := NewDissecter()
	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"colors": []any{"RED", "GREEN", "BLUE"},
	})
	require.NoError(t, err)

	_, err = d.Decode(msg)
	require.NoError(t, err)
	_, err = d.Decode(msg)
	require.NoError(t, err)

	stats := d.SymbolCacheStats()
	assert.Equal(t, int64(1), stats.Sets(), "colors and color share the Color table")
	assert.Positive(t, stats.Hits())
}

func TestRegistry_BuiltinWrappers(t *testing.T) {
	tests := []struct {
		mt    protoreflect.MessageType
		value any
		want  any
	}{
		{(&wrapperspb.DoubleValue{}).ProtoReflect().Type(), 2.5, 2.5},
		{(&wrapperspb.FloatValue{}).ProtoReflect().Type(), 2, float64(2)},
		{(&wrapperspb.Int64Value{}).ProtoReflect().Type(), -3, int64(-3)},
		{(&wrapperspb.UInt64Value{}).ProtoReflect().Type(), 3, uint64(3)},
		{(&wrapperspb.Int32Value{}).ProtoReflect().Type(), int32(4), int64(4)},
		{(&wrapperspb.UInt32Value{}).ProtoReflect().Type(), uint32(5), uint64(5)},
		{(&wrapperspb.BoolValue{}).ProtoReflect().Type(), true, true},
		{(&wrapperspb.StringValue{}).ProtoReflect().Type(), "s", "s"},
		{(&wrapperspb.BytesValue{}).ProtoReflect().Type(), []byte{1}, []byte{1}},
	}

	b := NewBuilder()
	d := NewDissecter()
	for _, tc := range tests {
		name := string(tc.mt.Descriptor().FullName())
		t.Run(name, func(t *testing.T) {
			msg, err := b.Build(tc.mt, tc.value)
			require.NoError(t, err)
			got, err := d.Decode(msg)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := b.Build((&wrapperspb.BoolValue{}).ProtoReflect().Type(), "yes")
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestRegistry_BuiltinTimeTypes(t *testing.T) {
	b := NewBuilder()
	d := NewDissecter()
	tsType := (&timestamppb.Timestamp{}).ProtoReflect().Type()
	durType := (&durationpb.Duration{}).ProtoReflect().Type()

	ts, err := b.Build(tsType, "2024-05-06T07:08:09.5Z")
	require.NoError(t, err)
	assert.IsType(t, &timestamppb.Timestamp{}, ts)
	got, err := d.Decode(ts)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 500000000, time.UTC), got)

	ts, err = b.Build(tsType, 60)
	require.NoError(t, err)
	got, err = d.Decode(ts)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(60, 0).UTC(), got)

	_, err = b.Build(tsType, "yesterday")
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	dur, err := b.Build(durType, "1m30s")
	require.NoError(t, err)
	got, err = d.Decode(dur)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, got)

	dur, err = b.Build(durType, 1.5)
	require.NoError(t, err)
	got, err = d.Decode(dur)
	require.NoError(t, err)
	assert.Equal(t, 1500*time.Millisecond, got)

	_, err = b.Build(durType, true)
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestRegistry_TimestampDecodesAsUTC(t *testing.T) {
	zone := time.FixedZone("UTC+2", 2*60*60)
	local := time.Date(2024, 5, 6, 9, 8, 9, 0, zone)

	ts, err := NewBuilder().Build((&timestamppb.Timestamp{}).ProtoReflect().Type(), local)
	require.NoError(t, err)
	got, err := NewDissecter().Decode(ts)
	require.NoError(t, err)

	decoded := got.(time.Time)
	assert.True(t, decoded.Equal(local))
	assert.Equal(t, time.UTC, decoded.Location())
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), decoded)
}

func TestRegistry_BuiltinStructTypes(t *testing.T) {
	b := NewBuilder()
	d := NewDissecter()

	value := map[string]any{"n": 1.0, "list": []any{"a", false}, "nested": map[string]any{"x": nil}}
	s, err := b.Build((&structpb.Struct{}).ProtoReflect().Type(), value)
	require.NoError(t, err)
	got, err := d.Decode(s)
	require.NoError(t, err)
	assert.Equal(t, value, got)

	l, err := b.Build((&structpb.ListValue{}).ProtoReflect().Type(), []any{1.0, "two"})
	require.NoError(t, err)
	got, err = d.Decode(l)
	require.NoError(t, err)
	assert.Equal(t, []any{1.0, "two"}, got)

	_, err = b.Build((&structpb.Struct{}).ProtoReflect().Type(), "nope")
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestRegistry_Isolation(t *testing.T) {
	custom := func(value any) (proto.Message, error) {
		m := dynamicpb.NewMessage(testutil.Message("Inner"))
		m.Set(testutil.Message("Inner").Fields().ByName("name"), protoreflect.ValueOfString("custom"))
		return m, nil
	}

	b1 := NewBuilder()
	b1.Registry().RegisterEncoder(fixtureName("Inner"), custom)
	b2 := NewBuilder()

	_, ok := b2.Registry().Encoder(fixtureName("Inner"))
	assert.False(t, ok)
	_, ok = NewTypeRegistry().Encoder(fixtureName("Inner"))
	assert.False(t, ok, "built-in table is not mutated")

	msg, err := b1.Build(testutil.MessageType("Outer"), map[string]any{"inner": "anything at all"})
	require.NoError(t, err, "registered encoder bypasses recursion")
	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, "custom", got["inner"].(map[string]any)["name"])

	_, err = b2.Build(testutil.MessageType("Outer"), map[string]any{"inner": "anything at all"})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)

	clone := b1.Registry().Clone()
	clone.RegisterDecoder(fixtureName("Inner"), func(proto.Message) (any, error) { return "x", nil })
	_, ok = b1.Registry().Decoder(fixtureName("Inner"))
	assert.False(t, ok)
	assert.Contains(t, clone.Names(), fixtureName("Inner"))
	assert.Contains(t, clone.Names(), TimestampName)
}

func TestRegistry_SharedByReference(t *testing.T) {
	registry := NewTypeRegistry()
	d := NewDissecter(WithRegistry(registry))

	registry.RegisterDecoder(fixtureName("Inner"), func(m proto.Message) (any, error) {
		fd := m.ProtoReflect().Descriptor().Fields().ByName("name")
		return m.ProtoReflect().Get(fd).String(), nil
	})

	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"inner": map[string]any{"name": "flat"},
	})
	require.NoError(t, err)

	got, err := d.DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, "flat", got["inner"])
}

func TestRegistry_EncoderErrors(t *testing.T) {
	b := NewBuilder()
	b.Registry().RegisterEncoder(fixtureName("Inner"), func(any) (proto.Message, error) {
		return wrapperspb.String("wrong type"), nil
	})
	_, err := b.Build(testutil.MessageType("Outer"), map[string]any{"inner": 1})
	var ee *EncodeError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, TypeMismatch, ee.Kind)
	assert.Equal(t, "inner", ee.Path)

	b.Registry().RegisterEncoder(fixtureName("Inner"), func(any) (proto.Message, error) {
		return nil, assert.AnError
	})
	_, err = b.Build(testutil.MessageType("Outer"), map[string]any{"inner": 1})
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, InvalidInput, ee.Kind)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestEmptyRegistry_WellKnownTypesRecurse(t *testing.T) {
	registry := NewEmptyTypeRegistry()
	d := NewDissecter(WithRegistry(registry))

	got, err := d.Decode(&timestamppb.Timestamp{Seconds: 5, Nanos: 6})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"seconds": int64(5), "nanos": int64(6)}, got)
}

func TestBuildFromDescriptor(t *testing.T) {
	b := NewBuilder()

	msg, err := b.BuildFromDescriptor(testutil.Message("Inner"), map[string]any{"name": "dyn"})
	require.NoError(t, err)
	assert.IsType(t, &dynamicpb.Message{}, msg)

	dur, err := b.BuildFromDescriptor((&durationpb.Duration{}).ProtoReflect().Descriptor(), "2s")
	require.NoError(t, err)
	assert.IsType(t, &durationpb.Duration{}, dur, "resolver supplies the generated type")

	_, err = b.BuildFromDescriptor(nil, nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestBuildInto(t *testing.T) {
	b := NewBuilder()
	msg, err := b.Build(testutil.MessageType("Inner"), map[string]any{"name": "a", "tags": []any{"x", "y"}})
	require.NoError(t, err)

	require.NoError(t, b.BuildInto(msg, map[string]any{"tags": []any{"z"}, "count": 2}))

	got, err := NewDissecter().Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "a", "count": int64(2), "tags": []any{"z"}}, got)

	assert.ErrorIs(t, b.BuildInto(nil, map[string]any{}), errors.ErrNotAMessage)
}

func TestBuild_AcceptsMessageValues(t *testing.T) {
	inner, err := NewBuilder().Build(testutil.MessageType("Inner"), map[string]any{"name": "pre"})
	require.NoError(t, err)

	msg, err := NewBuilder().Build(testutil.MessageType("Outer"), map[string]any{
		"inner":   inner,
		"created": timestamppb.New(time.Unix(10, 0)),
	})
	require.NoError(t, err)

	got, err := NewDissecter().DecodeMap(msg)
	require.NoError(t, err)
	assert.Equal(t, "pre", got["inner"].(map[string]any)["name"])
	assert.Equal(t, time.Unix(10, 0).UTC(), got["created"])
}

func TestDecode_Errors(t *testing.T) {
	d := NewDissecter()

	_, err := d.Decode(nil)
	var de *DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, NotAMessage, de.Kind)
	assert.ErrorIs(t, err, errors.ErrNotAMessage)
	assert.True(t, errors.IsInvalid(err))

	var typedNil *timestamppb.Timestamp
	_, err = d.Decode(typedNil)
	assert.ErrorIs(t, err, errors.ErrNotAMessage)

	_, err = d.DecodeBytes("no.such.Type", nil)
	require.ErrorAs(t, err, &de)
	assert.Equal(t, UnknownType, de.Kind)
	assert.Equal(t, protoreflect.FullName("no.such.Type"), de.Type)

	_, err = NewDissecter(WithResolver(testutil.Types())).DecodeBytes(fixtureName("Inner"), []byte{0xff})
	assert.ErrorIs(t, err, errors.ErrParsingFailed)
}

func TestKindOf(t *testing.T) {
	outer := testutil.Message("Outer").Fields()
	assert.Equal(t, MapField, KindOf(outer.ByName("m")))
	assert.Equal(t, RepeatedField, KindOf(outer.ByName("items")))
	assert.Equal(t, MessageField, ElementKindOf(outer.ByName("items")))
	assert.Equal(t, MessageField, KindOf(outer.ByName("inner")))
	assert.Equal(t, EnumField, KindOf(outer.ByName("color")))
	assert.Equal(t, ScalarField, KindOf(outer.ByName("note")))
	assert.Equal(t, "map", MapField.String())
}

func TestConcurrentUse(t *testing.T) {
	b := NewBuilder()
	d := NewDissecter()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := b.Build(testutil.MessageType("Outer"), map[string]any{
				"colors": []any{"RED", "BLUE"},
				"values": []any{i},
			})
			if !assert.NoError(t, err) {
				return
			}
			got, err := d.DecodeMap(msg)
			if assert.NoError(t, err) {
				assert.Equal(t, []any{int64(i)}, got["values"])
			}
		}(i)
	}
	wg.Wait()
}
