package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"google.golang.org/protobuf/reflect/protoreflect"
)

// asInt64 accepts every Go integer kind and integral json.Number values.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	case json.Number:
		u, err := strconv.ParseUint(string(n), 10, 64)
		return u, err == nil
	}
	if i, ok := asInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

// asFloat64 accepts floats and widens integers.
func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := asInt64(v); ok {
		return float64(i), true
	}
	if u, ok := asUint64(v); ok {
		return float64(u), true
	}
	return 0, false
}

func isIntegral(v any) bool {
	_, ok := asInt64(v)
	if !ok {
		_, ok = asUint64(v)
	}
	return ok
}

// asSequence returns the elements of a slice value. []byte is a scalar and
// never a sequence.
func asSequence(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asMapping returns v as a string-keyed mapping. Maps with any string key
// type and any value type are accepted.
func asMapping(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

// encodeScalar converts a dynamic value into the protoreflect value of a
// scalar field kind.
func encodeScalar(fd protoreflect.FieldDescriptor, v any) (protoreflect.Value, error) {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		b, ok := v.(bool)
		if !ok {
			return protoreflect.Value{}, mismatch("bool", v)
		}
		return protoreflect.ValueOfBool(b), nil

	case protoreflect.StringKind:
		s, ok := v.(string)
		if !ok {
			return protoreflect.Value{}, mismatch("string", v)
		}
		return protoreflect.ValueOfString(s), nil

	case protoreflect.BytesKind:
		b, ok := v.([]byte)
		if !ok {
			return protoreflect.Value{}, mismatch("bytes", v)
		}
		return protoreflect.ValueOfBytes(b), nil

	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		i, ok := asInt64(v)
		if !ok {
			return protoreflect.Value{}, mismatch("integer", v)
		}
		if i < math.MinInt32 || i > math.MaxInt32 {
			return protoreflect.Value{}, invalid("%d overflows int32", i)
		}
		return protoreflect.ValueOfInt32(int32(i)), nil

	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		i, ok := asInt64(v)
		if !ok {
			if isIntegral(v) {
				return protoreflect.Value{}, invalid("%v overflows int64", v)
			}
			return protoreflect.Value{}, mismatch("integer", v)
		}
		return protoreflect.ValueOfInt64(i), nil

	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		u, ok := asUint64(v)
		if !ok {
			if isIntegral(v) {
				return protoreflect.Value{}, invalid("%v is negative", v)
			}
			return protoreflect.Value{}, mismatch("unsigned integer", v)
		}
		if u > math.MaxUint32 {
			return protoreflect.Value{}, invalid("%d overflows uint32", u)
		}
		return protoreflect.ValueOfUint32(uint32(u)), nil

	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u, ok := asUint64(v)
		if !ok {
			if isIntegral(v) {
				return protoreflect.Value{}, invalid("%v is negative", v)
			}
			return protoreflect.Value{}, mismatch("unsigned integer", v)
		}
		return protoreflect.ValueOfUint64(u), nil

	case protoreflect.FloatKind:
		f, ok := asFloat64(v)
		if !ok {
			return protoreflect.Value{}, mismatch("number", v)
		}
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return protoreflect.Value{}, invalid("%v overflows float32", f)
		}
		return protoreflect.ValueOfFloat32(float32(f)), nil

	case protoreflect.DoubleKind:
		f, ok := asFloat64(v)
		if !ok {
			return protoreflect.Value{}, mismatch("number", v)
		}
		return protoreflect.ValueOfFloat64(f), nil
	}
	return protoreflect.Value{}, invalid("unsupported field kind %s", fd.Kind())
}

// decodeScalar converts a scalar protoreflect value into its dynamic form:
// signed integers as int64, unsigned as uint64, floats as float64.
func decodeScalar(fd protoreflect.FieldDescriptor, v protoreflect.Value) any {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return v.Bool()
	case protoreflect.StringKind:
		return v.String()
	case protoreflect.BytesKind:
		return append([]byte(nil), v.Bytes()...)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return v.Int()
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind,
		protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return v.Uint()
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return v.Float()
	}
	return v.Interface()
}

func keyMismatch(fd protoreflect.FieldDescriptor, key string) error {
	return &EncodeError{Kind: TypeMismatch, Err: fmt.Errorf("map key %q is not a valid %s", key, fd.Kind())}
}

// parseMapKey converts a dynamic mapping key into a map key of fd's kind.
func parseMapKey(fd protoreflect.FieldDescriptor, key string) (protoreflect.MapKey, error) {
	switch fd.Kind() {
	case protoreflect.StringKind:
		return protoreflect.ValueOfString(key).MapKey(), nil
	case protoreflect.BoolKind:
		b, err := strconv.ParseBool(key)
		if err != nil {
			return protoreflect.MapKey{}, keyMismatch(fd, key)
		}
		return protoreflect.ValueOfBool(b).MapKey(), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		i, err := strconv.ParseInt(key, 10, 32)
		if err != nil {
			return protoreflect.MapKey{}, keyMismatch(fd, key)
		}
		return protoreflect.ValueOfInt32(int32(i)).MapKey(), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		i, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return protoreflect.MapKey{}, keyMismatch(fd, key)
		}
		return protoreflect.ValueOfInt64(i).MapKey(), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		u, err := strconv.ParseUint(key, 10, 32)
		if err != nil {
			return protoreflect.MapKey{}, keyMismatch(fd, key)
		}
		return protoreflect.ValueOfUint32(uint32(u)).MapKey(), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		u, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return protoreflect.MapKey{}, keyMismatch(fd, key)
		}
		return protoreflect.ValueOfUint64(u).MapKey(), nil
	}
	return protoreflect.MapKey{}, invalid("unsupported map key kind %s", fd.Kind())
}
