// Package codec converts between dynamic Go values and schema-described
// protobuf messages.
//
// A dynamic value is one of nil, bool, int64, uint64, float64, string,
// []byte, []any or map[string]any. The Builder also accepts every Go integer
// kind, float32, json.Number and typed slices on input. The Dissecter always
// produces the canonical forms: signed integers as int64, unsigned as uint64,
// floats as float64 and enums as their symbol with the enum's shared prefix
// stripped ("RED" for COLOR_RED).
//
// # Registry
//
// Every Builder and Dissecter owns a TypeRegistry mapping full message names
// to Encoder and Decoder overrides. A registered type is converted by its
// override alone; the codec never recurses into it. New registries are seeded
// with conversions for the well-known types:
//
//	google.protobuf.*Value wrappers   <-> the bare scalar
//	google.protobuf.Timestamp         <-> time.Time
//	google.protobuf.Duration          <-> time.Duration
//	google.protobuf.Value/Struct/ListValue <-> any, map[string]any, []any
//
// Registries are never shared implicitly:
//
//	b := codec.NewBuilder()
//	b.Registry().RegisterEncoder("acme.v1.Money", encodeMoney)
//
// # Building
//
//	b := codec.NewBuilder(codec.WithValidation())
//	msg, err := b.Build(mt, map[string]any{
//	    "name":  "probe",
//	    "color": "RED",              // or "COLOR_RED", or 0
//	    "tags":  "single",           // bare scalars become one-element lists
//	    "m":     map[string]any{"k": 1},
//	})
//
// Absent and null keys leave their field unset. Failures are *EncodeError
// values carrying the failing field path; they unwrap to the errors package
// sentinels and are always classified invalid.
//
// # Decoding
//
//	d := codec.NewDissecter()
//	v, err := d.Decode(msg)
//
// The result maps every field name of the schema. Oneof members that are not
// set, including proto3 optional fields, and unset message fields decode to
// nil; everything else decodes to its zero value when absent.
package codec
