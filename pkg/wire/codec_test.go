package wire

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/c360/protosignal/errors"
)

func TestProtoCodec(t *testing.T) {
	c := Proto()
	assert.Equal(t, ContentTypeProto, c.ContentType())

	s, err := structpb.NewStruct(map[string]any{"k": "v", "a": 1.0, "z": true})
	require.NoError(t, err)

	first, err := c.Marshal(s)
	require.NoError(t, err)
	second, err := c.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, first, second, "deterministic map ordering")

	var out structpb.Struct
	require.NoError(t, c.Unmarshal(first, &out))
	assert.True(t, proto.Equal(s, &out))

	_, err = c.Marshal("not a message")
	assert.ErrorIs(t, err, errors.ErrNotAMessage)
	assert.ErrorIs(t, c.Unmarshal([]byte{0xff}, &out), errors.ErrParsingFailed)
}

func TestCBORCodec(t *testing.T) {
	c := CBOR()
	assert.Equal(t, ContentTypeCBOR, c.ContentType())

	created := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	in := map[string]any{
		"n":       int64(-42),
		"u":       uint64(42),
		"raw":     []byte{0x01, 0x02},
		"nested":  map[string]any{"ok": true},
		"list":    []any{"a", 1.5},
		"created": created,
	}
	data, err := c.Marshal(in)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, int64(-42), out["n"])
	assert.Equal(t, uint64(42), out["u"])
	assert.Equal(t, []byte{0x01, 0x02}, out["raw"])
	assert.Equal(t, map[string]any{"ok": true}, out["nested"])
	assert.Equal(t, []any{"a", 1.5}, out["list"])
	got, ok := out["created"].(time.Time)
	require.True(t, ok, "tagged time decodes as time.Time")
	assert.True(t, created.Equal(got))

	again, err := c.Marshal(in)
	require.NoError(t, err)
	assert.Equal(t, data, again, "canonical encoding")

	assert.ErrorIs(t, c.Unmarshal([]byte{0xff, 0xff}, &out), errors.ErrParsingFailed)
}

func TestJSONCodec(t *testing.T) {
	c := JSON()
	data, err := c.Marshal(map[string]any{"a": 1, "b": "x"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"x"}`, string(data))

	var out map[string]any
	require.NoError(t, c.Unmarshal(data, &out))
	assert.Equal(t, "x", out["b"])

	_, err = c.Marshal(func() {})
	assert.ErrorIs(t, err, errors.ErrInvalidData)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	for name, want := range map[string]string{
		"proto":          ContentTypeProto,
		"Protobuf":       ContentTypeProto,
		"cbor":           ContentTypeCBOR,
		"json":           ContentTypeJSON,
		ContentTypeCBOR:  ContentTypeCBOR,
		ContentTypeProto: ContentTypeProto,
	} {
		c, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, c.ContentType(), name)
	}

	_, err := r.Lookup("xml")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))

	r.Register(JSON(), "text")
	c, err := r.Lookup("text")
	require.NoError(t, err)
	assert.Equal(t, ContentTypeJSON, c.ContentType())
}
