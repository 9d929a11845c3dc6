package wire

import (
	"fmt"
	"reflect"

	cbor "github.com/fxamacker/cbor/v2"

	"github.com/c360/protosignal/errors"
)

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// CBOR returns a canonical CBOR codec (RFC 8949 core deterministic
// encoding). Maps decode to map[string]any and timestamps round-trip as
// tagged time.Time values.
func CBOR() Codec {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cbor encoder options: %v", err))
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: cbor decoder options: %v", err))
	}
	return cborCodec{enc: em, dec: dm}
}

func (cborCodec) ContentType() string { return ContentTypeCBOR }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	data, err := c.enc.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
			"cborCodec", "Marshal", "encode")
	}
	return data, nil
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	if err := c.dec.Unmarshal(data, v); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"cborCodec", "Unmarshal", "decode")
	}
	return nil
}
