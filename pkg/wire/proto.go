package wire

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/c360/protosignal/errors"
)

type protoCodec struct {
	mo proto.MarshalOptions
	uo proto.UnmarshalOptions
}

// Proto returns a Protocol Buffers codec with deterministic marshaling.
func Proto() Codec {
	return protoCodec{
		mo: proto.MarshalOptions{Deterministic: true},
		uo: proto.UnmarshalOptions{},
	}
}

func (protoCodec) ContentType() string { return ContentTypeProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %T is not a proto.Message", errors.ErrNotAMessage, v),
			"protoCodec", "Marshal", "type check")
	}
	return p.mo.Marshal(msg)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %T is not a proto.Message", errors.ErrNotAMessage, v),
			"protoCodec", "Unmarshal", "type check")
	}
	if err := p.uo.Unmarshal(data, msg); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrParsingFailed, err),
			"protoCodec", "Unmarshal", "decode")
	}
	return nil
}
