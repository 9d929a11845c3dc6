package relay

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
	"google.golang.org/protobuf/types/known/anypb"

	// Registers google/protobuf/timestamp.proto for the envelope file.
	_ "google.golang.org/protobuf/types/known/timestamppb"

	"github.com/c360/protosignal/codec"
	"github.com/c360/protosignal/errors"
	"github.com/c360/protosignal/pkg/wire"
	"github.com/c360/protosignal/signal"
)

// Envelope schema names.
const (
	EnvelopePackage                       = "protosignal.relay.v1"
	EnvelopeName    protoreflect.FullName = EnvelopePackage + ".SignalEnvelope"
	ActionEnumName  protoreflect.FullName = EnvelopePackage + ".SignalAction"
)

// Format selects how envelopes are put on the wire.
type Format string

// Supported formats.
const (
	// FormatProto sends the envelope's protobuf encoding.
	FormatProto Format = "proto"
	// FormatCBOR sends the envelope decoded to a dynamic value, as CBOR.
	FormatCBOR Format = "cbor"
)

// actionSymbols are the SignalAction symbols with the enum prefix stripped,
// as the codec reads and writes them.
var actionSymbols = map[signal.MappingAction]string{
	signal.ActionNone:     "NONE",
	signal.ActionAddition: "ADDITION",
	signal.ActionUpdate:   "UPDATE",
	signal.ActionRemoval:  "REMOVAL",
}

var (
	envelopeOnce sync.Once
	envelopeFile protoreflect.FileDescriptor
	envelopeErr  error
)

// EnvelopeFile returns the descriptor of protosignal/relay/v1/envelope.proto:
//
//	enum SignalAction { SIGNAL_ACTION_NONE; _ADDITION; _UPDATE; _REMOVAL }
//	message SignalEnvelope {
//	  string origin = 1;
//	  string topic = 2;
//	  string key = 3;
//	  bool mapping = 4;
//	  SignalAction action = 5;
//	  google.protobuf.Any payload = 6;
//	  google.protobuf.Timestamp sent_at = 7;
//	}
func EnvelopeFile() (protoreflect.FileDescriptor, error) {
	envelopeOnce.Do(func() {
		envelopeFile, envelopeErr = protodesc.NewFile(envelopeFileProto(), protoregistry.GlobalFiles)
		if envelopeErr != nil {
			envelopeErr = errors.WrapFatal(envelopeErr, "relay", "EnvelopeFile", "build envelope schema")
		}
	})
	return envelopeFile, envelopeErr
}

// EnvelopeDescriptor returns the SignalEnvelope message descriptor.
func EnvelopeDescriptor() (protoreflect.MessageDescriptor, error) {
	fd, err := EnvelopeFile()
	if err != nil {
		return nil, err
	}
	return fd.Messages().ByName(EnvelopeName.Name()), nil
}

func envelopeFileProto() *descriptorpb.FileDescriptorProto {
	field := func(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
		fd := &descriptorpb.FieldDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(number),
			Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
			Type:   kind.Enum(),
		}
		if typeName != "" {
			fd.TypeName = proto.String(typeName)
		}
		return fd
	}

	action := &descriptorpb.EnumDescriptorProto{Name: proto.String(string(ActionEnumName.Name()))}
	for i, name := range []string{"SIGNAL_ACTION_NONE", "SIGNAL_ACTION_ADDITION", "SIGNAL_ACTION_UPDATE", "SIGNAL_ACTION_REMOVAL"} {
		action.Value = append(action.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(name),
			Number: proto.Int32(int32(i)),
		})
	}

	return &descriptorpb.FileDescriptorProto{
		Name:       proto.String("protosignal/relay/v1/envelope.proto"),
		Package:    proto.String(EnvelopePackage),
		Syntax:     proto.String("proto3"),
		Dependency: []string{"google/protobuf/any.proto", "google/protobuf/timestamp.proto"},
		EnumType:   []*descriptorpb.EnumDescriptorProto{action},
		MessageType: []*descriptorpb.DescriptorProto{{
			Name: proto.String(string(EnvelopeName.Name())),
			Field: []*descriptorpb.FieldDescriptorProto{
				field("origin", 1, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("topic", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("key", 3, descriptorpb.FieldDescriptorProto_TYPE_STRING, ""),
				field("mapping", 4, descriptorpb.FieldDescriptorProto_TYPE_BOOL, ""),
				field("action", 5, descriptorpb.FieldDescriptorProto_TYPE_ENUM, "."+string(ActionEnumName)),
				field("payload", 6, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Any"),
				field("sent_at", 7, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, ".google.protobuf.Timestamp"),
			},
		}},
	}
}

// Envelope is a signal in transit together with the relay that sent it.
type Envelope struct {
	Origin string
	SentAt time.Time
	Signal signal.Signal
}

// Resolver finds payload message types by type URL when unpacking.
// *protoregistry.Types satisfies it.
type Resolver interface {
	protoregistry.MessageTypeResolver
	protoregistry.ExtensionTypeResolver
}

// EnvelopeCodec converts envelopes to and from bytes in one Format. The
// envelope passes through the codec package both ways, so a CBOR peer
// sees the same field names and enum symbols as the schema.
type EnvelopeCodec struct {
	format    Format
	wire      wire.Codec
	mt        protoreflect.MessageType
	builder   *codec.Builder
	dissecter *codec.Dissecter
	resolver  Resolver
}

// fallbackResolver consults primary first and protoregistry.GlobalTypes
// for anything primary does not know.
type fallbackResolver struct {
	primary Resolver
}

func (r fallbackResolver) FindMessageByName(name protoreflect.FullName) (protoreflect.MessageType, error) {
	mt, err := r.primary.FindMessageByName(name)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalTypes.FindMessageByName(name)
	}
	return mt, err
}

func (r fallbackResolver) FindMessageByURL(url string) (protoreflect.MessageType, error) {
	mt, err := r.primary.FindMessageByURL(url)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalTypes.FindMessageByURL(url)
	}
	return mt, err
}

func (r fallbackResolver) FindExtensionByName(field protoreflect.FullName) (protoreflect.ExtensionType, error) {
	xt, err := r.primary.FindExtensionByName(field)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalTypes.FindExtensionByName(field)
	}
	return xt, err
}

func (r fallbackResolver) FindExtensionByNumber(message protoreflect.FullName, field protoreflect.FieldNumber) (protoreflect.ExtensionType, error) {
	xt, err := r.primary.FindExtensionByNumber(message, field)
	if stderrors.Is(err, protoregistry.NotFound) {
		return protoregistry.GlobalTypes.FindExtensionByNumber(message, field)
	}
	return xt, err
}

// NewEnvelopeCodec creates a codec for format. Payload types are resolved
// through resolver first and protoregistry.GlobalTypes second, so the
// well-known types are always available.
func NewEnvelopeCodec(format Format, resolver Resolver) (*EnvelopeCodec, error) {
	md, err := EnvelopeDescriptor()
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = protoregistry.GlobalTypes
	} else {
		resolver = fallbackResolver{primary: resolver}
	}

	if format != FormatProto && format != FormatCBOR {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: relay format %q", errors.ErrInvalidConfig, format),
			"EnvelopeCodec", "NewEnvelopeCodec", "format check")
	}
	wc, err := wire.NewRegistry().Lookup(string(format))
	if err != nil {
		return nil, err
	}

	// Both sides share one registry so envelope conversions stay symmetric.
	registry := codec.NewTypeRegistry()
	return &EnvelopeCodec{
		format:    format,
		wire:      wc,
		mt:        dynamicpb.NewMessageType(md),
		builder:   codec.NewBuilder(codec.WithRegistry(registry), codec.WithValidation()),
		dissecter: codec.NewDissecter(codec.WithRegistry(registry)),
		resolver:  resolver,
	}, nil
}

// Format returns the wire format.
func (c *EnvelopeCodec) Format() Format {
	return c.format
}

// ContentType returns the content type of the wire format.
func (c *EnvelopeCodec) ContentType() string {
	return c.wire.ContentType()
}

// Marshal encodes env.
func (c *EnvelopeCodec) Marshal(env Envelope) ([]byte, error) {
	msg, err := c.Build(env)
	if err != nil {
		return nil, err
	}

	if c.format == FormatProto {
		return c.wire.Marshal(msg)
	}
	value, err := c.dissecter.DecodeMap(msg)
	if err != nil {
		return nil, errors.Wrap(err, "EnvelopeCodec", "Marshal", "dissect envelope")
	}
	return c.wire.Marshal(value)
}

// Build converts env into a SignalEnvelope message.
func (c *EnvelopeCodec) Build(env Envelope) (proto.Message, error) {
	sig := env.Signal
	action, ok := actionSymbols[sig.Action]
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidInput, sig.Action),
			"EnvelopeCodec", "Build", "map action")
	}

	fields := map[string]any{
		"origin":  env.Origin,
		"topic":   sig.Topic,
		"key":     sig.Key,
		"mapping": sig.Mapping,
		"action":  action,
	}
	if !env.SentAt.IsZero() {
		fields["sent_at"] = env.SentAt
	}
	if sig.Payload != nil {
		packed, err := anypb.New(sig.Payload)
		if err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err),
				"EnvelopeCodec", "Build", "pack payload")
		}
		fields["payload"] = packed
	}

	msg, err := c.builder.Build(c.mt, fields)
	if err != nil {
		return nil, errors.Wrap(err, "EnvelopeCodec", "Build", "build envelope")
	}
	return msg, nil
}

// Unmarshal decodes data into an envelope. Every failure is classified
// invalid: a malformed message will not improve on retry.
func (c *EnvelopeCodec) Unmarshal(data []byte) (Envelope, error) {
	var msg proto.Message
	if c.format == FormatProto {
		msg = c.mt.New().Interface()
		if err := c.wire.Unmarshal(data, msg); err != nil {
			return Envelope{}, err
		}
	} else {
		var raw map[string]any
		if err := c.wire.Unmarshal(data, &raw); err != nil {
			return Envelope{}, err
		}
		built, err := c.builder.Build(c.mt, raw)
		if err != nil {
			return Envelope{}, errors.Wrap(err, "EnvelopeCodec", "Unmarshal", "build envelope")
		}
		msg = built
	}
	return c.Open(msg)
}

// Open converts a SignalEnvelope message back into an Envelope, unpacking
// the payload through the resolver.
func (c *EnvelopeCodec) Open(msg proto.Message) (Envelope, error) {
	fields, err := c.dissecter.DecodeMap(msg)
	if err != nil {
		return Envelope{}, errors.Wrap(err, "EnvelopeCodec", "Open", "dissect envelope")
	}

	env := Envelope{}
	env.Origin, _ = fields["origin"].(string)
	env.Signal.Topic, _ = fields["topic"].(string)
	env.Signal.Key, _ = fields["key"].(string)
	env.Signal.Mapping, _ = fields["mapping"].(bool)
	if t, ok := fields["sent_at"].(time.Time); ok {
		env.SentAt = t
	}

	env.Signal.Action, err = parseAction(fields["action"])
	if err != nil {
		return Envelope{}, err
	}

	if env.Signal.Topic == "" {
		return Envelope{}, errors.WrapInvalid(fmt.Errorf("%w: envelope without topic", errors.ErrInvalidData),
			"EnvelopeCodec", "Open", "validate envelope")
	}

	if payload, ok := fields["payload"].(map[string]any); ok {
		env.Signal.Payload, err = c.unpack(payload)
		if err != nil {
			return Envelope{}, err
		}
	}
	return env, nil
}

func parseAction(v any) (signal.MappingAction, error) {
	s, ok := v.(string)
	if ok {
		for action, symbol := range actionSymbols {
			if symbol == s {
				return action, nil
			}
		}
	}
	return 0, errors.WrapInvalid(fmt.Errorf("%w: signal action %v", errors.ErrInvalidData, v),
		"EnvelopeCodec", "Open", "map action")
}

func (c *EnvelopeCodec) unpack(payload map[string]any) (proto.Message, error) {
	packed := &anypb.Any{}
	packed.TypeUrl, _ = payload["type_url"].(string)
	packed.Value, _ = payload["value"].([]byte)

	msg, err := anypb.UnmarshalNew(packed, proto.UnmarshalOptions{Resolver: c.resolver})
	if err != nil {
		kind := errors.ErrParsingFailed
		if stderrors.Is(err, protoregistry.NotFound) {
			kind = errors.ErrUnknownType
		}
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %s: %v", kind, packed.TypeUrl, err),
			"EnvelopeCodec", "Open", "unpack payload")
	}
	return msg, nil
}
