package codec

import (
	"fmt"
	"strings"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/c360/protosignal/errors"
)

// EncodeErrorKind classifies a Builder failure.
type EncodeErrorKind int

// Encode failure kinds.
const (
	TypeMismatch EncodeErrorKind = iota + 1
	InvalidInput
	UnexpectedField
	UnknownEnumSymbol
)

// String returns the string representation of EncodeErrorKind
func (k EncodeErrorKind) String() string {
	switch k {
	case TypeMismatch:
		return "type mismatch"
	case InvalidInput:
		return "invalid input"
	case UnexpectedField:
		return "unexpected field"
	case UnknownEnumSymbol:
		return "unknown enum symbol"
	default:
		return "unknown"
	}
}

func (k EncodeErrorKind) sentinel() error {
	switch k {
	case TypeMismatch:
		return errors.ErrTypeMismatch
	case UnexpectedField:
		return errors.ErrUnexpectedField
	case UnknownEnumSymbol:
		return errors.ErrUnknownEnumSymbol
	default:
		return errors.ErrInvalidInput
	}
}

// EncodeError reports why a dynamic value could not be built into a message.
// It unwraps to the errors package sentinel of its kind and to Err.
type EncodeError struct {
	Kind EncodeErrorKind
	// Type is the message being built when the failure occurred.
	Type protoreflect.FullName
	// Path is the dotted field path from the root message, e.g. items[2].name.
	Path string
	// Fields lists the offending keys for InvalidInput (missing) and
	// UnexpectedField (unrecognised) failures, sorted.
	Fields []string
	Err    error
}

func (e *EncodeError) Error() string {
	var b strings.Builder
	b.WriteString("codec: encode")
	if e.Type != "" {
		b.WriteString(" ")
		b.WriteString(string(e.Type))
	}
	if e.Path != "" {
		b.WriteString(" at ")
		b.WriteString(e.Path)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the kind sentinel and the cause.
func (e *EncodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// DecodeErrorKind classifies a Dissecter failure.
type DecodeErrorKind int

// Decode failure kinds.
const (
	NotAMessage DecodeErrorKind = iota + 1
	UnknownType
)

// String returns the string representation of DecodeErrorKind
func (k DecodeErrorKind) String() string {
	switch k {
	case NotAMessage:
		return "not a message"
	case UnknownType:
		return "unknown type"
	default:
		return "unknown"
	}
}

func (k DecodeErrorKind) sentinel() error {
	if k == UnknownType {
		return errors.ErrUnknownType
	}
	return errors.ErrNotAMessage
}

// DecodeError reports why a value could not be decoded.
type DecodeError struct {
	Kind DecodeErrorKind
	Type protoreflect.FullName
	Err  error
}

func (e *DecodeError) Error() string {
	msg := "codec: decode"
	if e.Type != "" {
		msg += " " + string(e.Type)
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind sentinel and the cause.
func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

func mismatch(want string, got any) error {
	return &EncodeError{Kind: TypeMismatch, Err: fmt.Errorf("want %s, got %T", want, got)}
}

func invalid(format string, args ...any) error {
	return &EncodeError{Kind: InvalidInput, Err: fmt.Errorf(format, args...)}
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func keyPath(path, key string) string {
	return fmt.Sprintf("%s[%s]", path, key)
}
