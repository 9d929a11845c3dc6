package codec

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/reflect/protoreflect"

	"github.com/c360/protosignal/pkg/cache"
	"github.com/c360/protosignal/pkg/symbol"
)

// symbolDelimiter separates the tokens of enum value names.
const symbolDelimiter = "_"

// enumCodec converts between enum numbers and symbols. Symbol tables with
// the shared prefix stripped are built lazily per enum and cached for the
// life of the owning Builder or Dissecter.
type enumCodec struct {
	tables cache.Cache[*symbol.Table]
}

func newEnumCodec() *enumCodec {
	// NewSimple only fails when metrics registration is requested.
	tables, _ := cache.NewSimple[*symbol.Table]()
	return &enumCodec{tables: tables}
}

func (c *enumCodec) table(ed protoreflect.EnumDescriptor) (*symbol.Table, error) {
	return c.tables.GetOrCompute(string(ed.FullName()), func() (*symbol.Table, error) {
		values := ed.Values()
		names := make([]string, values.Len())
		for i := range names {
			names[i] = string(values.Get(i).Name())
		}
		return symbol.NewTable(names, symbolDelimiter), nil
	})
}

// encode resolves a symbol or passes an integral value through. Symbols are
// matched exactly first, then with the enum's common prefix prepended.
func (c *enumCodec) encode(ed protoreflect.EnumDescriptor, value any) (protoreflect.EnumNumber, error) {
	if s, ok := value.(string); ok {
		values := ed.Values()
		if evd := values.ByName(protoreflect.Name(s)); evd != nil {
			return evd.Number(), nil
		}
		t, err := c.table(ed)
		if err != nil {
			return 0, err
		}
		if prefix := t.Prefix(); prefix != "" {
			if evd := values.ByName(protoreflect.Name(prefix + s)); evd != nil {
				return evd.Number(), nil
			}
		}
		return 0, &EncodeError{Kind: UnknownEnumSymbol, Err: fmt.Errorf("%q is not a symbol of %s", s, ed.FullName())}
	}

	if i, ok := asInt64(value); ok {
		if i < math.MinInt32 || i > math.MaxInt32 {
			return 0, invalid("enum number %d overflows int32", i)
		}
		return protoreflect.EnumNumber(i), nil
	}
	return 0, mismatch("enum symbol or number", value)
}

// decode returns the prefix-stripped symbol for n, or n as int64 when the
// enum has no value with that number.
func (c *enumCodec) decode(ed protoreflect.EnumDescriptor, n protoreflect.EnumNumber) (any, error) {
	evd := ed.Values().ByNumber(n)
	if evd == nil {
		return int64(n), nil
	}
	t, err := c.table(ed)
	if err != nil {
		return nil, err
	}
	if short, ok := t.Short(string(evd.Name())); ok {
		return short, nil
	}
	return string(evd.Name()), nil
}

func (c *enumCodec) stats() *cache.Statistics {
	return c.tables.Stats()
}
