// Package wire provides the byte encodings used to move messages and
// dynamic values between processes.
//
// Proto is deterministic protobuf for typed messages. CBOR (canonical mode)
// and JSON encode dynamic values as produced by the codec package's
// Dissecter; CBOR keeps byte strings and integer signedness intact, JSON is
// for human-readable output.
package wire

import (
	"fmt"
	"strings"
	"sync"

	"github.com/c360/protosignal/errors"
)

// Content types of the built-in codecs.
const (
	ContentTypeProto = "application/x-protobuf"
	ContentTypeCBOR  = "application/cbor"
	ContentTypeJSON  = "application/json"
)

// Codec marshals values to bytes and back. Implementations are
// deterministic and safe for concurrent use.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types and short format names to codecs.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Codec
}

// NewRegistry creates a registry holding the built-in codecs, reachable by
// content type or by "proto", "cbor" and "json".
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	r.Register(Proto(), "proto", "protobuf")
	r.Register(CBOR(), "cbor")
	r.Register(JSON(), "json")
	return r
}

// Register adds c under its content type and any aliases, replacing
// earlier registrations of the same names.
func (r *Registry) Register(c Codec, aliases ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[c.ContentType()] = c
	for _, alias := range aliases {
		r.byName[strings.ToLower(alias)] = c
	}
}

// Get returns the codec registered under name.
func (r *Registry) Get(name string) (Codec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[strings.ToLower(name)]
	return c, ok
}

// Lookup is Get with an invalid-configuration error for unknown names.
func (r *Registry) Lookup(name string) (Codec, error) {
	if c, ok := r.Get(name); ok {
		return c, nil
	}
	return nil, errors.WrapInvalid(fmt.Errorf("%w: unknown wire format %q", errors.ErrInvalidConfig, name),
		"Registry", "Lookup", "codec lookup")
}
