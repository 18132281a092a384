// Package serializer implements the extensible binary codec used to persist
// memoized results: primitive atoms encode directly, and user types encode
// through a small registry of (type, code, encoder, decoder) extensions —
// the Go analogue of the original implementation's literal use of
// msgpack.ExtType, re-expressed here as our own length-prefixed envelope
// nesting github.com/vmihailenco/msgpack/v5 for the primitive atoms inside
// each extension payload.
package serializer

import (
	"fmt"
	"reflect"
)

// Encoder converts a registered value into an intermediate representation
// that is itself recursively encoded (so it may use maps, slices, or other
// registered types).
type Encoder func(value any) (any, error)

// Decoder converts a decoded intermediate representation back into the
// registered Go value.
type Decoder func(intermediate any) (any, error)

type extension struct {
	code    byte
	typ     reflect.Type
	encode  Encoder
	decode  Decoder
}

// Registry holds the set of registered type extensions for a Serializer.
// Extension codes occupy [0, 127]; duplicate codes or duplicate types are
// rejected at registration time rather than silently overwriting an
// existing mapping.
type Registry struct {
	byCode map[byte]*extension
	byType map[reflect.Type]*extension
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byCode: make(map[byte]*extension),
		byType: make(map[reflect.Type]*extension),
	}
}

// Register adds an extension for typ at code, using encode/decode to
// convert to/from the recursively-encoded intermediate form. Returns
// ErrRegistration if code is out of range or already registered, or if typ
// is already registered.
func (r *Registry) Register(sample any, code byte, encode Encoder, decode Decoder) error {
	if code > 127 {
		return fmt.Errorf("%w: extension code %d out of range [0,127]", ErrRegistration, code)
	}
	typ := reflect.TypeOf(sample)
	if typ == nil {
		return fmt.Errorf("%w: cannot register extension for nil sample value", ErrRegistration)
	}
	if _, exists := r.byCode[code]; exists {
		return fmt.Errorf("%w: code %d already registered", ErrRegistration, code)
	}
	if _, exists := r.byType[typ]; exists {
		return fmt.Errorf("%w: type %s already registered", ErrRegistration, typ)
	}

	ext := &extension{code: code, typ: typ, encode: encode, decode: decode}
	r.byCode[code] = ext
	r.byType[typ] = ext
	return nil
}

func (r *Registry) lookupByType(typ reflect.Type) (*extension, bool) {
	ext, ok := r.byType[typ]
	return ext, ok
}

func (r *Registry) lookupByCode(code byte) (*extension, bool) {
	ext, ok := r.byCode[code]
	return ext, ok
}
