package serializer

import "github.com/cockroachdb/errors"

// ErrRegistration marks failures to register a type extension (duplicate
// code, duplicate type, or an out-of-range code).
var ErrRegistration = errors.New("serializer: registration error")

// ErrSerialization marks failures to encode a value: an unregistered
// concrete type, or an encoder/decoder that returned an error.
var ErrSerialization = errors.New("serializer: serialization error")
