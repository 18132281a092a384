package memo

import "github.com/cockroachdb/errors"

// ErrCacheCorrupted names a failure to load or decode a stored record. Core
// does not return it: the failure is logged as a warning under this name and
// the record is treated as a cache miss, so it never escapes Core.Invoke.
var ErrCacheCorrupted = errors.New("memo: cache record corrupted")

// ErrScopeExpired is raised when a ScopedBinder wrapper is invoked after its
// scope has exited.
var ErrScopeExpired = errors.New("memo: wrapper called outside its cached_run scope")

// ErrNoFunctions is raised by ScopedRunMulti when called with no functions.
var ErrNoFunctions = errors.New("memo: at least one function is required")
