// Package memo implements the memoization pipeline: cache-key derivation,
// the lookup/admit/execute/persist state machine, and the scoped
// cached_run binding. It is the Go analogue of the original
// implementation's Project.task/_check_cache_sync/_save_result_sync
// methods, generalized from Python decorators into an explicit Invoke
// operation plus a generic Call[T] helper.
package memo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/neelbauman/beautyspot/canon"
	"github.com/neelbauman/beautyspot/executor"
	"github.com/neelbauman/beautyspot/keypolicy"
	"github.com/neelbauman/beautyspot/logger"
	"github.com/neelbauman/beautyspot/ratelimit"
	"github.com/neelbauman/beautyspot/serializer"
	"github.com/neelbauman/beautyspot/store"
)

// CallConfig is the per-call configuration accepted by Core.Invoke and
// Call[T], mirroring spec.md §6's per-call option table.
type CallConfig struct {
	// Version is mixed into the cache key; changing it invalidates prior
	// entries for otherwise-identical arguments.
	Version string
	// SaveBlob routes the serialized result to the blob store (FILE)
	// instead of storing it inline (DIRECT_BLOB).
	SaveBlob bool
	// ContentType is persisted alongside the record for downstream viewers.
	ContentType string
	// KeyPolicy overrides how arguments project into the canonical seed.
	// The zero value canonicalizes args and kwargs directly (KeyPolicy's
	// DEFAULT strategy for every parameter).
	KeyPolicy keypolicy.Policy
	// Cost is the rate-limiter cost for this call; <= 0 defaults to 1.
	Cost float64
}

// Core is a memoization engine instance: one Facade (metadata + blob
// storage), one Serializer, an optional rate limiter engaged on miss only,
// and an optional worker pool for I/O offload.
type Core struct {
	Facade               *Facade
	Serializer            *serializer.Serializer
	Limiter              *ratelimit.Limiter
	Pool                 *executor.Pool
	Log                  logger.Logger
	BlobWarningThreshold int
}

// Option configures a Core at construction.
type Option func(*Core)

// WithLimiter installs a rate limiter engaged on cache misses.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Core) { c.Limiter = l }
}

// WithPool installs a worker pool for I/O offload. Ownership follows
// spec.md §5: a pool passed here is never shut down by Core; use
// executor.NewOwned if Core should create and manage its own pool instead.
func WithPool(p *executor.Pool) Option {
	return func(c *Core) { c.Pool = p }
}

// WithBlobWarningThreshold sets the byte size over which a DIRECT_BLOB
// result logs a warning but is still persisted.
func WithBlobWarningThreshold(bytes int) Option {
	return func(c *Core) { c.BlobWarningThreshold = bytes }
}

// New returns a Core backed by facade and reg, logging through log.
func New(facade *Facade, reg *serializer.Registry, log logger.Logger, opts ...Option) *Core {
	c := &Core{
		Facade:               facade,
		Serializer:           serializer.New(reg),
		Log:                  log,
		BlobWarningThreshold: 1024 * 1024,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// cacheKey computes func_name ‖ 0x00 ‖ canonical_bytes ‖ 0x00 ‖ version,
// SHA-256'd and lowercase-hex-encoded, per spec.md §6's bit-exact
// derivation.
func cacheKey(fnName string, canonicalBytes []byte, version string) (string, string) {
	seedHex := hex.EncodeToString(canonicalBytes)
	h := sha256.New()
	h.Write([]byte(fnName))
	h.Write([]byte{0})
	h.Write(canonicalBytes)
	h.Write([]byte{0})
	h.Write([]byte(version))
	return hex.EncodeToString(h.Sum(nil)), seedHex
}

func computeSeed(policy keypolicy.Policy, args []any, kwargs map[string]any) ([]byte, error) {
	if len(policy.ParamNames) == 0 {
		return canon.Encode([]any{args, kwargs})
	}
	return keypolicy.Seed(policy, args, kwargs)
}

// Invoke runs the full memoization pipeline for one call: compute the
// cache key, attempt a hit, and on miss (or resilient-deserialization
// failure) admit against the rate limiter, execute fn, serialize, and
// persist. There is no single-flight coordination: concurrent misses on the
// same key may each execute fn, and the last write wins.
func (c *Core) Invoke(ctx context.Context, fnName string, fn func() (any, error), args []any, kwargs map[string]any, cfg CallConfig) (any, error) {
	canonicalBytes, err := computeSeed(cfg.KeyPolicy, args, kwargs)
	if err != nil {
		return nil, fmt.Errorf("memo: computing canonical seed: %w", err)
	}
	key, seedHex := cacheKey(fnName, canonicalBytes, cfg.Version)

	if value, hit := c.tryHit(ctx, key); hit {
		return value, nil
	}

	if c.Limiter != nil {
		cost := cfg.Cost
		if cost <= 0 {
			cost = 1
		}
		if err := c.Limiter.Wait(ctx, cost); err != nil {
			return nil, err
		}
	}

	result, err := fn()
	if err != nil {
		// No negative caching: the user exception propagates unchanged.
		return nil, err
	}

	payload, err := c.Serializer.Encode(result)
	if err != nil {
		return nil, err
	}

	if !cfg.SaveBlob && len(payload) > c.BlobWarningThreshold {
		c.Log.Warn("memo: result for %s is %d bytes and save_blob=false; consider save_blob=true", fnName, len(payload))
	}

	rec := store.Record{
		CacheKey:    key,
		FuncName:    fnName,
		InputSeed:   seedHex,
		ContentType: cfg.ContentType,
		Version:     cfg.Version,
		UpdatedAt:   time.Now().UnixNano(),
	}
	persistErr := c.offload(ctx, func() (any, error) {
		return nil, c.Facade.Persist(ctx, rec, payload, cfg.SaveBlob)
	})
	if persistErr != nil {
		return nil, persistErr
	}

	return result, nil
}

// offload runs fn directly, or through c.Pool when one is installed, per
// spec.md §5: metadata/blob I/O blocks in the facade, so a worker pool
// bounds how many such blocking calls run concurrently instead of letting
// an unbounded burst of callers each block their own goroutine on I/O.
func (c *Core) offload(ctx context.Context, fn func() (any, error)) error {
	if c.Pool == nil {
		_, err := fn()
		return err
	}
	_, err := c.Pool.Submit(ctx, fn)
	return err
}

// tryHit attempts the lookup-deserialize path. Any failure — a missing
// record, a blob I/O error fetching it, or a decode error — is treated as a
// miss: resilient deserialization never lets a corrupted record escape as
// an error to the caller.
func (c *Core) tryHit(ctx context.Context, key string) (any, bool) {
	var rec store.Record
	var found bool
	err := c.offload(ctx, func() (any, error) {
		var innerErr error
		rec, found, innerErr = c.Facade.Lookup(ctx, key)
		return nil, innerErr
	})
	if err != nil || !found {
		return nil, false
	}

	var payload []byte
	err = c.offload(ctx, func() (any, error) {
		var innerErr error
		payload, innerErr = c.Facade.LoadPayload(ctx, rec)
		return nil, innerErr
	})
	if err != nil {
		c.Log.Warn("memo: %s: failed to load blob for cache key %s: %v; treating as miss, consider bumping version", ErrCacheCorrupted, key, err)
		return nil, false
	}

	value, err := c.Serializer.Decode(payload)
	if err != nil {
		c.Log.Warn("memo: %s: failed to decode cache record %s: %v; treating as miss, consider bumping version", ErrCacheCorrupted, key, err)
		return nil, false
	}

	return value, true
}

// Delete removes cacheKey's record and, best-effort, its blob.
func (c *Core) Delete(ctx context.Context, cacheKey string) error {
	return c.Facade.Delete(ctx, cacheKey)
}

// History returns the most recently updated records, newest first.
func (c *Core) History(ctx context.Context, limit int) ([]store.Record, error) {
	return c.Facade.History(ctx, limit)
}

// DeleteAll removes every cache record and blob, the Go analogue of the
// original CLI's `clear --force` command with no --func filter: it wipes
// the store clean rather than pruning by age or function name.
func (c *Core) DeleteAll(ctx context.Context) error {
	records, err := c.Facade.History(ctx, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("memo: listing records to delete: %w", err)
	}
	for _, rec := range records {
		if err := c.Facade.Delete(ctx, rec.CacheKey); err != nil {
			return fmt.Errorf("memo: deleting %s: %w", rec.CacheKey, err)
		}
	}
	return nil
}

// Call is the generic analogue of invoking a decorated function: it wraps
// fn's typed return into the any-typed Core.Invoke and type-asserts the
// result back.
func Call[T any](ctx context.Context, c *Core, fnName string, fn func() (T, error), args []any, kwargs map[string]any, cfg CallConfig) (T, error) {
	var zero T
	value, err := c.Invoke(ctx, fnName, func() (any, error) {
		return fn()
	}, args, kwargs, cfg)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, fmt.Errorf("memo: cached value for %s has type %T, want %T", fnName, value, zero)
	}
	return typed, nil
}
