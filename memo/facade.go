package memo

import (
	"context"
	"fmt"

	"github.com/neelbauman/beautyspot/logger"
	"github.com/neelbauman/beautyspot/resilience"
	"github.com/neelbauman/beautyspot/store"
)

// Facade mediates between Core and the injected MetadataStore/BlobStore,
// implementing the claim-check persistence routing described in spec.md
// §4.6: metadata I/O and blob I/O are wrapped in separate, separately-named
// circuit breakers plus bounded retry, so a struggling blob backend doesn't
// trip the breaker guarding metadata lookups (or vice versa) and each
// backend's failures are distinguishable in logs. A SerializationError from
// the caller (an unregistered type) is never routed through this layer at
// all — only the already-serialized bytes are.
type Facade struct {
	Metadata store.MetadataStore
	Blob     store.BlobStore

	MetadataBreaker *resilience.CircuitBreaker
	BlobBreaker     *resilience.CircuitBreaker
	Retry           resilience.RetryConfig
	Log             logger.Logger
}

// NewFacade returns a Facade wrapping metadata/blob with the default retry
// configuration and one circuit breaker per backend, each logging its own
// state transitions through log.
func NewFacade(metadata store.MetadataStore, blob store.BlobStore, log logger.Logger) *Facade {
	f := &Facade{
		Metadata: metadata,
		Blob:     blob,
		Retry:    resilience.DefaultRetryConfig(),
		Log:      log,
	}
	f.MetadataBreaker = resilience.NewCircuitBreaker(breakerConfig("metadata-store", log))
	f.BlobBreaker = resilience.NewCircuitBreaker(breakerConfig("blob-store", log))
	return f
}

// breakerConfig returns the default circuit breaker config named for one of
// Facade's two backends, logging every state transition it makes.
func breakerConfig(name string, log logger.Logger) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig()
	cfg.Name = name
	cfg.OnStateChange = func(name string, from, to resilience.CircuitBreakerState) {
		log.Warn("memo: %s circuit breaker %s -> %s", name, from, to)
	}
	return cfg
}

// withResilience runs fn against breaker's circuit breaker and Facade's
// retry policy.
func (f *Facade) withResilience(ctx context.Context, breaker *resilience.CircuitBreaker, fn func() error) error {
	return breaker.Execute(ctx, func() error {
		return resilience.Retry(ctx, f.Retry, fn)
	})
}

// Lookup returns the record for cacheKey, or found=false if absent.
func (f *Facade) Lookup(ctx context.Context, cacheKey string) (store.Record, bool, error) {
	var rec store.Record
	var found bool
	err := f.withResilience(ctx, f.MetadataBreaker, func() error {
		var innerErr error
		rec, found, innerErr = f.Metadata.Get(ctx, cacheKey)
		return innerErr
	})
	return rec, found, err
}

// LoadPayload resolves rec's persisted bytes, dereferencing the blob store
// when ResultType is File.
func (f *Facade) LoadPayload(ctx context.Context, rec store.Record) ([]byte, error) {
	if rec.ResultType == store.DirectBlob {
		return rec.Value, nil
	}
	var data []byte
	err := f.withResilience(ctx, f.BlobBreaker, func() error {
		var innerErr error
		data, innerErr = f.Blob.Get(ctx, string(rec.Value))
		return innerErr
	})
	if err != nil {
		return nil, fmt.Errorf("memo: loading blob for %s: %w", rec.CacheKey, err)
	}
	return data, nil
}

// Persist routes payload to either DIRECT_BLOB (inline) or FILE (blob
// store) storage per saveBlob, then upserts the metadata record.
func (f *Facade) Persist(ctx context.Context, rec store.Record, payload []byte, saveBlob bool) error {
	if saveBlob {
		var location string
		err := f.withResilience(ctx, f.BlobBreaker, func() error {
			var innerErr error
			location, innerErr = f.Blob.Put(ctx, rec.CacheKey, payload)
			return innerErr
		})
		if err != nil {
			return fmt.Errorf("memo: writing blob for %s: %w", rec.CacheKey, err)
		}
		rec.ResultType = store.File
		rec.Value = []byte(location)
	} else {
		rec.ResultType = store.DirectBlob
		rec.Value = payload
	}

	if err := f.withResilience(ctx, f.MetadataBreaker, func() error {
		return f.Metadata.Put(ctx, rec)
	}); err != nil {
		return fmt.Errorf("memo: upserting record %s: %w", rec.CacheKey, err)
	}
	return nil
}

// Delete removes the metadata record for cacheKey and, if its ResultType
// was FILE, best-effort deletes the underlying blob: the record is removed
// first, so a crash between the two steps leaves only a reclaimable orphan
// blob, never a dangling metadata reference.
func (f *Facade) Delete(ctx context.Context, cacheKey string) error {
	rec, found, err := f.Lookup(ctx, cacheKey)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	if err := f.withResilience(ctx, f.MetadataBreaker, func() error {
		return f.Metadata.Delete(ctx, cacheKey)
	}); err != nil {
		return fmt.Errorf("memo: deleting record %s: %w", cacheKey, err)
	}

	if rec.ResultType == store.File {
		if err := f.Blob.Delete(ctx, string(rec.Value)); err != nil {
			f.Log.Warn("memo: best-effort blob delete failed for %s: %v", cacheKey, err)
		}
	}
	return nil
}

// History delegates to the MetadataStore.
func (f *Facade) History(ctx context.Context, limit int) ([]store.Record, error) {
	var records []store.Record
	err := f.withResilience(ctx, f.MetadataBreaker, func() error {
		var innerErr error
		records, innerErr = f.Metadata.History(ctx, limit)
		return innerErr
	})
	return records, err
}
