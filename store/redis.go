package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMetadataStore is an alternate MetadataStore backed by Redis: each
// record is a hash keyed by "<prefix>:task:<cacheKey>", with cache keys
// additionally tracked in a sorted set (score = UpdatedAt) for History. The
// caller owns the redis.Client lifecycle — Close is a no-op on the client.
type RedisMetadataStore struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ MetadataStore = (*RedisMetadataStore)(nil)

// NewRedisMetadataStore returns a MetadataStore using client, namespaced
// under prefix.
func NewRedisMetadataStore(client *redis.Client, prefix string, queryTimeout time.Duration) *RedisMetadataStore {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &RedisMetadataStore{client: client, prefix: prefix, queryTimeout: queryTimeout}
}

func (r *RedisMetadataStore) taskKey(cacheKey string) string {
	return r.prefix + ":task:" + cacheKey
}

func (r *RedisMetadataStore) indexKey() string {
	return r.prefix + ":tasks:index"
}

func (r *RedisMetadataStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

// InitSchema is a no-op for Redis: hashes and sorted sets need no upfront
// schema declaration.
func (r *RedisMetadataStore) InitSchema(ctx context.Context) error {
	return nil
}

func (r *RedisMetadataStore) Get(ctx context.Context, cacheKey string) (Record, bool, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	fields, err := r.client.HGetAll(qctx, r.taskKey(cacheKey)).Result()
	if err != nil {
		return Record{}, false, fmt.Errorf("store: redis HGetAll %s: %w", cacheKey, err)
	}
	if len(fields) == 0 {
		return Record{}, false, nil
	}

	updatedAt, _ := strconv.ParseInt(fields["updated_at"], 10, 64)
	rec := Record{
		CacheKey:    cacheKey,
		FuncName:    fields["func_name"],
		InputSeed:   fields["input_seed"],
		ResultType:  ResultType(fields["result_type"]),
		Value:       []byte(fields["result_value"]),
		ContentType: fields["content_type"],
		Version:     fields["version"],
		UpdatedAt:   updatedAt,
	}
	return rec, true, nil
}

func (r *RedisMetadataStore) Put(ctx context.Context, rec Record) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	key := r.taskKey(rec.CacheKey)
	pipe := r.client.Pipeline()
	pipe.HSet(qctx, key,
		"func_name", rec.FuncName,
		"input_seed", rec.InputSeed,
		"result_type", string(rec.ResultType),
		"result_value", rec.Value,
		"content_type", rec.ContentType,
		"version", rec.Version,
		"updated_at", strconv.FormatInt(rec.UpdatedAt, 10),
	)
	pipe.ZAdd(qctx, r.indexKey(), redis.Z{Score: float64(rec.UpdatedAt), Member: rec.CacheKey})
	_, err := pipe.Exec(qctx)
	if err != nil {
		return fmt.Errorf("store: redis upserting %s: %w", rec.CacheKey, err)
	}
	return nil
}

func (r *RedisMetadataStore) Delete(ctx context.Context, cacheKey string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	pipe := r.client.Pipeline()
	pipe.Del(qctx, r.taskKey(cacheKey))
	pipe.ZRem(qctx, r.indexKey(), cacheKey)
	if _, err := pipe.Exec(qctx); err != nil {
		return fmt.Errorf("store: redis deleting %s: %w", cacheKey, err)
	}
	return nil
}

func (r *RedisMetadataStore) History(ctx context.Context, limit int) ([]Record, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()

	keys, err := r.client.ZRevRange(qctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis reading history index: %w", err)
	}

	records := make([]Record, 0, len(keys))
	for _, k := range keys {
		rec, found, err := r.Get(ctx, k)
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (r *RedisMetadataStore) Close() error {
	return nil
}

// RedisBlobStore is an alternate BlobStore backed by Redis plain string
// keys. Locations are "<prefix>:blob:<key>".
type RedisBlobStore struct {
	client       *redis.Client
	prefix       string
	queryTimeout time.Duration
}

var _ BlobStore = (*RedisBlobStore)(nil)

// NewRedisBlobStore returns a BlobStore using client, namespaced under prefix.
func NewRedisBlobStore(client *redis.Client, prefix string, queryTimeout time.Duration) *RedisBlobStore {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &RedisBlobStore{client: client, prefix: prefix, queryTimeout: queryTimeout}
}

func (r *RedisBlobStore) queryCtx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, r.queryTimeout)
}

func (r *RedisBlobStore) location(key string) string {
	return r.prefix + ":blob:" + key
}

func (r *RedisBlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	loc := r.location(key)
	if err := r.client.Set(qctx, loc, data, 0).Err(); err != nil {
		return "", fmt.Errorf("store: redis blob put %s: %w", key, err)
	}
	return loc, nil
}

func (r *RedisBlobStore) Get(ctx context.Context, location string) ([]byte, error) {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	data, err := r.client.Get(qctx, location).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("store: blob not found at %s", location)
	}
	if err != nil {
		return nil, fmt.Errorf("store: redis blob get %s: %w", location, err)
	}
	return data, nil
}

func (r *RedisBlobStore) Delete(ctx context.Context, location string) error {
	qctx, cancel := r.queryCtx(ctx)
	defer cancel()
	if err := r.client.Del(qctx, location).Err(); err != nil {
		return fmt.Errorf("store: redis blob delete %s: %w", location, err)
	}
	return nil
}
