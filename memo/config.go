package memo

import (
	"context"
	"fmt"

	"github.com/neelbauman/beautyspot/config"
	"github.com/neelbauman/beautyspot/executor"
	"github.com/neelbauman/beautyspot/logger"
	"github.com/neelbauman/beautyspot/ratelimit"
	"github.com/neelbauman/beautyspot/serializer"
	"github.com/neelbauman/beautyspot/store"
)

// FromConfig builds the SQLite/local-blob/limiter/pool stack described in
// spec.md §6 from a resolved config.Config, the Go analogue of the teacher
// dns package's NewResolver(opts ...WithConfig) construction pattern applied
// to a memo.Core instead of a DNS resolver.
//
// S3-backed blob storage needs an *s3.Client the Config alone can't build
// (AWS credentials and region resolution are the caller's responsibility),
// so a Config with BlobS3Bucket set must be wired by hand with NewFacade and
// store.NewS3BlobStore instead of through FromConfig.
func FromConfig(ctx context.Context, cfg config.Config, reg *serializer.Registry, log logger.Logger) (*Core, error) {
	if cfg.BlobS3Bucket != "" {
		return nil, fmt.Errorf("memo: FromConfig does not build S3 blob stores; construct store.NewS3BlobStore and NewFacade directly for %q", cfg.BlobS3Bucket)
	}

	meta, err := store.NewSQLiteMetadataStore(cfg.MetadataDSN)
	if err != nil {
		return nil, fmt.Errorf("memo: opening metadata store: %w", err)
	}
	if err := meta.InitSchema(ctx); err != nil {
		meta.Close()
		return nil, fmt.Errorf("memo: initializing metadata schema: %w", err)
	}

	blob, err := store.NewLocalBlobStore(cfg.BlobDir)
	if err != nil {
		meta.Close()
		return nil, fmt.Errorf("memo: opening blob store: %w", err)
	}

	facade := NewFacade(meta, blob, log)

	opts := []Option{
		WithBlobWarningThreshold(cfg.BlobWarningThreshold),
		WithPool(executor.NewOwned(cfg.Workers)),
	}
	if cfg.TPM > 0 {
		opts = append(opts, WithLimiter(ratelimit.New(float64(cfg.TPM)/60.0, cfg.RateLimitBurst)))
	}

	return New(facade, reg, log, opts...), nil
}
