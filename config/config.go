// Package config resolves the runtime configuration for a memoization
// engine instance: storage backends, rate limiting, worker pool sizing, and
// serialization guardrails. Values can be built programmatically with
// functional Options, or loaded from a YAML file and overridden by Options
// applied afterward.
package config

import (
	"fmt"
	"os"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
)

// Config holds the resolved settings for a memo.Core instance, naming its
// fields after spec.md §6's EXTERNAL INTERFACES construction options
// (name, metadata_store, blob_store, tpm, blob_warning_threshold,
// executor) rather than the backing implementation's own vocabulary.
type Config struct {
	// Name is the engine's logical identifier. memo.FromConfig does not use
	// it: cache keys, the metadata table and the blob directory are not
	// namespaced by Name, and storage locations come only from MetadataDSN
	// and BlobDir.
	Name string

	// MetadataDSN is the connection string for the MetadataStore
	// (e.g. a sqlite file path, or a redis:// URL).
	MetadataDSN string

	// BlobDir is the base directory for the local BlobStore. Ignored when
	// BlobS3Bucket is set.
	BlobDir string

	// BlobS3Bucket, if non-empty, selects the S3 BlobStore and names the
	// bucket to use.
	BlobS3Bucket string
	BlobS3Prefix string

	// BlobWarningThreshold is the byte size over which a result stored
	// inline (not SaveBlob) logs a warning, per spec.md §6's tpm/
	// blob_warning_threshold option pair.
	BlobWarningThreshold int

	// TPM is the GCRA rate limiter's admission rate in cost units per
	// minute, mirroring the original implementation's Project(tpm=10000)
	// and TokenBucket(tokens_per_minute) constructor argument. TPM <= 0
	// disables rate limiting entirely, per spec.md §6's "tpm: null disables
	// limiting".
	TPM int
	// RateLimitBurst bounds how far a caller can run ahead of the
	// steady-state TPM rate before admission starts delaying.
	RateLimitBurst int

	// Workers bounds the size of an internally-created worker pool. Ignored
	// if the caller supplies its own executor.Pool.
	Workers int

	// QueryTimeout is a per-operation timeout for store backends that take
	// one (the Redis stores). memo.FromConfig does not apply it: the SQLite
	// and local-filesystem stores it builds have no per-operation timeout.
	QueryTimeout time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Name:                 "default",
		MetadataDSN:          "memo.db",
		BlobDir:              "./blobs",
		BlobWarningThreshold: 1024 * 1024,
		TPM:                  10000,
		RateLimitBurst:       100,
		Workers:              4,
		QueryTimeout:         5 * time.Second,
	}
}

// New builds a Config from defaults plus the given Options.
func New(opts ...Option) Config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithName sets Name.
func WithName(name string) Option {
	return func(c *Config) { c.Name = name }
}

// WithMetadataDSN sets MetadataDSN.
func WithMetadataDSN(dsn string) Option {
	return func(c *Config) { c.MetadataDSN = dsn }
}

// WithLocalBlobDir selects a local-filesystem BlobStore rooted at dir.
func WithLocalBlobDir(dir string) Option {
	return func(c *Config) {
		c.BlobDir = dir
		c.BlobS3Bucket = ""
	}
}

// WithS3Blob selects an S3-backed BlobStore.
func WithS3Blob(bucket, prefix string) Option {
	return func(c *Config) {
		c.BlobS3Bucket = bucket
		c.BlobS3Prefix = prefix
	}
}

// WithBlobWarningThreshold sets BlobWarningThreshold.
func WithBlobWarningThreshold(bytes int) Option {
	return func(c *Config) { c.BlobWarningThreshold = bytes }
}

// WithTPM sets the GCRA limiter's tokens-per-minute rate and burst. A tpm
// of 0 or less disables rate limiting when the Config is built into a Core
// via memo.FromConfig.
func WithTPM(tpm, burst int) Option {
	return func(c *Config) {
		c.TPM = tpm
		c.RateLimitBurst = burst
	}
}

// WithWorkers sets the size of an internally-created worker pool.
func WithWorkers(n int) Option {
	return func(c *Config) { c.Workers = n }
}

// WithQueryTimeout sets QueryTimeout.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Config) { c.QueryTimeout = d }
}

// fileConfig mirrors Config but accepts human-friendly duration strings
// ("30s", "5m") in its YAML representation, per the teacher's use of
// go-str2duration for the same purpose.
type fileConfig struct {
	Name                 string `yaml:"name"`
	MetadataDSN          string `yaml:"metadata_dsn"`
	BlobDir              string `yaml:"blob_dir"`
	BlobS3Bucket         string `yaml:"blob_s3_bucket"`
	BlobS3Prefix         string `yaml:"blob_s3_prefix"`
	BlobWarningThreshold int    `yaml:"blob_warning_threshold"`
	TPM                  int    `yaml:"tpm"`
	RateLimitBurst       int    `yaml:"rate_limit_burst"`
	Workers              int    `yaml:"workers"`
	QueryTimeout         string `yaml:"query_timeout"`
}

// LoadFile reads a YAML config file, overlaying it onto the defaults, and
// then applies any additional Options. Fields absent from the file keep
// their default (or prior Option-applied) values. Because a zero TPM in the
// file is indistinguishable from an absent one, disabling rate limiting
// from a file-loaded Config requires an explicit WithTPM(0, 0) Option
// applied after LoadFile rather than tpm: 0 in the file itself.
func LoadFile(path string, opts ...Option) (Config, error) {
	cfg := defaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	if fc.Name != "" {
		cfg.Name = fc.Name
	}
	if fc.MetadataDSN != "" {
		cfg.MetadataDSN = fc.MetadataDSN
	}
	if fc.BlobDir != "" {
		cfg.BlobDir = fc.BlobDir
	}
	if fc.BlobS3Bucket != "" {
		cfg.BlobS3Bucket = fc.BlobS3Bucket
		cfg.BlobS3Prefix = fc.BlobS3Prefix
	}
	if fc.BlobWarningThreshold != 0 {
		cfg.BlobWarningThreshold = fc.BlobWarningThreshold
	}
	if fc.TPM != 0 {
		cfg.TPM = fc.TPM
	}
	if fc.RateLimitBurst != 0 {
		cfg.RateLimitBurst = fc.RateLimitBurst
	}
	if fc.Workers != 0 {
		cfg.Workers = fc.Workers
	}
	if fc.QueryTimeout != "" {
		d, err := str2duration.ParseDuration(fc.QueryTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("config: parsing query_timeout %q: %w", fc.QueryTimeout, err)
		}
		cfg.QueryTimeout = d
	}

	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg, nil
}
