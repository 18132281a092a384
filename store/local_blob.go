package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// LocalBlobStore is the default BlobStore: files under a base directory,
// fanned out into 256 shard subdirectories by the low byte of the key's
// xxhash to keep any one directory from growing unbounded. Writes go to a
// uuid-suffixed temp file followed by an atomic rename, so a reader never
// observes a partially-written blob.
type LocalBlobStore struct {
	baseDir string
}

var _ BlobStore = (*LocalBlobStore)(nil)

// NewLocalBlobStore returns a BlobStore rooted at baseDir, creating it if
// necessary.
func NewLocalBlobStore(baseDir string) (*LocalBlobStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: creating blob directory %s: %w", baseDir, err)
	}
	return &LocalBlobStore{baseDir: baseDir}, nil
}

func shard(key string) string {
	sum := xxhash.Sum64String(key)
	return fmt.Sprintf("%02x", byte(sum))
}

func (l *LocalBlobStore) shardDir(key string) string {
	return filepath.Join(l.baseDir, shard(key))
}

func (l *LocalBlobStore) path(key string) string {
	return filepath.Join(l.shardDir(key), key+".bin")
}

func (l *LocalBlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	dir := l.shardDir(key)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store: creating shard directory %s: %w", dir, err)
	}

	final := l.path(key)
	tmp := final + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("store: writing temp blob for %s: %w", key, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("store: renaming temp blob into place for %s: %w", key, err)
	}
	return final, nil
}

func (l *LocalBlobStore) Get(ctx context.Context, location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("store: reading blob %s: %w", location, err)
	}
	return data, nil
}

func (l *LocalBlobStore) Delete(ctx context.Context, location string) error {
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: deleting blob %s: %w", location, err)
	}
	return nil
}
