package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3BlobStore is an S3-compatible BlobStore, the out-of-process analogue of
// LocalBlobStore for deployments that need shared, durable blob storage
// across multiple MemoCore instances.
type S3BlobStore struct {
	client *s3.Client
	bucket string
	prefix string
}

var _ BlobStore = (*S3BlobStore)(nil)

// NewS3BlobStore returns a BlobStore storing objects in bucket under prefix,
// using client.
func NewS3BlobStore(client *s3.Client, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3BlobStore) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *S3BlobStore) location(objectKey string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, objectKey)
}

func (s *S3BlobStore) parseLocation(location string) (bucket, objectKey string, err error) {
	trimmed := strings.TrimPrefix(location, "s3://")
	if trimmed == location {
		return "", "", fmt.Errorf("store: location %q is not an s3:// URI", location)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("store: location %q missing object key", location)
	}
	return parts[0], parts[1], nil
}

func (s *S3BlobStore) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := s.objectKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("store: s3 put %s: %w", objectKey, err)
	}
	return s.location(objectKey), nil
}

func (s *S3BlobStore) Get(ctx context.Context, location string) ([]byte, error) {
	bucket, objectKey, err := s.parseLocation(location)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	})
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return nil, fmt.Errorf("store: blob not found at %s", location)
	}
	if err != nil {
		return nil, fmt.Errorf("store: s3 get %s: %w", location, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("store: s3 reading body for %s: %w", location, err)
	}
	return data, nil
}

func (s *S3BlobStore) Delete(ctx context.Context, location string) error {
	bucket, objectKey, err := s.parseLocation(location)
	if err != nil {
		return err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectKey),
	}); err != nil {
		return fmt.Errorf("store: s3 delete %s: %w", location, err)
	}
	return nil
}
