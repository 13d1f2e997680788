package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is wrapped by backends when an object or bucket is missing.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStorage defines the object operations used to publish and fetch problem catalog packs.
type ObjectStorage interface {
	// GetObject opens a reader for an object.
	// Caller must close the returned reader.
	GetObject(ctx context.Context, bucket, objectKey string) (ObjectReader, error)

	// PutObject uploads sizeBytes read from reader with optional user metadata.
	PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string, metadata map[string]string) error

	// StatObject returns size, ETag and user metadata for an object.
	StatObject(ctx context.Context, bucket, objectKey string) (ObjectStat, error)
}

// BucketEnsurer is implemented by backends that can create buckets on demand.
type BucketEnsurer interface {
	EnsureBucket(ctx context.Context, bucket string) error
}

// ObjectReader is a streaming reader for object data.
type ObjectReader interface {
	Read(p []byte) (int, error)
	Close() error
}

// ObjectStat contains object metadata used for validation.
type ObjectStat struct {
	SizeBytes   int64
	ETag        string
	ContentType string
	// Metadata holds user metadata such as the pack checksum.
	Metadata map[string]string
}
