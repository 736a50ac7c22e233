// Package storage defines the object sink contract used by the
// ingestion driver, the lakehouse manager, and the demo. Keys are
// hierarchical strings using "/" as a path-like separator; no atomic
// rename or conditional-put semantics are assumed.
package storage

import (
	"context"
	"io"
	"time"
)

// DefaultContentType is used for encoded batch payloads.
const DefaultContentType = "application/octet-stream"

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
	ContentType  string
}

// PutOptions configures write operations.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// ObjectStore is the object sink collaborator. Uploads are additive:
// writers avoid collisions through generation-stamped keys rather than
// overwrite protection.
type ObjectStore interface {
	// BucketExists reports whether the bucket exists.
	BucketExists(ctx context.Context, bucket string) (bool, error)

	// CreateBucket creates the bucket. Creating a bucket that already
	// exists and is owned by the caller is not an error.
	CreateBucket(ctx context.Context, bucket string) error

	// Put writes size bytes from data under bucket/key.
	Put(ctx context.Context, bucket, key string, data io.Reader, size int64, opts PutOptions) error

	// Get returns a reader for the object.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)

	// List returns objects under the prefix, sorted by key.
	List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)

	// Scheme returns the storage scheme (e.g., "s3", "memory").
	Scheme() string
}
