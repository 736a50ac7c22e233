package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements ObjectStore in memory. Used by tests and by
// demo runs that have no object storage endpoint available.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

type memObject struct {
	data []byte
	info ObjectInfo
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memObject)}
}

// Scheme returns "memory".
func (s *MemoryStore) Scheme() string {
	return "memory"
}

// BucketExists reports whether the bucket was created.
func (s *MemoryStore) BucketExists(ctx context.Context, bucket string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.buckets[bucket]
	return ok, nil
}

// CreateBucket creates the bucket; re-creation is a no-op.
func (s *MemoryStore) CreateBucket(ctx context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[bucket]; !ok {
		s.buckets[bucket] = make(map[string]memObject)
	}
	return nil
}

// Put stores the payload under bucket/key.
func (s *MemoryStore) Put(ctx context.Context, bucket, key string, data io.Reader, size int64, opts PutOptions) error {
	payload, err := io.ReadAll(data)
	if err != nil {
		return fmt.Errorf("failed to read payload for %s/%s: %w", bucket, key, err)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %q does not exist", bucket)
	}

	objects[key] = memObject{
		data: payload,
		info: ObjectInfo{
			Key:          key,
			Size:         int64(len(payload)),
			LastModified: time.Now().UTC(),
			ContentType:  contentType,
		},
	}
	return nil
}

// Get returns a reader over the stored payload.
func (s *MemoryStore) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q does not exist", bucket)
	}
	obj, ok := objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// List returns objects under the prefix, sorted by key.
func (s *MemoryStore) List(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objects, ok := s.buckets[bucket]
	if !ok {
		return nil, fmt.Errorf("bucket %q does not exist", bucket)
	}

	var results []ObjectInfo
	for key, obj := range objects {
		if strings.HasPrefix(key, prefix) {
			results = append(results, obj.info)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return results, nil
}

// Verify interface compliance
var _ ObjectStore = (*MemoryStore)(nil)
