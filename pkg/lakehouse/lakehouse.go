// Package lakehouse provisions the medallion buckets and their folder
// skeleton, and offers thin object helpers for the demo and inspect
// flows.
package lakehouse

import (
	"bytes"
	"context"
	"io"
	"strings"

	"log/slog"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/storage"
)

// Config names the three tiers. Zero values fall back to the
// conventional medallion names.
type Config struct {
	BronzeBucket string
	SilverBucket string
	GoldBucket   string
}

// DefaultConfig returns the conventional bucket names.
func DefaultConfig() Config {
	return Config{
		BronzeBucket: "bronze",
		SilverBucket: "silver",
		GoldBucket:   "gold",
	}
}

func (c *Config) withDefaults() Config {
	out := *c
	def := DefaultConfig()
	if out.BronzeBucket == "" {
		out.BronzeBucket = def.BronzeBucket
	}
	if out.SilverBucket == "" {
		out.SilverBucket = def.SilverBucket
	}
	if out.GoldBucket == "" {
		out.GoldBucket = def.GoldBucket
	}
	return out
}

// Buckets returns the tier buckets in bronze, silver, gold order.
func (c Config) Buckets() []string {
	return []string{c.BronzeBucket, c.SilverBucket, c.GoldBucket}
}

// keepMarker is the zero-byte object that materializes a folder in
// object stores that have no real directories.
const keepMarker = ".keep"

// IsLayoutMarker reports whether key is a folder marker seeded by
// EnsureLayout rather than real data.
func IsLayoutMarker(key string) bool {
	return key == keepMarker || strings.HasSuffix(key, "/"+keepMarker)
}

// BucketInfo summarizes one bucket's contents.
type BucketInfo struct {
	Bucket    string
	Objects   int
	TotalSize int64
}

// Manager provisions and inspects the lakehouse buckets.
type Manager struct {
	cfg    Config
	store  storage.ObjectStore
	logger *slog.Logger
}

// NewManager wires a manager over the given object store.
func NewManager(cfg Config, store storage.ObjectStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg.withDefaults(), store: store, logger: logger}
}

// Config returns the resolved bucket names.
func (m *Manager) Config() Config {
	return m.cfg
}

// layout maps each bucket to the folders seeded under it.
func (m *Manager) layout() map[string][]string {
	return map[string][]string{
		m.cfg.BronzeBucket: {"orders/", "products/", "customers/", "fx_rates/", "archive/"},
		m.cfg.SilverBucket: {"orders/", "products/", "customers/", "analytics/", "staging/"},
		m.cfg.GoldBucket:   {"reports/", "dashboards/", "metrics/", "exports/"},
	}
}

// EnsureBuckets creates any missing tier bucket. Pre-existing buckets
// are left alone.
func (m *Manager) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range m.cfg.Buckets() {
		exists, err := m.store.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrap(err, errors.CodeBucketFailed, "failed to check bucket").
				WithContext("bucket", bucket)
		}
		if exists {
			m.logger.Debug("bucket exists", slog.String("bucket", bucket))
			continue
		}
		if err := m.store.CreateBucket(ctx, bucket); err != nil {
			return errors.Wrap(err, errors.CodeBucketFailed, "failed to create bucket").
				WithContext("bucket", bucket)
		}
		m.logger.Info("bucket created", slog.String("bucket", bucket))
	}
	return nil
}

// EnsureLayout creates the buckets and seeds every folder with a
// .keep marker. Marker failures are collected so one broken folder
// does not hide the rest.
func (m *Manager) EnsureLayout(ctx context.Context) error {
	if err := m.EnsureBuckets(ctx); err != nil {
		return err
	}

	multi := &errors.MultiError{}
	for bucket, folders := range m.layout() {
		for _, folder := range folders {
			key := folder + keepMarker
			err := m.store.Put(ctx, bucket, key, bytes.NewReader(nil), 0, storage.PutOptions{})
			if err != nil {
				multi.Add(errors.Wrap(err, errors.CodePutFailed, "failed to seed folder").
					WithContext("bucket", bucket).
					WithContext("folder", folder))
				continue
			}
			m.logger.Debug("folder seeded",
				slog.String("bucket", bucket),
				slog.String("folder", folder))
		}
	}
	if multi.HasErrors() {
		return multi.Combined()
	}

	m.logger.Info("lakehouse layout ready",
		slog.String("buckets", strings.Join(m.cfg.Buckets(), ", ")))
	return nil
}

// Info counts the objects in one bucket. Folder markers are excluded
// so an empty provisioned bucket reports zero objects.
func (m *Manager) Info(ctx context.Context, bucket string) (BucketInfo, error) {
	objects, err := m.store.List(ctx, bucket, "")
	if err != nil {
		return BucketInfo{}, errors.Wrap(err, errors.CodeListFailed, "failed to list bucket").
			WithContext("bucket", bucket)
	}

	info := BucketInfo{Bucket: bucket}
	for _, obj := range objects {
		if IsLayoutMarker(obj.Key) {
			continue
		}
		info.Objects++
		info.TotalSize += obj.Size
	}
	return info, nil
}

// InfoAll returns Info for every tier bucket in order.
func (m *Manager) InfoAll(ctx context.Context) ([]BucketInfo, error) {
	infos := make([]BucketInfo, 0, 3)
	for _, bucket := range m.cfg.Buckets() {
		info, err := m.Info(ctx, bucket)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// List returns the objects under bucket/prefix.
func (m *Manager) List(ctx context.Context, bucket, prefix string) ([]storage.ObjectInfo, error) {
	return m.store.List(ctx, bucket, prefix)
}

// Upload stores a payload under bucket/key.
func (m *Manager) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	opts := storage.PutOptions{ContentType: contentType}
	if err := m.store.Put(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return errors.Wrap(err, errors.CodePutFailed, "failed to upload object").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	m.logger.Info("object uploaded",
		slog.String("bucket", bucket),
		slog.String("key", key),
		slog.Int("bytes", len(data)))
	return nil
}

// Download fetches bucket/key fully into memory.
func (m *Manager) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	rc, err := m.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeGetFailed, "failed to fetch object").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeGetFailed, "failed to read object body").
			WithContext("bucket", bucket).
			WithContext("key", key)
	}
	return data, nil
}
