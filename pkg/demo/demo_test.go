package demo

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/generate"
	"github.com/lakeseed/lakeseed/pkg/lakehouse"
	"github.com/lakeseed/lakeseed/pkg/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() time.Time {
	return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
}

func testConfig() Config {
	return Config{
		Generate: generate.Config{Seed: 42, Scale: generate.ScaleSmall, FxDays: 10},
	}
}

func newTestDemo(t *testing.T, cfg Config) (*Demo, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	lake := lakehouse.NewManager(lakehouse.Config{}, store, quietLogger())
	d, err := New(cfg, lake, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetClock(fixedClock)
	return d, store
}

func TestRunSetupOnly(t *testing.T) {
	cfg := testConfig()
	cfg.SetupOnly = true
	d, store := newTestDemo(t, cfg)

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.SetupOnly {
		t.Error("result not marked setup-only")
	}
	if len(res.Uploads) != 0 || res.Verified != nil {
		t.Errorf("setup-only run produced uploads: %+v", res.Uploads)
	}

	for _, bucket := range []string{"bronze", "silver", "gold"} {
		exists, err := store.BucketExists(context.Background(), bucket)
		if err != nil || !exists {
			t.Errorf("bucket %s missing after setup", bucket)
		}
	}
	if len(res.Buckets) != 3 {
		t.Fatalf("buckets = %d, want 3", len(res.Buckets))
	}
	for _, info := range res.Buckets {
		if info.Objects != 0 {
			t.Errorf("bucket %s reports %d objects, markers must not count", info.Bucket, info.Objects)
		}
	}
}

func TestRunFullFlow(t *testing.T) {
	d, store := newTestDemo(t, testConfig())

	res, err := d.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Uploads) != 4 {
		t.Fatalf("uploads = %d, want 4", len(res.Uploads))
	}
	wantKeys := map[string]int{
		"customers/customers_20240615_120000.parquet": 1000,
		"products/products_20240615_120000.parquet":   500,
		"fx_rates/fx_rates_20240615_120000.parquet":   70,
		"orders/orders_20240615_120000.parquet":       5000,
	}
	for _, u := range res.Uploads {
		rows, ok := wantKeys[u.Key]
		if !ok {
			t.Errorf("unexpected upload key %q", u.Key)
			continue
		}
		if u.Rows != rows {
			t.Errorf("%s rows = %d, want %d", u.Table, u.Rows, rows)
		}
		if u.Bytes == 0 {
			t.Errorf("%s has zero bytes", u.Table)
		}
		rc, err := store.Get(context.Background(), "bronze", u.Key)
		if err != nil {
			t.Errorf("uploaded object %q not in store: %v", u.Key, err)
			continue
		}
		rc.Close()
	}

	if res.TotalRows() != 1000+500+70+5000 {
		t.Errorf("total rows = %d", res.TotalRows())
	}

	if len(res.SampleKeys) != 4 {
		t.Errorf("sample keys = %v, want the 4 data objects", res.SampleKeys)
	}
	for _, key := range res.SampleKeys {
		if strings.HasSuffix(key, ".keep") {
			t.Errorf("layout marker leaked into samples: %q", key)
		}
	}

	if res.Verified == nil {
		t.Fatal("no verification result")
	}
	if res.Verified.Table != "orders" {
		t.Errorf("verified table = %q, want orders", res.Verified.Table)
	}
	if res.Verified.Rows != 5000 {
		t.Errorf("verified rows = %d", res.Verified.Rows)
	}
	found := false
	for _, c := range res.Verified.Columns {
		if c == "order_id" {
			found = true
		}
	}
	if !found {
		t.Errorf("verified columns missing order_id: %v", res.Verified.Columns)
	}
	if len(res.Verified.Head) != 3 {
		t.Errorf("head rows = %d, want 3", len(res.Verified.Head))
	}

	for _, info := range res.Buckets {
		switch info.Bucket {
		case "bronze":
			if info.Objects != 4 {
				t.Errorf("bronze objects = %d, want 4", info.Objects)
			}
		case "silver", "gold":
			if info.Objects != 0 {
				t.Errorf("%s objects = %d, want 0", info.Bucket, info.Objects)
			}
		}
	}
}

// putFailer rejects data uploads but lets layout markers through.
type putFailer struct {
	*storage.MemoryStore
}

func (p *putFailer) Put(ctx context.Context, bucket, key string, r io.Reader, size int64, opts storage.PutOptions) error {
	if strings.HasSuffix(key, ".parquet") {
		return errors.New(errors.CodePutFailed, "injected put failure")
	}
	return p.MemoryStore.Put(ctx, bucket, key, r, size, opts)
}

func TestRunUploadFailure(t *testing.T) {
	store := &putFailer{MemoryStore: storage.NewMemoryStore()}
	lake := lakehouse.NewManager(lakehouse.Config{}, store, quietLogger())
	d, err := New(testConfig(), lake, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetClock(fixedClock)

	res, err := d.Run(context.Background())
	if err == nil {
		t.Fatal("expected upload failure")
	}
	if res != nil {
		t.Errorf("failed run returned a result: %+v", res)
	}
	if code := errors.GetCode(err); code != errors.CodePutFailed {
		t.Errorf("code = %s, want %s", code, errors.CodePutFailed)
	}
}

func TestVerifyRejectsRowMismatch(t *testing.T) {
	d, _ := newTestDemo(t, testConfig())
	ctx := context.Background()

	if err := d.lake.EnsureLayout(ctx); err != nil {
		t.Fatalf("EnsureLayout: %v", err)
	}
	ds, err := d.gen.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	data, err := d.codec.Encode(ds.Orders)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	key := "orders/orders_test.parquet"
	if err := d.lake.Upload(ctx, "bronze", key, data, "application/vnd.apache.parquet"); err != nil {
		t.Fatalf("Upload: %v", err)
	}

	_, err = d.verify(ctx, []TableUpload{{Table: "orders", Key: key, Rows: ds.Orders.NumRows() + 1}})
	if err == nil {
		t.Fatal("row mismatch accepted")
	}
	if code := errors.GetCode(err); code != errors.CodeDecodeFailed {
		t.Errorf("code = %s, want %s", code, errors.CodeDecodeFailed)
	}
}

func TestRunContextCanceled(t *testing.T) {
	d, _ := newTestDemo(t, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Run(ctx)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if code := errors.GetCode(err); code != errors.CodeContextCanceled {
		t.Errorf("code = %s, want %s", code, errors.CodeContextCanceled)
	}
}

func TestNewRequiresLakehouse(t *testing.T) {
	if _, err := New(testConfig(), nil, quietLogger()); err == nil {
		t.Fatal("nil lakehouse accepted")
	}
}
