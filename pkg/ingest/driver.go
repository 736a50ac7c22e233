// Package ingest drives one incremental load: resolve the target date
// from the cursor, load and filter the source workbook, encode each
// sheet, upload the results, and only then advance the cursor.
//
// A run is single-writer and single-attempt. Uploads use additive
// generation-stamped keys, so a failed run that is retried later can
// only add objects, never overwrite them. The cursor moves strictly
// after every sheet of the day has been persisted, which makes the
// pipeline at-least-once: a crash between upload and commit replays
// the same day onto fresh keys.
package ingest

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lakeseed/lakeseed/pkg/cursor"
	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/frame"
	"github.com/lakeseed/lakeseed/pkg/storage"
	"github.com/lakeseed/lakeseed/pkg/telemetry"
	"github.com/lakeseed/lakeseed/pkg/workbook"
)

// tracer is a no-op until an OTLP exporter installs a real provider.
var tracer = telemetry.Tracer("github.com/lakeseed/lakeseed/pkg/ingest")

// State is the phase an ingestion run is in. Transitions are linear;
// Done and Failed are terminal.
type State int

const (
	StateIdle State = iota
	StateResolvingDate
	StateLoading
	StateUploading
	StateCommitting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingDate:
		return "resolving_date"
	case StateLoading:
		return "loading"
	case StateUploading:
		return "uploading"
	case StateCommitting:
		return "committing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Loader yields the filtered view of the source for one calendar day.
// *workbook.Reader is the production implementation.
type Loader interface {
	LoadForDate(ctx context.Context, path string, date time.Time) (*workbook.Dataset, error)
}

// Encoder turns one sheet's batch into self-describing bytes.
// *encode.Codec is the production implementation.
type Encoder interface {
	Encode(batch *frame.Batch) ([]byte, error)
}

// Config carries the run parameters of a driver.
type Config struct {
	// SourcePath is the xlsx workbook to ingest.
	SourcePath string
	// Bucket receives the encoded sheets. Created if absent.
	Bucket string
	// Prefix namespaces the object keys, default "online_retail_ii".
	Prefix string
}

// DefaultPrefix namespaces uploaded objects when none is configured.
const DefaultPrefix = "online_retail_ii"

func (c *Config) withDefaults() Config {
	out := *c
	if out.Prefix == "" {
		out.Prefix = DefaultPrefix
	}
	return out
}

// Validate reports configuration the driver cannot run with.
func (c *Config) Validate() error {
	if c.SourcePath == "" {
		return errors.New(errors.CodeSourceNotFound, "source path not configured")
	}
	if c.Bucket == "" {
		return errors.New(errors.CodeBucketFailed, "bucket not configured")
	}
	return nil
}

// SheetResult records one uploaded sheet.
type SheetResult struct {
	Sheet    string
	Key      string
	Rows     int
	Bytes    int
	Duration time.Duration
}

// Report is the outcome of a single run.
type Report struct {
	RunID          string
	Date           time.Time
	Explicit       bool
	State          State
	Sheets         []SheetResult
	Skipped        []string
	TotalRows      int
	CursorAdvanced bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Duration is the wall time of the run.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Driver owns one source-to-bucket ingestion pipeline.
type Driver struct {
	cfg    Config
	cursor cursor.Store
	loader Loader
	codec  Encoder
	sink   storage.ObjectStore
	logger *slog.Logger
	now    func() time.Time
}

// NewDriver wires a driver from its collaborators.
func NewDriver(cfg Config, cur cursor.Store, loader Loader, codec Encoder, sink storage.ObjectStore, logger *slog.Logger) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cur == nil || loader == nil || codec == nil || sink == nil {
		return nil, errors.New(errors.CodeUnknown, "driver requires cursor, loader, codec and sink")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:    cfg.withDefaults(),
		cursor: cur,
		loader: loader,
		codec:  codec,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}, nil
}

// SetClock overrides the generation-stamp clock.
func (d *Driver) SetClock(now func() time.Time) *Driver {
	if now != nil {
		d.now = now
	}
	return d
}

// Run ingests the next unprocessed day: the day after the cursor.
// On success the cursor advances to the processed day.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	return d.run(ctx, time.Time{}, false)
}

// RunForDate ingests one explicit day. The cursor is neither read nor
// advanced, so explicit runs can backfill or replay without disturbing
// the incremental schedule.
func (d *Driver) RunForDate(ctx context.Context, date time.Time) (*Report, error) {
	if date.IsZero() {
		return nil, errors.InvalidDate("zero date")
	}
	return d.run(ctx, date, true)
}

func (d *Driver) run(ctx context.Context, date time.Time, explicit bool) (*Report, error) {
	rep := &Report{
		RunID:     uuid.NewString(),
		Explicit:  explicit,
		State:     StateIdle,
		StartedAt: d.now(),
	}
	logger := d.logger.With(slog.String("run_id", rep.RunID))
	ctx, span := tracer.Start(ctx, "ingest.run", trace.WithAttributes(
		attribute.String("run.id", rep.RunID),
		attribute.Bool("run.explicit", explicit)))
	defer span.End()

	d.transition(logger, span, rep, StateResolvingDate)
	target, err := d.resolveDate(ctx, date, explicit)
	if err != nil {
		return d.fail(logger, span, rep, err)
	}
	rep.Date = target
	span.SetAttributes(attribute.String("run.date", cursor.FormatDate(target)))
	logger = logger.With(slog.String("date", cursor.FormatDate(target)))
	logger.Info("ingestion run started",
		slog.String("source", d.cfg.SourcePath),
		slog.String("bucket", d.cfg.Bucket),
		slog.Bool("explicit", explicit))

	d.transition(logger, span, rep, StateLoading)
	ds, err := d.loader.LoadForDate(ctx, d.cfg.SourcePath, target)
	if err != nil {
		return d.fail(logger, span, rep, err)
	}
	rep.TotalRows = ds.TotalRows()
	for sheet, derr := range ds.Degraded {
		logger.Warn("sheet degraded",
			slog.String("sheet", sheet),
			slog.String("code", string(errors.GetCode(derr))))
	}

	if ds.Empty() {
		// Nothing happened on this day. The run still succeeds, but
		// the cursor stays put so the day is retried next time.
		rep.Skipped = append(rep.Skipped, ds.Sheets...)
		d.transition(logger, span, rep, StateDone)
		rep.FinishedAt = d.now()
		logger.Info("no rows for date, cursor not advanced")
		return rep, nil
	}

	d.transition(logger, span, rep, StateUploading)
	if err := d.ensureBucket(ctx); err != nil {
		return d.fail(logger, span, rep, err)
	}
	generation := d.now().UTC()
	for _, sheet := range ds.Sheets {
		select {
		case <-ctx.Done():
			return d.fail(logger, span, rep, errors.ContextCanceled("sheet upload"))
		default:
		}

		batch := ds.Batches[sheet]
		if batch == nil || batch.Empty() {
			rep.Skipped = append(rep.Skipped, sheet)
			logger.Debug("sheet skipped, no matching rows", slog.String("sheet", sheet))
			continue
		}

		result, err := d.uploadSheet(ctx, batch, target, generation)
		if err != nil {
			return d.fail(logger, span, rep, err)
		}
		rep.Sheets = append(rep.Sheets, result)
		logger.Info("sheet uploaded",
			slog.String("sheet", sheet),
			slog.String("key", result.Key),
			slog.Int("rows", result.Rows),
			slog.Int("bytes", result.Bytes),
			slog.Duration("took", result.Duration))
	}

	d.transition(logger, span, rep, StateCommitting)
	if explicit {
		logger.Info("explicit date run, cursor untouched")
	} else {
		if err := d.cursor.Advance(ctx, target); err != nil {
			return d.fail(logger, span, rep, err)
		}
		rep.CursorAdvanced = true
		logger.Info("cursor advanced", slog.String("cursor", cursor.FormatDate(target)))
	}

	d.transition(logger, span, rep, StateDone)
	rep.FinishedAt = d.now()
	logger.Info("ingestion run finished",
		slog.Int("sheets", len(rep.Sheets)),
		slog.Int("rows", rep.TotalRows),
		slog.Duration("took", rep.Duration()))
	return rep, nil
}

// resolveDate picks the day to ingest: the explicit date when given,
// otherwise the day after the stored cursor.
func (d *Driver) resolveDate(ctx context.Context, date time.Time, explicit bool) (time.Time, error) {
	if explicit {
		return cursor.Normalize(date), nil
	}
	last, err := d.cursor.Read(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return last.AddDate(0, 0, 1), nil
}

func (d *Driver) ensureBucket(ctx context.Context) error {
	exists, err := d.sink.BucketExists(ctx, d.cfg.Bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := d.sink.CreateBucket(ctx, d.cfg.Bucket); err != nil {
		return err
	}
	d.logger.Info("bucket created", slog.String("bucket", d.cfg.Bucket))
	return nil
}

func (d *Driver) uploadSheet(ctx context.Context, batch *frame.Batch, date, generation time.Time) (SheetResult, error) {
	ctx, span := tracer.Start(ctx, "ingest.upload_sheet", trace.WithAttributes(
		attribute.String("sheet", batch.Sheet),
		attribute.Int("rows", batch.NumRows())))
	defer span.End()
	start := d.now()

	data, err := d.codec.Encode(batch)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SheetResult{}, err
	}
	key := d.objectKey(batch.Sheet, date, generation)
	if err := d.sink.Put(ctx, d.cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), storage.PutOptions{
		ContentType: "application/vnd.apache.parquet",
	}); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return SheetResult{}, err
	}
	span.SetAttributes(
		attribute.String("key", key),
		attribute.Int("bytes", len(data)))

	return SheetResult{
		Sheet:    batch.Sheet,
		Key:      key,
		Rows:     batch.NumRows(),
		Bytes:    len(data),
		Duration: d.now().Sub(start),
	}, nil
}

// objectKey builds the additive object key for one sheet of one day.
// The generation stamp is shared by every sheet of a run, so a day's
// objects group together and re-runs never collide.
func (d *Driver) objectKey(sheet string, date, generation time.Time) string {
	return fmt.Sprintf("%s/%s_%s_%s.parquet",
		d.cfg.Prefix,
		CleanSheetName(sheet),
		date.Format("2006-01-02"),
		generation.Format("20060102_150405"))
}

// CleanSheetName normalizes a sheet name for use inside object keys.
func CleanSheetName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}

func (d *Driver) transition(logger *slog.Logger, span trace.Span, rep *Report, s State) {
	rep.State = s
	span.AddEvent(s.String())
	logger.Debug("state transition", slog.String("state", s.String()))
}

func (d *Driver) fail(logger *slog.Logger, span trace.Span, rep *Report, err error) (*Report, error) {
	rep.State = StateFailed
	rep.FinishedAt = d.now()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	logger.Error("ingestion run failed",
		slog.String("code", string(errors.GetCode(err))),
		slog.String("error", err.Error()))
	return rep, err
}
