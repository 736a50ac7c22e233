// Package watch re-runs ingestion whenever the source workbook changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lakeseed/lakeseed/pkg/errors"
	"github.com/lakeseed/lakeseed/pkg/ingest"
)

// DefaultDebounce coalesces the burst of write events an xlsx save
// produces into one ingestion pass.
const DefaultDebounce = 500 * time.Millisecond

// Runner executes one automatic-date ingestion run. *ingest.Driver is
// the production implementation.
type Runner interface {
	Run(ctx context.Context) (*ingest.Report, error)
}

// Watcher drives ingestion from filesystem events on one workbook.
// After a real change it keeps running until a day with no rows comes
// back, so a workbook that grew by several days is drained in one pass.
type Watcher struct {
	fsw      *fsnotify.Watcher
	path     string
	runner   Runner
	logger   *slog.Logger
	debounce time.Duration

	mu         sync.Mutex
	lastMod    time.Time
	size       int64
	processing bool
}

// NewWatcher watches the workbook at path. The containing directory is
// registered with fsnotify, so the workbook itself may not exist yet;
// its creation counts as the first change.
func NewWatcher(path string, runner Runner, logger *slog.Logger) (*Watcher, error) {
	if runner == nil {
		return nil, errors.New(errors.CodeUnknown, "watcher requires a runner")
	}
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch directory %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		fsw:      fsw,
		path:     absPath,
		runner:   runner,
		logger:   logger,
		debounce: DefaultDebounce,
	}
	if stat, err := os.Stat(absPath); err == nil {
		w.lastMod = stat.ModTime()
		w.size = stat.Size()
	}
	return w, nil
}

// SetDebounce overrides the event coalescing window.
func (w *Watcher) SetDebounce(d time.Duration) *Watcher {
	if d > 0 {
		w.debounce = d
	}
	return w
}

// Run blocks until ctx is cancelled. It performs one catch-up pass at
// startup, so days that arrived while the watcher was down are not
// missed, then ingests on every subsequent change to the workbook.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching workbook",
		slog.String("path", w.path),
		slog.Duration("debounce", w.debounce))

	w.catchUp(ctx)

	var timerMu sync.Mutex
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			name, err := filepath.Abs(event.Name)
			if err != nil || name != w.path {
				continue
			}

			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				w.handleChange(ctx)
			})
			timerMu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", slog.String("error", err.Error()))
		}
	}
}

// handleChange ingests after confirming the workbook really changed.
// Editors fire write events for metadata-only touches; mtime and size
// together filter those out.
func (w *Watcher) handleChange(ctx context.Context) {
	w.mu.Lock()
	if w.processing {
		w.mu.Unlock()
		return
	}
	w.processing = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.processing = false
		w.mu.Unlock()
	}()

	stat, err := os.Stat(w.path)
	if err != nil {
		w.logger.Warn("workbook unreadable after change event",
			slog.String("path", w.path),
			slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	unchanged := stat.ModTime().Equal(w.lastMod) && stat.Size() == w.size
	if !unchanged {
		w.lastMod = stat.ModTime()
		w.size = stat.Size()
	}
	w.mu.Unlock()
	if unchanged {
		return
	}

	w.logger.Info("workbook changed", slog.String("path", w.path))
	w.catchUp(ctx)
}

// catchUp runs the driver until a day with no rows comes back. Errors
// end the pass but not the watcher; the next change retries.
func (w *Watcher) catchUp(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rep, err := w.runner.Run(ctx)
		if err != nil {
			// An input error cannot succeed until the workbook changes
			// again, so there is nothing to retry in the meantime.
			msg := "ingestion run failed, watch continues"
			if errors.IsInput(err) {
				msg = "source rejected, waiting for the next change"
			}
			w.logger.Error(msg,
				slog.String("code", string(errors.GetCode(err))),
				slog.String("error", err.Error()))
			return
		}
		if len(rep.Sheets) == 0 {
			w.logger.Info("caught up", slog.String("date", rep.Date.Format("2006-01-02")))
			return
		}
		w.logger.Info("day ingested, continuing catch-up",
			slog.String("date", rep.Date.Format("2006-01-02")),
			slog.Int("sheets", len(rep.Sheets)))
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
