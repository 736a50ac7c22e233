package watch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lakeseed/lakeseed/pkg/ingest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type runOutcome struct {
	rep *ingest.Report
	err error
}

// scriptedRunner plays back outcomes in order, then reports empty days.
type scriptedRunner struct {
	mu      sync.Mutex
	scripts []runOutcome
	calls   int
}

func (r *scriptedRunner) Run(ctx context.Context) (*ingest.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if len(r.scripts) == 0 {
		return &ingest.Report{State: ingest.StateDone}, nil
	}
	out := r.scripts[0]
	r.scripts = r.scripts[1:]
	return out.rep, out.err
}

func (r *scriptedRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func dataDay(date string) runOutcome {
	d, _ := time.Parse("2006-01-02", date)
	return runOutcome{rep: &ingest.Report{
		State:  ingest.StateDone,
		Date:   d,
		Sheets: []ingest.SheetResult{{Sheet: "Year 2010-2011", Rows: 10}},
	}}
}

func emptyDay() runOutcome {
	return runOutcome{rep: &ingest.Report{State: ingest.StateDone}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCatchUpRunsUntilEmptyDay(t *testing.T) {
	runner := &scriptedRunner{scripts: []runOutcome{
		dataDay("2010-12-01"),
		dataDay("2010-12-02"),
		emptyDay(),
	}}
	w := &Watcher{runner: runner, logger: quietLogger()}

	w.catchUp(context.Background())

	if got := runner.count(); got != 3 {
		t.Errorf("runs = %d, want 3 (two data days then the empty one)", got)
	}
}

func TestCatchUpStopsOnError(t *testing.T) {
	runner := &scriptedRunner{scripts: []runOutcome{
		{err: errors.New("sink unavailable")},
		dataDay("2010-12-01"),
	}}
	w := &Watcher{runner: runner, logger: quietLogger()}

	w.catchUp(context.Background())

	if got := runner.count(); got != 1 {
		t.Errorf("runs = %d, want 1 (error ends the pass)", got)
	}
}

func TestCatchUpHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &scriptedRunner{scripts: []runOutcome{dataDay("2010-12-01")}}
	w := &Watcher{runner: runner, logger: quietLogger()}
	w.catchUp(ctx)

	if got := runner.count(); got != 0 {
		t.Errorf("runs = %d, want 0 on cancelled context", got)
	}
}

func TestWatcherIngestsOnWorkbookChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retail.xlsx")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed workbook: %v", err)
	}

	runner := &scriptedRunner{}
	w, err := NewWatcher(path, runner, quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Startup catch-up is one empty-day run.
	waitFor(t, "startup catch-up", func() bool { return runner.count() == 1 })

	if err := os.WriteFile(path, []byte("v2 with more rows"), 0o644); err != nil {
		t.Fatalf("modify workbook: %v", err)
	}
	waitFor(t, "change-triggered run", func() bool { return runner.count() >= 2 })

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestWatcherIgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "retail.xlsx")
	if err := os.WriteFile(path, []byte("v1"), 0o644); err != nil {
		t.Fatalf("seed workbook: %v", err)
	}

	runner := &scriptedRunner{}
	w, err := NewWatcher(path, runner, quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, "startup catch-up", func() bool { return runner.count() == 1 })

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("unrelated"), 0o644); err != nil {
		t.Fatalf("write sibling: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	if got := runner.count(); got != 1 {
		t.Errorf("runs = %d, want 1 (sibling files must not trigger ingestion)", got)
	}
}

func TestWatcherWorkbookMayAppearLater(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "future.xlsx")

	runner := &scriptedRunner{}
	w, err := NewWatcher(path, runner, quietLogger())
	if err != nil {
		t.Fatalf("NewWatcher on absent workbook: %v", err)
	}
	w.SetDebounce(30 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	waitFor(t, "startup catch-up", func() bool { return runner.count() == 1 })

	if err := os.WriteFile(path, []byte("now it exists"), 0o644); err != nil {
		t.Fatalf("create workbook: %v", err)
	}
	waitFor(t, "run after creation", func() bool { return runner.count() >= 2 })
}

func TestNewWatcherRequiresRunner(t *testing.T) {
	if _, err := NewWatcher("x.xlsx", nil, quietLogger()); err == nil {
		t.Fatal("nil runner accepted")
	}
}

func TestNewWatcherMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "no", "such", "retail.xlsx")
	if _, err := NewWatcher(path, &scriptedRunner{}, quietLogger()); err == nil {
		t.Fatal("missing directory accepted")
	}
}
