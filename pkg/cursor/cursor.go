// Package cursor persists the "last successfully ingested date" checkpoint.
//
// A cursor is a single calendar date. It is absent on first run, read at
// the start of each run, and overwritten only after the ingestion for a
// date has fully succeeded. It only ever moves forward; there is no
// locking because the store assumes a single sequential invoker.
package cursor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lakeseed/lakeseed/pkg/errors"
)

// DateLayout is the wire format of a cursor value.
const DateLayout = "2006-01-02"

// Epoch is returned by Read when no cursor exists. It is the day before
// the first invoice day of the Online Retail II dataset, so the first
// automatic ingestion run targets 2010-12-01.
var Epoch = time.Date(2010, time.November, 30, 0, 0, 0, 0, time.UTC)

// Store persists and advances the cursor.
type Store interface {
	// Read returns the last committed date, or the epoch default when no
	// cursor exists. Absence is a valid initial state, not an error.
	Read(ctx context.Context) (time.Time, error)

	// Advance overwrites the cursor with date. It must be called only
	// after the corresponding ingestion has fully succeeded, and rejects
	// dates before the current value.
	Advance(ctx context.Context, date time.Time) error

	// Set overwrites the cursor unconditionally. Unlike Advance it
	// accepts moves in either direction; operators use it to replay a
	// range or skip ahead.
	Set(ctx context.Context, date time.Time) error

	// Reset deletes the cursor so Read returns the epoch again.
	Reset(ctx context.Context) error

	// Name identifies the backend for logging.
	Name() string
}

// Normalize truncates a time to its calendar date in UTC.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, errors.InvalidDate(s)
	}
	return t, nil
}

// FormatDate renders a date in the cursor wire format.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// FileStore keeps the cursor as one ISO date string in a flat file.
type FileStore struct {
	path  string
	epoch time.Time
}

// NewFileStore creates a file-backed cursor store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, epoch: Epoch}
}

// SetEpoch overrides the date returned when no cursor exists.
func (s *FileStore) SetEpoch(epoch time.Time) *FileStore {
	s.epoch = Normalize(epoch)
	return s
}

// Name returns the backend name.
func (s *FileStore) Name() string {
	return "file"
}

// Path returns the cursor file location.
func (s *FileStore) Path() string {
	return s.path
}

// Read returns the stored date, or the epoch when the file is absent.
func (s *FileStore) Read(ctx context.Context) (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.epoch, nil
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, errors.CodeCursorRead, "failed to read cursor file").
			WithContext("path", s.path)
	}

	date, perr := ParseDate(string(data))
	if perr != nil {
		return time.Time{}, errors.Wrap(perr, errors.CodeCursorRead, "cursor file is corrupt").
			WithContext("path", s.path)
	}
	return date, nil
}

// Advance overwrites the cursor. Backward movement is rejected; use Set
// for operator overrides.
func (s *FileStore) Advance(ctx context.Context, date time.Time) error {
	date = Normalize(date)

	current, err := s.Read(ctx)
	if err != nil {
		return err
	}
	if date.Before(current) {
		return errors.CursorRegressed(FormatDate(current), FormatDate(date))
	}

	return s.write(date)
}

// Set overwrites the cursor unconditionally. Intended for operator use
// (manual backfill positioning), not for the ingestion driver.
func (s *FileStore) Set(ctx context.Context, date time.Time) error {
	return s.write(Normalize(date))
}

// Reset removes the cursor, restoring the initial absent state.
func (s *FileStore) Reset(ctx context.Context) error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to reset cursor").
			WithContext("path", s.path)
	}
	return nil
}

// write persists atomically: temp file in the same directory, then rename.
func (s *FileStore) write(date time.Time) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to create cursor directory").
			WithContext("dir", dir)
	}

	tmp := fmt.Sprintf("%s.tmp.%d", s.path, os.Getpid())
	if err := os.WriteFile(tmp, []byte(FormatDate(date)), 0644); err != nil {
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to write cursor").
			WithContext("path", tmp)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, errors.CodeCursorAdvance, "failed to commit cursor").
			WithContext("path", s.path)
	}
	return nil
}

// Verify interface compliance
var _ Store = (*FileStore)(nil)
