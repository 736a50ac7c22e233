package cursor

import (
	"context"
	"sync"
	"time"

	"github.com/lakeseed/lakeseed/pkg/errors"
)

// MemoryStore keeps the cursor in memory. Used by tests and dry runs.
type MemoryStore struct {
	mu      sync.Mutex
	date    time.Time
	present bool
	epoch   time.Time
}

// NewMemoryStore creates an in-memory cursor store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{epoch: Epoch}
}

// SetEpoch overrides the date returned when no cursor exists.
func (s *MemoryStore) SetEpoch(epoch time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch = Normalize(epoch)
	return s
}

// Name returns the backend name.
func (s *MemoryStore) Name() string {
	return "memory"
}

// Read returns the stored date, or the epoch when unset.
func (s *MemoryStore) Read(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return s.epoch, nil
	}
	return s.date, nil
}

// Advance overwrites the cursor, rejecting backward movement.
func (s *MemoryStore) Advance(ctx context.Context, date time.Time) error {
	date = Normalize(date)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.epoch
	if s.present {
		current = s.date
	}
	if date.Before(current) {
		return errors.CursorRegressed(FormatDate(current), FormatDate(date))
	}

	s.date = date
	s.present = true
	return nil
}

// Set overwrites the cursor unconditionally.
func (s *MemoryStore) Set(ctx context.Context, date time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.date = Normalize(date)
	s.present = true
	return nil
}

// Reset restores the initial absent state.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present = false
	s.date = time.Time{}
	return nil
}

// Verify interface compliance
var _ Store = (*MemoryStore)(nil)
