package memory

import (
	"context"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// StateStore is an in-memory implementation of storage.StateStore.
// Checkpoint is a no-op; state does not survive the process. Intended for
// tests and dry runs.
type StateStore struct {
	mu       sync.Mutex
	cursor   storage.Cursor
	seen     map[string]bool
	attempts []*domain.ExecutionAttempt
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		seen: make(map[string]bool),
	}
}

// Load returns the current cursor. There is nothing to read from disk.
func (s *StateStore) Load(_ context.Context) (storage.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// Advance moves the cursor forward; backward moves are ignored.
func (s *StateStore) Advance(_ context.Context, cursor storage.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cursor.Before(cursor) {
		s.cursor = cursor
	}
	return nil
}

// Cursor returns the current cursor.
func (s *StateStore) Cursor(_ context.Context) (storage.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// MarkSeen inserts pool into the seen-set. Returns true on first insert.
func (s *StateStore) MarkSeen(_ context.Context, pool string) (bool, error) {
	if pool == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen[pool] {
		return false, nil
	}
	s.seen[pool] = true
	return true, nil
}

// Seen reports membership without inserting.
func (s *StateStore) Seen(_ context.Context, pool string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[pool], nil
}

// RecordAttempt appends a terminal attempt record.
func (s *StateStore) RecordAttempt(_ context.Context, attempt *domain.ExecutionAttempt) error {
	if attempt == nil || attempt.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, attempt)
	return nil
}

// Checkpoint is a no-op for the in-memory store.
func (s *StateStore) Checkpoint(_ context.Context) error {
	return nil
}

// Attempts returns a copy of all recorded attempts, oldest first.
func (s *StateStore) Attempts() []*domain.ExecutionAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.ExecutionAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}
