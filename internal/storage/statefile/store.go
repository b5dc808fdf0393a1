// Package statefile persists indexer state as a single JSON document at a
// fixed path. The file is the sole source of truth on restart; every
// checkpoint rewrites it atomically (write-to-temp then rename) so a crash
// mid-write leaves the previous valid file in place.
package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// DefaultMaxAttempts bounds the attempt history retained in the state file.
// Older records are expected to live in the SQL audit store.
const DefaultMaxAttempts = 1000

// Store is a file-backed implementation of storage.StateStore.
// A single mutex serializes all mutation (single-writer discipline).
type Store struct {
	path        string
	maxAttempts int

	mu       sync.Mutex
	cursor   storage.Cursor
	seen     map[string]bool
	attempts []*domain.ExecutionAttempt // newest first
	loaded   bool
}

// document is the on-disk JSON representation.
type document struct {
	Cursor   storage.Cursor             `json:"cursor"`
	Seen     []string                   `json:"seen"`
	Attempts []*domain.ExecutionAttempt `json:"attempts,omitempty"`
}

// Option configures a Store.
type Option func(*Store)

// WithMaxAttempts bounds the retained attempt history.
func WithMaxAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// New creates a state store persisting to path. Call Load before use.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		maxAttempts: DefaultMaxAttempts,
		seen:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load reads the persisted state. A missing file is a cold start: zero
// cursor, empty seen-set. An unreadable or unparseable file is fatal.
func (s *Store) Load(_ context.Context) (storage.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return storage.Cursor{}, nil
		}
		return storage.Cursor{}, fmt.Errorf("read state file %s: %w", s.path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return storage.Cursor{}, fmt.Errorf("%w: %s: %v", storage.ErrCorruptState, s.path, err)
	}

	s.cursor = doc.Cursor
	s.seen = make(map[string]bool, len(doc.Seen))
	for _, id := range doc.Seen {
		s.seen[id] = true
	}
	s.attempts = doc.Attempts
	s.loaded = true

	return s.cursor, nil
}

// Advance moves the cursor forward; backward moves are ignored.
func (s *Store) Advance(_ context.Context, cursor storage.Cursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor.Before(cursor) {
		s.cursor = cursor
	}
	return nil
}

// Cursor returns the current in-memory cursor.
func (s *Store) Cursor(_ context.Context) (storage.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor, nil
}

// MarkSeen inserts pool into the seen-set. Returns true on first insert.
func (s *Store) MarkSeen(_ context.Context, pool string) (bool, error) {
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
func (s *Store) Seen(_ context.Context, pool string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[pool], nil
}

// RecordAttempt prepends a terminal attempt, trimming history to the bound.
func (s *Store) RecordAttempt(_ context.Context, attempt *domain.ExecutionAttempt) error {
	if attempt == nil || attempt.AttemptID == "" {
		return storage.ErrInvalidInput
	}
	if !attempt.Outcome.Terminal() {
		return fmt.Errorf("%w: non-terminal outcome %q", storage.ErrInvalidInput, attempt.Outcome)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts = append([]*domain.ExecutionAttempt{attempt}, s.attempts...)
	if len(s.attempts) > s.maxAttempts {
		s.attempts = s.attempts[:s.maxAttempts]
	}
	return nil
}

// Checkpoint atomically persists the current snapshot.
func (s *Store) Checkpoint(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return fmt.Errorf("checkpoint before load")
	}

	doc := document{
		Cursor:   s.cursor,
		Seen:     make([]string, 0, len(s.seen)),
		Attempts: s.attempts,
	}
	for id := range s.seen {
		doc.Seen = append(doc.Seen, id)
	}

	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return atomicReplace(s.path, data)
}

// atomicReplace writes data to a temp file in the target directory, fsyncs it
// and renames it over path. Rename within one filesystem is atomic, so
// readers always observe either the old or the new complete file.
func atomicReplace(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
