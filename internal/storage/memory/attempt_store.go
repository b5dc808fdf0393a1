package memory

import (
	"context"
	"sort"
	"sync"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore is an in-memory implementation of storage.AttemptStore.
type AttemptStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.ExecutionAttempt
	attempts []*domain.ExecutionAttempt // insertion order
}

// NewAttemptStore creates a new in-memory attempt store.
func NewAttemptStore() *AttemptStore {
	return &AttemptStore{
		byID: make(map[string]*domain.ExecutionAttempt),
	}
}

// Insert adds a terminal attempt. Returns ErrDuplicateKey if attempt_id exists.
func (s *AttemptStore) Insert(_ context.Context, attempt *domain.ExecutionAttempt) error {
	if attempt == nil || attempt.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[attempt.AttemptID]; ok {
		return storage.ErrDuplicateKey
	}

	cp := *attempt
	s.byID[attempt.AttemptID] = &cp
	s.attempts = append(s.attempts, &cp)
	return nil
}

// GetByPool retrieves all attempts for a pool, newest first.
func (s *AttemptStore) GetByPool(_ context.Context, pool string) ([]*domain.ExecutionAttempt, error) {
	if pool == "" {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ExecutionAttempt
	for _, a := range s.attempts {
		if a.Pool == pool {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt > out[j].StartedAt
	})
	return out, nil
}

// GetByOutcome retrieves attempts with the given outcome, newest first.
func (s *AttemptStore) GetByOutcome(_ context.Context, outcome domain.Outcome, limit int) ([]*domain.ExecutionAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.ExecutionAttempt
	for _, a := range s.attempts {
		if a.Outcome == outcome {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt > out[j].StartedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByOutcome returns the number of attempts per terminal outcome.
func (s *AttemptStore) CountByOutcome(_ context.Context) (map[domain.Outcome]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.Outcome]int64)
	for _, a := range s.attempts {
		counts[a.Outcome]++
	}
	return counts, nil
}
