package statefile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexer_state.json")
	s := New(path, opts...)
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return s
}

func TestStore_ColdStart(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "indexer_state.json"))

	cursor, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on missing file should cold-start, got: %v", err)
	}
	if !cursor.IsZero() {
		t.Errorf("cold start cursor should be zero, got %+v", cursor)
	}
}

func TestStore_CheckpointLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "indexer_state.json")

	s := New(path)
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cursor := storage.Cursor{Slot: 291837465, Signature: "SigABC"}
	if err := s.Advance(ctx, cursor); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	for _, pool := range []string{"PoolA", "PoolB", "PoolC"} {
		if _, err := s.MarkSeen(ctx, pool); err != nil {
			t.Fatalf("MarkSeen failed: %v", err)
		}
	}
	attempt := &domain.ExecutionAttempt{
		AttemptID: "att-1",
		Pool:      "PoolA",
		Outcome:   domain.OutcomeFilled,
		Retries:   2,
		Score:     0.75,
	}
	if err := s.RecordAttempt(ctx, attempt); err != nil {
		t.Fatalf("RecordAttempt failed: %v", err)
	}
	if err := s.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	// Fresh store over the same file must observe the snapshot exactly.
	s2 := New(path)
	got, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load (2) failed: %v", err)
	}
	if got != cursor {
		t.Errorf("cursor mismatch: expected %+v, got %+v", cursor, got)
	}
	for _, pool := range []string{"PoolA", "PoolB", "PoolC"} {
		seen, err := s2.Seen(ctx, pool)
		if err != nil {
			t.Fatalf("Seen failed: %v", err)
		}
		if !seen {
			t.Errorf("pool %s should survive the round trip", pool)
		}
	}
	if seen, _ := s2.Seen(ctx, "PoolD"); seen {
		t.Error("PoolD was never marked seen")
	}
}

func TestStore_CheckpointEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "indexer_state.json")

	s := New(path)
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := s.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint of empty state failed: %v", err)
	}

	s2 := New(path)
	cursor, err := s2.Load(ctx)
	if err != nil {
		t.Fatalf("Load (2) failed: %v", err)
	}
	if !cursor.IsZero() {
		t.Errorf("expected zero cursor, got %+v", cursor)
	}
}

func TestStore_CorruptState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer_state.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	s := New(path)
	_, err := s.Load(context.Background())
	if !errors.Is(err, storage.ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got: %v", err)
	}
}

func TestStore_MarkSeenOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first, err := s.MarkSeen(ctx, "PoolX")
	if err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if !first {
		t.Error("first MarkSeen should return true")
	}

	second, err := s.MarkSeen(ctx, "PoolX")
	if err != nil {
		t.Fatalf("MarkSeen (2) failed: %v", err)
	}
	if second {
		t.Error("second MarkSeen for same pool should return false")
	}
}

func TestStore_MarkSeenConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	const goroutines = 32
	var wg sync.WaitGroup
	inserted := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.MarkSeen(ctx, "ContestedPool")
			if err != nil {
				t.Errorf("MarkSeen failed: %v", err)
				return
			}
			inserted <- ok
		}()
	}
	wg.Wait()
	close(inserted)

	wins := 0
	for ok := range inserted {
		if ok {
			wins++
		}
	}
	if wins != 1 {
		t.Errorf("exactly one concurrent MarkSeen should win, got %d", wins)
	}
}

func TestStore_CursorNeverRewinds(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.Advance(ctx, storage.Cursor{Slot: 500, Signature: "Sig500"}); err != nil {
		t.Fatalf("Advance failed: %v", err)
	}
	if err := s.Advance(ctx, storage.Cursor{Slot: 400, Signature: "Sig400"}); err != nil {
		t.Fatalf("Advance (backward) failed: %v", err)
	}

	cursor, err := s.Cursor(ctx)
	if err != nil {
		t.Fatalf("Cursor failed: %v", err)
	}
	if cursor.Slot != 500 {
		t.Errorf("cursor rewound: expected slot 500, got %d", cursor.Slot)
	}
}

func TestStore_AtomicReplaceKeepsPreviousFileValid(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "indexer_state.json")

	s := New(path)
	if _, err := s.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := s.MarkSeen(ctx, "PoolA"); err != nil {
		t.Fatalf("MarkSeen failed: %v", err)
	}
	if err := s.Checkpoint(ctx); err != nil {
		t.Fatalf("Checkpoint failed: %v", err)
	}

	// Every checkpoint must leave a complete, parseable JSON document and no
	// temp debris behind.
	for i := 0; i < 5; i++ {
		if _, err := s.MarkSeen(ctx, "Pool"+string(rune('B'+i))); err != nil {
			t.Fatalf("MarkSeen failed: %v", err)
		}
		if err := s.Checkpoint(ctx); err != nil {
			t.Fatalf("Checkpoint %d failed: %v", i, err)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read state file: %v", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			t.Fatalf("state file not valid JSON after checkpoint %d: %v", i, err)
		}
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the state file in dir, found %d entries", len(entries))
	}
}

func TestStore_AttemptHistoryBounded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, WithMaxAttempts(3))

	for i := 0; i < 5; i++ {
		att := &domain.ExecutionAttempt{
			AttemptID: "att-" + string(rune('0'+i)),
			Pool:      "Pool",
			Outcome:   domain.OutcomeFailed,
		}
		if err := s.RecordAttempt(ctx, att); err != nil {
			t.Fatalf("RecordAttempt failed: %v", err)
		}
	}

	s.mu.Lock()
	n := len(s.attempts)
	newest := s.attempts[0].AttemptID
	s.mu.Unlock()

	if n != 3 {
		t.Errorf("expected 3 retained attempts, got %d", n)
	}
	if newest != "att-4" {
		t.Errorf("newest attempt should be retained first, got %s", newest)
	}
}

func TestStore_RejectsNonTerminalAttempt(t *testing.T) {
	s := newTestStore(t)

	err := s.RecordAttempt(context.Background(), &domain.ExecutionAttempt{
		AttemptID: "att-x",
		Pool:      "Pool",
		Outcome:   domain.Outcome("IN_FLIGHT"),
	})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-terminal outcome, got: %v", err)
	}
}
