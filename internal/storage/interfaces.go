package storage

import (
	"context"

	"solana-sniper/internal/domain"
)

// Cursor is the durable bookmark of ingestion progress.
// It is opaque to everything except the ingestor: (slot, signature) of the
// last entry whose processing was acknowledged.
type Cursor struct {
	Slot      int64  `json:"slot"`
	Signature string `json:"signature"`
}

// IsZero reports whether the cursor is the cold-start position.
func (c Cursor) IsZero() bool {
	return c.Slot == 0 && c.Signature == ""
}

// Before reports whether c is behind other. Slots order cursors; within a
// slot any new signature counts as forward progress, trusting arrival order.
func (c Cursor) Before(other Cursor) bool {
	if c.Slot != other.Slot {
		return c.Slot < other.Slot
	}
	return c.Signature != other.Signature
}

// StateStore owns the durable cursor/seen-set pair and the terminal record of
// execution attempts. All mutation of shared indexing state goes through this
// interface; implementations serialize concurrent calls.
type StateStore interface {
	// Load reads persisted state into the store and returns the cursor.
	// Cold start (no state yet) returns a zero cursor and no error.
	// A present-but-unparseable state yields ErrCorruptState.
	Load(ctx context.Context) (Cursor, error)

	// Advance moves the in-memory cursor forward. Calls that would move the
	// cursor backward are ignored; the persisted cursor never rewinds.
	Advance(ctx context.Context, cursor Cursor) error

	// Cursor returns the current in-memory cursor.
	Cursor(ctx context.Context) (Cursor, error)

	// MarkSeen returns true if pool was newly inserted into the seen-set
	// (caller proceeds), false if already present (caller must skip).
	// The insertion is reflected in the next Checkpoint.
	MarkSeen(ctx context.Context, pool string) (bool, error)

	// Seen reports whether pool is in the seen-set without inserting it.
	Seen(ctx context.Context, pool string) (bool, error)

	// RecordAttempt appends a terminal execution attempt record.
	RecordAttempt(ctx context.Context, attempt *domain.ExecutionAttempt) error

	// Checkpoint atomically persists the current cursor, seen-set and
	// retained attempt records. A crash mid-write never leaves a truncated
	// file; the previous valid state stays readable until the replace lands.
	Checkpoint(ctx context.Context) error
}

// AttemptStore is an audit sink for terminal execution attempts.
// Unlike StateStore it is queryable and optional at runtime; it is never
// consulted for dedup decisions.
type AttemptStore interface {
	// Insert adds a terminal attempt. Returns ErrDuplicateKey if attempt_id exists.
	Insert(ctx context.Context, attempt *domain.ExecutionAttempt) error

	// GetByPool retrieves all attempts for a pool, newest first.
	GetByPool(ctx context.Context, pool string) ([]*domain.ExecutionAttempt, error)

	// GetByOutcome retrieves attempts with the given terminal outcome, newest first.
	GetByOutcome(ctx context.Context, outcome domain.Outcome, limit int) ([]*domain.ExecutionAttempt, error)

	// CountByOutcome returns the number of attempts per terminal outcome.
	CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error)
}
