package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

func testAttempt(id, pool string, outcome domain.Outcome, startedAt int64) *domain.ExecutionAttempt {
	return &domain.ExecutionAttempt{
		AttemptID:   id,
		Pool:        pool,
		BaseMint:    "MintAddr",
		Outcome:     outcome,
		Retries:     1,
		TxSignature: "TxSig" + id,
		Score:       0.5,
		StartedAt:   startedAt,
		FinishedAt:  startedAt + 250,
	}
}

func TestAttemptStore_InsertAndGetByPool(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAttemptStore(pool)

	require.NoError(t, store.Insert(ctx, testAttempt("a1", "PoolA", domain.OutcomeFailed, 1000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a2", "PoolA", domain.OutcomeFilled, 2000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a3", "PoolB", domain.OutcomeFilled, 3000)))

	attempts, err := store.GetByPool(ctx, "PoolA")
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	// Newest first
	assert.Equal(t, "a2", attempts[0].AttemptID)
	assert.Equal(t, domain.OutcomeFilled, attempts[0].Outcome)
	assert.Equal(t, "a1", attempts[1].AttemptID)
	assert.Equal(t, "TxSiga1", attempts[1].TxSignature)
}

func TestAttemptStore_DuplicateAttemptID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAttemptStore(pool)

	require.NoError(t, store.Insert(ctx, testAttempt("a1", "PoolA", domain.OutcomeFilled, 1000)))

	err := store.Insert(ctx, testAttempt("a1", "PoolA", domain.OutcomeFilled, 1000))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestAttemptStore_RejectsNonTerminal(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAttemptStore(pool)

	att := testAttempt("a1", "PoolA", domain.Outcome("PENDING"), 1000)
	err := store.Insert(ctx, att)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestAttemptStore_GetByOutcome(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAttemptStore(pool)

	require.NoError(t, store.Insert(ctx, testAttempt("a1", "PoolA", domain.OutcomeTimedOut, 1000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a2", "PoolB", domain.OutcomeFilled, 2000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a3", "PoolC", domain.OutcomeTimedOut, 3000)))

	timedOut, err := store.GetByOutcome(ctx, domain.OutcomeTimedOut, 10)
	require.NoError(t, err)
	require.Len(t, timedOut, 2)
	assert.Equal(t, "a3", timedOut[0].AttemptID)

	limited, err := store.GetByOutcome(ctx, domain.OutcomeTimedOut, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestAttemptStore_CountByOutcome(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAttemptStore(pool)

	require.NoError(t, store.Insert(ctx, testAttempt("a1", "PoolA", domain.OutcomeFilled, 1000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a2", "PoolB", domain.OutcomeFilled, 2000)))
	require.NoError(t, store.Insert(ctx, testAttempt("a3", "PoolC", domain.OutcomeSkippedStale, 3000)))

	counts, err := store.CountByOutcome(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[domain.OutcomeFilled])
	assert.Equal(t, int64(1), counts[domain.OutcomeSkippedStale])
}
