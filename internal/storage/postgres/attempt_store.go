package postgres

import (
	"context"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptStore is a PostgreSQL implementation of storage.AttemptStore.
// Terminal execution attempts are written once and never updated.
type AttemptStore struct {
	pool *Pool
}

// NewAttemptStore creates a new PostgreSQL attempt store.
func NewAttemptStore(pool *Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Insert adds a terminal attempt. Returns ErrDuplicateKey if attempt_id exists.
func (s *AttemptStore) Insert(ctx context.Context, attempt *domain.ExecutionAttempt) error {
	if attempt == nil || attempt.AttemptID == "" {
		return storage.ErrInvalidInput
	}
	if !attempt.Outcome.Terminal() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_attempts
			(attempt_id, pool, base_mint, outcome, retries, tx_signature, last_error, score, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		attempt.AttemptID,
		attempt.Pool,
		attempt.BaseMint,
		string(attempt.Outcome),
		attempt.Retries,
		attempt.TxSignature,
		attempt.LastError,
		attempt.Score,
		attempt.StartedAt,
		attempt.FinishedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return err
	}
	return nil
}

const attemptColumns = `attempt_id, pool, base_mint, outcome, retries, tx_signature, last_error, score, started_at, finished_at`

// GetByPool retrieves all attempts for a pool, newest first.
func (s *AttemptStore) GetByPool(ctx context.Context, pool string) ([]*domain.ExecutionAttempt, error) {
	if pool == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM execution_attempts
		WHERE pool = $1
		ORDER BY started_at DESC
	`, pool)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// GetByOutcome retrieves attempts with the given outcome, newest first.
func (s *AttemptStore) GetByOutcome(ctx context.Context, outcome domain.Outcome, limit int) ([]*domain.ExecutionAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+`
		FROM execution_attempts
		WHERE outcome = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, string(outcome), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAttempts(rows)
}

// CountByOutcome returns the number of attempts per terminal outcome.
func (s *AttemptStore) CountByOutcome(ctx context.Context) (map[domain.Outcome]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT outcome, COUNT(*)
		FROM execution_attempts
		GROUP BY outcome
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Outcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[domain.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// rowScanner abstracts pgx.Rows for scanning.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanAttempts(rows rowScanner) ([]*domain.ExecutionAttempt, error) {
	var attempts []*domain.ExecutionAttempt
	for rows.Next() {
		var a domain.ExecutionAttempt
		var outcome string
		err := rows.Scan(
			&a.AttemptID,
			&a.Pool,
			&a.BaseMint,
			&outcome,
			&a.Retries,
			&a.TxSignature,
			&a.LastError,
			&a.Score,
			&a.StartedAt,
			&a.FinishedAt,
		)
		if err != nil {
			return nil, err
		}
		a.Outcome = domain.Outcome(outcome)
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}
