package clickhouse

import (
	"context"
	"fmt"
	"time"

	"solana-sniper/internal/domain"
	"solana-sniper/internal/storage"
)

// AttemptAnalyticsStore writes terminal execution attempts to ClickHouse for
// latency and outcome analytics. Append-only; duplicates are collapsed by the
// ReplacingMergeTree on attempt_id.
type AttemptAnalyticsStore struct {
	conn *Conn
}

// NewAttemptAnalyticsStore creates a new ClickHouse attempt analytics store.
func NewAttemptAnalyticsStore(conn *Conn) *AttemptAnalyticsStore {
	return &AttemptAnalyticsStore{conn: conn}
}

// Insert appends a terminal attempt row.
func (s *AttemptAnalyticsStore) Insert(ctx context.Context, attempt *domain.ExecutionAttempt) error {
	if attempt == nil || attempt.AttemptID == "" {
		return storage.ErrInvalidInput
	}

	err := s.conn.Exec(ctx, `
		INSERT INTO execution_attempts
			(attempt_id, pool, base_mint, outcome, retries, tx_signature, last_error, score, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		attempt.AttemptID,
		attempt.Pool,
		attempt.BaseMint,
		string(attempt.Outcome),
		int32(attempt.Retries),
		attempt.TxSignature,
		attempt.LastError,
		attempt.Score,
		attempt.StartedAt,
		attempt.FinishedAt,
		attempt.FinishedAt-attempt.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt %s: %w", attempt.AttemptID, err)
	}
	return nil
}

// InsertBulk appends multiple attempt rows in one batch.
func (s *AttemptAnalyticsStore) InsertBulk(ctx context.Context, attempts []*domain.ExecutionAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO execution_attempts
			(attempt_id, pool, base_mint, outcome, retries, tx_signature, last_error, score, started_at, finished_at, duration_ms)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, a := range attempts {
		if a == nil || a.AttemptID == "" {
			return storage.ErrInvalidInput
		}
		err := batch.Append(
			a.AttemptID,
			a.Pool,
			a.BaseMint,
			string(a.Outcome),
			int32(a.Retries),
			a.TxSignature,
			a.LastError,
			a.Score,
			a.StartedAt,
			a.FinishedAt,
			a.FinishedAt-a.StartedAt,
		)
		if err != nil {
			return fmt.Errorf("append attempt %s: %w", a.AttemptID, err)
		}
	}

	return batch.Send()
}

// OutcomeStats summarizes attempts for one outcome over a window.
type OutcomeStats struct {
	Outcome       domain.Outcome
	Count         uint64
	AvgDurationMs float64
	P95DurationMs float64
}

// OutcomeStatsSince computes per-outcome counts and duration quantiles for
// attempts finished after since.
func (s *AttemptAnalyticsStore) OutcomeStatsSince(ctx context.Context, since time.Time) ([]OutcomeStats, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT
			outcome,
			count() AS cnt,
			avg(duration_ms) AS avg_ms,
			quantile(0.95)(duration_ms) AS p95_ms
		FROM execution_attempts
		WHERE finished_at >= ?
		GROUP BY outcome
		ORDER BY outcome
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query outcome stats: %w", err)
	}
	defer rows.Close()

	var stats []OutcomeStats
	for rows.Next() {
		var st OutcomeStats
		var outcome string
		if err := rows.Scan(&outcome, &st.Count, &st.AvgDurationMs, &st.P95DurationMs); err != nil {
			return nil, err
		}
		st.Outcome = domain.Outcome(outcome)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}
