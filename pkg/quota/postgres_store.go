package quota

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// DB is the subset of *pgxpool.Pool and pgx.Tx used by PostgresStore.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// consumeSQL inserts the first row of a window or increments an existing one,
// but only while the stored count is below the limit. When the WHERE clause
// rejects the update no row is returned.
const consumeSQL = `
INSERT INTO usage_records (identity, window_start, count, limit_snapshot, updated_at)
VALUES ($1, $2, 1, $3, now())
ON CONFLICT (identity, window_start) DO UPDATE
SET count = usage_records.count + 1,
    limit_snapshot = EXCLUDED.limit_snapshot,
    updated_at = now()
WHERE $3::bigint < 0 OR usage_records.count < $3::bigint
RETURNING count`

const peekSQL = `SELECT count FROM usage_records WHERE identity = $1 AND window_start = $2`

// PostgresStore keeps usage records in the usage_records table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates a store on top of a pgx pool or transaction.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Consume(ctx context.Context, key string, period Period, limit int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}

	// A zero limit can never be consumed and must not create a row with count 1.
	if limit == 0 {
		count, err := s.Peek(ctx, key, period)
		return Result{Count: count, Limit: limit}, err
	}

	var count int64
	err := s.db.QueryRow(ctx, consumeSQL, key, period.Start, limit).Scan(&count)
	switch {
	case err == nil:
		return Result{Count: count, Limit: limit, Consumed: true}, nil
	case errors.Is(err, pgx.ErrNoRows):
		current, err := s.Peek(ctx, key, period)
		if err != nil {
			return Result{}, err
		}
		return Result{Count: current, Limit: limit}, nil
	default:
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
}

func (s *PostgresStore) Peek(ctx context.Context, key string, period Period) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	var count int64
	err := s.db.QueryRow(ctx, peekSQL, key, period.Start).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return count, nil
}
