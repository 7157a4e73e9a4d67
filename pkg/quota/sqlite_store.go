package quota

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS usage_records (
	identity TEXT NOT NULL,
	window_start INTEGER NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	limit_snapshot INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (identity, window_start)
);`

// Same conditional upsert as consumeSQL, with numbered SQLite parameters.
const sqliteConsumeSQL = `
INSERT INTO usage_records (identity, window_start, count, limit_snapshot, updated_at)
VALUES (?1, ?2, 1, ?3, ?4)
ON CONFLICT (identity, window_start) DO UPDATE
SET count = usage_records.count + 1,
    limit_snapshot = excluded.limit_snapshot,
    updated_at = excluded.updated_at
WHERE ?3 < 0 OR usage_records.count < ?3
RETURNING count`

const sqlitePeekSQL = `SELECT count FROM usage_records WHERE identity = ?1 AND window_start = ?2`

// SQLiteStore keeps usage records in a SQLite database opened with
// modernc.org/sqlite (see pkg/sqlite). Intended for single-node deployments.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates the usage_records table if needed and returns a store.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("init usage_records schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Consume(ctx context.Context, key string, period Period, limit int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if limit == 0 {
		count, err := s.Peek(ctx, key, period)
		return Result{Count: count, Limit: limit}, err
	}

	var count int64
	err := s.db.QueryRowContext(ctx, sqliteConsumeSQL, key, period.Start.Unix(), limit, s.now().Unix()).Scan(&count)
	switch {
	case err == nil:
		return Result{Count: count, Limit: limit, Consumed: true}, nil
	case errors.Is(err, sql.ErrNoRows):
		current, err := s.Peek(ctx, key, period)
		if err != nil {
			return Result{}, err
		}
		return Result{Count: current, Limit: limit}, nil
	default:
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
}

func (s *SQLiteStore) Peek(ctx context.Context, key string, period Period) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	var count int64
	err := s.db.QueryRowContext(ctx, sqlitePeekSQL, key, period.Start.Unix()).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}
	return count, nil
}
