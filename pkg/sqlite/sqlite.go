// Package sqlite opens an embedded SQLite database through the pure-Go
// modernc.org/sqlite driver, for single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var (
	ErrEmptyPath         = errors.New("sqlite: database path is required")
	ErrFailedToOpen      = errors.New("sqlite: failed to open database")
	ErrHealthcheckFailed = errors.New("sqlite: healthcheck failed")
)

// Config holds SQLite settings.
type Config struct {
	Path        string `env:"SQLITE_PATH" envDefault:"data/engine.db"`
	BusyTimeout int    `env:"SQLITE_BUSY_TIMEOUT_MS" envDefault:"30000"`
}

// Open opens (creating if needed) the database at cfg.Path in WAL mode.
// Writers are serialized through a single connection so SQLite never reports
// SQLITE_BUSY to callers under concurrent use.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Join(ErrFailedToOpen, err)
		}
	}

	dsn := cfg.Path + "?" + url.Values{
		"_pragma": []string{
			fmt.Sprintf("busy_timeout(%d)", cfg.BusyTimeout),
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Join(ErrFailedToOpen, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Join(ErrFailedToOpen, err)
	}
	return db, nil
}

// Healthcheck returns a readiness probe for db.
func Healthcheck(db *sql.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
