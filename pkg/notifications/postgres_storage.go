package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gnosis118/paper-n-print-sub004/pkg/pg"
)

// DB is the subset of *pgxpool.Pool the storage needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const notificationColumns = `id, account_id, type, title, message, metadata, dedupe_key,
	dismissed, dismissed_at, read, read_at, created_at`

const (
	// The partial unique index on (account_id, dedupe_key) turns a repeated
	// key into a no-op insert.
	insertNotificationSQL = `INSERT INTO notifications
		(id, account_id, type, title, message, metadata, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`

	getNotificationSQL = `SELECT ` + notificationColumns + ` FROM notifications
		WHERE account_id = $1 AND id = $2`

	markReadSQL = `UPDATE notifications SET read = TRUE, read_at = now()
		WHERE account_id = $1 AND id = ANY($2) AND NOT read`

	dismissSQL = `UPDATE notifications
		SET dismissed = TRUE, dismissed_at = COALESCE(dismissed_at, now())
		WHERE account_id = $1 AND id = $2`

	countUnreadSQL = `SELECT count(*) FROM notifications
		WHERE account_id = $1 AND NOT read AND NOT dismissed`
)

// PostgresStorage persists notifications in the notifications table.
type PostgresStorage struct {
	db DB
}

func NewPostgresStorage(db DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

func (s *PostgresStorage) Create(ctx context.Context, notif Notification) (bool, error) {
	if notif.AccountID == "" {
		return false, ErrMissingAccountID
	}

	var dedupe *string
	if notif.DedupeKey != "" {
		dedupe = &notif.DedupeKey
	}
	metadata := notif.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	tag, err := s.db.Exec(ctx, insertNotificationSQL,
		notif.ID, notif.AccountID, string(notif.Type), notif.Title, notif.Message,
		metadata, dedupe, notif.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStorage) Get(ctx context.Context, accountID, notifID string) (*Notification, error) {
	n, err := scanNotification(s.db.QueryRow(ctx, getNotificationSQL, accountID, notifID))
	if pg.IsNotFoundError(err) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) List(ctx context.Context, accountID string, opts ListOptions) ([]Notification, error) {
	var (
		where = []string{"account_id = $1"}
		args  = []any{accountID}
	)
	if !opts.IncludeDismissed {
		where = append(where, "NOT dismissed")
	}
	if opts.OnlyUnread {
		where = append(where, "NOT read")
	}
	if len(opts.Types) > 0 {
		types := make([]string, 0, len(opts.Types))
		for _, t := range opts.Types {
			types = append(types, string(t))
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if opts.Since != nil {
		args = append(args, *opts.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) MarkRead(ctx context.Context, accountID string, notifIDs ...string) error {
	if len(notifIDs) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, markReadSQL, accountID, notifIDs); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Dismiss(ctx context.Context, accountID, notifID string) error {
	tag, err := s.db.Exec(ctx, dismissSQL, accountID, notifID)
	if err != nil {
		return fmt.Errorf("dismiss notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStorage) CountUnread(ctx context.Context, accountID string) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, countUnreadSQL, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n      Notification
		typ    string
		dedupe *string
	)
	if err := row.Scan(
		&n.ID, &n.AccountID, &typ, &n.Title, &n.Message, &n.Metadata, &dedupe,
		&n.Dismissed, &n.DismissedAt, &n.Read, &n.ReadAt, &n.CreatedAt,
	); err != nil {
		return nil, err
	}
	n.Type = Type(typ)
	if dedupe != nil {
		n.DedupeKey = *dedupe
	}
	return &n, nil
}
