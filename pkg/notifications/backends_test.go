package notifications_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
)

func TestPostgresStorage(t *testing.T) {
	url := os.Getenv("TEST_PG_CONN_URL")
	if url == "" {
		t.Skip("TEST_PG_CONN_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			account_id TEXT NOT NULL,
			type TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			metadata JSONB,
			dedupe_key TEXT,
			dismissed BOOLEAN NOT NULL DEFAULT FALSE,
			dismissed_at TIMESTAMPTZ,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS notifications_dedupe_idx
			ON notifications (account_id, dedupe_key) WHERE dedupe_key IS NOT NULL`,
	} {
		_, err = pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	r := notifications.NewRecorder(notifications.NewPostgresStorage(pool), nil,
		notifications.WithRecorderLogger(logger.Discard()))
	account := "acct-" + uuid.NewString()

	t.Run("dedupe key writes once", func(t *testing.T) {
		n, created, err := r.Record(ctx, expiredEntry(account))
		require.NoError(t, err)
		assert.True(t, created)

		stored, err := r.Get(ctx, account, n.ID)
		require.NoError(t, err)
		assert.Equal(t, notifications.TypeTrialExpired, stored.Type)
		assert.Equal(t, "pro", stored.Metadata["plan"])

		_, created, err = r.Record(ctx, expiredEntry(account))
		require.NoError(t, err)
		assert.False(t, created)
	})

	t.Run("read and dismiss", func(t *testing.T) {
		entry := notifications.Entry{AccountID: account, Type: notifications.TypeReminderSent, Title: "Reminder sent"}
		n, created, err := r.Record(ctx, entry)
		require.NoError(t, err)
		require.True(t, created)

		count, err := r.CountUnread(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		require.NoError(t, r.MarkRead(ctx, account, n.ID))
		count, err = r.CountUnread(ctx, account)
		require.NoError(t, err)
		assert.Equal(t, 1, count)

		require.NoError(t, r.Dismiss(ctx, account, n.ID))
		list, err := r.List(ctx, account, notifications.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, notifications.TypeTrialExpired, list[0].Type)

		list, err = r.List(ctx, account, notifications.ListOptions{IncludeDismissed: true})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		assert.ErrorIs(t, r.Dismiss(ctx, "acct-other", n.ID), notifications.ErrNotificationNotFound)
	})
}

func TestRedisDeliverer(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	d := notifications.NewRedisDeliverer(client, "notifications-test")
	account := "acct-" + uuid.NewString()

	sub := client.Subscribe(ctx, d.Channel(account))
	t.Cleanup(func() { _ = sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Deliver(ctx, notifications.Notification{
		ID:        "n-1",
		AccountID: account,
		Type:      notifications.TypeQuotaNearLimit,
		Title:     "You are close to your invoice limit",
	}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)

	var got notifications.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "n-1", got.ID)
	assert.Equal(t, notifications.TypeQuotaNearLimit, got.Type)
}
