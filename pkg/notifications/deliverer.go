package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
)

// Deliverer handles real-time notification delivery.
type Deliverer interface {
	// Deliver pushes a stored notification to the account's live channels.
	Deliver(ctx context.Context, notif Notification) error
}

// MultiDeliverer combines multiple delivery channels.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// MultiDelivererOption configures a MultiDeliverer.
type MultiDelivererOption func(*MultiDeliverer)

// WithMultiDelivererLogger sets the logger for the MultiDeliverer.
func WithMultiDelivererLogger(logger *slog.Logger) MultiDelivererOption {
	return func(m *MultiDeliverer) {
		m.logger = logger
	}
}

// NewMultiDeliverer creates a new multi-channel deliverer.
func NewMultiDeliverer(deliverers []Deliverer, opts ...MultiDelivererOption) *MultiDeliverer {
	m := &MultiDeliverer{
		deliverers: deliverers,
		logger:     slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Deliver sends notification through all configured channels. A failing
// channel is logged and skipped.
func (m *MultiDeliverer) Deliver(ctx context.Context, notif Notification) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, notif); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "Failed to deliver notification",
				slog.String("notification_id", notif.ID),
				logger.AccountID(notif.AccountID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpDeliverer is a deliverer that does nothing.
// Useful for testing or when real-time delivery is not needed.
type NoOpDeliverer struct{}

func (n *NoOpDeliverer) Deliver(ctx context.Context, notif Notification) error {
	return nil
}

// RedisDeliverer publishes notifications as JSON on a per-account Redis
// channel, "<prefix>:<accountID>". Any process subscribed to that channel
// (an SSE or WebSocket edge) can forward them to the browser.
type RedisDeliverer struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDeliverer creates a deliverer publishing through client. An empty
// prefix defaults to "notifications".
func NewRedisDeliverer(client redis.UniversalClient, prefix string) *RedisDeliverer {
	if prefix == "" {
		prefix = "notifications"
	}
	return &RedisDeliverer{client: client, prefix: prefix}
}

// Channel returns the channel an account's notifications are published on.
func (d *RedisDeliverer) Channel(accountID string) string {
	return d.prefix + ":" + accountID
}

func (d *RedisDeliverer) Deliver(ctx context.Context, notif Notification) error {
	payload, err := json.Marshal(notif)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := d.client.Publish(ctx, d.Channel(notif.AccountID), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}
