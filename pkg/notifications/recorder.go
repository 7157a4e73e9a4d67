package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
)

// Recorder persists notifications and hands them to a Deliverer.
type Recorder struct {
	storage   Storage
	deliverer Deliverer
	logger    *slog.Logger
	now       func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderLogger sets the logger for the Recorder.
func WithRecorderLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRecorderClock overrides the creation timestamp source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a new notification recorder. A nil deliverer disables
// real-time delivery.
func NewRecorder(storage Storage, deliverer Deliverer, opts ...RecorderOption) *Recorder {
	if storage == nil {
		panic("notifications: storage is required")
	}
	if deliverer == nil {
		deliverer = &NoOpDeliverer{}
	}

	r := &Recorder{
		storage:   storage,
		deliverer: deliverer,
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Record stores entry and delivers it best-effort. When the entry carries a
// DedupeKey the account has already used, nothing is written and created is
// false. Delivery failures are logged and never fail Record.
func (r *Recorder) Record(ctx context.Context, entry Entry) (Notification, bool, error) {
	if entry.AccountID == "" {
		return Notification{}, false, ErrMissingAccountID
	}
	if entry.Type == "" {
		return Notification{}, false, ErrMissingType
	}

	notif := Notification{
		ID:        uuid.New().String(),
		AccountID: entry.AccountID,
		Type:      entry.Type,
		Title:     entry.Title,
		Message:   entry.Message,
		Metadata:  entry.Metadata,
		DedupeKey: entry.DedupeKey,
		CreatedAt: r.now().UTC(),
	}

	// Store first to ensure persistence even if real-time delivery fails
	created, err := r.storage.Create(ctx, notif)
	if err != nil {
		return Notification{}, false, fmt.Errorf("failed to store notification: %w", err)
	}
	if !created {
		metrics.NotificationsRecordedTotal.WithLabelValues(string(entry.Type), "deduplicated").Inc()
		r.logger.LogAttrs(ctx, slog.LevelDebug, "notification deduplicated",
			logger.Component("notifications"),
			logger.AccountID(entry.AccountID),
			logger.EventType(string(entry.Type)),
			slog.String("dedupe_key", entry.DedupeKey),
		)
		return Notification{}, false, nil
	}
	metrics.NotificationsRecordedTotal.WithLabelValues(string(entry.Type), "created").Inc()

	if err := r.deliverer.Deliver(ctx, notif); err != nil {
		r.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to deliver notification, but it was stored successfully",
			slog.String("notification_id", notif.ID),
			logger.AccountID(notif.AccountID),
			logger.Error(err),
		)
	}

	return notif, true, nil
}

func (r *Recorder) Get(ctx context.Context, accountID, notifID string) (*Notification, error) {
	return r.storage.Get(ctx, accountID, notifID)
}

func (r *Recorder) List(ctx context.Context, accountID string, opts ListOptions) ([]Notification, error) {
	return r.storage.List(ctx, accountID, opts)
}

func (r *Recorder) MarkRead(ctx context.Context, accountID string, notifIDs ...string) error {
	return r.storage.MarkRead(ctx, accountID, notifIDs...)
}

// Dismiss hides a notification. Its dedupe key stays reserved, so the same
// notice is never raised again for the account.
func (r *Recorder) Dismiss(ctx context.Context, accountID, notifID string) error {
	return r.storage.Dismiss(ctx, accountID, notifID)
}

func (r *Recorder) CountUnread(ctx context.Context, accountID string) (int, error) {
	return r.storage.CountUnread(ctx, accountID)
}
