package notifications

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrMissingAccountID     = errors.New("account ID is required")
	ErrMissingType          = errors.New("notification type is required")
	ErrDeliveryQueueFull    = errors.New("notification delivery queue is full")
	ErrDelivererClosed      = errors.New("notification deliverer is closed")
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Create stores notif unless it carries a DedupeKey already used by the
	// same account. It reports whether a row was written, in one atomic step.
	Create(ctx context.Context, notif Notification) (bool, error)

	// Get retrieves a single notification.
	Get(ctx context.Context, accountID, notifID string) (*Notification, error)

	// List returns notifications for an account, newest first.
	List(ctx context.Context, accountID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks notification(s) as read.
	MarkRead(ctx context.Context, accountID string, notifIDs ...string) error

	// Dismiss sets the dismissal flag. Returns ErrNotificationNotFound when the
	// account has no such notification.
	Dismiss(ctx context.Context, accountID, notifID string) error

	// CountUnread returns the number of unread, undismissed notifications.
	CountUnread(ctx context.Context, accountID string) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit            int        // Maximum number of notifications to return (0 = no limit)
	Offset           int        // Number of notifications to skip for pagination
	OnlyUnread       bool       // When true, only return unread notifications
	IncludeDismissed bool       // When true, dismissed notifications are returned too
	Types            []Type     // If specified, only return notifications of these types
	Since            *time.Time // If specified, only return notifications created after this time
}
