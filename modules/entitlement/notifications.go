package entitlement

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/pkg/binder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Inbox is the read side of the notification recorder.
type Inbox interface {
	List(ctx context.Context, accountID string, opts notifications.ListOptions) ([]notifications.Notification, error)
	CountUnread(ctx context.Context, accountID string) (int, error)
	MarkRead(ctx context.Context, accountID string, notifIDs ...string) error
	Dismiss(ctx context.Context, accountID, notifID string) error
}

// NotificationService serves /v1/accounts/{accountID}/notifications.
type NotificationService struct {
	inbox        Inbox
	errorHandler handler.ErrorHandler[handler.Context]
}

func NewNotificationService(inbox Inbox, errorHandler handler.ErrorHandler[handler.Context]) *NotificationService {
	return &NotificationService{inbox: inbox, errorHandler: errorHandler}
}

type ListNotificationsRequest struct {
	AccountID        string   `path:"accountID"`
	Limit            int      `query:"limit"`
	Offset           int      `query:"offset"`
	OnlyUnread       bool     `query:"unread"`
	IncludeDismissed bool     `query:"include_dismissed"`
	Types            []string `query:"type"`
}

type NotificationRequest struct {
	AccountID      string `path:"accountID"`
	NotificationID string `path:"notificationID"`
}

type MarkReadRequest struct {
	AccountID string   `path:"accountID"`
	IDs       []string `json:"ids"`
}

func (s *NotificationService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/", handler.Wrap(s.list,
		handler.WithBinders[handler.Context, ListNotificationsRequest](binder.Path(), binder.Query()),
		handler.WithErrorHandler[handler.Context, ListNotificationsRequest](s.errorHandler),
	))
	r.Post("/read", handler.Wrap(s.markRead,
		handler.WithBinders[handler.Context, MarkReadRequest](binder.Path(), binder.JSON()),
		handler.WithErrorHandler[handler.Context, MarkReadRequest](s.errorHandler),
	))
	r.Post("/{notificationID}/dismiss", handler.Wrap(s.dismiss,
		handler.WithBinders[handler.Context, NotificationRequest](binder.Path()),
		handler.WithErrorHandler[handler.Context, NotificationRequest](s.errorHandler),
	))
	return r
}

// list returns the newest notifications first, with the unread count in meta.
func (s *NotificationService) list(ctx handler.Context, req ListNotificationsRequest) handler.Response {
	if req.Limit < 0 || req.Offset < 0 {
		verr := handler.NewValidationError()
		if req.Limit < 0 {
			verr.Add("limit", "must not be negative")
		}
		if req.Offset < 0 {
			verr.Add("offset", "must not be negative")
		}
		return handler.Error(verr)
	}

	opts := notifications.ListOptions{
		Limit:            min(req.Limit, maxListLimit),
		Offset:           req.Offset,
		OnlyUnread:       req.OnlyUnread,
		IncludeDismissed: req.IncludeDismissed,
	}
	if opts.Limit == 0 {
		opts.Limit = defaultListLimit
	}
	for _, t := range req.Types {
		opts.Types = append(opts.Types, notifications.Type(t))
	}

	list, err := s.inbox.List(ctx, req.AccountID, opts)
	if err != nil {
		return handler.Error(httpError(err))
	}
	unread, err := s.inbox.CountUnread(ctx, req.AccountID)
	if err != nil {
		return handler.Error(httpError(err))
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	return handler.JSON(list, handler.WithJSONMeta(map[string]any{
		"unread": unread,
		"limit":  opts.Limit,
		"offset": opts.Offset,
	}))
}

func (s *NotificationService) markRead(ctx handler.Context, req MarkReadRequest) handler.Response {
	if len(req.IDs) == 0 {
		verr := handler.NewValidationError()
		verr.Add("ids", "at least one notification id is required")
		return handler.Error(verr)
	}
	if err := s.inbox.MarkRead(ctx, req.AccountID, req.IDs...); err != nil {
		return handler.Error(httpError(err))
	}
	return handler.Empty()
}

// dismiss hides a notification. Its dedupe key stays taken, so the same
// notice is not raised again.
func (s *NotificationService) dismiss(ctx handler.Context, req NotificationRequest) handler.Response {
	if err := s.inbox.Dismiss(ctx, req.AccountID, req.NotificationID); err != nil {
		return handler.Error(httpError(err))
	}
	return handler.Empty()
}
