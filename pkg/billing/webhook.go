package billing

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
)

const maxPayloadBytes = 1 << 20

// Verifier checks a webhook request signature. *paddle.WebhookVerifier
// satisfies it.
type Verifier interface {
	Verify(req *http.Request) (bool, error)
}

// NewPaddleVerifier returns a verifier for the Paddle-Signature header.
func NewPaddleVerifier(secret string) (Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return paddle.NewWebhookVerifier(secret), nil
}

// Lifecycle is the part of trial.Manager webhooks drive.
type Lifecycle interface {
	Convert(ctx context.Context, accountID string, plan plans.Plan, providerSubscriptionID string) (*trial.Subscription, error)
	Cancel(ctx context.Context, accountID string) (*trial.Subscription, error)
}

// WebhookHandler applies verified Paddle notifications to the trial
// lifecycle. Paddle retries non-2xx responses, so only failures worth a retry
// get one: bad signatures get 401, undecodable payloads 400, storage errors
// 500. Events that cannot apply (unknown price, invalid transition) are
// logged and acknowledged.
type WebhookHandler struct {
	verifier   Verifier
	lifecycle  Lifecycle
	pricePlans map[string]string
	logger     *slog.Logger
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

func WithLogger(l *slog.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewWebhookHandler panics if verifier or lifecycle is nil.
func NewWebhookHandler(verifier Verifier, lifecycle Lifecycle, pricePlans map[string]string, opts ...WebhookOption) *WebhookHandler {
	if verifier == nil || lifecycle == nil {
		panic("billing: verifier and lifecycle are required")
	}
	h := &WebhookHandler{
		verifier:   verifier,
		lifecycle:  lifecycle,
		pricePlans: pricePlans,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		h.respond(w, "unknown", http.StatusBadRequest)
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	valid, err := h.verifier.Verify(r)
	if err != nil || !valid {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "rejected paddle webhook",
			logger.Component("billing"),
			logger.Error(errors.Join(ErrInvalidSignature, err)),
		)
		h.respond(w, "unknown", http.StatusUnauthorized)
		return
	}

	event, err := ParseEvent(body, h.pricePlans)
	if errors.Is(err, ErrMalformedPayload) {
		h.logger.LogAttrs(ctx, slog.LevelWarn, "malformed paddle webhook",
			logger.Component("billing"),
			logger.Error(err),
		)
		h.respond(w, "unknown", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.LogAttrs(ctx, slog.LevelError, "paddle webhook cannot be applied",
			logger.Component("billing"),
			logger.EventType(event.Type),
			slog.String("event_id", event.ID),
			logger.Error(err),
		)
		h.respond(w, event.Type, http.StatusOK)
		return
	}

	if err := h.apply(ctx, event); err != nil {
		if errors.Is(err, trial.ErrInvalidTransition) || errors.Is(err, trial.ErrSubscriptionNotFound) {
			h.logger.LogAttrs(ctx, slog.LevelWarn, "paddle webhook ignored",
				logger.Component("billing"),
				logger.EventType(event.Type),
				logger.AccountID(event.AccountID),
				logger.Error(err),
			)
			h.respond(w, event.Type, http.StatusOK)
			return
		}
		h.logger.LogAttrs(ctx, slog.LevelError, "failed to apply paddle webhook",
			logger.Component("billing"),
			logger.EventType(event.Type),
			logger.AccountID(event.AccountID),
			logger.Error(err),
		)
		h.respond(w, event.Type, http.StatusInternalServerError)
		return
	}

	h.respond(w, event.Type, http.StatusOK)
}

func (h *WebhookHandler) apply(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		logger.Component("billing"),
		logger.EventType(event.Type),
		slog.String("event_id", event.ID),
	}

	switch event.Action() {
	case ActionConvert:
		if _, err := h.lifecycle.Convert(ctx, event.AccountID, event.Plan, event.ProviderSubscriptionID); err != nil {
			return err
		}
		h.logger.LogAttrs(ctx, slog.LevelInfo, "subscription converted",
			append(attrs, logger.AccountID(event.AccountID), logger.Plan(string(event.Plan)))...)
	case ActionCancel:
		if _, err := h.lifecycle.Cancel(ctx, event.AccountID); err != nil {
			return err
		}
		h.logger.LogAttrs(ctx, slog.LevelInfo, "subscription canceled",
			append(attrs, logger.AccountID(event.AccountID))...)
	default:
		h.logger.LogAttrs(ctx, slog.LevelDebug, "paddle webhook not handled", attrs...)
	}
	return nil
}

func (h *WebhookHandler) respond(w http.ResponseWriter, eventType string, status int) {
	metrics.WebhookRequestsTotal.WithLabelValues(eventType, http.StatusText(status)).Inc()
	w.WriteHeader(status)
}
