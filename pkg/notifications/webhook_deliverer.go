package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/webhook"
)

// WebhookSender posts one event. *webhook.Client satisfies it.
type WebhookSender interface {
	Send(ctx context.Context, ev webhook.Event) error
}

// WebhookDeliverer forwards notifications to an external endpoint from a
// bounded in-process queue, so Record never waits on the receiver. A full
// queue drops the delivery; the notification itself is already stored.
type WebhookDeliverer struct {
	sender      WebhookSender
	logger      *slog.Logger
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	wg     sync.WaitGroup
}

// WebhookDelivererOption configures a WebhookDeliverer.
type WebhookDelivererOption func(*webhookDelivererConfig)

type webhookDelivererConfig struct {
	logger      *slog.Logger
	queueSize   int
	workers     int
	sendTimeout time.Duration
}

func WithWebhookLogger(l *slog.Logger) WebhookDelivererOption {
	return func(c *webhookDelivererConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithWebhookQueue sets the queue capacity and worker count. Defaults 256
// and 2.
func WithWebhookQueue(size, workers int) WebhookDelivererOption {
	return func(c *webhookDelivererConfig) {
		if size > 0 {
			c.queueSize = size
		}
		if workers > 0 {
			c.workers = workers
		}
	}
}

// WithWebhookSendTimeout bounds one send including its retries. Default 30s.
func WithWebhookSendTimeout(d time.Duration) WebhookDelivererOption {
	return func(c *webhookDelivererConfig) {
		if d > 0 {
			c.sendTimeout = d
		}
	}
}

// NewWebhookDeliverer starts the delivery workers. Call Close to drain them.
func NewWebhookDeliverer(sender WebhookSender, opts ...WebhookDelivererOption) *WebhookDeliverer {
	if sender == nil {
		panic("notifications: webhook sender is required")
	}
	cfg := webhookDelivererConfig{
		logger:      slog.Default(),
		queueSize:   256,
		workers:     2,
		sendTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	d := &WebhookDeliverer{
		sender:      sender,
		logger:      cfg.logger,
		sendTimeout: cfg.sendTimeout,
		queue:       make(chan Notification, cfg.queueSize),
	}
	for range cfg.workers {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

// Deliver enqueues notif without blocking.
func (d *WebhookDeliverer) Deliver(_ context.Context, notif Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDelivererClosed
	}
	select {
	case d.queue <- notif:
		return nil
	default:
		return ErrDeliveryQueueFull
	}
}

// Close stops accepting deliveries and waits for queued ones until ctx ends.
func (d *WebhookDeliverer) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *WebhookDeliverer) work() {
	defer d.wg.Done()
	for notif := range d.queue {
		d.send(notif)
	}
}

func (d *WebhookDeliverer) send(notif Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	err := d.sender.Send(ctx, webhook.Event{Type: string(notif.Type), ID: notif.ID, Data: notif})
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "failed to forward notification",
			logger.Component("notifications"),
			logger.AccountID(notif.AccountID),
			slog.String("notification_id", notif.ID),
			logger.EventType(string(notif.Type)),
			logger.Error(err),
		)
	}
}
