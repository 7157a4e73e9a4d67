package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
)

// Event is one delivery.
type Event struct {
	Type string // X-Engine-Event
	ID   string // X-Engine-Delivery, reused across retries
	Data any    // JSON body
}

// Client posts events to a single endpoint.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	backoff    Backoff
	breaker    *CircuitBreaker
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithSecret enables request signing.
func WithSecret(secret string) Option {
	return func(c *Client) {
		c.secret = secret
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds each attempt. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRetries sets how many times a failed attempt is retried. Default 2.
func WithRetries(n int, backoff Backoff) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		if backoff != nil {
			c.backoff = backoff
		}
	}
}

// WithCircuitBreaker replaces the default breaker (5 failures, 30s).
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(c *Client) {
		if cb != nil {
			c.breaker = cb
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
			c.breaker.now = now
		}
	}
}

// New validates endpoint and creates a Client. Only http and https URLs
// with a host are accepted.
func New(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidConfig)
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Transport: &http.Transport{MaxIdleConnsPerHost: 10, IdleConnTimeout: 90 * time.Second}},
		timeout:    5 * time.Second,
		maxRetries: 2,
		backoff:    DefaultBackoff(),
		breaker:    NewCircuitBreaker(0, 0, 0),
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Send posts ev, retrying temporary failures with backoff.
func (c *Client) Send(ctx context.Context, ev Event) error {
	if ev.Type == "" || ev.ID == "" {
		return fmt.Errorf("%w: type and id are required", ErrInvalidPayload)
	}
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if !c.breaker.Allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ErrDeliveryFailed, lastErr, ctx.Err())
			case <-time.After(c.backoff.Next(attempt)):
			}
		}

		status, err := c.attempt(ctx, ev, payload)
		if err == nil {
			c.breaker.RecordSuccess()
			return nil
		}
		c.breaker.RecordFailure()
		lastErr = err

		c.logger.LogAttrs(ctx, slog.LevelDebug, "webhook attempt failed",
			logger.Component("webhook"),
			logger.EventType(ev.Type),
			slog.String("delivery_id", ev.ID),
			slog.Int("attempt", attempt+1),
			slog.Int("status", status),
			logger.Error(err),
		)

		if permanent(status) {
			return errors.Join(ErrPermanentFailure, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, c.maxRetries+1, lastErr)
}

func (c *Client) attempt(ctx context.Context, ev Event, payload []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "engine-webhook/1.0")
	req.Header.Set(HeaderEvent, ev.Type)
	req.Header.Set(HeaderDelivery, ev.ID)
	if c.secret != "" {
		ts := c.now().Unix()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
		req.Header.Set(HeaderSignature, Sign(c.secret, ts, payload))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " ")
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, msg)
}

// permanent reports 4xx responses that a retry will not fix.
func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
