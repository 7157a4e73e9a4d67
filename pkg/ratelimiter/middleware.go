package ratelimiter

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/metrics"
)

// KeyFunc extracts the bucket key from a request. An empty key skips
// throttling for that request.
type KeyFunc func(r *http.Request) string

type middlewareConfig struct {
	logger *slog.Logger
	route  string
	now    func() time.Time
}

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareConfig)

func WithLogger(l *slog.Logger) MiddlewareOption {
	return func(c *middlewareConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRoute labels metrics and logs with the route group name.
func WithRoute(name string) MiddlewareOption {
	return func(c *middlewareConfig) {
		if name != "" {
			c.route = name
		}
	}
}

func WithMiddlewareClock(now func() time.Time) MiddlewareOption {
	return func(c *middlewareConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// Middleware throttles requests per key. Denied requests get 429 with
// X-RateLimit-* and Retry-After headers. Store errors let the request through.
func Middleware(b *Bucket, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	cfg := middlewareConfig{logger: slog.Default(), route: "default", now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := b.Allow(r.Context(), key)
			if err != nil {
				metrics.ThrottledRequestsTotal.WithLabelValues(cfg.route, "error").Inc()
				cfg.logger.LogAttrs(r.Context(), slog.LevelWarn, "rate limiter unavailable, allowing request",
					logger.Component("ratelimiter"),
					slog.String("route", cfg.route),
					logger.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, result.Remaining)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if result.Allowed() {
				metrics.ThrottledRequestsTotal.WithLabelValues(cfg.route, "allowed").Inc()
				next.ServeHTTP(w, r)
				return
			}

			metrics.ThrottledRequestsTotal.WithLabelValues(cfg.route, "throttled").Inc()
			if retry := result.RetryAfter(cfg.now()); retry > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
			}
			cfg.logger.LogAttrs(r.Context(), slog.LevelDebug, "request throttled",
				logger.Component("ratelimiter"),
				slog.String("route", cfg.route),
				logger.Identity(key),
			)
			_ = handler.JSONError(handler.ErrTooManyRequests).Render(w, r)
		})
	}
}
