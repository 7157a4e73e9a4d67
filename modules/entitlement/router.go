// Package entitlement is the HTTP surface of the engine: usage gates, trial
// state, in-app notifications, billing webhooks and operational endpoints.
package entitlement

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/requestid"
)

// Mountable is a service exposing its own sub-router.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount. Each is optional.
type RouterOptions struct {
	AnonymousUsage Mountable
	AccountUsage   Mountable
	Trial          Mountable
	Notifications  Mountable

	// AnonymousThrottle wraps the anonymous usage routes, typically a
	// ratelimiter.Middleware keyed by fingerprint.
	AnonymousThrottle func(http.Handler) http.Handler

	// Webhooks receives Paddle billing events at /webhooks/paddle.
	Webhooks http.Handler
	// Metrics is served at /metrics, typically promhttp.Handler().
	Metrics http.Handler

	ReadinessChecks  []httpserver.Check
	ReadinessTimeout time.Duration

	Logger *slog.Logger
}

// Router creates the engine's HTTP router.
//
//	r := entitlement.Router(entitlement.RouterOptions{
//		AnonymousUsage: entitlement.NewAnonymousUsageService(anonGate, errHandler),
//		AccountUsage:   entitlement.NewAccountUsageService(accountGate, errHandler),
//		Trial:          entitlement.NewTrialService(trials, plans.Pro, errHandler),
//		Notifications:  entitlement.NewNotificationService(recorder, errHandler),
//		Webhooks:       webhookHandler,
//		Metrics:        promhttp.Handler(),
//	})
func Router(opts RouterOptions) chi.Router {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.ReadinessTimeout <= 0 {
		opts.ReadinessTimeout = 2 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(log, opts.ReadinessTimeout, opts.ReadinessChecks...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if opts.Webhooks != nil {
		r.Method(http.MethodPost, "/webhooks/paddle", opts.Webhooks)
	}

	r.Route("/v1", func(v1 chi.Router) {
		if opts.AnonymousUsage != nil {
			anon := opts.AnonymousUsage.Handle()
			if opts.AnonymousThrottle != nil {
				anon = opts.AnonymousThrottle(anon)
			}
			v1.Mount("/anonymous/usage", anon)
		}
		v1.Route("/accounts/{accountID}", func(acct chi.Router) {
			if opts.AccountUsage != nil {
				acct.Mount("/usage", opts.AccountUsage.Handle())
			}
			if opts.Trial != nil {
				acct.Mount("/trial", opts.Trial.Handle())
			}
			if opts.Notifications != nil {
				acct.Mount("/notifications", opts.Notifications.Handle())
			}
		})
	})

	return r
}

// requestLogger logs one line per request. Probes and scrapes log at DEBUG.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case r.URL.Path == "/healthz" || r.URL.Path == "/readyz" || r.URL.Path == "/metrics":
				level = slog.LevelDebug
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			}
			log.LogAttrs(r.Context(), level, "http request",
				logger.Component("http"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			)
		})
	}
}
