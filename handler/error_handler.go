package handler

import (
	"log/slog"
	"net/http"

	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/requestid"
)

// NewErrorHandler returns an ErrorHandler that logs the failure and renders
// the JSON error envelope with the request id in meta. Client errors log at
// WARN, server errors at ERROR.
func NewErrorHandler(log *slog.Logger) ErrorHandler[Context] {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		r := ctx.Request()
		status := StatusOf(err)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		log.LogAttrs(r.Context(), level, "request error",
			logger.Component("http"),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		var opts []JSONOption
		if id := requestid.FromContext(r.Context()); id != "" {
			opts = append(opts, WithJSONMeta(map[string]any{"request_id": id}))
		}
		if renderErr := JSONError(err, opts...).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.LogAttrs(r.Context(), slog.LevelError, "failed to render error response",
				logger.Component("http"),
				logger.Error(renderErr),
			)
		}
	}
}
