// Package logger builds the engine's *slog.Logger and keeps attribute names
// consistent across packages.
//
// New applies functional options on top of production defaults (JSON output at
// INFO level) and wraps the resulting handler with a decorator that pulls
// request-scoped values out of context.Context on every record:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.AppEnv, cfg.ServiceName),
//		logger.WithContextValue("request_id", requestIDKey{}),
//	)
//
// Attribute helpers (AccountID, Identity, MilestoneID, Decision, ...) return
// slog.Attr values with fixed keys so dashboards and alerts can rely on them.
// Helpers taking an optional value return an empty Attr for nil input, which
// slog drops.
package logger
