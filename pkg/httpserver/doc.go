// Package httpserver runs the engine's HTTP API with configurable timeouts and
// context-driven graceful shutdown, and provides liveness and readiness
// handlers.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	if err := srv.Run(ctx, router); err != nil {
//		return err
//	}
//
// Run returns once ctx is canceled and in-flight requests have drained or
// the shutdown timeout has passed. Signal handling belongs to the caller,
// usually through signal.NotifyContext.
package httpserver
