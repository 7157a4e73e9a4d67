// Package notifications records in-app notifications for accounts, with
// pluggable storage and best-effort real-time delivery.
//
// # Architecture
//
//   - Storage: persistence, deduplication and listing
//   - Deliverer: real-time push (Redis pub/sub, fan-out, no-op)
//   - Recorder: stores first, then delivers
//
// # Deduplication
//
// An Entry may carry a DedupeKey. The storage writes at most one notification
// per (account, key) pair and reports whether it wrote one, so a producer that
// fires the same event repeatedly (a trial read after expiry, a nightly sweep,
// a replayed webhook) surfaces the notice once. Dismissing a notification
// hides it without releasing its key.
//
// # Basic Usage
//
//	recorder := notifications.NewRecorder(
//		notifications.NewPostgresStorage(pool),
//		notifications.NewRedisDeliverer(redisClient, "notifications"),
//	)
//
//	_, created, err := recorder.Record(ctx, notifications.Entry{
//		AccountID: "acct_123",
//		Type:      notifications.TypeTrialExpired,
//		Title:     "Your trial has ended",
//		Message:   "Upgrade to keep sending unlimited invoices.",
//		DedupeKey: "trial.expired",
//	})
package notifications
