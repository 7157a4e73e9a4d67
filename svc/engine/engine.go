// Package engine assembles the entitlement and reminder engine from its
// configuration: storage backends, gates, the trial lifecycle, the reminder
// scheduler, notifications and the HTTP surface.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"

	"github.com/gnosis118/paper-n-print-sub004/db"
	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/modules/entitlement"
	"github.com/gnosis118/paper-n-print-sub004/pkg/billing"
	"github.com/gnosis118/paper-n-print-sub004/pkg/email"
	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/jobs"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
	"github.com/gnosis118/paper-n-print-sub004/pkg/pg"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/quota"
	"github.com/gnosis118/paper-n-print-sub004/pkg/ratelimiter"
	"github.com/gnosis118/paper-n-print-sub004/pkg/redis"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
	"github.com/gnosis118/paper-n-print-sub004/pkg/sqlite"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
	"github.com/gnosis118/paper-n-print-sub004/pkg/usage"
	"github.com/gnosis118/paper-n-print-sub004/pkg/webhook"
)

// Engine is the assembled service.
type Engine struct {
	Trials    *trial.Manager
	Anonymous *usage.AnonymousGate
	Accounts  *usage.AccountGate
	Recorder  *notifications.Recorder
	Reminders *reminder.Scheduler
	// Webhooks is nil when no Paddle webhook secret is configured.
	Webhooks http.Handler

	cfg         Config
	log         *slog.Logger
	defaultPlan plans.Plan
	pool        *pgxpool.Pool
	rdb         *goredis.Client
	sqliteDB    *sql.DB
	checks      []httpserver.Check
	throttle    *ratelimiter.Bucket
	memThrottle *ratelimiter.MemoryStore
	forwarder   *notifications.WebhookDeliverer
}

type options struct {
	now      func() time.Time
	notifier reminder.Notifier
	source   reminder.Source
	ledger   reminder.Ledger
}

// Option overrides a component the engine would otherwise build from Config.
type Option func(*options)

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithNotifier replaces the email reminder notifier.
func WithNotifier(n reminder.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// WithReminderStore replaces the reminder source and ledger.
func WithReminderStore(source reminder.Source, ledger reminder.Ledger) Option {
	return func(o *options) {
		o.source = source
		o.ledger = ledger
	}
}

// New connects the configured backends and wires every component. On error
// everything opened so far is closed again.
func New(ctx context.Context, cfg Config, log *slog.Logger, opts ...Option) (_ *Engine, err error) {
	if log == nil {
		log = slog.Default()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.App.Validate(); err != nil {
		return nil, err
	}
	if err := plans.Validate(); err != nil {
		return nil, err
	}
	defaultPlan, _ := plans.Parse(cfg.App.TrialDefaultPlan)

	e := &Engine{cfg: cfg, log: log, defaultPlan: defaultPlan}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if err := e.connect(ctx); err != nil {
		return nil, err
	}

	deliverer, err := e.deliverer()
	if err != nil {
		return nil, err
	}
	e.Recorder = notifications.NewRecorder(e.notificationStorage(), deliverer,
		notifications.WithRecorderLogger(log),
		notifications.WithRecorderClock(o.now),
	)

	e.Trials = trial.NewManager(e.trialStore(),
		trial.WithLogger(log),
		trial.WithClock(o.now),
		trial.WithTrialLength(cfg.App.TrialLength),
		trial.WithSweepBatch(cfg.App.TrialSweepBatch),
		trial.WithEventPublisher(TrialEvents{Recorder: e.Recorder}),
	)

	quotaStore, err := e.quotaStore(ctx)
	if err != nil {
		return nil, err
	}
	gateOpts := []usage.Option{
		usage.WithLogger(log),
		usage.WithClock(o.now),
		usage.WithStoreTimeout(cfg.App.UsageStoreTimeout),
		usage.WithFailClosed(cfg.App.UsageFailClosed),
		usage.WithNearLimitPercent(cfg.App.UsageNearLimitPercent),
	}
	e.Anonymous = usage.NewAnonymousGate(quotaStore, gateOpts...)
	e.Accounts = usage.NewAccountGate(quotaStore, e.Trials.EffectivePlan,
		append(gateOpts, usage.WithEventPublisher(UsageEvents{Recorder: e.Recorder}))...,
	)

	if err := e.buildThrottle(o.now); err != nil {
		return nil, err
	}

	notifier := o.notifier
	if notifier == nil {
		sender, err := email.NewSender(cfg.Email)
		if err != nil {
			return nil, err
		}
		notifier = email.NewReminderNotifier(sender)
	}
	source, ledger := o.source, o.ledger
	if source == nil || ledger == nil {
		source, ledger = e.reminderStore()
	}
	e.Reminders = reminder.NewScheduler(source, ledger, notifier,
		reminder.WithLogger(log),
		reminder.WithWindow(cfg.App.ReminderWindow),
		reminder.WithConcurrency(cfg.App.ReminderConcurrency),
		reminder.WithDispatchTimeout(cfg.App.ReminderDispatchTimeout),
		reminder.WithPaymentBaseURL(cfg.App.PaymentBaseURL),
		reminder.WithAfterSend(ReminderSent(e.Recorder, log)),
	)

	if cfg.Billing.WebhookSecret != "" {
		verifier, err := billing.NewPaddleVerifier(cfg.Billing.WebhookSecret)
		if err != nil {
			return nil, err
		}
		e.Webhooks = billing.NewWebhookHandler(verifier, e.Trials, cfg.Billing.PricePlans, billing.WithLogger(log))
	} else {
		log.LogAttrs(ctx, slog.LevelWarn, "PADDLE_WEBHOOK_SECRET is not set, billing webhooks are disabled",
			logger.Component("engine"),
		)
	}

	log.LogAttrs(ctx, slog.LevelInfo, "engine assembled",
		logger.Component("engine"),
		slog.String("store_driver", string(cfg.App.StoreDriver)),
		slog.String("quota_driver", string(cfg.App.QuotaDriver)),
		slog.String("delivery", string(cfg.App.Delivery)),
	)
	return e, nil
}

func (e *Engine) connect(ctx context.Context) error {
	if e.cfg.App.needs(DriverPostgres) {
		pool, err := pg.Connect(ctx, e.cfg.PG)
		if err != nil {
			return errors.Join(ErrBackendConnect, err)
		}
		e.pool = pool
		e.checks = append(e.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	}
	if e.cfg.App.needs(DriverRedis) {
		rdb, err := redis.Connect(ctx, e.cfg.Redis)
		if err != nil {
			return errors.Join(ErrBackendConnect, err)
		}
		e.rdb = rdb
		e.checks = append(e.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(rdb)})
	}
	if e.cfg.App.needs(DriverSQLite) {
		sdb, err := sqlite.Open(ctx, e.cfg.SQLite)
		if err != nil {
			return errors.Join(ErrBackendConnect, err)
		}
		e.sqliteDB = sdb
		e.checks = append(e.checks, httpserver.Check{Name: "sqlite", Fn: sqlite.Healthcheck(sdb)})
	}
	return nil
}

func (e *Engine) notificationStorage() notifications.Storage {
	if e.cfg.App.StoreDriver == DriverPostgres {
		return notifications.NewPostgresStorage(e.pool)
	}
	return notifications.NewMemoryStorage()
}

func (e *Engine) deliverer() (notifications.Deliverer, error) {
	var deliverers []notifications.Deliverer
	if e.cfg.App.Delivery == DeliveryRedis {
		deliverers = append(deliverers, notifications.NewRedisDeliverer(e.rdb, e.cfg.Redis.KeyPrefix+":notifications"))
	}
	if e.cfg.App.NotifyWebhookURL != "" {
		client, err := webhook.New(e.cfg.App.NotifyWebhookURL,
			webhook.WithSecret(e.cfg.App.NotifyWebhookSecret),
			webhook.WithLogger(e.log),
		)
		if err != nil {
			return nil, err
		}
		e.forwarder = notifications.NewWebhookDeliverer(client, notifications.WithWebhookLogger(e.log))
		deliverers = append(deliverers, e.forwarder)
	}

	switch len(deliverers) {
	case 0:
		return &notifications.NoOpDeliverer{}, nil
	case 1:
		return deliverers[0], nil
	default:
		return notifications.NewMultiDeliverer(deliverers, notifications.WithMultiDelivererLogger(e.log)), nil
	}
}

func (e *Engine) trialStore() trial.Store {
	if e.cfg.App.StoreDriver == DriverPostgres {
		return trial.NewPostgresStore(e.pool)
	}
	return trial.NewMemoryStore()
}

func (e *Engine) reminderStore() (reminder.Source, reminder.Ledger) {
	if e.cfg.App.StoreDriver == DriverPostgres {
		return reminder.NewPostgresSource(e.pool), reminder.NewPostgresLedger(e.pool)
	}
	return reminder.NewMemorySource(), reminder.NewMemoryLedger()
}

func (e *Engine) quotaStore(ctx context.Context) (quota.Store, error) {
	switch e.cfg.App.QuotaDriver {
	case DriverPostgres:
		return quota.NewPostgresStore(e.pool), nil
	case DriverRedis:
		return quota.NewRedisStore(e.rdb, quota.WithKeyPrefix(e.cfg.Redis.KeyPrefix)), nil
	case DriverSQLite:
		return quota.NewSQLiteStore(ctx, e.sqliteDB)
	default:
		return quota.NewMemoryStore(), nil
	}
}

// buildThrottle shares buckets through Redis when a client is connected.
func (e *Engine) buildThrottle(now func() time.Time) error {
	if e.cfg.App.AnonRateBurst == 0 {
		return nil
	}

	var store ratelimiter.Store
	if e.rdb != nil {
		store = ratelimiter.NewRedisStore(e.rdb,
			ratelimiter.WithKeyPrefix(e.cfg.Redis.KeyPrefix+":ratelimit"),
			ratelimiter.WithRedisClock(now),
		)
	} else {
		e.memThrottle = ratelimiter.NewMemoryStore(ratelimiter.WithClock(now))
		store = e.memThrottle
	}

	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       e.cfg.App.AnonRateBurst,
		RefillRate:     e.cfg.App.AnonRateRefill,
		RefillInterval: e.cfg.App.AnonRateInterval,
	})
	if err != nil {
		return err
	}
	e.throttle = bucket
	return nil
}

// Handler returns the HTTP API.
func (e *Engine) Handler() http.Handler {
	errHandler := handler.NewErrorHandler(e.log)
	opts := entitlement.RouterOptions{
		AnonymousUsage:  entitlement.NewAnonymousUsageService(e.Anonymous, errHandler),
		AccountUsage:    entitlement.NewAccountUsageService(e.Accounts, errHandler),
		Trial:           entitlement.NewTrialService(e.Trials, e.defaultPlan, errHandler),
		Notifications:   entitlement.NewNotificationService(e.Recorder, errHandler),
		Metrics:         promhttp.Handler(),
		ReadinessChecks: e.checks,
		Logger:          e.log,
	}
	if e.Webhooks != nil {
		opts.Webhooks = e.Webhooks
	}
	if e.throttle != nil {
		opts.AnonymousThrottle = ratelimiter.Middleware(e.throttle, entitlement.FingerprintKey,
			ratelimiter.WithLogger(e.log),
			ratelimiter.WithRoute("anonymous"),
		)
	}
	return entitlement.Router(opts)
}

// Jobs returns a runner with the daily reminder batch and trial sweep.
func (e *Engine) Jobs(opts ...jobs.RunnerOption) (*jobs.Runner, error) {
	reminderAt, err := jobs.ParseDailyAt(e.cfg.App.ReminderDailyAt)
	if err != nil {
		return nil, err
	}
	sweepAt, err := jobs.ParseDailyAt(e.cfg.App.TrialSweepAt)
	if err != nil {
		return nil, err
	}

	runner := jobs.NewRunner(append([]jobs.RunnerOption{jobs.WithLogger(e.log)}, opts...)...)
	if err := runner.Add("reminders", reminderAt, func(ctx context.Context, now time.Time) error {
		_, err := e.Reminders.Run(ctx, now)
		return err
	}); err != nil {
		return nil, err
	}
	if err := runner.Add("trial-sweep", sweepAt, func(ctx context.Context, _ time.Time) error {
		_, err := e.Trials.Sweep(ctx)
		return err
	}); err != nil {
		return nil, err
	}
	return runner, nil
}

// Migrate applies the embedded schema migrations.
func (e *Engine) Migrate(ctx context.Context) error {
	if e.pool == nil {
		return ErrNoPostgres
	}
	return pg.Migrate(ctx, e.pool, db.Migrations(), e.cfg.PG, e.log)
}

// Close releases every backend connection.
func (e *Engine) Close() {
	if e.forwarder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.forwarder.Close(ctx); err != nil {
			e.log.Warn("notification webhook queue not drained", logger.Error(err))
		}
		cancel()
	}
	if e.memThrottle != nil {
		e.memThrottle.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.rdb != nil {
		if err := e.rdb.Close(); err != nil {
			e.log.Error("failed to close redis client", logger.Error(err))
		}
	}
	if e.sqliteDB != nil {
		if err := e.sqliteDB.Close(); err != nil {
			e.log.Error("failed to close sqlite database", logger.Error(err))
		}
	}
}
