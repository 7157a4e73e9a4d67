package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/gnosis118/paper-n-print-sub004/pkg/billing"
	"github.com/gnosis118/paper-n-print-sub004/pkg/config"
	"github.com/gnosis118/paper-n-print-sub004/pkg/email"
	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/jobs"
	"github.com/gnosis118/paper-n-print-sub004/pkg/pg"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/redis"
	"github.com/gnosis118/paper-n-print-sub004/pkg/sqlite"
)

// Driver selects a storage backend.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverPostgres Driver = "postgres"
	DriverRedis    Driver = "redis"
	DriverSQLite   Driver = "sqlite"
)

// Delivery selects how new notifications are pushed in real time.
type Delivery string

const (
	DeliveryNone  Delivery = "none"
	DeliveryRedis Delivery = "redis"
)

// AppConfig holds the engine's own settings.
type AppConfig struct {
	Env         string   `env:"APP_ENV" envDefault:"development"`
	ServiceName string   `env:"SERVICE_NAME" envDefault:"engine"`
	StoreDriver Driver   `env:"STORE_DRIVER" envDefault:"memory"`  // memory|postgres: subscriptions, notifications, reminders
	QuotaDriver Driver   `env:"QUOTA_DRIVER" envDefault:"memory"`  // memory|postgres|redis|sqlite: usage counters
	Delivery    Delivery `env:"NOTIFY_DELIVERY" envDefault:"none"` // none|redis

	// Notifications are also forwarded to this endpoint when it is set.
	NotifyWebhookURL    string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyWebhookSecret string `env:"NOTIFY_WEBHOOK_SECRET"`

	UsageStoreTimeout     time.Duration `env:"USAGE_STORE_TIMEOUT" envDefault:"2s"`
	UsageFailClosed       bool          `env:"USAGE_FAIL_CLOSED" envDefault:"false"`
	UsageNearLimitPercent int           `env:"USAGE_NEAR_LIMIT_PERCENT" envDefault:"80"`

	// Per-fingerprint throttle on the anonymous routes. Zero burst disables it.
	AnonRateBurst    int           `env:"ANON_RATE_BURST" envDefault:"30"`
	AnonRateRefill   int           `env:"ANON_RATE_REFILL" envDefault:"1"`
	AnonRateInterval time.Duration `env:"ANON_RATE_INTERVAL" envDefault:"2s"`

	TrialLength      time.Duration `env:"TRIAL_LENGTH" envDefault:"336h"`
	TrialSweepBatch  int           `env:"TRIAL_SWEEP_BATCH" envDefault:"500"`
	TrialDefaultPlan string        `env:"TRIAL_DEFAULT_PLAN" envDefault:"pro"`
	TrialSweepAt     string        `env:"TRIAL_SWEEP_DAILY_AT" envDefault:"02:00"`

	ReminderWindow          time.Duration `env:"REMINDER_WINDOW" envDefault:"72h"`
	ReminderConcurrency     int           `env:"REMINDER_CONCURRENCY" envDefault:"4"`
	ReminderDispatchTimeout time.Duration `env:"REMINDER_DISPATCH_TIMEOUT" envDefault:"10s"`
	ReminderDailyAt         string        `env:"REMINDER_DAILY_AT" envDefault:"09:00"`
	PaymentBaseURL          string        `env:"PAYMENT_BASE_URL" envDefault:"http://localhost:8080"`
}

// Config is everything the engine is assembled from. Backend sections are
// only read from the environment when a driver needs them.
type Config struct {
	App     AppConfig
	HTTP    httpserver.Config
	Billing billing.Config
	Email   email.Config
	PG      pg.Config
	Redis   redis.Config
	SQLite  sqlite.Config
}

// LoadConfig reads Config from the environment (and .env).
func LoadConfig() (Config, error) {
	var cfg Config
	if err := config.Load(&cfg.App); err != nil {
		return cfg, err
	}
	if err := cfg.App.Validate(); err != nil {
		return cfg, err
	}
	if err := config.Load(&cfg.HTTP); err != nil {
		return cfg, err
	}
	if err := config.Load(&cfg.Billing); err != nil {
		return cfg, err
	}
	if err := config.Load(&cfg.Email); err != nil {
		return cfg, err
	}
	if cfg.App.needs(DriverPostgres) {
		if err := config.Load(&cfg.PG); err != nil {
			return cfg, err
		}
	}
	if cfg.App.needs(DriverRedis) {
		if err := config.Load(&cfg.Redis); err != nil {
			return cfg, err
		}
	}
	if cfg.App.needs(DriverSQLite) {
		if err := config.Load(&cfg.SQLite); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Validate rejects unknown drivers, plans and schedules.
func (c AppConfig) Validate() error {
	var errs []error
	switch c.StoreDriver {
	case DriverMemory, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("%w: STORE_DRIVER=%q", ErrUnknownDriver, c.StoreDriver))
	}
	switch c.QuotaDriver {
	case DriverMemory, DriverPostgres, DriverRedis, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("%w: QUOTA_DRIVER=%q", ErrUnknownDriver, c.QuotaDriver))
	}
	switch c.Delivery {
	case DeliveryNone, DeliveryRedis:
	default:
		errs = append(errs, fmt.Errorf("%w: NOTIFY_DELIVERY=%q", ErrUnknownDriver, c.Delivery))
	}
	if c.AnonRateBurst < 0 {
		errs = append(errs, fmt.Errorf("ANON_RATE_BURST must not be negative, got %d", c.AnonRateBurst))
	}
	if c.AnonRateBurst > 0 && (c.AnonRateRefill <= 0 || c.AnonRateInterval <= 0) {
		errs = append(errs, errors.New("ANON_RATE_REFILL and ANON_RATE_INTERVAL must be positive when throttling is enabled"))
	}
	if _, err := plans.Parse(c.TrialDefaultPlan); err != nil {
		errs = append(errs, fmt.Errorf("TRIAL_DEFAULT_PLAN: %w", err))
	}
	if _, err := jobs.ParseDailyAt(c.ReminderDailyAt); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_DAILY_AT: %w", err))
	}
	if _, err := jobs.ParseDailyAt(c.TrialSweepAt); err != nil {
		errs = append(errs, fmt.Errorf("TRIAL_SWEEP_DAILY_AT: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidConfig}, errs...)...)
	}
	return nil
}

func (c AppConfig) needs(d Driver) bool {
	switch d {
	case DriverPostgres:
		return c.StoreDriver == DriverPostgres || c.QuotaDriver == DriverPostgres
	case DriverRedis:
		return c.QuotaDriver == DriverRedis || c.Delivery == DeliveryRedis
	case DriverSQLite:
		return c.QuotaDriver == DriverSQLite
	}
	return false
}
