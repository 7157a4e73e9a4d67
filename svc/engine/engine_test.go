package engine_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/email"
	"github.com/gnosis118/paper-n-print-sub004/pkg/fingerprint"
	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/reminder"
	"github.com/gnosis118/paper-n-print-sub004/svc/engine"
)

func testConfig(t *testing.T) engine.Config {
	t.Helper()
	return engine.Config{
		App: engine.AppConfig{
			Env:                     "development",
			ServiceName:             "engine-test",
			StoreDriver:             engine.DriverMemory,
			QuotaDriver:             engine.DriverMemory,
			Delivery:                engine.DeliveryNone,
			UsageStoreTimeout:       time.Second,
			UsageNearLimitPercent:   80,
			TrialLength:             14 * 24 * time.Hour,
			TrialSweepBatch:         100,
			TrialDefaultPlan:        "pro",
			TrialSweepAt:            "02:00",
			ReminderWindow:          72 * time.Hour,
			ReminderConcurrency:     2,
			ReminderDispatchTimeout: time.Second,
			ReminderDailyAt:         "09:00",
			PaymentBaseURL:          "https://app.example.com",
		},
		HTTP: httpserver.Config{Addr: "127.0.0.1:0"},
		Email: email.Config{
			SenderEmail:  "billing@example.com",
			SupportEmail: "support@example.com",
			DevDir:       t.TempDir(),
		},
	}
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newEngine(t *testing.T, opts ...engine.Option) (*engine.Engine, *clock) {
	t.Helper()
	c := &clock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	e, err := engine.New(context.Background(), testConfig(t), logger.Discard(), append([]engine.Option{engine.WithClock(c.Now)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e, c
}

func listAll(t *testing.T, e *engine.Engine, accountID string) []notifications.Notification {
	t.Helper()
	list, err := e.Recorder.List(context.Background(), accountID, notifications.ListOptions{IncludeDismissed: true})
	require.NoError(t, err)
	return list
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("memory drivers", func(t *testing.T) {
		t.Parallel()
		e, _ := newEngine(t)
		assert.Nil(t, e.Webhooks, "webhooks are disabled without a secret")

		rec := httptest.NewRecorder()
		e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		runner, err := e.Jobs()
		require.NoError(t, err)
		assert.NotNil(t, runner)

		assert.ErrorIs(t, e.Migrate(context.Background()), engine.ErrNoPostgres)
	})

	t.Run("webhooks enabled with a secret", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Billing.WebhookSecret = "pdl_ntfset_secret"
		e, err := engine.New(context.Background(), cfg, logger.Discard())
		require.NoError(t, err)
		t.Cleanup(e.Close)
		require.NotNil(t, e.Webhooks)

		rec := httptest.NewRecorder()
		e.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhooks/paddle", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid config", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.App.QuotaDriver = "dynamo"
		cfg.App.TrialDefaultPlan = "enterprise"
		_, err := engine.New(context.Background(), cfg, logger.Discard())
		assert.ErrorIs(t, err, engine.ErrInvalidConfig)
		assert.ErrorIs(t, err, engine.ErrUnknownDriver)
		assert.ErrorIs(t, err, plans.ErrUnknownPlan)
	})

	t.Run("invalid sender", func(t *testing.T) {
		t.Parallel()
		cfg := testConfig(t)
		cfg.Email.SenderEmail = "not-an-email"
		_, err := engine.New(context.Background(), cfg, logger.Discard())
		assert.ErrorIs(t, err, email.ErrInvalidConfig)
	})
}

func TestAnonymousThrottle(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.App.AnonRateBurst = 2
	cfg.App.AnonRateRefill = 1
	cfg.App.AnonRateInterval = time.Minute
	e, err := engine.New(context.Background(), cfg, logger.Discard())
	require.NoError(t, err)
	t.Cleanup(e.Close)
	h := e.Handler()

	get := func(screen string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/anonymous/usage", nil)
		req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
		req.Header.Set(fingerprint.HeaderLanguage, "en-US")
		req.Header.Set(fingerprint.HeaderScreen, screen)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, get("1920x1080").Code)
	assert.Equal(t, http.StatusOK, get("1920x1080").Code)
	rec := get("1920x1080")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, get("1280x720").Code, "another device has its own bucket")
}

func TestTrialExpiryNotifiesOnce(t *testing.T) {
	t.Parallel()
	e, c := newEngine(t)
	ctx := context.Background()

	_, err := e.Trials.StartTrial(ctx, "acct-1", plans.Pro)
	require.NoError(t, err)
	c.Advance(15 * 24 * time.Hour)

	for range 3 {
		st, err := e.Trials.Evaluate(ctx, "acct-1")
		require.NoError(t, err)
		assert.True(t, st.IsTrialExpired)
	}
	summary, err := e.Trials.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Expired)

	list := listAll(t, e, "acct-1")
	require.Len(t, list, 1)
	assert.Equal(t, notifications.TypeTrialExpired, list[0].Type)
	assert.Equal(t, "trial.expired", list[0].DedupeKey)

	plan, err := e.Trials.EffectivePlan(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, plans.Free, plan)
}

func TestNotificationWebhookForwarding(t *testing.T) {
	t.Parallel()

	received := make(chan *http.Request, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.App.NotifyWebhookURL = srv.URL
	cfg.App.NotifyWebhookSecret = "whsec"
	c := &clock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	e, err := engine.New(context.Background(), cfg, logger.Discard(), engine.WithClock(c.Now))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = e.Trials.StartTrial(ctx, "acct-1", plans.Pro)
	require.NoError(t, err)
	c.Advance(15 * 24 * time.Hour)
	_, err = e.Trials.Evaluate(ctx, "acct-1")
	require.NoError(t, err)

	e.Close()
	close(received)
	var events []string
	for r := range received {
		events = append(events, r.Header.Get("X-Engine-Event"))
		assert.NotEmpty(t, r.Header.Get("X-Engine-Signature"))
	}
	assert.Equal(t, []string{"trial.expired"}, events)
}

func TestNearLimitNotifiesOncePerMonth(t *testing.T) {
	t.Parallel()
	e, c := newEngine(t)
	ctx := context.Background()

	for range 5 {
		_, err := e.Accounts.Consume(ctx, "acct-free")
		require.NoError(t, err)
	}
	list := listAll(t, e, "acct-free")
	require.Len(t, list, 1)
	assert.Equal(t, notifications.TypeQuotaNearLimit, list[0].Type)
	assert.Equal(t, "quota.near_limit:2026-05", list[0].DedupeKey)

	c.Advance(31 * 24 * time.Hour)
	for range 3 {
		snap, err := e.Accounts.Consume(ctx, "acct-free")
		require.NoError(t, err)
		assert.True(t, snap.Consumed, "a new month resets the allowance")
	}
	list = listAll(t, e, "acct-free")
	require.Len(t, list, 2)
	assert.Equal(t, "quota.near_limit:2026-06", list[0].DedupeKey)
}

func TestReminderRun(t *testing.T) {
	t.Parallel()

	src := reminder.NewMemorySource()
	src.PutEstimate(reminder.Estimate{
		ID:           "est-1",
		AccountID:    "acct-1",
		ClientName:   "Dana Builder",
		ClientEmail:  "dana@example.com",
		JobType:      "Kitchen remodel",
		BusinessName: "Acme Renovations",
	})
	src.PutPreference(reminder.Preference{AccountID: "acct-1", Tone: reminder.ToneFriendly, AutoSend: true})

	var (
		mu   sync.Mutex
		sent []reminder.Reminder
	)
	notifier := reminder.NotifierFunc(func(_ context.Context, r reminder.Reminder) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, r)
		return nil
	})

	e, c := newEngine(t,
		engine.WithNotifier(notifier),
		engine.WithReminderStore(src, reminder.NewMemoryLedger()),
	)
	src.PutMilestone(reminder.Milestone{
		ID:         "m-1",
		EstimateID: "est-1",
		AmountDue:  250000,
		Currency:   "USD",
		DueDate:    c.Now().Add(24 * time.Hour),
		Status:     reminder.MilestonePending,
	})

	summary, err := e.Reminders.Run(context.Background(), c.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)

	summary, err = e.Reminders.Run(context.Background(), c.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Dispatched)
	assert.Equal(t, 1, summary.Duplicates)

	require.Len(t, sent, 1)
	assert.Equal(t, "https://app.example.com/estimates/est-1/pay", sent[0].PaymentLink)
	assert.Equal(t, reminder.ToneFriendly, sent[0].Tone)
	assert.Equal(t, 0, sent[0].DaysOverdue)

	list := listAll(t, e, "acct-1")
	require.Len(t, list, 1)
	assert.Equal(t, notifications.TypeReminderSent, list[0].Type)
	assert.Equal(t, "reminder.sent:m-1:2026-05-10", list[0].DedupeKey)
	assert.Equal(t, "est-1", list[0].Metadata["estimate_id"])
}

func TestAppConfigValidate(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t).App
	require.NoError(t, cfg.Validate())

	cfg.ReminderDailyAt = "25:00"
	assert.ErrorIs(t, cfg.Validate(), engine.ErrInvalidConfig)

	cfg = testConfig(t).App
	cfg.StoreDriver = engine.DriverRedis
	assert.ErrorIs(t, cfg.Validate(), engine.ErrUnknownDriver)

	cfg = testConfig(t).App
	cfg.AnonRateBurst = 10
	assert.ErrorIs(t, cfg.Validate(), engine.ErrInvalidConfig, "throttling needs a refill rate")
}
