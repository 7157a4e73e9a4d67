package entitlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/handler"
	"github.com/gnosis118/paper-n-print-sub004/modules/entitlement"
	"github.com/gnosis118/paper-n-print-sub004/pkg/httpserver"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
	"github.com/gnosis118/paper-n-print-sub004/pkg/notifications"
	"github.com/gnosis118/paper-n-print-sub004/pkg/plans"
	"github.com/gnosis118/paper-n-print-sub004/pkg/quota"
	"github.com/gnosis118/paper-n-print-sub004/pkg/requestid"
	"github.com/gnosis118/paper-n-print-sub004/pkg/trial"
	"github.com/gnosis118/paper-n-print-sub004/pkg/usage"
)

type fixture struct {
	router   http.Handler
	trials   *trial.Manager
	recorder *notifications.Recorder
	now      *time.Time
}

func newFixture(t *testing.T, checks ...httpserver.Check) *fixture {
	t.Helper()

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	f := &fixture{now: &now}
	clock := func() time.Time { return *f.now }

	log := logger.Discard()
	errHandler := handler.NewErrorHandler(log)
	store := quota.NewMemoryStore()

	f.trials = trial.NewManager(trial.NewMemoryStore(), trial.WithClock(clock), trial.WithLogger(log))
	f.recorder = notifications.NewRecorder(notifications.NewMemoryStorage(), nil, notifications.WithRecorderLogger(log))

	anon := usage.NewAnonymousGate(store, usage.WithLogger(log), usage.WithClock(clock))
	accounts := usage.NewAccountGate(store, f.trials.EffectivePlan, usage.WithLogger(log), usage.WithClock(clock))

	f.router = entitlement.Router(entitlement.RouterOptions{
		AnonymousUsage: entitlement.NewAnonymousUsageService(anon, errHandler),
		AccountUsage:   entitlement.NewAccountUsageService(accounts, errHandler),
		Trial:          entitlement.NewTrialService(f.trials, plans.Pro, errHandler),
		Notifications:  entitlement.NewNotificationService(f.recorder, errHandler),
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "# metrics\n")
		}),
		ReadinessChecks: checks,
		Logger:          log,
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string, headers ...string) (*httptest.ResponseRecorder, handler.JSONResponse) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var env handler.JSONResponse
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func data[T any](t *testing.T, env handler.JSONResponse) T {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

var browser = []string{
	"User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)",
	"Accept-Language", "en-US,en;q=0.9",
	"X-Client-Screen", "1920x1080",
	"X-Client-Timezone-Offset", "-120",
}

func TestAnonymousUsage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/anonymous/usage", "", browser...)
	require.Equal(t, http.StatusOK, rec.Code)
	d := data[usage.Decision](t, env)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Remaining)

	rec, env = f.do(t, http.MethodPost, "/v1/anonymous/usage", "", browser...)
	require.Equal(t, http.StatusOK, rec.Code)
	d = data[usage.Decision](t, env)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Used)

	rec, env = f.do(t, http.MethodPost, "/v1/anonymous/usage", "", browser...)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, data[usage.Decision](t, env).Allowed)

	t.Run("another device is a new visitor", func(t *testing.T) {
		other := append([]string{}, browser...)
		other[5] = "390x844"
		rec, _ := f.do(t, http.MethodPost, "/v1/anonymous/usage", "", other...)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("no signals", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/v1/anonymous/usage", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "missing_fingerprint", env.Error.Code)
	})
}

func TestAccountUsage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	const path = "/v1/accounts/acct-free/usage"

	for i := range 3 {
		rec, env := f.do(t, http.MethodPost, path, "")
		require.Equal(t, http.StatusOK, rec.Code, "invoice %d", i+1)
		snap := data[usage.Snapshot](t, env)
		assert.True(t, snap.Consumed)
		assert.Equal(t, plans.Free, snap.Plan)
	}

	rec, env := f.do(t, http.MethodPost, path, "")
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	snap := data[usage.Snapshot](t, env)
	assert.False(t, snap.Consumed)
	assert.False(t, snap.CanAct)
	assert.Equal(t, int64(3), snap.Count)

	rec, env = f.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, rec.Code)
	snap = data[usage.Snapshot](t, env)
	assert.Equal(t, int64(3), snap.Count)
	assert.Equal(t, int64(3), snap.Limit)
	assert.Equal(t, int64(0), snap.Remaining)

	t.Run("trialing account is unbounded", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/v1/accounts/acct-pro/trial", `{"plan":"pro"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		for range 5 {
			rec, env := f.do(t, http.MethodPost, "/v1/accounts/acct-pro/usage", "")
			require.Equal(t, http.StatusOK, rec.Code)
			snap := data[usage.Snapshot](t, env)
			assert.True(t, snap.CanAct)
			assert.Equal(t, int64(plans.Unlimited), snap.Limit)
		}
	})
}

func TestTrial(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	rec, env := f.do(t, http.MethodGet, "/v1/accounts/acct-1/trial", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Code)

	rec, env = f.do(t, http.MethodPost, "/v1/accounts/acct-1/trial", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	st := data[trial.Status](t, env)
	assert.True(t, st.IsTrialActive)
	assert.Equal(t, 14, st.DaysRemaining)
	assert.Equal(t, plans.Pro, st.Subscription.Plan)

	rec, _ = f.do(t, http.MethodPost, "/v1/accounts/acct-1/trial", `{"plan":"agency"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	*f.now = f.now.Add(15 * 24 * time.Hour)
	rec, env = f.do(t, http.MethodGet, "/v1/accounts/acct-1/trial", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st = data[trial.Status](t, env)
	assert.False(t, st.IsTrialActive)
	assert.True(t, st.IsTrialExpired)
	assert.Equal(t, 0, st.DaysRemaining)

	t.Run("unknown plan", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/v1/accounts/acct-2/trial", `{"plan":"enterprise"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, env.Error)
		assert.Contains(t, env.Error.Details, "plan")
	})

	t.Run("malformed body", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodPost, "/v1/accounts/acct-2/trial", `{"plan":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestNotifications(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	expired, _, err := f.recorder.Record(ctx, notifications.Entry{
		AccountID: "acct-1",
		Type:      notifications.TypeTrialExpired,
		Title:     "Your trial has ended",
		DedupeKey: "trial.expired",
	})
	require.NoError(t, err)
	_, _, err = f.recorder.Record(ctx, notifications.Entry{
		AccountID: "acct-1",
		Type:      notifications.TypeReminderSent,
		Title:     "Reminder sent",
	})
	require.NoError(t, err)

	rec, env := f.do(t, http.MethodGet, "/v1/accounts/acct-1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data[[]notifications.Notification](t, env), 2)
	assert.EqualValues(t, 2, env.Meta["unread"])

	rec, env = f.do(t, http.MethodGet, "/v1/accounts/acct-1/notifications?type=trial.expired", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := data[[]notifications.Notification](t, env)
	require.Len(t, list, 1)
	assert.Equal(t, expired.ID, list[0].ID)

	rec, _ = f.do(t, http.MethodPost, "/v1/accounts/acct-1/notifications/"+expired.ID+"/dismiss", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = f.do(t, http.MethodGet, "/v1/accounts/acct-1/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data[[]notifications.Notification](t, env), 1)

	rec, env = f.do(t, http.MethodGet, "/v1/accounts/acct-1/notifications?include_dismissed=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, data[[]notifications.Notification](t, env), 2)

	t.Run("dismiss belongs to the account", func(t *testing.T) {
		rec, env := f.do(t, http.MethodPost, "/v1/accounts/acct-2/notifications/"+expired.ID+"/dismiss", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "not_found", env.Error.Code)
	})

	t.Run("negative limit", func(t *testing.T) {
		rec, _ := f.do(t, http.MethodGet, "/v1/accounts/acct-1/notifications?limit=-1", "")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("empty inbox is an empty list", func(t *testing.T) {
		rec, env := f.do(t, http.MethodGet, "/v1/accounts/acct-9/notifications", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []any{}, env.Data)
	})
}

func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t, httpserver.Check{Name: "store", Fn: func(context.Context) error {
		return errors.New("connection refused")
	}})

	rec, _ := f.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "# metrics")

	rec, _ = f.do(t, http.MethodGet, "/v1/accounts/acct-1/usage", "")
	assert.NotEmpty(t, rec.Header().Get(requestid.Header))
}
