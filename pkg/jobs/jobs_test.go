package jobs_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/jobs"
	"github.com/gnosis118/paper-n-print-sub004/pkg/logger"
)

func TestDailyAt(t *testing.T) {
	t.Parallel()

	s := jobs.DailyAt(2, 30)
	assert.Equal(t, "daily at 02:30 UTC", s.String())

	from := time.Date(2026, 5, 10, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 10, 2, 30, 0, 0, time.UTC), s.Next(from))

	from = time.Date(2026, 5, 10, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 11, 2, 30, 0, 0, time.UTC), s.Next(from), "exact time moves to tomorrow")

	from = time.Date(2026, 12, 31, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2027, 1, 1, 2, 30, 0, 0, time.UTC), s.Next(from))
}

func TestParseDailyAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "06:00", want: "daily at 06:00 UTC"},
		{in: " 23:59 ", want: "daily at 23:59 UTC"},
		{in: "24:00", wantErr: true},
		{in: "06:60", wantErr: true},
		{in: "0600", wantErr: true},
		{in: "ab:cd", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			s, err := jobs.ParseDailyAt(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, jobs.ErrInvalidSchedule)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.String())
		})
	}
}

func TestRunner(t *testing.T) {
	t.Parallel()

	t.Run("runs jobs until canceled and survives failures", func(t *testing.T) {
		t.Parallel()
		r := jobs.NewRunner(jobs.WithLogger(logger.Discard()))

		var ok, failing, panicking atomic.Int64
		require.NoError(t, r.Add("ok", jobs.Every(5*time.Millisecond), func(context.Context, time.Time) error {
			ok.Add(1)
			return nil
		}))
		require.NoError(t, r.Add("failing", jobs.Every(5*time.Millisecond), func(context.Context, time.Time) error {
			failing.Add(1)
			return errors.New("store unreachable")
		}))
		require.NoError(t, r.Add("panicking", jobs.Every(5*time.Millisecond), func(context.Context, time.Time) error {
			panicking.Add(1)
			panic("boom")
		}))

		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		require.NoError(t, r.Run(ctx))

		assert.Greater(t, ok.Load(), int64(1))
		assert.Greater(t, failing.Load(), int64(1))
		assert.Greater(t, panicking.Load(), int64(1))
	})

	t.Run("registration errors", func(t *testing.T) {
		t.Parallel()
		r := jobs.NewRunner(jobs.WithLogger(logger.Discard()))
		fn := func(context.Context, time.Time) error { return nil }

		require.NoError(t, r.Add("sweep", jobs.Every(time.Hour), fn))
		assert.ErrorIs(t, r.Add("sweep", jobs.Every(time.Hour), fn), jobs.ErrJobAlreadyRegistered)
		assert.ErrorIs(t, r.Add("", jobs.Every(time.Hour), fn), jobs.ErrInvalidJobDefinition)
		assert.ErrorIs(t, r.Add("x", nil, fn), jobs.ErrInvalidJobDefinition)
	})

	t.Run("empty runner", func(t *testing.T) {
		t.Parallel()
		err := jobs.NewRunner().Run(context.Background())
		assert.ErrorIs(t, err, jobs.ErrRunnerNotConfigured)
	})
}
