package quota_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/quota"
)

// runStoreContract exercises the behaviour every Store implementation must share.
// newKey returns a key unique to the subtest so shared backends do not collide.
func runStoreContract(t *testing.T, store quota.Store, newKey func(string) string) {
	t.Helper()
	ctx := context.Background()
	june := quota.CalendarMonth.Period(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	july := quota.CalendarMonth.Period(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))

	t.Run("consumes up to the limit", func(t *testing.T) {
		key := newKey("limit")
		for i := int64(1); i <= 3; i++ {
			res, err := store.Consume(ctx, key, june, 3)
			require.NoError(t, err)
			assert.True(t, res.Consumed)
			assert.Equal(t, i, res.Count)
		}

		res, err := store.Consume(ctx, key, june, 3)
		require.NoError(t, err)
		assert.False(t, res.Consumed)
		assert.Equal(t, int64(3), res.Count)
		assert.Equal(t, int64(0), res.Remaining())

		count, err := store.Peek(ctx, key, june)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("new window starts from zero", func(t *testing.T) {
		key := newKey("reset")
		for range 3 {
			_, err := store.Consume(ctx, key, june, 3)
			require.NoError(t, err)
		}

		count, err := store.Peek(ctx, key, july)
		require.NoError(t, err)
		assert.Zero(t, count)

		res, err := store.Consume(ctx, key, july, 3)
		require.NoError(t, err)
		assert.True(t, res.Consumed)
		assert.Equal(t, int64(1), res.Count)
	})

	t.Run("unlimited always consumes", func(t *testing.T) {
		key := newKey("unlimited")
		for i := int64(1); i <= 10; i++ {
			res, err := store.Consume(ctx, key, june, quota.Unlimited)
			require.NoError(t, err)
			assert.True(t, res.Consumed)
			assert.Equal(t, i, res.Count)
			assert.Equal(t, quota.Unlimited, res.Remaining())
		}
	})

	t.Run("zero limit never consumes", func(t *testing.T) {
		key := newKey("zero")
		res, err := store.Consume(ctx, key, june, 0)
		require.NoError(t, err)
		assert.False(t, res.Consumed)
		assert.Zero(t, res.Count)
	})

	t.Run("lifetime window allows a single use", func(t *testing.T) {
		key := newKey("lifetime")
		lifetime := quota.Lifetime.Period(time.Now())

		first, err := store.Consume(ctx, key, lifetime, 1)
		require.NoError(t, err)
		assert.True(t, first.Consumed)

		later := quota.Lifetime.Period(time.Now().AddDate(3, 0, 0))
		second, err := store.Consume(ctx, key, later, 1)
		require.NoError(t, err)
		assert.False(t, second.Consumed)
		assert.Equal(t, int64(1), second.Count)
	})

	t.Run("empty key is rejected", func(t *testing.T) {
		_, err := store.Consume(ctx, "", june, 3)
		assert.ErrorIs(t, err, quota.ErrEmptyKey)
		_, err = store.Peek(ctx, "", june)
		assert.ErrorIs(t, err, quota.ErrEmptyKey)
	})

	t.Run("concurrent consumers never overshoot", func(t *testing.T) {
		key := newKey("race")
		const workers = 32
		const limit = 3

		var granted atomic.Int64
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := store.Consume(ctx, key, june, limit)
				if assert.NoError(t, err) && res.Consumed {
					granted.Add(1)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, int64(limit), granted.Load())
		count, err := store.Peek(ctx, key, june)
		require.NoError(t, err)
		assert.Equal(t, int64(limit), count)
	})
}

func uniqueKeys(t *testing.T) func(string) string {
	prefix := fmt.Sprintf("test-%d", time.Now().UnixNano())
	return func(name string) string {
		return prefix + ":" + name
	}
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, quota.NewMemoryStore(), uniqueKeys(t))

	t.Run("keeps historical records", func(t *testing.T) {
		store := quota.NewMemoryStore()
		ctx := context.Background()
		for _, m := range []time.Month{time.January, time.February} {
			p := quota.CalendarMonth.Period(time.Date(2026, m, 10, 0, 0, 0, 0, time.UTC))
			_, err := store.Consume(ctx, "acct", p, 3)
			require.NoError(t, err)
		}
		assert.Len(t, store.Records("acct"), 2)
	})

	t.Run("honours context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := quota.NewMemoryStore().Consume(ctx, "acct", quota.Lifetime.Period(time.Now()), 1)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func BenchmarkMemoryStore_Consume(b *testing.B) {
	store := quota.NewMemoryStore()
	ctx := context.Background()
	period := quota.CalendarMonth.Period(time.Now())

	for b.Loop() {
		_, _ = store.Consume(ctx, "bench", period, quota.Unlimited)
	}
}
