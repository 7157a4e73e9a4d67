package ratelimiter_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnosis118/paper-n-print-sub004/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
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

var testConfig = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second}

func runBucketContract(t *testing.T, store ratelimiter.Store, c *clock) {
	t.Helper()
	ctx := context.Background()
	bucket, err := ratelimiter.NewBucket(store, testConfig)
	require.NoError(t, err)
	key := uuid.NewString()

	for i := range 3 {
		res, err := bucket.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, res.Allowed())
		assert.Equal(t, 2-i, res.Remaining)
		assert.Equal(t, 3, res.Limit)
	}

	res, err := bucket.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, -1, res.Remaining)
	assert.Equal(t, time.Second, res.RetryAfter(c.Now()))

	res, err = bucket.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, res.Allowed(), "denied requests do not refill the bucket")

	c.Advance(time.Second)
	res, err = bucket.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(t, res.Allowed())
	assert.Equal(t, 0, res.Remaining)

	c.Advance(time.Hour)
	res, err = bucket.AllowN(ctx, key, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed(), "refill is capped at capacity")
	assert.Equal(t, 0, res.Remaining)

	other, err := bucket.Allow(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, 2, other.Remaining, "keys are independent")

	require.NoError(t, bucket.Reset(ctx, key))
	res, err = bucket.Allow(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	c := newClock()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(c.Now), ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	runBucketContract(t, store, c)
}

func TestMemoryStore_RemoveStale(t *testing.T) {
	t.Parallel()
	c := newClock()
	store := ratelimiter.NewMemoryStore(
		ratelimiter.WithClock(c.Now),
		ratelimiter.WithCleanupInterval(0),
		ratelimiter.WithStaleAfter(10*time.Minute),
	)
	t.Cleanup(store.Close)
	ctx := context.Background()

	_, _, err := store.Take(ctx, "old", 1, testConfig)
	require.NoError(t, err)
	c.Advance(11 * time.Minute)
	_, _, err = store.Take(ctx, "fresh", 1, testConfig)
	require.NoError(t, err)

	store.RemoveStale()
	assert.Equal(t, 1, store.Len())
	store.Close()
	store.Close()
}

func TestMemoryStore_Concurrent(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)
	bucket, err := ratelimiter.NewBucket(store, ratelimiter.Config{Capacity: 10, RefillRate: 1, RefillInterval: time.Hour})
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := bucket.Allow(context.Background(), "shared")
			if err == nil && res.Allowed() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	c := newClock()
	runBucketContract(t, ratelimiter.NewRedisStore(client,
		ratelimiter.WithKeyPrefix("ratelimit-test"),
		ratelimiter.WithRedisClock(c.Now),
	), c)
}

func TestNewBucket(t *testing.T) {
	t.Parallel()
	store := ratelimiter.NewMemoryStore(ratelimiter.WithCleanupInterval(0))
	t.Cleanup(store.Close)

	for name, cfg := range map[string]ratelimiter.Config{
		"zero capacity":   {RefillRate: 1, RefillInterval: time.Second},
		"zero refill":     {Capacity: 1, RefillInterval: time.Second},
		"zero interval":   {Capacity: 1, RefillRate: 1},
		"negative values": {Capacity: -1, RefillRate: -1, RefillInterval: -time.Second},
	} {
		_, err := ratelimiter.NewBucket(store, cfg)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig, name)
	}

	_, err := ratelimiter.NewBucket(nil, testConfig)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)

	bucket, err := ratelimiter.NewBucket(store, testConfig)
	require.NoError(t, err)
	_, err = bucket.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
	_, err = bucket.AllowN(context.Background(), "k", 4)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}
