package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// consumeScript compares and increments in one server-side step.
// KEYS[1] counter key; ARGV[1] limit (-1 unlimited); ARGV[2] unix expiry or 0.
// Returns {count, consumed}.
var consumeScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
if limit >= 0 and current >= limit then
	return {current, 0}
end
current = redis.call('INCR', KEYS[1])
local expireAt = tonumber(ARGV[2])
if expireAt > 0 then
	redis.call('EXPIREAT', KEYS[1], expireAt)
end
return {current, 1}
`)

// RedisStore keeps counters as plain Redis integers.
type RedisStore struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix namespaces counter keys. Default "quota".
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention expires bounded-window counters this long after their window
// ends. Zero (the default) keeps them forever. Lifetime counters never expire.
func WithRetention(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if d >= 0 {
			s.retention = d
		}
	}
}

// NewRedisStore creates a store backed by client.
func NewRedisStore(client redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{client: client, prefix: "quota"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(key string, period Period) string {
	return fmt.Sprintf("%s:%s:%d", s.prefix, key, period.Start.Unix())
}

func (s *RedisStore) Consume(ctx context.Context, key string, period Period, limit int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}

	var expireAt int64
	if s.retention > 0 && !period.Unbounded() {
		expireAt = period.End.Add(s.retention).Unix()
	}

	vals, err := consumeScript.Run(ctx, s.client, []string{s.key(key, period)}, limit, expireAt).Int64Slice()
	if err != nil {
		return Result{}, errors.Join(ErrStoreUnavailable, err)
	}
	if len(vals) != 2 {
		return Result{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreUnavailable, vals)
	}

	return Result{Count: vals[0], Limit: limit, Consumed: vals[1] == 1}, nil
}

func (s *RedisStore) Peek(ctx context.Context, key string, period Period) (int64, error) {
	if key == "" {
		return 0, ErrEmptyKey
	}

	v, err := s.client.Get(ctx, s.key(key, period)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Join(ErrStoreUnavailable, err)
	}

	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: counter %q is not an integer", ErrStoreUnavailable, v)
	}
	return n, nil
}
