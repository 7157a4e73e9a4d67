// Package ratelimiter throttles request bursts with a token bucket per key.
//
// It sits in front of the public anonymous usage routes, keyed by the client
// fingerprint, so a single browser cannot hammer the gate faster than a human
// would. It is not an entitlement check: monthly and lifetime allowances live
// in the quota and usage packages. Throttling is best effort and fails open
// when the store is unreachable.
//
// Buckets refill RefillRate tokens every RefillInterval up to Capacity.
// A denied request does not consume tokens.
//
//	bucket, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
//		Capacity:       30,
//		RefillRate:     1,
//		RefillInterval: 2 * time.Second,
//	})
//	if err != nil {
//		return err
//	}
//	r.With(ratelimiter.Middleware(bucket, keyFunc)).Mount("/anonymous/usage", svc.Handle())
//
// MemoryStore suits a single replica. RedisStore shares buckets between
// replicas through one Lua script per request.
package ratelimiter
