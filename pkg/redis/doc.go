// Package redis connects the engine to Redis, which backs the usage counters
// (quota.RedisStore) and real-time notification delivery
// (notifications.RedisDeliverer) when configured.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := quota.NewRedisStore(client, quota.WithKeyPrefix(cfg.KeyPrefix))
package redis
