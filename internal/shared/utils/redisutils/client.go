package redisutils

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects and pings. Use addr=localhost:6379 and an empty password for development.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		Password: password,
		Protocol: 2,
		PoolSize: 10,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}
