package events

import (
	"context"
	"encoding/json"

	"github.com/bkohler93/match3-backend/internal/shared/utils/redisutils/rediskeys"
	"github.com/redis/go-redis/v9"
)

// RedisStreamPublisher appends each event to a stream as a single JSON payload field.
type RedisStreamPublisher struct {
	rdb    *redis.Client
	stream string
}

func NewRedisStreamPublisher(rdb *redis.Client, stream string) *RedisStreamPublisher {
	if stream == "" {
		stream = rediskeys.MatchEventsStream
	}
	return &RedisStreamPublisher{rdb: rdb, stream: stream}
}

func (r *RedisStreamPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		ID:     "*",
		Values: map[string]interface{}{
			rediskeys.PayloadField: data,
		},
	}).Err()
}

func (r *RedisStreamPublisher) Close() error {
	return r.rdb.Close()
}
