package events

import (
	"context"
	"fmt"

	"github.com/bkohler93/match3-backend/internal/shared/config"
	"github.com/bkohler93/match3-backend/internal/shared/utils/redisutils"
)

// FromConfig builds the publisher named by EVENTS_BACKEND.
func FromConfig(ctx context.Context, cfg *config.Config) (Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsRedis:
		rdb, err := redisutils.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return NewRedisStreamPublisher(rdb, cfg.RedisEventsStream), nil
	case config.EventsNATS:
		return DialNATS(cfg.NATSURL, cfg.NATSEventsSubject)
	default:
		return NopPublisher{}, nil
	}
}
