package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis is the backend's pair of connections. Data serves OTP codes,
// refresh tokens, job locks and the generation queue. Events only carries
// pub/sub, so a long-lived subscription never waits behind a BLPOP.
type Redis struct {
	Data   *redis.Client
	Events *redis.Client
}

// ConnectRedis opens both connections and pings them.
func ConnectRedis(ctx context.Context, redisURL string) (*Redis, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	eventsOpt := *opt
	r := &Redis{
		Data:   redis.NewClient(opt),
		Events: redis.NewClient(&eventsOpt),
	}
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Ping checks both connections.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.Data.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis (data): %w", err)
	}
	if err := r.Events.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping Redis (events): %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return errors.Join(r.Data.Close(), r.Events.Close())
}
