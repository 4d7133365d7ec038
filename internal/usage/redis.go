package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds configuration for the Redis connection.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCounter counts usage in Redis so several server processes share one
// limit. Keys expire a day after the counter day ends.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCounter connects to Redis and verifies the connection.
func NewRedisCounter(cfg RedisConfig) (*RedisCounter, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisCounter{rdb: rdb, prefix: "alcance:usage"}, nil
}

// Key returns the Redis key for a user's counter on day.
func (c *RedisCounter) Key(userID, day string) string {
	return c.prefix + ":" + day + ":" + userID
}

// Increment implements Counter.
func (c *RedisCounter) Increment(ctx context.Context, userID, day string) (int, error) {
	start, err := time.Parse(DayLayout, day)
	if err != nil {
		return 0, fmt.Errorf("parse day %q: %w", day, err)
	}

	key := c.Key(userID, day)
	var incr *redis.IntCmd
	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, start.Add(48*time.Hour))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return int(incr.Val()), nil
}

// RawClient returns the underlying go-redis client.
func (c *RedisCounter) RawClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *RedisCounter) Close() error {
	return c.rdb.Close()
}
