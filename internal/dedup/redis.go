package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"travel-inquiry-agent/config"
)

const keyPrefix = "processed:"

// RedisCache is the production Cache backed by Redis. Marks survive process
// restarts, so a crashed batch never re-emits quotes for messages it already
// finished.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg config.RedisConfig, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logrus.Infof("Connected to redis at %s (dedup ttl %s)", cfg.Address, ttl)
	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	n, err := c.client.Exists(ctx, keyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check processed mark: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) MarkProcessed(ctx context.Context, messageID string) error {
	if err := c.client.Set(ctx, keyPrefix+messageID, time.Now().UTC().Format(time.RFC3339), c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
