package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/forest-dashboard/backend/pkg/logger"
)

const keyPrefix = "forest"

// Cache stores JSON payloads by kind and key. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, kind, key string, out any) (bool, error)
	Set(ctx context.Context, kind, key string, value any, ttl time.Duration) error
}

type Client struct {
	client *redis.Client
}

func NewClient(ctx context.Context, host string, port int, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", fmt.Sprintf("%s:%d", host, port)))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func cacheKey(kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", keyPrefix, kind, key)
}

func (c *Client) Set(ctx context.Context, kind, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", kind, err)
	}

	if err := c.client.Set(ctx, cacheKey(kind, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s cache: %w", kind, err)
	}

	logger.Debug("Payload cached", zap.String("kind", kind), zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (c *Client) Get(ctx context.Context, kind, key string, out any) (bool, error) {
	data, err := c.client.Get(ctx, cacheKey(kind, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s cache: %w", kind, err)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s payload: %w", kind, err)
	}

	logger.Debug("Cache hit", zap.String("kind", kind), zap.String("key", key))
	return true, nil
}

// Invalidate deletes every cached payload of the given kinds, for example
// after the warehouse tables were reloaded.
func (c *Client) Invalidate(ctx context.Context, kinds ...string) (int, error) {
	deleted := 0
	for _, kind := range kinds {
		iter := c.client.Scan(ctx, 0, cacheKey(kind, "*"), 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
				continue
			}
			deleted++
		}
		if err := iter.Err(); err != nil {
			return deleted, fmt.Errorf("failed to iterate %s cache keys: %w", kind, err)
		}
	}

	logger.Info("Cache invalidated", zap.Strings("kinds", kinds), zap.Int("deleted", deleted))
	return deleted, nil
}
