package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/protype-ai/protype/internal/store"
)

const redisKeyPrefix = "protype:answer:"

// Redis caches answers in a shared Redis instance. Backend errors degrade
// to cache misses and are logged at debug, never surfaced to callers.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr string, ttl time.Duration, logger *slog.Logger) (*Redis, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return &Redis{client: client, ttl: ttl, logger: logger}, nil
}

func (c *Redis) Get(ctx context.Context, question string) (store.Entry, bool) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+store.Normalize(question)).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.Entry{}, false
	}
	if err != nil {
		c.logger.Debug("cache read failed", "error", err)
		return store.Entry{}, false
	}

	var e store.Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		c.logger.Debug("cache entry corrupt", "error", err)
		return store.Entry{}, false
	}
	return e, true
}

func (c *Redis) Set(ctx context.Context, entry store.Entry) {
	key := store.Normalize(entry.Question)
	if key == "" {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Debug("cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Debug("cache write failed", "error", err)
	}
}

func (c *Redis) Invalidate(ctx context.Context, question string) {
	if err := c.client.Del(ctx, redisKeyPrefix+store.Normalize(question)).Err(); err != nil {
		c.logger.Debug("cache invalidate failed", "error", err)
	}
}

// Close releases the client connection.
func (c *Redis) Close() error { return c.client.Close() }
