// Package sessioncache keeps user context snapshots in Redis in front of a
// durable store.
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tavleenbajwa8/research-brief-generator/internal/brief"
	"github.com/tavleenbajwa8/research-brief-generator/internal/metrics"
)

// Store is the durable context store behind the cache.
type Store interface {
	GetContext(ctx context.Context, userID string) (*brief.UserContext, error)
	SaveBrief(ctx context.Context, userID string, b *brief.FinalBrief) error
}

// Cache is a read-through cache. Redis failures degrade to the store.
type Cache struct {
	store  Store
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// Connect opens a Redis client and verifies it with a ping.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// New wraps store with a Redis cache.
func New(client *redis.Client, store Store, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, client: client, ttl: ttl, logger: logger}
}

// GetContext serves from Redis when possible and fills the cache on a miss.
func (c *Cache) GetContext(ctx context.Context, userID string) (*brief.UserContext, error) {
	key := c.key(userID)
	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var uc brief.UserContext
		if err := json.Unmarshal(data, &uc); err == nil {
			metrics.ContextCacheHits.Inc()
			return &uc, nil
		}
		c.logger.Warn("discarding corrupt cached context", zap.String("user_id", userID))
		c.client.Del(ctx, key)
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("redis read failed, using store", zap.String("user_id", userID), zap.Error(err))
	}
	metrics.ContextCacheMisses.Inc()

	uc, err := c.store.GetContext(ctx, userID)
	if err != nil || uc == nil {
		return uc, err
	}

	if data, err := json.Marshal(uc); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Warn("redis write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return uc, nil
}

// SaveBrief writes through to the store and invalidates the cached context.
func (c *Cache) SaveBrief(ctx context.Context, userID string, b *brief.FinalBrief) error {
	if err := c.store.SaveBrief(ctx, userID, b); err != nil {
		return err
	}
	if userID == "" {
		return nil
	}
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		c.logger.Warn("redis invalidate failed", zap.String("user_id", userID), zap.Error(err))
	}
	return nil
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) key(userID string) string {
	return "briefgen:context:" + userID
}
