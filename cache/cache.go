// Package cache memoizes rendered pages in Redis
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Cache wraps a Redis client. A nil *Cache or one without a client is disabled.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New creates a cache for addr. An empty addr or non-positive ttl disables caching.
func New(addr string, ttl time.Duration) *Cache {
	if addr == "" || ttl <= 0 {
		return &Cache{}
	}
	return NewWithOptions(&redis.Options{
		Addr:        addr,
		DialTimeout: 2 * time.Second,
	}, ttl)
}

// NewWithOptions creates a cache from explicit Redis options
func NewWithOptions(opts *redis.Options, ttl time.Duration) *Cache {
	return &Cache{
		client: redis.NewClient(opts),
		ttl:    ttl,
		prefix: "fundholdings:",
	}
}

// Enabled reports whether lookups go to Redis
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Ping checks the connection
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the client
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

// Memoize returns the cached value for key or calls fn and stores its result.
// Redis errors never fail the call; results of a failing fn are not stored.
func Memoize[T any](ctx context.Context, c *Cache, key string, fn func() (T, error)) (T, error) {
	if !c.Enabled() {
		return fn()
	}

	var result T
	key = c.prefix + key

	// Try fetching from cache
	cachedData, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		if jsonErr := json.Unmarshal(cachedData, &result); jsonErr == nil {
			logrus.WithField("key", key).Debug("cache hit")
			return result, nil
		}
	} else if err != redis.Nil {
		logrus.WithError(err).Debug("cache lookup failed")
	}

	result, err = fn()
	if err != nil {
		return result, err
	}

	cacheData, err := json.Marshal(result)
	if err == nil {
		err = c.client.Set(ctx, key, cacheData, c.ttl).Err()
	}
	if err != nil {
		logrus.WithError(err).Debug("cache store failed")
	}

	return result, nil
}
