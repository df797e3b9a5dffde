package geo

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/engagement-tracker/internal/domain"
)

const cacheKeyPrefix = "geo:ip:"

// RedisCache caches lookup results in Redis as JSON with a fixed TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a Redis-backed cache. A non-positive ttl defaults to 24h.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}
}

// Get returns the cached location for ip. A miss is (zero, false, nil).
func (c *RedisCache) Get(ctx context.Context, ip string) (domain.GeoLocation, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+ip).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GeoLocation{}, false, nil
	}
	if err != nil {
		return domain.GeoLocation{}, false, err
	}
	var loc domain.GeoLocation
	if err := json.Unmarshal(raw, &loc); err != nil {
		return domain.GeoLocation{}, false, err
	}
	return loc, true, nil
}

// Set stores loc for ip.
func (c *RedisCache) Set(ctx context.Context, ip string, loc domain.GeoLocation) error {
	raw, err := json.Marshal(loc)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+ip, raw, c.ttl).Err()
}
