package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Cache — JSON read-through cache
// ─────────────────────────────────────────────────────────────────────────────

// Cache is a JSON read-through cache over the shared Client. Concurrent fills
// of the same key collapse into one upstream call via singleflight, and TTLs
// are jittered so hot keys do not expire in lockstep.
type Cache struct {
	client *Client
	group  singleflight.Group
	logger logging.Logger
}

// NewCache builds a cache over the shared client.
func NewCache(client *Client, logger logging.Logger) *Cache {
	return &Cache{client: client, logger: logger}
}

// Get unmarshals the cached value at key into dest. The bool reports a hit.
func (c *Cache) Get(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := c.client.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		// A corrupt entry is dropped and treated as a miss.
		c.logger.Warn("cache entry corrupt, evicting",
			logging.String("key", key), logging.Err(err))
		_, _ = c.client.Del(ctx, key)
		return false, nil
	}
	return true, nil
}

// Set marshals v and stores it at key with a jittered TTL.
func (c *Cache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return appErrors.Wrap(err, appErrors.CodeInternal, "cache value marshal failed")
	}
	return c.client.Set(ctx, key, string(data), jitterTTL(ttl))
}

// Delete removes the given keys.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.client.Del(ctx, keys...)
	return err
}

// GetOrSet returns the cached value at key, filling it from fill on a miss.
// Concurrent misses for the same key share a single fill. A cache read or
// write failure degrades to serving the filled value directly.
func (c *Cache) GetOrSet(ctx context.Context, key string, ttl time.Duration, dest any, fill func(ctx context.Context) (any, error)) error {
	raw, ok, err := c.client.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed, filling directly",
			logging.String("key", key), logging.Err(err))
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), dest); err == nil {
			return nil
		}
		_, _ = c.client.Del(ctx, key)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if raw, ok, err := c.client.Get(ctx, key); err == nil && ok {
			return []byte(raw), nil
		}
		val, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(val)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.CodeInternal, "cache fill marshal failed")
		}
		if err := c.client.Set(ctx, key, string(data), jitterTTL(ttl)); err != nil {
			c.logger.Warn("cache fill write failed",
				logging.String("key", key), logging.Err(err))
		}
		return data, nil
	})
	if err != nil {
		return err
	}
	return json.Unmarshal(v.([]byte), dest)
}

// InvalidateByPrefix removes every key under prefix using incremental SCAN,
// returning the number of keys deleted.
func (c *Cache) InvalidateByPrefix(ctx context.Context, prefix string) (int64, error) {
	if err := c.client.guard(); err != nil {
		return 0, err
	}

	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return deleted, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "cache scan failed")
		}
		if len(keys) > 0 {
			n, err := c.client.Del(ctx, keys...)
			if err != nil {
				return deleted, err
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

// jitterTTL spreads expiries by ±10% so cohorts written together do not
// expire together.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return ttl
	}
	jitter := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(ttl) * jitter)
}
