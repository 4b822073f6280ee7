// Package redis provides the platform's Redis-backed coordination state:
// the cross-run seen-store, the per-source pipeline run lock, and a small
// read-through cache. Nothing authoritative lives here; the Pool in
// PostgreSQL remains the system of record.
package redis

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/ResearchPool-Intelligence/internal/config"
	"github.com/turtacn/ResearchPool-Intelligence/internal/infrastructure/monitoring/logging"
	appErrors "github.com/turtacn/ResearchPool-Intelligence/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Client
// ─────────────────────────────────────────────────────────────────────────────

const (
	defaultDialTimeout  = 5 * time.Second
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultTTL          = 7 * 24 * time.Hour
)

// Client wraps a go-redis connection with lifecycle guards, key prefixing and
// the platform error taxonomy. The seen-store, run lock and cache in this
// package all share one Client.
type Client struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient connects to Redis and verifies the connection with a ping before
// returning. An unreachable server fails construction rather than the first
// pipeline run.
func NewClient(cfg config.RedisConfig, logger logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, appErrors.ConfigInvalid("redis addr must not be empty")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = defaultTTL
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout+time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis ping failed")
	}

	logger.Info("redis client connected",
		logging.String("addr", cfg.Addr),
		logging.Int("db", cfg.DB),
		logging.String("key_prefix", cfg.KeyPrefix))

	return &Client{
		rdb:    rdb,
		prefix: strings.TrimSuffix(cfg.KeyPrefix, ":"),
		ttl:    cfg.DefaultTTL,
		logger: logger,
	}, nil
}

// Key joins the configured prefix and the given parts with colons.
func (c *Client) Key(parts ...string) string {
	if c.prefix == "" {
		return strings.Join(parts, ":")
	}
	return c.prefix + ":" + strings.Join(parts, ":")
}

// DefaultTTL is the expiry applied when a caller does not specify one.
func (c *Client) DefaultTTL() time.Duration {
	return c.ttl
}

// Healthy reports whether the server answers a ping.
func (c *Client) Healthy(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis ping failed")
	}
	return nil
}

// Close releases the connection pool. Subsequent calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.rdb.Close()
}

// guard rejects operations on a closed client.
func (c *Client) guard() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return appErrors.New(appErrors.CodeStorageUnavailable, "redis client is closed")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Command surface for callers outside this package
// ─────────────────────────────────────────────────────────────────────────────

// Get returns the raw value at key, or ("", false, nil) when the key is
// absent.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	if err := c.guard(); err != nil {
		return "", false, err
	}
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis GET failed")
	}
	return val, true, nil
}

// Set writes key with the given TTL; ttl <= 0 falls back to the default.
func (c *Client) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.guard(); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis SET failed")
	}
	return nil
}

// Del removes the given keys, returning the number actually deleted.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis DEL failed")
	}
	return n, nil
}

// Exists reports how many of the given keys exist.
func (c *Client) Exists(ctx context.Context, keys ...string) (int64, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	n, err := c.rdb.Exists(ctx, keys...).Result()
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.CodeStorageUnavailable, "redis EXISTS failed")
	}
	return n, nil
}
