// Package cache provides a JSON value cache on top of Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// NewRedisClient parses a redis:// URL and pings the server once.
func NewRedisClient(ctx context.Context, url string) (*goredis.Client, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is empty")
	}
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// Tombstone is stored in place of a value that was invalidated. It is not
// valid JSON, so it can never collide with a cached entry.
const Tombstone = "<invalidated>"

// DefaultTombstoneTTL bounds how long an invalidated key refuses fills.
const DefaultTombstoneTTL = 30 * time.Second

// RedisCache stores JSON-encoded values under a common key prefix.
//
// Writers invalidate by overwriting the key with a tombstone, and readers
// fill with SET NX. A reader that loaded a row before a concurrent write
// committed therefore cannot put the old row back.
type RedisCache struct {
	client       goredis.UniversalClient
	prefix       string
	ttl          time.Duration
	tombstoneTTL time.Duration
}

// New returns a cache whose entries expire after ttl. A zero ttl keeps
// entries until they are invalidated.
func New(client goredis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, tombstoneTTL: DefaultTombstoneTTL}
}

// WithTombstoneTTL returns a copy of c whose tombstones live for d.
func (c *RedisCache) WithTombstoneTTL(d time.Duration) *RedisCache {
	cp := *c
	cp.tombstoneTTL = d
	return &cp
}

func (c *RedisCache) key(k string) string { return c.prefix + k }

// Get decodes the value stored under key into dst. It reports false on a
// miss, including a tombstoned key.
func (c *RedisCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if string(b) == Tombstone {
		return false, nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	return true, nil
}

// Fill stores v under key only when the key is absent. It reports whether
// the value was written; a live entry or tombstone wins.
func (c *RedisCache) Fill(ctx context.Context, key string, v interface{}) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache encode %s: %w", key, err)
	}
	ok, err := c.client.SetNX(ctx, c.key(key), b, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache fill %s: %w", key, err)
	}
	return ok, nil
}

// Invalidate replaces every key with a tombstone.
func (c *RedisCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	pipe := c.client.TxPipeline()
	for _, k := range keys {
		pipe.Set(ctx, c.key(k), Tombstone, c.tombstoneTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
