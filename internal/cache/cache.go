// Package cache stores short-lived response blobs in redis when it is
// available and in an in-process expirable LRU otherwise.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultLRUSize = 1024

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// New prefers redis. ttl applies to every entry.
func New(client *redis.Client, namespace string, ttl time.Duration, log *zap.Logger) Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if client != nil {
		return NewRedisCache(client, namespace, ttl, log)
	}
	return NewLRUCache(defaultLRUSize, ttl)
}

type redisCache struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
	log       *zap.Logger
}

func NewRedisCache(client *redis.Client, namespace string, ttl time.Duration, log *zap.Logger) Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &redisCache{client: client, namespace: namespace, ttl: ttl, log: log}
}

// Get treats redis errors as misses.
func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	value, err := c.client.Get(ctx, Key(c.namespace, key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return value, true
}

func (c *redisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, Key(c.namespace, key), value, c.ttl).Err(); err != nil {
		c.log.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

type lruCache struct {
	entries *lru.LRU[string, []byte]
}

func NewLRUCache(size int, ttl time.Duration) Cache {
	if size <= 0 {
		size = defaultLRUSize
	}
	return &lruCache{entries: lru.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *lruCache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.entries.Get(key)
}

func (c *lruCache) Set(_ context.Context, key string, value []byte) {
	c.entries.Add(key, value)
}

// Key joins non-empty parts, lower-cased, with ":".
func Key(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, ":")
}
