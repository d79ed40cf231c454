package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// Lookup is a cached global search outcome. Found is false for cached misses.
type Lookup struct {
	Match Match `json:"match"`
	Found bool  `json:"found"`
}

// Cache stores global search outcomes keyed by normalized question.
type Cache interface {
	Get(ctx context.Context, key string) (Lookup, bool, error)
	Set(ctx context.Context, key string, value Lookup) error
	Reset(ctx context.Context) error
}

const (
	// DefaultCacheTTL bounds how long a cached lookup, including a miss, lives.
	DefaultCacheTTL = 10 * time.Minute
	// DefaultLocalCacheSize caps the in-process cache entry count.
	DefaultLocalCacheSize = 4096
)

// LocalCache is an in-process Cache bounded by entry count and TTL. The least
// recently used entry is evicted when the cache is full.
type LocalCache struct {
	lru *expirable.LRU[string, Lookup]
}

// NewLocalCache builds a cache holding at most size entries for ttl each.
// Non-positive values select the defaults.
func NewLocalCache(size int, ttl time.Duration) *LocalCache {
	if size <= 0 {
		size = DefaultLocalCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LocalCache{lru: expirable.NewLRU[string, Lookup](size, nil, ttl)}
}

func (c *LocalCache) Get(_ context.Context, key string) (Lookup, bool, error) {
	entry, ok := c.lru.Get(key)
	return entry, ok, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value Lookup) error {
	c.lru.Add(key, value)
	return nil
}

func (c *LocalCache) Reset(context.Context) error {
	c.lru.Purge()
	return nil
}

// Len reports the number of live entries.
func (c *LocalCache) Len() int {
	return c.lru.Len()
}

const redisKeyPrefix = "autofill:memory:global:"

// RedisConfig configures the shared search cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// RedisCache shares global search outcomes between service instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisCacheWithClient(client, cfg.TTL), nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (Lookup, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Lookup{}, false, nil
	}
	if err != nil {
		return Lookup{}, false, fmt.Errorf("redis get: %w", err)
	}
	var entry Lookup
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Lookup{}, false, fmt.Errorf("decode cached lookup: %w", err)
	}
	return entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value Lookup) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cached lookup: %w", err)
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Reset drops every cached lookup under the cache prefix.
func (c *RedisCache) Reset(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, redisKeyPrefix+"*", 200).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Close releases the Redis connection pool.
func (c *RedisCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
