package data

import (
	"context"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ByteCache is the warm tier in front of slow stores. Implementations must
// be safe for concurrent use; a miss and an expired entry are the same.
type ByteCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
}

// Pinger is implemented by caches with a remote backend; health checks probe
// it when present.
type Pinger interface {
	Ping(ctx context.Context) error
}

type memoryCache struct {
	mu sync.Mutex
	m  map[string]memoryEntry
}

type memoryEntry struct {
	b   []byte
	exp time.Time
}

// NewMemoryCache returns an in-process cache with per-entry TTLs.
func NewMemoryCache() ByteCache {
	return &memoryCache{m: make(map[string]memoryEntry)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !e.exp.IsZero() && time.Now().After(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.b, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := memoryEntry{b: append([]byte(nil), val...)}
	if ttl > 0 {
		e.exp = time.Now().Add(ttl)
	}
	c.m[key] = e
}

// redisCache adapts go-redis behind ByteCache. Cache traffic must never
// stall a request, so every operation gets a short timeout and failures
// degrade to a miss.
type redisCache struct {
	r *redis.Client
}

const redisOpTimeout = 500 * time.Millisecond

// NewRedisCache wraps an existing client.
func NewRedisCache(client *redis.Client) ByteCache {
	return &redisCache{r: client}
}

// NewAutoCache returns a redis-backed cache when addr is configured and an
// in-memory one otherwise.
func NewAutoCache(addr, password string, db int) ByteCache {
	if addr == "" {
		return NewMemoryCache()
	}
	return NewRedisCache(redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}))
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	v, err := c.r.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	return v, true
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_ = c.r.Set(ctx, key, val, ttl).Err()
}

func (c *redisCache) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return c.r.Ping(ctx).Err()
}
