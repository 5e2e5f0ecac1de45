package media

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores lookup results by key. Values round-trip through JSON so the
// memory and redis backends behave the same.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, v any, ttl time.Duration)
	Close() error
}

// NewCache returns a redis-backed cache when redisURL is set, otherwise an
// in-memory one.
func NewCache(redisURL string) (Cache, error) {
	if redisURL == "" {
		return NewMemoryCache(10 * time.Minute), nil
	}
	return NewRedisCache(redisURL)
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

// MemoryCache is a TTL map swept periodically.
type MemoryCache struct {
	mu    sync.RWMutex
	items map[string]memoryItem
	now   func() time.Time
	stop  chan struct{}
	once  sync.Once
}

// NewMemoryCache starts a cache whose expired entries are dropped every gcEvery.
func NewMemoryCache(gcEvery time.Duration) *MemoryCache {
	c := &MemoryCache{
		items: make(map[string]memoryItem),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	if gcEvery > 0 {
		go c.gc(gcEvery)
	}
	return c
}

func (c *MemoryCache) gc(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mu.Lock()
	now := c.now()
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

func (c *MemoryCache) Get(_ context.Context, key string, dst any) bool {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || c.now().After(it.expiresAt) {
		return false
	}
	return json.Unmarshal(it.data, dst) == nil
}

func (c *MemoryCache) Set(_ context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	c.items[key] = memoryItem{data: data, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Len counts stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stop) })
	return nil
}

// RedisCache keeps entries in redis under a "jukebox:" prefix.
type RedisCache struct {
	rdb *redis.Client
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{rdb: redis.NewClient(opt)}, nil
}

// NewRedisCacheClient wraps an existing client.
func NewRedisCacheClient(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

// Ping checks the connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) bool {
	data, err := c.rdb.Get(ctx, "jukebox:"+key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *RedisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.rdb.Set(ctx, "jukebox:"+key, data, ttl).Err()
}

func (c *RedisCache) Close() error {
	if err := c.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
