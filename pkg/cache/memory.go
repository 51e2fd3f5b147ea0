package cache

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache 进程内缓存实现
type memoryCache struct {
	cache      *gocache.Cache
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

func newMemoryCache(cfg *Config) *memoryCache {
	return &memoryCache{
		cache:      gocache.New(cfg.Memory.DefaultExpiration, cfg.Memory.CleanupInterval),
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}
}

// Get 获取缓存
func (m *memoryCache) Get(_ context.Context, key string, value any) error {
	data, found := m.cache.Get(buildKey(m.keyPrefix, key))
	if !found {
		return ErrCacheNotFound
	}
	raw, ok := data.([]byte)
	if !ok {
		return fmt.Errorf("%w: invalid cache data type", ErrCacheSerialization)
	}
	if err := m.serializer.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	return nil
}

// Set 设置缓存（序列化后存储，与 Redis 行为一致）
func (m *memoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := m.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	m.cache.Set(buildKey(m.keyPrefix, key), raw, ttl)
	return nil
}

// Delete 删除缓存
func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		m.cache.Delete(buildKey(m.keyPrefix, key))
	}
	return nil
}

// Exists 检查键是否存在
func (m *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, found := m.cache.Get(buildKey(m.keyPrefix, key))
	return found, nil
}

// TTL 剩余生存时间，-1 表示永不过期
func (m *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	_, expiration, found := m.cache.GetWithExpiration(buildKey(m.keyPrefix, key))
	if !found {
		return 0, ErrCacheNotFound
	}
	if expiration.IsZero() {
		return -1, nil
	}
	return time.Until(expiration), nil
}

// Expire 刷新过期时间
func (m *memoryCache) Expire(_ context.Context, key string, ttl time.Duration) error {
	full := buildKey(m.keyPrefix, key)
	data, found := m.cache.Get(full)
	if !found {
		return ErrCacheNotFound
	}
	m.cache.Set(full, data, ttl)
	return nil
}

func (m *memoryCache) Ping(context.Context) error { return nil }

// Close 清空缓存
func (m *memoryCache) Close() error {
	m.cache.Flush()
	return nil
}
