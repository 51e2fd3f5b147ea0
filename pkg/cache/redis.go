package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisCache Redis 缓存实现
type redisCache struct {
	client     redis.UniversalClient
	serializer Serializer
	keyPrefix  string
	defaultTTL time.Duration
}

// newRedisCache 创建 Redis 缓存实例并检测连通性
func newRedisCache(cfg *Config) (Cache, error) {
	client := newRedisClient(cfg.Redis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %w", ErrCacheConnection, err)
	}

	return &redisCache{
		client:     client,
		serializer: cfg.Serializer,
		keyPrefix:  cfg.KeyPrefix,
		defaultTTL: cfg.DefaultTTL,
	}, nil
}

// newRedisClient 按模式构建客户端
func newRedisClient(cfg *RedisConfig) redis.UniversalClient {
	switch cfg.Mode {
	case RedisCluster:
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        cfg.Addrs,
			Username:     cfg.Username,
			Password:     cfg.Password,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	case RedisSentinel:
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.MasterName,
			SentinelAddrs: cfg.Addrs,
			Username:      cfg.Username,
			Password:      cfg.Password,
			DB:            cfg.DB,
			PoolSize:      cfg.PoolSize,
			MinIdleConns:  cfg.MinIdleConns,
			MaxRetries:    cfg.MaxRetries,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	default:
		return redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			MaxRetries:   cfg.MaxRetries,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}
}

// Get 获取缓存
func (r *redisCache) Get(ctx context.Context, key string, value any) error {
	data, err := r.client.Get(ctx, buildKey(r.keyPrefix, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheNotFound
		}
		return fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	if err := r.serializer.Unmarshal(data, value); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	return nil
}

// Set 设置缓存
func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := r.serializer.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheSerialization, err)
	}
	if ttl == 0 {
		ttl = r.defaultTTL
	}
	if err := r.client.Set(ctx, buildKey(r.keyPrefix, key), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	return nil
}

// Delete 删除缓存
func (r *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = buildKey(r.keyPrefix, key)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	return nil
}

// Exists 检查键是否存在
func (r *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, buildKey(r.keyPrefix, key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	return n > 0, nil
}

// TTL 剩余生存时间，-1 表示永不过期
func (r *redisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, buildKey(r.keyPrefix, key)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	// go-redis: -2 键不存在，-1 无过期
	switch ttl {
	case -2:
		return 0, ErrCacheNotFound
	case -1:
		return -1, nil
	}
	return ttl, nil
}

// Expire 刷新过期时间
func (r *redisCache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := r.client.Expire(ctx, buildKey(r.keyPrefix, key), ttl).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCacheOperation, err)
	}
	if !ok {
		return ErrCacheNotFound
	}
	return nil
}

// Ping 检测连通性
func (r *redisCache) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCacheConnection, err)
	}
	return nil
}

// Close 关闭客户端
func (r *redisCache) Close() error {
	return r.client.Close()
}
