package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache 缓存接口
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)

	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// Serializer 序列化接口
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// JSONSerializer JSON 序列化器（默认）
type JSONSerializer struct{}

func (s *JSONSerializer) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (s *JSONSerializer) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// New 创建缓存实例
func New(cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Serializer == nil {
		cfg.Serializer = &JSONSerializer{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverRedis:
		return newRedisCache(cfg)
	case DriverMemory:
		return newMemoryCache(cfg), nil
	default:
		return nil, fmt.Errorf("%w: unsupported driver %q", ErrCacheInvalidConfig, cfg.Driver)
	}
}

// NewWithOptions 使用 Options 模式创建缓存实例
func NewWithOptions(opts ...Option) (Cache, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// buildKey 拼接键前缀
func buildKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}
