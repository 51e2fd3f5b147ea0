package cache

import "github.com/tokmz/huddle/pkg/errors"

// 预定义错误
var (
	ErrCacheNotFound      = errors.New(3101, "cache_miss", "cache key not found", 404)
	ErrCacheConnection    = errors.New(3102, "cache_connection", "cache connection failed", 500)
	ErrCacheSerialization = errors.New(3103, "cache_serialization", "cache serialization failed", 500)
	ErrCacheInvalidConfig = errors.New(3104, "cache_config", "cache invalid config", 500)
	ErrCacheOperation     = errors.New(3105, "cache_operation", "cache operation failed", 500)
)
