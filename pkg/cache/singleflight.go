package cache

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"
)

// SingleflightCache 防击穿装饰器
// 同一 key 的并发未命中只执行一次回源
type SingleflightCache struct {
	Cache
	group singleflight.Group
}

// NewSingleflightCache 包装底层缓存
func NewSingleflightCache(c Cache) *SingleflightCache {
	return &SingleflightCache{Cache: c}
}

// Forget 丢弃进行中的回源结果
func (s *SingleflightCache) Forget(key string) {
	s.group.Forget(key)
}

// RememberWithLock 读穿缓存：命中直接返回，未命中经 singleflight 回源并写回
// 回源返回 ErrCacheNotFound 时不写回
func RememberWithLock[T any](
	ctx context.Context,
	sf *SingleflightCache,
	key string,
	ttl time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	var cached T
	if err := sf.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	v, err, _ := sf.group.Do(key, func() (any, error) {
		result, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		_ = sf.Set(ctx, key, result, ttl)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	result, ok := v.(T)
	if !ok {
		var zero T
		return zero, errors.New("cache: unexpected singleflight result type")
	}
	return result, nil
}
