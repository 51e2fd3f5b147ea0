package middleware

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

// RateLimiterConfig 限流中间件配置
type RateLimiterConfig struct {
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `mapstructure:"burst" yaml:"burst"`
	BucketExpiry      time.Duration `mapstructure:"bucket_expiry" yaml:"bucket_expiry"` // 无访问多久后回收令牌桶

	KeyFunc  func(c *huddle.Context) string `mapstructure:"-" yaml:"-"` // 默认客户端 IP
	SkipFunc func(c *huddle.Context) bool   `mapstructure:"-" yaml:"-"`
	Logger   logger.Logger                  `mapstructure:"-" yaml:"-"`
}

// DefaultRateLimiterConfig 每个 IP 每秒 5 次握手，突发 20
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		RequestsPerSecond: 5,
		Burst:             20,
		BucketExpiry:      10 * time.Minute,
	}
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	maxTokens  float64
	refillRate float64
	lastRefill time.Time
}

func (t *tokenBucket) allow(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tokens += now.Sub(t.lastRefill).Seconds() * t.refillRate
	if t.tokens > t.maxTokens {
		t.tokens = t.maxTokens
	}
	t.lastRefill = now
	if t.tokens >= 1 {
		t.tokens--
		return true
	}
	return false
}

// RateLimiter 令牌桶限流，按 key 分桶，桶存放在带过期的内存缓存中
func RateLimiter(cfgs ...*RateLimiterConfig) huddle.HandlerFunc {
	cfg := DefaultRateLimiterConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *huddle.Context) string { return c.ClientIP() }
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
	}
	if cfg.BucketExpiry <= 0 {
		cfg.BucketExpiry = 10 * time.Minute
	}

	buckets := gocache.New(cfg.BucketExpiry, cfg.BucketExpiry)
	bucketFor := func(key string, now time.Time) *tokenBucket {
		if v, ok := buckets.Get(key); ok {
			return v.(*tokenBucket)
		}
		b := &tokenBucket{
			tokens:     float64(cfg.Burst),
			maxTokens:  float64(cfg.Burst),
			refillRate: cfg.RequestsPerSecond,
			lastRefill: now,
		}
		// 并发创建时以先写入者为准
		if err := buckets.Add(key, b, gocache.DefaultExpiration); err != nil {
			if v, ok := buckets.Get(key); ok {
				return v.(*tokenBucket)
			}
		}
		return b
	}

	return func(c *huddle.Context) {
		if cfg.SkipFunc != nil && cfg.SkipFunc(c) {
			c.Next()
			return
		}

		key := cfg.KeyFunc(c)
		now := time.Now()
		b := bucketFor(key, now)
		buckets.SetDefault(key, b) // 续期

		if !b.allow(now) {
			cfg.Logger.Warn("rate limit exceeded",
				zap.String("key", key),
				zap.String("path", c.Request().URL.Path))
			c.AbortWithError(errors.ErrTooManyRequests)
			return
		}
		c.Next()
	}
}
