package cache

import (
	"fmt"
	"time"
)

// DriverType 驱动类型
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory"
)

// RedisMode Redis 模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置
type Config struct {
	Driver     DriverType    `mapstructure:"driver" yaml:"driver"`
	Redis      *RedisConfig  `mapstructure:"redis" yaml:"redis,omitempty"`
	Memory     *MemoryConfig `mapstructure:"memory" yaml:"memory,omitempty"`
	Serializer Serializer    `mapstructure:"-" yaml:"-"`
	KeyPrefix  string        `mapstructure:"key_prefix" yaml:"key_prefix"`   // 键前缀（避免冲突）
	DefaultTTL time.Duration `mapstructure:"default_ttl" yaml:"default_ttl"` // ttl 传 0 时使用
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr         string        `mapstructure:"addr" yaml:"addr"`                     // 地址（单机）
	Addrs        []string      `mapstructure:"addrs" yaml:"addrs"`                   // 地址列表（集群/哨兵）
	Mode         RedisMode     `mapstructure:"mode" yaml:"mode"`                     // standalone, cluster, sentinel
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password,omitempty"`
	DB           int           `mapstructure:"db" yaml:"db"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MasterName   string        `mapstructure:"master_name" yaml:"master_name"`       // 哨兵模式主节点名称
}

// MemoryConfig 内存缓存配置
type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration" yaml:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval"`
}

// DefaultConfig 默认配置（内存驱动）
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		Serializer: &JSONSerializer{},
		DefaultTTL: 10 * time.Minute,
		Memory:     DefaultMemoryConfig(),
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		Mode:         RedisStandalone,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// DefaultMemoryConfig 默认 Memory 配置
func DefaultMemoryConfig() *MemoryConfig {
	return &MemoryConfig{
		DefaultExpiration: 10 * time.Minute,
		CleanupInterval:   time.Minute,
	}
}

// Option 配置选项
type Option func(*Config)

// WithRedis 使用 Redis 驱动
func WithRedis(cfg *RedisConfig) Option {
	return func(c *Config) {
		c.Driver = DriverRedis
		c.Redis = cfg
	}
}

// WithMemory 使用内存驱动
func WithMemory(cfg *MemoryConfig) Option {
	return func(c *Config) {
		c.Driver = DriverMemory
		c.Memory = cfg
	}
}

// WithKeyPrefix 设置键前缀
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithDefaultTTL 设置默认 TTL
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.DefaultTTL = ttl
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Serializer == nil {
		return fmt.Errorf("%w: serializer is required", ErrCacheInvalidConfig)
	}

	switch c.Driver {
	case DriverMemory:
		if c.Memory == nil {
			c.Memory = DefaultMemoryConfig()
		}
		return nil
	case DriverRedis:
	default:
		return fmt.Errorf("%w: invalid driver type %q", ErrCacheInvalidConfig, c.Driver)
	}

	if c.Redis == nil {
		return fmt.Errorf("%w: redis config is required", ErrCacheInvalidConfig)
	}
	switch c.Redis.Mode {
	case RedisStandalone, "":
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is required for standalone mode", ErrCacheInvalidConfig)
		}
	case RedisCluster:
		if len(c.Redis.Addrs) == 0 {
			return fmt.Errorf("%w: redis cluster requires addrs", ErrCacheInvalidConfig)
		}
	case RedisSentinel:
		if len(c.Redis.Addrs) == 0 || c.Redis.MasterName == "" {
			return fmt.Errorf("%w: redis sentinel requires addrs and master name", ErrCacheInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: invalid redis mode %q", ErrCacheInvalidConfig, c.Redis.Mode)
	}
	return nil
}
