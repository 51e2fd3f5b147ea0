package huddle

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/huddle/pkg/logger"
)

// ServerConfig 服务器配置
type ServerConfig struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes" yaml:"max_header_bytes"`
	TLS            TLSConfig     `mapstructure:"tls" yaml:"tls"`
}

// TLSConfig 证书与私钥都存在时启用 HTTPS
type TLSConfig struct {
	CertFile string `mapstructure:"cert_file" yaml:"cert_file"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file"`
}

// ShutdownHook 关机回调，按注册顺序执行
type ShutdownHook func(ctx context.Context) error

// Config 应用配置
type Config struct {
	Mode           string // debug, release, test
	Server         ServerConfig
	ShutdownTime   time.Duration
	TrustedProxies []string
	Logger         logger.Logger
}

// Option 配置选项函数
type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		Mode: gin.ReleaseMode,
		Server: ServerConfig{
			Addr:           ":5000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		ShutdownTime: 15 * time.Second,
	}
}

// WithMode 设置运行模式
func WithMode(mode string) Option {
	return func(c *Config) {
		if mode != "" {
			c.Mode = mode
		}
	}
}

// WithServer 整体替换服务器配置
func WithServer(s ServerConfig) Option {
	return func(c *Config) { c.Server = s }
}

// WithAddr 设置监听地址
func WithAddr(addr string) Option {
	return func(c *Config) { c.Server.Addr = addr }
}

// WithShutdownTimeout 设置关机超时时间
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTime = d }
}

// WithTrustedProxies 设置信任的代理
func WithTrustedProxies(proxies ...string) Option {
	return func(c *Config) { c.TrustedProxies = proxies }
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(c *Config) { c.Logger = l }
}
