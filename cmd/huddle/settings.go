package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/tokmz/huddle"
	"github.com/tokmz/huddle/middleware"
	"github.com/tokmz/huddle/pkg/broker"
	"github.com/tokmz/huddle/pkg/cache"
	"github.com/tokmz/huddle/pkg/config"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/orm"
	"github.com/tokmz/huddle/pkg/signal"
	"github.com/tokmz/huddle/pkg/tracing"
)

// Settings 进程配置
type Settings struct {
	Mode      string                       `mapstructure:"mode" yaml:"mode"`
	Server    huddle.ServerConfig          `mapstructure:"server" yaml:"server"`
	Shutdown  time.Duration                `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	Log       LogSettings                  `mapstructure:"log" yaml:"log"`
	Signal    signal.Config                `mapstructure:"signal" yaml:"signal"`
	Events    EventSettings                `mapstructure:"events" yaml:"events"`
	Cache     cache.Config                 `mapstructure:"cache" yaml:"cache"`
	Presence  PresenceSettings             `mapstructure:"presence" yaml:"presence"`
	Audit     AuditSettings                `mapstructure:"audit" yaml:"audit"`
	Database  orm.Config                   `mapstructure:"database" yaml:"database"`
	Broker    broker.Config                `mapstructure:"broker" yaml:"broker"`
	Tracing   tracing.Config               `mapstructure:"tracing" yaml:"tracing"`
	RateLimit middleware.RateLimiterConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	CORS      middleware.CORSConfig        `mapstructure:"cors" yaml:"cors"`
	Web       WebSettings                  `mapstructure:"web" yaml:"web"`
}

// LogSettings 日志配置
type LogSettings struct {
	Level      string                 `mapstructure:"level" yaml:"level"`
	Format     string                 `mapstructure:"format" yaml:"format"`
	Console    bool                   `mapstructure:"console" yaml:"console"`
	File       string                 `mapstructure:"file" yaml:"file"`
	Rotate     *logger.RotateConfig   `mapstructure:"rotate" yaml:"rotate,omitempty"`
	Caller     bool                   `mapstructure:"caller" yaml:"caller"`
	Stacktrace bool                   `mapstructure:"stacktrace" yaml:"stacktrace"`
	Sampling   *logger.SamplingConfig `mapstructure:"sampling" yaml:"sampling,omitempty"`
}

// WebSettings 浏览器客户端
type WebSettings struct {
	// StaticDir 含 index.html 与 static/ 的目录
	StaticDir string `mapstructure:"static_dir" yaml:"static_dir"`
}

// EventSettings 事件总线
type EventSettings struct {
	Workers   int `mapstructure:"workers" yaml:"workers"`
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`
}

// PresenceSettings 在线状态
type PresenceSettings struct {
	TTL time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// AuditSettings 活动审计
type AuditSettings struct {
	Enabled       bool          `mapstructure:"enabled" yaml:"enabled"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval" yaml:"flush_interval"`
}

func defaultSettings() *Settings {
	return &Settings{
		Mode: "release",
		Server: huddle.ServerConfig{
			Addr:           ":5000",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 20,
		},
		Shutdown:  15 * time.Second,
		Log:       LogSettings{Level: "info", Format: "json", Console: true, Stacktrace: true},
		Signal:    *signal.DefaultConfig(),
		Events:    EventSettings{Workers: 4, QueueSize: 1024},
		Cache:     *cache.DefaultConfig(),
		Presence:  PresenceSettings{TTL: 2 * time.Minute},
		Audit:     AuditSettings{BatchSize: 100, FlushInterval: time.Second},
		Database:  *orm.DefaultConfig(),
		Broker:    *broker.DefaultConfig(),
		Tracing:   *tracing.DefaultConfig(),
		RateLimit: *middleware.DefaultRateLimiterConfig(),
		CORS:      *middleware.DefaultCORSConfig(),
	}
}

// loadSettings 读取配置文件并叠加 HUDDLE_ 环境变量，文件缺失时使用默认值
func loadSettings(path string, onChange func(*Settings)) (*Settings, *config.Config, error) {
	defaults, err := flattenDefaults(defaultSettings())
	if err != nil {
		return nil, nil, err
	}

	opts := []config.Option{
		config.WithDefaults(defaults),
		config.WithEnvPrefix("HUDDLE"),
		config.WithEnvKeyReplacer(strings.NewReplacer(".", "_")),
	}
	if path != "" {
		opts = append(opts, config.WithConfigFile(path))
	} else {
		opts = append(opts,
			config.WithConfigName("huddle"),
			config.WithConfigType("yaml"),
			config.WithConfigPaths(".", "./configs", "/etc/huddle"),
			config.WithOptional(true),
		)
	}

	// 回调只在调用方 StartWatch 之后触发
	var cfg *config.Config
	if onChange != nil {
		opts = append(opts, config.WithOnChange(func() {
			s := defaultSettings()
			if err := cfg.Unmarshal(s); err == nil {
				onChange(s)
			}
		}))
	}
	cfg = config.New(opts...)
	if err := cfg.Load(); err != nil {
		return nil, nil, err
	}

	s := defaultSettings()
	if err := cfg.Unmarshal(s); err != nil {
		return nil, nil, fmt.Errorf("decode settings: %w", err)
	}
	return s, cfg, nil
}

// flattenDefaults 把默认配置展开成 viper 的点号键，环境变量才能覆盖每个叶子键
func flattenDefaults(s *Settings) (map[string]any, error) {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, v any, out map[string]any) {
	m, ok := v.(map[string]any)
	if !ok {
		if v != nil {
			out[prefix] = v
		}
		return
	}
	for k, child := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		flatten(key, child, out)
	}
}

// printSettings 输出生效配置
func printSettings(s *Settings) (string, error) {
	raw, err := yaml.MarshalWithOptions(s, yaml.Indent(2))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (l LogSettings) build() (logger.Logger, error) {
	level, err := logger.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := []logger.Option{
		logger.WithLevel(level),
		logger.WithFormat(logger.Format(l.Format)),
		logger.WithCaller(l.Caller),
		logger.WithStacktrace(l.Stacktrace),
	}
	if l.Console {
		opts = append(opts, logger.WithConsoleOutput())
	}
	if l.File != "" {
		opts = append(opts, logger.WithFileOutput(l.File))
	}
	if l.Rotate != nil {
		opts = append(opts, logger.WithRotateOutput(l.Rotate))
	}
	if l.Sampling != nil {
		opts = append(opts, logger.WithSampling(l.Sampling))
	}
	return logger.NewWithOptions(opts...)
}
