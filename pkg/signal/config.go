package signal

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Config 信令网关配置
type Config struct {
	// 连接
	MaxConnections   int           `mapstructure:"max_connections" yaml:"max_connections"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size" yaml:"max_message_size"`
	SendQueueSize    int           `mapstructure:"send_queue_size" yaml:"send_queue_size"`
	WriteWait        time.Duration `mapstructure:"write_wait" yaml:"write_wait"`
	PingInterval     time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`

	// 心跳
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// 房间
	MaxRoomSize     int `mapstructure:"max_room_size" yaml:"max_room_size"`
	MaxStrokes      int `mapstructure:"max_strokes" yaml:"max_strokes"`
	MaxStrokePoints int `mapstructure:"max_stroke_points" yaml:"max_stroke_points"`

	// 连续无效帧上限，超过后以 4003 关闭
	MaxInvalidMessages int `mapstructure:"max_invalid_messages" yaml:"max_invalid_messages"`

	Upgrader UpgraderConfig `mapstructure:"upgrader" yaml:"upgrader"`
}

// UpgraderConfig Upgrader 配置
type UpgraderConfig struct {
	ReadBufferSize    int                      `mapstructure:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize   int                      `mapstructure:"write_buffer_size" yaml:"write_buffer_size"`
	EnableCompression bool                     `mapstructure:"enable_compression" yaml:"enable_compression"`
	AllowedOrigins    []string                 `mapstructure:"allowed_origins" yaml:"allowed_origins"` // 为空时同源检查，"*" 放行全部
	CheckOrigin       func(*http.Request) bool `mapstructure:"-" yaml:"-"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxConnections:     10000,
		HandshakeTimeout:   10 * time.Second,
		MaxMessageSize:     512 * 1024,
		SendQueueSize:      256,
		WriteWait:          10 * time.Second,
		PingInterval:       25 * time.Second,
		HeartbeatTimeout:   60 * time.Second,
		SweepInterval:      15 * time.Second,
		MaxRoomSize:        50,
		MaxStrokes:         5000,
		MaxStrokePoints:    10000,
		MaxInvalidMessages: 10,
		Upgrader: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	positive := []struct {
		name  string
		value int64
	}{
		{"MaxConnections", int64(c.MaxConnections)},
		{"HandshakeTimeout", int64(c.HandshakeTimeout)},
		{"MaxMessageSize", c.MaxMessageSize},
		{"SendQueueSize", int64(c.SendQueueSize)},
		{"WriteWait", int64(c.WriteWait)},
		{"PingInterval", int64(c.PingInterval)},
		{"HeartbeatTimeout", int64(c.HeartbeatTimeout)},
		{"SweepInterval", int64(c.SweepInterval)},
		{"MaxRoomSize", int64(c.MaxRoomSize)},
		{"MaxStrokes", int64(c.MaxStrokes)},
		{"MaxStrokePoints", int64(c.MaxStrokePoints)},
		{"MaxInvalidMessages", int64(c.MaxInvalidMessages)},
		{"Upgrader.ReadBufferSize", int64(c.Upgrader.ReadBufferSize)},
		{"Upgrader.WriteBufferSize", int64(c.Upgrader.WriteBufferSize)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", ErrInvalidConfig, p.name, p.value)
		}
	}
	if c.SweepInterval >= c.HeartbeatTimeout {
		return fmt.Errorf("%w: SweepInterval (%v) must be shorter than HeartbeatTimeout (%v)",
			ErrInvalidConfig, c.SweepInterval, c.HeartbeatTimeout)
	}
	if c.PingInterval >= c.HeartbeatTimeout {
		return fmt.Errorf("%w: PingInterval (%v) must be shorter than HeartbeatTimeout (%v)",
			ErrInvalidConfig, c.PingInterval, c.HeartbeatTimeout)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithConfig 整体替换配置（通常来自配置文件）
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithHeartbeat 设置心跳超时与扫描间隔
func WithHeartbeat(timeout, sweep time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatTimeout = timeout
		c.SweepInterval = sweep
	}
}

// WithMaxConnections 设置最大连接数
func WithMaxConnections(n int) Option {
	return func(c *Config) {
		c.MaxConnections = n
	}
}

// WithMaxRoomSize 设置单房间人数上限
func WithMaxRoomSize(n int) Option {
	return func(c *Config) {
		c.MaxRoomSize = n
	}
}

// WithSendQueueSize 设置每连接发送队列长度
func WithSendQueueSize(n int) Option {
	return func(c *Config) {
		c.SendQueueSize = n
	}
}

// WithAllowedOrigins 设置 Origin 白名单
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Config) {
		c.Upgrader.AllowedOrigins = origins
	}
}

// WithCheckOrigin 自定义 Origin 检查
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.Upgrader.CheckOrigin = fn
	}
}

// sameOrigin 同源检查，无 Origin 头的非浏览器客户端放行
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// whitelist Origin 白名单检查
func whitelist(origins []string) func(*http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := allowed[r.Header.Get("Origin")]
		return ok
	}
}

// Upgrader WebSocket 升级器
type Upgrader struct {
	upgrader websocket.Upgrader
}

// NewUpgrader 创建升级器
func NewUpgrader(cfg UpgraderConfig, handshake time.Duration) *Upgrader {
	check := cfg.CheckOrigin
	if check == nil {
		if len(cfg.AllowedOrigins) > 0 {
			check = whitelist(cfg.AllowedOrigins)
		} else {
			check = sameOrigin
		}
	}
	return &Upgrader{
		upgrader: websocket.Upgrader{
			HandshakeTimeout:  handshake,
			ReadBufferSize:    cfg.ReadBufferSize,
			WriteBufferSize:   cfg.WriteBufferSize,
			CheckOrigin:       check,
			EnableCompression: cfg.EnableCompression,
		},
	}
}

// Upgrade 升级 HTTP 连接为 WebSocket
func (u *Upgrader) Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return u.upgrader.Upgrade(w, r, nil)
}
