package logger

// Format 日志格式
type Format string

const (
	// JSONFormat JSON 格式（生产环境推荐）
	JSONFormat Format = "json"
	// ConsoleFormat 控制台格式（开发环境推荐）
	ConsoleFormat Format = "console"
)

// Config 日志配置
type Config struct {
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（默认 json）

	Console bool          // 输出到控制台
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	Sampling *SamplingConfig // 采样配置（nil 则不采样）

	EnableCaller     bool // 记录调用位置
	EnableStacktrace bool // Error 及以上记录堆栈
}

// RotateConfig 文件轮转配置
type RotateConfig struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`       // 日志文件路径
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`       // 单文件最大大小（MB，默认 100）
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`         // 保留天数（默认 30）
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"` // 保留文件数（默认 10）
	LocalTime  bool   `mapstructure:"local_time" yaml:"local_time"`   // 使用本地时间
	Compress   bool   `mapstructure:"compress" yaml:"compress"`       // 是否压缩
}

// SamplingConfig 采样配置
type SamplingConfig struct {
	Initial    int `mapstructure:"initial" yaml:"initial"`       // 每秒前 N 条必定记录
	Thereafter int `mapstructure:"thereafter" yaml:"thereafter"` // 之后每 M 条记录 1 条
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 未配置任何输出时默认控制台
	if !c.Console && c.File == "" && c.Rotate == nil {
		c.Console = true
	}
}

func (r *RotateConfig) setDefaults() {
	if r.MaxSize == 0 {
		r.MaxSize = 100
	}
	if r.MaxAge == 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups == 0 {
		r.MaxBackups = 10
	}
	r.LocalTime = true
}

func (s *SamplingConfig) setDefaults() {
	if s.Initial == 0 {
		s.Initial = 100
	}
	if s.Thereafter == 0 {
		s.Thereafter = 100
	}
}
