package tracing

import (
	"errors"
	"time"
)

// Exporter 导出器类型
type Exporter string

const (
	ExporterOTLPHTTP Exporter = "otlp_http"
	ExporterOTLPGRPC Exporter = "otlp_grpc"
	ExporterStdout   Exporter = "stdout"
	ExporterNoop     Exporter = "noop"
)

// Config 链路追踪配置
type Config struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	ServiceName    string `mapstructure:"service_name" yaml:"service_name"`
	ServiceVersion string `mapstructure:"service_version" yaml:"service_version"`
	Environment    string `mapstructure:"environment" yaml:"environment"`

	Exporter Exporter          `mapstructure:"exporter" yaml:"exporter"`
	Endpoint string            `mapstructure:"endpoint" yaml:"endpoint"` // 为空时读取 OTEL_EXPORTER_OTLP_ENDPOINT
	Headers  map[string]string `mapstructure:"headers" yaml:"headers,omitempty"`
	Insecure bool              `mapstructure:"insecure" yaml:"insecure"`

	// 采样：always / never / ratio / parent_based
	SamplingType string  `mapstructure:"sampling_type" yaml:"sampling_type"`
	SamplingRate float64 `mapstructure:"sampling_rate" yaml:"sampling_rate"`

	ResourceAttributes map[string]string `mapstructure:"resource_attributes" yaml:"resource_attributes,omitempty"`

	BatchTimeout       time.Duration `mapstructure:"batch_timeout" yaml:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size" yaml:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size" yaml:"max_queue_size"`
}

// DefaultConfig 默认关闭
func DefaultConfig() *Config {
	return &Config{
		Enabled:            false,
		ServiceName:        "huddle",
		ServiceVersion:     "dev",
		Environment:        "development",
		Exporter:           ExporterStdout,
		SamplingType:       "parent_based",
		SamplingRate:       1.0,
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// ErrInvalidConfig 配置错误
var ErrInvalidConfig = errors.New("tracing: invalid config")

// Validate 校验配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return errors.Join(ErrInvalidConfig, errors.New("service name is required"))
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return errors.Join(ErrInvalidConfig, errors.New("sampling rate must be between 0.0 and 1.0"))
	}
	switch c.Exporter {
	case ExporterOTLPHTTP, ExporterOTLPGRPC, ExporterStdout, ExporterNoop:
	default:
		return errors.Join(ErrInvalidConfig, errors.New("unknown exporter "+string(c.Exporter)))
	}
	return nil
}
