package orm

import "time"

// DBType 数据库类型
type DBType string

const (
	MySQL      DBType = "mysql"
	PostgreSQL DBType = "postgres"
	SQLite     DBType = "sqlite"
	SQLServer  DBType = "sqlserver"
)

// Config 数据库配置
type Config struct {
	Type DBType `mapstructure:"type" yaml:"type"`
	DSN  string `mapstructure:"dsn" yaml:"dsn"`

	// 连接池
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`

	SkipDefaultTransaction bool `mapstructure:"skip_default_transaction" yaml:"skip_default_transaction"`
	PrepareStmt            bool `mapstructure:"prepare_stmt" yaml:"prepare_stmt"`

	// 日志
	SlowThreshold time.Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
	TraceSQL      bool          `mapstructure:"trace_sql" yaml:"trace_sql"` // span 中记录完整 SQL

	TablePrefix string `mapstructure:"table_prefix" yaml:"table_prefix"`

	// 读写分离（可选）
	Replicas *ReplicaConfig `mapstructure:"replicas" yaml:"replicas,omitempty"`
}

// ReplicaConfig 只读副本配置
type ReplicaConfig struct {
	Sources []string `mapstructure:"sources" yaml:"sources"`
	Policy  string   `mapstructure:"policy" yaml:"policy"` // random, round_robin

	MaxIdleConns int `mapstructure:"max_idle_conns" yaml:"max_idle_conns"` // 0 表示沿用主库配置
	MaxOpenConns int `mapstructure:"max_open_conns" yaml:"max_open_conns"`
}

// DefaultConfig 默认配置（本地 sqlite）
func DefaultConfig() *Config {
	return &Config{
		Type:            SQLite,
		DSN:             "huddle.db?_busy_timeout=5000",
		MaxIdleConns:    4,
		MaxOpenConns:    16,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		PrepareStmt:     true,
		SlowThreshold:   200 * time.Millisecond,
	}
}
