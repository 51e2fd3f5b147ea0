package orm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/huddle/pkg/logger"
)

// New 打开数据库，注册读写分离与链路追踪插件
func New(cfg *Config, log logger.Logger) (*gorm.DB, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.DSN == "" {
		return nil, errors.New("orm: DSN is required")
	}
	if log == nil {
		log = logger.NewNop()
	}

	dialector, err := dialectorFor(cfg.Type, cfg.DSN)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: cfg.SkipDefaultTransaction,
		PrepareStmt:            cfg.PrepareStmt,
		Logger:                 &gormLogger{log: log, slow: cfg.SlowThreshold, level: gormlogger.Warn},
		NamingStrategy:         schema.NamingStrategy{TablePrefix: cfg.TablePrefix},
	})
	if err != nil {
		return nil, fmt.Errorf("orm: connect %s: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("orm: sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if cfg.Replicas != nil {
		if err := useReplicas(db, cfg); err != nil {
			return nil, fmt.Errorf("orm: replicas: %w", err)
		}
	}
	if err := db.Use(NewTracingPlugin(WithSQLTrace(cfg.TraceSQL))); err != nil {
		return nil, fmt.Errorf("orm: tracing: %w", err)
	}
	return db, nil
}

// Close 关闭底层连接池
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func dialectorFor(t DBType, dsn string) (gorm.Dialector, error) {
	switch t {
	case MySQL:
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLite:
		return sqlite.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("orm: unsupported database type %q", t)
	}
}

// useReplicas 读请求走只读副本，写请求走主库
func useReplicas(db *gorm.DB, cfg *Config) error {
	rc := cfg.Replicas
	if len(rc.Sources) == 0 {
		return errors.New("no replica sources")
	}

	replicas := make([]gorm.Dialector, 0, len(rc.Sources))
	for _, dsn := range rc.Sources {
		d, err := dialectorFor(cfg.Type, dsn)
		if err != nil {
			return err
		}
		replicas = append(replicas, d)
	}

	var policy dbresolver.Policy = dbresolver.RandomPolicy{}
	if rc.Policy == "round_robin" {
		policy = dbresolver.RoundRobinPolicy()
	}

	resolver := dbresolver.Register(dbresolver.Config{Replicas: replicas, Policy: policy})
	if rc.MaxIdleConns > 0 {
		resolver.SetMaxIdleConns(rc.MaxIdleConns)
	}
	if rc.MaxOpenConns > 0 {
		resolver.SetMaxOpenConns(rc.MaxOpenConns)
	}
	return db.Use(resolver)
}

// gormLogger 将 gorm 日志写入 zap
type gormLogger struct {
	log   logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		sql, rows := fc()
		l.log.ErrorContext(ctx, "sql error",
			zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed), zap.Error(err))
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow sql",
			zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.log.DebugContext(ctx, "sql", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
