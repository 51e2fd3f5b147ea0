package orm

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const gormTracerName = "huddle.gorm"

// TracingPlugin GORM 链路追踪插件
type TracingPlugin struct {
	traceSQL bool // 记录完整 SQL，可能包含敏感数据
}

// TracingOption 追踪插件选项
type TracingOption func(*TracingPlugin)

// WithSQLTrace 是否在 span 中记录 SQL
func WithSQLTrace(enable bool) TracingOption {
	return func(p *TracingPlugin) { p.traceSQL = enable }
}

// NewTracingPlugin 创建追踪插件
func NewTracingPlugin(opts ...TracingOption) *TracingPlugin {
	p := &TracingPlugin{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TracingPlugin) Name() string { return "otelgorm" }

// Initialize 为每类操作注册 before/after 回调
func (p *TracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	ops := []struct {
		name string
		reg  func(before, after func(*gorm.DB)) error
	}{
		{"create", func(b, a func(*gorm.DB)) error {
			if err := cb.Create().Before("gorm:create").Register("otelgorm:before_create", b); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otelgorm:after_create", a)
		}},
		{"query", func(b, a func(*gorm.DB)) error {
			if err := cb.Query().Before("gorm:query").Register("otelgorm:before_query", b); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otelgorm:after_query", a)
		}},
		{"update", func(b, a func(*gorm.DB)) error {
			if err := cb.Update().Before("gorm:update").Register("otelgorm:before_update", b); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otelgorm:after_update", a)
		}},
		{"delete", func(b, a func(*gorm.DB)) error {
			if err := cb.Delete().Before("gorm:delete").Register("otelgorm:before_delete", b); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otelgorm:after_delete", a)
		}},
		{"row", func(b, a func(*gorm.DB)) error {
			if err := cb.Row().Before("gorm:row").Register("otelgorm:before_row", b); err != nil {
				return err
			}
			return cb.Row().After("gorm:row").Register("otelgorm:after_row", a)
		}},
		{"raw", func(b, a func(*gorm.DB)) error {
			if err := cb.Raw().Before("gorm:raw").Register("otelgorm:before_raw", b); err != nil {
				return err
			}
			return cb.Raw().After("gorm:raw").Register("otelgorm:after_raw", a)
		}},
	}
	for _, op := range ops {
		if err := op.reg(p.before("gorm."+op.name), p.after); err != nil {
			return fmt.Errorf("register %s callbacks: %w", op.name, err)
		}
	}
	return nil
}

func (p *TracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}
		// 每次取 tracer，Provider 晚于插件初始化时仍然生效
		ctx, _ = otel.Tracer(gormTracerName).Start(ctx, operation,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("db.system", db.Dialector.Name()),
				attribute.String("db.operation", operation),
			),
		)
		db.Statement.Context = ctx
	}
}

func (p *TracingPlugin) after(db *gorm.DB) {
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}
	defer span.End()

	if p.traceSQL {
		if sql := db.Statement.SQL.String(); sql != "" {
			span.SetAttributes(attribute.String("db.statement", sql))
		}
	}
	if db.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.table", db.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

	if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
		return
	}
	span.SetStatus(codes.Ok, "")
}
