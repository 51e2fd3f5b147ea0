package middleware

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/tokmz/huddle"
)

// TracingConfig 链路追踪中间件配置
type TracingConfig struct {
	TracerName string
	// Filter 返回 false 时跳过，长连接（如 WebSocket）应跳过
	Filter func(c *huddle.Context) bool
}

// Tracing 为每个请求创建 Server Span，并把 trace_id 写入上下文与响应头
func Tracing(cfgs ...*TracingConfig) huddle.HandlerFunc {
	cfg := &TracingConfig{TracerName: "huddle.http"}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	return func(c *huddle.Context) {
		if cfg.Filter != nil && !cfg.Filter(c) {
			c.Next()
			return
		}

		// 每次请求取 tracer，Provider 晚于中间件初始化时仍然生效
		tracer := otel.Tracer(cfg.TracerName)
		propagator := otel.GetTextMapPropagator()
		req := c.Request()
		ctx := propagator.Extract(req.Context(), propagation.HeaderCarrier(req.Header))

		route := c.FullPath()
		if route == "" {
			route = req.URL.Path
		}
		attrs := []attribute.KeyValue{
			semconv.HTTPRequestMethodKey.String(req.Method),
			semconv.URLPath(req.URL.Path),
			semconv.ServerAddress(req.Host),
			semconv.UserAgentOriginalKey.String(req.UserAgent()),
			attribute.String("http.client_ip", c.ClientIP()),
		}
		if fp := c.FullPath(); fp != "" {
			attrs = append(attrs, semconv.HTTPRouteKey.String(fp))
		}
		ctx, span := tracer.Start(ctx, req.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		if sc := span.SpanContext(); sc.HasTraceID() {
			huddle.SetContextTraceID(c, sc.TraceID().String())
		}
		c.SetRequestContext(ctx)
		// 响应体写出后无法再设置响应头
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer().Header()))

		c.Next()

		status := c.Writer().Status()
		span.SetAttributes(semconv.HTTPResponseStatusCodeKey.Int(status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
	}
}
