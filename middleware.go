package huddle

import (
	"net"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

// LoggerConfig 访问日志配置
type LoggerConfig struct {
	SkipFunc     func(c *Context) bool
	ExcludePaths []string
}

// Logger 访问日志：方法、路径、状态码、耗时、客户端 IP，级别按状态码选择
func Logger(log logger.Logger, cfgs ...*LoggerConfig) HandlerFunc {
	cfg := &LoggerConfig{}
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}
	skip := make(map[string]bool, len(cfg.ExcludePaths))
	for _, p := range cfg.ExcludePaths {
		skip[p] = true
	}

	return func(c *Context) {
		if skip[c.Request().URL.Path] || (cfg.SkipFunc != nil && cfg.SkipFunc(c)) {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request().URL.Path
		c.Next()

		status := c.Writer().Status()
		fields := []zap.Field{
			zap.String("method", c.Request().Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		ctx := c.RequestContext()
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			log.WarnContext(ctx, "request", fields...)
		default:
			log.InfoContext(ctx, "request", fields...)
		}
	}
}

// Recovery panic 时返回统一响应（500）并记录堆栈
func Recovery(log logger.Logger) HandlerFunc {
	return func(c *Context) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if isBrokenPipe(err) {
				log.Warn("broken pipe", zap.Any("error", err), zap.String("path", c.Request().URL.Path))
				c.Abort()
				return
			}
			log.Error("panic recovered",
				zap.Any("error", err),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("client_ip", c.ClientIP()),
				zap.String("stack", string(debug.Stack())),
			)
			c.AbortWithError(errors.ErrServer)
		}()
		c.Next()
	}
}

func isBrokenPipe(err any) bool {
	ne, ok := err.(*net.OpError)
	if !ok {
		return false
	}
	se, ok := ne.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
