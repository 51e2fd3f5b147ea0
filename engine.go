// Package huddle 提供基于 gin 的 HTTP 引擎：统一响应、路由组、中间件与优雅关机
package huddle

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/logger"
)

// Engine HTTP 引擎
type Engine struct {
	config *Config
	engine *gin.Engine
	server *http.Server
	log    logger.Logger
	hooks  []ShutdownHook
}

// New 创建 Engine，默认挂载 Recovery 中间件
func New(opts ...Option) *Engine {
	config := defaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}

	// gin.SetMode 是全局状态
	gin.SetMode(config.Mode)
	gin.DefaultWriter = discard{}
	gin.DebugPrintRouteFunc = func(string, string, string, int) {}

	ginEngine := gin.New()
	if config.TrustedProxies != nil {
		if err := ginEngine.SetTrustedProxies(config.TrustedProxies); err != nil {
			config.Logger.Warn("set trusted proxies failed", zap.Error(err))
		}
	}

	e := &Engine{engine: ginEngine, config: config, log: config.Logger}
	e.Use(Recovery(config.Logger))
	return e
}

// Use 注册全局中间件
func (e *Engine) Use(middlewares ...HandlerFunc) {
	e.engine.Use(wrapAll(middlewares)...)
}

// Group 返回路由组
func (e *Engine) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: e.engine.Group(path, wrapAll(middlewares)...)}
}

// RouterGroup 返回根路由组
func (e *Engine) RouterGroup() *RouterGroup {
	return &RouterGroup{group: &e.engine.RouterGroup}
}

// Handler 返回底层 http.Handler，便于测试
func (e *Engine) Handler() http.Handler { return e.engine }

// OnShutdown 注册关机回调，在 HTTP 服务停止后依次执行
func (e *Engine) OnShutdown(hook ShutdownHook) {
	e.hooks = append(e.hooks, hook)
}

// Run 启动服务并阻塞到收到 SIGINT/SIGTERM 或 ctx 结束
func (e *Engine) Run(ctx context.Context) error {
	srv := e.config.Server
	e.server = &http.Server{
		Addr:           srv.Addr,
		Handler:        e.engine,
		ReadTimeout:    srv.ReadTimeout,
		WriteTimeout:   srv.WriteTimeout,
		IdleTimeout:    srv.IdleTimeout,
		MaxHeaderBytes: srv.MaxHeaderBytes,
	}

	tls := tlsReady(srv.TLS)
	for _, r := range e.engine.Routes() {
		e.log.Debug("route", zap.String("method", r.Method), zap.String("path", r.Path))
	}
	e.log.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("tls", tls))

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls {
			err = e.server.ListenAndServeTLS(srv.TLS.CertFile, srv.TLS.KeyFile)
		} else {
			err = e.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		e.log.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), e.config.ShutdownTime)
	defer cancel()
	return e.Shutdown(sctx)
}

// Shutdown 停止接收新请求，然后执行关机回调
func (e *Engine) Shutdown(ctx context.Context) error {
	var errs []error
	if e.server != nil {
		if err := e.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, hook := range e.hooks {
		if err := hook(ctx); err != nil {
			e.log.Error("shutdown hook failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// tlsReady 证书和私钥文件都存在
func tlsReady(t TLSConfig) bool {
	if t.CertFile == "" || t.KeyFile == "" {
		return false
	}
	for _, f := range []string{t.CertFile, t.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return false
		}
	}
	return true
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
