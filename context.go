package huddle

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/huddle/pkg/logger"
)

// Context 包装 gin.Context，只暴露路由处理需要的 API
type Context struct {
	ctx *gin.Context
}

// NewContext 创建上下文（用于测试）
func NewContext(c *gin.Context) *Context {
	return &Context{ctx: c}
}

// Request 返回底层的 *http.Request
func (c *Context) Request() *http.Request {
	return c.ctx.Request
}

// Writer 返回底层的 ResponseWriter
func (c *Context) Writer() gin.ResponseWriter {
	return c.ctx.Writer
}

// Param 获取路径参数
func (c *Context) Param(key string) string {
	return c.ctx.Param(key)
}

// FullPath 获取路由模板路径（如 /api/room/:id）
func (c *Context) FullPath() string {
	return c.ctx.FullPath()
}

// Query 获取 URL 查询参数
func (c *Context) Query(key string) string {
	return c.ctx.Query(key)
}

func (c *Context) ShouldBindQuery(obj any) error {
	return c.ctx.ShouldBindQuery(obj)
}

func (c *Context) ShouldBindUri(obj any) error {
	return c.ctx.ShouldBindUri(obj)
}

// JSON 发送原样 JSON 响应
func (c *Context) JSON(code int, obj any) {
	c.ctx.JSON(code, obj)
}

func (c *Context) Set(key string, value any) {
	c.ctx.Set(key, value)
}

func (c *Context) Get(key string) (any, bool) {
	return c.ctx.Get(key)
}

func (c *Context) GetString(key string) string {
	return c.ctx.GetString(key)
}

// Next 执行下一个中间件或处理函数
func (c *Context) Next() {
	c.ctx.Next()
}

// Abort 中止请求处理
func (c *Context) Abort() {
	c.ctx.Abort()
}

// AbortWithStatus 中止请求并设置状态码
func (c *Context) AbortWithStatus(code int) {
	c.ctx.AbortWithStatus(code)
}

// AbortWithError 以统一响应中止请求
func (c *Context) AbortWithError(err error) {
	c.RespondError(err)
	c.ctx.Abort()
}

func (c *Context) IsAborted() bool {
	return c.ctx.IsAborted()
}

// ClientIP 获取客户端 IP
func (c *Context) ClientIP() string {
	return c.ctx.ClientIP()
}

func (c *Context) GetHeader(key string) string {
	return c.ctx.GetHeader(key)
}

// File 输出文件
func (c *Context) File(path string) {
	c.ctx.File(path)
}

// Header 设置响应头
func (c *Context) Header(key, value string) {
	c.ctx.Header(key, value)
}

// Success 成功响应
func (c *Context) Success(data any) {
	c.respond(http.StatusOK, Success(data))
}

// Fail 失败响应
func (c *Context) Fail(code int, message string) {
	c.respond(http.StatusOK, Fail(code, message))
}

// RespondError 业务错误按其 HttpCode 响应，其余按 500
func (c *Context) RespondError(err error) {
	c.respond(ErrorResponse(err))
}

func (c *Context) respond(status int, resp *Response) {
	c.JSON(status, resp.traced(GetContextTraceID(c)))
}

// RequestContext 返回注入了 trace_id 的标准库 context
func (c *Context) RequestContext() context.Context {
	ctx := c.ctx.Request.Context()
	if traceID := GetContextTraceID(c); traceID != "" {
		ctx = logger.WithTraceID(ctx, traceID)
	}
	return ctx
}

// SetRequestContext 替换请求的 context（用于中间件注入 SpanContext）
func (c *Context) SetRequestContext(ctx context.Context) {
	c.ctx.Request = c.ctx.Request.WithContext(ctx)
}
