package huddle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tokmz/huddle/pkg/errors"
)

// RouterGroup 路由组
type RouterGroup struct {
	group *gin.RouterGroup
}

// Group 创建子路由组
func (rg *RouterGroup) Group(path string, middlewares ...HandlerFunc) *RouterGroup {
	return &RouterGroup{group: rg.group.Group(path, wrapAll(middlewares)...)}
}

// Use 注册中间件
func (rg *RouterGroup) Use(middlewares ...HandlerFunc) {
	rg.group.Use(wrapAll(middlewares)...)
}

// GET 注册 GET 路由
func (rg *RouterGroup) GET(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.GET(path, append(wrapAll(middlewares), wrap(handler))...)
}

// POST 注册 POST 路由
func (rg *RouterGroup) POST(path string, handler HandlerFunc, middlewares ...HandlerFunc) {
	rg.group.POST(path, append(wrapAll(middlewares), wrap(handler))...)
}

// Static 以目录提供静态文件
func (rg *RouterGroup) Static(path, root string) {
	rg.group.Static(path, root)
}

// StaticFile 单个静态文件
func (rg *RouterGroup) StaticFile(path, file string) {
	rg.group.StaticFile(path, file)
}

// RouteRegister 路由注册函数类型
type RouteRegister func(path string, handler HandlerFunc, middlewares ...HandlerFunc)

// Handle 绑定 query 与 uri 参数后调用 handler，结果以统一响应返回
func Handle[Req any, Resp any](register RouteRegister, path string, handler func(*Context, *Req) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		var req Req
		if err := bind(c, &req); err != nil {
			c.RespondError(err)
			return
		}
		resp, err := handler(c, &req)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}, middlewares...)
}

// HandleOnly 无请求参数，有响应数据
func HandleOnly[Resp any](register RouteRegister, path string, handler func(*Context) (*Resp, error), middlewares ...HandlerFunc) {
	register(path, func(c *Context) {
		resp, err := handler(c)
		if err != nil {
			c.RespondError(err)
			return
		}
		c.Success(resp)
	}, middlewares...)
}

// bind 只处理只读接口：uri 参数必须合法，query 参数按 form 标签绑定
func bind(c *Context, obj any) error {
	if err := c.ShouldBindUri(obj); err != nil {
		return errors.ErrBadRequest.WithError(err)
	}
	if c.Request().Method == http.MethodGet {
		if err := c.ShouldBindQuery(obj); err != nil {
			return errors.ErrBadRequest.WithError(err)
		}
	}
	return nil
}
