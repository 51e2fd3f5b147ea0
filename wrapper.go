package huddle

import "github.com/gin-gonic/gin"

// HandlerFunc 路由处理函数和中间件函数
// 中间件需要调用 c.Next() 来继续执行后续处理
type HandlerFunc func(*Context)

func wrap(fn HandlerFunc) gin.HandlerFunc {
	if fn == nil {
		panic("huddle: handler/middleware cannot be nil")
	}
	return func(c *gin.Context) { fn(&Context{ctx: c}) }
}

func wrapAll(fns []HandlerFunc) []gin.HandlerFunc {
	out := make([]gin.HandlerFunc, len(fns))
	for i, fn := range fns {
		out[i] = wrap(fn)
	}
	return out
}
