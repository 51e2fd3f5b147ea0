package huddle

// ContextTraceIDKey 链路追踪 trace_id 键
const ContextTraceIDKey = "trace_id"

// GetContextTraceID 获取 trace_id
func GetContextTraceID(c *Context) string {
	return c.GetString(ContextTraceIDKey)
}

// SetContextTraceID 设置 trace_id
func SetContextTraceID(c *Context, traceID string) {
	c.Set(ContextTraceIDKey, traceID)
}
