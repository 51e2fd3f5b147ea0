package signal

import (
	"context"
	"fmt"
	"sync"
)

// Handler 消息处理器
type Handler func(ctx context.Context, c *Conn, msg *Message) error

// NextFunc 中间件下一步
type NextFunc func() error

// MiddlewareFunc 中间件
type MiddlewareFunc func(ctx context.Context, c *Conn, msg *Message, next NextFunc) error

// Router 按消息类型分发，每个类型对应一个有序处理器列表
// 处理器依次执行，任一返回错误即停止
type Router struct {
	mu         sync.RWMutex
	handlers   map[MessageType][]Handler
	middleware []MiddlewareFunc
	compiled   map[MessageType]Handler
	frozen     bool
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{handlers: make(map[MessageType][]Handler)}
}

// Register 为消息类型追加处理器
func (r *Router) Register(t MessageType, handlers ...Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRouterFrozen
	}
	r.handlers[t] = append(r.handlers[t], handlers...)
	return nil
}

// Use 添加中间件，按添加顺序由外向内执行
func (r *Router) Use(mw ...MiddlewareFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return ErrRouterFrozen
	}
	r.middleware = append(r.middleware, mw...)
	return nil
}

// Freeze 冻结并预编译处理链
func (r *Router) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.frozen = true
	r.compiled = make(map[MessageType]Handler, len(r.handlers))
	for t, hs := range r.handlers {
		r.compiled[t] = chain(r.middleware, sequence(hs))
	}
}

// Types 已注册的消息类型
func (r *Router) Types() []MessageType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]MessageType, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}

// Route 分发消息，未知类型返回 ErrMalformedMessage
func (r *Router) Route(ctx context.Context, c *Conn, msg *Message) error {
	r.mu.RLock()
	if r.frozen {
		h, ok := r.compiled[msg.Type]
		r.mu.RUnlock()
		if !ok {
			return unknownType(msg.Type)
		}
		return h(ctx, c, msg)
	}
	hs, ok := r.handlers[msg.Type]
	mw := r.middleware
	r.mu.RUnlock()
	if !ok {
		return unknownType(msg.Type)
	}
	return chain(mw, sequence(hs))(ctx, c, msg)
}

func unknownType(t MessageType) error {
	return ErrMalformedMessage.WithMessage(fmt.Sprintf("unknown message type %q", t))
}

func sequence(hs []Handler) Handler {
	if len(hs) == 1 {
		return hs[0]
	}
	return func(ctx context.Context, c *Conn, msg *Message) error {
		for _, h := range hs {
			if err := h(ctx, c, msg); err != nil {
				return err
			}
		}
		return nil
	}
}

// chain 从后向前包裹中间件
func chain(mw []MiddlewareFunc, final Handler) Handler {
	h := final
	for i := len(mw) - 1; i >= 0; i-- {
		m, next := mw[i], h
		h = func(ctx context.Context, c *Conn, msg *Message) error {
			return m(ctx, c, msg, func() error { return next(ctx, c, msg) })
		}
	}
	return h
}

// RequireRoom 仅放行已入房连接的中间件，作用于指定类型
func RequireRoom(types ...MessageType) MiddlewareFunc {
	guarded := make(map[MessageType]struct{}, len(types))
	for _, t := range types {
		guarded[t] = struct{}{}
	}
	return func(ctx context.Context, c *Conn, msg *Message, next NextFunc) error {
		if _, ok := guarded[msg.Type]; ok {
			if _, state := c.Room(); state != StateInRoom {
				return ErrNotInRoom
			}
		}
		return next()
	}
}
