package signal

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
)

const tracerName = "github.com/tokmz/huddle/pkg/signal"

// Gateway 信令网关：每连接一个状态机，组合注册表、房间目录、路由与心跳监控
type Gateway struct {
	cfg      *Config
	log      logger.Logger
	tracer   trace.Tracer
	metrics  Metrics
	stats    *Stats
	events   *EventBus
	registry *Registry
	rooms    *Directory
	router   *Router
	monitor  *Monitor
	upgrader *Upgrader
	now      func() time.Time

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
	closing atomic.Bool
}

// GatewayOption 网关选项
type GatewayOption func(*Gateway)

// WithLogger 设置日志
func WithLogger(l logger.Logger) GatewayOption {
	return func(g *Gateway) { g.log = l }
}

// WithMetrics 追加监控上报，内置 Stats 始终生效
func WithMetrics(m Metrics) GatewayOption {
	return func(g *Gateway) { g.metrics = multiMetrics{g.stats, m} }
}

// WithTracerProvider 设置链路追踪提供者，默认使用全局提供者
func WithTracerProvider(tp trace.TracerProvider) GatewayOption {
	return func(g *Gateway) { g.tracer = tp.Tracer(tracerName) }
}

// WithEventBus 使用外部事件总线
func WithEventBus(eb *EventBus) GatewayOption {
	return func(g *Gateway) { g.events = eb }
}

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

// NewGateway 创建网关
func NewGateway(cfg *Config, opts ...GatewayOption) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		cfg:      cfg,
		log:      logger.NewNop(),
		tracer:   otel.Tracer(tracerName),
		stats:    &Stats{},
		router:   NewRouter(),
		upgrader: NewUpgrader(cfg.Upgrader, cfg.HandshakeTimeout),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	g.metrics = g.stats
	for _, opt := range opts {
		opt(g)
	}
	if g.events == nil {
		g.events = NewEventBus(4, 1024)
	}

	g.registry = NewRegistry(cfg.MaxConnections, g.teardown)
	g.rooms = NewDirectory(cfg.MaxRoomSize, cfg.MaxStrokes, g.sendFailed)
	g.monitor = NewMonitor(g.registry, cfg.HeartbeatTimeout, cfg.SweepInterval)
	g.registerHandlers()
	return g, nil
}

// Handle 追加消息处理器，须在 Start 前调用
func (g *Gateway) Handle(t MessageType, h ...Handler) error {
	return g.router.Register(t, h...)
}

// Use 追加路由中间件，须在 Start 前调用
func (g *Gateway) Use(mw ...MiddlewareFunc) error {
	return g.router.Use(mw...)
}

// Subscribe 订阅网关事件
func (g *Gateway) Subscribe(t EventType, h EventHandler) {
	g.events.Subscribe(t, h)
}

// Start 冻结路由并启动心跳扫描
func (g *Gateway) Start() {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	g.router.Freeze()
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.monitor.Run(g.ctx)
	}()
	g.log.Info("signal gateway started",
		zap.Duration("heartbeat_timeout", g.cfg.HeartbeatTimeout),
		zap.Duration("sweep_interval", g.cfg.SweepInterval))
}

// Shutdown 以 1001 并行关闭所有连接，停止扫描并排空事件总线
func (g *Gateway) Shutdown(ctx context.Context) error {
	if !g.closing.CompareAndSwap(false, true) {
		return nil
	}
	g.cancel()

	peers := g.registry.Snapshot()
	eg, _ := errgroup.WithContext(ctx)
	eg.SetLimit(64)
	for _, p := range peers {
		p := p
		eg.Go(func() error {
			p.Close(CloseGoingAway, "server shutdown")
			g.registry.Unregister(p, ReasonShutdown)
			return nil
		})
	}
	_ = eg.Wait()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	g.events.Close()
	g.log.Info("signal gateway stopped", zap.Int("closed", len(peers)))
	return err
}

// ServeWS 校验用户 ID 并升级连接，连接在独立协程中运行
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	if !ValidUserID(userID) {
		http.Error(w, ErrInvalidUserID.Message, http.StatusBadRequest)
		return ErrInvalidUserID
	}
	if g.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return ErrTransportClosed
	}
	if _, replacing := g.registry.Lookup(userID); !replacing && g.registry.Count() >= g.cfg.MaxConnections {
		http.Error(w, ErrTooManyConnections.Message, http.StatusServiceUnavailable)
		return ErrTooManyConnections
	}

	ws, err := g.upgrader.Upgrade(w, r)
	if err != nil {
		g.log.Warn("websocket upgrade failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}

	c := newConn(userID, ws, g.cfg)
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.serve(c, r.RemoteAddr)
	}()
	return nil
}

// serve 连接生命周期：注册、读循环、注销
func (g *Gateway) serve(c *Conn, remote string) {
	go c.writePump()

	evicted, err := g.registry.Register(c)
	if err != nil {
		g.log.Warn("connection rejected", zap.String("user_id", c.id), zap.Error(err))
		c.Close(websocket.CloseTryAgainLater, err.Error())
		return
	}
	g.metrics.ConnectionOpened()
	g.emit(c, false, Event{Type: EventPeerConnected, UserID: c.id, SessionID: c.session, Time: c.connectedAt})
	g.log.Info("peer connected",
		zap.String("user_id", c.id),
		zap.String("session_id", c.session),
		zap.String("remote_addr", remote),
		zap.Bool("replaced", evicted != nil))

	err = c.readPump(func(data []byte) bool { return g.handleFrame(c, data) })
	if err != nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		g.log.Debug("read loop ended", zap.String("user_id", c.id), zap.Error(err))
	}

	c.Close(websocket.CloseNormalClosure, "")
	g.registry.Unregister(c, closeReason(c.CloseCode()))
}

func closeReason(code int) string {
	switch code {
	case CloseMalformedFlood:
		return ReasonMalformed
	case CloseSlowConsumer:
		return ReasonSlowConsumer
	case CloseGoingAway:
		return ReasonShutdown
	}
	return ReasonClosed
}

// handleFrame 处理一帧，返回 false 结束读循环
func (g *Gateway) handleFrame(c *Conn, data []byte) bool {
	msg, err := DecodeMessage(data)
	if err != nil {
		return g.malformed(c, nil, err)
	}

	ctx := logger.WithUserID(g.ctx, c.id)
	ctx, span := g.tracer.Start(ctx, "signal."+string(msg.Type),
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("huddle.user_id", c.id),
			attribute.String("huddle.message_type", string(msg.Type)),
		))
	defer span.End()

	if err := g.router.Route(ctx, c, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrMalformedMessage) {
			return g.malformed(c, msg, err)
		}
		g.reject(ctx, c, msg, err)
		return true
	}
	c.invalid = 0
	g.metrics.MessageRouted(msg.Type)
	return true
}

// malformed 累计连续无效帧，超限后关闭连接
func (g *Gateway) malformed(c *Conn, msg *Message, err error) bool {
	c.invalid++
	if c.invalid > g.cfg.MaxInvalidMessages {
		g.log.Warn("too many malformed messages, closing",
			zap.String("user_id", c.id), zap.Int("count", c.invalid))
		c.Close(CloseMalformedFlood, "too many malformed messages")
		return false
	}
	g.reject(g.ctx, c, msg, err)
	return true
}

// reject 回送错误帧，不终止连接
func (g *Gateway) reject(ctx context.Context, c *Conn, msg *Message, err error) {
	e := errors.From(err)
	frame := ErrorFrame{Type: TypeError, Code: e.Reason, Message: e.Message}
	var t MessageType
	if msg != nil {
		t = msg.Type
		frame.RequestType = msg.Type
		frame.TargetUser = msg.TargetUser
	}
	g.metrics.MessageRejected(t, e.Reason)
	g.log.DebugContext(ctx, "message rejected",
		zap.String("user_id", c.id),
		zap.String("type", string(t)),
		zap.String("code", e.Reason),
		zap.Error(err))
	if sendErr := c.Send(encode(frame)); sendErr != nil {
		g.sendFailed("", c, sendErr)
	}
}

// sendFailed 单个接收方投递失败：记录日志，队列溢出的连接视为失效并关闭
// 持有房间锁时调用，只能关闭传输，注销由该连接的读协程完成
func (g *Gateway) sendFailed(roomID string, p Peer, err error) {
	g.metrics.SendDropped()
	if errors.Is(err, ErrTransportClosed) {
		g.log.Debug("send to closed peer", zap.String("user_id", p.ID()), zap.String("room_id", roomID))
		return
	}
	g.log.Warn("send failed, closing stale peer",
		zap.String("user_id", p.ID()), zap.String("room_id", roomID), zap.Error(err))
	p.Close(CloseSlowConsumer, "send queue overflow")
}

// teardown 注册表移除钩子：退出房间、广播 user_left、发布事件
func (g *Gateway) teardown(p Peer, reason string) {
	c, ok := p.(*Conn)
	if !ok {
		return
	}

	var events []Event
	c.mu.Lock()
	roomID, inRoom := c.roomID, c.state == StateInRoom
	if inRoom {
		events = g.leaveLocked(c, roomID)
	}
	c.state, c.roomID = StateClosed, ""
	c.mu.Unlock()

	g.metrics.ConnectionClosed(reason)
	switch reason {
	case ReasonEvicted:
		events = append(events, Event{Type: EventPeerEvicted, UserID: c.id, SessionID: c.session, RoomID: roomID})
	case ReasonHeartbeatTimeout:
		events = append(events, Event{Type: EventPeerTimedOut, UserID: c.id, SessionID: c.session, RoomID: roomID})
	}
	events = append(events, Event{Type: EventPeerDisconnected, UserID: c.id, SessionID: c.session, RoomID: roomID, Reason: reason})
	g.emit(c, true, events...)
	g.log.Info("peer disconnected",
		zap.String("user_id", c.id),
		zap.String("session_id", c.session),
		zap.String("room_id", roomID),
		zap.String("reason", reason),
		zap.Duration("duration", g.now().Sub(c.connectedAt)))
}

// leaveLocked 调用方持有 c.mu，返回待发布的事件
func (g *Gateway) leaveLocked(c *Conn, roomID string) []Event {
	announce := encode(PresenceFrame{Type: TypeUserLeft, UserID: c.id, Timestamp: g.timestamp()})
	left, remaining := g.rooms.Leave(roomID, c, announce)
	if !left {
		return nil
	}
	events := []Event{{Type: EventRoomLeft, UserID: c.id, SessionID: c.session, RoomID: roomID}}
	if remaining == 0 {
		g.metrics.RoomDeleted()
		events = append(events, Event{Type: EventRoomDeleted, UserID: c.id, RoomID: roomID})
	}
	g.log.Info("peer left room",
		zap.String("user_id", c.id), zap.String("room_id", roomID), zap.Int("remaining", remaining))
	return events
}

// emit 在 c.mu 之外发布本会话事件；final 为 true 时此后的事件全部丢弃
// 保证 peer.disconnected 是该会话最后一条事件
func (g *Gateway) emit(c *Conn, final bool, events ...Event) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if c.retired {
		return
	}
	c.retired = final
	for _, ev := range events {
		g.events.Publish(ev)
	}
}

func (g *Gateway) timestamp() string {
	return g.now().UTC().Format(time.RFC3339Nano)
}

// Rooms 活跃房间
func (g *Gateway) Rooms() []string { return g.rooms.Rooms() }

// RoomUsers 房间成员
func (g *Gateway) RoomUsers(roomID string) []string { return g.rooms.Members(roomID) }

// RoomCount 房间数
func (g *Gateway) RoomCount() int { return g.rooms.Len() }

// ConnectionCount 连接数
func (g *Gateway) ConnectionCount() int { return g.registry.Count() }

// Stats 计数器快照
func (g *Gateway) Stats() StatsSnapshot { return g.stats.Snapshot() }

// DroppedEvents 事件总线丢弃数
func (g *Gateway) DroppedEvents() int64 { return g.events.Dropped() }

// SessionInfo 会话快照
type SessionInfo struct {
	UserID        string
	SessionID     string
	RoomID        string
	State         State
	ConnectedAt   time.Time
	LastHeartbeat time.Time
}

// Session 查询用户当前会话
func (g *Gateway) Session(userID string) (SessionInfo, bool) {
	p, ok := g.registry.Lookup(userID)
	if !ok {
		return SessionInfo{}, false
	}
	c, ok := p.(*Conn)
	if !ok {
		return SessionInfo{}, false
	}
	roomID, state := c.Room()
	return SessionInfo{
		UserID:        c.id,
		SessionID:     c.session,
		RoomID:        roomID,
		State:         state,
		ConnectedAt:   c.connectedAt,
		LastHeartbeat: c.LastHeartbeat(),
	}, true
}
