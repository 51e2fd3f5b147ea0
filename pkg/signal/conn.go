package signal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State 连接状态
type State int

const (
	StateConnected State = iota // 已注册，未入房
	StateInRoom                 // 已加入一个房间
	StateClosed                 // 终态
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	default:
		return "closed"
	}
}

// Conn 一个 WebSocket 会话
type Conn struct {
	id          string
	session     string
	ws          *websocket.Conn
	cfg         *Config
	connectedAt time.Time

	// mu 保护状态机，锁顺序 Conn.mu -> Room.mu -> sendMu
	mu     sync.Mutex
	state  State
	roomID string

	// emitMu 串行化本会话的事件发布，不与 mu 同时持有；retired 之后不再发布
	emitMu  sync.Mutex
	retired bool

	sendMu     sync.RWMutex
	sendClosed bool
	send       chan []byte

	lastHeartbeat atomic.Int64 // UnixNano
	invalid       int          // 连续无效帧，仅读协程访问

	closeOnce   sync.Once
	closeCode   int
	closeReason string
	done        chan struct{}
}

func newConn(id string, ws *websocket.Conn, cfg *Config) *Conn {
	now := time.Now()
	c := &Conn{
		id:          id,
		session:     uuid.NewString(),
		ws:          ws,
		cfg:         cfg,
		connectedAt: now,
		send:        make(chan []byte, cfg.SendQueueSize),
		done:        make(chan struct{}),
	}
	c.lastHeartbeat.Store(now.UnixNano())
	return c
}

// ID 用户 ID
func (c *Conn) ID() string { return c.id }

// SessionID 本次连接的会话 ID
func (c *Conn) SessionID() string { return c.session }

// ConnectedAt 建立时间
func (c *Conn) ConnectedAt() time.Time { return c.connectedAt }

// LastHeartbeat 最近一次应用层心跳
func (c *Conn) LastHeartbeat() time.Time {
	return time.Unix(0, c.lastHeartbeat.Load())
}

func (c *Conn) touch(now time.Time) {
	c.lastHeartbeat.Store(now.UnixNano())
}

// Room 当前房间与状态
func (c *Conn) Room() (string, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.state
}

// Send 非阻塞入队
func (c *Conn) Send(frame []byte) error {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.sendClosed {
		return ErrTransportClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 同步停止入队，关闭帧与底层连接由写协程完成
func (c *Conn) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.sendClosed = true
		c.closeCode, c.closeReason = code, reason
		c.sendMu.Unlock()
		close(c.done)
	})
}

// Done 关闭通知
func (c *Conn) Done() <-chan struct{} { return c.done }

// CloseCode 关闭码，未关闭时为 0
func (c *Conn) CloseCode() int {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return c.closeCode
}

// writePump 唯一的写协程，退出时关闭底层连接
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			code, reason := c.closeCode, c.closeReason
			msg := websocket.FormatCloseMessage(code, reason)
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return

		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}

		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(kind int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, data)
}

// readPump 读循环，handle 返回 false 时结束
// 协议层 pong 只延长读超时，不计入应用层心跳
func (c *Conn) readPump(handle func([]byte) bool) error {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	pongWait := c.cfg.HeartbeatTimeout
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}
		if !handle(data) {
			return nil
		}
	}
}
