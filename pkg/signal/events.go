package signal

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// EventType 事件类型
type EventType string

const (
	EventPeerConnected     EventType = "peer.connected"
	EventPeerDisconnected  EventType = "peer.disconnected"
	EventPeerEvicted       EventType = "peer.evicted"
	EventPeerTimedOut      EventType = "peer.timed_out"
	EventPeerHeartbeat     EventType = "peer.heartbeat"
	EventRoomCreated       EventType = "room.created"
	EventRoomDeleted       EventType = "room.deleted"
	EventRoomJoined        EventType = "room.joined"
	EventRoomLeft          EventType = "room.left"
	EventWhiteboardCleared EventType = "whiteboard.cleared"
)

// critical 连接生命周期事件，队列满时短暂等待而非直接丢弃
func (t EventType) critical() bool {
	switch t {
	case EventPeerConnected, EventPeerDisconnected, EventRoomJoined, EventRoomLeft:
		return true
	}
	return false
}

// Event 网关事件
type Event struct {
	Type      EventType `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	RoomID    string    `json:"room_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Time      time.Time `json:"time"`
}

// key 分片键：有用户时按用户，否则按房间
func (ev Event) key() string {
	if ev.UserID != "" {
		return ev.UserID
	}
	return ev.RoomID
}

// EventHandler 事件处理器
type EventHandler func(Event)

// EventBus 事件总线，处理器在固定大小的 worker 池中异步执行
// 同一分片键的事件固定落在同一 worker，按发布顺序处理
type EventBus struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
	shards   []chan func()
	stopCh   chan struct{}
	wg       sync.WaitGroup
	closed   atomic.Bool
	dropped  atomic.Int64
}

// NewEventBus 创建事件总线，queueSize 为全部 worker 的队列总长
func NewEventBus(workers, queueSize int) *EventBus {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	perShard := max(queueSize/workers, 1)
	eb := &EventBus{
		handlers: make(map[EventType][]EventHandler),
		shards:   make([]chan func(), workers),
		stopCh:   make(chan struct{}),
	}
	for i := range eb.shards {
		eb.shards[i] = make(chan func(), perShard)
		eb.wg.Add(1)
		go eb.worker(eb.shards[i])
	}
	return eb
}

func (eb *EventBus) worker(tasks chan func()) {
	defer eb.wg.Done()
	for {
		select {
		case task := <-tasks:
			task()
		case <-eb.stopCh:
			// 退出前清空队列
			for {
				select {
				case task := <-tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (eb *EventBus) shard(key string) chan func() {
	return eb.shards[xxhash.Sum64String(key)%uint64(len(eb.shards))]
}

// Subscribe 订阅事件
func (eb *EventBus) Subscribe(t EventType, h EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[t] = append(eb.handlers[t], h)
}

// SubscribeAll 订阅多个事件类型
func (eb *EventBus) SubscribeAll(h EventHandler, types ...EventType) {
	for _, t := range types {
		eb.Subscribe(t, h)
	}
}

// Publish 异步发布，不阻塞调用方
// 丢弃只发生在入队时，已入队的同键事件之间不会乱序
func (eb *EventBus) Publish(ev Event) {
	if eb.closed.Load() {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	eb.mu.RLock()
	handlers := eb.handlers[ev.Type]
	eb.mu.RUnlock()
	if len(handlers) == 0 {
		return
	}

	tasks := eb.shard(ev.key())
	for _, h := range handlers {
		h := h
		task := func() { h(ev) }
		if ev.Type.critical() {
			select {
			case tasks <- task:
			case <-time.After(100 * time.Millisecond):
				eb.dropped.Add(1)
			}
			continue
		}
		select {
		case tasks <- task:
		default:
			eb.dropped.Add(1)
		}
	}
}

// Close 停止 worker 并处理完已入队事件
func (eb *EventBus) Close() {
	if !eb.closed.CompareAndSwap(false, true) {
		return
	}
	close(eb.stopCh)
	eb.wg.Wait()
}

// Dropped 丢弃的事件数
func (eb *EventBus) Dropped() int64 {
	return eb.dropped.Load()
}
