// Package presence 在缓存层维护在线状态镜像，供 HTTP 查询与多实例共享
package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/cache"
	bizerrors "github.com/tokmz/huddle/pkg/errors"
	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/signal"
)

// ErrOffline 用户不在线
var ErrOffline = bizerrors.New(4201, "offline", "user is not connected", 404)

// Record 在线记录
type Record struct {
	UserID      string    `json:"user_id"`
	SessionID   string    `json:"session_id"`
	RoomID      string    `json:"room_id"`
	ConnectedAt time.Time `json:"connected_at"`
	LastSeen    time.Time `json:"last_seen"`
}

// Source 缓存未命中时的权威数据源（通常是本进程的网关）
type Source interface {
	Session(userID string) (signal.SessionInfo, bool)
}

// Subscriber 事件来源
type Subscriber interface {
	Subscribe(t signal.EventType, h signal.EventHandler)
}

// Store 在线状态存储
type Store struct {
	sf     *cache.SingleflightCache
	source Source
	ttl    time.Duration
	log    logger.Logger

	mu sync.Mutex // 串行化同一进程内的读改写
}

// New 创建在线状态存储
func New(c cache.Cache, source Source, ttl time.Duration, log logger.Logger) *Store {
	if log == nil {
		log = logger.NewNop()
	}
	return &Store{
		sf:     cache.NewSingleflightCache(c),
		source: source,
		ttl:    ttl,
		log:    log,
	}
}

func key(userID string) string { return "presence:" + userID }

// Attach 订阅网关事件
func (s *Store) Attach(sub Subscriber) {
	for _, t := range []signal.EventType{
		signal.EventPeerConnected,
		signal.EventPeerDisconnected,
		signal.EventPeerHeartbeat,
		signal.EventRoomJoined,
		signal.EventRoomLeft,
	} {
		sub.Subscribe(t, s.Handle)
	}
}

// Handle 应用一条事件，只修改同一会话的记录
func (s *Store) Handle(ev signal.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.Type == signal.EventPeerConnected {
		s.put(ctx, Record{
			UserID:      ev.UserID,
			SessionID:   ev.SessionID,
			ConnectedAt: ev.Time,
			LastSeen:    ev.Time,
		})
		return
	}

	var rec Record
	if err := s.sf.Get(ctx, key(ev.UserID), &rec); err != nil {
		if !errors.Is(err, cache.ErrCacheNotFound) {
			s.log.Warn("presence read failed", zap.String("user_id", ev.UserID), zap.Error(err))
		}
		return
	}
	if rec.SessionID != ev.SessionID {
		return
	}

	switch ev.Type {
	case signal.EventPeerDisconnected:
		if err := s.sf.Delete(ctx, key(ev.UserID)); err != nil {
			s.log.Warn("presence delete failed", zap.String("user_id", ev.UserID), zap.Error(err))
		}
		return
	case signal.EventPeerHeartbeat:
		rec.LastSeen = ev.Time
	case signal.EventRoomJoined:
		rec.RoomID = ev.RoomID
	case signal.EventRoomLeft:
		if rec.RoomID == ev.RoomID {
			rec.RoomID = ""
		}
	}
	s.put(ctx, rec)
}

func (s *Store) put(ctx context.Context, rec Record) {
	if err := s.sf.Set(ctx, key(rec.UserID), rec, s.ttl); err != nil {
		s.log.Warn("presence write failed", zap.String("user_id", rec.UserID), zap.Error(err))
	}
}

// Get 读取在线记录，未命中时经 singleflight 回源网关并写回
func (s *Store) Get(ctx context.Context, userID string) (Record, error) {
	rec, err := cache.RememberWithLock(ctx, s.sf, key(userID), s.ttl, func(context.Context) (Record, error) {
		if s.source == nil {
			return Record{}, ErrOffline
		}
		info, ok := s.source.Session(userID)
		if !ok {
			return Record{}, ErrOffline
		}
		return Record{
			UserID:      info.UserID,
			SessionID:   info.SessionID,
			RoomID:      info.RoomID,
			ConnectedAt: info.ConnectedAt,
			LastSeen:    info.LastHeartbeat,
		}, nil
	})
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}
