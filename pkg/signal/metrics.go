package signal

import "sync/atomic"

// Metrics 监控接口
type Metrics interface {
	ConnectionOpened()
	ConnectionClosed(reason string)
	MessageRouted(t MessageType)
	MessageRejected(t MessageType, reason string)
	SendDropped()
	RoomCreated()
	RoomDeleted()
}

// multiMetrics 同时上报到多个实现
type multiMetrics []Metrics

func (m multiMetrics) ConnectionOpened() {
	for _, x := range m {
		x.ConnectionOpened()
	}
}

func (m multiMetrics) ConnectionClosed(reason string) {
	for _, x := range m {
		x.ConnectionClosed(reason)
	}
}

func (m multiMetrics) MessageRouted(t MessageType) {
	for _, x := range m {
		x.MessageRouted(t)
	}
}

func (m multiMetrics) MessageRejected(t MessageType, reason string) {
	for _, x := range m {
		x.MessageRejected(t, reason)
	}
}

func (m multiMetrics) SendDropped() {
	for _, x := range m {
		x.SendDropped()
	}
}

func (m multiMetrics) RoomCreated() {
	for _, x := range m {
		x.RoomCreated()
	}
}

func (m multiMetrics) RoomDeleted() {
	for _, x := range m {
		x.RoomDeleted()
	}
}

// Stats 进程内计数器，供 /api/stats 读取
type Stats struct {
	opened            atomic.Int64
	closed            atomic.Int64
	evictions         atomic.Int64
	heartbeatTimeouts atomic.Int64
	routed            atomic.Int64
	rejected          atomic.Int64
	dropped           atomic.Int64
	roomsCreated      atomic.Int64
	roomsDeleted      atomic.Int64
}

// StatsSnapshot 计数器快照
type StatsSnapshot struct {
	ConnectionsOpened int64 `json:"connections_opened"`
	ConnectionsClosed int64 `json:"connections_closed"`
	ConnectionsActive int64 `json:"connections_active"`
	Evictions         int64 `json:"evictions"`
	HeartbeatTimeouts int64 `json:"heartbeat_timeouts"`
	MessagesRouted    int64 `json:"messages_routed"`
	MessagesRejected  int64 `json:"messages_rejected"`
	SendsDropped      int64 `json:"sends_dropped"`
	RoomsCreated      int64 `json:"rooms_created"`
	RoomsDeleted      int64 `json:"rooms_deleted"`
}

func (s *Stats) ConnectionOpened() { s.opened.Add(1) }

func (s *Stats) ConnectionClosed(reason string) {
	s.closed.Add(1)
	switch reason {
	case ReasonEvicted:
		s.evictions.Add(1)
	case ReasonHeartbeatTimeout:
		s.heartbeatTimeouts.Add(1)
	}
}

func (s *Stats) MessageRouted(MessageType)           { s.routed.Add(1) }
func (s *Stats) MessageRejected(MessageType, string) { s.rejected.Add(1) }
func (s *Stats) SendDropped()                        { s.dropped.Add(1) }
func (s *Stats) RoomCreated()                        { s.roomsCreated.Add(1) }
func (s *Stats) RoomDeleted()                        { s.roomsDeleted.Add(1) }

// Snapshot 读取当前计数
func (s *Stats) Snapshot() StatsSnapshot {
	opened, closed := s.opened.Load(), s.closed.Load()
	return StatsSnapshot{
		ConnectionsOpened: opened,
		ConnectionsClosed: closed,
		ConnectionsActive: opened - closed,
		Evictions:         s.evictions.Load(),
		HeartbeatTimeouts: s.heartbeatTimeouts.Load(),
		MessagesRouted:    s.routed.Load(),
		MessagesRejected:  s.rejected.Load(),
		SendsDropped:      s.dropped.Load(),
		RoomsCreated:      s.roomsCreated.Load(),
		RoomsDeleted:      s.roomsDeleted.Load(),
	}
}
