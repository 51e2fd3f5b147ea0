package signal

import (
	"sort"
	"sync"
)

// Peer 注册表与房间持有的传输句柄
type Peer interface {
	ID() string
	// Send 非阻塞投递一帧，队列满或已关闭时返回错误
	Send(frame []byte) error
	// Close 立即停止投递并关闭传输，可重复调用
	Close(code int, reason string)
}

// 移除原因
const (
	ReasonClosed           = "closed"
	ReasonEvicted          = "evicted"
	ReasonHeartbeatTimeout = "heartbeat_timeout"
	ReasonMalformed        = "malformed_flood"
	ReasonSlowConsumer     = "slow_consumer"
	ReasonShutdown         = "shutdown"
)

// RemoveHook 条目被移除后同步调用，每个 Peer 至多一次
type RemoveHook func(p Peer, reason string)

// Registry 连接注册表，user id -> Peer
// 同 ID 新连接顶替旧连接（newest wins），旧连接以 CloseDuplicate 关闭
type Registry struct {
	mu       sync.RWMutex
	peers    map[string]Peer
	maxConns int
	onRemove RemoveHook
}

// NewRegistry 创建注册表，maxConns <= 0 表示不限制
func NewRegistry(maxConns int, onRemove RemoveHook) *Registry {
	return &Registry{
		peers:    make(map[string]Peer),
		maxConns: maxConns,
		onRemove: onRemove,
	}
}

// Register 注册连接，返回被顶替的旧连接（可能为 nil）
// 旧连接的清理钩子在返回前执行完毕
func (r *Registry) Register(p Peer) (Peer, error) {
	r.mu.Lock()
	old, exists := r.peers[p.ID()]
	if !exists && r.maxConns > 0 && len(r.peers) >= r.maxConns {
		r.mu.Unlock()
		return nil, ErrTooManyConnections
	}
	r.peers[p.ID()] = p
	r.mu.Unlock()

	if !exists || old == p {
		return nil, nil
	}
	old.Close(CloseDuplicate, "replaced by a newer connection")
	if r.onRemove != nil {
		r.onRemove(old, ReasonEvicted)
	}
	return old, nil
}

// Lookup 查找连接
func (r *Registry) Lookup(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Unregister 注销连接，幂等
// 仅当条目仍指向 p 时移除，已被顶替的旧连接不会误删新连接
func (r *Registry) Unregister(p Peer, reason string) bool {
	r.mu.Lock()
	cur, ok := r.peers[p.ID()]
	if !ok || cur != p {
		r.mu.Unlock()
		return false
	}
	delete(r.peers, p.ID())
	r.mu.Unlock()

	if r.onRemove != nil {
		r.onRemove(p, reason)
	}
	return true
}

// Count 当前连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot 连接快照，按 ID 排序
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i].ID() < peers[j].ID() })
	return peers
}
