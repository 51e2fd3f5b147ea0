package signal

import (
	"context"
	"time"
)

// heartbeater 可被心跳监控的连接
type heartbeater interface {
	LastHeartbeat() time.Time
}

// Monitor 心跳监控，周期扫描注册表并强制断开超时连接
// 断开走与正常关闭相同的注销路径
type Monitor struct {
	registry *Registry
	timeout  time.Duration
	interval time.Duration
}

// NewMonitor 创建心跳监控
func NewMonitor(registry *Registry, timeout, interval time.Duration) *Monitor {
	return &Monitor{registry: registry, timeout: timeout, interval: interval}
}

// Run 阻塞运行直到 ctx 取消
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

// Sweep 执行一次扫描，返回被断开的用户 ID
func (m *Monitor) Sweep(now time.Time) []string {
	var expired []string
	for _, p := range m.registry.Snapshot() {
		hb, ok := p.(heartbeater)
		if !ok || now.Sub(hb.LastHeartbeat()) <= m.timeout {
			continue
		}
		p.Close(CloseHeartbeatExpiry, "heartbeat timeout")
		if m.registry.Unregister(p, ReasonHeartbeatTimeout) {
			expired = append(expired, p.ID())
		}
	}
	return expired
}
