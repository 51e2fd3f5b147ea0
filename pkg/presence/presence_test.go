package presence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/cache"
	"github.com/tokmz/huddle/pkg/signal"
)

type fakeSource struct {
	calls    atomic.Int32
	sessions map[string]signal.SessionInfo
}

func (f *fakeSource) Session(id string) (signal.SessionInfo, bool) {
	f.calls.Add(1)
	s, ok := f.sessions[id]
	return s, ok
}

type fakeSubscriber struct {
	mu       sync.Mutex
	handlers map[signal.EventType][]signal.EventHandler
}

func (f *fakeSubscriber) Subscribe(t signal.EventType, h signal.EventHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = map[signal.EventType][]signal.EventHandler{}
	}
	f.handlers[t] = append(f.handlers[t], h)
}

func newStore(t *testing.T, src Source) *Store {
	t.Helper()
	c, err := cache.NewWithOptions(cache.WithMemory(cache.DefaultMemoryConfig()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New(c, src, time.Minute, nil)
}

func TestStoreFollowsSessionLifecycle(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.Handle(signal.Event{Type: signal.EventPeerConnected, UserID: "alice", SessionID: "s1", Time: t0})
	s.Handle(signal.Event{Type: signal.EventRoomJoined, UserID: "alice", SessionID: "s1", RoomID: "standup"})
	s.Handle(signal.Event{Type: signal.EventPeerHeartbeat, UserID: "alice", SessionID: "s1", Time: t0.Add(30 * time.Second)})

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "standup", rec.RoomID)
	assert.True(t, rec.ConnectedAt.Equal(t0))
	assert.True(t, rec.LastSeen.Equal(t0.Add(30*time.Second)))

	s.Handle(signal.Event{Type: signal.EventRoomLeft, UserID: "alice", SessionID: "s1", RoomID: "standup"})
	rec, _ = s.Get(ctx, "alice")
	assert.Empty(t, rec.RoomID)

	s.Handle(signal.Event{Type: signal.EventPeerDisconnected, UserID: "alice", SessionID: "s1"})
	_, err = s.Get(ctx, "alice")
	assert.ErrorIs(t, err, ErrOffline)
}

func TestStoreIgnoresStaleSession(t *testing.T) {
	s := newStore(t, nil)
	ctx := context.Background()

	s.Handle(signal.Event{Type: signal.EventPeerConnected, UserID: "alice", SessionID: "new", Time: time.Now()})
	// 被顶替的旧会话事件晚到
	s.Handle(signal.Event{Type: signal.EventPeerDisconnected, UserID: "alice", SessionID: "old"})
	s.Handle(signal.Event{Type: signal.EventRoomJoined, UserID: "alice", SessionID: "old", RoomID: "elsewhere"})

	rec, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.SessionID)
	assert.Empty(t, rec.RoomID)
}

func TestStoreReadThroughCoalesces(t *testing.T) {
	src := &fakeSource{sessions: map[string]signal.SessionInfo{
		"bob": {UserID: "bob", SessionID: "s9", RoomID: "retro"},
	}}
	s := newStore(t, src)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Get(ctx, "bob")
			assert.NoError(t, err)
			assert.Equal(t, "retro", rec.RoomID)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, src.calls.Load(), int32(10))

	// 已写回缓存
	before := src.calls.Load()
	_, err := s.Get(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, before, src.calls.Load())

	_, err = s.Get(ctx, "carol")
	assert.ErrorIs(t, err, ErrOffline)
}

func TestStoreAttach(t *testing.T) {
	s := newStore(t, nil)
	sub := &fakeSubscriber{}
	s.Attach(sub)

	assert.Len(t, sub.handlers, 5)
	sub.handlers[signal.EventPeerConnected][0](signal.Event{
		Type: signal.EventPeerConnected, UserID: "dave", SessionID: "s1", Time: time.Now(),
	})
	rec, err := s.Get(context.Background(), "dave")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.SessionID)
}

func TestStoreDisconnectAfterBacklog(t *testing.T) {
	const sessions = 2000
	s := newStore(t, nil)
	eb := signal.NewEventBus(4, 4*2*sessions)

	gate := make(chan struct{})
	eb.Subscribe(signal.EventPeerConnected, func(signal.Event) { <-gate })
	s.Attach(eb)

	for i := 0; i < sessions; i++ {
		id := fmt.Sprintf("user-%d", i)
		sess := fmt.Sprintf("s-%d", i)
		eb.Publish(signal.Event{Type: signal.EventPeerConnected, UserID: id, SessionID: sess})
		eb.Publish(signal.Event{Type: signal.EventPeerDisconnected, UserID: id, SessionID: sess})
	}
	close(gate)
	eb.Close()
	require.Zero(t, eb.Dropped())

	ctx := context.Background()
	stale := 0
	for i := 0; i < sessions; i++ {
		if _, err := s.Get(ctx, fmt.Sprintf("user-%d", i)); err == nil {
			stale++
		}
	}
	assert.Zero(t, stale)
}
