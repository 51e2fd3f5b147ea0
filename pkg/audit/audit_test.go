package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/orm"
	"github.com/tokmz/huddle/pkg/signal"
)

func newRecorder(t *testing.T, opts ...Option) *Recorder {
	t.Helper()
	cfg := orm.DefaultConfig()
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	cfg.MaxOpenConns = 1
	cfg.PrepareStmt = false
	db, err := orm.New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = orm.Close(db) })

	r, err := NewRecorder(db, append([]Option{WithFlushInterval(time.Hour)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

type bus struct{ handlers map[signal.EventType]signal.EventHandler }

func (b *bus) Subscribe(t signal.EventType, h signal.EventHandler) {
	if b.handlers == nil {
		b.handlers = map[signal.EventType]signal.EventHandler{}
	}
	b.handlers[t] = h
}

func TestRecorder_FlushAndRecent(t *testing.T) {
	r := newRecorder(t)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	r.Handle(signal.Event{Type: signal.EventRoomCreated, RoomID: "standup", UserID: "alice", Time: base})
	r.Handle(signal.Event{Type: signal.EventRoomJoined, RoomID: "standup", UserID: "alice", Time: base})
	r.Handle(signal.Event{Type: signal.EventRoomJoined, RoomID: "standup", UserID: "bob", Time: base.Add(time.Second)})
	r.Handle(signal.Event{Type: signal.EventRoomJoined, RoomID: "other", UserID: "carol", Time: base})

	ctx := context.Background()
	require.NoError(t, r.Flush(ctx))

	got, err := r.Recent(ctx, "standup", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "bob", got[0].UserID)
	assert.Equal(t, "room.joined", got[0].Kind)

	got, err = r.Recent(ctx, "standup", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecorder_BatchSizeTriggersWrite(t *testing.T) {
	r := newRecorder(t, WithBatchSize(2))
	now := time.Now()
	r.Handle(signal.Event{Type: signal.EventRoomJoined, RoomID: "abc", UserID: "u1", Time: now})
	r.Handle(signal.Event{Type: signal.EventRoomLeft, RoomID: "abc", UserID: "u1", Time: now})

	assert.Eventually(t, func() bool {
		got, err := r.Recent(context.Background(), "abc", 10)
		return err == nil && len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorder_CloseWritesPending(t *testing.T) {
	r := newRecorder(t)
	r.Handle(signal.Event{Type: signal.EventPeerEvicted, RoomID: "abc", UserID: "u1", Reason: "evicted", Time: time.Now()})
	r.Close()

	got, err := r.Recent(context.Background(), "abc", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "evicted", got[0].Reason)

	// 关闭后忽略新事件
	r.Handle(signal.Event{Type: signal.EventRoomJoined, RoomID: "abc", UserID: "u2", Time: time.Now()})
	assert.NoError(t, r.Flush(context.Background()))
}

func TestRecorder_Attach(t *testing.T) {
	r := newRecorder(t)
	b := &bus{}
	r.Attach(b)
	assert.Contains(t, b.handlers, signal.EventRoomCreated)
	assert.Contains(t, b.handlers, signal.EventWhiteboardCleared)
	assert.NotContains(t, b.handlers, signal.EventPeerHeartbeat)
}
