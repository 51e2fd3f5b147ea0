package signal

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusDelivers(t *testing.T) {
	eb := NewEventBus(2, 16)

	var mu sync.Mutex
	var got []EventType
	eb.SubscribeAll(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev.Type)
	}, EventRoomCreated, EventRoomDeleted)

	eb.Publish(Event{Type: EventRoomCreated, RoomID: "abc"})
	eb.Publish(Event{Type: EventRoomDeleted, RoomID: "abc"})
	eb.Publish(Event{Type: EventPeerHeartbeat}) // 无订阅者
	eb.Close()

	assert.ElementsMatch(t, []EventType{EventRoomCreated, EventRoomDeleted}, got)
}

func TestEventBusClosedDropsSilently(t *testing.T) {
	eb := NewEventBus(1, 1)
	called := false
	eb.Subscribe(EventPeerConnected, func(Event) { called = true })
	eb.Close()
	eb.Close()

	eb.Publish(Event{Type: EventPeerConnected})
	assert.False(t, called)
}

func TestEventBusDropsWhenFull(t *testing.T) {
	eb := NewEventBus(1, 1)
	block := make(chan struct{})
	eb.Subscribe(EventPeerHeartbeat, func(Event) { <-block })

	for i := 0; i < 10; i++ {
		eb.Publish(Event{Type: EventPeerHeartbeat})
	}
	assert.Positive(t, eb.Dropped())
	close(block)
	eb.Close()
}

func TestEventBusPerKeyOrder(t *testing.T) {
	const users, perUser = 200, 20
	eb := NewEventBus(4, 4*users*perUser)

	gate := make(chan struct{})
	var mu sync.Mutex
	seq := make(map[string][]int)
	eb.Subscribe(EventRoomJoined, func(ev Event) {
		<-gate
		var n int
		_, _ = fmt.Sscanf(ev.Reason, "%d", &n)
		mu.Lock()
		seq[ev.UserID] = append(seq[ev.UserID], n)
		mu.Unlock()
	})

	// 交错发布，所有 worker 阻塞期间事件全部排队
	for i := 0; i < perUser; i++ {
		for u := 0; u < users; u++ {
			eb.Publish(Event{
				Type:   EventRoomJoined,
				UserID: fmt.Sprintf("user-%d", u),
				RoomID: "room",
				Reason: fmt.Sprint(i),
			})
		}
	}
	close(gate)
	eb.Close()

	require.Zero(t, eb.Dropped())
	require.Len(t, seq, users)
	want := make([]int, perUser)
	for i := range want {
		want[i] = i
	}
	for id, got := range seq {
		assert.Equal(t, want, got, id)
	}
}

func TestEventBusRoomOnlyEventsShareShard(t *testing.T) {
	eb := NewEventBus(8, 64)
	defer eb.Close()

	a := eb.shard(Event{Type: EventRoomCreated, RoomID: "standup"}.key())
	b := eb.shard(Event{Type: EventRoomDeleted, RoomID: "standup"}.key())
	assert.Equal(t, a, b)
	assert.Equal(t, eb.shard("alice"), eb.shard(Event{UserID: "alice", RoomID: "standup"}.key()))
}
