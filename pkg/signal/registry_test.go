package signal

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePeer 记录收到的帧与关闭码
type fakePeer struct {
	id string

	mu        sync.Mutex
	frames    [][]byte
	closeCode int
	failWith  error
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failWith != nil {
		return p.failWith
	}
	if p.closeCode != 0 {
		return ErrTransportClosed
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) Close(code int, _ string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closeCode == 0 {
		p.closeCode = code
	}
}

func (p *fakePeer) code() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closeCode
}

// types 按顺序返回收到帧的 type 字段
func (p *fakePeer) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.frames))
	for _, f := range p.frames {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &head)
		out = append(out, head.Type)
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = nil
}

type removal struct {
	id     string
	peer   Peer
	reason string
}

func recordingHook() (RemoveHook, func() []removal) {
	var mu sync.Mutex
	var got []removal
	return func(p Peer, reason string) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, removal{id: p.ID(), peer: p, reason: reason})
		}, func() []removal {
			mu.Lock()
			defer mu.Unlock()
			return append([]removal(nil), got...)
		}
}

func TestRegistryRegisterLookup(t *testing.T) {
	r := NewRegistry(0, nil)
	a := newFakePeer("user_a")

	evicted, err := r.Register(a)
	require.NoError(t, err)
	assert.Nil(t, evicted)

	got, ok := r.Lookup("user_a")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Lookup("user_b")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Count())
}

func TestRegistryNewestWins(t *testing.T) {
	hook, removed := recordingHook()
	r := NewRegistry(0, hook)

	old := newFakePeer("user_a")
	fresh := newFakePeer("user_a")
	_, err := r.Register(old)
	require.NoError(t, err)

	evicted, err := r.Register(fresh)
	require.NoError(t, err)
	assert.Same(t, old, evicted)
	assert.Equal(t, CloseDuplicate, old.code())
	assert.Zero(t, fresh.code())

	got, _ := r.Lookup("user_a")
	assert.Same(t, fresh, got)

	rs := removed()
	require.Len(t, rs, 1)
	assert.Same(t, old, rs[0].peer)
	assert.Equal(t, ReasonEvicted, rs[0].reason)

	// 旧连接随后的注销不影响新连接
	assert.False(t, r.Unregister(old, ReasonClosed))
	got, ok := r.Lookup("user_a")
	require.True(t, ok)
	assert.Same(t, fresh, got)
	assert.Len(t, removed(), 1)
}

func TestRegistryUnregisterIdempotent(t *testing.T) {
	hook, removed := recordingHook()
	r := NewRegistry(0, hook)
	a := newFakePeer("user_a")
	_, _ = r.Register(a)

	assert.True(t, r.Unregister(a, ReasonClosed))
	assert.False(t, r.Unregister(a, ReasonClosed))
	assert.Equal(t, 0, r.Count())

	rs := removed()
	require.Len(t, rs, 1)
	assert.Equal(t, ReasonClosed, rs[0].reason)
}

func TestRegistryMaxConnections(t *testing.T) {
	r := NewRegistry(2, nil)
	_, err := r.Register(newFakePeer("a"))
	require.NoError(t, err)
	_, err = r.Register(newFakePeer("b"))
	require.NoError(t, err)

	_, err = r.Register(newFakePeer("c"))
	assert.ErrorIs(t, err, ErrTooManyConnections)

	// 顶替已有 ID 不占新名额
	_, err = r.Register(newFakePeer("a"))
	assert.NoError(t, err)
}

func TestRegistrySnapshotSorted(t *testing.T) {
	r := NewRegistry(0, nil)
	for _, id := range []string{"carol", "alice", "bob"} {
		_, _ = r.Register(newFakePeer(id))
	}
	var ids []string
	for _, p := range r.Snapshot() {
		ids = append(ids, p.ID())
	}
	assert.Equal(t, []string{"alice", "bob", "carol"}, ids)
}

func TestRegistryConcurrentRegister(t *testing.T) {
	hook, removed := recordingHook()
	r := NewRegistry(0, hook)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = r.Register(newFakePeer("same"))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, r.Count())
	assert.Len(t, removed(), n-1)
}
