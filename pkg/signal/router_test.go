package signal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(id string) *Conn {
	return newConn(id, nil, DefaultConfig())
}

func TestRouterOrderedHandlers(t *testing.T) {
	r := NewRouter()
	var calls []string
	h := func(name string) Handler {
		return func(context.Context, *Conn, *Message) error {
			calls = append(calls, name)
			return nil
		}
	}
	require.NoError(t, r.Register(TypeChat, h("first"), h("second")))
	require.NoError(t, r.Register(TypeChat, h("third")))

	require.NoError(t, r.Route(context.Background(), testConn("a"), &Message{Type: TypeChat}))
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestRouterStopsOnError(t *testing.T) {
	r := NewRouter()
	boom := errors.New("boom")
	reached := false
	_ = r.Register(TypeChat,
		func(context.Context, *Conn, *Message) error { return boom },
		func(context.Context, *Conn, *Message) error { reached = true; return nil },
	)
	r.Freeze()

	err := r.Route(context.Background(), testConn("a"), &Message{Type: TypeChat})
	assert.ErrorIs(t, err, boom)
	assert.False(t, reached)
}

func TestRouterMiddlewareOrder(t *testing.T) {
	for _, frozen := range []bool{false, true} {
		r := NewRouter()
		var trace []string
		mw := func(name string) MiddlewareFunc {
			return func(_ context.Context, _ *Conn, _ *Message, next NextFunc) error {
				trace = append(trace, name+">")
				err := next()
				trace = append(trace, "<"+name)
				return err
			}
		}
		require.NoError(t, r.Use(mw("outer"), mw("inner")))
		_ = r.Register(TypeHeartbeat, func(context.Context, *Conn, *Message) error {
			trace = append(trace, "handler")
			return nil
		})
		if frozen {
			r.Freeze()
		}
		require.NoError(t, r.Route(context.Background(), testConn("a"), &Message{Type: TypeHeartbeat}))
		assert.Equal(t, []string{"outer>", "inner>", "handler", "<inner", "<outer"}, trace)
	}
}

func TestRouterUnknownType(t *testing.T) {
	r := NewRouter()
	r.Freeze()
	err := r.Route(context.Background(), testConn("a"), &Message{Type: "teleport"})
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestRouterFrozen(t *testing.T) {
	r := NewRouter()
	r.Freeze()
	assert.ErrorIs(t, r.Register(TypeChat, func(context.Context, *Conn, *Message) error { return nil }), ErrRouterFrozen)
	assert.ErrorIs(t, r.Use(RequireRoom()), ErrRouterFrozen)
}

func TestRequireRoom(t *testing.T) {
	r := NewRouter()
	_ = r.Use(RequireRoom(TypeChat))
	ok := func(context.Context, *Conn, *Message) error { return nil }
	_ = r.Register(TypeChat, ok)
	_ = r.Register(TypeHeartbeat, ok)
	r.Freeze()

	c := testConn("a")
	assert.ErrorIs(t, r.Route(context.Background(), c, &Message{Type: TypeChat}), ErrNotInRoom)
	assert.NoError(t, r.Route(context.Background(), c, &Message{Type: TypeHeartbeat}))

	c.state, c.roomID = StateInRoom, "room-1"
	assert.NoError(t, r.Route(context.Background(), c, &Message{Type: TypeChat}))
}
