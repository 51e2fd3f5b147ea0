package signal

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// relayTypes 需要先入房的消息类型
var relayTypes = []MessageType{
	TypeOffer, TypeAnswer, TypeICECandidate,
	TypeChat,
	TypeWhiteboardDraw, TypeWhiteboardClear,
	TypeScreenShareStart, TypeScreenShareStop,
}

func (g *Gateway) registerHandlers() {
	_ = g.router.Use(RequireRoom(relayTypes...))

	_ = g.router.Register(TypeJoinRoom, g.handleJoin)
	_ = g.router.Register(TypeLeaveRoom, g.handleLeave)
	_ = g.router.Register(TypeHeartbeat, g.handleHeartbeat)

	_ = g.router.Register(TypeOffer, g.handleRelay)
	_ = g.router.Register(TypeAnswer, g.handleRelay)
	_ = g.router.Register(TypeICECandidate, g.handleRelay)

	_ = g.router.Register(TypeChat, g.handleChat)
	_ = g.router.Register(TypeWhiteboardDraw, g.handleDraw)
	_ = g.router.Register(TypeWhiteboardClear, g.handleClear)
	_ = g.router.Register(TypeScreenShareStart, g.handleScreenShare)
	_ = g.router.Register(TypeScreenShareStop, g.handleScreenShare)
}

// greet 在房间锁内向加入者发送成员列表与白板历史
func (g *Gateway) greet(c *Conn) func(Snapshot) {
	return func(s Snapshot) {
		for _, frame := range [][]byte{
			encode(RoomJoinedFrame{Type: TypeRoomJoined, RoomID: s.RoomID, Users: s.Users}),
			encode(WhiteboardStateFrame{Type: TypeWhiteboardState, Data: s.Strokes}),
		} {
			if err := c.Send(frame); err != nil {
				g.sendFailed(s.RoomID, c, err)
				return
			}
		}
	}
}

// handleJoin Connected -> InRoom
// 已在同一房间时只重发状态；在其他房间时先离开原房间
// 事件在释放 c.mu 之后发布
func (g *Gateway) handleJoin(ctx context.Context, c *Conn, msg *Message) error {
	if !ValidRoomID(msg.RoomID) {
		return ErrInvalidRoomID
	}

	var events []Event
	defer func() { g.emit(c, false, events...) }()
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateClosed:
		return ErrTransportClosed
	case StateInRoom:
		if c.roomID == msg.RoomID {
			return g.rooms.Resync(msg.RoomID, c, g.greet(c))
		}
		events = g.leaveLocked(c, c.roomID)
		c.state, c.roomID = StateConnected, ""
	}

	announce := encode(PresenceFrame{Type: TypeUserJoined, UserID: c.id, Timestamp: g.timestamp()})
	created, err := g.rooms.Join(msg.RoomID, c, announce, g.greet(c))
	if err != nil {
		return err
	}
	c.state, c.roomID = StateInRoom, msg.RoomID

	if created {
		g.metrics.RoomCreated()
		events = append(events, Event{Type: EventRoomCreated, UserID: c.id, RoomID: msg.RoomID})
	}
	events = append(events, Event{Type: EventRoomJoined, UserID: c.id, SessionID: c.session, RoomID: msg.RoomID})
	g.log.InfoContext(ctx, "peer joined room",
		zap.String("room_id", msg.RoomID), zap.Bool("created", created))
	return nil
}

// handleLeave InRoom -> Connected，未入房时为空操作
func (g *Gateway) handleLeave(_ context.Context, c *Conn, _ *Message) error {
	var events []Event
	defer func() { g.emit(c, false, events...) }()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateInRoom {
		return nil
	}
	roomID := c.roomID
	events = g.leaveLocked(c, roomID)
	c.state, c.roomID = StateConnected, ""
	return c.Send(encode(RoomLeftFrame{Type: TypeRoomLeft, RoomID: roomID}))
}

// handleHeartbeat 只有应用层心跳刷新存活时间
func (g *Gateway) handleHeartbeat(_ context.Context, c *Conn, _ *Message) error {
	now := g.now()
	c.touch(now)
	roomID, _ := c.Room()
	g.emit(c, false, Event{Type: EventPeerHeartbeat, UserID: c.id, SessionID: c.session, RoomID: roomID, Time: now})
	return nil
}

// handleRelay 定向转发 offer/answer/candidate，负载原样透传
func (g *Gateway) handleRelay(_ context.Context, c *Conn, msg *Message) error {
	switch msg.TargetUser {
	case "":
		return ErrMalformedMessage.WithMessage("target_user is required")
	case c.id:
		return ErrMalformedMessage.WithMessage("target_user must differ from sender")
	}
	if !present(msg.payload()) {
		return ErrMalformedMessage.WithMessage(string(msg.Type) + " payload is required")
	}

	target, ok := g.registry.Lookup(msg.TargetUser)
	if !ok {
		return ErrTargetUnavailable
	}
	frame := RelayFrame{Type: msg.Type, TargetUser: msg.TargetUser, Sender: c.id}
	switch msg.Type {
	case TypeOffer:
		frame.Offer = msg.Offer
	case TypeAnswer:
		frame.Answer = msg.Answer
	case TypeICECandidate:
		frame.Candidate = msg.Candidate
	}

	roomID, _ := c.Room()
	return g.rooms.Relay(roomID, c, target, encode(frame))
}

func (g *Gateway) handleChat(_ context.Context, c *Conn, msg *Message) error {
	if msg.Message == nil {
		return ErrMalformedMessage.WithMessage("message is required")
	}
	roomID, _ := c.Room()
	_, err := g.rooms.Broadcast(roomID, c, encode(ChatFrame{
		Type:      TypeChat,
		Message:   *msg.Message,
		UserID:    c.id,
		Timestamp: g.timestamp(),
	}))
	return err
}

// handleDraw 校验笔画，服务端分配 id 与时间戳后追加并广播
func (g *Gateway) handleDraw(_ context.Context, c *Conn, msg *Message) error {
	if !present(msg.Data) {
		return ErrMalformedMessage.WithMessage("data is required")
	}
	var stroke Stroke
	if err := json.Unmarshal(msg.Data, &stroke); err != nil {
		return ErrMalformedMessage.WithError(err)
	}
	if err := stroke.Validate(g.cfg.MaxStrokePoints); err != nil {
		return err
	}
	stroke.ID = uuid.NewString()
	stroke.Timestamp = g.timestamp()

	roomID, _ := c.Room()
	_, err := g.rooms.AppendStroke(roomID, c, stroke,
		encode(DrawFrame{Type: TypeWhiteboardDraw, Data: stroke, UserID: c.id}))
	return err
}

func (g *Gateway) handleClear(_ context.Context, c *Conn, _ *Message) error {
	roomID, _ := c.Room()
	if _, err := g.rooms.ClearWhiteboard(roomID, c,
		encode(NoticeFrame{Type: TypeWhiteboardClear, UserID: c.id})); err != nil {
		return err
	}
	g.emit(c, false, Event{Type: EventWhiteboardCleared, UserID: c.id, RoomID: roomID})
	return nil
}

func (g *Gateway) handleScreenShare(_ context.Context, c *Conn, msg *Message) error {
	roomID, _ := c.Room()
	_, err := g.rooms.Broadcast(roomID, c, encode(NoticeFrame{Type: msg.Type, UserID: c.id}))
	return err
}
