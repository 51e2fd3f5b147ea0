package signal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// MessageType 协议帧类型
type MessageType string

// 客户端 -> 服务端
const (
	TypeJoinRoom  MessageType = "join_room"
	TypeLeaveRoom MessageType = "leave_room"
	TypeHeartbeat MessageType = "heartbeat"
)

// 双向转发
const (
	TypeOffer            MessageType = "webrtc_offer"
	TypeAnswer           MessageType = "webrtc_answer"
	TypeICECandidate     MessageType = "webrtc_ice_candidate"
	TypeChat             MessageType = "chat_message"
	TypeWhiteboardDraw   MessageType = "whiteboard_draw"
	TypeWhiteboardClear  MessageType = "whiteboard_clear"
	TypeScreenShareStart MessageType = "screen_share_start"
	TypeScreenShareStop  MessageType = "screen_share_stop"
)

// 服务端 -> 客户端
const (
	TypeUserJoined      MessageType = "user_joined"
	TypeUserLeft        MessageType = "user_left"
	TypeRoomJoined      MessageType = "room_joined"
	TypeRoomLeft        MessageType = "room_left"
	TypeWhiteboardState MessageType = "whiteboard_state"
	TypeError           MessageType = "error"
)

var (
	roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9-]{3,50}$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

// ValidRoomID 房间 ID 格式校验
func ValidRoomID(id string) bool { return roomIDPattern.MatchString(id) }

// ValidUserID 用户 ID 格式校验
func ValidUserID(id string) bool { return userIDPattern.MatchString(id) }

// Message 入站帧
// 负载字段（offer/answer/candidate）保持原样转发，不做解析
type Message struct {
	Type       MessageType     `json:"type"`
	RoomID     string          `json:"room_id,omitempty"`
	TargetUser string          `json:"target_user,omitempty"`
	Message    *string         `json:"message,omitempty"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// DecodeMessage 解析入站帧
func DecodeMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrMalformedMessage.WithError(err)
	}
	if msg.Type == "" {
		return nil, ErrMalformedMessage.WithMessage("missing type")
	}
	return &msg, nil
}

// payload 返回定向转发类型携带的负载
func (m *Message) payload() json.RawMessage {
	switch m.Type {
	case TypeOffer:
		return m.Offer
	case TypeAnswer:
		return m.Answer
	case TypeICECandidate:
		return m.Candidate
	}
	return nil
}

// present 字段存在且不为 null
func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Tool 画笔工具
type Tool string

const (
	ToolPen    Tool = "pen"
	ToolEraser Tool = "eraser"
)

// Point 画布坐标
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke 一次手绘笔画，入库后不可变
type Stroke struct {
	ID        string  `json:"id"`
	Tool      Tool    `json:"tool"`
	Color     string  `json:"color"`
	Size      float64 `json:"size"`
	Points    []Point `json:"points"`
	Timestamp string  `json:"timestamp"`
}

// Validate 校验笔画
func (s *Stroke) Validate(maxPoints int) error {
	switch {
	case s.Tool != ToolPen && s.Tool != ToolEraser:
		return ErrMalformedMessage.WithMessage(fmt.Sprintf("unknown tool %q", s.Tool))
	case s.Size <= 0:
		return ErrMalformedMessage.WithMessage("stroke size must be positive")
	case len(s.Points) == 0:
		return ErrMalformedMessage.WithMessage("stroke needs at least one point")
	case maxPoints > 0 && len(s.Points) > maxPoints:
		return ErrMalformedMessage.WithMessage(fmt.Sprintf("stroke exceeds %d points", maxPoints))
	case len(s.Color) > 64:
		return ErrMalformedMessage.WithMessage("stroke color too long")
	}
	return nil
}

// 出站帧

// RoomJoinedFrame 加入确认，users 为房间内其他成员
type RoomJoinedFrame struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"room_id"`
	Users  []string    `json:"users"`
}

// RoomLeftFrame 离开确认
type RoomLeftFrame struct {
	Type   MessageType `json:"type"`
	RoomID string      `json:"room_id"`
}

// WhiteboardStateFrame 白板历史回放
type WhiteboardStateFrame struct {
	Type MessageType `json:"type"`
	Data []Stroke    `json:"data"`
}

// PresenceFrame user_joined / user_left
type PresenceFrame struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"user_id"`
	Timestamp string      `json:"timestamp"`
}

// ChatFrame 聊天消息
type ChatFrame struct {
	Type      MessageType `json:"type"`
	Message   string      `json:"message"`
	UserID    string      `json:"user_id"`
	Timestamp string      `json:"timestamp"`
}

// DrawFrame 白板笔画广播
type DrawFrame struct {
	Type   MessageType `json:"type"`
	Data   Stroke      `json:"data"`
	UserID string      `json:"user_id"`
}

// NoticeFrame 仅携带发起人的通知（清空白板、共享屏幕）
type NoticeFrame struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id"`
}

// RelayFrame 定向转发，sender 由服务端填写
type RelayFrame struct {
	Type       MessageType     `json:"type"`
	TargetUser string          `json:"target_user"`
	Sender     string          `json:"sender"`
	Offer      json.RawMessage `json:"offer,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// ErrorFrame 错误帧，不终止连接
type ErrorFrame struct {
	Type        MessageType `json:"type"`
	Code        string      `json:"code"`
	Message     string      `json:"message"`
	RequestType MessageType `json:"request_type,omitempty"`
	TargetUser  string      `json:"target_user,omitempty"`
}

// encode 序列化出站帧
func encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// 出站帧均为固定结构，序列化失败说明负载本身非法
		data, _ = json.Marshal(ErrorFrame{Type: TypeError, Code: ErrMalformedMessage.Reason, Message: err.Error()})
	}
	return data
}
