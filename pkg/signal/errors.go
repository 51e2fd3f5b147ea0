package signal

import "github.com/tokmz/huddle/pkg/errors"

// 信令错误，Reason 即错误帧中的 code 字段
var (
	ErrDuplicateConnection = errors.New(4001, "DuplicateConnection", "connection replaced by a newer session", 409)
	ErrInvalidRoomID       = errors.New(4010, "InvalidRoomId", "room id must match ^[A-Za-z0-9-]{3,50}$", 400)
	ErrNotInRoom           = errors.New(4011, "NotInRoom", "join a room first", 409)
	ErrTargetUnavailable   = errors.New(4012, "TargetUnavailable", "target user is not available in this room", 404)
	ErrMalformedMessage    = errors.New(4013, "MalformedMessage", "malformed message", 400)
	ErrTransportClosed     = errors.New(4014, "TransportClosed", "transport closed", 410)
	ErrInvalidUserID       = errors.New(4015, "InvalidUserId", "user id must match ^[A-Za-z0-9_.-]{1,128}$", 400)
	ErrTooManyConnections  = errors.New(4016, "TooManyConnections", "too many connections", 503)
	ErrRoomFull            = errors.New(4017, "RoomFull", "room is full", 409)
	ErrSendQueueFull       = errors.New(4018, "SendQueueFull", "send queue full", 503)

	ErrRouterFrozen  = errors.New(4090, "RouterFrozen", "router is frozen", 500)
	ErrInvalidConfig = errors.New(4091, "InvalidConfig", "invalid signal config", 500)
)

// 关闭码
const (
	CloseGoingAway       = 1001 // 服务关闭
	CloseDuplicate       = 4001 // 被同 ID 新连接顶替
	CloseHeartbeatExpiry = 4002 // 心跳超时
	CloseMalformedFlood  = 4003 // 连续无效帧过多
	CloseSlowConsumer    = 4004 // 发送队列溢出
)
