package signal

import (
	"sort"
	"sync"
)

// Snapshot 房间在某一时刻的状态
type Snapshot struct {
	RoomID  string
	Users   []string // 不含调用者
	Strokes []Stroke
}

// SendErrorFunc 单个接收方投递失败时调用，不影响其他接收方
// 调用时持有房间锁，回调内不得再操作目录
type SendErrorFunc func(roomID string, p Peer, err error)

// Room 房间，成员变更、白板变更与广播在同一把锁内完成
type Room struct {
	id string

	mu      sync.Mutex
	members map[string]Peer
	strokes []Stroke
	closed  bool // 已从目录删除，Join 需重新获取
}

// Directory 房间目录
type Directory struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	maxRoomSize int
	maxStrokes  int
	onSendError SendErrorFunc
}

// NewDirectory 创建房间目录
func NewDirectory(maxRoomSize, maxStrokes int, onSendError SendErrorFunc) *Directory {
	return &Directory{
		rooms:       make(map[string]*Room),
		maxRoomSize: maxRoomSize,
		maxStrokes:  maxStrokes,
		onSendError: onSendError,
	}
}

func (d *Directory) acquire(roomID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if room, ok := d.rooms[roomID]; ok {
		return room, false
	}
	room := &Room{id: roomID, members: make(map[string]Peer)}
	d.rooms[roomID] = room
	return room, true
}

func (d *Directory) get(roomID string) *Room {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[roomID]
}

// Join 加入房间，不存在则创建
// announce 发给其他成员，greet 在同一临界区内拿到快照，
// 保证加入者先收到历史再收到之后的广播
func (d *Directory) Join(roomID string, p Peer, announce []byte, greet func(Snapshot)) (created bool, err error) {
	for {
		room, fresh := d.acquire(roomID)
		room.mu.Lock()
		if room.closed {
			room.mu.Unlock()
			continue
		}

		if _, member := room.members[p.ID()]; !member && d.maxRoomSize > 0 && len(room.members) >= d.maxRoomSize {
			room.mu.Unlock()
			return false, ErrRoomFull
		}

		room.members[p.ID()] = p
		d.fanout(room, p, announce)
		if greet != nil {
			greet(room.snapshot(p.ID()))
		}
		room.mu.Unlock()
		return fresh, nil
	}
}

// Resync 对已在房间内的成员重发快照
func (d *Directory) Resync(roomID string, p Peer, greet func(Snapshot)) error {
	room := d.get(roomID)
	if room == nil {
		return ErrNotInRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.members[p.ID()] != p {
		return ErrNotInRoom
	}
	greet(room.snapshot(p.ID()))
	return nil
}

// Leave 离开房间，非成员调用为空操作
// 成员清空时房间及其白板一并删除
func (d *Directory) Leave(roomID string, p Peer, announce []byte) (left bool, remaining int) {
	room := d.get(roomID)
	if room == nil {
		return false, 0
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.members[p.ID()] != p {
		return false, len(room.members)
	}
	delete(room.members, p.ID())
	d.fanout(room, p, announce)

	remaining = len(room.members)
	if remaining == 0 {
		room.closed = true
		room.strokes = nil
		d.mu.Lock()
		if d.rooms[roomID] == room {
			delete(d.rooms, roomID)
		}
		d.mu.Unlock()
	}
	return true, remaining
}

// Broadcast 发给房间内除 sender 外的所有成员，返回成功投递数
func (d *Directory) Broadcast(roomID string, sender Peer, frame []byte) (int, error) {
	return d.locked(roomID, sender, func(room *Room) int {
		return d.fanout(room, sender, frame)
	})
}

// Relay 定向转发，sender 与 target 必须同处一个房间
func (d *Directory) Relay(roomID string, sender, target Peer, frame []byte) error {
	var sendErr error
	_, err := d.locked(roomID, sender, func(room *Room) int {
		if room.members[target.ID()] != target {
			sendErr = ErrTargetUnavailable
			return 0
		}
		if sendErr = target.Send(frame); sendErr != nil {
			d.sendFailed(room.id, target, sendErr)
			sendErr = ErrTargetUnavailable.WithError(sendErr)
			return 0
		}
		return 1
	})
	if err != nil {
		return err
	}
	return sendErr
}

// AppendStroke 追加笔画并广播，超过上限时丢弃最早的笔画
func (d *Directory) AppendStroke(roomID string, sender Peer, stroke Stroke, frame []byte) (int, error) {
	return d.locked(roomID, sender, func(room *Room) int {
		room.strokes = append(room.strokes, stroke)
		if d.maxStrokes > 0 && len(room.strokes) > d.maxStrokes {
			room.strokes = append(room.strokes[:0:0], room.strokes[len(room.strokes)-d.maxStrokes:]...)
		}
		return d.fanout(room, sender, frame)
	})
}

// ClearWhiteboard 清空白板并广播
func (d *Directory) ClearWhiteboard(roomID string, sender Peer, frame []byte) (int, error) {
	return d.locked(roomID, sender, func(room *Room) int {
		room.strokes = nil
		return d.fanout(room, sender, frame)
	})
}

// locked 在房间锁内执行 fn，sender 必须是成员
func (d *Directory) locked(roomID string, sender Peer, fn func(*Room) int) (int, error) {
	room := d.get(roomID)
	if room == nil {
		return 0, ErrNotInRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.members[sender.ID()] != sender {
		return 0, ErrNotInRoom
	}
	return fn(room), nil
}

// fanout 调用方持有 room.mu
func (d *Directory) fanout(room *Room, except Peer, frame []byte) int {
	if frame == nil {
		return 0
	}
	delivered := 0
	for id, p := range room.members {
		if id == except.ID() {
			continue
		}
		if err := p.Send(frame); err != nil {
			d.sendFailed(room.id, p, err)
			continue
		}
		delivered++
	}
	return delivered
}

func (d *Directory) sendFailed(roomID string, p Peer, err error) {
	if d.onSendError != nil {
		d.onSendError(roomID, p, err)
	}
}

// snapshot 调用方持有 room.mu
func (r *Room) snapshot(exclude string) Snapshot {
	users := make([]string, 0, len(r.members))
	for id := range r.members {
		if id != exclude {
			users = append(users, id)
		}
	}
	sort.Strings(users)

	strokes := make([]Stroke, len(r.strokes))
	copy(strokes, r.strokes)
	return Snapshot{RoomID: r.id, Users: users, Strokes: strokes}
}

// Rooms 活跃房间 ID，已排序
func (d *Directory) Rooms() []string {
	d.mu.RLock()
	ids := make([]string, 0, len(d.rooms))
	for id := range d.rooms {
		ids = append(ids, id)
	}
	d.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len 活跃房间数
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// Members 房间成员，已排序；房间不存在时返回空切片
func (d *Directory) Members(roomID string) []string {
	room := d.get(roomID)
	if room == nil {
		return []string{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshot("").Users
}

// MemberCount 房间人数
func (d *Directory) MemberCount(roomID string) int {
	room := d.get(roomID)
	if room == nil {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.members)
}

// Whiteboard 白板历史副本
func (d *Directory) Whiteboard(roomID string) []Stroke {
	room := d.get(roomID)
	if room == nil {
		return []Stroke{}
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshot("").Strokes
}
