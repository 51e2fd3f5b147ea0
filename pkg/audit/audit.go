// Package audit 将房间活动事件批量写入数据库，供运维查询
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"

	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/signal"
)

const tracerName = "huddle.audit"

// Activity 房间活动记录
type Activity struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	RoomID    string    `gorm:"size:64;index:idx_room_time" json:"room_id"`
	UserID    string    `gorm:"size:128;index" json:"user_id"`
	Kind      string    `gorm:"size:32" json:"kind"`
	Reason    string    `gorm:"size:32" json:"reason,omitempty"`
	CreatedAt time.Time `gorm:"index:idx_room_time" json:"created_at"`
}

// TableName 表名
func (Activity) TableName() string { return "room_activities" }

// Subscriber 事件来源
type Subscriber interface {
	Subscribe(t signal.EventType, h signal.EventHandler)
}

// Recorder 批量活动记录器
type Recorder struct {
	db            *gorm.DB
	log           logger.Logger
	batchSize     int
	flushInterval time.Duration

	queue   chan Activity
	flushCh chan chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped atomic.Bool
	dropped atomic.Int64
}

// Option 记录器选项
type Option func(*Recorder)

// WithBatchSize 单次写入的最大条数
func WithBatchSize(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithFlushInterval 定时刷新间隔
func WithFlushInterval(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.flushInterval = d
		}
	}
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRecorder 迁移表结构并启动后台写入
func NewRecorder(db *gorm.DB, opts ...Option) (*Recorder, error) {
	r := &Recorder{
		db:            db,
		log:           logger.NewNop(),
		batchSize:     100,
		flushInterval: time.Second,
		flushCh:       make(chan chan struct{}),
		stopCh:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := db.AutoMigrate(&Activity{}); err != nil {
		return nil, err
	}
	r.queue = make(chan Activity, r.batchSize*4)

	r.wg.Add(1)
	go r.loop()
	return r, nil
}

// Attach 订阅房间与连接生命周期事件
func (r *Recorder) Attach(sub Subscriber) {
	for _, t := range []signal.EventType{
		signal.EventRoomCreated,
		signal.EventRoomDeleted,
		signal.EventRoomJoined,
		signal.EventRoomLeft,
		signal.EventPeerEvicted,
		signal.EventPeerTimedOut,
		signal.EventWhiteboardCleared,
	} {
		sub.Subscribe(t, r.Handle)
	}
}

// Handle 将事件排入写入队列，队列满时丢弃
func (r *Recorder) Handle(ev signal.Event) {
	if r.stopped.Load() {
		return
	}
	a := Activity{
		RoomID:    ev.RoomID,
		UserID:    ev.UserID,
		Kind:      string(ev.Type),
		Reason:    ev.Reason,
		CreatedAt: ev.Time.UTC(),
	}
	select {
	case r.queue <- a:
	default:
		r.dropped.Add(1)
	}
}

// Flush 等待已排队的记录写入
func (r *Recorder) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case r.flushCh <- done:
	case <-r.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 写入剩余记录后停止
func (r *Recorder) Close() {
	if !r.stopped.CompareAndSwap(false, true) {
		return
	}
	close(r.stopCh)
	r.wg.Wait()
}

// Dropped 因队列满丢弃的记录数
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Recent 按时间倒序返回房间最近的活动，读请求走只读副本
func (r *Recorder) Recent(ctx context.Context, roomID string, limit int) ([]Activity, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var out []Activity
	err := r.db.WithContext(ctx).
		Clauses(dbresolver.Read).
		Where("room_id = ?", roomID).
		Order("created_at DESC").Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *Recorder) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]Activity, 0, r.batchSize)
	write := func() {
		if len(batch) == 0 {
			return
		}
		ctx, span := otel.Tracer(tracerName).Start(context.Background(), "audit.flush")
		span.SetAttributes(attribute.Int("audit.batch_size", len(batch)))
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := r.db.WithContext(ctx).CreateInBatches(batch, r.batchSize).Error; err != nil {
			span.RecordError(err)
			r.log.Error("audit flush failed", zap.Int("count", len(batch)), zap.Error(err))
		}
		cancel()
		span.End()
		batch = batch[:0]
	}
	drain := func() {
		for {
			select {
			case a := <-r.queue:
				batch = append(batch, a)
				if len(batch) >= r.batchSize {
					write()
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case a := <-r.queue:
			batch = append(batch, a)
			if len(batch) >= r.batchSize {
				write()
			}
		case <-ticker.C:
			write()
		case done := <-r.flushCh:
			drain()
			write()
			close(done)
		case <-r.stopCh:
			drain()
			write()
			return
		}
	}
}
