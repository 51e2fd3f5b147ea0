// Package broker 将网关生命周期事件投递到 Kafka 或 RabbitMQ
package broker

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/huddle/pkg/logger"
	"github.com/tokmz/huddle/pkg/signal"
)

// Publisher 消息发布者
type Publisher interface {
	Publish(ctx context.Context, key string, body []byte) error
	Close() error
}

// New 按配置创建发布者，DriverNone 返回 nil
func New(cfg *Config) (Publisher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case DriverKafka:
		p, err := NewKafkaPublisher(&cfg.Kafka)
		if err != nil {
			return nil, err
		}
		return p, nil
	case DriverAMQP:
		p, err := NewAMQPPublisher(&cfg.AMQP)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, nil
}

// Subscriber 事件来源
type Subscriber interface {
	Subscribe(t signal.EventType, h signal.EventHandler)
}

// Forwarder 把事件编码为 JSON 后发布
type Forwarder struct {
	pub     Publisher
	log     logger.Logger
	timeout time.Duration
}

// NewForwarder 创建事件转发器
func NewForwarder(pub Publisher, timeout time.Duration, log logger.Logger) *Forwarder {
	if log == nil {
		log = logger.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Forwarder{pub: pub, log: log, timeout: timeout}
}

// Attach 订阅除心跳以外的全部事件
func (f *Forwarder) Attach(sub Subscriber) {
	for _, t := range []signal.EventType{
		signal.EventPeerConnected,
		signal.EventPeerDisconnected,
		signal.EventPeerEvicted,
		signal.EventPeerTimedOut,
		signal.EventRoomCreated,
		signal.EventRoomDeleted,
		signal.EventRoomJoined,
		signal.EventRoomLeft,
		signal.EventWhiteboardCleared,
	} {
		sub.Subscribe(t, f.Handle)
	}
}

// Handle 发布一条事件，失败只记录日志
func (f *Forwarder) Handle(ev signal.Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	if err := f.pub.Publish(ctx, RoutingKey(ev), body); err != nil {
		f.log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("user_id", ev.UserID),
			zap.String("room_id", ev.RoomID),
			zap.Error(err))
	}
}

// RoutingKey 房间事件按房间分区，其余按用户分区
func RoutingKey(ev signal.Event) string {
	if ev.RoomID != "" {
		return "room." + ev.RoomID
	}
	return "user." + ev.UserID
}
