package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/huddle/pkg/signal"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"none", func(c *Config) {}, false},
		{"kafka without brokers", func(c *Config) { c.Driver = DriverKafka }, true},
		{"kafka", func(c *Config) { c.Driver = DriverKafka; c.Kafka.Brokers = []string{"localhost:9092"} }, false},
		{"amqp", func(c *Config) { c.Driver = DriverAMQP }, false},
		{"amqp without exchange", func(c *Config) { c.Driver = DriverAMQP; c.AMQP.Exchange = "" }, true},
		{"unknown", func(c *Config) { c.Driver = "nats" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_None(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "room.standup", RoutingKey(signal.Event{RoomID: "standup", UserID: "alice"}))
	assert.Equal(t, "user.alice", RoutingKey(signal.Event{UserID: "alice"}))
}

func TestKafkaPublisher_Forward(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev signal.Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != signal.EventRoomJoined || ev.RoomID != "standup" {
			return errors.New("unexpected event")
		}
		return nil
	})

	pub := NewKafkaPublisherWithProducer(producer, "huddle.events")
	f := NewForwarder(pub, time.Second, nil)
	f.Handle(signal.Event{Type: signal.EventRoomJoined, UserID: "alice", RoomID: "standup", Time: time.Now()})

	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_SendError(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := NewKafkaPublisherWithProducer(producer, "huddle.events")
	err := pub.Publish(context.Background(), "user.alice", []byte(`{}`))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, pub.Close())
}

func TestKafkaPublisher_CanceledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, sarama.NewConfig())
	pub := NewKafkaPublisherWithProducer(producer, "huddle.events")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, pub.Publish(ctx, "k", nil), context.Canceled)
	require.NoError(t, pub.Close())
}

type fakeChannel struct {
	mu     sync.Mutex
	sent   []amqp.Publishing
	keys   []string
	err    error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Forward(t *testing.T) {
	ch := &fakeChannel{}
	pub := &AMQPPublisher{exchange: "huddle.events", ch: ch}
	f := NewForwarder(pub, time.Second, nil)

	f.Handle(signal.Event{Type: signal.EventPeerEvicted, UserID: "alice", Reason: "evicted", Time: time.Now()})

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "user.alice", ch.keys[0])
	assert.Equal(t, "application/json", ch.sent[0].ContentType)
	assert.Contains(t, string(ch.sent[0].Body), `"peer.evicted"`)

	require.NoError(t, pub.Close())
	assert.True(t, ch.closed)
}

func TestForwarder_PublishErrorIsSwallowed(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	f := NewForwarder(&AMQPPublisher{exchange: "x", ch: ch}, 0, nil)
	assert.NotPanics(t, func() {
		f.Handle(signal.Event{Type: signal.EventRoomDeleted, RoomID: "abc"})
	})
}

type recordingSub struct{ types []signal.EventType }

func (r *recordingSub) Subscribe(t signal.EventType, _ signal.EventHandler) { r.types = append(r.types, t) }

func TestForwarder_AttachSkipsHeartbeat(t *testing.T) {
	sub := &recordingSub{}
	NewForwarder(&AMQPPublisher{ch: &fakeChannel{}}, 0, nil).Attach(sub)
	assert.Len(t, sub.types, 9)
	assert.NotContains(t, sub.types, signal.EventPeerHeartbeat)
}
