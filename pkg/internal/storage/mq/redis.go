package mq

import (
	"context"
	"fmt"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/hsrelay/pkg/configs"
)

const (
	// DefaultChannelBufferSize 默认通道缓冲区大小.
	DefaultChannelBufferSize = 100
)

// RedisPublisher 基于 Redis Pub/Sub 的 Publisher，消息不持久化.
type RedisPublisher struct {
	client *redis.Client
}

// RedisSubscriber 基于 Redis Pub/Sub 的 Subscriber.
type RedisSubscriber struct {
	client  *redis.Client
	buffer  int
	mu      sync.Mutex
	subs    []*redis.PubSub
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// init 注册 Redis 工厂.
func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFactory 创建 Redis Publisher & Subscriber，两者使用独立连接池.
func redisFactory(
	ctx context.Context,
	cfg *configs.EventsConfig,
	_ watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	newClient := func() *redis.Client {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	pubClient := newClient()

	// 测试连接
	if err := pubClient.Ping(ctx).Err(); err != nil {
		_ = pubClient.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	buffer := int(cfg.BufferSize)
	if buffer <= 0 {
		buffer = DefaultChannelBufferSize
	}

	return NewRedisPublisher(pubClient), NewRedisSubscriber(newClient(), buffer), nil
}

// NewRedisPublisher 使用已有客户端创建 Publisher.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// NewRedisSubscriber 使用已有客户端创建 Subscriber.
func NewRedisSubscriber(client *redis.Client, buffer int) *RedisSubscriber {
	return &RedisSubscriber{
		client:  client,
		buffer:  buffer,
		closeCh: make(chan struct{}),
	}
}

// Publish 实现 Publisher 接口，只发送 payload.
func (p *RedisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		ctx := msg.Context()

		if err := p.client.Publish(ctx, topic, msg.Payload).Err(); err != nil {
			return fmt.Errorf("redis publish %s: %w", topic, err)
		}
	}

	return nil
}

// Close 实现 Publisher 接口.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Subscribe 实现 Subscriber 接口，每次订阅使用独立的 PubSub 连接.
func (s *RedisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("redis subscriber closed")
	}

	ps := s.client.Subscribe(ctx, topic)

	// 等待订阅确认
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	s.subs = append(s.subs, ps)

	out := make(chan *message.Message, s.buffer)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)

		in := ps.Channel()

		for {
			select {
			case <-s.closeCh:
				return
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}

				wmMsg := message.NewMessage(watermill.NewUUID(), []byte(m.Payload))

				select {
				case out <- wmMsg:
				case <-s.closeCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close 实现 Subscriber 接口.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	close(s.closeCh)

	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, ps := range subs {
		_ = ps.Close()
	}

	s.wg.Wait()

	return s.client.Close()
}
