// Package mq 提供基于 Watermill 库的统一消息队列操作接口。
// 支持发布/订阅模式，并通过工厂模式抽象不同的 MQ 实现。
//
// 支持的 MQ 类型：
//   - gochannel（进程内，默认）
//   - NATS（支持 JetStream）
//   - Redis Pub/Sub
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.Events, mq.WithMetrics(metrics.GetRegistry()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"header":{}}`))
//	err = client.Publish(ctx, "hs.classification.completed", msg)
package mq

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	watermill "github.com/ThreeDotsLabs/watermill"
	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/hsrelay/pkg/configs"
	nlog "github.com/yeisme/hsrelay/pkg/log"
)

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.EventsConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var (
	factories = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// GetRegisteredMQTypes 返回已注册的总线类型，按名称排序.
func GetRegisteredMQTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	kind       configs.MQType
	publisher  message.Publisher
	subscriber message.Subscriber
	inflight   sync.WaitGroup
}

// Option 客户端选项.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithMetrics 使用 watermill 的 Prometheus 装饰器记录发布/订阅指标.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// New 根据配置创建消息队列客户端.
func New(ctx context.Context, cfg configs.EventsConfig, opts ...Option) (*Client, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	l := nlog.Logger()
	logger := NewLoggerAdapter(l)

	pub, sub, err := factory(ctx, &cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	if o.registerer != nil {
		// 装饰publisher和subscriber
		builder := wmmetrics.NewPrometheusMetricsBuilder(o.registerer, "hsrelay", "events")

		if pub, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if sub, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	l.Info().Str("type", string(cfg.Type)).Msg("event bus initialized")

	return &Client{kind: cfg.Type, publisher: pub, subscriber: sub}, nil
}

// Type 返回总线类型.
func (c *Client) Type() configs.MQType {
	return c.kind
}

// Publisher 返回底层 Publisher，客户端为 nil 时返回 nil.
func (c *Client) Publisher() message.Publisher {
	if c == nil {
		return nil
	}

	return c.publisher
}

// Go 在后台执行发布任务，Close 会等待这些任务结束.
func (c *Client) Go(fn func()) {
	if c == nil {
		return
	}

	c.inflight.Add(1)

	go func() {
		defer c.inflight.Done()
		fn()
	}()
}

// Publish 便捷发布.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// Close 关闭资源.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.inflight.Wait()

	var errs []error

	if c.publisher != nil {
		errs = append(errs, c.publisher.Close())
	}

	// gochannel 的 publisher 与 subscriber 是同一个实例
	if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
		errs = append(errs, c.subscriber.Close())
	}

	return errors.Join(errs...)
}
