package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/hsrelay/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
	natsCloseTimeout   = 15 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsConnOptions 连接参数：断线重连、发布端刷新超时和认证方式.
// 认证优先级 JWT > NKey > 用户名密码.
func natsConnOptions(cfg *configs.NATSEventConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.ClientID),
		nc.MaxReconnects(cfg.MaxReconnects),
		nc.ReconnectWait(cfg.ReconnectWait),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	switch {
	case cfg.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.JWT, cfg.NKey))
	case cfg.NKey != "":
		opts = append(opts, nc.Nkey(cfg.NKey, nil))
	case cfg.User != "":
		opts = append(opts, nc.UserInfo(cfg.User, cfg.Password))
	}

	return opts
}

func natsServers(cfg *configs.NATSEventConfig) string {
	if len(cfg.ClusterURLs) == 0 {
		return cfg.URL
	}

	return strings.Join(cfg.ClusterURLs, ",")
}

// natsFactory 发布端与订阅端共用连接参数；事件头元数据通过 NATS headers 传递.
func natsFactory(
	_ context.Context,
	cfg *configs.EventsConfig,
	logger watermill.LoggerAdapter,
) (message.Publisher, message.Subscriber, error) {
	ncfg := &cfg.NATS
	url := natsServers(ncfg)
	opts := natsConnOptions(ncfg)
	marshaler := &nats.NATSMarshaler{}

	js := nats.JetStreamConfig{Disabled: !ncfg.JetStreamEnabled}
	if ncfg.JetStreamEnabled {
		js.AutoProvision = ncfg.AutoProvision
		js.TrackMsgId = ncfg.TrackMsgID
		js.DurablePrefix = ncfg.DurablePrefix
	}

	logger.Info("connecting to nats", watermill.LogFields{
		"url":       url,
		"jetstream": ncfg.JetStreamEnabled,
		"queue":     ncfg.QueueGroup,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         url,
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              url,
		NatsOptions:      opts,
		JetStream:        js,
		Unmarshaler:      marshaler,
		QueueGroupPrefix: ncfg.QueueGroup,
		SubscribersCount: max(ncfg.SubscribersCount, 1),
		AckWaitTimeout:   ncfg.AckWait,
		CloseTimeout:     natsCloseTimeout,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	return pub, sub, nil
}
