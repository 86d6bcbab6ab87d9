package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/hsrelay/pkg/configs"
)

func init() {
	RegisterFactory(configs.MQTypeGoChannel, goChannelFactory)
}

// goChannelFactory 进程内总线，没有订阅者时消息直接丢弃.
func goChannelFactory(
	_ context.Context,
	cfg *configs.EventsConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: cfg.BufferSize,
	}, logger)

	return ch, ch, nil
}
