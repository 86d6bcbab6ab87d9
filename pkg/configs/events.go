package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 事件总线类型.
type MQType string

const (
	MQTypeGoChannel MQType = "gochannel" // 进程内总线
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis" // Redis Pub/Sub，不持久化

	DefaultMQURL         = "nats://localhost:4222"
	DefaultMaxReconnects = 5                 // 默认最大重连次数
	DefaultReconnectWait = 2 * time.Second   // 默认重连等待时间
	DefaultMQClientID    = "hsrelay"         // 默认客户端ID
	DefaultEventProducer = "hsrelay"         // 事件头 producer 字段
	DefaultBufferSize    = 64                // gochannel 输出缓冲
	DefaultDurablePrefix = "hsrelay-durable" // JetStream 持久化订阅前缀
)

// EventsConfig 控制分类事件发布（全局与分主题）.
type EventsConfig struct {
	Enabled   bool            `mapstructure:"enabled"` // 总开关
	Type      MQType          `mapstructure:"type"      rule:"oneof=gochannel nats redis"`
	Producer  string          `mapstructure:"producer"`
	Completed bool            `mapstructure:"completed"` // hs.classification.completed
	Failed    bool            `mapstructure:"failed"`    // hs.classification.failed
	NATS      NATSEventConfig `mapstructure:"nats"`
	Redis     RedisKVConfig   `mapstructure:"redis"`
	// BufferSize gochannel 每个订阅者的缓冲大小.
	BufferSize int64 `mapstructure:"buffer_size" rule:"min=0"`
}

// NATSEventConfig NATS 事件总线配置.
type NATSEventConfig struct {
	URL              string        `mapstructure:"url"               rule:"required"`
	ClusterURLs      []string      `mapstructure:"cluster_urls"`
	ClientID         string        `mapstructure:"client_id"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	JWT              string        `mapstructure:"jwt"`
	NKey             string        `mapstructure:"nkey"`
	MaxReconnects    int           `mapstructure:"max_reconnects"    rule:"min=-1,max=100"`
	ReconnectWait    time.Duration `mapstructure:"reconnect_wait"    rule:"min=0"`
	JetStreamEnabled bool          `mapstructure:"jetstream_enabled"`
	AutoProvision    bool          `mapstructure:"auto_provision"`
	TrackMsgID       bool          `mapstructure:"track_msg_id"`
	DurablePrefix    string        `mapstructure:"durable_prefix"`
	// QueueGroup 非空时多个 hsrelay 消费者共享一个队列组
	QueueGroup       string        `mapstructure:"queue_group"`
	SubscribersCount int           `mapstructure:"subscribers_count" rule:"min=0,max=64"`
	AckWait          time.Duration `mapstructure:"ack_wait"          rule:"min=0"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	// 总开关：默认关闭，分类结果不出进程
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.type", MQTypeGoChannel)
	v.SetDefault("events.producer", DefaultEventProducer)
	v.SetDefault("events.completed", true)
	v.SetDefault("events.failed", true)
	v.SetDefault("events.buffer_size", DefaultBufferSize)

	v.SetDefault("events.nats.url", DefaultMQURL)
	v.SetDefault("events.nats.cluster_urls", []string{})
	v.SetDefault("events.nats.client_id", DefaultMQClientID)
	v.SetDefault("events.nats.user", "")
	v.SetDefault("events.nats.password", "")
	v.SetDefault("events.nats.jwt", "")
	v.SetDefault("events.nats.nkey", "")
	v.SetDefault("events.nats.max_reconnects", DefaultMaxReconnects)
	v.SetDefault("events.nats.reconnect_wait", DefaultReconnectWait)
	v.SetDefault("events.nats.jetstream_enabled", false)
	v.SetDefault("events.nats.auto_provision", true)
	v.SetDefault("events.nats.track_msg_id", true)
	v.SetDefault("events.nats.durable_prefix", DefaultDurablePrefix)
	v.SetDefault("events.nats.queue_group", "")
	v.SetDefault("events.nats.subscribers_count", 1)
	v.SetDefault("events.nats.ack_wait", 30*time.Second)

	v.SetDefault("events.redis.addr", "localhost:6379")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
}
