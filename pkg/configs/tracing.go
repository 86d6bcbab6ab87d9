package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultTraceMaxBatchSize = 512
	DefaultTraceMaxQueueSize = 2048
)

// TracingConfig OpenTelemetry 导出配置，默认关闭.
type TracingConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	ServiceName    string            `mapstructure:"service_name"` // resource 的 service.name
	ServiceVersion string            `mapstructure:"service_version"`
	ExporterType   string            `mapstructure:"exporter_type"   rule:"oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string            `mapstructure:"endpoint"        rule:"required_if=Enabled true"` // otlp-http 与 zipkin 为 URL，otlp-grpc 为 host:port
	Insecure       bool              `mapstructure:"insecure"`                                        // otlp-grpc 不使用 TLS
	SampleRate     float64           `mapstructure:"sample_rate"     rule:"min=0,max=1"`              // 根 span 采样比例
	BatchTimeout   time.Duration     `mapstructure:"batch_timeout"`
	MaxBatchSize   int               `mapstructure:"max_batch_size"`
	MaxQueueSize   int               `mapstructure:"max_queue_size"`
	ResourceLabels map[string]string `mapstructure:"resource_labels"` // 附加的 resource 属性
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "hsrelay")
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.exporter_type", "otlp-http")
	v.SetDefault("tracing.endpoint", "http://localhost:4318")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", "5s")
	v.SetDefault("tracing.max_batch_size", DefaultTraceMaxBatchSize)
	v.SetDefault("tracing.max_queue_size", DefaultTraceMaxQueueSize)
	v.SetDefault("tracing.resource_labels", map[string]string{
		"deployment.environment": "development",
	})
}
