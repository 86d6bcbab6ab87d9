package configs

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultUpstreamBaseURL      = "http://localhost:5000" // 外部分类服务地址
	DefaultUpstreamUploadPath   = "/upload"               // 文件上传分类端点
	DefaultUpstreamAnalyzePath  = "/analyze"              // 文本分类端点
	DefaultUpstreamFileField    = "files[]"               // 出站 multipart 文件字段名
	DefaultUpstreamTimeout      = 30 * time.Second        // 单次出站请求超时
	DefaultUpstreamMaxBodyBytes = 8 << 20                 // 上游响应体读取上限（8MiB）
	DefaultUpstreamMaxIdleConns = 32                      // 空闲连接上限
)

// UpstreamConfig 外部分类服务配置.
type UpstreamConfig struct {
	BaseURL        string               `mapstructure:"base_url"        rule:"required,url"`
	UploadPath     string               `mapstructure:"upload_path"     rule:"required,startswith=/"`
	AnalyzePath    string               `mapstructure:"analyze_path"    rule:"required,startswith=/"`
	FileField      string               `mapstructure:"file_field"      rule:"required"`
	Timeout        time.Duration        `mapstructure:"timeout"         rule:"min=0"`
	MaxBodyBytes   int64                `mapstructure:"max_body_bytes"  rule:"min=1024"`
	MaxIdleConns   int                  `mapstructure:"max_idle_conns"  rule:"min=0"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// UploadURL 返回上游上传端点的完整地址.
func (c *UpstreamConfig) UploadURL() string {
	return joinURL(c.BaseURL, c.UploadPath)
}

// AnalyzeURL 返回上游文本分析端点的完整地址.
func (c *UpstreamConfig) AnalyzeURL() string {
	return joinURL(c.BaseURL, c.AnalyzePath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// setDefaults 设置上游配置的默认值.
func (c *UpstreamConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("upstream.base_url", DefaultUpstreamBaseURL)
	v.SetDefault("upstream.upload_path", DefaultUpstreamUploadPath)
	v.SetDefault("upstream.analyze_path", DefaultUpstreamAnalyzePath)
	v.SetDefault("upstream.file_field", DefaultUpstreamFileField)
	v.SetDefault("upstream.timeout", DefaultUpstreamTimeout)
	v.SetDefault("upstream.max_body_bytes", DefaultUpstreamMaxBodyBytes)
	v.SetDefault("upstream.max_idle_conns", DefaultUpstreamMaxIdleConns)

	c.CircuitBreaker.setDefaults(v)
}
