// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集HTTP、上游调用、上传与临时文件相关指标.
//
// Example:
//
//	import "github.com/yeisme/hsrelay/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.RequestCounter.WithLabelValues("POST", "/api/uploadFile").Inc()
//	metrics.RelayOutcomes.WithLabelValues("upload", "ok").Inc()
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/hsrelay/pkg/configs"
)

const namespace = "hsrelay"

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RelayOutcomes 中继结果计数，outcome 为 ok 或错误类别.
	RelayOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_outcomes_total",
			Help:      "Relay results by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// UpstreamDuration 上游调用耗时.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Classification service call duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"endpoint", "status"},
	)

	// UploadBytes 已接受上传文件的大小分布.
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of accepted uploads in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// SpoolFilesActive 当前存在的临时文件数.
	SpoolFilesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "spool_files_active",
			Help:      "Number of transient upload files not yet removed",
		},
	)

	// SpoolSwept 清理任务删除的临时文件数.
	SpoolSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spool_swept_total",
			Help:      "Orphaned transient files removed by the sweeper",
		},
	)

	// CacheLookups 文本分析缓存命中情况.
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Analysis cache lookups by result",
		},
		[]string{"result"},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
	regOnce  sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	var err error

	regOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		// 注册标准收集器
		if config.RuntimeMetrics {
			if err = reg.Register(collectors.NewGoCollector()); err != nil {
				return
			}

			if err = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
				return
			}
		}

		for _, c := range []prometheus.Collector{
			RequestCounter, RequestDuration, RelayOutcomes, UpstreamDuration,
			UploadBytes, SpoolFilesActive, SpoolSwept, CacheLookups,
		} {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})

	return err
}

// RegisterRoutes 在 engine 上挂载 /metrics 与可选的 pprof 端点.
func RegisterRoutes(config configs.MetricsConfig, engine *gin.Engine) {
	if !config.Enabled {
		return
	}

	engine.GET(config.Path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		engine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
