// Package configs 管理应用程序配置，包括上游分类服务、上传限制、缓存、事件和可观测性等配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Server.Port)
//
// Example accessing upstream config:
//
//	config := configs.GetConfig()
//	fmt.Println("Upload URL:", config.Upstream.UploadURL())
//	fmt.Println("Timeout:", config.Upstream.Timeout)
//
// Example accessing upload config:
//
//	config := configs.GetConfig()
//	fmt.Println("Max size:", config.Upload.MaxFileSize)
//	fmt.Println("Allowed:", config.Upload.AllowedTypes)
//
// 环境变量使用 HSRELAY_ 前缀，层级以下划线分隔，例如 HSRELAY_UPSTREAM_BASE_URL.
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/hsrelay/pkg/rule"
)

// AppVersion 应用版本.
const AppVersion = "0.3.0"

// EnvPrefix 环境变量前缀.
const EnvPrefix = "HSRELAY"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server    ServerConfig    `mapstructure:"server"`     // ServerConfig 服务器监听、超时等配置
		Log       LogConfig       `mapstructure:"log"`        // LogConfig 日志相关配置
		Upstream  UpstreamConfig  `mapstructure:"upstream"`   // UpstreamConfig 外部分类服务配置
		Upload    UploadConfig    `mapstructure:"upload"`     // UploadConfig 上传校验与临时存储配置
		Cache     CacheConfig     `mapstructure:"cache"`      // CacheConfig 文本分析结果缓存
		Events    EventsConfig    `mapstructure:"events"`     // EventsConfig 分类事件发布
		Metrics   MetricsConfig   `mapstructure:"metrics"`    // MetricsConfig Prometheus 指标
		Tracing   TracingConfig   `mapstructure:"tracing"`    // TracingConfig 分布式追踪
		RateLimit RateLimitConfig `mapstructure:"rate_limit"` // RateLimitConfig 速率限制
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
	// mu 保护热重载期间的 globalConfig.
	mu sync.RWMutex
)

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
// 找不到配置文件时使用默认值与环境变量.
func InitConfig(path string) error {
	v, cfg, err := load(path)
	if err != nil {
		return err
	}

	mu.Lock()
	appViper = v
	globalConfig = *cfg
	mu.Unlock()

	reloadConfigs(v, cfg.Server.ReloadConfig)

	return nil
}

// Load 读取并校验配置，但不修改全局实例，便于测试和子命令使用.
func Load(path string) (*AppConfig, error) {
	_, cfg, err := load(path)
	return cfg, err
}

func load(path string) (*viper.Viper, *AppConfig, error) {
	v := viper.New()
	// 设置默认值
	setAllDefaults(v)

	if path != "" {
		// 检查path是否是文件
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			v.SetConfigFile(path)
		} else {
			v.SetConfigName("config")
			v.AddConfigPath(path)
			v.AddConfigPath(filepath.Join(path, "configs"))

			for _, ext := range []string{"yaml", "yml", "json", "toml", "env", "dotenv"} {
				cfg := filepath.Join(path, "config."+ext)
				if _, err := os.Stat(cfg); err == nil {
					v.SetConfigFile(cfg)

					break
				}
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	return v, &cfg, nil
}

// ValidationError 配置校验失败，Fields 为字段到原因的映射.
type ValidationError struct {
	Fields rule.ValidationErrors
	err    error
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Fields[k])
	}

	return "invalid config: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return e.err }

// Validate 使用 rule 标签校验配置.
func (c *AppConfig) Validate() error {
	if err := rule.ValidateStruct(c); err != nil {
		if fields := rule.Errors(err); len(fields) > 0 {
			return &ValidationError{Fields: fields, err: err}
		}

		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig    ServerConfig
		logConfig       LogConfig
		upstreamConfig  UpstreamConfig
		uploadConfig    UploadConfig
		cacheConfig     CacheConfig
		eventsConfig    EventsConfig
		metricsConfig   MetricsConfig
		tracingConfig   TracingConfig
		rateLimitConfig RateLimitConfig
	)

	serverConfig.setDefaults(v)
	logConfig.setDefaults(v)
	upstreamConfig.setDefaults(v)
	uploadConfig.setDefaults(v)
	cacheConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	rateLimitConfig.setDefaults(v)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)

		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
			return
		}

		if err := cfg.Validate(); err != nil {
			fmt.Printf("Rejected reloaded config: %v\n", err)
			return
		}

		mu.Lock()
		globalConfig = cfg
		mu.Unlock()
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置的快照.
func GetConfig() *AppConfig {
	mu.RLock()
	defer mu.RUnlock()

	cfg := globalConfig

	return &cfg
}

// GetViper 返回全局 Viper 实例.
func GetViper() *viper.Viper {
	mu.RLock()
	defer mu.RUnlock()

	return appViper
}
