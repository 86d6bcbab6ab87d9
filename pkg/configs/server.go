package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort            = 8080      // 监听端口
	DefaultHost            = "0.0.0.0" // 监听地址
	DefaultReloadConfig    = true      // 是否启用配置热重载
	DefaultDebug           = false     // 是否启用调试模式
	DefaultGzip            = true      // 是否压缩响应
	DefaultReadTimeout     = 60        // 读取请求超时，单位秒（包含上传体）
	DefaultWriteTimeout    = 90        // 写响应超时，单位秒，需大于上游超时
	DefaultShutdownTimeout = 15        // 优雅关闭等待时间，单位秒
)

type (
	// ServerConfig 服务器配置.
	ServerConfig struct {
		Port            int      `mapstructure:"port"             rule:"min=1,max=65535"`
		Host            string   `mapstructure:"host"             rule:"ip"`
		ReloadConfig    bool     `mapstructure:"reload_config"`
		Debug           bool     `mapstructure:"debug"`
		Gzip            bool     `mapstructure:"gzip"`
		ReadTimeout     int      `mapstructure:"read_timeout"     rule:"min=1,max=3600"`
		WriteTimeout    int      `mapstructure:"write_timeout"    rule:"min=1,max=3600"`
		ShutdownTimeout int      `mapstructure:"shutdown_timeout" rule:"min=1,max=300"`
		AllowOrigins    []string `mapstructure:"allow_origins"`
	}
)

// GetReadTimeout 返回读取超时.
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout 返回写超时.
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetShutdownTimeout 返回优雅关闭等待时间.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// setDefaults 设置服务器配置的默认值.
func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.reload_config", DefaultReloadConfig)
	v.SetDefault("server.debug", DefaultDebug)
	v.SetDefault("server.gzip", DefaultGzip)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.write_timeout", DefaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.allow_origins", []string{"*"})
}
