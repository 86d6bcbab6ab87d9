package configs

import "github.com/spf13/viper"

const (
	DefaultRateLimitEnabled = false
	DefaultRateLimitRPS     = 50.0
	DefaultRateLimitBurst   = 100
	DefaultRateLimitKey     = "ip"
)

// RateLimitConfig 入站请求限流配置，超限返回 429.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"gt=0"`
	Burst   int     `mapstructure:"burst" rule:"min=1"`
	// Key 限流维度：global、ip 或 header:Header-Name
	Key string `mapstructure:"key" rule:"required,ratekey"`
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.rps", DefaultRateLimitRPS)
	v.SetDefault("rate_limit.burst", DefaultRateLimitBurst)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
}
