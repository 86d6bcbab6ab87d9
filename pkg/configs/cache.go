package configs

import (
	"time"

	"github.com/spf13/viper"
)

// KVType 键值存储类型.
type KVType string

const (
	KVTypeMemory KVType = "memory"
	KVTypeRedis  KVType = "redis"

	DefaultCacheEnabled    = true
	DefaultCacheTTL        = 10 * time.Minute
	DefaultCacheMaxEntries = 4096
	DefaultCacheKeyPrefix  = "hsrelay:"
)

// CacheConfig 文本分析结果缓存配置.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Type       KVType        `mapstructure:"type"        rule:"oneof=memory redis"`
	TTL        time.Duration `mapstructure:"ttl"         rule:"min=0"`
	MaxEntries int           `mapstructure:"max_entries" rule:"min=0"` // 内存实现的 LRU 容量，0 表示不限
	KeyPrefix  string        `mapstructure:"key_prefix"`
	Redis      RedisKVConfig `mapstructure:"redis"`
}

// RedisKVConfig Redis KV 配置.
type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"required,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

// setDefaults 设置缓存配置的默认值.
func (c *CacheConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("cache.enabled", DefaultCacheEnabled)
	v.SetDefault("cache.type", KVTypeMemory)
	v.SetDefault("cache.ttl", DefaultCacheTTL)
	v.SetDefault("cache.max_entries", DefaultCacheMaxEntries)
	v.SetDefault("cache.key_prefix", DefaultCacheKeyPrefix)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
}
