// Package kv 是分析结果缓存的键值后端.
//
// memory 后端为进程内 LRU（groupcache/lru），redis 后端可在多实例间共享结果.
package kv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// ErrNotFound 键不存在或已过期.
var ErrNotFound = errors.New("kv: key not found")

// Client 持有按配置选出的后端.
type Client struct {
	KVStore
	kind configs.KVType
}

// Type 返回后端类型.
func (c *Client) Type() configs.KVType {
	return c.kind
}

// KVStore 缓存后端需要实现的最小接口.
// Get 在键不存在或已过期时返回 ErrNotFound；ttl 为 0 表示不过期.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 返回匹配 glob 模式的键，供 cache clear 使用.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// KVFactory 按配置创建后端.
type KVFactory func(ctx context.Context, cfg *configs.CacheConfig) (KVStore, error)

var kvFactories = make(map[configs.KVType]KVFactory)

// RegisterKVFactory 在 init 中注册后端.
func RegisterKVFactory(kvType configs.KVType, factory KVFactory) {
	kvFactories[kvType] = factory
}

// GetRegisteredKVTypes 返回已注册的后端类型，按名称排序.
func GetRegisteredKVTypes() []configs.KVType {
	types := make([]configs.KVType, 0, len(kvFactories))
	for kvType := range kvFactories {
		types = append(types, kvType)
	}

	slices.Sort(types)

	return types
}

// NewKVStore 按 cfg.Type 创建后端.
func NewKVStore(ctx context.Context, cfg *configs.CacheConfig) (KVStore, error) {
	factory, ok := kvFactories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported cache type %q", cfg.Type)
	}

	return factory(ctx, cfg)
}

// NewKVClient 创建缓存客户端.
func NewKVClient(ctx context.Context, cfg configs.CacheConfig) (*Client, error) {
	store, err := NewKVStore(ctx, &cfg)
	if err != nil {
		return nil, fmt.Errorf("init %s cache: %w", cfg.Type, err)
	}

	return &Client{KVStore: store, kind: cfg.Type}, nil
}
