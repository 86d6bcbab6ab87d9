// Package cache 提供基于键值存储的泛型缓存实现.
//
// 值使用 sonic 序列化，键由命名空间与输入的 xxhash 摘要组成，
// 同一键的并发回源通过 singleflight 合并为一次.
//
// 基本用法:
//
//	c := cache.NewCache(kvStore, "hsrelay:")
//	key := c.Key("analyse", text)
//
//	// 使用GetOrSet模式
//	result, err := cache.GetOrSet(ctx, c, key, func() (string, error) {
//	    return callUpstream(ctx, text)
//	}, 10*time.Minute)
//
// 错误处理:
//   - 缓存未命中不视为错误，GetOrSet 会回源
//   - 读写缓存失败只记录日志，不影响回源结果
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/hsrelay/pkg/internal/storage/kv"
	"github.com/yeisme/hsrelay/pkg/metrics"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	kvStore kv.KVStore
	prefix  string
	group   singleflight.Group
}

// NewCache 创建一个新的缓存实例，prefix 会加在所有键之前.
func NewCache(kvStore kv.KVStore, prefix string) *Cache {
	return &Cache{
		kvStore: kvStore,
		prefix:  prefix,
	}
}

// Key 返回 prefix + namespace + ":" + xxhash64(input) 的十六进制形式.
func (c *Cache) Key(namespace, input string) string {
	return c.prefix + namespace + ":" + Digest(input)
}

// Digest 返回输入的 xxhash64 十六进制摘要.
func Digest(input string) string {
	return strconv.FormatUint(xxhash.Sum64String(input), 16)
}

// DigestBytes 与 Digest 相同，输入为字节切片.
func DigestBytes(input []byte) string {
	return strconv.FormatUint(xxhash.Sum64(input), 16)
}

// Get 泛型获取缓存值，未命中时返回 kv.ErrNotFound.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var zero T

	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		return zero, err
	}

	var value T
	if err := sonic.Unmarshal(data, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}

	return value, nil
}

// Set 泛型设置缓存值.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	return c.kvStore.Set(ctx, key, data, ttl)
}

// Delete 删除缓存键.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.kvStore.Delete(ctx, key)
}

// Exists 检查缓存键是否存在.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	return c.kvStore.Exists(ctx, key)
}

// GetOrSet 获取缓存值，如果不存在则调用 getter 并写回.
// 同一 key 的并发调用共享一次 getter；getter 出错时不写缓存.
func GetOrSet[T any](ctx context.Context, c *Cache, key string, getter func() (T, error), ttl time.Duration) (T, error) {
	var zero T

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := Get[T](ctx, c, key)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return value, nil
		}

		if errors.Is(err, kv.ErrNotFound) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}

		// 获取新值
		value, err = getter()
		if err != nil {
			return zero, err
		}

		// 缓存失败，但仍返回值
		if setErr := Set(ctx, c, key, value, ttl); setErr != nil {
			log.Warn().Err(setErr).Str("key", key).Msg("cache write failed")
		}

		return value, nil
	})
	if err != nil {
		return zero, err
	}

	value, _ := v.(T)

	return value, nil
}

// Clear 删除本缓存前缀下的全部键.
func (c *Cache) Clear(ctx context.Context) error {
	keys, err := c.kvStore.Keys(ctx, c.prefix+"*")
	if err != nil {
		return err
	}

	for _, key := range keys {
		if delErr := c.kvStore.Delete(ctx, key); delErr != nil {
			return delErr
		}
	}

	return nil
}
