//go:build !no_redis

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// scanBatch 每次 SCAN 的 COUNT 提示.
const scanBatch = 256

// RedisKV 基于 Redis 的 KV 实现，TTL 使用 Redis 原生过期.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV 创建 Redis KV 实例.
func NewRedisKV(ctx context.Context, cfg *configs.CacheConfig) (KVStore, error) {
	if cfg == nil {
		return nil, errors.New("redis kv: nil config")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Redis.Addr, err)
	}

	return NewRedisKVFromClient(rdb), nil
}

// NewRedisKVFromClient 使用已有的 Redis 客户端.
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

// Get 获取键的值.
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	return result, nil
}

// Set 设置键的值.
func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := r.client.Set(ctx, key, value, ttl).Err()
	if err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete 删除键.
func (r *RedisKV) Delete(ctx context.Context, key string) error {
	err := r.client.Del(ctx, key).Err()
	if err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}

	return nil
}

// Exists 检查键是否存在.
func (r *RedisKV) Exists(ctx context.Context, key string) (bool, error) {
	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}

	return count > 0, nil
}

// Keys 使用 SCAN 遍历匹配模式的键，避免 KEYS 阻塞服务端.
func (r *RedisKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}

	var keys []string

	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan keys %q: %w", pattern, err)
	}

	return keys, nil
}

// Close 关闭 Redis 连接.
func (r *RedisKV) Close() error {
	return r.client.Close()
}

func init() {
	RegisterKVFactory(configs.KVTypeRedis, NewRedisKV)
}
