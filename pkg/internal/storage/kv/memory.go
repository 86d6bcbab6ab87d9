package kv

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"

	"github.com/yeisme/hsrelay/pkg/configs"
)

// entry 缓存条目，expiresAt 为零值表示不过期.
type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryKV 基于 groupcache/lru 的进程内 KV 实现，容量满时淘汰最久未使用的键.
type MemoryKV struct {
	mu    sync.Mutex
	cache *lru.Cache
	keys  map[string]struct{}
	now   func() time.Time
}

// NewMemoryKV 创建内存 KV 实例，MaxEntries 为 0 时不限容量.
func NewMemoryKV(_ context.Context, cfg *configs.CacheConfig) (KVStore, error) {
	maxEntries := 0
	if cfg != nil {
		maxEntries = cfg.MaxEntries
	}

	return newMemoryKV(maxEntries, time.Now), nil
}

func newMemoryKV(maxEntries int, now func() time.Time) *MemoryKV {
	m := &MemoryKV{
		cache: lru.New(maxEntries),
		keys:  make(map[string]struct{}),
		now:   now,
	}

	m.cache.OnEvicted = func(key lru.Key, _ any) {
		if k, ok := key.(string); ok {
			delete(m.keys, k)
		}
	}

	return m
}

// Get 获取键的值，过期的键在读取时删除.
func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.getLocked(key)
}

func (m *MemoryKV) getLocked(key string) ([]byte, error) {
	v, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}

	e, _ := v.(entry)

	if !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt) {
		m.cache.Remove(key)
		return nil, ErrNotFound
	}

	// 返回副本
	out := make([]byte, len(e.value))
	copy(out, e.value)

	return out, nil
}

// Set 设置键的值.
func (m *MemoryKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = m.now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Add(key, e)
	m.keys[key] = struct{}{}

	return nil
}

// Delete 删除键.
func (m *MemoryKV) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Remove(key)

	return nil
}

// Exists 检查键是否存在且未过期.
func (m *MemoryKV) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.getLocked(key); err != nil {
		if err == ErrNotFound {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

// Keys 获取匹配 glob 模式的键，空模式匹配全部.
func (m *MemoryKV) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.keys))

	for k := range m.keys {
		if pattern == "" {
			keys = append(keys, k)
			continue
		}

		ok, err := path.Match(pattern, k)
		if err != nil {
			return nil, err
		}

		if ok {
			keys = append(keys, k)
		}
	}

	return keys, nil
}

// Len 返回当前条目数（含未清理的过期条目）.
func (m *MemoryKV) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cache.Len()
}

// Close 清空缓存.
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache.Clear()

	return nil
}

func init() {
	RegisterKVFactory(configs.KVTypeMemory, NewMemoryKV)
}
