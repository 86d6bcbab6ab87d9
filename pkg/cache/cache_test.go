package cache_test

import (
	"context"
	"errors"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yeisme/hsrelay/pkg/cache"
	"github.com/yeisme/hsrelay/pkg/internal/storage/kv"
)

// analysis 测试用的缓存值.
type analysis struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// mockKVStore 模拟KV存储实现.
type mockKVStore struct {
	mu   sync.Mutex
	data map[string][]byte
	fail bool // 读写均返回错误
}

func newMockKVStore() *mockKVStore {
	return &mockKVStore{
		data: make(map[string][]byte),
	}
}

func (m *mockKVStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return nil, errors.New("kv down")
	}

	if value, exists := m.data[key]; exists {
		return value, nil
	}

	return nil, kv.ErrNotFound
}

func (m *mockKVStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail {
		return errors.New("kv down")
	}

	m.data[key] = value

	return nil
}

func (m *mockKVStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)

	return nil
}

func (m *mockKVStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.data[key]

	return exists, nil
}

func (m *mockKVStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

func (m *mockKVStore) Close() error {
	return nil
}

func (m *mockKVStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.data)
}

// TestCache_Key 测试键的生成.
func TestCache_Key(t *testing.T) {
	c := cache.NewCache(newMockKVStore(), "hsrelay:")

	k1 := c.Key("analyse", "I love this product")
	k2 := c.Key("analyse", "I love this product")
	k3 := c.Key("analyse", "I hate this product")

	if k1 != k2 {
		t.Errorf("same input produced different keys: %s vs %s", k1, k2)
	}

	if k1 == k3 {
		t.Error("different inputs produced the same key")
	}

	if !strings.HasPrefix(k1, "hsrelay:analyse:") {
		t.Errorf("unexpected key format: %s", k1)
	}

	if want := "hsrelay:analyse:" + cache.Digest("I love this product"); k1 != want {
		t.Errorf("expected %s, got %s", want, k1)
	}
}

// TestCache_GetSet 测试 Get/Set.
func TestCache_GetSet(t *testing.T) {
	c := cache.NewCache(newMockKVStore(), "")
	ctx := context.Background()

	_, err := cache.Get[analysis](ctx, c, "nonexistent")
	if !errors.Is(err, kv.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	want := analysis{Label: "neutral", Score: 0.51}
	if err := cache.Set(ctx, c, "a:1", want, 0); err != nil {
		t.Fatalf("Failed to set cache: %v", err)
	}

	got, err := cache.Get[analysis](ctx, c, "a:1")
	if err != nil {
		t.Fatalf("Failed to get cache: %v", err)
	}

	if got != want {
		t.Errorf("Retrieved %+v does not match original %+v", got, want)
	}

	exists, err := c.Exists(ctx, "a:1")
	if err != nil || !exists {
		t.Errorf("expected key to exist, got %v %v", exists, err)
	}

	if err := c.Delete(ctx, "a:1"); err != nil {
		t.Fatalf("Failed to delete cache: %v", err)
	}

	if exists, _ := c.Exists(ctx, "a:1"); exists {
		t.Error("Key should not exist after deletion")
	}
}

// TestGetOrSet 测试回源与命中.
func TestGetOrSet(t *testing.T) {
	c := cache.NewCache(newMockKVStore(), "")
	ctx := context.Background()

	callCount := 0
	getter := func() (string, error) {
		callCount++
		return `{"label":"positive"}`, nil
	}

	v1, err := cache.GetOrSet(ctx, c, "k", getter, time.Minute)
	if err != nil {
		t.Fatalf("Failed to get or set: %v", err)
	}

	v2, err := cache.GetOrSet(ctx, c, "k", getter, time.Minute)
	if err != nil {
		t.Fatalf("Failed to get or set: %v", err)
	}

	if callCount != 1 {
		t.Errorf("Expected getter to be called once, got %d", callCount)
	}

	if v1 != v2 {
		t.Errorf("Results don't match: %q vs %q", v1, v2)
	}
}

// TestGetOrSet_GetterError getter 出错时不写缓存.
func TestGetOrSet_GetterError(t *testing.T) {
	store := newMockKVStore()
	c := cache.NewCache(store, "")

	_, err := cache.GetOrSet(context.Background(), c, "k", func() (string, error) {
		return "", errors.New("getter error")
	}, 0)
	if err == nil || err.Error() != "getter error" {
		t.Errorf("Expected 'getter error', got %v", err)
	}

	if store.len() != 0 {
		t.Error("failed getter result must not be cached")
	}
}

// TestGetOrSet_StoreFailure 缓存不可用时仍返回回源结果.
func TestGetOrSet_StoreFailure(t *testing.T) {
	store := newMockKVStore()
	store.fail = true
	c := cache.NewCache(store, "")

	v, err := cache.GetOrSet(context.Background(), c, "k", func() (string, error) {
		return "fresh", nil
	}, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v != "fresh" {
		t.Errorf("expected fresh, got %q", v)
	}
}

// TestGetOrSet_Concurrent 并发相同键只回源一次.
func TestGetOrSet_Concurrent(t *testing.T) {
	c := cache.NewCache(newMockKVStore(), "")
	ctx := context.Background()

	var calls atomic.Int32

	release := make(chan struct{})
	getter := func() (string, error) {
		calls.Add(1)
		<-release

		return "shared", nil
	}

	const n = 8

	var (
		wg      sync.WaitGroup
		started sync.WaitGroup
	)

	results := make([]string, n)

	started.Add(n)

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)

		go func() {
			defer wg.Done()

			started.Done()

			v, err := cache.GetOrSet(ctx, c, "same", getter, 0)
			if err != nil {
				t.Errorf("GetOrSet: %v", err)
			}

			results[i] = v
		}()
	}

	started.Wait()
	// 等待所有调用进入 singleflight
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// 晚到的调用可能在第一次回源结束后命中缓存，但不会再次回源
	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly one upstream call, got %d", got)
	}

	for i, v := range results {
		if v != "shared" {
			t.Errorf("result %d = %q", i, v)
		}
	}
}

// TestCache_Clear 只清理本前缀下的键.
func TestCache_Clear(t *testing.T) {
	store := newMockKVStore()
	c := cache.NewCache(store, "hsrelay:")
	ctx := context.Background()

	for _, text := range []string{"a", "b", "c"} {
		if err := cache.Set(ctx, c, c.Key("analyse", text), text, 0); err != nil {
			t.Fatalf("Failed to set cache: %v", err)
		}
	}

	_ = store.Set(ctx, "foreign", []byte(`"x"`), 0)

	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear cache: %v", err)
	}

	if store.len() != 1 {
		t.Errorf("Expected only the foreign key to remain, got %d keys", store.len())
	}
}
