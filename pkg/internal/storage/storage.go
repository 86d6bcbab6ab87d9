// Package storage 聚合服务运行所需的外部资源：临时文件、缓存、事件总线与分类服务客户端.
//
// Example:
//
// 初始化
//
//	mgr, err := storage.Init(ctx, configs.GetConfig())
//	if err != nil {
//	    // 处理错误
//	}
//	defer mgr.Close()
//
// 获取资源
//
//	store := mgr.GetSpool()
//	client := mgr.GetClassifier()
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/hsrelay/pkg/cache"
	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/classifier"
	kvc "github.com/yeisme/hsrelay/pkg/internal/storage/kv"
	mqc "github.com/yeisme/hsrelay/pkg/internal/storage/mq"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
	nlog "github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/metrics"
)

// Manager 聚合所有外部资源，可并发使用.
type Manager struct {
	Config     *configs.AppConfig
	Spool      *spool.Store
	KV         *kvc.Client  // 缓存关闭时为 nil
	Cache      *cache.Cache // 与 KV 同时存在
	MQ         *mqc.Client  // 事件关闭时为 nil
	Classifier *classifier.Client
}

// Init 按配置初始化全部资源，任一必需资源失败即返回错误.
// 缓存后端不可用时降级为不缓存，不影响启动.
func Init(ctx context.Context, cfg *configs.AppConfig) (*Manager, error) {
	l := nlog.Logger()

	store, err := spool.NewFromConfig(cfg.Upload)
	if err != nil {
		return nil, fmt.Errorf("init spool: %w", err)
	}

	m := &Manager{
		Config:     cfg,
		Spool:      store,
		Classifier: classifier.New(cfg.Upstream),
	}

	if cfg.Cache.Enabled {
		if kv, e := kvc.NewKVClient(ctx, cfg.Cache); e != nil {
			l.Warn().Err(e).Str("type", string(cfg.Cache.Type)).Msg("cache unavailable, continuing without cache")
		} else {
			m.KV = kv
			m.Cache = cache.NewCache(kv, cfg.Cache.KeyPrefix)
		}
	}

	if cfg.Events.Enabled {
		var opts []mqc.Option
		if cfg.Metrics.Enabled {
			opts = append(opts, mqc.WithMetrics(metrics.GetRegistry()))
		}

		mq, e := mqc.New(ctx, cfg.Events, opts...)
		if e != nil {
			_ = m.Close()
			return nil, fmt.Errorf("init events: %w", e)
		}

		m.MQ = mq
	}

	ev := l.Info().Str("spool_dir", store.Dir())
	if m.KV != nil {
		ev = ev.Str("cache", string(m.KV.Type()))
	}

	if m.MQ != nil {
		ev = ev.Str("events", string(m.MQ.Type()))
	}

	ev.
		Str("upstream", cfg.Upstream.BaseURL).
		Msg("storage manager initialized")

	return m, nil
}

// GetSpool 获取临时文件存储.
func (m *Manager) GetSpool() *spool.Store {
	return m.Spool
}

// GetCache 获取结果缓存，未启用时为 nil.
func (m *Manager) GetCache() *cache.Cache {
	return m.Cache
}

// GetMQClient 获取 MQ 客户端.
func (m *Manager) GetMQClient() *mqc.Client {
	return m.MQ
}

// GetClassifier 获取分类服务客户端.
func (m *Manager) GetClassifier() *classifier.Client {
	return m.Classifier
}

// Close 释放缓存与事件总线连接.
func (m *Manager) Close() error {
	var errs []error

	if m.KV != nil {
		errs = append(errs, m.KV.Close())
	}

	if m.MQ != nil {
		errs = append(errs, m.MQ.Close())
	}

	return errors.Join(errs...)
}
