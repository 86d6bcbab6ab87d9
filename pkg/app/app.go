// Package app 提供应用程序的初始化和配置功能.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/hsrelay/pkg/api"
	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/jobs"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/metrics"
	"github.com/yeisme/hsrelay/pkg/middleware"
	"github.com/yeisme/hsrelay/pkg/scheduler"
	"github.com/yeisme/hsrelay/pkg/tracing"
)

type App struct {
	Engine    *gin.Engine
	Manager   *storage.Manager
	Scheduler *scheduler.Scheduler
	config    *configs.AppConfig
	server    *http.Server
}

// NewApp 使用全局配置创建 App，调用前需完成 configs.InitConfig.
func NewApp(ctx context.Context) (*App, error) {
	config := configs.GetConfig()

	// 初始化追踪
	if err := tracing.InitTracer(ctx, config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	sched, err := scheduler.NewScheduler()
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if err := jobs.RegisterCronJobs(sched, manager); err != nil {
		_ = manager.Close()
		_ = sched.Shutdown()

		return nil, fmt.Errorf("register jobs: %w", err)
	}

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine := NewEngine(config, manager)

	return &App{
		Engine:    engine,
		Manager:   manager,
		Scheduler: sched,
		config:    config,
		server: &http.Server{
			Addr:              net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port)),
			Handler:           engine,
			ReadTimeout:       config.Server.GetReadTimeout(),
			ReadHeaderTimeout: config.Server.GetReadTimeout(),
			WriteTimeout:      config.Server.GetWriteTimeout(),
		},
	}, nil
}

// NewEngine 创建挂载全部中间件与路由的 gin 引擎.
func NewEngine(config *configs.AppConfig, manager *storage.Manager) *gin.Engine {
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.CORSMiddleware(config.Server),
	)

	if config.Server.Gzip {
		engine.Use(middleware.GzipMiddleware(config.Metrics.Path))
	}

	if config.Tracing.Enabled {
		engine.Use(middleware.TracingMiddleware())
	}

	if config.Metrics.Enabled {
		engine.Use(middleware.PrometheusMiddleware())
	}

	engine.Use(
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.StorageMiddleware(manager),
	)

	metrics.RegisterRoutes(config.Metrics, engine)
	api.RegisterGroup(engine)

	return engine
}

// Run 启动 HTTP 服务与定时任务，ctx 结束后优雅关闭.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.Scheduler.Start()

	g.Go(func() error {
		log.Logger().Info().Str("addr", a.server.Addr).Msg("HTTP server listening")

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})

	return g.Wait()
}

// Shutdown 按 server.shutdown_timeout 依次关闭 HTTP 服务、定时任务、外部资源与追踪.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Server.GetShutdownTimeout())
	defer cancel()

	l := log.Logger()
	l.Info().Msg("shutting down")

	errs := []error{a.server.Shutdown(ctx)}

	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Shutdown())
	}

	errs = append(errs, a.Manager.Close(), tracing.ShutdownTracer(ctx))

	err := errors.Join(errs...)
	if err != nil {
		l.Error().Err(err).Msg("shutdown finished with errors")
	}

	return err
}
