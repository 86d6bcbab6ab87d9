// Package jobs 负责注册与实现后台定时任务（基于 scheduler）。
package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/yeisme/hsrelay/pkg/configs"
	"github.com/yeisme/hsrelay/pkg/internal/storage"
	"github.com/yeisme/hsrelay/pkg/internal/storage/spool"
	"github.com/yeisme/hsrelay/pkg/log"
	"github.com/yeisme/hsrelay/pkg/scheduler"
)

// RegisterCronJobs 配置定时任务：
//   - 按 upload.sweep_cron 清理超过 upload.sweep_max_age 的临时文件
func RegisterCronJobs(sched *scheduler.Scheduler, mgr *storage.Manager) error {
	if sched == nil {
		return errors.New("scheduler is nil")
	}

	if mgr == nil {
		return errors.New("storage manager is nil")
	}

	cfg := mgr.Config.Upload
	if !cfg.SweepEnabled {
		log.Logger().Info().Msg("spool sweep disabled")
		return nil
	}

	store := mgr.GetSpool()

	return sched.AddCron(JobSpoolSweep, cfg.SweepCron, func(context.Context) error {
		_, err := SweepSpool(store, cfg, time.Now())
		return err
	}, context.Background())
}

// SweepSpool 删除超过 sweep_max_age 的临时文件并返回删除数量.
// 正常请求结束时文件已被删除，这里只处理进程异常退出留下的文件.
func SweepSpool(store *spool.Store, cfg configs.UploadConfig, now time.Time) (int, error) {
	l := log.Logger().With().Str("job", JobSpoolSweep).Logger()

	maxAge := cfg.SweepMaxAge
	if maxAge <= 0 {
		maxAge = configs.DefaultUploadSweepMaxAge
	}

	n, err := store.Sweep(maxAge, now)
	if err != nil {
		l.Error().Err(err).Int("removed", n).Msg("spool sweep finished with errors")
		return n, err
	}

	if n > 0 {
		l.Info().Int("removed", n).Dur("max_age", maxAge).Str("dir", store.Dir()).Msg("swept stale spool files")
	}

	return n, nil
}
