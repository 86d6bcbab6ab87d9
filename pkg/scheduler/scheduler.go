// Package scheduler 提供定时任务调度功能，使用 gocron/v2 库.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yeisme/hsrelay/pkg/log"
)

// JobStatus 表示任务的状态类型.
type JobStatus string

const (
	StatusScheduled JobStatus = "scheduled" // 任务已调度
	StatusRunning   JobStatus = "running"   // 任务正在运行
	StatusError     JobStatus = "error"     // 上次执行出错
)

// JobInfo 表示定时任务的信息，供日志与 CLI 展示.
type JobInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	CronExpr    string    `json:"cron_expr"`
	NextRun     time.Time `json:"next_run"`
	LastRun     time.Time `json:"last_run"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	Runs        int       `json:"runs"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
}

// Scheduler 包装 gocron.Scheduler，按名称管理任务.
type Scheduler struct {
	scheduler gocron.Scheduler
	jobs      map[string]gocron.Job
	jobInfos  map[string]*JobInfo
	mu        sync.RWMutex
	logger    *zerolog.Logger
}

// NewScheduler 创建一个新的 Scheduler 实例.
func NewScheduler(opts ...gocron.SchedulerOption) (*Scheduler, error) {
	s, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		scheduler: s,
		jobs:      make(map[string]gocron.Job),
		jobInfos:  make(map[string]*JobInfo),
		logger:    log.Logger(),
	}, nil
}

// AddCron 添加一个基于 cron 表达式的定时任务.
// job 返回的错误与 panic 都会记录到 JobInfo，同一任务不会重叠执行.
func (s *Scheduler) AddCron(name string, cronExpr string, job func(ctx context.Context) error, ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job with name %s already exists", name)
	}

	wrapped := func(ctx context.Context) (err error) {
		s.setStatus(name, StatusRunning, nil)

		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in job: %v", r)
			}

			s.finish(name, err)
		}()

		return job(ctx)
	}

	j, err := s.scheduler.NewJob(
		gocron.CronJob(cronExpr, false),
		gocron.NewTask(wrapped, ctx),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("add job %s: %w", name, err)
	}

	s.jobs[name] = j
	s.jobInfos[name] = &JobInfo{
		ID:       j.ID().String(),
		Name:     name,
		CronExpr: cronExpr,
		Status:   StatusScheduled,
	}

	s.logger.Info().Str("job", name).Str("cron", cronExpr).Msg("Added cron job")

	return nil
}

// RunNow 立即执行一次指定任务，不影响原有调度.
func (s *Scheduler) RunNow(name string) error {
	s.mu.RLock()
	j, exists := s.jobs[name]
	s.mu.RUnlock()

	if !exists {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	return j.RunNow()
}

// RemoveJobByName 通过名称移除任务.
func (s *Scheduler) RemoveJobByName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[name]
	if !exists {
		return fmt.Errorf("job with name %s does not exist", name)
	}

	if err := s.scheduler.RemoveJob(job.ID()); err != nil {
		return err
	}

	delete(s.jobs, name)
	delete(s.jobInfos, name)

	s.logger.Info().Str("job", name).Msg("Removed job")

	return nil
}

// Start 启动调度器.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.GetJobInfos())).Msg("Starting scheduler")
	s.scheduler.Start()
}

// Shutdown 停止调度器并等待运行中的任务结束.
func (s *Scheduler) Shutdown() error {
	s.logger.Info().Msg("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// GetJobInfos 返回所有任务的信息，按名称排序.
func (s *Scheduler) GetJobInfos() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]JobInfo, 0, len(s.jobInfos))

	for name, info := range s.jobInfos {
		cp := *info
		if next, err := s.jobs[name].NextRun(); err == nil {
			cp.NextRun = next
		}

		infos = append(infos, cp)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	return infos
}

// GetJobInfoByName 通过名称获取任务信息.
func (s *Scheduler) GetJobInfoByName(name string) (JobInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, exists := s.jobInfos[name]
	if !exists {
		return JobInfo{}, fmt.Errorf("job with name %s does not exist", name)
	}

	return *info, nil
}

// JobID 返回任务的 gocron ID.
func (s *Scheduler) JobID(name string) (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	j, ok := s.jobs[name]
	if !ok {
		return uuid.Nil, false
	}

	return j.ID(), true
}

func (s *Scheduler) setStatus(name string, status JobStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, exists := s.jobInfos[name]; exists {
		info.Status = status

		info.Error = ""
		if err != nil {
			info.Error = err.Error()
		}
	}
}

func (s *Scheduler) finish(name string, err error) {
	now := time.Now()

	s.mu.Lock()

	if info, exists := s.jobInfos[name]; exists {
		info.LastRun = now
		info.Runs++

		if err == nil {
			info.LastSuccess = now
			info.Status = StatusScheduled
			info.Error = ""
		} else {
			info.Status = StatusError
			info.Error = err.Error()
		}
	}

	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Msg("Job failed")
	}
}
