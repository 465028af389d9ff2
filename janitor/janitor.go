// Package janitor 在后台定期清理授权决策缓存与限流台账.
//
// 请求路径上的清理是惰性的，janitor 负责回收长时间无人访问的条目:
//
//	j, _ := janitor.New(janitor.WithLogger(log), janitor.WithMetrics(collector))
//	_ = j.Add(janitor.DecisionSweep(manager, janitor.EveryMinute))
//	_ = j.Add(janitor.LedgerSweep(ledger, 15*time.Minute, janitor.EveryMinute))
//	j.Start()
//	defer j.Shutdown(ctx)
package janitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
)

// Janitor 基于 Cron 的后台清理器.
type Janitor struct {
	cron    *cron.Cron
	opts    *options
	log     logger.Logger
	mu      sync.RWMutex
	jobs    map[string]*Job
	running bool
	closed  bool
	wg      sync.WaitGroup
}

// New 创建清理器，Cron 表达式支持秒级字段.
func New(opts ...Option) (*Janitor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	return &Janitor{
		cron: cron.New(cron.WithSeconds(), cron.WithLocation(o.location)),
		opts: o,
		log:  o.logger.With(logger.String("component", "janitor")),
		jobs: make(map[string]*Job),
	}, nil
}

// Add 添加任务，调度表达式在此校验.
func (j *Janitor) Add(job *Job) error {
	if err := job.Validate(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if _, exists := j.jobs[job.Name]; exists {
		return ErrJobExists
	}
	if job.Timeout <= 0 {
		job.Timeout = j.opts.defaultTimeout
	}

	if _, err := j.cron.AddFunc(job.Schedule, func() {
		_ = j.execute(context.Background(), job)
	}); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrScheduleInvalid, job.Schedule, err)
	}

	j.jobs[job.Name] = job
	j.log.With(
		logger.String("job", job.Name),
		logger.String("schedule", job.Schedule),
	).Debug("[Janitor] 任务已添加")
	return nil
}

// Jobs 返回按名称排序的任务列表.
func (j *Janitor) Jobs() []*Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	jobs := make([]*Job, 0, len(j.jobs))
	for _, job := range j.jobs {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].Name < jobs[b].Name })
	return jobs
}

// Start 启动调度，重复调用无副作用.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.running || j.closed {
		return
	}
	j.cron.Start()
	j.running = true
	j.log.With(logger.Int("jobs", len(j.jobs))).Info("[Janitor] 清理器已启动")
}

// Running 是否运行中.
func (j *Janitor) Running() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.running
}

// Trigger 立即同步执行任务，不影响正常调度.
func (j *Janitor) Trigger(ctx context.Context, name string) error {
	j.mu.RLock()
	job, exists := j.jobs[name]
	closed := j.closed
	j.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if !exists {
		return ErrJobNotFound
	}
	return j.execute(ctx, job)
}

// Shutdown 停止调度并等待执行中的任务结束.
func (j *Janitor) Shutdown(ctx context.Context) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	j.running = false
	j.mu.Unlock()

	cronCtx := j.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		j.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		j.log.Info("[Janitor] 清理器已关闭")
		return nil
	case <-ctx.Done():
		j.log.Warn("[Janitor] 等待任务结束超时")
		return ctx.Err()
	}
}

// execute 执行一次任务，任务 panic 视为失败.
func (j *Janitor) execute(ctx context.Context, job *Job) (err error) {
	if !job.running.CompareAndSwap(false, true) {
		job.skip()
		j.log.With(logger.String("job", job.Name)).Debug("[Janitor] 上一次执行尚未结束，跳过")
		return ErrJobSkipped
	}
	defer job.running.Store(false)

	j.wg.Add(1)
	defer j.wg.Done()

	ctx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	start := time.Now()
	removed := 0
	defer func() {
		if p := recover(); p != nil {
			err = &recovery.PanicError{Value: p}
		}
		elapsed := time.Since(start)
		job.record(start, removed, err)
		if j.opts.metrics != nil {
			j.opts.metrics.JanitorRun(job.Name, err)
		}

		log := j.log.WithContext(ctx).With(
			logger.String("job", job.Name),
			logger.Duration("elapsed", elapsed),
		)
		if err != nil {
			log.With(logger.Err(err)).Error("[Janitor] 任务执行失败")
			return
		}
		log.With(logger.Int("removed", removed)).Debug("[Janitor] 任务执行完成")
	}()

	removed, err = job.Run(ctx)
	return err
}
