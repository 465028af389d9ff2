package janitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RunFunc 任务函数，返回本次清理的条目数.
type RunFunc func(ctx context.Context) (int, error)

// Job 定时清理任务.
//
// 同一任务不会重叠执行：上一次执行未结束时本次调度被跳过.
type Job struct {
	// Name 任务名称（唯一标识）.
	Name string

	// Schedule 秒级 Cron 表达式，如 "0 * * * * *".
	Schedule string

	// Run 任务函数.
	Run RunFunc

	// Timeout 单次执行超时，0 表示使用默认值.
	Timeout time.Duration

	running atomic.Bool
	mu      sync.RWMutex
	stats   Stats
}

// Stats 任务执行统计.
type Stats struct {
	Runs      int64
	Failures  int64
	Skips     int64
	Removed   int64
	LastRunAt time.Time
	LastError error
}

// Validate 验证任务配置.
func (j *Job) Validate() error {
	if j.Name == "" {
		return ErrJobNameEmpty
	}
	if j.Schedule == "" {
		return ErrScheduleEmpty
	}
	if j.Run == nil {
		return ErrRunNil
	}
	return nil
}

// Stats 返回统计信息副本.
func (j *Job) Stats() Stats {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.stats
}

// Running 任务是否正在执行.
func (j *Job) Running() bool {
	return j.running.Load()
}

func (j *Job) record(at time.Time, removed int, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Runs++
	j.stats.LastRunAt = at
	j.stats.LastError = err
	if err != nil {
		j.stats.Failures++
		return
	}
	j.stats.Removed += int64(removed)
}

func (j *Job) skip() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stats.Skips++
}
