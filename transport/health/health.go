// Package health 提供网关的存活与就绪检查.
//
// 存活检查只反映进程状态；就绪检查并发探测缓存、限流台账与用户数据库等依赖，
// 任一依赖 DOWN 时整体为 DOWN.
package health

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// Status 健康状态.
type Status string

const (
	StatusUp   Status = "UP"
	StatusDown Status = "DOWN"
)

// CheckResult 单个依赖的检查结果.
type CheckResult struct {
	Status   Status        `json:"status"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"-"`
}

// MarshalJSON 将耗时输出为可读字符串.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	type alias CheckResult
	return json.Marshal(&struct {
		alias
		Duration string `json:"duration"`
	}{alias(r), r.Duration.String()})
}

// Response 检查响应.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker 依赖检查器.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// Option 配置选项.
type Option func(*Health)

// Health 健康检查管理器.
type Health struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	now      func() time.Time
}

// New 创建健康检查管理器，默认检查超时 5 秒.
func New(opts ...Option) *Health {
	h := &Health{timeout: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// WithTimeout 设置单次就绪检查的超时.
func WithTimeout(d time.Duration) Option {
	return func(h *Health) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// WithChecker 添加就绪检查器.
func WithChecker(checkers ...Checker) Option {
	return func(h *Health) {
		h.checkers = append(h.checkers, checkers...)
	}
}

// Add 动态添加就绪检查器.
func (h *Health) Add(checkers ...Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checkers...)
}

// Checkers 返回按名称排序的检查器名称.
func (h *Health) Checkers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checkers))
	for _, c := range h.checkers {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// Liveness 存活检查，进程能响应即为 UP.
func (h *Health) Liveness(context.Context) Response {
	return Response{Status: StatusUp, Timestamp: h.now()}
}

// Readiness 并发执行全部就绪检查.
func (h *Health) Readiness(ctx context.Context) Response {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	resp := Response{Status: StatusUp, Timestamp: h.now()}
	if len(checkers) == 0 {
		return resp
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	results := make(map[string]CheckResult, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			start := time.Now()
			res := c.Check(ctx)
			res.Duration = time.Since(start)

			mu.Lock()
			results[c.Name()] = res
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	for _, res := range results {
		if res.Status != StatusUp {
			resp.Status = StatusDown
			break
		}
	}
	resp.Checks = results
	return resp
}
