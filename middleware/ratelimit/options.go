package ratelimit

import (
	"time"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/ratelimit"
)

// Metrics 限流指标.
type Metrics interface {
	RateLimitRejected(code string)
	PanicRecovered(policy string)
}

// Option 配置选项.
type Option func(*options)

type options struct {
	maxRequests            int
	window                 time.Duration
	progressivePenalties   bool
	skipSuccessfulRequests bool
	logger                 logger.Logger
	auditor                *audit.Auditor
	metrics                Metrics
	resolver               *clientip.Resolver
	now                    func() time.Time
}

func defaultOptions() *options {
	return &options{
		maxRequests:          ratelimit.DefaultMaxRequests,
		window:               ratelimit.DefaultWindow,
		progressivePenalties: true,
		now:                  time.Now,
	}
}

// WithMaxRequests 设置窗口内最大请求数，默认 100.
func WithMaxRequests(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRequests = n
		}
	}
}

// WithWindow 设置窗口大小，默认 15 分钟.
func WithWindow(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.window = d
		}
	}
}

// WithProgressivePenalties 设置是否对可疑 IP 限额减半，默认开启.
func WithProgressivePenalties(enabled bool) Option {
	return func(o *options) {
		o.progressivePenalties = enabled
	}
}

// WithSkipSuccessfulRequests 设置是否只统计失败响应（状态码 >= 400）.
func WithSkipSuccessfulRequests(skip bool) Option {
	return func(o *options) {
		o.skipSuccessfulRequests = skip
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithAuditor 设置审计记录器，默认基于日志记录器创建.
func WithAuditor(a *audit.Auditor) Option {
	return func(o *options) {
		o.auditor = a
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithIPResolver 设置调用方 IP 解析器.
func WithIPResolver(r *clientip.Resolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

// WithClock 设置时钟，主要用于测试.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}
