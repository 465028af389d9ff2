package janitor

import (
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// Metrics 任务执行指标.
type Metrics interface {
	JanitorRun(job string, err error)
}

// Option 配置选项.
type Option func(*options)

type options struct {
	logger         logger.Logger
	metrics        Metrics
	defaultTimeout time.Duration
	location       *time.Location
}

func defaultOptions() *options {
	return &options{
		defaultTimeout: 30 * time.Second,
		location:       time.Local,
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		o.logger = log
	}
}

// WithMetrics 设置指标收集器.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDefaultTimeout 设置任务默认超时，默认 30 秒.
func WithDefaultTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.defaultTimeout = d
		}
	}
}

// WithLocation 设置调度时区，默认 time.Local.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}
