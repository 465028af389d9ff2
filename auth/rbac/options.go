package rbac

import (
	"time"

	"github.com/Tsukikage7/gatekeeper/cache"
	"github.com/Tsukikage7/gatekeeper/logger"
)

// DefaultSnapshotTTL 权限快照缓存时间.
const DefaultSnapshotTTL = 10 * time.Minute

// Metrics 决策缓存指标接收方.
type Metrics interface {
	DecisionCacheLookup(hit bool)
}

// Option 配置选项.
type Option func(*options)

type options struct {
	registry    *Registry
	logger      logger.Logger
	now         func() time.Time
	decisionTTL time.Duration
	maxEntries  int
	snapshots   cache.Cache
	snapshotTTL time.Duration
	metrics     Metrics
}

func defaultOptions() *options {
	return &options{
		logger:      logger.NewNop(),
		now:         time.Now,
		decisionTTL: DefaultDecisionTTL,
		maxEntries:  DefaultMaxEntries,
		snapshotTTL: DefaultSnapshotTTL,
	}
}

// WithRegistry 设置角色注册表，默认使用 DefaultRegistry.
func WithRegistry(r *Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithClock 设置时钟.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithDecisionTTL 设置决策缓存有效期.
func WithDecisionTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.decisionTTL = ttl
		}
	}
}

// WithMaxEntries 设置决策缓存触发清理的条目阈值.
func WithMaxEntries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxEntries = n
		}
	}
}

// WithSnapshotCache 设置权限快照缓存，未设置时每次实时计算.
func WithSnapshotCache(c cache.Cache) Option {
	return func(o *options) {
		o.snapshots = c
	}
}

// WithSnapshotTTL 设置权限快照缓存时间.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.snapshotTTL = ttl
		}
	}
}

// WithMetrics 设置决策缓存指标接收方.
func WithMetrics(m Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}
