package authz

import (
	"time"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/middleware/secure"
)

// DefaultUpstreamTimeout 会话与用户查询的默认超时.
const DefaultUpstreamTimeout = 3 * time.Second

// Metrics 授权指标.
type Metrics interface {
	AuthzDecision(outcome string, elapsed time.Duration)
}

// Option 配置选项.
type Option func(*options)

type options struct {
	logger          logger.Logger
	auditor         *audit.Auditor
	metrics         Metrics
	resolver        *clientip.Resolver
	upstreamTimeout time.Duration
	jsonPrefixes    []string
	secureHeaders   *secure.Config
	now             func() time.Time
}

func defaultOptions() *options {
	return &options{
		upstreamTimeout: DefaultUpstreamTimeout,
		now:             time.Now,
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

// WithUpstreamTimeout 设置会话与用户查询的超时，超时视为查询失败.
func WithUpstreamTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.upstreamTimeout = d
		}
	}
}

// WithJSONPrefixes 设置返回 JSON 401/403 而非重定向的路径前缀，如 /api/.
func WithJSONPrefixes(prefixes ...string) Option {
	return func(o *options) {
		o.jsonPrefixes = prefixes
	}
}

// WithSecureHeaders 由授权中间件自行附加安全响应头，用于未经网关链单独使用的场景.
func WithSecureHeaders(cfg secure.Config) Option {
	return func(o *options) {
		o.secureHeaders = &cfg
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
