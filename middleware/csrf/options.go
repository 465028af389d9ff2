package csrf

import (
	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
)

// Metrics CSRF 指标.
type Metrics interface {
	CSRFRejected(code string)
	PanicRecovered(policy string)
}

// Option 配置选项.
type Option func(*options)

type options struct {
	environment  string
	signingKey   []byte
	skipPrefixes []string
	cookieSecure bool
	logger       logger.Logger
	auditor      *audit.Auditor
	metrics      Metrics
	resolver     *clientip.Resolver
}

func defaultOptions() *options {
	return &options{
		skipPrefixes: []string{"/api/auth/", "/api/public/"},
	}
}

// WithEnvironment 设置运行环境，生产环境下 Origin 含 localhost 视为可疑.
func WithEnvironment(env string) Option {
	return func(o *options) {
		o.environment = env
	}
}

// WithSigningKey 启用 HMAC-SHA256 签名令牌.
//
// 启用后令牌除格式外还需通过签名校验，安全请求会下发 csrf-token cookie.
func WithSigningKey(key []byte) Option {
	return func(o *options) {
		if len(key) > 0 {
			o.signingKey = append([]byte(nil), key...)
		}
	}
}

// WithSkipPrefixes 设置跳过校验的路径前缀，默认 /api/auth/ 与 /api/public/.
func WithSkipPrefixes(prefixes ...string) Option {
	return func(o *options) {
		o.skipPrefixes = prefixes
	}
}

// WithSecureCookie 设置下发 cookie 的 Secure 属性.
func WithSecureCookie(secure bool) Option {
	return func(o *options) {
		o.cookieSecure = secure
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
