package session

import (
	"time"

	"github.com/Tsukikage7/gatekeeper/cache"
	"github.com/Tsukikage7/gatekeeper/logger"
)

// 默认值.
const (
	DefaultCookieName = "sb-access-token"
	DefaultTTL        = time.Hour
	DefaultLeeway     = 30 * time.Second
)

// Option 配置选项.
type Option func(*options)

type options struct {
	cookieName string
	issuer     string
	ttl        time.Duration
	leeway     time.Duration
	now        func() time.Time
	logger     logger.Logger
	revoked    cache.Cache
}

func defaultOptions() *options {
	return &options{
		cookieName: DefaultCookieName,
		ttl:        DefaultTTL,
		leeway:     DefaultLeeway,
		now:        time.Now,
		logger:     logger.NewNop(),
	}
}

// WithCookieName 设置携带访问令牌的 cookie 名.
func WithCookieName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.cookieName = name
		}
	}
}

// WithIssuer 设置签发者，设置后校验 iss.
func WithIssuer(issuer string) Option {
	return func(o *options) {
		o.issuer = issuer
	}
}

// WithTTL 设置 Issue 签发令牌的有效期.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLeeway 设置时间校验容差.
func WithLeeway(d time.Duration) Option {
	return func(o *options) {
		o.leeway = d
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

// WithLogger 设置日志记录器.
func WithLogger(log logger.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.logger = log
		}
	}
}

// WithRevocationStore 设置会话吊销记录存储.
func WithRevocationStore(c cache.Cache) Option {
	return func(o *options) {
		o.revoked = c
	}
}
