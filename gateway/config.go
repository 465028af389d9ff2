package gateway

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/Tsukikage7/gatekeeper/auth/rbac"
	"github.com/Tsukikage7/gatekeeper/cache"
	"github.com/Tsukikage7/gatekeeper/database"
	"github.com/Tsukikage7/gatekeeper/janitor"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/metrics"
	"github.com/Tsukikage7/gatekeeper/middleware/authz"
	"github.com/Tsukikage7/gatekeeper/middleware/secure"
	"github.com/Tsukikage7/gatekeeper/ratelimit"
	"github.com/Tsukikage7/gatekeeper/server"
	"github.com/Tsukikage7/gatekeeper/tracing"
)

// 限流台账存储类型.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// 配置错误.
var (
	ErrNilConfig        = errors.New("gateway: 配置为空")
	ErrEmptySecret      = errors.New("gateway: 会话签名密钥不能为空")
	ErrInvalidUpstream  = errors.New("gateway: 上游地址无效")
	ErrUnsupportedStore = errors.New("gateway: 不支持的限流存储类型")
	ErrEmptyRedisAddr   = errors.New("gateway: redis 限流存储必须配置地址")
	ErrNoUserStore      = errors.New("gateway: 未配置数据库，也未提供用户存储")
)

// Config 网关配置.
//
// 通过 config.Load[gateway.Config] 加载，环境变量前缀 GATEKEEPER_，如 GATEKEEPER_SESSION_SECRET.
type Config struct {
	// Environment 运行环境，production 时启用 HSTS 与 CSRF 的 localhost 检查
	Environment string `json:"environment" yaml:"environment" mapstructure:"environment"`

	Server server.HTTPConfig `json:"server" yaml:"server" mapstructure:"server"`

	// UpstreamURL 放行请求转发的目标 Web 应用
	UpstreamURL string `json:"upstream_url" yaml:"upstream_url" mapstructure:"upstream_url"`

	// UpstreamTimeout 认证服务与数据服务单次调用的超时
	UpstreamTimeout time.Duration `json:"upstream_timeout" yaml:"upstream_timeout" mapstructure:"upstream_timeout"`

	// JSONPrefixes 以 JSON 401/403 代替重定向的路径前缀
	JSONPrefixes []string `json:"json_prefixes" yaml:"json_prefixes" mapstructure:"json_prefixes"`

	// TrustedProxies 可信代理 CIDR，为空时信任所有转发头
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies" mapstructure:"trusted_proxies"`

	Logger    logger.Config   `json:"logger" yaml:"logger" mapstructure:"logger"`
	Database  database.Config `json:"database" yaml:"database" mapstructure:"database"`
	Cache     cache.Config    `json:"cache" yaml:"cache" mapstructure:"cache"`
	Session   SessionConfig   `json:"session" yaml:"session" mapstructure:"session"`
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit" mapstructure:"rate_limit"`
	CSRF      CSRFConfig      `json:"csrf" yaml:"csrf" mapstructure:"csrf"`
	Security  secure.Config   `json:"security" yaml:"security" mapstructure:"security"`
	RBAC      RBACConfig      `json:"rbac" yaml:"rbac" mapstructure:"rbac"`
	Metrics   metrics.Config  `json:"metrics" yaml:"metrics" mapstructure:"metrics"`
	Janitor   janitor.Config  `json:"janitor" yaml:"janitor" mapstructure:"janitor"`
	Tracing   tracing.Config  `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
}

// SessionConfig 会话令牌配置.
type SessionConfig struct {
	// Secret 认证服务签发访问令牌使用的 HS256 密钥
	Secret     string        `json:"secret" yaml:"secret" mapstructure:"secret"`
	CookieName string        `json:"cookie_name" yaml:"cookie_name" mapstructure:"cookie_name"`
	Issuer     string        `json:"issuer" yaml:"issuer" mapstructure:"issuer"`
	Leeway     time.Duration `json:"leeway" yaml:"leeway" mapstructure:"leeway"`
}

// RateLimitConfig 限流配置.
type RateLimitConfig struct {
	MaxRequests int           `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`
	Window      time.Duration `json:"window" yaml:"window" mapstructure:"window"`

	// ProgressivePenalties 为空时默认开启
	ProgressivePenalties   *bool `json:"progressive_penalties" yaml:"progressive_penalties" mapstructure:"progressive_penalties"`
	SkipSuccessfulRequests bool  `json:"skip_successful_requests" yaml:"skip_successful_requests" mapstructure:"skip_successful_requests"`

	// Store 台账存储: memory, redis
	Store string      `json:"store" yaml:"store" mapstructure:"store"`
	Redis RedisConfig `json:"redis" yaml:"redis" mapstructure:"redis"`
}

// RedisConfig 限流台账 Redis 连接.
type RedisConfig struct {
	Addrs     []string `json:"addrs" yaml:"addrs" mapstructure:"addrs"`
	Password  string   `json:"password" yaml:"password" mapstructure:"password"`
	DB        int      `json:"db" yaml:"db" mapstructure:"db"`
	KeyPrefix string   `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
}

// CSRFConfig CSRF 配置.
type CSRFConfig struct {
	// SigningKey 非空时启用 HMAC 签名令牌
	SigningKey   string   `json:"signing_key" yaml:"signing_key" mapstructure:"signing_key"`
	SkipPrefixes []string `json:"skip_prefixes" yaml:"skip_prefixes" mapstructure:"skip_prefixes"`
	SecureCookie bool     `json:"secure_cookie" yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// RBACConfig 角色管理器缓存配置.
type RBACConfig struct {
	DecisionTTL time.Duration `json:"decision_ttl" yaml:"decision_ttl" mapstructure:"decision_ttl"`
	MaxEntries  int           `json:"max_entries" yaml:"max_entries" mapstructure:"max_entries"`
	SnapshotTTL time.Duration `json:"snapshot_ttl" yaml:"snapshot_ttl" mapstructure:"snapshot_ttl"`
}

// Progressive 是否启用渐进处罚.
func (c *RateLimitConfig) Progressive() bool {
	return c.ProgressivePenalties == nil || *c.ProgressivePenalties
}

// ApplyDefaults 应用默认值.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	c.Server.ApplyDefaults()
	if c.UpstreamTimeout <= 0 {
		c.UpstreamTimeout = authz.DefaultUpstreamTimeout
	}
	c.Logger.ApplyDefaults()
	if c.Database.Enabled() {
		c.Database.ApplyDefaults()
	}
	c.Cache.ApplyDefaults()

	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = ratelimit.DefaultMaxRequests
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = ratelimit.DefaultWindow
	}
	if c.RateLimit.Store == "" {
		c.RateLimit.Store = StoreMemory
	}

	if c.Security.Environment == "" {
		c.Security.Environment = c.Environment
	}
	c.Security.ApplyDefaults()

	if c.RBAC.DecisionTTL <= 0 {
		c.RBAC.DecisionTTL = rbac.DefaultDecisionTTL
	}
	if c.RBAC.MaxEntries <= 0 {
		c.RBAC.MaxEntries = rbac.DefaultMaxEntries
	}
	if c.RBAC.SnapshotTTL <= 0 {
		c.RBAC.SnapshotTTL = rbac.DefaultSnapshotTTL
	}
	c.Metrics.ApplyDefaults()
	c.Janitor.ApplyDefaults()
}

// Validate 验证配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	if c.Session.Secret == "" {
		return ErrEmptySecret
	}
	if c.UpstreamURL != "" {
		u, err := url.Parse(c.UpstreamURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s", ErrInvalidUpstream, c.UpstreamURL)
		}
	}
	if err := c.Logger.Validate(); err != nil {
		return err
	}
	if c.Database.Enabled() {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	switch strings.ToLower(c.RateLimit.Store) {
	case "", StoreMemory:
	case StoreRedis:
		if len(c.RateLimit.Redis.Addrs) == 0 {
			return ErrEmptyRedisAddr
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedStore, c.RateLimit.Store)
	}
	return nil
}
