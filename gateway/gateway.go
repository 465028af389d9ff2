// Package gateway 组装授权网关的完整处理链.
//
// 请求依次经过:
//
//	健康检查 -> 指标 -> panic 恢复 -> 安全响应头 -> 限流 -> CSRF -> 授权 -> 上游
//
// 限流与 CSRF 各自声明失败模式（限流放行，CSRF 拒绝），授权按路由区分.
// 所有组件由 New 根据 Config 构建，外部协作方可通过 Option 注入以便测试.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/auth"
	"github.com/Tsukikage7/gatekeeper/auth/rbac"
	"github.com/Tsukikage7/gatekeeper/auth/session"
	"github.com/Tsukikage7/gatekeeper/auth/userstore"
	"github.com/Tsukikage7/gatekeeper/cache"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/database"
	"github.com/Tsukikage7/gatekeeper/janitor"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/metrics"
	"github.com/Tsukikage7/gatekeeper/middleware/authz"
	"github.com/Tsukikage7/gatekeeper/middleware/csrf"
	mwratelimit "github.com/Tsukikage7/gatekeeper/middleware/ratelimit"
	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
	"github.com/Tsukikage7/gatekeeper/middleware/secure"
	"github.com/Tsukikage7/gatekeeper/policy"
	"github.com/Tsukikage7/gatekeeper/ratelimit"
	"github.com/Tsukikage7/gatekeeper/tracing"
	"github.com/Tsukikage7/gatekeeper/transport/health"
)

// ServiceName 链路追踪与日志中的服务名.
const ServiceName = "gatekeeper"

// ErrNilLogger 日志记录器为空.
var ErrNilLogger = errors.New("gateway: 日志记录器为空")

// Option 配置选项.
type Option func(*options)

type options struct {
	sessions auth.SessionProvider
	users    auth.UserStore
	ledger   ratelimit.Ledger
	snapshot cache.Cache
	upstream http.Handler
	version  string
	now      func() time.Time
}

// WithSessionProvider 注入会话提供方，替代基于配置的 JWT 提供方.
func WithSessionProvider(p auth.SessionProvider) Option {
	return func(o *options) {
		o.sessions = p
	}
}

// WithUserStore 注入用户存储，替代基于数据库的存储.
func WithUserStore(s auth.UserStore) Option {
	return func(o *options) {
		o.users = s
	}
}

// WithLedger 注入限流台账.
func WithLedger(l ratelimit.Ledger) Option {
	return func(o *options) {
		o.ledger = l
	}
}

// WithSnapshotCache 注入权限快照缓存.
func WithSnapshotCache(c cache.Cache) Option {
	return func(o *options) {
		o.snapshot = c
	}
}

// WithUpstream 设置放行请求的处理器，替代基于 UpstreamURL 的反向代理.
func WithUpstream(h http.Handler) Option {
	return func(o *options) {
		o.upstream = h
	}
}

// WithVersion 设置服务版本，用于链路追踪资源属性.
func WithVersion(v string) Option {
	return func(o *options) {
		o.version = v
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

// closer 关闭阶段需要释放的资源.
type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// Gateway 授权网关.
type Gateway struct {
	cfg *Config
	log logger.Logger

	manager   *rbac.Manager
	resolver  *policy.Resolver
	limiter   *mwratelimit.Limiter
	protector *csrf.Protector
	collector *metrics.Collector
	janitor   *janitor.Janitor
	health    *health.Health

	handler http.Handler
	closers []closer
}

// New 按配置构建网关.
//
// 构建失败时已打开的资源会被释放.
func New(cfg *Config, log logger.Logger, opts ...Option) (gw *Gateway, err error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if log == nil {
		return nil, ErrNilLogger
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{version: "dev", now: time.Now}
	for _, opt := range opts {
		opt(o)
	}

	g := &Gateway{
		cfg:      cfg,
		log:      log.With(logger.String("component", "gateway")),
		resolver: policy.NewResolver(),
		health:   health.New(),
	}
	defer func() {
		if err != nil {
			_ = g.Close(context.Background())
		}
	}()

	if g.collector, err = metrics.New(&cfg.Metrics); err != nil {
		return nil, err
	}

	if cfg.Tracing.Enabled {
		tp, err := tracing.NewProvider(&cfg.Tracing, ServiceName, o.version)
		if err != nil {
			return nil, err
		}
		g.addCloser("tracing", tp.Shutdown)
	}

	snapshot := o.snapshot
	if snapshot == nil {
		if snapshot, err = cache.NewCache(&cfg.Cache, log); err != nil {
			return nil, err
		}
		g.addCloser("cache", func(context.Context) error { return snapshot.Close() })
	}
	g.health.Add(health.NewPingChecker("cache", snapshot))

	g.manager = rbac.New(
		rbac.WithLogger(log),
		rbac.WithClock(o.now),
		rbac.WithDecisionTTL(cfg.RBAC.DecisionTTL),
		rbac.WithMaxEntries(cfg.RBAC.MaxEntries),
		rbac.WithSnapshotCache(snapshot),
		rbac.WithSnapshotTTL(cfg.RBAC.SnapshotTTL),
		rbac.WithMetrics(g.collector),
	)

	sessions := o.sessions
	if sessions == nil {
		if sessions, err = g.newSessionProvider(snapshot, o.now); err != nil {
			return nil, err
		}
	}

	users := o.users
	if users == nil {
		if users, err = g.newUserStore(); err != nil {
			return nil, err
		}
	}

	ledger := o.ledger
	if ledger == nil {
		if ledger, err = g.newLedger(); err != nil {
			return nil, err
		}
	}

	upstream := o.upstream
	if upstream == nil {
		if upstream, err = g.newProxy(); err != nil {
			return nil, err
		}
	}

	var ipOpts []clientip.Option
	if len(cfg.TrustedProxies) > 0 {
		ipOpts = append(ipOpts, clientip.WithTrustedProxies(cfg.TrustedProxies...))
	}
	ips := clientip.NewResolver(ipOpts...)
	auditor := audit.New(log, audit.WithClock(o.now))

	g.limiter, err = mwratelimit.New(ledger,
		mwratelimit.WithMaxRequests(cfg.RateLimit.MaxRequests),
		mwratelimit.WithWindow(cfg.RateLimit.Window),
		mwratelimit.WithProgressivePenalties(cfg.RateLimit.Progressive()),
		mwratelimit.WithSkipSuccessfulRequests(cfg.RateLimit.SkipSuccessfulRequests),
		mwratelimit.WithLogger(log),
		mwratelimit.WithAuditor(auditor),
		mwratelimit.WithMetrics(g.collector),
		mwratelimit.WithIPResolver(ips),
		mwratelimit.WithClock(o.now),
	)
	if err != nil {
		return nil, err
	}

	csrfOpts := []csrf.Option{
		csrf.WithEnvironment(cfg.Environment),
		csrf.WithSecureCookie(cfg.CSRF.SecureCookie),
		csrf.WithLogger(log),
		csrf.WithAuditor(auditor),
		csrf.WithMetrics(g.collector),
		csrf.WithIPResolver(ips),
	}
	if cfg.CSRF.SigningKey != "" {
		csrfOpts = append(csrfOpts, csrf.WithSigningKey([]byte(cfg.CSRF.SigningKey)))
	}
	if len(cfg.CSRF.SkipPrefixes) > 0 {
		csrfOpts = append(csrfOpts, csrf.WithSkipPrefixes(cfg.CSRF.SkipPrefixes...))
	}
	g.protector = csrf.New(csrfOpts...)

	authorize := authz.New(g.manager, g.resolver, sessions, users,
		authz.WithLogger(log),
		authz.WithAuditor(auditor),
		authz.WithMetrics(g.collector),
		authz.WithIPResolver(ips),
		authz.WithUpstreamTimeout(cfg.UpstreamTimeout),
		authz.WithJSONPrefixes(cfg.JSONPrefixes...),
		authz.WithClock(o.now),
	)

	if g.janitor, err = g.newJanitor(ledger); err != nil {
		return nil, err
	}

	security := cfg.Security
	security.RateLimit = cfg.RateLimit.MaxRequests
	security.RateWindow = cfg.RateLimit.Window

	h := chain(upstream,
		health.Middleware(g.health),
		ips.Middleware(),
		metrics.HTTPMiddleware(g.collector),
		tracing.HTTPMiddleware(ServiceName),
		recovery.HTTPMiddleware(recovery.WithLogger(log), recovery.WithHook(g.collector.PanicRecovered)),
		secure.Middleware(security),
		g.limiter.Middleware(),
		g.protector.Middleware(),
		authorize,
	)

	mux := http.NewServeMux()
	mux.Handle(g.collector.Path(), g.collector.Handler())
	mux.Handle("/", h)
	g.handler = mux

	g.log.With(
		logger.String("environment", cfg.Environment),
		logger.String("rate_limit_store", cfg.RateLimit.Store),
		logger.Bool("csrf_signed", cfg.CSRF.SigningKey != ""),
	).Info("[Gateway] 处理链已构建")
	return g, nil
}

// chain 按顺序组合中间件，第一个为最外层.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (g *Gateway) addCloser(name string, fn func(ctx context.Context) error) {
	g.closers = append(g.closers, closer{name: name, fn: fn})
}

func (g *Gateway) newSessionProvider(revocations cache.Cache, now func() time.Time) (*session.Provider, error) {
	opts := []session.Option{
		session.WithLogger(g.log),
		session.WithRevocationStore(revocations),
		session.WithClock(now),
	}
	if g.cfg.Session.CookieName != "" {
		opts = append(opts, session.WithCookieName(g.cfg.Session.CookieName))
	}
	if g.cfg.Session.Issuer != "" {
		opts = append(opts, session.WithIssuer(g.cfg.Session.Issuer))
	}
	if g.cfg.Session.Leeway > 0 {
		opts = append(opts, session.WithLeeway(g.cfg.Session.Leeway))
	}
	return session.New(g.cfg.Session.Secret, opts...)
}

func (g *Gateway) newUserStore() (auth.UserStore, error) {
	if !g.cfg.Database.Enabled() {
		return nil, ErrNoUserStore
	}
	db, err := database.Open(&g.cfg.Database, g.log)
	if err != nil {
		return nil, err
	}
	g.addCloser("database", func(context.Context) error { return database.Close(db) })
	g.health.Add(health.NewPingChecker("database", health.PingFunc(func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})))

	store := userstore.New(db)
	if g.cfg.Database.AutoMigrate {
		if err := store.Migrate(context.Background()); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func (g *Gateway) newLedger() (ratelimit.Ledger, error) {
	if !strings.EqualFold(g.cfg.RateLimit.Store, StoreRedis) {
		return ratelimit.NewMemoryLedger(), nil
	}
	rc := g.cfg.RateLimit.Redis
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    rc.Addrs,
		Password: rc.Password,
		DB:       rc.DB,
	})
	g.addCloser("ratelimit-redis", func(context.Context) error { return client.Close() })
	g.health.Add(health.NewPingChecker("ratelimit", health.PingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})))

	var opts []ratelimit.RedisLedgerOption
	if rc.KeyPrefix != "" {
		opts = append(opts, ratelimit.WithKeyPrefix(rc.KeyPrefix))
	}
	ledger, err := ratelimit.NewRedisLedger(client, opts...)
	if err != nil {
		return nil, err
	}
	return ledger, nil
}

func (g *Gateway) newProxy() (http.Handler, error) {
	if g.cfg.UpstreamURL == "" {
		// 未配置上游时网关只做决策，放行请求返回 204.
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}), nil
	}
	target, err := url.Parse(g.cfg.UpstreamURL)
	if err != nil {
		return nil, err
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		g.log.WithContext(r.Context()).With(
			logger.String("path", r.URL.Path),
			logger.Err(err),
		).Error("[Gateway] 上游请求失败")
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}

func (g *Gateway) newJanitor(ledger ratelimit.Ledger) (*janitor.Janitor, error) {
	j, err := janitor.New(janitor.WithLogger(g.log), janitor.WithMetrics(g.collector))
	if err != nil {
		return nil, err
	}
	if err := j.Add(janitor.DecisionSweep(g.manager, g.cfg.Janitor.DecisionSweep)); err != nil {
		return nil, err
	}
	if err := j.Add(janitor.LedgerSweep(ledger, g.cfg.RateLimit.Window, g.cfg.Janitor.LedgerSweep)); err != nil {
		return nil, err
	}
	return j, nil
}

// Handler 返回网关处理器.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Manager 返回角色管理器.
func (g *Gateway) Manager() *rbac.Manager {
	return g.manager
}

// Resolver 返回路由策略解析器.
func (g *Gateway) Resolver() *policy.Resolver {
	return g.resolver
}

// Limiter 返回限流中间件.
func (g *Gateway) Limiter() *mwratelimit.Limiter {
	return g.limiter
}

// Janitor 返回后台清理器.
func (g *Gateway) Janitor() *janitor.Janitor {
	return g.janitor
}

// Health 返回健康检查.
func (g *Gateway) Health() *health.Health {
	return g.health
}

// Start 启动后台清理任务.
func (g *Gateway) Start() {
	if g.janitor != nil {
		g.janitor.Start()
	}
}

// Close 停止清理任务并按注册的逆序释放资源.
func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	if g.janitor != nil {
		if err := g.janitor.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(g.closers) - 1; i >= 0; i-- {
		c := g.closers[i]
		if err := c.fn(ctx); err != nil {
			g.log.With(logger.String("resource", c.name), logger.Err(err)).Warn("[Gateway] 资源关闭失败")
			errs = append(errs, err)
		}
	}
	g.closers = nil
	return errors.Join(errs...)
}
