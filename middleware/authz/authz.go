// Package authz 提供网关的授权中间件.
//
// 每个请求先解析路由策略，再查询会话:
//   - 受保护路由依次检查会话、用户记录、权限、角色、邮箱验证与手机验证，
//     任一不满足即重定向（或按 JSON 前缀返回 401/403）
//   - 已登录用户访问登录、注册等认证页面时重定向到 redirect 参数或 /dashboard
//   - 其余请求直接放行
//
// 决策过程中的 panic 按路由区分处理：受保护路由重定向到 /login，公开路由放行.
// 下游处理器的 panic 不在此处恢复.
package authz

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/auth"
	"github.com/Tsukikage7/gatekeeper/auth/rbac"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/middleware/secure"
	"github.com/Tsukikage7/gatekeeper/policy"
	"github.com/Tsukikage7/gatekeeper/tracing"
	"github.com/Tsukikage7/gatekeeper/transport/response"
)

// RequestIDHeader 请求 ID 响应头.
const RequestIDHeader = "X-Request-ID"

// 注入到下游请求与响应的身份头.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
	HeaderUserLevel = "X-User-Level"
)

// identityHeaderPrefix 客户端携带的同前缀请求头会被移除.
const identityHeaderPrefix = "X-User-"

type authorizer struct {
	manager  *rbac.Manager
	resolver *policy.Resolver
	sessions auth.SessionProvider
	users    auth.UserStore
	opts     *options
	log      logger.Logger
	headers  http.Header
}

// New 创建授权中间件.
func New(manager *rbac.Manager, resolver *policy.Resolver, sessions auth.SessionProvider, users auth.UserStore, opts ...Option) func(http.Handler) http.Handler {
	if manager == nil {
		panic("authz: RBAC 管理器不能为空")
	}
	if resolver == nil {
		panic("authz: 路由策略解析器不能为空")
	}
	if sessions == nil {
		panic("authz: 会话提供方不能为空")
	}
	if users == nil {
		panic("authz: 用户存储不能为空")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.auditor == nil {
		o.auditor = audit.New(o.logger, audit.WithClock(o.now))
	}
	if o.resolver == nil {
		o.resolver = clientip.NewResolver()
	}

	a := &authorizer{
		manager:  manager,
		resolver: resolver,
		sessions: sessions,
		users:    users,
		opts:     o,
		log:      o.logger.With(logger.String("component", "authz")),
	}
	if o.secureHeaders != nil {
		cfg := *o.secureHeaders
		cfg.ApplyDefaults()
		a.headers = cfg.Headers()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a.serve(next, w, r)
		})
	}
}

func (a *authorizer) serve(next http.Handler, w http.ResponseWriter, r *http.Request) {
	start := a.opts.now()

	ctx, requestID := withRequestID(r)
	w.Header().Set(RequestIDHeader, requestID)
	if a.headers != nil {
		secure.Apply(w.Header(), a.headers)
	}

	r = r.WithContext(ctx)
	r.Header = stripIdentityHeaders(r.Header)

	base := audit.Event{
		Route:     r.URL.Path,
		Method:    r.Method,
		IP:        a.opts.resolver.IP(r),
		UserAgent: r.Header.Get("User-Agent"),
		RequestID: requestID,
		Timestamp: start,
	}

	d := a.safeDecide(ctx, r, base)
	a.finish(ctx, d, base, start)

	switch d.kind {
	case kindRedirect:
		http.Redirect(w, r, d.location, http.StatusTemporaryRedirect)
	case kindDeny:
		_ = response.WriteDenial(w, d.code)
	case kindGrant:
		r = a.grant(w, r, d.principal)
		next.ServeHTTP(w, r)
	default:
		next.ServeHTTP(w, r)
	}
}

// grant 注入身份头与 Principal.
func (a *authorizer) grant(w http.ResponseWriter, r *http.Request, p *auth.Principal) *http.Request {
	headers := identityHeaders(p)
	for k, v := range headers {
		w.Header()[k] = v
		r.Header[k] = v
	}
	return r.WithContext(auth.WithPrincipal(r.Context(), p))
}

// finish 记录性能事件与指标.
func (a *authorizer) finish(ctx context.Context, d decision, base audit.Event, start time.Time) {
	elapsed := a.opts.now().Sub(start)
	a.opts.auditor.Performance(ctx, "authz_duration", elapsed,
		logger.String("route", base.Route),
		logger.String("outcome", d.outcome),
	)
	if a.opts.metrics != nil {
		a.opts.metrics.AuthzDecision(d.outcome, elapsed)
	}
	var userID string
	if d.principal != nil {
		userID = d.principal.ID
	}
	tracing.RecordDecision(ctx, d.outcome, base.Route, userID)
}

// session 查询会话，任何失败都视为无会话.
func (a *authorizer) session(ctx context.Context, r *http.Request, base audit.Event) *auth.Session {
	sess, err := callWithTimeout(ctx, a.opts.upstreamTimeout, func(ctx context.Context) (*auth.Session, error) {
		return a.sessions.Session(ctx, r)
	})
	switch {
	case errors.Is(err, auth.ErrSessionNotFound), errors.Is(err, auth.ErrSessionInvalid):
		a.log.WithContext(ctx).With(logger.Err(err), logger.String("route", base.Route)).Debug("[Authz] 请求未携带有效会话")
		return nil
	case err != nil:
		a.opts.auditor.Failure(ctx, "session_fetch_failed", err,
			logger.String("route", base.Route), logger.String("ip", base.IP))
		return nil
	case sess == nil || sess.Expired(a.opts.now()):
		return nil
	}
	return sess
}

// user 查询用户记录，失败时返回 nil.
func (a *authorizer) user(ctx context.Context, sess *auth.Session, base audit.Event) *auth.User {
	user, err := callWithTimeout(ctx, a.opts.upstreamTimeout, func(ctx context.Context) (*auth.User, error) {
		return a.users.User(ctx, sess.UserID)
	})
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return nil
	case err != nil:
		a.opts.auditor.Failure(ctx, "user_fetch_failed", err,
			logger.String("route", base.Route), logger.String("user_id", sess.UserID))
		return nil
	}
	return user
}

func (a *authorizer) jsonRoute(path string) bool {
	for _, prefix := range a.opts.jsonPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// withRequestID 复用已有请求 ID，否则生成新的 UUID.
func withRequestID(r *http.Request) (context.Context, string) {
	ctx := r.Context()
	if id := logger.RequestIDFromContext(ctx); id != "" {
		return ctx, id
	}
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	return logger.ContextWithRequestID(ctx, id), id
}

// stripIdentityHeaders 返回移除 X-User-* 后的请求头副本.
func stripIdentityHeaders(h http.Header) http.Header {
	out := h.Clone()
	if out == nil {
		out = http.Header{}
	}
	for k := range out {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), identityHeaderPrefix) {
			delete(out, k)
		}
	}
	return out
}
