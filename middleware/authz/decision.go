package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/auth"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/metrics"
	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
	"github.com/Tsukikage7/gatekeeper/policy"
	"github.com/Tsukikage7/gatekeeper/transport/response"
)

type decisionKind int

const (
	kindPass decisionKind = iota
	kindGrant
	kindRedirect
	kindDeny
)

// decision 授权决策结果，由 serve 执行.
type decision struct {
	kind      decisionKind
	outcome   string
	location  string
	code      response.Code
	principal *auth.Principal
}

func pass() decision {
	return decision{kind: kindPass, outcome: metrics.OutcomePublic}
}

// safeDecide 执行决策，panic 时受保护路由重定向到登录页，其余放行.
func (a *authorizer) safeDecide(ctx context.Context, r *http.Request, base audit.Event) (d decision) {
	protected := false
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		perr := &recovery.PanicError{Value: p}
		ev := base
		ev.Action = "authz_error"
		ev.Reason = perr.Error()
		a.opts.auditor.Security(ctx, ev)
		a.log.WithContext(ctx).With(
			logger.Err(perr),
			logger.String("route", base.Route),
			logger.Bool("protected", protected),
		).Error("[Authz] 授权决策 panic 已恢复")

		if protected {
			d = a.denyTo(r, policy.PathLogin, response.CodeUnauthenticated, true)
		} else {
			d = pass()
		}
		d.outcome = metrics.OutcomeError
	}()

	pol := a.resolver.Resolve(r.URL.Path)
	protected = pol.Protected

	sess := a.session(ctx, r, base)
	if pol.Protected {
		return a.protected(ctx, r, pol, sess, base)
	}
	if sess != nil && policy.IsAuthRoute(r.URL.Path) {
		return a.authenticated(ctx, r, sess, base)
	}
	return pass()
}

// protected 受保护路由的检查序列.
func (a *authorizer) protected(ctx context.Context, r *http.Request, pol policy.Policy, sess *auth.Session, ev audit.Event) decision {
	if sess == nil {
		ev.Action = "access_denied_no_session"
		ev.Reason = "no session"
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathLogin, response.CodeUnauthenticated, true)
	}
	ev.UserID = sess.UserID

	user := a.user(ctx, sess, ev)
	if user == nil {
		ev.Action = "access_denied_user_not_found"
		ev.Reason = "user record unavailable"
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathLogin, response.CodeUnauthenticated, true)
	}

	roles := user.RoleNames()

	if len(pol.RequiredPermissions) > 0 && !a.manager.HasAnyPermission(roles, pol.RequiredPermissions) {
		ev.Action = "access_denied_insufficient_permissions"
		ev.Reason = "missing required permission"
		ev.Details = map[string]any{"roles": roles, "required_permissions": pol.RequiredPermissions}
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathUnauthorized, response.CodeForbidden, false)
	}

	if len(pol.RequiredRoles) > 0 && !a.manager.HasAnyRole(roles, pol.RequiredRoles) {
		ev.Action = "access_denied_insufficient_roles"
		ev.Reason = "missing required role"
		ev.Details = map[string]any{"roles": roles, "required_roles": pol.RequiredRoles}
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathUnauthorized, response.CodeForbidden, false)
	}

	if pol.RequireEmailVerification && !user.EmailVerified {
		ev.Action = "email_verification_required"
		ev.Reason = "email not verified"
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathVerifyEmail, response.CodeVerificationRequired, true)
	}

	if pol.RequirePhoneVerification && !user.PhoneVerified {
		ev.Action = "phone_verification_required"
		ev.Reason = "phone not verified"
		a.opts.auditor.Security(ctx, ev)
		return a.denyTo(r, policy.PathVerifyPhone, response.CodeVerificationRequired, true)
	}

	principal := &auth.Principal{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Roles:     roles,
		Level:     a.manager.HighestRoleLevel(roles),
		SessionID: sess.ID,
	}
	ev.Action = "access_granted"
	ev.Details = map[string]any{"roles": roles, "level": principal.Level}
	a.opts.auditor.Access(ctx, ev)
	return decision{kind: kindGrant, outcome: metrics.OutcomeGranted, principal: principal}
}

// authenticated 已登录用户访问认证页面.
//
// 用户记录不可用时按未登录处理；验证页面在用户仍缺少对应验证时放行.
func (a *authorizer) authenticated(ctx context.Context, r *http.Request, sess *auth.Session, ev audit.Event) decision {
	ev.UserID = sess.UserID
	user := a.user(ctx, sess, ev)
	if user == nil {
		return pass()
	}
	if underPath(r.URL.Path, policy.PathVerifyEmail) && !user.EmailVerified {
		return pass()
	}
	if underPath(r.URL.Path, policy.PathVerifyPhone) && !user.PhoneVerified {
		return pass()
	}

	target := SafeRedirect(r.URL.Query().Get("redirect"))
	ev.Action = "authenticated_redirect"
	ev.Reason = "session already established"
	ev.Details = map[string]any{"location": target}
	a.opts.auditor.Security(ctx, ev)
	return decision{kind: kindRedirect, outcome: metrics.OutcomeRedirected, location: target}
}

// denyTo 构造拒绝决策：JSON 路由返回错误体，其余重定向到 target.
func (a *authorizer) denyTo(r *http.Request, target string, code response.Code, keepDestination bool) decision {
	if a.jsonRoute(r.URL.Path) {
		return decision{kind: kindDeny, outcome: metrics.OutcomeDenied, code: code}
	}
	location := target
	if keepDestination {
		location += "?redirect=" + url.QueryEscape(r.URL.Path)
	}
	return decision{kind: kindRedirect, outcome: metrics.OutcomeRedirected, location: location}
}

// SafeRedirect 返回同源相对路径形式的跳转目标，不满足时返回 /dashboard.
func SafeRedirect(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") ||
		strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return policy.PathDashboard
	}
	u, err := url.Parse(target)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return policy.PathDashboard
	}
	return target
}

func underPath(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// identityHeaders 构造下游身份头.
func identityHeaders(p *auth.Principal) http.Header {
	roles := p.Roles
	if roles == nil {
		roles = []string{}
	}
	encoded, _ := json.Marshal(roles)
	h := http.Header{}
	h.Set(HeaderUserID, p.ID)
	h.Set(HeaderUserRoles, string(encoded))
	h.Set(HeaderUserLevel, strconv.Itoa(p.Level))
	return h
}
