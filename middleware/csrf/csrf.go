// Package csrf 提供状态变更请求的 CSRF 防护.
//
// 安全方法（GET、HEAD、OPTIONS）与 /api/auth/、/api/public/ 下的路径直接放行.
// 其他请求：
//  1. 读取 Origin、Referer、Host、User-Agent 与 CSRF 令牌（请求头或 cookie）
//  2. 校验 Origin/Referer 是否与请求自身来源一致
//  3. 标记可疑特征：命令行工具 UA、缺少 Origin 与 Referer、生产环境 Origin 含 localhost
//  4. 无令牌且（来源校验均失败或存在可疑特征）时返回 403 CSRF_TOKEN_REQUIRED
//  5. 有令牌时校验格式，不合法返回 403 INVALID_CSRF_TOKEN
//  6. 否则放行
//
// 默认只做格式校验，保证较弱.
// 配置 WithSigningKey 后改为双重提交：令牌必须出现在请求头中，带有效 HMAC 签名，
// 且与 csrf-token cookie 一致；仅有 cookie 视为缺少令牌.
// 策略内部 panic 时拒绝请求（403 CSRF_VALIDATION_ERROR）.
package csrf

import (
	"context"
	"crypto/hmac"
	"net/http"
	"strings"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
	"github.com/Tsukikage7/gatekeeper/tracing"
	"github.com/Tsukikage7/gatekeeper/transport/response"
)

// PolicyName 策略名称.
const PolicyName = "csrf"

// 令牌来源.
const (
	HeaderName     = "X-CSRF-Token"
	AltHeaderName  = "X-XSRF-Token"
	CookieName     = "csrf-token"
	AltCookieName  = "XSRF-TOKEN"
	envProduction  = "production"
	requiredOrigin = "Origin or Referer"
)

var toolAgents = []string{"curl", "wget", "python", "postman"}

// Indicators 可疑特征.
type Indicators struct {
	ToolUserAgent   bool `json:"tool_user_agent"`
	MissingOrigin   bool `json:"missing_origin_and_referer"`
	LocalhostInProd bool `json:"localhost_origin_in_production"`
}

// Any 是否存在任一可疑特征.
func (i Indicators) Any() bool {
	return i.ToolUserAgent || i.MissingOrigin || i.LocalhostInProd
}

// Protector CSRF 防护.
type Protector struct {
	opts *options
	log  logger.Logger
}

// New 创建 CSRF 防护.
func New(opts ...Option) *Protector {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.auditor == nil {
		o.auditor = audit.New(o.logger)
	}
	if o.resolver == nil {
		o.resolver = clientip.NewResolver()
	}
	return &Protector{
		opts: o,
		log:  o.logger.With(logger.String("component", PolicyName)),
	}
}

// Middleware 返回 CSRF 中间件，策略内部 panic 时拒绝请求.
func (p *Protector) Middleware() func(http.Handler) http.Handler {
	deny := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.reject(r.Context(), response.CodeCSRFValidationError)
		_ = response.WriteDenial(w, response.CodeCSRFValidationError)
	})
	ropts := []recovery.Option{recovery.WithLogger(p.log), recovery.WithDeny(deny)}
	if p.opts.metrics != nil {
		ropts = append(ropts, recovery.WithHook(p.opts.metrics.PanicRecovered))
	}
	return recovery.Guard(PolicyName, recovery.FailClosed, p.policy, ropts...)
}

func (p *Protector) policy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if safeMethod(r.Method) {
			p.ensureCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}
		if p.skipped(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		referer := r.Header.Get("Referer")
		ua := r.Header.Get("User-Agent")
		token := TokenFromRequest(r)
		if p.signed() {
			token = headerToken(r)
		}

		accepted := AcceptedOrigins(r)
		originValid := origin != "" && matchesOrigin(origin, accepted)
		refererValid := referer != "" && matchesReferer(referer, accepted)
		indicators := p.indicators(ua, origin, referer)

		event := audit.Event{
			Route:     r.URL.Path,
			Method:    r.Method,
			IP:        p.opts.resolver.IP(r),
			UserAgent: ua,
			Details: map[string]any{
				"origin":        origin,
				"referer":       referer,
				"origin_valid":  originValid,
				"referer_valid": refererValid,
				"indicators":    indicators,
			},
		}

		if token == "" {
			if (!originValid && !refererValid) || indicators.Any() {
				event.Action = "csrf_token_missing"
				event.Reason = "csrf token required"
				p.opts.auditor.Security(r.Context(), event)
				p.reject(r.Context(), response.CodeCSRFTokenRequired)
				_ = response.WriteDenial(w, response.CodeCSRFTokenRequired,
					response.WithRequired(requiredOrigin, HeaderName))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !p.VerifyToken(token) || !p.matchesCookie(r, token) {
			event.Action = "csrf_token_invalid"
			event.Reason = "invalid csrf token"
			p.opts.auditor.Security(r.Context(), event)
			p.reject(r.Context(), response.CodeInvalidCSRFToken)
			_ = response.WriteDenial(w, response.CodeInvalidCSRFToken)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (p *Protector) indicators(ua, origin, referer string) Indicators {
	lower := strings.ToLower(ua)
	var i Indicators
	for _, tool := range toolAgents {
		if strings.Contains(lower, tool) {
			i.ToolUserAgent = true
			break
		}
	}
	i.MissingOrigin = origin == "" && referer == ""
	i.LocalhostInProd = strings.EqualFold(p.opts.environment, envProduction) && strings.Contains(origin, "localhost")
	return i
}

func (p *Protector) skipped(path string) bool {
	for _, prefix := range p.opts.skipPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func (p *Protector) signed() bool {
	return len(p.opts.signingKey) > 0
}

// matchesCookie 签名模式下请求头令牌必须与 cookie 令牌一致.
func (p *Protector) matchesCookie(r *http.Request, token string) bool {
	if !p.signed() {
		return true
	}
	c := cookieToken(r)
	return c != "" && hmac.Equal([]byte(c), []byte(token))
}

// ensureCookie 在启用签名且 cookie 缺失或无效时下发新令牌.
func (p *Protector) ensureCookie(w http.ResponseWriter, r *http.Request) {
	if !p.signed() {
		return
	}
	if c, err := r.Cookie(CookieName); err == nil && p.VerifyToken(c.Value) {
		return
	}
	token, err := p.IssueToken()
	if err != nil {
		p.log.WithContext(r.Context()).With(logger.Err(err)).Error("[CSRF] 签发令牌失败")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Secure:   p.opts.cookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

func (p *Protector) reject(ctx context.Context, code response.Code) {
	tracing.RecordRejection(ctx, PolicyName, code.Name)
	if p.opts.metrics != nil {
		p.opts.metrics.CSRFRejected(code.Name)
	}
}

// TokenFromRequest 依次从 X-CSRF-Token、X-XSRF-Token 请求头与 csrf-token、XSRF-TOKEN cookie 读取令牌.
func TokenFromRequest(r *http.Request) string {
	if t := headerToken(r); t != "" {
		return t
	}
	return cookieToken(r)
}

func headerToken(r *http.Request) string {
	if t := r.Header.Get(HeaderName); t != "" {
		return t
	}
	return r.Header.Get(AltHeaderName)
}

func cookieToken(r *http.Request) string {
	for _, name := range []string{CookieName, AltCookieName} {
		if c, err := r.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

// AcceptedOrigins 返回请求自身来源与 https://host.
//
// 协议取自 TLS 或 X-Forwarded-Proto，默认 http.
func AcceptedOrigins(r *http.Request) []string {
	host := r.Host
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	} else if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	self := scheme + "://" + host
	if scheme == "https" {
		return []string{self}
	}
	return []string{self, "https://" + host}
}

func matchesOrigin(origin string, accepted []string) bool {
	for _, a := range accepted {
		if origin == a {
			return true
		}
	}
	return false
}

func matchesReferer(referer string, accepted []string) bool {
	for _, a := range accepted {
		if referer == a || strings.HasPrefix(referer, a+"/") {
			return true
		}
	}
	return false
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
