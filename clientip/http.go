package clientip

import "net/http"

// Resolver 从 HTTP 请求解析调用方 IP.
type Resolver struct {
	opts *options
}

// NewResolver 创建 IP 解析器，默认信任所有代理.
func NewResolver(opts ...Option) *Resolver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Resolver{opts: o}
}

// IP 返回调用方 IP，context 中已有解析结果时直接复用，无法确定时返回 Unknown.
func (res *Resolver) IP(r *http.Request) string {
	if ip, ok := FromContext(r.Context()); ok && ip != "" {
		return ip
	}
	return res.extract(r)
}

func (res *Resolver) extract(r *http.Request) string {
	o := res.opts
	remote, _ := SplitHostPort(r.RemoteAddr)

	// 直连方不是可信代理时忽略转发头
	if !o.trustAllProxies && !o.isTrustedProxy(remote) {
		return orUnknown(remote)
	}

	if xff := r.Header.Get(o.forwardedHeader); xff != "" {
		var ip string
		if o.trustAllProxies {
			ip = ParseXForwardedFor(xff)
		} else {
			ip = ParseXForwardedForWithTrust(xff, o.isTrustedProxy)
		}
		if IsValidIP(ip) {
			return ip
		}
	}

	if xri := r.Header.Get(o.realIPHeader); xri != "" {
		if ip, _ := SplitHostPort(xri); IsValidIP(ip) {
			return ip
		}
	}

	return orUnknown(remote)
}

func orUnknown(ip string) string {
	if ip == "" {
		return Unknown
	}
	return ip
}

// Middleware 将解析出的 IP 写入请求 context.
func (res *Resolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := WithIP(r.Context(), res.extract(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
