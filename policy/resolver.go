package policy

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// compiledRoute 预编译的通配路由.
type compiledRoute struct {
	rule    RouteRule
	matcher *regexp.Regexp
}

// Resolver 路由策略解析器，构建后只读，可并发使用.
type Resolver struct {
	exact     map[string]RouteRule
	wildcards []compiledRoute
	rules     []Rule
}

// Option 配置选项.
type Option func(*Resolver)

// WithRoutes 替换路由权限表.
func WithRoutes(routes []RouteRule) Option {
	return func(r *Resolver) {
		r.exact = nil
		r.wildcards = nil
		r.load(routes)
	}
}

// WithRules 替换结构规则.
func WithRules(rules []Rule) Option {
	return func(r *Resolver) {
		r.rules = rules
	}
}

// NewResolver 创建解析器，通配模式在此一次性编译.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{rules: DefaultRules()}
	r.load(RoutePermissions())
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) load(routes []RouteRule) {
	r.exact = make(map[string]RouteRule, len(routes))
	for _, rt := range routes {
		if _, dup := r.exact[rt.Pattern]; !dup {
			r.exact[rt.Pattern] = rt
		}
		if strings.Contains(rt.Pattern, "*") {
			r.wildcards = append(r.wildcards, compiledRoute{rule: rt, matcher: compilePattern(rt.Pattern)})
		}
	}
}

// compilePattern 将路由模式编译为正则: "?*" → ".*"，"*" → "[^/]+".
func compilePattern(pattern string) *regexp.Regexp {
	var b strings.Builder
	b.WriteString("^")
	for i := 0; i < len(pattern); {
		switch {
		case strings.HasPrefix(pattern[i:], "?*"):
			b.WriteString(".*")
			i += 2
		case pattern[i] == '*':
			b.WriteString("[^/]+")
			i++
		default:
			j := i + 1
			for j < len(pattern) && pattern[j] != '*' && !strings.HasPrefix(pattern[j:], "?*") {
				j++
			}
			b.WriteString(regexp.QuoteMeta(pattern[i:j]))
			i = j
		}
	}
	b.WriteString("$")
	return regexp.MustCompile(b.String())
}

// normalize 清理路径中的 "."、".." 与重复斜杠，去掉末尾斜杠.
func normalize(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Resolve 返回路径的授权要求.
//
// 纯函数：相同路径总是得到结构相同的新 Policy.
func (r *Resolver) Resolve(p string) Policy {
	p = normalize(p)
	var pol Policy

	if rt, ok := r.exact[p]; ok {
		pol.Protected = true
		pol.RequiredPermissions = rt.Permissions
	} else {
		for _, w := range r.wildcards {
			if w.matcher.MatchString(p) {
				pol.Protected = true
				pol.RequiredPermissions = w.rule.Permissions
				break
			}
		}
	}

	for _, rule := range r.rules {
		if rule.Match(p) {
			rule.Apply(&pol)
		}
	}
	return pol.clone()
}

// String 便于日志输出.
func (p Policy) String() string {
	return fmt.Sprintf("protected=%t perms=%v roles=%v email=%t phone=%t level=%d",
		p.Protected, p.RequiredPermissions, p.RequiredRoles,
		p.RequireEmailVerification, p.RequirePhoneVerification, p.MinRoleLevel)
}
