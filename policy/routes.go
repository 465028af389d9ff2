package policy

import (
	"strings"

	"github.com/Tsukikage7/gatekeeper/auth/rbac"
)

// RouteRule 路由权限表项.
//
// Pattern 中 "*" 匹配恰好一个非空路径段，"?*" 匹配任意（可为空）后缀，其余字符按字面匹配.
type RouteRule struct {
	Pattern     string
	Permissions []string
}

// RoutePermissions 返回默认路由权限表.
//
// 新增受保护页面时在此登记，或在 DefaultRules 中增加结构规则.
func RoutePermissions() []RouteRule {
	return []RouteRule{
		{"/dashboard", []string{rbac.PermProfileRead}},
		{"/dashboard/profile", []string{rbac.PermProfileRead}},
		{"/dashboard/ads", []string{rbac.PermAdsRead}},
		{"/dashboard/ads/*", []string{rbac.PermAdsUpdate}},
		{"/dashboard/estimates", []string{rbac.PermEstimateRead}},
		{"/dashboard/estimates/*", []string{rbac.PermEstimateUpdate}},
		{"/dashboard/reviews", []string{rbac.PermReviewRead}},
		{"/dashboard/subscriptions", []string{rbac.PermSubscriptionRead}},
		{"/dashboard/jobs", []string{rbac.PermJobViewOwn}},
		{"/dashboard/jobs/*", []string{rbac.PermJobUpdate}},
		{"/dashboard/delivery", []string{rbac.PermDeliveryRead}},
		{"/dashboard/business/*/edit", []string{rbac.PermBusinessUpdate}},
		{"/dashboard/business/*/manage", []string{rbac.PermBusinessManage}},
		{"/dashboard/analytics", []string{rbac.PermAnalyticsRead}},
		{"/dashboard/admin", []string{rbac.PermSystemAudit}},
		{"/dashboard/admin/?*", []string{rbac.PermUserManage}},
		{"/dashboard/localhub/?*", []string{rbac.PermLocalHubRead}},
		{"/admin/?*", []string{rbac.PermSystemSettings}},
		{"/business/*/claim", []string{rbac.PermBusinessClaim}},
	}
}

// Rule 结构规则.
type Rule struct {
	// Name 规则名，用于日志.
	Name string
	// Match 判断规则是否适用于路径.
	Match func(path string) bool
	// Apply 覆盖规则负责的字段.
	Apply func(p *Policy)
}

// hasSegmentPrefix 按路径段边界做前缀匹配："/dashboard" 匹配 "/dashboard/x"，不匹配 "/dashboards".
func hasSegmentPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func prefixRule(name, prefix string, apply func(p *Policy)) Rule {
	return Rule{
		Name:  name,
		Match: func(path string) bool { return hasSegmentPrefix(path, prefix) },
		Apply: apply,
	}
}

// DefaultRules 返回默认结构规则，顺序即应用顺序.
func DefaultRules() []Rule {
	return []Rule{
		prefixRule("dashboard", "/dashboard", func(p *Policy) {
			p.Protected = true
			p.RequireEmailVerification = true
			p.MinRoleLevel = 1
		}),
		prefixRule("dashboard-admin", "/dashboard/admin", func(p *Policy) {
			p.Protected = true
			p.RequiredRoles = []string{rbac.RoleAdmin, rbac.RoleSuperAdmin}
			p.MinRoleLevel = 4
		}),
		prefixRule("dashboard-business", "/dashboard/business", func(p *Policy) {
			p.Protected = true
			p.RequiredRoles = []string{rbac.RoleBusinessOwner, rbac.RoleAdmin, rbac.RoleSuperAdmin}
			p.MinRoleLevel = 2
		}),
		prefixRule("dashboard-localhub", "/dashboard/localhub", func(p *Policy) {
			p.Protected = true
			p.RequiredRoles = []string{rbac.RoleBusinessOwner, rbac.RoleModerator, rbac.RoleAdmin, rbac.RoleSuperAdmin}
			p.RequirePhoneVerification = true
		}),
		prefixRule("admin", "/admin", func(p *Policy) {
			p.Protected = true
			p.RequiredRoles = []string{rbac.RoleAdmin, rbac.RoleSuperAdmin}
			p.RequireEmailVerification = true
			p.MinRoleLevel = 4
		}),
		{
			Name: "business-edit",
			Match: func(path string) bool {
				return strings.Contains(path, "/business/") &&
					(strings.Contains(path, "/edit") || strings.Contains(path, "/manage"))
			},
			Apply: func(p *Policy) {
				p.Protected = true
				p.RequiredRoles = []string{rbac.RoleBusinessOwner, rbac.RoleAdmin, rbac.RoleSuperAdmin}
				p.RequireEmailVerification = true
			},
		},
		{
			Name:  "claim",
			Match: func(path string) bool { return strings.Contains(path, "/claim") },
			Apply: func(p *Policy) {
				p.Protected = true
				p.RequireEmailVerification = true
				p.RequirePhoneVerification = true
			},
		},
	}
}

// AuthRoutes 仅供未登录用户访问的路由前缀.
var AuthRoutes = []string{
	PathLogin,
	PathSignup,
	PathPasswordReset,
	PathVerifyEmail,
	PathVerifyPhone,
	PathOTP,
}

// IsAuthRoute 检查路径是否属于登录、注册、验证等认证页面.
func IsAuthRoute(path string) bool {
	path = normalize(path)
	for _, prefix := range AuthRoutes {
		if hasSegmentPrefix(path, prefix) {
			return true
		}
	}
	return false
}
