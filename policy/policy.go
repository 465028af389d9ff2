// Package policy 将请求路径解析为授权要求.
//
// 解析分三步：精确匹配路由权限表；未命中时按声明顺序匹配通配模式（首个命中即停止）；
// 最后无论前两步结果如何，按顺序应用结构规则，每条规则只覆盖它负责的字段，
// 后应用的规则优先.
package policy

// 网关使用的固定路径.
const (
	PathLogin         = "/login"
	PathSignup        = "/signup"
	PathPasswordReset = "/password-reset"
	PathVerifyEmail   = "/verify-email"
	PathVerifyPhone   = "/verify-phone"
	PathOTP           = "/otp"
	PathDashboard     = "/dashboard"
	PathUnauthorized  = "/unauthorized"
)

// Policy 路径的授权要求.
type Policy struct {
	// Protected 是否需要会话.
	Protected bool `json:"protected"`

	// RequiredPermissions 需拥有其中任一权限.
	RequiredPermissions []string `json:"required_permissions,omitempty"`

	// RequiredRoles 需拥有其中任一角色.
	RequiredRoles []string `json:"required_roles,omitempty"`

	RequireEmailVerification bool `json:"require_email_verification"`
	RequirePhoneVerification bool `json:"require_phone_verification"`

	// MinRoleLevel 仅用于展示与审计，不参与授权判断.
	MinRoleLevel int `json:"min_role_level,omitempty"`
}

// clone 深拷贝切片字段.
func (p Policy) clone() Policy {
	if p.RequiredPermissions != nil {
		p.RequiredPermissions = append([]string(nil), p.RequiredPermissions...)
	}
	if p.RequiredRoles != nil {
		p.RequiredRoles = append([]string(nil), p.RequiredRoles...)
	}
	return p
}
