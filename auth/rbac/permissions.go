package rbac

// 内置角色名.
const (
	RoleUser          = "user"
	RoleBusinessOwner = "business_owner"
	RoleModerator     = "moderator"
	RoleAdmin         = "admin"
	RoleSuperAdmin    = "super_admin"
)

// 通配权限.
const (
	// PermAll 授予全部权限.
	PermAll = "*"
)

// 个人资料.
const (
	PermProfileRead   = "profile.read"
	PermProfileUpdate = "profile.update"
)

// 商家.
const (
	PermBusinessAll     = "business.*"
	PermBusinessRead    = "business.read"
	PermBusinessCreate  = "business.create"
	PermBusinessUpdate  = "business.update"
	PermBusinessDelete  = "business.delete"
	PermBusinessManage  = "business.manage"
	PermBusinessClaim   = "business.claim"
	PermBusinessViewOwn = "business.view_own"
	PermBusinessViewAll = "business.view_all"
)

// 评价.
const (
	PermReviewAll       = "review.*"
	PermReviewRead      = "review.read"
	PermReviewCreate    = "review.create"
	PermReviewUpdateOwn = "review.update_own"
	PermReviewDeleteOwn = "review.delete_own"
	PermReviewRespond   = "review.respond"
	PermReviewModerate  = "review.moderate"
)

// 广告.
const (
	PermAdsAll    = "ads.*"
	PermAdsRead   = "ads.read"
	PermAdsCreate = "ads.create"
	PermAdsUpdate = "ads.update"
	PermAdsDelete = "ads.delete"
	PermAdsManage = "ads.manage"
)

// 报价.
const (
	PermEstimateAll    = "estimate.*"
	PermEstimateRead   = "estimate.read"
	PermEstimateCreate = "estimate.create"
	PermEstimateUpdate = "estimate.update"
	PermEstimateDelete = "estimate.delete"
)

// 订阅.
const (
	PermSubscriptionRead   = "subscription.read"
	PermSubscriptionManage = "subscription.manage"
)

// 工单.
const (
	PermJobRead    = "job.read"
	PermJobCreate  = "job.create"
	PermJobUpdate  = "job.update"
	PermJobDelete  = "job.delete"
	PermJobViewOwn = "job.view_own"
	PermJobViewAll = "job.view_all"
)

// 配送.
const (
	PermDeliveryRead   = "delivery.read"
	PermDeliveryCreate = "delivery.create"
	PermDeliveryManage = "delivery.manage"
)

// 数据分析.
const (
	PermAnalyticsRead    = "analytics.read"
	PermAnalyticsViewAll = "analytics.view_all"
)

// 用户管理.
const (
	PermUserAll     = "user.*"
	PermUserRead    = "user.read"
	PermUserUpdate  = "user.update"
	PermUserDelete  = "user.delete"
	PermUserManage  = "user.manage"
	PermUserViewAll = "user.view_all"
)

// 角色管理.
const (
	PermRoleAssign = "role.assign"
	PermRoleManage = "role.manage"
)

// 内容审核.
const (
	PermContentModerate = "content.moderate"
	PermContentDelete   = "content.delete"
)

// 本地服务中心.
const (
	PermLocalHubRead   = "localhub.read"
	PermLocalHubManage = "localhub.manage"
)

// 系统.
const (
	PermSystemSettings = "system.settings"
	PermSystemAudit    = "system.audit"
)

// ResourceActions 资源动作词表，AvailableActions 按此顺序检查.
var ResourceActions = []string{"create", "read", "update", "delete", "manage"}

// DefaultRoles 返回内置角色定义.
//
// 每个角色只声明自身新增的权限，继承关系通过 Extends 声明.
func DefaultRoles() []RoleDefinition {
	return []RoleDefinition{
		{
			Name:        RoleUser,
			DisplayName: "User",
			Level:       1,
			Permissions: []string{
				PermProfileRead, PermProfileUpdate,
				PermBusinessRead, PermBusinessClaim,
				PermReviewRead, PermReviewCreate, PermReviewUpdateOwn, PermReviewDeleteOwn,
				PermEstimateRead,
				PermDeliveryRead,
				PermJobViewOwn,
			},
		},
		{
			Name:        RoleBusinessOwner,
			DisplayName: "Business Owner",
			Level:       2,
			Extends:     RoleUser,
			Permissions: []string{
				PermBusinessCreate, PermBusinessUpdate, PermBusinessManage, PermBusinessViewOwn,
				PermReviewRespond,
				PermAdsAll,
				PermEstimateAll,
				PermSubscriptionRead, PermSubscriptionManage,
				PermJobRead, PermJobCreate, PermJobUpdate,
				PermDeliveryCreate,
				PermAnalyticsRead,
				PermLocalHubRead,
			},
		},
		{
			Name:        RoleModerator,
			DisplayName: "Moderator",
			Level:       3,
			Extends:     RoleBusinessOwner,
			Permissions: []string{
				PermReviewModerate,
				PermContentModerate, PermContentDelete,
				PermUserRead,
				PermBusinessViewAll,
			},
		},
		{
			Name:        RoleAdmin,
			DisplayName: "Administrator",
			Level:       4,
			Extends:     RoleModerator,
			Permissions: []string{
				PermBusinessAll,
				PermUserAll,
				PermReviewAll,
				PermRoleAssign,
				PermAnalyticsViewAll,
				PermJobViewAll, PermJobDelete,
				PermDeliveryManage,
				PermLocalHubManage,
				PermSystemAudit,
			},
		},
		{
			Name:        RoleSuperAdmin,
			DisplayName: "Super Administrator",
			Level:       5,
			Extends:     RoleAdmin,
			Permissions: []string{PermAll},
		},
	}
}
