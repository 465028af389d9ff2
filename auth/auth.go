// Package auth 定义网关授权所需的身份类型与外部协作方接口.
//
// 会话由外部认证服务签发，用户与角色记录保存在外部数据服务中，
// 网关只通过 SessionProvider 与 UserStore 两个接口消费它们:
//
//	sess, err := sessions.Session(ctx, r)
//	if err != nil || sess == nil {
//	    // 视为无会话
//	}
//	user, err := users.User(ctx, sess.UserID)
//	roles := user.RoleNames()
//
// 授权通过后 Principal 写入请求 context，下游处理器用 FromContext 读取.
package auth

import (
	"context"
	"net/http"
	"time"
)

// Session 调用方会话.
type Session struct {
	// ID 会话 ID.
	ID string

	// UserID 会话所属用户 ID.
	UserID string

	// Email 会话签发时的邮箱（可选）.
	Email string

	// ExpiresAt 过期时间.
	ExpiresAt time.Time
}

// Expired 检查会话是否在 now 之前过期.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// RoleAssignment 用户与角色的关联记录.
type RoleAssignment struct {
	Role string `json:"role"`
}

// User 数据服务中的用户记录.
type User struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	Name          string           `json:"name"`
	EmailVerified bool             `json:"email_verified"`
	PhoneVerified bool             `json:"phone_verified"`
	Roles         []RoleAssignment `json:"roles"`
}

// RoleNames 返回关联记录中的角色名，保留原始顺序并忽略空值.
func (u *User) RoleNames() []string {
	if u == nil {
		return nil
	}
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		if r.Role != "" {
			names = append(names, r.Role)
		}
	}
	return names
}

// Principal 已通过授权的身份主体.
type Principal struct {
	// ID 用户 ID.
	ID string

	// Email 用户邮箱.
	Email string

	// Name 用户名称.
	Name string

	// Roles 角色名列表.
	Roles []string

	// Level 最高角色等级.
	Level int

	// SessionID 会话 ID.
	SessionID string
}

// HasRole 检查主体是否具有指定角色.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// SessionProvider 会话提供方.
//
// 返回 (nil, nil) 或 ErrSessionNotFound 表示请求不携带有效会话；
// 其他错误表示认证服务故障.
type SessionProvider interface {
	Session(ctx context.Context, r *http.Request) (*Session, error)
}

// SessionProviderFunc 函数式 SessionProvider.
type SessionProviderFunc func(ctx context.Context, r *http.Request) (*Session, error)

// Session 实现 SessionProvider.
func (f SessionProviderFunc) Session(ctx context.Context, r *http.Request) (*Session, error) {
	return f(ctx, r)
}

// UserStore 用户记录查询.
//
// 用户不存在时返回 ErrUserNotFound.
type UserStore interface {
	User(ctx context.Context, id string) (*User, error)
}

// UserStoreFunc 函数式 UserStore.
type UserStoreFunc func(ctx context.Context, id string) (*User, error)

// User 实现 UserStore.
func (f UserStoreFunc) User(ctx context.Context, id string) (*User, error) {
	return f(ctx, id)
}
