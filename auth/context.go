package auth

import "context"

// contextKey 上下文键类型.
type contextKey string

const principalContextKey contextKey = "auth:principal"

// WithPrincipal 将身份主体存入 context.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, principal)
}

// FromContext 从 context 获取身份主体.
func FromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey).(*Principal)
	return principal, ok && principal != nil
}

// MustFromContext 从 context 获取身份主体，不存在则 panic.
func MustFromContext(ctx context.Context) *Principal {
	principal, ok := FromContext(ctx)
	if !ok {
		panic("auth: 上下文中未找到主体")
	}
	return principal
}
