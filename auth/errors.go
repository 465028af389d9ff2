package auth

import "errors"

// 预定义错误.
var (
	// ErrSessionNotFound 请求未携带会话.
	ErrSessionNotFound = errors.New("auth: 会话不存在")

	// ErrSessionInvalid 会话令牌无效或已过期.
	ErrSessionInvalid = errors.New("auth: 会话无效")

	// ErrUserNotFound 用户记录不存在.
	ErrUserNotFound = errors.New("auth: 用户不存在")
)
