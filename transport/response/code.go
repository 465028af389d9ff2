package response

import "net/http"

// Code 拒绝响应码.
type Code struct {
	Name       string // 机器可读错误码，写入 code 字段
	Title      string // 简短错误描述，写入 error 字段
	Message    string // 默认说明，写入 message 字段
	HTTPStatus int    // 对应的 HTTP 状态码
}

// Error 实现 error 接口.
func (c Code) Error() string {
	return c.Name
}

// WithMessage 创建带自定义消息的错误码副本.
func (c Code) WithMessage(msg string) Code {
	c.Message = msg
	return c
}

// Is 判断是否为指定错误码.
func (c Code) Is(target Code) bool {
	return c.Name == target.Name
}

// 预定义错误码.
var (
	// 授权
	CodeUnauthenticated      = Code{"UNAUTHENTICATED", "Unauthorized", "Authentication required", http.StatusUnauthorized}
	CodeForbidden            = Code{"FORBIDDEN", "Forbidden", "Insufficient permissions", http.StatusForbidden}
	CodeVerificationRequired = Code{"VERIFICATION_REQUIRED", "Forbidden", "Contact verification required", http.StatusForbidden}

	// 限流
	CodeIPBlocked         = Code{"IP_BLOCKED", "Access denied", "Your IP has been temporarily blocked due to suspicious activity", http.StatusForbidden}
	CodeRateLimitExceeded = Code{"RATE_LIMIT_EXCEEDED", "Too many requests", "Rate limit exceeded, please try again later", http.StatusTooManyRequests}

	// CSRF
	CodeCSRFTokenRequired   = Code{"CSRF_TOKEN_REQUIRED", "CSRF protection", "CSRF token required for this request", http.StatusForbidden}
	CodeInvalidCSRFToken    = Code{"INVALID_CSRF_TOKEN", "CSRF protection", "Invalid CSRF token", http.StatusForbidden}
	CodeCSRFValidationError = Code{"CSRF_VALIDATION_ERROR", "CSRF protection", "CSRF validation failed", http.StatusForbidden}
)
