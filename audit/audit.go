// Package audit 提供授权决策的结构化审计事件.
//
// 每次拒绝、重定向、放行和性能度量都通过 Auditor 输出恰好一条结构化日志，
// 事件字段统一为 event_type / action / route / ip / user_agent / user_id / request_id / timestamp.
package audit

import (
	"context"
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// 事件类型.
const (
	TypeSecurity    = "security"
	TypeAccess      = "access"
	TypePerformance = "performance"
	TypeFailure     = "failure"
)

// maxUserAgentLength user agent 截断长度.
const maxUserAgentLength = 256

// Event 审计事件.
type Event struct {
	// Action 动作名称，如 access_denied_no_session、ip_blocked.
	Action string
	// Route 请求路径.
	Route string
	// Method HTTP 方法.
	Method string
	// IP 调用方 IP.
	IP string
	// UserAgent 调用方 User-Agent（会被截断）.
	UserAgent string
	// UserID 已知时的用户 ID.
	UserID string
	// RequestID 请求 ID.
	RequestID string
	// Reason 拒绝原因.
	Reason string
	// Details 附加上下文.
	Details map[string]any
	// Timestamp 事件时间，为零时取当前时间.
	Timestamp time.Time
}

// Auditor 审计记录器.
type Auditor struct {
	log logger.Logger
	now func() time.Time
}

// Option 审计记录器选项.
type Option func(*Auditor)

// WithClock 设置时钟，主要用于测试.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		if now != nil {
			a.now = now
		}
	}
}

// New 创建审计记录器.
func New(log logger.Logger, opts ...Option) *Auditor {
	if log == nil {
		panic("audit: 日志记录器不能为空")
	}
	a := &Auditor{
		log: log.With(logger.String("component", "audit")),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Security 记录安全事件（拒绝、重定向、封禁等），warn 级别.
func (a *Auditor) Security(ctx context.Context, e Event) {
	a.entry(ctx, TypeSecurity, e).Warn("[Audit] " + e.Action)
}

// Access 记录授权通过事件，info 级别.
func (a *Auditor) Access(ctx context.Context, e Event) {
	a.entry(ctx, TypeAccess, e).Info("[Audit] " + e.Action)
}

// Performance 记录耗时度量.
func (a *Auditor) Performance(ctx context.Context, name string, elapsed time.Duration, fields ...logger.Field) {
	fields = append(fields,
		logger.String("event_type", TypePerformance),
		logger.String("metric", name),
		logger.Duration("elapsed", elapsed),
	)
	a.log.WithContext(ctx).With(fields...).Info("[Audit] " + name)
}

// Failure 记录内部错误，保留原始 error 供诊断.
func (a *Auditor) Failure(ctx context.Context, msg string, err error, fields ...logger.Field) {
	fields = append(fields,
		logger.String("event_type", TypeFailure),
		logger.Err(err),
	)
	a.log.WithContext(ctx).With(fields...).Error("[Audit] " + msg)
}

// entry 构建带事件字段的 logger.
func (a *Auditor) entry(ctx context.Context, eventType string, e Event) logger.Logger {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = a.now()
	}
	if e.RequestID == "" {
		e.RequestID = logger.RequestIDFromContext(ctx)
	}

	fields := []logger.Field{
		logger.String("event_type", eventType),
		logger.String("action", e.Action),
		logger.String("route", e.Route),
		logger.String("ip", e.IP),
		logger.String("user_agent", truncate(e.UserAgent, maxUserAgentLength)),
		logger.Time("event_time", ts),
	}
	if e.Method != "" {
		fields = append(fields, logger.String("method", e.Method))
	}
	if e.UserID != "" {
		fields = append(fields, logger.String("user_id", e.UserID))
	}
	if e.RequestID != "" {
		fields = append(fields, logger.String("request_id", e.RequestID))
	}
	if e.Reason != "" {
		fields = append(fields, logger.String("reason", e.Reason))
	}
	if len(e.Details) > 0 {
		fields = append(fields, logger.Any("details", e.Details))
	}
	return a.log.With(fields...)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
