// Package logger 提供网关统一的结构化日志.
//
// 所有组件（授权中间件、限流、CSRF、RBAC）都只通过 Logger 接口输出日志，
// 底层由 zap 实现，核心逻辑不直接写 stdout.
package logger

import (
	"context"
	"io"
)

// 日志级别常量.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// 输出格式常量.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// 输出目标常量.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
	OutputFile   = "file"
)

// contextKey context 键类型.
type contextKey string

const (
	// RequestIDKey 用于在 context 中存储请求 ID.
	RequestIDKey contextKey = "logger:requestId"
	// TraceIDKey 用于在 context 中存储 traceId.
	TraceIDKey contextKey = "logger:traceId"
)

// Field 日志字段.
type Field struct {
	Key   string
	Value any
}

// Logger 日志记录器接口.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)

	// With 返回附加字段后的 logger.
	With(fields ...Field) Logger
	// WithContext 返回附加 context 中请求 ID / traceId 的 logger.
	WithContext(ctx context.Context) Logger

	Sync() error
	Close() error
}

// ContextWithRequestID 将请求 ID 注入 context.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestIDFromContext 从 context 读取请求 ID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// ContextWithTraceID 将 traceId 注入 context.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// NewLogger 按配置创建 logger.
func NewLogger(config *Config) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.ApplyDefaults()
	return newZapLogger(config, nil)
}

// NewWithWriter 创建写入指定 writer 的 logger，忽略 Output 配置.
//
// 主要用于测试中捕获日志输出.
func NewWithWriter(config *Config, w io.Writer) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &ConfigError{Field: "writer", Message: "writer cannot be nil"}
	}
	config.ApplyDefaults()
	return newZapLogger(config, w)
}

// MustNewLogger 创建 logger，失败时 panic.
func MustNewLogger(config *Config) Logger {
	l, err := NewLogger(config)
	if err != nil {
		panic(err)
	}
	return l
}
