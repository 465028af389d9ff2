// Package recovery 提供请求策略的 panic 恢复.
//
// 每个子策略用 Guard 包裹并声明失败模式:
//   - FailOpen: 策略内部 panic 时放行请求（限流）
//   - FailClosed: 策略内部 panic 时写入拒绝响应（CSRF、授权）
//
// 下游处理器中的 panic 不属于策略，Guard 原样向上抛出，由最外层 HTTPMiddleware 兜底.
package recovery

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// Mode 失败模式.
type Mode int

const (
	// FailOpen 策略 panic 时放行.
	FailOpen Mode = iota
	// FailClosed 策略 panic 时拒绝.
	FailClosed
)

// String 返回失败模式名称.
func (m Mode) String() string {
	if m == FailClosed {
		return "fail_closed"
	}
	return "fail_open"
}

// Hook panic 通知函数，参数为策略名称.
type Hook func(policy string)

// Options 配置选项.
type Options struct {
	// Logger 日志记录器，必需.
	Logger logger.Logger

	// Deny FailClosed 模式下写入的拒绝响应，默认 500.
	Deny http.Handler

	// OnPanic panic 通知，用于指标.
	OnPanic Hook

	// StackSize 堆栈大小，默认 64KB.
	StackSize int
}

// Option 是配置函数.
type Option func(*Options)

// WithLogger 设置日志记录器.
func WithLogger(l logger.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithDeny 设置 FailClosed 模式下的拒绝响应.
func WithDeny(h http.Handler) Option {
	return func(o *Options) {
		o.Deny = h
	}
}

// WithHook 设置 panic 通知.
func WithHook(h Hook) Option {
	return func(o *Options) {
		o.OnPanic = h
	}
}

// WithStackSize 设置堆栈大小.
func WithStackSize(size int) Option {
	return func(o *Options) {
		o.StackSize = size
	}
}

func defaultOptions() *Options {
	return &Options{
		StackSize: 64 * 1024,
		Deny: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}),
	}
}

func applyOptions(opts []Option) *Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// captureStack 捕获当前 goroutine 的堆栈.
func captureStack(size int) []byte {
	stack := make([]byte, size)
	n := runtime.Stack(stack, false)
	return stack[:n]
}

// PanicError 表示 panic 错误.
type PanicError struct {
	// Value 是 panic 的值.
	Value any
	// Stack 是堆栈信息.
	Stack []byte
}

// Error 实现 error 接口.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap 返回原始错误（如果 panic 值是 error）.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
