package server

import "errors"

// 预定义错误.
var (
	// ErrServerRunning 应用已在运行.
	ErrServerRunning = errors.New("server: 应用已在运行")

	// ErrNilHandler 处理器为空.
	ErrNilHandler = errors.New("server: 处理器不能为空")

	// ErrNilLogger 日志记录器为空.
	ErrNilLogger = errors.New("server: 日志记录器不能为空")
)
