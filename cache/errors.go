package cache

import "errors"

var (
	// ErrNotFound 键不存在或已过期.
	ErrNotFound = errors.New("cache: 键不存在")

	// ErrNilConfig 配置为空.
	ErrNilConfig = errors.New("cache: 配置为空")

	// ErrEmptyAddr Redis 地址为空.
	ErrEmptyAddr = errors.New("cache: redis 地址为空")

	// ErrNilLogger 日志记录器为空.
	ErrNilLogger = errors.New("cache: 日志记录器为空")

	// ErrSerialize 值无法序列化.
	ErrSerialize = errors.New("cache: 值无法序列化")
)
