package ratelimit

import "errors"

// 预定义错误.
var (
	// ErrNilLedger 台账为空.
	ErrNilLedger = errors.New("ratelimit: 台账不能为空")

	// ErrNilClient Redis 客户端为空.
	ErrNilClient = errors.New("ratelimit: Redis 客户端不能为空")
)
