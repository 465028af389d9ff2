package health

import (
	"context"
)

// Pinger 可探测连通性的依赖，如 cache.Cache、redis.UniversalClient 的包装.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc 函数式 Pinger.
type PingFunc func(ctx context.Context) error

// Ping 实现 Pinger.
func (f PingFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// PingChecker 基于 Ping 的检查器.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker 创建 Ping 检查器.
func NewPingChecker(name string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: pinger}
}

// Name 返回检查器名称.
func (c *PingChecker) Name() string {
	return c.name
}

// Check 执行 Ping.
func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.pinger.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDown, Message: err.Error()}
	}
	return CheckResult{Status: StatusUp}
}
