// Package ratelimit 提供按 IP 的限流台账.
//
// 台账记录三类状态:
//   - 窗口计数：键为 ip_窗口起点毫秒，窗口过期后清除
//   - 可疑 IP 记录：首次出现时间、可疑请求数、观察到的 User-Agent 与路径集合，24 小时后清除
//   - 封禁 IP：带解封时间，到期后同时移除可疑记录
//
// MemoryLedger 适用于单实例部署，RedisLedger 在多个网关实例之间共享状态.
package ratelimit

import (
	"context"
	"strconv"
	"time"
)

// 默认参数.
const (
	// DefaultMaxRequests 窗口内默认最大请求数.
	DefaultMaxRequests = 100

	// DefaultWindow 默认窗口大小.
	DefaultWindow = 15 * time.Minute

	// MinSuspiciousLimit 可疑 IP 的最低限额.
	MinSuspiciousLimit = 10

	// BlockThreshold 可疑请求数超过该值时封禁.
	BlockThreshold = 20

	// BlockDuration 封禁时长.
	BlockDuration = time.Hour

	// SuspiciousTTL 可疑记录保留时长.
	SuspiciousTTL = 24 * time.Hour
)

// Suspicious 可疑 IP 记录.
type Suspicious struct {
	FirstSeen  time.Time `json:"first_seen"`
	Requests   int       `json:"suspicious_requests"`
	UserAgents []string  `json:"user_agents"`
	Paths      []string  `json:"paths"`
}

// Ledger 限流台账.
type Ledger interface {
	// Blocked 检查 IP 是否处于封禁期，解封时间已到时同时清除封禁与可疑记录.
	Blocked(ctx context.Context, ip string, now time.Time) (bool, error)

	// Block 封禁 IP 直到 until.
	Block(ctx context.Context, ip string, until time.Time) error

	// Count 返回窗口计数.
	Count(ctx context.Context, ip string, windowStart time.Time) (int, error)

	// Increment 窗口计数加一并返回新值.
	Increment(ctx context.Context, ip string, windowStart time.Time, window time.Duration) (int, error)

	// Decrement 撤销一次计数，计数归零时移除窗口.
	Decrement(ctx context.Context, ip string, windowStart time.Time) error

	// Suspicious 返回可疑记录，不存在时返回 nil.
	Suspicious(ctx context.Context, ip string) (*Suspicious, error)

	// MarkSuspicious 记录一次可疑请求：不存在时以计数 1 创建，否则计数加一并累积 User-Agent 与路径.
	MarkSuspicious(ctx context.Context, ip, userAgent, path string, now time.Time) (*Suspicious, error)

	// Track 在记录不存在时以计数 0 创建可疑记录.
	Track(ctx context.Context, ip string, now time.Time) error

	// Sweep 清除过期窗口、过期可疑记录与到期封禁，返回清除条数.
	Sweep(ctx context.Context, now time.Time, window time.Duration) (int, error)
}

// WindowStart 返回 now 所在窗口的起点.
func WindowStart(now time.Time, window time.Duration) time.Time {
	ms := window.Milliseconds()
	if ms <= 0 {
		return now
	}
	return time.UnixMilli(now.UnixMilli() / ms * ms)
}

// WindowKey 返回窗口计数键.
func WindowKey(ip string, windowStart time.Time) string {
	return ip + "_" + strconv.FormatInt(windowStart.UnixMilli(), 10)
}

// EffectiveLimit 返回 IP 的有效限额，可疑 IP 减半且不低于 MinSuspiciousLimit.
func EffectiveLimit(maxRequests int, suspicious bool) int {
	if !suspicious {
		return maxRequests
	}
	return max(maxRequests/2, MinSuspiciousLimit)
}
