// Package clientip 提供调用方 IP 提取.
//
// 提取优先级为 X-Forwarded-For（第一个非可信代理 IP）、X-Real-IP、RemoteAddr，
// 全部无法解析时返回 Unknown，限流等组件按该字面量统一计数.
package clientip

import (
	"context"
	"net"
	"strings"
)

// Unknown 无法确定调用方 IP 时使用的占位值.
const Unknown = "unknown"

// contextKey context 键类型.
type contextKey string

const ipContextKey contextKey = "clientip:ip"

// WithIP 将 IP 存入 context.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipContextKey, ip)
}

// FromContext 从 context 获取 IP.
func FromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ipContextKey).(string)
	return ip, ok
}

// SplitHostPort 拆分地址中的 IP 与端口.
//
// 支持 "192.168.1.1"、"192.168.1.1:8080"、"[::1]"、"[::1]:8080"、"::1".
func SplitHostPort(addr string) (host, port string) {
	if addr == "" {
		return "", ""
	}

	if strings.HasPrefix(addr, "[") {
		if idx := strings.LastIndex(addr, "]:"); idx != -1 {
			return addr[1:idx], addr[idx+2:]
		}
		if strings.HasSuffix(addr, "]") {
			return addr[1 : len(addr)-1], ""
		}
	}

	if h, p, err := net.SplitHostPort(addr); err == nil {
		return h, p
	}
	return addr, ""
}

// ParseXForwardedFor 返回 X-Forwarded-For 中最左侧（最原始客户端）的 IP.
func ParseXForwardedFor(xff string) string {
	if idx := strings.Index(xff, ","); idx != -1 {
		return strings.TrimSpace(xff[:idx])
	}
	return strings.TrimSpace(xff)
}

// ParseXForwardedForWithTrust 从右向左返回第一个非可信代理 IP.
//
// 左侧部分可被调用方伪造，因此只信任可信代理追加的部分.
func ParseXForwardedForWithTrust(xff string, isTrusted func(ip string) bool) string {
	if xff == "" {
		return ""
	}

	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		ip := strings.TrimSpace(parts[i])
		if ip == "" {
			continue
		}
		if !isTrusted(ip) {
			return ip
		}
	}
	return strings.TrimSpace(parts[0])
}

// IsValidIP 检查字符串是否为有效的 IP 地址.
func IsValidIP(s string) bool {
	return net.ParseIP(s) != nil
}
