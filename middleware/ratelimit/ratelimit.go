// Package ratelimit 提供按 IP 的限流中间件，对可疑 IP 逐步加重处罚.
//
// 每个请求依次经过:
//  1. 解析调用方 IP，无法确定时为 "unknown"
//  2. 已封禁的 IP 直接返回 403 IP_BLOCKED
//  3. 清理过期台账
//  4. 可疑 IP 的限额减半，不低于 10
//  5. 识别可疑请求，可疑请求数超过 20 时封禁 1 小时
//  6. 窗口计数加一，超出限额时撤销计数并返回 429 RATE_LIMIT_EXCEEDED
//  7. 否则附加信息性限流响应头
//
// 计数与比较以台账的原子自增为准，同一 IP 的并发请求不会越过限额.
//
// 台账故障或策略内部 panic 时放行请求.
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Tsukikage7/gatekeeper/audit"
	"github.com/Tsukikage7/gatekeeper/clientip"
	"github.com/Tsukikage7/gatekeeper/logger"
	"github.com/Tsukikage7/gatekeeper/middleware/recovery"
	"github.com/Tsukikage7/gatekeeper/ratelimit"
	"github.com/Tsukikage7/gatekeeper/tracing"
	"github.com/Tsukikage7/gatekeeper/transport/response"
)

// PolicyName 策略名称.
const PolicyName = "ratelimit"

// 限流策略标识.
const (
	PolicyStandard   = "standard"
	PolicyRestricted = "restricted"
)

var (
	suspiciousAgents = []string{"bot", "crawler", "spider"}
	suspiciousPaths  = []string{"/admin", "/.env", "/wp-admin"}
)

// IsSuspicious 判断请求是否可疑：User-Agent 为空或包含爬虫标识，或路径包含常见探测目标.
//
// 匹配区分大小写.
func IsSuspicious(userAgent, path string) bool {
	if userAgent == "" {
		return true
	}
	for _, s := range suspiciousAgents {
		if strings.Contains(userAgent, s) {
			return true
		}
	}
	for _, s := range suspiciousPaths {
		if strings.Contains(path, s) {
			return true
		}
	}
	return false
}

// Limiter 限流中间件.
type Limiter struct {
	ledger ratelimit.Ledger
	opts   *options
	log    logger.Logger
}

// New 创建限流中间件.
func New(ledger ratelimit.Ledger, opts ...Option) (*Limiter, error) {
	if ledger == nil {
		return nil, ratelimit.ErrNilLedger
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logger.NewNop()
	}
	if o.auditor == nil {
		o.auditor = audit.New(o.logger)
	}
	if o.resolver == nil {
		o.resolver = clientip.NewResolver()
	}
	return &Limiter{
		ledger: ledger,
		opts:   o,
		log:    o.logger.With(logger.String("component", PolicyName)),
	}, nil
}

// Middleware 返回限流中间件，策略内部 panic 时放行.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	ropts := []recovery.Option{recovery.WithLogger(l.log)}
	if l.opts.metrics != nil {
		ropts = append(ropts, recovery.WithHook(l.opts.metrics.PanicRecovered))
	}
	return recovery.Guard(PolicyName, recovery.FailOpen, l.policy, ropts...)
}

// Ledger 返回限流台账.
func (l *Limiter) Ledger() ratelimit.Ledger {
	return l.ledger
}

func (l *Limiter) policy(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		now := l.opts.now()
		ip := l.opts.resolver.IP(r)
		ua := r.Header.Get("User-Agent")
		event := audit.Event{
			Route:     r.URL.Path,
			Method:    r.Method,
			IP:        ip,
			UserAgent: ua,
			Timestamp: now,
		}

		blocked, err := l.ledger.Blocked(ctx, ip, now)
		if err != nil {
			l.failOpen(ctx, "查询封禁状态失败", err, next, w, r)
			return
		}
		if blocked {
			event.Action = "blocked_ip_request"
			event.Reason = "ip blocked"
			l.opts.auditor.Security(ctx, event)
			l.reject(ctx, response.CodeIPBlocked)
			w.Header().Set("Retry-After", strconv.Itoa(int(ratelimit.BlockDuration.Seconds())))
			_ = response.WriteDenial(w, response.CodeIPBlocked,
				response.WithRetryAfter(int(ratelimit.BlockDuration.Seconds())))
			return
		}

		if _, err := l.ledger.Sweep(ctx, now, l.opts.window); err != nil {
			l.log.WithContext(ctx).With(logger.Err(err)).Warn("[RateLimit] 清理台账失败")
		}

		windowStart := ratelimit.WindowStart(now, l.opts.window)
		record, err := l.ledger.Suspicious(ctx, ip)
		if err != nil {
			l.failOpen(ctx, "读取可疑记录失败", err, next, w, r)
			return
		}
		limit := ratelimit.EffectiveLimit(l.opts.maxRequests, l.opts.progressivePenalties && record != nil)

		if IsSuspicious(ua, r.URL.Path) {
			record, err = l.ledger.MarkSuspicious(ctx, ip, ua, r.URL.Path, now)
			if err != nil {
				l.log.WithContext(ctx).With(logger.Err(err)).Warn("[RateLimit] 记录可疑请求失败")
			} else if record.Requests > ratelimit.BlockThreshold {
				l.block(ctx, event, record, now)
			}
		}

		windowEnd := windowStart.Add(l.opts.window)
		policy := PolicyStandard
		if record != nil {
			policy = PolicyRestricted
		}

		// 先计数再比较，并发请求各自拿到不同的计数值
		current, err := l.ledger.Increment(ctx, ip, windowStart, l.opts.window)
		if err != nil {
			l.failOpen(ctx, "窗口计数失败", err, next, w, r)
			return
		}

		if current > limit {
			l.undo(ctx, ip, windowStart)
			if record == nil {
				if err := l.ledger.Track(ctx, ip, now); err != nil {
					l.log.WithContext(ctx).With(logger.Err(err)).Warn("[RateLimit] 记录超限 IP 失败")
				} else {
					policy = PolicyRestricted
				}
			}
			event.Action = "rate_limit_exceeded"
			event.Reason = "rate limit exceeded"
			event.Details = map[string]any{"count": current - 1, "limit": limit}
			l.opts.auditor.Security(ctx, event)
			l.reject(ctx, response.CodeRateLimitExceeded)

			retryAfter := secondsUntil(now, windowEnd)
			setLimitHeaders(w.Header(), limit, 0, windowEnd, policy)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			_ = response.WriteDenial(w, response.CodeRateLimitExceeded,
				response.WithRetryAfter(retryAfter), response.WithLimit(limit))
			return
		}

		setLimitHeaders(w.Header(), limit, max(limit-current, 0), windowEnd, policy)
		if !l.opts.skipSuccessfulRequests {
			next.ServeHTTP(w, r)
			return
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if sw.status < http.StatusBadRequest {
			l.undo(ctx, ip, windowStart)
		}
	})
}

// undo 撤销本请求占用的窗口计数.
func (l *Limiter) undo(ctx context.Context, ip string, windowStart time.Time) {
	if err := l.ledger.Decrement(ctx, ip, windowStart); err != nil {
		l.log.WithContext(ctx).With(logger.Err(err)).Warn("[RateLimit] 撤销窗口计数失败")
	}
}

// block 封禁 IP 并记录累积的证据.
func (l *Limiter) block(ctx context.Context, event audit.Event, record *ratelimit.Suspicious, now time.Time) {
	until := now.Add(ratelimit.BlockDuration)
	if err := l.ledger.Block(ctx, event.IP, until); err != nil {
		l.log.WithContext(ctx).With(logger.Err(err)).Error("[RateLimit] 封禁 IP 失败")
		return
	}
	event.Action = "ip_blocked"
	event.Reason = "suspicious activity threshold exceeded"
	event.Details = map[string]any{
		"suspicious_requests": record.Requests,
		"first_seen":          record.FirstSeen,
		"user_agents":         record.UserAgents,
		"paths":               record.Paths,
		"unblock_at":          until,
	}
	l.opts.auditor.Security(ctx, event)
}

func (l *Limiter) reject(ctx context.Context, code response.Code) {
	tracing.RecordRejection(ctx, PolicyName, code.Name)
	if l.opts.metrics != nil {
		l.opts.metrics.RateLimitRejected(code.Name)
	}
}

func (l *Limiter) failOpen(ctx context.Context, msg string, err error, next http.Handler, w http.ResponseWriter, r *http.Request) {
	l.log.WithContext(ctx).With(logger.Err(err)).Warn("[RateLimit] " + msg + "，放行请求")
	next.ServeHTTP(w, r)
}

func setLimitHeaders(h http.Header, limit, remaining int, reset time.Time, policy string) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	h.Set("X-Rate-Limit-Policy", policy)
}

func secondsUntil(now, t time.Time) int {
	return int(math.Ceil(t.Sub(now).Seconds()))
}

// statusWriter 捕获响应状态码.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap 支持 http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
