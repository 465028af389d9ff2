package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLedger 基于 Redis 的台账.
//
// 所有键都带 TTL，过期由 Redis 完成，Sweep 不做任何事.
//
// 键名规范:
//   - {prefix}:win:{ip}_{start}      窗口计数 (String)
//   - {prefix}:sus:{ip}              可疑记录 (Hash: first_seen, requests)
//   - {prefix}:sus:{ip}:ua           观察到的 User-Agent (Set)
//   - {prefix}:sus:{ip}:paths        观察到的路径 (Set)
//   - {prefix}:blocked:{ip}          解封时间毫秒 (String)
type RedisLedger struct {
	client    redis.UniversalClient
	keyPrefix string
}

var _ Ledger = (*RedisLedger)(nil)

// decrementScript 计数减一，归零时删除键.
var decrementScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if n <= 0 then
  redis.call('DEL', KEYS[1])
  return 0
end
return n
`)

// RedisLedgerOption Redis 台账配置选项.
type RedisLedgerOption func(*RedisLedger)

// WithKeyPrefix 设置键前缀.
func WithKeyPrefix(prefix string) RedisLedgerOption {
	return func(l *RedisLedger) {
		l.keyPrefix = prefix
	}
}

// NewRedisLedger 创建 Redis 台账.
func NewRedisLedger(client redis.UniversalClient, opts ...RedisLedgerOption) (*RedisLedger, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	l := &RedisLedger{
		client:    client,
		keyPrefix: "gatekeeper:ratelimit",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *RedisLedger) windowKey(ip string, windowStart time.Time) string {
	return fmt.Sprintf("%s:win:%s", l.keyPrefix, WindowKey(ip, windowStart))
}

func (l *RedisLedger) suspiciousKey(ip string) string {
	return fmt.Sprintf("%s:sus:%s", l.keyPrefix, ip)
}

func (l *RedisLedger) userAgentsKey(ip string) string {
	return l.suspiciousKey(ip) + ":ua"
}

func (l *RedisLedger) pathsKey(ip string) string {
	return l.suspiciousKey(ip) + ":paths"
}

func (l *RedisLedger) blockedKey(ip string) string {
	return fmt.Sprintf("%s:blocked:%s", l.keyPrefix, ip)
}

// Blocked 实现 Ledger.
func (l *RedisLedger) Blocked(ctx context.Context, ip string, now time.Time) (bool, error) {
	val, err := l.client.Get(ctx, l.blockedKey(ip)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	until, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, fmt.Errorf("ratelimit: 解析解封时间: %w", err)
	}
	if now.UnixMilli() < until {
		return true, nil
	}

	// 解封时间已到但键尚未过期（时钟偏差）
	err = l.client.Del(ctx, l.blockedKey(ip), l.suspiciousKey(ip), l.userAgentsKey(ip), l.pathsKey(ip)).Err()
	return false, err
}

// Block 实现 Ledger.
//
// 可疑记录的过期时间同步为解封时间，解封时一并消失.
func (l *RedisLedger) Block(ctx context.Context, ip string, until time.Time) error {
	pipe := l.client.TxPipeline()
	pipe.Set(ctx, l.blockedKey(ip), until.UnixMilli(), 0)
	pipe.PExpireAt(ctx, l.blockedKey(ip), until)
	pipe.PExpireAt(ctx, l.suspiciousKey(ip), until)
	pipe.PExpireAt(ctx, l.userAgentsKey(ip), until)
	pipe.PExpireAt(ctx, l.pathsKey(ip), until)
	_, err := pipe.Exec(ctx)
	return err
}

// Count 实现 Ledger.
func (l *RedisLedger) Count(ctx context.Context, ip string, windowStart time.Time) (int, error) {
	n, err := l.client.Get(ctx, l.windowKey(ip, windowStart)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Increment 实现 Ledger.
//
// 计数键在窗口结束后再保留一个窗口，与内存台账的清理边界一致.
func (l *RedisLedger) Increment(ctx context.Context, ip string, windowStart time.Time, window time.Duration) (int, error) {
	key := l.windowKey(ip, windowStart)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.PExpire(ctx, key, 2*window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return int(incr.Val()), nil
}

// Decrement 实现 Ledger.
func (l *RedisLedger) Decrement(ctx context.Context, ip string, windowStart time.Time) error {
	return decrementScript.Run(ctx, l.client, []string{l.windowKey(ip, windowStart)}).Err()
}

// Suspicious 实现 Ledger.
func (l *RedisLedger) Suspicious(ctx context.Context, ip string) (*Suspicious, error) {
	pipe := l.client.Pipeline()
	fields := pipe.HGetAll(ctx, l.suspiciousKey(ip))
	uas := pipe.SMembers(ctx, l.userAgentsKey(ip))
	paths := pipe.SMembers(ctx, l.pathsKey(ip))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	data := fields.Val()
	if len(data) == 0 {
		return nil, nil
	}

	s := &Suspicious{
		UserAgents: uas.Val(),
		Paths:      paths.Val(),
	}
	slices.Sort(s.UserAgents)
	slices.Sort(s.Paths)
	if ms, err := strconv.ParseInt(data["first_seen"], 10, 64); err == nil {
		s.FirstSeen = time.UnixMilli(ms)
	}
	if n, err := strconv.Atoi(data["requests"]); err == nil {
		s.Requests = n
	}
	return s, nil
}

// MarkSuspicious 实现 Ledger.
func (l *RedisLedger) MarkSuspicious(ctx context.Context, ip, userAgent, path string, now time.Time) (*Suspicious, error) {
	key := l.suspiciousKey(ip)

	pipe := l.client.TxPipeline()
	created := pipe.HSetNX(ctx, key, "first_seen", now.UnixMilli())
	pipe.HIncrBy(ctx, key, "requests", 1)
	pipe.SAdd(ctx, l.userAgentsKey(ip), userAgent)
	pipe.SAdd(ctx, l.pathsKey(ip), path)
	remaining := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	ttl := remaining.Val()
	if created.Val() || ttl <= 0 {
		ttl = SuspiciousTTL
	}
	if err := l.expireSuspicious(ctx, ip, ttl); err != nil {
		return nil, err
	}
	return l.Suspicious(ctx, ip)
}

// Track 实现 Ledger.
func (l *RedisLedger) Track(ctx context.Context, ip string, now time.Time) error {
	key := l.suspiciousKey(ip)

	pipe := l.client.TxPipeline()
	created := pipe.HSetNX(ctx, key, "first_seen", now.UnixMilli())
	pipe.HIncrBy(ctx, key, "requests", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if created.Val() {
		return l.expireSuspicious(ctx, ip, SuspiciousTTL)
	}
	return nil
}

// expireSuspicious 让可疑记录的三个键共享同一过期时间.
func (l *RedisLedger) expireSuspicious(ctx context.Context, ip string, ttl time.Duration) error {
	pipe := l.client.Pipeline()
	pipe.PExpire(ctx, l.suspiciousKey(ip), ttl)
	pipe.PExpire(ctx, l.userAgentsKey(ip), ttl)
	pipe.PExpire(ctx, l.pathsKey(ip), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Sweep 实现 Ledger，Redis 键由 TTL 过期.
func (l *RedisLedger) Sweep(context.Context, time.Time, time.Duration) (int, error) {
	return 0, nil
}
