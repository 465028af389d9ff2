// Package cache 提供网关共享的键值缓存.
//
// 保存两类数据：按角色集合缓存的权限快照，以及已撤销会话的 ID.
// 内存实现用于单实例部署，Redis 实现让多个网关实例读写同一份数据.
// 两种实现都在键前加 Config.KeyPrefix.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// 缓存类型.
const (
	TypeMemory = "memory"
	TypeRedis  = "redis"
)

// TTL 的特殊返回值，与 Redis 一致.
const (
	NoExpiry   time.Duration = -1
	KeyMissing time.Duration = -2
)

// Cache 缓存接口.
type Cache interface {
	// Set 写入值，ttl <= 0 表示不过期；字符串与 []byte 原样保存，其他值以 JSON 保存.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Get 读取值，键不存在或已过期时返回 ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	Exists(ctx context.Context, key string) (bool, error)

	// TTL 返回剩余有效期，键不存在返回 KeyMissing，不过期返回 NoExpiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}

// NewCache 按 Type 创建缓存.
func NewCache(cfg *Config, log logger.Logger) (Cache, error) {
	if log == nil {
		return nil, ErrNilLogger
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	if cfg.Type == TypeRedis {
		return NewRedisCache(cfg, log)
	}
	return NewMemoryCache(cfg, log)
}

func encode(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", ErrSerialize
	}
	return string(data), nil
}
