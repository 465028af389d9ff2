package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// redisCache Redis 缓存.
type redisCache struct {
	client *redis.Client
	prefix string
	log    logger.Logger
}

// NewRedisCache 连接 Redis 并 Ping 一次，失败时返回错误.
func NewRedisCache(cfg *Config, log logger.Logger) (Cache, error) {
	switch {
	case log == nil:
		return nil, ErrNilLogger
	case cfg == nil:
		return nil, ErrNilConfig
	case cfg.Addr == "":
		return nil, ErrEmptyAddr
	}
	cfg.ApplyDefaults()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: 连接 redis %s: %w", cfg.Addr, err)
	}

	log.With(logger.String("addr", cfg.Addr), logger.Int("db", cfg.DB)).Info("[Cache] redis 已连接")
	return &redisCache{client: client, prefix: cfg.KeyPrefix, log: log}, nil
}

// Set 实现 Cache.
func (r *redisCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return err
	}
	if ttl < 0 {
		ttl = 0
	}
	return r.check("SET", key, r.client.Set(ctx, r.prefix+key, data, ttl).Err())
}

// Get 实现 Cache.
func (r *redisCache) Get(ctx context.Context, key string) (string, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return v, r.check("GET", key, err)
}

// Exists 实现 Cache.
func (r *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.prefix+key).Result()
	return n > 0, r.check("EXISTS", key, err)
}

// TTL 实现 Cache.
func (r *redisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := r.client.PTTL(ctx, r.prefix+key).Result()
	if err := r.check("PTTL", key, err); err != nil {
		return 0, err
	}
	// go-redis v8 对 -1/-2 原样返回整数
	switch d {
	case -1, -time.Millisecond:
		return NoExpiry, nil
	case -2, -2 * time.Millisecond:
		return KeyMissing, nil
	}
	return d, nil
}

// Ping 实现 Cache.
func (r *redisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close 实现 Cache.
func (r *redisCache) Close() error {
	return r.client.Close()
}

func (r *redisCache) check(op, key string, err error) error {
	if err != nil {
		r.log.With(logger.String("op", op), logger.String("key", key), logger.Err(err)).Error("[Cache] redis 命令失败")
	}
	return err
}
