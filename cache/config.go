package cache

import (
	"fmt"
	"time"
)

// 默认配置.
const (
	DefaultKeyPrefix       = "gatekeeper:"
	DefaultPoolSize        = 10
	DefaultTimeout         = 3 * time.Second
	DefaultMaxSize         = 10000
	DefaultCleanupInterval = time.Minute
)

// Config 缓存配置.
type Config struct {
	// Type memory 或 redis，默认 memory.
	Type string `json:"type" yaml:"type" mapstructure:"type"`

	// KeyPrefix 所有键的前缀.
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`

	// Redis
	Addr     string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password string        `json:"password" yaml:"password" mapstructure:"password"`
	DB       int           `json:"db" yaml:"db" mapstructure:"db"`
	PoolSize int           `json:"pool_size" yaml:"pool_size" mapstructure:"pool_size"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// 内存
	MaxSize         int           `json:"max_size" yaml:"max_size" mapstructure:"max_size"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" mapstructure:"cleanup_interval"`
}

// ConfigError 配置错误.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("cache: 配置 %s 无效: %s", e.Field, e.Message)
}

// Validate 校验配置.
func (c *Config) Validate() error {
	if c == nil {
		return ErrNilConfig
	}
	switch c.Type {
	case "", TypeMemory:
		return nil
	case TypeRedis:
		if c.Addr == "" {
			return &ConfigError{Field: "addr", Message: "redis 缓存必须配置地址"}
		}
		return nil
	}
	return &ConfigError{Field: "type", Message: "不支持的缓存类型 " + c.Type}
}

// ApplyDefaults 填充默认值.
func (c *Config) ApplyDefaults() {
	if c.Type == "" {
		c.Type = TypeMemory
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultMaxSize
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
}
