package server

import (
	"context"
	"os"
	"time"

	"github.com/Tsukikage7/gatekeeper/logger"
)

// AppOption App 配置选项.
type AppOption func(*appOptions)

// CleanupFunc 关闭阶段执行的清理函数.
type CleanupFunc func(ctx context.Context) error

// cleanup 清理任务，Priority 小的先执行.
type cleanup struct {
	name     string
	fn       CleanupFunc
	priority int
}

type appOptions struct {
	name            string
	version         string
	logger          logger.Logger
	gracefulTimeout time.Duration
	signals         []os.Signal
	cleanups        []cleanup
}

func defaultAppOptions() *appOptions {
	return &appOptions{
		name:            "gatekeeper",
		version:         "dev",
		gracefulTimeout: 30 * time.Second,
	}
}

// WithName 设置应用名称.
func WithName(name string) AppOption {
	return func(o *appOptions) {
		o.name = name
	}
}

// WithVersion 设置应用版本.
func WithVersion(version string) AppOption {
	return func(o *appOptions) {
		o.version = version
	}
}

// WithLogger 设置日志记录器（必需）.
func WithLogger(log logger.Logger) AppOption {
	return func(o *appOptions) {
		o.logger = log
	}
}

// WithGracefulTimeout 设置优雅关闭超时，默认 30 秒.
func WithGracefulTimeout(d time.Duration) AppOption {
	return func(o *appOptions) {
		if d > 0 {
			o.gracefulTimeout = d
		}
	}
}

// WithSignals 设置触发关闭的信号，默认 SIGINT 与 SIGTERM.
func WithSignals(signals ...os.Signal) AppOption {
	return func(o *appOptions) {
		o.signals = signals
	}
}

// WithCleanup 注册关闭阶段的清理任务，在全部服务器停止后按优先级升序执行.
func WithCleanup(name string, fn CleanupFunc, priority int) AppOption {
	return func(o *appOptions) {
		o.cleanups = append(o.cleanups, cleanup{name: name, fn: fn, priority: priority})
	}
}

// WithCloser 注册 io.Closer 形式的清理任务.
func WithCloser(name string, closer interface{ Close() error }, priority int) AppOption {
	return WithCleanup(name, func(context.Context) error {
		return closer.Close()
	}, priority)
}

// HTTPConfig HTTP 服务器配置.
type HTTPConfig struct {
	Addr              string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	ReadTimeout       time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// ApplyDefaults 应用默认值.
func (c *HTTPConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// HTTPOption HTTP 服务器配置选项.
type HTTPOption func(*httpOptions)

type httpOptions struct {
	name   string
	config HTTPConfig
	logger logger.Logger
}

func defaultHTTPOptions() *httpOptions {
	o := &httpOptions{name: "http"}
	o.config.ApplyDefaults()
	return o
}

// WithHTTPName 设置服务器名称.
func WithHTTPName(name string) HTTPOption {
	return func(o *httpOptions) {
		o.name = name
	}
}

// WithHTTPConfig 设置服务器配置，零值字段保持默认值.
func WithHTTPConfig(cfg HTTPConfig) HTTPOption {
	return func(o *httpOptions) {
		cfg.ApplyDefaults()
		o.config = cfg
	}
}

// WithAddr 设置监听地址.
func WithAddr(addr string) HTTPOption {
	return func(o *httpOptions) {
		if addr != "" {
			o.config.Addr = addr
		}
	}
}

// WithHTTPLogger 设置日志记录器.
func WithHTTPLogger(log logger.Logger) HTTPOption {
	return func(o *httpOptions) {
		o.logger = log
	}
}
