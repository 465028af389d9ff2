// Package tracing 为网关请求与授权决策提供 OpenTelemetry 链路追踪.
//
// 每个请求一个 server span，授权结果以属性与事件的形式记录在同一 span 上，
// traceId 同时写入 logger context，日志与链路可以互相关联.
package tracing

// Config 链路追踪配置.
type Config struct {
	// Enabled 是否启用链路追踪
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// Endpoint OTLP HTTP Collector 端点，如 localhost:4318
	Endpoint string `json:"endpoint" yaml:"endpoint" mapstructure:"endpoint"`

	// Headers 导出请求头[可选]
	Headers map[string]string `json:"headers" yaml:"headers" mapstructure:"headers"`

	// Insecure 使用 HTTP 而不是 HTTPS
	Insecure bool `json:"insecure" yaml:"insecure" mapstructure:"insecure"`

	// SamplingRate 采样率 (0.0-1.0)，超出范围按 1.0 处理
	SamplingRate float64 `json:"sampling_rate" yaml:"sampling_rate" mapstructure:"sampling_rate"`
}
