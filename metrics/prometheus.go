// Package metrics 提供网关的 Prometheus 指标.
//
// 指标注册在私有 Registry 上，通过 Handler 暴露:
//
//	collector, _ := metrics.New(metrics.DefaultConfig())
//	mux.Handle(collector.Path(), collector.Handler())
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 授权结果标签值.
const (
	OutcomeGranted    = "granted"
	OutcomePublic     = "public"
	OutcomeRedirected = "redirected"
	OutcomeDenied     = "denied"
	OutcomeError      = "error"
)

// Collector Prometheus 指标收集器.
type Collector struct {
	config *Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	authzDecisions    *prometheus.CounterVec
	authzDuration     prometheus.Histogram
	ratelimitRejects  *prometheus.CounterVec
	csrfRejects       *prometheus.CounterVec
	rbacDecisionCache *prometheus.CounterVec
	middlewarePanics  *prometheus.CounterVec
	janitorRuns       *prometheus.CounterVec

	registry *prometheus.Registry
}

// New 创建指标收集器.
func New(cfg *Config) (*Collector, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	cfg.ApplyDefaults()
	ns := cfg.Namespace

	// 私有注册表，避免与默认注册表冲突
	registry := prometheus.NewRegistry()

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	c.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	c.authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "authz_decisions_total",
			Help:      "Authorization decisions by outcome",
		},
		[]string{"outcome"},
	)

	c.authzDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "authz_duration_seconds",
			Help:      "Time spent deciding authorization",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3},
		},
	)

	c.ratelimitRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "ratelimit_rejections_total",
			Help:      "Requests rejected by the rate limiter",
		},
		[]string{"code"},
	)

	c.csrfRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "csrf_rejections_total",
			Help:      "Requests rejected by CSRF protection",
		},
		[]string{"code"},
	)

	c.rbacDecisionCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rbac_decision_cache_total",
			Help:      "Permission decision cache lookups",
		},
		[]string{"result"},
	)

	c.middlewarePanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "middleware_panics_total",
			Help:      "Panics recovered inside request policies",
		},
		[]string{"policy"},
	)

	c.janitorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Name:      "janitor_runs_total",
			Help:      "Background maintenance job runs",
		},
		[]string{"job", "result"},
	)

	collectors := []prometheus.Collector{
		c.httpRequestsTotal,
		c.httpRequestDuration,
		c.authzDecisions,
		c.authzDuration,
		c.ratelimitRejects,
		c.csrfRejects,
		c.rbacDecisionCache,
		c.middlewarePanics,
		c.janitorRuns,
	}
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRegisterMetric, err)
		}
	}

	return c, nil
}

// MustNew 创建指标收集器，失败时 panic.
func MustNew(cfg *Config) *Collector {
	c, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return c
}

// RecordHTTPRequest 记录 HTTP 请求.
func (c *Collector) RecordHTTPRequest(method, statusCode string, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, statusCode).Inc()
	c.httpRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// AuthzDecision 记录一次授权决策及其耗时.
func (c *Collector) AuthzDecision(outcome string, elapsed time.Duration) {
	c.authzDecisions.WithLabelValues(outcome).Inc()
	c.authzDuration.Observe(elapsed.Seconds())
}

// RateLimitRejected 记录限流拒绝.
func (c *Collector) RateLimitRejected(code string) {
	c.ratelimitRejects.WithLabelValues(code).Inc()
}

// CSRFRejected 记录 CSRF 拒绝.
func (c *Collector) CSRFRejected(code string) {
	c.csrfRejects.WithLabelValues(code).Inc()
}

// DecisionCacheLookup 记录权限决策缓存查询.
func (c *Collector) DecisionCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.rbacDecisionCache.WithLabelValues(result).Inc()
}

// PanicRecovered 记录策略中恢复的 panic.
func (c *Collector) PanicRecovered(policy string) {
	c.middlewarePanics.WithLabelValues(policy).Inc()
}

// JanitorRun 记录后台任务执行结果.
func (c *Collector) JanitorRun(job string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.janitorRuns.WithLabelValues(job, result).Inc()
}

// Registry 返回私有注册表.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 metrics 的 HTTP 处理器.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Path 返回 metrics 路径.
func (c *Collector) Path() string {
	return c.config.Path
}
