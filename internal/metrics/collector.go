// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// 默认桶：HTTP 请求含图像生成，上限放宽到两分钟
var (
	httpBuckets     = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}
	upstreamBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	stageBuckets    = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60}
	sizeBuckets     = prometheus.ExponentialBuckets(128, 4, 10)
)

// Collector 聚合 PromptFusion 的全部 Prometheus 指标
type Collector struct {
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
	httpBytes    *prometheus.HistogramVec // direction: in, out
	httpInFlight prometheus.Gauge

	upstreamCalls   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	tokens          *prometheus.CounterVec

	stageLatency  *prometheus.HistogramVec
	stageOutcomes *prometheus.CounterVec

	generations *prometheus.CounterVec

	cacheLookups *prometheus.CounterVec // result: hit, miss

	logger *zap.Logger
}

// Option 配置 Collector
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	version    string
	commit     string
}

// WithRegisterer 指定注册表；默认为 prometheus.DefaultRegisterer
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithBuildInfo 额外导出 build_info 常量指标
func WithBuildInfo(version, commit string) Option {
	return func(o *options) {
		o.version = version
		o.commit = commit
	}
}

// NewCollector 创建并注册指标；同一 Registerer 下 namespace 不可重复
func NewCollector(namespace string, logger *zap.Logger, opts ...Option) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	f := promauto.With(o.registerer)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: name, Help: help, Buckets: buckets,
		}, labels)
	}

	c := &Collector{
		httpRequests: counter("http_requests_total",
			"HTTP requests by route and status class.", "method", "path", "status"),
		httpLatency: histogram("http_request_duration_seconds",
			"HTTP request latency.", httpBuckets, "method", "path"),
		httpBytes: histogram("http_body_bytes",
			"HTTP body size by direction.", sizeBuckets, "path", "direction"),
		httpInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "http_requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		upstreamCalls: counter("upstream_calls_total",
			"Calls to the chat, vision and image services.", "service", "model", "status"),
		upstreamLatency: histogram("upstream_call_duration_seconds",
			"Upstream call latency.", upstreamBuckets, "service", "model"),
		tokens: counter("llm_tokens_total",
			"Tokens reported by the chat service.", "model", "kind"),

		stageLatency: histogram("stage_duration_seconds",
			"Pipeline stage latency.", stageBuckets, "pipeline", "stage"),
		stageOutcomes: counter("stage_outcomes_total",
			"Pipeline stage outcomes (ok, soft, error).", "pipeline", "stage", "outcome"),

		generations: counter("image_generations_total",
			"Image generations by backend.", "backend", "status"),

		cacheLookups: counter("cache_lookups_total",
			"Analysis cache lookups.", "cache_type", "result"),

		logger: logger.With(zap.String("component", "metrics")),
	}

	if o.version != "" {
		f.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "build_info",
			Help:        "Build metadata; value is always 1.",
			ConstLabels: prometheus.Labels{"version": o.version, "commit": o.commit},
		}).Set(1)
	}

	c.logger.Debug("metrics registered", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP
// =============================================================================

// RecordHTTPRequest 记录一次已完成的请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration, inBytes, outBytes int64) {
	c.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpLatency.WithLabelValues(method, path).Observe(d.Seconds())
	c.httpBytes.WithLabelValues(path, "in").Observe(float64(inBytes))
	c.httpBytes.WithLabelValues(path, "out").Observe(float64(outBytes))
}

// TrackInFlight 增加在途计数，返回的函数在请求结束时调用
func (c *Collector) TrackInFlight() func() {
	c.httpInFlight.Inc()
	return c.httpInFlight.Dec
}

// =============================================================================
// 🌐 上游服务
// =============================================================================

// RecordUpstreamCall 记录一次 llm / vision / image 调用
func (c *Collector) RecordUpstreamCall(service, model, status string, d time.Duration) {
	c.upstreamCalls.WithLabelValues(service, model, status).Inc()
	c.upstreamLatency.WithLabelValues(service, model).Observe(d.Seconds())
}

// RecordLLMTokens 累加 Token 用量
func (c *Collector) RecordLLMTokens(model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		c.tokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		c.tokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
}

// RecordGeneration 记录图像生成结果
func (c *Collector) RecordGeneration(backend, status string) {
	c.generations.WithLabelValues(backend, status).Inc()
}

// =============================================================================
// 🔗 流水线与缓存
// =============================================================================

// ObserveStage 实现 pipeline.Observer
func (c *Collector) ObserveStage(pipeline, stage, outcome string, d time.Duration) {
	c.stageLatency.WithLabelValues(pipeline, stage).Observe(d.Seconds())
	c.stageOutcomes.WithLabelValues(pipeline, stage, outcome).Inc()
}

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheLookups.WithLabelValues(cacheType, "hit").Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheLookups.WithLabelValues(cacheType, "miss").Inc()
}

// statusClass 把状态码归为 2xx..5xx
func statusClass(code int) string {
	if code < 200 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
