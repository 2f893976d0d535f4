// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 层级图指标
	buildsTotal        *prometheus.CounterVec
	buildDuration      prometheus.Histogram
	graphNodes         *prometheus.GaugeVec
	graphEdges         *prometheus.GaugeVec
	graphWarnings      *prometheus.CounterVec
	sourceAvailable    *prometheus.GaugeVec
	sourceLoadDuration *prometheus.HistogramVec

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器；指标注册到默认 registry，namespace 必须唯一
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 层级图指标
	c.buildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "builds_total",
			Help:      "Total number of hierarchy graph builds",
		},
		[]string{"status"},
	)

	c.buildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "build_duration_seconds",
			Help:      "Time to load sources and build the hierarchy graph",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
	)

	c.graphNodes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "nodes",
			Help:      "Nodes in the last built graph by kind",
		},
		[]string{"kind"},
	)

	c.graphEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "edges",
			Help:      "Edges in the last built graph by type",
		},
		[]string{"type"},
	)

	c.graphWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "warnings_total",
			Help:      "Warnings emitted by hierarchy builds by code",
		},
		[]string{"code"},
	)

	c.sourceAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "source_available",
			Help:      "Whether each hierarchy source was available on the last load (1/0)",
		},
		[]string{"source"},
	)

	c.sourceLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hierarchy",
			Name:      "source_load_duration_seconds",
			Help:      "Time to load each hierarchy source",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// 缓存指标
	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache"},
	)

	// 数据库指标
	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🕸️ 层级图指标记录
// =============================================================================

// RecordBuild 记录一次构建；err 非空时只计失败次数
func (c *Collector) RecordBuild(g hierarchy.Graph, duration time.Duration, err error) {
	c.buildDuration.Observe(duration.Seconds())
	if err != nil {
		c.buildsTotal.WithLabelValues("error").Inc()
		return
	}
	c.buildsTotal.WithLabelValues("success").Inc()

	nodes := map[hierarchy.NodeKind]int{hierarchy.NodeAgent: 0, hierarchy.NodeExternal: 0}
	for _, n := range g.Nodes {
		nodes[n.Kind]++
	}
	for kind, n := range nodes {
		c.graphNodes.WithLabelValues(string(kind)).Set(float64(n))
	}

	edges := map[hierarchy.EdgeType]int{
		hierarchy.EdgeReportsTo: 0, hierarchy.EdgeDelegatesTo: 0,
		hierarchy.EdgeReceivesFrom: 0, hierarchy.EdgeCanMessage: 0,
	}
	for _, e := range g.Edges {
		edges[e.Type]++
	}
	for typ, n := range edges {
		c.graphEdges.WithLabelValues(string(typ)).Set(float64(n))
	}

	for _, w := range g.Meta.Warnings {
		c.graphWarnings.WithLabelValues(w.Code).Inc()
	}

	s := g.Meta.Sources
	c.sourceAvailable.WithLabelValues("config").Set(boolGauge(s.Config.Available))
	c.sourceAvailable.WithLabelValues("runtime").Set(boolGauge(s.Runtime.Available))
	c.sourceAvailable.WithLabelValues("legacy").Set(boolGauge(s.Fallback.Available))
	c.sourceAvailable.WithLabelValues("workspace").Set(boolGauge(s.Workspace.Available))
	c.sourceAvailable.WithLabelValues("database").Set(boolGauge(s.Database.Available))
}

// RecordSourceLoad 记录单个来源的加载耗时
func (c *Collector) RecordSourceLoad(source string, duration time.Duration) {
	c.sourceLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cache string) {
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cache string) {
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
