package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标管理器。每个实例持有独立的 Registry，测试中可重复创建
type Metrics struct {
	registry *prometheus.Registry

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec
	dbQueryErrors   *prometheus.CounterVec

	// 缓存指标
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec

	// 业务指标
	businessCounter  *prometheus.CounterVec
	exportDuration   *prometheus.HistogramVec
	storageFreeBytes prometheus.Gauge
}

// NewMetrics 创建指标管理器
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Database query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),
		dbQueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_query_errors_total",
				Help: "Total number of failed database statements",
			},
			[]string{"operation", "table"},
		),

		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMissesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache"},
		),

		businessCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "curation_operations_total",
				Help: "Dataset curation operations by outcome",
			},
			[]string{"operation", "status"},
		),
		exportDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "export_duration_seconds",
				Help:    "Duration of export runs",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"target", "status"},
		),
		storageFreeBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "audio_storage_free_bytes",
				Help: "Free bytes on the volume holding the audio store",
			},
		),
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 Prometheus 抓取接口
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest 记录HTTP请求指标
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery 记录数据库查询指标
func (m *Metrics) RecordDBQuery(operation, table string, duration time.Duration, failed bool) {
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if failed {
		m.dbQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cache string) {
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cache string) {
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordOperation 记录业务操作，status 取 ok / error / duplicate 等
func (m *Metrics) RecordOperation(operation, status string) {
	m.businessCounter.WithLabelValues(operation, status).Inc()
}

// RecordExport 记录导出耗时
func (m *Metrics) RecordExport(target, status string, duration time.Duration) {
	m.exportDuration.WithLabelValues(target, status).Observe(duration.Seconds())
}

func (m *Metrics) SetStorageFree(bytes uint64) {
	m.storageFreeBytes.Set(float64(bytes))
}
