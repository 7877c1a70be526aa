// Package metrics exposes Prometheus metrics for the detection pipeline and
// the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deepfake"

// Outcome labels for detections_total.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics contains the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	detectionsTotal   *prometheus.CounterVec
	pipelineFailures  *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	uploadSize        *prometheus.HistogramVec
	httpRequestsTotal *prometheus.CounterVec
}

// New creates the collectors and registers them on registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Total number of detection requests by outcome",
		},
		[]string{"kind", "outcome"},
	)
	m.pipelineFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_failures_total",
			Help:      "Detection pipeline failures by stage and error kind",
		},
		[]string{"stage", "error_kind"},
	)
	m.inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_duration_seconds",
			Help:      "Time spent waiting for the inference service",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 13), // 50ms to ~3.4m
		},
		[]string{"kind"},
	)
	m.uploadSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_size_bytes",
			Help:      "Size of stored uploads",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 10), // 1KiB to ~256MiB
		},
		[]string{"kind"},
	)
	m.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
}

// Describe implements prometheus.Collector.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.detectionsTotal.Describe(ch)
	m.pipelineFailures.Describe(ch)
	m.inferenceDuration.Describe(ch)
	m.uploadSize.Describe(ch)
	m.httpRequestsTotal.Describe(ch)
}

// Collect implements prometheus.Collector.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.detectionsTotal.Collect(ch)
	m.pipelineFailures.Collect(ch)
	m.inferenceDuration.Collect(ch)
	m.uploadSize.Collect(ch)
	m.httpRequestsTotal.Collect(ch)
}

func (m *Metrics) RecordDetection(kind, outcome string) {
	if m == nil {
		return
	}
	m.detectionsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordPipelineFailure(stage, errorKind string) {
	if m == nil {
		return
	}
	m.pipelineFailures.WithLabelValues(stage, errorKind).Inc()
}

func (m *Metrics) ObserveInference(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.inferenceDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) ObserveUpload(kind string, size int64) {
	if m == nil {
		return
	}
	m.uploadSize.WithLabelValues(kind).Observe(float64(size))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// GinMiddleware counts requests by matched route so path parameters do not
// explode label cardinality.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
