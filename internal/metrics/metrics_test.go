package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordDetection("image", OutcomeSuccess)
	m.RecordDetection("image", OutcomeSuccess)
	m.RecordDetection("video", OutcomeFailure)
	m.RecordPipelineFailure("analyze", "UPSTREAM_ERROR")
	m.ObserveInference("image", 1500*time.Millisecond)
	m.ObserveUpload("image", 2<<20)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.detectionsTotal.WithLabelValues("image", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.detectionsTotal.WithLabelValues("video", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pipelineFailures.WithLabelValues("analyze", "UPSTREAM_ERROR")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.inferenceDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDetection("image", OutcomeSuccess)
		m.RecordPipelineFailure("store", "INTERNAL")
		m.ObserveInference("image", time.Second)
		m.ObserveUpload("image", 1)
	})
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestGinMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	router := gin.New()
	router.Use(m.GinMiddleware())
	router.GET("/api/history/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/history/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/history/def", nil))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/history/:id", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "deepfake_http_requests_total"))
}
