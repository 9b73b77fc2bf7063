package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounters(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.Correlations.WithLabelValues("correlated").Inc()
	c.Correlations.WithLabelValues("correlated").Inc()
	c.UpstreamTimeouts.WithLabelValues("news").Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Correlations.WithLabelValues("correlated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.UpstreamTimeouts.WithLabelValues("news")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(c.Middleware())
	r.GET("/ping", func(ctx *gin.Context) { ctx.String(http.StatusOK, "pong") })
	r.GET("/metrics", c.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, `aegis_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`), body)
}
