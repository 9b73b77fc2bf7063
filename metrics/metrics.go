package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the pipeline and HTTP metrics for the service.
type Collector struct {
	SignalsIngested       *prometheus.CounterVec
	Correlations          *prometheus.CounterVec
	CorrelationConfidence prometheus.Histogram
	ThreatsArchived       prometheus.Counter
	ResponsesDeployed     *prometheus.CounterVec
	ImpactEvaluations     *prometheus.CounterVec
	UpstreamTimeouts      *prometheus.CounterVec

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers all collectors on reg. A nil reg uses a private registry,
// which keeps tests from colliding on the global default.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	c := &Collector{
		SignalsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_signals_ingested_total",
			Help: "Signals appended to the timeline",
		}, []string{"signal_type"}),
		Correlations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_correlations_total",
			Help: "Correlation runs by verdict",
		}, []string{"verdict"}),
		CorrelationConfidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aegis_correlation_confidence",
			Help:    "Distribution of correlation confidence scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		}),
		ThreatsArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aegis_threats_archived_total",
			Help: "Threat packages written to the archive",
		}),
		ResponsesDeployed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_responses_deployed_total",
			Help: "Deployed countermeasures by type",
		}, []string{"measure_type"}),
		ImpactEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_impact_evaluations_total",
			Help: "Impact evaluations by outcome",
		}, []string{"outcome"}),
		UpstreamTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_upstream_timeouts_total",
			Help: "External calls that hit their deadline",
		}, []string{"upstream"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aegis_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aegis_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}

	reg.MustRegister(
		c.SignalsIngested,
		c.Correlations,
		c.CorrelationConfidence,
		c.ThreatsArchived,
		c.ResponsesDeployed,
		c.ImpactEvaluations,
		c.UpstreamTimeouts,
		c.httpRequestsTotal,
		c.httpRequestDuration,
	)

	if g, ok := reg.(prometheus.Gatherer); ok {
		c.gatherer = g
	} else {
		c.gatherer = prometheus.DefaultGatherer
	}
	return c
}

// Middleware records request counts and latency per route.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		endpoint := ctx.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		method := ctx.Request.Method
		c.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(ctx.Writer.Status())).Inc()
		c.httpRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() gin.HandlerFunc {
	var h http.Handler = promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
	return func(ctx *gin.Context) {
		h.ServeHTTP(ctx.Writer, ctx.Request)
	}
}
