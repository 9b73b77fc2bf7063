package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter builds the gin engine with the common middleware and every
// war-room route.
func NewRouter(h *Handler, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()

	r.Use(RequestID())
	r.Use(Logging(logger))
	r.Use(Recovery(logger))
	r.Use(CORS())
	r.Use(h.metrics.Middleware())

	r.GET("/health", h.Health)
	r.GET("/metrics", h.metrics.Handler())

	// API маршруты
	api := r.Group("/api")
	{
		api.GET("/war-room/signals", h.GetSignals)
		api.GET("/war-room/scan/:ticker", h.Scan)
		api.POST("/war-room/demo-attack", h.DemoAttack)
		api.POST("/signals", h.IngestSignal)
		api.GET("/feed/live", h.LiveFeed)
		api.GET("/threats/:event_id", h.GetThreat)
		api.POST("/generate-responses/:event_id", h.GenerateResponses)
		api.POST("/deploy-response", h.DeployResponse)
		api.POST("/impact/:event_id/evaluate", h.EvaluateImpact)
		api.GET("/stats", h.GetStats)
	}

	return r
}
