package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"aegis/models"
)

type ThreatDetail struct {
	Threat    models.ThreatPackage        `json:"threat"`
	Severity  string                      `json:"severity"`
	Status    string                      `json:"status"`
	Responses []models.ResponseCandidate  `json:"responses"`
	Measures  []models.DeployedMeasure    `json:"measures"`
	Impact    *models.ImpactSummary       `json:"impact"`
	Attempts  []models.CorrelationAttempt `json:"attempts"`
}

func (h *Handler) GetThreat(c *gin.Context) {
	eventID := c.Param("event_id")
	ctx := c.Request.Context()

	// Найти угрозу
	threat, err := h.archive.Get(ctx, eventID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	measures, err := h.archive.MeasuresForEvent(ctx, eventID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	attempts, err := h.archive.Attempts(ctx, eventID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	responses, err := threat.ResponseList()
	if err != nil {
		h.respondError(c, err)
		return
	}
	summary, err := threat.Impact()
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, ThreatDetail{
		Threat:    threat,
		Severity:  threat.Severity(),
		Status:    threat.Status(),
		Responses: responses,
		Measures:  measures,
		Impact:    summary,
		Attempts:  attempts,
	})
}
