package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aegis/models"
)

type DeployRequest struct {
	EventID      string `json:"event_id" binding:"required"`
	ResponseType string `json:"response_type" binding:"required"`
	DeployedBy   string `json:"deployed_by"`
}

type DeployResponse struct {
	Status            string             `json:"status"`
	EventID           string             `json:"event_id"`
	ResponseType      models.MeasureType `json:"response_type"`
	CurrentStockPrice float64            `json:"current_stock_price"`
	DeployedAt        time.Time          `json:"deployed_at"`
	MeasureID         uint               `json:"measure_id"`
	PriceSource       string             `json:"price_source"`
	ResponseText      string             `json:"response_text"`
}

// GenerateResponses redrafts the countermeasures for an archived threat.
func (h *Handler) GenerateResponses(c *gin.Context) {
	eventID := c.Param("event_id")
	ctx := c.Request.Context()

	// Найти угрозу
	threat, err := h.archive.Get(ctx, eventID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Генерируем ответы
	responses, err := h.responder.GenerateResponses(ctx, threat)
	if err != nil {
		h.respondError(c, err)
		return
	}

	// Сохраняем ответы в базу
	if err := h.archive.UpdateResponses(ctx, eventID, responses); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"event_id": eventID, "responses": responses})
}

// DeployResponse records a countermeasure and schedules its impact
// evaluation. It returns as soon as the measure is stored.
func (h *Handler) DeployResponse(c *gin.Context) {
	var req DeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		h.respondError(c, bindError(err))
		return
	}

	m, err := h.archive.DeployResponse(c.Request.Context(), req.EventID, req.ResponseType, req.DeployedBy)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.metrics.ResponsesDeployed.WithLabelValues(string(m.MeasureType)).Inc()
	if h.scheduler != nil {
		h.scheduler.Schedule(m)
	}
	h.log.WithFields(logrus.Fields{
		"event_id":     m.EventID,
		"measure_type": m.MeasureType,
		"measure_id":   m.ID,
	}).Warn("Countermeasure deployed")

	c.JSON(http.StatusOK, DeployResponse{
		Status:            "success",
		EventID:           m.EventID,
		ResponseType:      m.MeasureType,
		CurrentStockPrice: m.StockPriceAtDeployment,
		DeployedAt:        m.DeployedAt,
		MeasureID:         m.ID,
		PriceSource:       m.PriceSource,
		ResponseText:      m.ResponseText,
	})
}

// EvaluateImpact runs the impact evaluation now instead of waiting for the
// scheduler.
func (h *Handler) EvaluateImpact(c *gin.Context) {
	res, err := h.impact.Evaluate(c.Request.Context(), c.Param("event_id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
