package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aegis/models"
)

const demoTicker = "DEMO.NS"

// Scan runs one scout pass for a ticker.
func (h *Handler) Scan(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.Param("ticker")))
	if ticker == "" {
		h.respondError(c, &models.ValidationError{Field: "ticker", Reason: "required"})
		return
	}
	out, err := h.pipeline.ProcessTicker(c.Request.Context(), ticker)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DemoAttack runs the simulated pipeline end to end.
func (h *Handler) DemoAttack(c *gin.Context) {
	ticker := strings.ToUpper(strings.TrimSpace(c.DefaultQuery("ticker", demoTicker)))
	out, err := h.pipeline.Simulate(c.Request.Context(), ticker)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
