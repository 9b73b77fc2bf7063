package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"aegis/archive"
	"aegis/ingest"
	"aegis/models"
)

type SignalEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Ticker    string         `json:"ticker"`
	Severity  int            `json:"severity"`
	Metadata  map[string]any `json:"metadata"`
}

type SignalsResponse struct {
	Status         string        `json:"status"`
	TimeRangeHours int           `json:"time_range_hours"`
	StockEvents    []SignalEvent `json:"stock_events"`
	ThreatEvents   []SignalEvent `json:"threat_events"`
	TotalEvents    int           `json:"total_events"`
	freshness
}

func (h *Handler) GetSignals(c *gin.Context) {
	// Параметры запроса
	ticker := strings.ToUpper(strings.TrimSpace(c.Query("ticker")))
	signalType := models.SignalType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	hours, _ := strconv.Atoi(c.DefaultQuery("hours", "24"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if signalType != "" && !signalType.Valid() {
		h.respondError(c, &models.ValidationError{Field: "type", Reason: "must be CRASH or RUMOR"})
		return
	}
	if hours <= 0 {
		hours = 24
	}

	filter := archive.SignalFilter{
		Ticker: ticker,
		Type:   signalType,
		Since:  h.now().Add(-time.Duration(hours) * time.Hour),
		Limit:  limit,
	}
	key := fmt.Sprintf("signals:%s:%s:%d:%d", ticker, signalType, hours, limit)

	serveRead(h, c, key, func(ctx context.Context) (SignalsResponse, error) {
		signals, err := h.archive.RecentSignals(ctx, filter)
		if err != nil {
			return SignalsResponse{}, err
		}
		return splitSignals(signals, hours), nil
	}, func() SignalsResponse {
		return splitSignals(demoSignals(h.now()), hours)
	})
}

// splitSignals separates crashes from rumors, most recent first.
func splitSignals(signals []models.Signal, hours int) SignalsResponse {
	out := SignalsResponse{
		Status:         "success",
		TimeRangeHours: hours,
		StockEvents:    []SignalEvent{},
		ThreatEvents:   []SignalEvent{},
	}
	for _, s := range signals {
		ev := SignalEvent{
			ID:        s.ID,
			Timestamp: s.Timestamp,
			Ticker:    s.Ticker,
			Severity:  s.Severity,
			Metadata:  s.Meta(),
		}
		switch s.SignalType {
		case models.SignalCrash:
			out.StockEvents = append(out.StockEvents, ev)
		case models.SignalRumor:
			out.ThreatEvents = append(out.ThreatEvents, ev)
		}
	}
	out.TotalEvents = len(out.StockEvents) + len(out.ThreatEvents)
	return out
}

// IngestSignal appends a detector event. A crash is correlated before the
// response is written.
func (h *Handler) IngestSignal(c *gin.Context) {
	var raw ingest.RawEvent
	if err := c.ShouldBindJSON(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is required")
		}
		h.respondError(c, bindError(err))
		return
	}

	out, err := h.pipeline.Ingest(c.Request.Context(), raw)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.archive.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// demoSignals is the sample timeline served when the store is down and
// nothing has been cached yet.
func demoSignals(now time.Time) []models.Signal {
	crashAt := now.UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	crashMeta, _ := json.Marshal(map[string]any{"price": 945.0, "z_score": -2.5, "projected_loss": -5.0, "simulated": true})
	rumorMeta, _ := json.Marshal(map[string]any{
		"headline": "BREAKING: DEMO CEO Under Investigation for Accounting Fraud",
		"source":   "Simulated Wire",
	})
	return []models.Signal{
		{
			ID:         "demo-rumor",
			Ticker:     "DEMO.NS",
			SignalType: models.SignalRumor,
			Severity:   92,
			Timestamp:  crashAt.Add(3 * time.Minute),
			Metadata:   rumorMeta,
		},
		{
			ID:         "demo-crash",
			Ticker:     "DEMO.NS",
			SignalType: models.SignalCrash,
			Severity:   63,
			Timestamp:  crashAt,
			Metadata:   crashMeta,
		},
	}
}
