package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"aegis/correlation"
	"aegis/models"
)

type FeedItem struct {
	EventID               string                     `json:"event_id"`
	Ticker                string                     `json:"ticker"`
	CrashTimestamp        time.Time                  `json:"crash_timestamp"`
	CurrentPrice          float64                    `json:"current_price"`
	ProjectedLoss         float64                    `json:"projected_loss"`
	ZScore                float64                    `json:"z_score"`
	SmokingGunHeadline    string                     `json:"smoking_gun_headline"`
	SmokingGunLink        string                     `json:"smoking_gun_link"`
	PanicScore            int                        `json:"panic_score"`
	CorrelationConfidence int                        `json:"correlation_confidence"`
	LatencyMinutes        float64                    `json:"latency_minutes"`
	Responses             []models.ResponseCandidate `json:"responses"`
	ResponseDeployed      bool                       `json:"response_deployed"`
	DeployedAt            *time.Time                 `json:"deployed_at,omitempty"`
	Severity              string                     `json:"severity"`
	Status                string                     `json:"status"`
	Simulated             bool                       `json:"simulated"`
}

type FeedResponse struct {
	Status       string     `json:"status"`
	TotalThreats int        `json:"total_threats"`
	Threats      []FeedItem `json:"threats"`
	Timestamp    time.Time  `json:"timestamp"`
	freshness
}

// LiveFeed lists the most recent verified threats for the counter-measure
// console.
func (h *Handler) LiveFeed(c *gin.Context) {
	// Получаем параметры
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 {
		limit = 10
	}
	key := fmt.Sprintf("feed:%d", limit)

	serveRead(h, c, key, func(ctx context.Context) (FeedResponse, error) {
		threats, err := h.archive.RecentThreats(ctx, limit)
		if err != nil {
			return FeedResponse{}, err
		}
		return h.buildFeed(threats), nil
	}, func() FeedResponse {
		return h.buildFeed(demoThreats(h.now()))
	})
}

func (h *Handler) buildFeed(threats []models.ThreatPackage) FeedResponse {
	out := FeedResponse{
		Status:    "success",
		Threats:   make([]FeedItem, 0, len(threats)),
		Timestamp: h.now().UTC(),
	}
	for _, t := range threats {
		out.Threats = append(out.Threats, h.feedItem(t))
	}
	out.TotalThreats = len(out.Threats)
	return out
}

func (h *Handler) feedItem(t models.ThreatPackage) FeedItem {
	responses, err := t.ResponseList()
	if err != nil {
		h.log.WithError(err).WithField("event_id", t.EventID).Warn("Unreadable responses")
	}
	if responses == nil {
		responses = []models.ResponseCandidate{}
	}
	return FeedItem{
		EventID:               t.EventID,
		Ticker:                t.Ticker,
		CrashTimestamp:        t.CrashTimestamp,
		CurrentPrice:          t.CurrentPrice,
		ProjectedLoss:         t.ProjectedLoss,
		ZScore:                t.ZScore,
		SmokingGunHeadline:    t.SmokingGunHeadline,
		SmokingGunLink:        t.SmokingGunLink,
		PanicScore:            t.PanicScore,
		CorrelationConfidence: t.CorrelationConfidence,
		LatencyMinutes:        t.LatencyMinutes,
		Responses:             responses,
		ResponseDeployed:      t.ResponseDeployed,
		DeployedAt:            t.DeployedAt,
		Severity:              t.Severity(),
		Status:                t.Status(),
		Simulated:             t.Simulated,
	}
}

func demoThreats(now time.Time) []models.ThreatPackage {
	crashAt := now.UTC().Add(-10 * time.Minute).Truncate(time.Minute)
	t := models.ThreatPackage{
		EventID:               correlation.EventID(demoTicker, crashAt),
		Ticker:                demoTicker,
		CrashTimestamp:        crashAt,
		ArticleTimestamp:      crashAt.Add(3 * time.Minute),
		LatencyMinutes:        3,
		SmokingGunHeadline:    "BREAKING: DEMO CEO Under Investigation for Accounting Fraud",
		SmokingGunLink:        "https://aegis.local/simulated/DEMO.NS",
		CurrentPrice:          945,
		ZScore:                -2.5,
		ProjectedLoss:         -5,
		PanicScore:            92,
		CorrelationConfidence: 90,
		Verdict:               models.VerdictCorrelated,
		Simulated:             true,
	}
	_ = t.SetResponses([]models.ResponseCandidate{
		{MeasureType: models.MeasureCeaseDesist, Text: "The DEMO fraud claim is false. Retract it immediately.", Generator: "template"},
		{MeasureType: models.MeasureOfficialDenial, Text: "DEMO categorically denies the report.", Generator: "template"},
	})
	return []models.ThreatPackage{t}
}
