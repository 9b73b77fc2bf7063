package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

const (
	VerdictCorrelated   = "correlated"
	VerdictUncorrelated = "uncorrelated"
)

// ResponseCandidate is one drafted countermeasure for a verified threat.
type ResponseCandidate struct {
	MeasureType MeasureType `json:"measure_type"`
	Text        string      `json:"text"`
	Generator   string      `json:"generator"`
}

// ImpactSummary is written onto a ThreatPackage after a deployed measure
// has been evaluated.
type ImpactSummary struct {
	MeasureID           uint        `json:"measure_id"`
	MeasureType         MeasureType `json:"measure_type"`
	PriceAtDeployment   float64     `json:"price_at_deployment"`
	PriceNow            float64     `json:"price_now"`
	RecoveryPercent     float64     `json:"recovery_percent"`
	Outcome             string      `json:"outcome"`
	EffectivenessScore  int         `json:"effectiveness_score"`
	RecoveryTimeMinutes *int        `json:"recovery_time_minutes,omitempty"`
	EvaluatedAt         time.Time   `json:"evaluated_at"`
}

// ThreatPackage is the archived evidence bundle for one correlated crash.
type ThreatPackage struct {
	ID                    uint           `json:"-" gorm:"primaryKey"`
	EventID               string         `json:"event_id" gorm:"size:128;uniqueIndex"`
	Ticker                string         `json:"ticker" gorm:"size:32;index"`
	CrashTimestamp        time.Time      `json:"crash_timestamp" gorm:"index"`
	ArticleTimestamp      time.Time      `json:"article_timestamp"`
	LatencyMinutes        float64        `json:"latency_minutes"`
	SmokingGunHeadline    string         `json:"smoking_gun_headline"`
	SmokingGunLink        string         `json:"smoking_gun_link"`
	CurrentPrice          float64        `json:"current_price"`
	ZScore                float64        `json:"z_score"`
	ProjectedLoss         float64        `json:"projected_loss"`
	PanicScore            int            `json:"panic_score"`
	CorrelationConfidence int            `json:"correlation_confidence"`
	Verdict               string         `json:"verdict" gorm:"size:32"`
	Responses             datatypes.JSON `json:"responses"`
	ResponseDeployed      bool           `json:"response_deployed"`
	DeployedAt            *time.Time     `json:"deployed_at"`
	PostImpactAnalysis    datatypes.JSON `json:"post_impact_analysis"`
	Simulated             bool           `json:"simulated"`
	ArchivedAt            time.Time      `json:"archived_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ThreatPackage) TableName() string {
	return "verified_threats"
}

func (t ThreatPackage) ResponseList() ([]ResponseCandidate, error) {
	if len(t.Responses) == 0 || string(t.Responses) == "null" {
		return nil, nil
	}
	var out []ResponseCandidate
	if err := json.Unmarshal(t.Responses, &out); err != nil {
		return nil, fmt.Errorf("decode responses for %s: %w", t.EventID, err)
	}
	return out, nil
}

func (t *ThreatPackage) SetResponses(rs []ResponseCandidate) error {
	raw, err := json.Marshal(rs)
	if err != nil {
		return err
	}
	t.Responses = datatypes.JSON(raw)
	return nil
}

// ResponseText returns the drafted text for a measure type, if any.
func (t ThreatPackage) ResponseText(mt MeasureType) string {
	rs, err := t.ResponseList()
	if err != nil {
		return ""
	}
	for _, r := range rs {
		if r.MeasureType == mt {
			return r.Text
		}
	}
	return ""
}

// Impact returns the post-impact summary, or nil when none has been written.
func (t ThreatPackage) Impact() (*ImpactSummary, error) {
	if len(t.PostImpactAnalysis) == 0 || string(t.PostImpactAnalysis) == "null" {
		return nil, nil
	}
	var out ImpactSummary
	if err := json.Unmarshal(t.PostImpactAnalysis, &out); err != nil {
		return nil, fmt.Errorf("decode impact for %s: %w", t.EventID, err)
	}
	return &out, nil
}

func (t *ThreatPackage) SetImpact(s ImpactSummary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	t.PostImpactAnalysis = datatypes.JSON(raw)
	return nil
}

// Severity is the feed classification used by the live console.
func (t ThreatPackage) Severity() string {
	if t.CorrelationConfidence > 80 {
		return "CRITICAL"
	}
	return "HIGH"
}

func (t ThreatPackage) Status() string {
	if t.ResponseDeployed {
		return "DEPLOYED"
	}
	return "READY"
}

// CorrelationAttempt records every correlation run, including the ones that
// did not produce a ThreatPackage.
type CorrelationAttempt struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	EventID        string    `json:"event_id" gorm:"size:128;index"`
	Ticker         string    `json:"ticker" gorm:"size:32"`
	CrashTimestamp time.Time `json:"crash_timestamp"`
	Verdict        string    `json:"verdict" gorm:"size:32"`
	Reason         string    `json:"reason" gorm:"size:32"`
	Confidence     int       `json:"confidence"`
	LatencyMinutes *float64  `json:"latency_minutes"`
	Headline       string    `json:"headline"`
	CreatedAt      time.Time `json:"created_at"`
}

func (CorrelationAttempt) TableName() string {
	return "correlation_attempts"
}
