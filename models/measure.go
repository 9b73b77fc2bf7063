package models

import (
	"strings"
	"time"
)

type MeasureType string

const (
	MeasureLegalNotice    MeasureType = "LEGAL_NOTICE"
	MeasurePRTweet        MeasureType = "PR_TWEET"
	MeasureInternalMemo   MeasureType = "INTERNAL_MEMO"
	MeasureCeaseDesist    MeasureType = "CEASE_DESIST"
	MeasureOfficialDenial MeasureType = "OFFICIAL_DENIAL"
	MeasureCEOAlert       MeasureType = "CEO_ALERT"
)

// MeasureTypes lists every deployable measure.
var MeasureTypes = []MeasureType{
	MeasureLegalNotice,
	MeasurePRTweet,
	MeasureInternalMemo,
	MeasureCeaseDesist,
	MeasureOfficialDenial,
	MeasureCEOAlert,
}

func (m MeasureType) Valid() bool {
	for _, t := range MeasureTypes {
		if m == t {
			return true
		}
	}
	return false
}

// ParseMeasureType accepts both the stored form ("CEASE_DESIST") and the
// lowercase form used by the console ("cease_desist").
func ParseMeasureType(s string) (MeasureType, error) {
	mt := MeasureType(strings.ToUpper(strings.TrimSpace(s)))
	if !mt.Valid() {
		return "", &ValidationError{Field: "response_type", Reason: "unknown measure type " + s}
	}
	return mt, nil
}

const DefaultDeployedBy = "aegis-automation"

const (
	OutcomeSuccess = "SUCCESS"
	OutcomePartial = "PARTIAL"
	OutcomeFailure = "FAILURE"
)

const (
	PriceSourceOracle   = "oracle"
	PriceSourceArchived = "archived"
)

// DeployedMeasure records one response action taken against a verified
// threat. Only the impact fields change after creation.
type DeployedMeasure struct {
	ID                     uint        `json:"id" gorm:"primaryKey"`
	EventID                string      `json:"event_id" gorm:"size:128;index"`
	MeasureType            MeasureType `json:"measure_type" gorm:"size:32"`
	DeployedAt             time.Time   `json:"deployed_at" gorm:"index"`
	StockPriceAtDeployment float64     `json:"stock_price_at_deployment"`
	PriceSource            string      `json:"price_source" gorm:"size:16"`
	Ticker                 string      `json:"ticker" gorm:"size:32"`
	ResponseText           string      `json:"response_text"`
	DeployedBy             string      `json:"deployed_by" gorm:"size:64"`
	EffectivenessScore     *int        `json:"effectiveness_score"`
	RecoveryTimeMinutes    *int        `json:"recovery_time_minutes"`
	RecoveryPercent        *float64    `json:"recovery_percent"`
	Outcome                string      `json:"outcome" gorm:"size:16"`
	EvaluatedAt            *time.Time  `json:"evaluated_at"`
}

func (DeployedMeasure) TableName() string {
	return "deployed_measures"
}
