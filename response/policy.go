package response

import "aegis/models"

const (
	TierSevere   = "SEVERE"
	TierHigh     = "HIGH"
	TierElevated = "ELEVATED"
	TierLow      = "LOW"
)

// Rule is one row of the escalation table. A threat matches the first rule
// whose confidence and panic floors it meets.
type Rule struct {
	Tier          string
	MinConfidence int
	MinPanic      int
	Measures      []models.MeasureType
}

// Policy is evaluated top-down; measures are listed strongest first.
var Policy = []Rule{
	{
		Tier: TierSevere, MinConfidence: 90, MinPanic: 80,
		Measures: []models.MeasureType{models.MeasureCeaseDesist, models.MeasureLegalNotice, models.MeasureCEOAlert, models.MeasureOfficialDenial},
	},
	{
		Tier: TierHigh, MinConfidence: 80, MinPanic: 60,
		Measures: []models.MeasureType{models.MeasureCEOAlert, models.MeasureCeaseDesist, models.MeasureOfficialDenial, models.MeasurePRTweet},
	},
	{
		Tier: TierElevated, MinConfidence: 70,
		Measures: []models.MeasureType{models.MeasureOfficialDenial, models.MeasurePRTweet, models.MeasureInternalMemo},
	},
	{
		Tier:     TierLow,
		Measures: []models.MeasureType{models.MeasureInternalMemo, models.MeasureOfficialDenial},
	},
}

// Escalate picks the policy row for a confidence/panic pair.
func Escalate(confidence, panic int) Rule {
	for _, r := range Policy {
		if confidence >= r.MinConfidence && panic >= r.MinPanic {
			return r
		}
	}
	return Policy[len(Policy)-1]
}

// MaxLength is the hard character limit per measure; zero means unbounded.
var MaxLength = map[models.MeasureType]int{
	models.MeasureCeaseDesist: 280,
	models.MeasurePRTweet:     280,
	models.MeasureCEOAlert:    160,
}
