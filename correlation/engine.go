package correlation

import (
	"math"
	"strings"
	"time"

	"aegis/models"
)

const (
	ReasonNoSmokingGun   = "NO_SMOKING_GUN"
	ReasonBelowThreshold = "BELOW_THRESHOLD"
	ReasonVerified       = "VERIFIED"
)

const (
	DefaultThreshold       = 70
	DefaultPlausibleWindow = 15 * time.Minute

	weightTemporal = 0.45
	weightPanic    = 0.35
	weightSeverity = 0.20

	latePenaltyPerMinute  = 3.0
	earlyPenaltyPerMinute = 3.0
	earlyPenalty          = 20.0
)

// Result is the outcome of one correlation run.
type Result struct {
	EventID        string              `json:"event_id"`
	Verdict        string              `json:"verdict"`
	Reason         string              `json:"reason"`
	Confidence     int                 `json:"correlation_confidence"`
	LatencyMinutes *float64            `json:"latency_minutes"`
	TemporalScore  float64             `json:"temporal_score"`
	Content        *models.ContentItem `json:"content,omitempty"`
}

func (r Result) Correlated() bool {
	return r.Verdict == models.VerdictCorrelated
}

// Engine scores how likely a content item caused a crash.
type Engine struct {
	Threshold       int
	PlausibleWindow time.Duration
}

func New(threshold int, window time.Duration) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultPlausibleWindow
	}
	return &Engine{Threshold: threshold, PlausibleWindow: window}
}

// EventID derives the archive key for a crash. The same ticker and instant
// always produce the same id.
func EventID(ticker string, ts time.Time) string {
	return strings.ToUpper(strings.TrimSpace(ticker)) + "_" + ts.UTC().Format("20060102_150405")
}

// TemporalScore rates a signed latency in minutes: full marks inside the
// window, a linear decay after it, and a stronger penalty for items that
// only appeared before the crash.
func TemporalScore(latency float64, window time.Duration) float64 {
	w := window.Minutes()
	var s float64
	switch {
	case latency >= 0 && latency <= w:
		s = 100
	case latency > w:
		s = 100 - (latency-w)*latePenaltyPerMinute
	default:
		s = 100 - earlyPenalty - math.Abs(latency)*earlyPenaltyPerMinute
	}
	return math.Max(0, s)
}

// Confidence combines the temporal score, panic and crash severity.
func Confidence(temporal float64, panic, severity int) int {
	return models.ClampFloat(weightTemporal*temporal +
		weightPanic*float64(models.Clamp(panic)) +
		weightSeverity*float64(models.Clamp(severity)))
}

// Decide applies the verification threshold.
func (e *Engine) Decide(confidence int) string {
	if confidence >= e.Threshold {
		return models.VerdictCorrelated
	}
	return models.VerdictUncorrelated
}

// Correlate scores content against a crash signal. A nil content item is a
// normal outcome and yields an uncorrelated verdict.
func (e *Engine) Correlate(crash models.Signal, content *models.ContentItem) Result {
	res := Result{EventID: EventID(crash.Ticker, crash.Timestamp)}
	if content == nil {
		res.Verdict = models.VerdictUncorrelated
		res.Reason = ReasonNoSmokingGun
		return res
	}

	latency := models.Round(content.PublishedAt.Sub(crash.Timestamp).Minutes(), 2)
	temporal := TemporalScore(latency, e.PlausibleWindow)
	conf := Confidence(temporal, content.PanicScore, crash.Severity)

	c := *content
	res.Content = &c
	res.LatencyMinutes = &latency
	res.TemporalScore = temporal
	res.Confidence = conf
	res.Verdict = e.Decide(conf)
	if res.Correlated() {
		res.Reason = ReasonVerified
	} else {
		res.Reason = ReasonBelowThreshold
	}
	return res
}

// Package assembles the archive record for a correlated result.
func Package(crash models.Signal, res Result) models.ThreatPackage {
	t := models.ThreatPackage{
		EventID:               res.EventID,
		Ticker:                crash.Ticker,
		CrashTimestamp:        crash.Timestamp.UTC(),
		CurrentPrice:          crash.MetaFloat("price"),
		ZScore:                crash.MetaFloat("z_score"),
		ProjectedLoss:         crash.MetaFloat("projected_loss"),
		CorrelationConfidence: models.Clamp(res.Confidence),
		Verdict:               res.Verdict,
		Simulated:             crash.MetaBool("simulated"),
	}
	if res.LatencyMinutes != nil {
		t.LatencyMinutes = *res.LatencyMinutes
	}
	if res.Content != nil {
		t.ArticleTimestamp = res.Content.PublishedAt.UTC()
		t.SmokingGunHeadline = res.Content.Headline
		t.SmokingGunLink = res.Content.Link
		t.PanicScore = models.Clamp(res.Content.PanicScore)
	}
	return t
}

// Attempt is the log record for a correlation run.
func Attempt(crash models.Signal, res Result) models.CorrelationAttempt {
	a := models.CorrelationAttempt{
		EventID:        res.EventID,
		Ticker:         crash.Ticker,
		CrashTimestamp: crash.Timestamp.UTC(),
		Verdict:        res.Verdict,
		Reason:         res.Reason,
		Confidence:     res.Confidence,
		LatencyMinutes: res.LatencyMinutes,
	}
	if res.Content != nil {
		a.Headline = res.Content.Headline
	}
	return a
}
