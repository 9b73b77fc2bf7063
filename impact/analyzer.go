package impact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"aegis/logging"
	"aegis/metrics"
	"aegis/models"
)

const (
	// SuccessFloor is the recovery percentage at or above which a measure
	// counts as having worked.
	SuccessFloor = 0.5
	// FailureFloor is the recovery percentage below which the price kept
	// falling after deployment.
	FailureFloor = -1.0

	DefaultSweepWindow = 2 * time.Hour
)

// Store is the slice of the archive the analyzer reads and writes.
type Store interface {
	LatestMeasure(ctx context.Context, eventID string) (models.DeployedMeasure, error)
	MeasuresSince(ctx context.Context, since time.Time) ([]models.DeployedMeasure, error)
	SaveImpact(ctx context.Context, m models.DeployedMeasure, s models.ImpactSummary) error
}

type PriceOracle interface {
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
}

// Result is one impact evaluation.
type Result struct {
	EventID string `json:"event_id"`
	Ticker  string `json:"ticker"`
	models.ImpactSummary
}

type Analyzer struct {
	store   Store
	oracle  PriceOracle
	metrics *metrics.Collector
	log     *logrus.Entry
	now     func() time.Time
}

type Option func(*Analyzer)

func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) { a.log = logging.Component(l, "impact") }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(a *Analyzer) { a.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

func NewAnalyzer(store Store, oracle PriceOracle, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  store,
		oracle: oracle,
		log:    logging.Component(nil, "impact"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New(nil)
	}
	return a
}

// Evaluate scores the most recent measure deployed for eventID.
func (a *Analyzer) Evaluate(ctx context.Context, eventID string) (Result, error) {
	if eventID == "" {
		return Result{}, &models.ValidationError{Field: "event_id", Reason: "required"}
	}
	m, err := a.store.LatestMeasure(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	return a.EvaluateMeasure(ctx, m)
}

// EvaluateMeasure samples the price now and writes the outcome back onto the
// measure and its threat. Running it again overwrites the previous result.
func (a *Analyzer) EvaluateMeasure(ctx context.Context, m models.DeployedMeasure) (Result, error) {
	if m.StockPriceAtDeployment <= 0 {
		return Result{}, &models.ValidationError{
			Field:  "stock_price_at_deployment",
			Reason: fmt.Sprintf("measure %d has no deployment price", m.ID),
		}
	}

	priceNow, err := a.oracle.CurrentPrice(ctx, m.Ticker)
	if err != nil {
		return Result{}, fmt.Errorf("sample price for %s: %w", m.Ticker, err)
	}
	if priceNow <= 0 {
		return Result{}, fmt.Errorf("sample price for %s: non-positive price %v", m.Ticker, priceNow)
	}

	now := a.now().UTC()
	summary := Summarize(m, priceNow, now)
	if err := a.store.SaveImpact(ctx, m, summary); err != nil {
		return Result{}, err
	}

	a.metrics.ImpactEvaluations.WithLabelValues(summary.Outcome).Inc()
	a.log.WithFields(logrus.Fields{
		"event_id":         m.EventID,
		"measure_id":       m.ID,
		"recovery_percent": summary.RecoveryPercent,
		"outcome":          summary.Outcome,
	}).Info("Impact evaluated")

	return Result{EventID: m.EventID, Ticker: m.Ticker, ImpactSummary: summary}, nil
}

// Sweep re-evaluates every measure deployed since the given time. Failures
// are logged and joined; the remaining measures are still evaluated.
func (a *Analyzer) Sweep(ctx context.Context, since time.Time) ([]Result, error) {
	ms, err := a.store.MeasuresSince(ctx, since)
	if err != nil {
		return nil, err
	}

	var (
		out  []Result
		errs []error
	)
	for _, m := range ms {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := a.EvaluateMeasure(ctx, m)
		if err != nil {
			a.log.WithError(err).WithField("measure_id", m.ID).Warn("Impact sweep skipped measure")
			errs = append(errs, err)
			continue
		}
		out = append(out, res)
	}
	return out, errors.Join(errs...)
}

// Summarize computes the impact of m given the price sampled at evaluatedAt.
func Summarize(m models.DeployedMeasure, priceNow float64, evaluatedAt time.Time) models.ImpactSummary {
	recovery := models.Round((priceNow-m.StockPriceAtDeployment)/m.StockPriceAtDeployment*100, 4)
	outcome := Classify(recovery)

	s := models.ImpactSummary{
		MeasureID:          m.ID,
		MeasureType:        m.MeasureType,
		PriceAtDeployment:  m.StockPriceAtDeployment,
		PriceNow:           priceNow,
		RecoveryPercent:    recovery,
		Outcome:            outcome,
		EffectivenessScore: Effectiveness(recovery),
		EvaluatedAt:        evaluatedAt.UTC(),
	}
	if outcome == models.OutcomeSuccess {
		minutes := int(math.Max(0, math.Round(evaluatedAt.Sub(m.DeployedAt).Minutes())))
		s.RecoveryTimeMinutes = &minutes
	}
	return s
}

func Classify(recovery float64) string {
	switch {
	case recovery >= SuccessFloor:
		return models.OutcomeSuccess
	case recovery < FailureFloor:
		return models.OutcomeFailure
	default:
		return models.OutcomePartial
	}
}

// Effectiveness maps recovery onto 0-100: flat is 50, +2% or better is 100.
func Effectiveness(recovery float64) int {
	return models.ClampFloat(50 + 25*recovery)
}
