package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"aegis/logging"
	"aegis/market"
	"aegis/metrics"
	"aegis/models"
)

// Timeline is the append-only signal store.
type Timeline interface {
	Append(ctx context.Context, s models.Signal) error
}

// RawEvent is a detection event as it arrives from a detector or the API.
type RawEvent struct {
	Ticker     string         `json:"ticker" validate:"required,max=32"`
	SignalType string         `json:"signal_type" validate:"required,oneof=CRASH RUMOR"`
	Severity   int            `json:"severity" validate:"min=0,max=100"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata"`
}

// Ingestor validates raw events and appends them to the timeline.
type Ingestor struct {
	timeline Timeline
	validate *validator.Validate
	now      func() time.Time
	log      *logrus.Entry
	metrics  *metrics.Collector
}

type Option func(*Ingestor)

func WithLogger(l logrus.FieldLogger) Option {
	return func(i *Ingestor) { i.log = logging.Component(l, "ingest") }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(i *Ingestor) { i.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

func New(timeline Timeline, opts ...Option) *Ingestor {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	i := &Ingestor{
		timeline: timeline,
		validate: v,
		now:      time.Now,
		log:      logging.Component(nil, "ingest"),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.metrics == nil {
		i.metrics = metrics.New(nil)
	}
	return i
}

// Ingest normalizes raw, validates it and appends the resulting Signal.
// Nothing is written when validation fails.
func (i *Ingestor) Ingest(ctx context.Context, raw RawEvent) (models.Signal, error) {
	raw.Ticker = strings.ToUpper(strings.TrimSpace(raw.Ticker))
	raw.SignalType = strings.ToUpper(strings.TrimSpace(raw.SignalType))

	if err := i.validate.Struct(raw); err != nil {
		return models.Signal{}, toValidationError(err)
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = i.now()
	}
	meta := raw.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return models.Signal{}, &models.ValidationError{Field: "metadata", Reason: err.Error()}
	}

	sig := models.Signal{
		ID:         uuid.NewString(),
		Ticker:     raw.Ticker,
		SignalType: models.SignalType(raw.SignalType),
		Severity:   raw.Severity,
		Timestamp:  ts.UTC(),
		Metadata:   datatypes.JSON(encoded),
	}

	if err := i.timeline.Append(ctx, sig); err != nil {
		var pe *models.PersistenceError
		if !errors.As(err, &pe) {
			err = &models.PersistenceError{Op: "append signal", Err: err}
		}
		return models.Signal{}, err
	}

	i.metrics.SignalsIngested.WithLabelValues(string(sig.SignalType)).Inc()
	i.log.WithFields(logrus.Fields{
		"signal_id":   sig.ID,
		"ticker":      sig.Ticker,
		"signal_type": sig.SignalType,
		"severity":    sig.Severity,
	}).Info("Signal ingested")
	return sig, nil
}

func toValidationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fe.Tag()
		if fe.Param() != "" {
			reason = fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
		}
		return &models.ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("%v fails %s", fe.Value(), reason)}
	}
	return &models.ValidationError{Reason: err.Error()}
}

// CrashSeverity maps a z-score to a 0..100 severity, 4 sigma and beyond
// saturating at 100.
func CrashSeverity(z float64) int {
	return models.ClampFloat(math.Abs(z) * 25)
}

// CrashEvent builds the CRASH event for a sigma event detected by the scout.
func CrashEvent(ticker string, v market.Volatility, p market.Projection, at time.Time) RawEvent {
	return RawEvent{
		Ticker:     ticker,
		SignalType: string(models.SignalCrash),
		Severity:   CrashSeverity(v.ZScore),
		Timestamp:  at,
		Metadata: map[string]any{
			"price":             v.Price,
			"z_score":           v.ZScore,
			"mean":              v.Mean,
			"std_dev":           v.StdDev,
			"volatility_status": v.Status,
			"projected_loss":    p.ProjectedLoss,
			"projected_price":   p.ProjectedPrice,
			"trend":             p.Trend,
		},
	}
}

// SimulatedCrash is the synthetic sigma event injected in simulation mode.
func SimulatedCrash(ticker string, at time.Time) RawEvent {
	v := market.Volatility{
		Ticker: ticker,
		Price:  market.SimulatedPrice,
		ZScore: -2.5,
		Status: market.StatusSigmaEvent,
	}
	p := market.Projection{ProjectedLoss: -5.0, Trend: "DOWNWARD"}
	ev := CrashEvent(ticker, v, p, at)
	ev.Metadata["simulated"] = true
	return ev
}

// RumorEvent builds the RUMOR event recorded for a smoking-gun item.
func RumorEvent(ticker string, item models.ContentItem) RawEvent {
	return RawEvent{
		Ticker:     ticker,
		SignalType: string(models.SignalRumor),
		Severity:   models.Clamp(item.PanicScore),
		Timestamp:  item.PublishedAt,
		Metadata: map[string]any{
			"headline": item.Headline,
			"link":     item.Link,
			"source":   item.Source,
		},
	}
}
