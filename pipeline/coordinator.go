// Package pipeline runs the detection chain: scout, smoking-gun search,
// correlation, response drafting and archiving.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"aegis/content"
	"aegis/correlation"
	"aegis/impact"
	"aegis/ingest"
	"aegis/logging"
	"aegis/market"
	"aegis/metrics"
	"aegis/models"
	"aegis/response"
)

const (
	StatusNoEvent    = "NO_EVENT"
	StatusIgnored    = "IGNORED"
	StatusUnverified = "UNVERIFIED"
	StatusVerified   = "VERIFIED"
)

const (
	DefaultLookback           = 30 * time.Minute
	DefaultScanInterval       = 5 * time.Minute
	DefaultCorrelationTimeout = 2 * time.Minute
	maxConcurrentScans        = 4
)

// Archive is the persistence the coordinator writes to.
type Archive interface {
	ingest.Timeline
	Upsert(ctx context.Context, t models.ThreatPackage) (string, error)
	RecordAttempt(ctx context.Context, at models.CorrelationAttempt) error
}

// Sweeper re-evaluates recently deployed measures.
type Sweeper interface {
	Sweep(ctx context.Context, since time.Time) ([]impact.Result, error)
}

// Outcome describes what one pipeline pass did. An unverified crash is a
// normal outcome, not an error.
type Outcome struct {
	Ticker      string                `json:"ticker"`
	Status      string                `json:"status"`
	Volatility  *market.Volatility    `json:"volatility,omitempty"`
	Signal      *models.Signal        `json:"signal,omitempty"`
	Correlation *correlation.Result   `json:"correlation,omitempty"`
	Threat      *models.ThreatPackage `json:"threat,omitempty"`
}

type Config struct {
	Lookback     time.Duration
	ScanInterval time.Duration
	SweepWindow  time.Duration
	Concurrency  int
	// CorrelationTimeout bounds one merged correlation run, which outlives
	// the callers waiting on it.
	CorrelationTimeout time.Duration
	// Simulation tags scout crashes as simulated; set it when the oracle
	// and finder are synthetic.
	Simulation bool
}

// Coordinator owns no mutable state beyond the in-flight call group; all
// coordination between runs goes through the archive.
type Coordinator struct {
	ingestor  *ingest.Ingestor
	finder    content.Finder
	engine    *correlation.Engine
	responder *response.Orchestrator
	archive   Archive
	oracle    market.PriceOracle
	sweeper   Sweeper
	metrics   *metrics.Collector
	log       *logrus.Entry
	now       func() time.Time
	cfg       Config

	inflight singleflight.Group
	wg       sync.WaitGroup
}

type Option func(*Coordinator)

func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.log = logging.Component(l, "pipeline") }
}

func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSweeper enables the impact sweep at the end of every surveillance cycle.
func WithSweeper(s Sweeper) Option {
	return func(c *Coordinator) { c.sweeper = s }
}

func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg }
}

func NewCoordinator(
	ingestor *ingest.Ingestor,
	finder content.Finder,
	engine *correlation.Engine,
	responder *response.Orchestrator,
	archive Archive,
	oracle market.PriceOracle,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		ingestor:  ingestor,
		finder:    finder,
		engine:    engine,
		responder: responder,
		archive:   archive,
		oracle:    oracle,
		log:       logging.Component(nil, "pipeline"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = metrics.New(nil)
	}
	if c.cfg.Lookback <= 0 {
		c.cfg.Lookback = DefaultLookback
	}
	if c.cfg.ScanInterval <= 0 {
		c.cfg.ScanInterval = DefaultScanInterval
	}
	if c.cfg.SweepWindow <= 0 {
		c.cfg.SweepWindow = impact.DefaultSweepWindow
	}
	if c.cfg.Concurrency <= 0 {
		c.cfg.Concurrency = maxConcurrentScans
	}
	if c.cfg.CorrelationTimeout <= 0 {
		c.cfg.CorrelationTimeout = DefaultCorrelationTimeout
	}
	return c
}

// Ingest appends a raw event and, for a crash, runs correlation on it.
func (c *Coordinator) Ingest(ctx context.Context, raw ingest.RawEvent) (Outcome, error) {
	sig, err := c.ingestor.Ingest(ctx, raw)
	if err != nil {
		return Outcome{}, err
	}
	return c.HandleSignal(ctx, sig)
}

// HandleSignal correlates a crash signal. Concurrent calls for the same
// event are merged into one run.
func (c *Coordinator) HandleSignal(ctx context.Context, sig models.Signal) (Outcome, error) {
	return c.handle(ctx, sig, c.finder)
}

// ProcessTicker runs one scout pass for ticker. Only a sigma event starts a
// correlation.
func (c *Coordinator) ProcessTicker(ctx context.Context, ticker string) (Outcome, error) {
	log := c.log.WithField("ticker", ticker)

	closes, err := c.oracle.History(ctx, ticker)
	if err != nil {
		return Outcome{}, fmt.Errorf("price history for %s: %w", ticker, err)
	}
	vol, err := market.Analyze(ticker, closes)
	if err != nil {
		return Outcome{}, err
	}
	if !vol.Crashed() {
		log.WithFields(logrus.Fields{
			"z_score": vol.ZScore,
			"status":  vol.Status,
		}).Debug("No sigma event")
		return Outcome{Ticker: ticker, Status: StatusNoEvent, Volatility: &vol}, nil
	}
	proj, err := market.Project(closes)
	if err != nil {
		return Outcome{}, err
	}

	log.WithFields(logrus.Fields{
		"z_score":        vol.ZScore,
		"projected_loss": proj.ProjectedLoss,
	}).Warn("Sigma event detected")

	raw := ingest.CrashEvent(ticker, vol, proj, c.now())
	if c.cfg.Simulation {
		raw.Metadata["simulated"] = true
	}
	sig, err := c.ingestor.Ingest(ctx, raw)
	if err != nil {
		return Outcome{}, err
	}
	out, err := c.HandleSignal(ctx, sig)
	if err != nil {
		return Outcome{}, err
	}
	out.Volatility = &vol
	return out, nil
}

// Simulate injects a synthetic crash for ticker and correlates it against
// the simulated finder, with no external calls.
func (c *Coordinator) Simulate(ctx context.Context, ticker string) (Outcome, error) {
	sig, err := c.ingestor.Ingest(ctx, ingest.SimulatedCrash(ticker, c.now()))
	if err != nil {
		return Outcome{}, err
	}
	return c.handle(ctx, sig, content.Simulated{})
}

func (c *Coordinator) handle(ctx context.Context, sig models.Signal, finder content.Finder) (Outcome, error) {
	if sig.SignalType != models.SignalCrash {
		return Outcome{Ticker: sig.Ticker, Status: StatusIgnored, Signal: &sig}, nil
	}
	key := correlation.EventID(sig.Ticker, sig.Timestamp)
	// Общий прогон не зависит от отмены отдельного вызывающего
	ch := c.inflight.DoChan(key, func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CorrelationTimeout)
		defer cancel()
		return c.correlate(runCtx, sig, finder)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return Outcome{}, res.Err
	}
	if res.Shared {
		c.log.WithField("event_id", key).Debug("Merged concurrent correlation")
	}
	out := res.Val.(Outcome)
	out.Signal = &sig
	return out, nil
}

func (c *Coordinator) correlate(ctx context.Context, crash models.Signal, finder content.Finder) (Outcome, error) {
	log := c.log.WithFields(logrus.Fields{
		"ticker":   crash.Ticker,
		"event_id": correlation.EventID(crash.Ticker, crash.Timestamp),
	})

	item, err := finder.FindSmokingGun(ctx, crash.Ticker, crash.Timestamp, c.cfg.Lookback)
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		log.WithError(err).Warn("Smoking gun search failed, continuing without content")
		item = nil
	}
	if item != nil {
		if _, err := c.ingestor.Ingest(ctx, ingest.RumorEvent(crash.Ticker, *item)); err != nil {
			return Outcome{}, err
		}
	}

	res := c.engine.Correlate(crash, item)
	c.metrics.Correlations.WithLabelValues(res.Verdict).Inc()
	if item != nil {
		c.metrics.CorrelationConfidence.Observe(float64(res.Confidence))
	}

	out := Outcome{Ticker: crash.Ticker, Status: StatusUnverified, Correlation: &res}
	if res.Correlated() {
		threat := correlation.Package(crash, res)
		responses, err := c.responder.GenerateResponses(ctx, threat)
		if err != nil {
			return Outcome{}, err
		}
		if err := threat.SetResponses(responses); err != nil {
			return Outcome{}, err
		}
		if _, err := c.archive.Upsert(ctx, threat); err != nil {
			return Outcome{}, err
		}
		c.metrics.ThreatsArchived.Inc()
		out.Status = StatusVerified
		out.Threat = &threat
	}

	if err := c.archive.RecordAttempt(ctx, correlation.Attempt(crash, res)); err != nil {
		return Outcome{}, err
	}

	log.WithFields(logrus.Fields{
		"verdict":    res.Verdict,
		"reason":     res.Reason,
		"confidence": res.Confidence,
	}).Info("Correlation complete")
	return out, nil
}

// Surveil scans tickers now and then every scan interval until ctx is
// cancelled. Call Wait after cancelling.
func (c *Coordinator) Surveil(ctx context.Context, tickers []string) {
	list := append([]string(nil), tickers...)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.cycle(ctx, list)

		ticker := time.NewTicker(c.cfg.ScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cycle(ctx, list)
			}
		}
	}()
}

// Wait blocks until the surveillance goroutine exits.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) cycle(ctx context.Context, tickers []string) {
	var g errgroup.Group
	g.SetLimit(c.cfg.Concurrency)
	for _, t := range tickers {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if _, err := c.ProcessTicker(ctx, t); err != nil && ctx.Err() == nil {
				c.log.WithError(err).WithField("ticker", t).Error("Scan failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if c.sweeper == nil || ctx.Err() != nil {
		return
	}
	results, err := c.sweeper.Sweep(ctx, c.now().Add(-c.cfg.SweepWindow))
	if err != nil {
		c.log.WithError(err).Warn("Impact sweep incomplete")
	}
	if len(results) > 0 {
		c.log.WithField("evaluated", len(results)).Info("Impact sweep complete")
	}
}
