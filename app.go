package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"aegis/archive"
	"aegis/cache"
	"aegis/config"
	"aegis/content"
	"aegis/correlation"
	"aegis/database"
	"aegis/handlers"
	"aegis/impact"
	"aegis/ingest"
	"aegis/market"
	"aegis/metrics"
	"aegis/pipeline"
	"aegis/response"
)

// app is the fully wired service shared by every command.
type app struct {
	cfg       config.Config
	log       *logrus.Logger
	db        *gorm.DB
	metrics   *metrics.Collector
	archive   *archive.Archive
	pipeline  *pipeline.Coordinator
	responder *response.Orchestrator
	impact    *impact.Analyzer
	scheduler *impact.Scheduler
	cache     cache.Cache
}

func buildApp(ctx context.Context, cfg config.Config, log *logrus.Logger) (*app, error) {
	db, err := database.Open(cfg.DBPath, log)
	if err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		oracle market.PriceOracle
		finder content.Finder
	)
	if cfg.Simulation {
		log.Warn("Simulation mode: using synthetic prices and news")
		oracle = market.NewSimulated()
		finder = content.Simulated{}
	} else {
		oracle = market.NewClient(market.ClientConfig{
			BaseURL:           cfg.MarketBaseURL,
			APIKey:            cfg.YFAPIKey,
			Timeout:           10 * time.Second,
			RequestsPerSecond: 2,
			Logger:            log,
			Metrics:           m,
		})
		news := content.NewGoogleNews(content.WithRateLimit(rate.NewLimiter(rate.Every(time.Second), 3)))
		finder = content.NewAnalyzer(news, content.NewKeywordScorer(), content.Options{
			MinPanic:     cfg.MinPanicScore,
			ForwardSlack: cfg.ForwardSlack,
			Timeout:      cfg.ContentTimeout,
			Logger:       log,
			Metrics:      m,
		})
	}

	gen, err := textGenerator(ctx, cfg, log)
	if err != nil {
		_ = database.Close(db)
		return nil, err
	}
	responder := response.New(gen, response.WithLogger(log))

	arc := archive.New(db, archive.WithLogger(log), archive.WithPriceOracle(oracle))
	analyzer := impact.NewAnalyzer(arc, oracle, impact.WithLogger(log), impact.WithMetrics(m))
	scheduler := impact.NewScheduler(analyzer, cfg.ImpactDelay, impact.WithSchedulerLogger(log))

	coord := pipeline.NewCoordinator(
		ingest.New(arc, ingest.WithLogger(log), ingest.WithMetrics(m)),
		finder,
		correlation.New(cfg.VerificationThreshold, cfg.PlausibleWindow),
		responder,
		arc,
		oracle,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(m),
		pipeline.WithSweeper(analyzer),
		pipeline.WithConfig(pipeline.Config{
			Lookback:     cfg.Lookback,
			ScanInterval: cfg.ScanInterval,
			SweepWindow:  cfg.ImpactSweepWindow,
			Simulation:   cfg.Simulation,
		}),
	)

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		metrics:   m,
		archive:   arc,
		pipeline:  coord,
		responder: responder,
		impact:    analyzer,
		scheduler: scheduler,
		cache:     snapshotCache(ctx, cfg, log),
	}, nil
}

// textGenerator picks the drafting backend from the configured keys. With
// none set every response comes from templates.
func textGenerator(ctx context.Context, cfg config.Config, log *logrus.Logger) (response.TextGenerator, error) {
	switch {
	case cfg.GeminiAPIKey != "":
		g, err := response.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("init gemini: %w", err)
		}
		log.WithField("model", cfg.GeminiModel).Info("Drafting responses with Gemini")
		return g, nil
	case cfg.DeepSeekAPIKey != "":
		log.Info("Drafting responses with DeepSeek")
		return response.NewDeepSeek(cfg.DeepSeekAPIKey), nil
	}
	log.Info("No generator key configured, drafting responses from templates")
	return nil, nil
}

func snapshotCache(ctx context.Context, cfg config.Config, log *logrus.Logger) cache.Cache {
	if cfg.RedisAddr == "" {
		return cache.NewMemory()
	}
	r, err := cache.NewRedis(ctx, cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, using in-memory snapshot cache")
		return cache.NewMemory()
	}
	return r
}

func (a *app) handler() *handlers.Handler {
	return handlers.New(handlers.Deps{
		Archive:   a.archive,
		Pipeline:  a.pipeline,
		Responder: a.responder,
		Impact:    a.impact,
		Scheduler: a.scheduler,
		Cache:     a.cache,
		Metrics:   a.metrics,
		Logger:    a.log,
	})
}

func (a *app) Close() {
	a.scheduler.Stop()
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close cache")
	}
	if err := database.Close(a.db); err != nil {
		a.log.WithError(err).Warn("Failed to close database")
	}
}
