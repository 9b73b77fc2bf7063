package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"aegis/archive"
	"aegis/cache"
	"aegis/database"
	"aegis/impact"
	"aegis/logging"
	"aegis/metrics"
	"aegis/models"
	"aegis/pipeline"
	"aegis/response"
)

const (
	modeLive  = "live"
	modeCache = "cache"
	modeDemo  = "demo"
)

// Deps wires the war-room API to the pipeline components.
type Deps struct {
	Archive   *archive.Archive
	Pipeline  *pipeline.Coordinator
	Responder *response.Orchestrator
	Impact    *impact.Analyzer
	Scheduler *impact.Scheduler
	Cache     cache.Cache
	Metrics   *metrics.Collector
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

type Handler struct {
	archive   *archive.Archive
	pipeline  *pipeline.Coordinator
	responder *response.Orchestrator
	impact    *impact.Analyzer
	scheduler *impact.Scheduler
	cache     cache.Cache
	metrics   *metrics.Collector
	log       *logrus.Entry
	now       func() time.Time
}

func New(d Deps) *Handler {
	h := &Handler{
		archive:   d.Archive,
		pipeline:  d.Pipeline,
		responder: d.Responder,
		impact:    d.Impact,
		scheduler: d.Scheduler,
		cache:     d.Cache,
		metrics:   d.Metrics,
		log:       logging.Component(d.Logger, "api"),
		now:       d.Now,
	}
	if h.cache == nil {
		h.cache = cache.NewMemory()
	}
	if h.metrics == nil {
		h.metrics = metrics.New(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (h *Handler) Health(c *gin.Context) {
	if err := database.Ping(h.archive.DB()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"service":  "aegis",
			"database": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "aegis",
		"database": "ok",
	})
}

// respondError maps the error taxonomy onto HTTP status codes.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrPersistence):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{
			"path":       c.FullPath(),
			"request_id": c.GetString("request_id"),
		}).Error("Request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func bindError(err error) error {
	return &models.ValidationError{Reason: err.Error()}
}

// modal is a read payload that can be flagged as degraded.
type modal interface {
	setMode(mode string)
}

type freshness struct {
	Degraded bool   `json:"degraded"`
	Mode     string `json:"mode"`
}

func (f *freshness) setMode(mode string) {
	f.Mode = mode
	f.Degraded = mode != modeLive
}

// serveRead answers a read endpoint. Live data is snapshotted into the
// cache; when the store is down the last snapshot is served, and without one
// the built-in sample data. Anything other than a store failure is an error.
func serveRead[T any, PT interface {
	*T
	modal
}](h *Handler, c *gin.Context, key string, load func(context.Context) (T, error), demo func() T) {
	ctx := c.Request.Context()

	live, err := load(ctx)
	if err == nil {
		PT(&live).setMode(modeLive)
		if cerr := h.cache.Set(ctx, key, live, cache.DefaultTTL); cerr != nil {
			h.log.WithError(cerr).WithField("key", key).Warn("Snapshot not cached")
		}
		c.JSON(http.StatusOK, live)
		return
	}
	if !errors.Is(err, models.ErrPersistence) {
		h.respondError(c, err)
		return
	}

	log := h.log.WithError(err).WithField("key", key)
	var snap T
	ok, cerr := h.cache.Get(ctx, key, &snap)
	if cerr != nil {
		log = log.WithField("cache_error", cerr.Error())
	}
	if ok {
		log.Warn("Store unavailable, serving cached snapshot")
		PT(&snap).setMode(modeCache)
		c.JSON(http.StatusOK, snap)
		return
	}

	log.Warn("Store unavailable, serving demo data")
	sample := demo()
	PT(&sample).setMode(modeDemo)
	c.JSON(http.StatusOK, sample)
}
