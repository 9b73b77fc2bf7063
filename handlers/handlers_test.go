package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"aegis/archive"
	"aegis/cache"
	"aegis/correlation"
	"aegis/database"
	"aegis/impact"
	"aegis/ingest"
	"aegis/market"
	"aegis/metrics"
	"aegis/models"
	"aegis/pipeline"
	"aegis/response"
)

var crashAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

type finderFunc func(ctx context.Context, ticker string, ts time.Time, lookback time.Duration) (*models.ContentItem, error)

func (f finderFunc) FindSmokingGun(ctx context.Context, ticker string, ts time.Time, lookback time.Duration) (*models.ContentItem, error) {
	return f(ctx, ticker, ts, lookback)
}

type testEnv struct {
	router    *gin.Engine
	db        *gorm.DB
	archive   *archive.Archive
	oracle    *market.StaticOracle
	scheduler *impact.Scheduler
}

func newEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "api.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	now := func() time.Time { return crashAt.Add(10 * time.Minute) }
	oracle := market.NewStaticOracle(map[string]float64{"XYZ": 940})
	oracle.SetHistory("ABC", []float64{100, 101, 100, 101, 100})

	arc := archive.New(db, archive.WithPriceOracle(oracle), archive.WithClock(now))
	m := metrics.New(nil)
	responder := response.New(nil)
	finder := finderFunc(func(_ context.Context, ticker string, ts time.Time, _ time.Duration) (*models.ContentItem, error) {
		return &models.ContentItem{
			Headline:    ticker + " CEO arrested in fraud probe",
			Link:        "https://news.example.com/" + ticker,
			Source:      "Example Wire",
			PublishedAt: ts.Add(2 * time.Minute),
			PanicScore:  90,
		}, nil
	})
	coord := pipeline.NewCoordinator(
		ingest.New(arc, ingest.WithMetrics(m)),
		finder,
		correlation.New(70, 15*time.Minute),
		responder,
		arc,
		oracle,
		pipeline.WithMetrics(m),
		pipeline.WithClock(now),
	)
	analyzer := impact.NewAnalyzer(arc, oracle, impact.WithMetrics(m), impact.WithClock(func() time.Time {
		return crashAt.Add(15 * time.Minute)
	}))
	scheduler := impact.NewScheduler(analyzer, time.Hour, impact.WithAfter(func(time.Duration) <-chan time.Time {
		return make(chan time.Time)
	}))
	t.Cleanup(scheduler.Stop)

	h := New(Deps{
		Archive:   arc,
		Pipeline:  coord,
		Responder: responder,
		Impact:    analyzer,
		Scheduler: scheduler,
		Cache:     cache.NewMemory(),
		Metrics:   m,
		Now:       now,
	})
	return testEnv{
		router:    NewRouter(h, nil),
		db:        db,
		archive:   arc,
		oracle:    oracle,
		scheduler: scheduler,
	}
}

func (e testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func crashBody() map[string]any {
	return map[string]any{
		"ticker":      "xyz",
		"signal_type": "crash",
		"severity":    85,
		"timestamp":   crashAt.Format(time.RFC3339),
		"metadata":    map[string]any{"price": 940.0, "projected_loss": -4.2},
	}
}

func TestWarRoomFlow(t *testing.T) {
	e := newEnv(t)

	// Сигнал обвала
	w := e.do(t, http.MethodPost, "/api/signals", crashBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	out := decode[pipeline.Outcome](t, w)
	require.Equal(t, pipeline.StatusVerified, out.Status)
	eventID := out.Threat.EventID
	assert.Equal(t, correlation.EventID("XYZ", crashAt), eventID)

	w = e.do(t, http.MethodGet, "/api/feed/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[FeedResponse](t, w)
	assert.False(t, feed.Degraded)
	assert.Equal(t, modeLive, feed.Mode)
	require.Len(t, feed.Threats, 1)
	assert.Equal(t, "CRITICAL", feed.Threats[0].Severity)
	assert.Equal(t, "READY", feed.Threats[0].Status)
	assert.NotEmpty(t, feed.Threats[0].Responses)

	w = e.do(t, http.MethodPost, "/api/deploy-response", map[string]string{
		"event_id":      eventID,
		"response_type": "ceo_alert",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dep := decode[DeployResponse](t, w)
	assert.Equal(t, "success", dep.Status)
	assert.Equal(t, models.MeasureCEOAlert, dep.ResponseType)
	assert.Equal(t, 940.0, dep.CurrentStockPrice)
	assert.Equal(t, models.PriceSourceOracle, dep.PriceSource)
	assert.NotZero(t, dep.MeasureID)
	assert.Equal(t, 1, e.scheduler.Pending())

	w = e.do(t, http.MethodGet, "/api/feed/live", nil)
	feed = decode[FeedResponse](t, w)
	require.Len(t, feed.Threats, 1)
	assert.Equal(t, "DEPLOYED", feed.Threats[0].Status)

	e.oracle.Set("XYZ", 944.7)
	w = e.do(t, http.MethodPost, "/api/impact/"+eventID+"/evaluate", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[impact.Result](t, w)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, dep.MeasureID, res.MeasureID)

	w = e.do(t, http.MethodGet, "/api/threats/"+eventID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[ThreatDetail](t, w)
	assert.Len(t, detail.Measures, 1)
	require.NotNil(t, detail.Impact)
	assert.Equal(t, models.OutcomeSuccess, detail.Impact.Outcome)
	assert.Len(t, detail.Attempts, 1)

	w = e.do(t, http.MethodGet, "/api/war-room/signals", nil)
	require.Equal(t, http.StatusOK, w.Code)
	signals := decode[SignalsResponse](t, w)
	assert.Len(t, signals.StockEvents, 1)
	assert.Len(t, signals.ThreatEvents, 1)
	assert.Equal(t, 2, signals.TotalEvents)
	assert.Equal(t, modeLive, signals.Mode)

	w = e.do(t, http.MethodPost, "/api/generate-responses/"+eventID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = e.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[archive.Stats](t, w)
	assert.Equal(t, int64(1), stats.Threats)
	assert.Equal(t, int64(1), stats.Deployed)
}

func TestErrorMapping(t *testing.T) {
	e := newEnv(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"deploy unknown event", http.MethodPost, "/api/deploy-response", map[string]string{"event_id": "NOPE_20260302_100000", "response_type": "CEO_ALERT"}, http.StatusNotFound},
		{"deploy unknown measure", http.MethodPost, "/api/deploy-response", map[string]string{"event_id": "NOPE_20260302_100000", "response_type": "CARRIER_PIGEON"}, http.StatusBadRequest},
		{"deploy without body", http.MethodPost, "/api/deploy-response", nil, http.StatusBadRequest},
		{"deploy missing event", http.MethodPost, "/api/deploy-response", map[string]string{"response_type": "CEO_ALERT"}, http.StatusBadRequest},
		{"severity out of range", http.MethodPost, "/api/signals", map[string]any{"ticker": "XYZ", "signal_type": "CRASH", "severity": 101}, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/signals", "{not json", http.StatusBadRequest},
		{"unknown threat", http.MethodGet, "/api/threats/NOPE", nil, http.StatusNotFound},
		{"evaluate without deployment", http.MethodPost, "/api/impact/NOPE/evaluate", nil, http.StatusNotFound},
		{"regenerate unknown threat", http.MethodPost, "/api/generate-responses/NOPE", nil, http.StatusNotFound},
		{"bad signal type filter", http.MethodGet, "/api/war-room/signals?type=FOO", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			body := decode[map[string]string](t, w)
			assert.NotEmpty(t, body["error"])
		})
	}

	signals, err := e.archive.RecentSignals(context.Background(), archive.SignalFilter{})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestDegradedReads(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/api/war-room/demo-attack", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = e.do(t, http.MethodGet, "/api/feed/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	live := decode[FeedResponse](t, w)
	require.Len(t, live.Threats, 1)

	require.NoError(t, database.Close(e.db))

	t.Run("feed serves cached snapshot", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/feed/live", nil)
		require.Equal(t, http.StatusOK, w.Code)
		feed := decode[FeedResponse](t, w)
		assert.True(t, feed.Degraded)
		assert.Equal(t, modeCache, feed.Mode)
		require.Len(t, feed.Threats, 1)
		assert.Equal(t, live.Threats[0].EventID, feed.Threats[0].EventID)
	})

	t.Run("signals fall back to demo data", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/api/war-room/signals?ticker=OTHER", nil)
		require.Equal(t, http.StatusOK, w.Code)
		signals := decode[SignalsResponse](t, w)
		assert.True(t, signals.Degraded)
		assert.Equal(t, modeDemo, signals.Mode)
		assert.NotEmpty(t, signals.StockEvents)
	})

	t.Run("writes never degrade", func(t *testing.T) {
		w := e.do(t, http.MethodPost, "/api/deploy-response", map[string]string{
			"event_id":      live.Threats[0].EventID,
			"response_type": "OFFICIAL_DENIAL",
		})
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		w = e.do(t, http.MethodPost, "/api/signals", crashBody())
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("health reports the store", func(t *testing.T) {
		w := e.do(t, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestScanAndDemoAttack(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/api/war-room/scan/abc", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, pipeline.StatusNoEvent, decode[pipeline.Outcome](t, w).Status)

	w = e.do(t, http.MethodPost, "/api/war-room/demo-attack?ticker=acme.ns", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[pipeline.Outcome](t, w)
	assert.Equal(t, pipeline.StatusVerified, out.Status)
	require.NotNil(t, out.Threat)
	assert.True(t, out.Threat.Simulated)
	assert.Equal(t, "ACME.NS", out.Threat.Ticker)
}

func TestRouterPlumbing(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodOptions, "/api/feed/live", nil)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	w = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "aegis_http_requests_total"))
}
