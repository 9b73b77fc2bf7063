package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/market"
	"aegis/metrics"
	"aegis/models"
)

type memTimeline struct {
	mu      sync.Mutex
	signals []models.Signal
	err     error
}

func (m *memTimeline) Append(_ context.Context, s models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.signals = append(m.signals, s)
	return nil
}

func newIngestor(tl Timeline, now time.Time) *Ingestor {
	return New(tl,
		WithClock(func() time.Time { return now }),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
}

func TestIngestSeverityBounds(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	cases := []struct {
		severity int
		ok       bool
	}{
		{-1, false},
		{0, true},
		{55, true},
		{100, true},
		{101, false},
	}
	for _, tc := range cases {
		tl := &memTimeline{}
		in := newIngestor(tl, now)
		sig, err := in.Ingest(ctx, RawEvent{Ticker: "XYZ", SignalType: "CRASH", Severity: tc.severity})
		if tc.ok {
			require.NoError(t, err, "severity %d", tc.severity)
			assert.Equal(t, tc.severity, sig.Severity)
			assert.Len(t, tl.signals, 1)
			continue
		}
		require.Error(t, err, "severity %d", tc.severity)
		assert.True(t, errors.Is(err, models.ErrValidation))
		var ve *models.ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "severity", ve.Field)
		assert.Empty(t, tl.signals, "nothing appended for severity %d", tc.severity)
	}
}

func TestIngestRejectsUnknownType(t *testing.T) {
	tl := &memTimeline{}
	_, err := newIngestor(tl, time.Now()).Ingest(context.Background(), RawEvent{Ticker: "XYZ", SignalType: "MELTDOWN", Severity: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Empty(t, tl.signals)

	_, err = newIngestor(tl, time.Now()).Ingest(context.Background(), RawEvent{SignalType: "CRASH", Severity: 10})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestIngestNormalizes(t *testing.T) {
	tl := &memTimeline{}
	now := time.Date(2026, 3, 2, 15, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	sig, err := newIngestor(tl, now).Ingest(context.Background(), RawEvent{Ticker: " xyz.ns ", SignalType: "rumor", Severity: 40})
	require.NoError(t, err)
	assert.Equal(t, "XYZ.NS", sig.Ticker)
	assert.Equal(t, models.SignalRumor, sig.SignalType)
	assert.Equal(t, time.UTC, sig.Timestamp.Location())
	assert.True(t, sig.Timestamp.Equal(now))
	assert.NotEmpty(t, sig.ID)
	assert.JSONEq(t, `{}`, string(sig.Metadata))
}

func TestIngestSurfacesStoreFailure(t *testing.T) {
	tl := &memTimeline{err: errors.New("disk full")}
	_, err := newIngestor(tl, time.Now()).Ingest(context.Background(), RawEvent{Ticker: "XYZ", SignalType: "CRASH", Severity: 10})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPersistence))
}

func TestCrashEvents(t *testing.T) {
	assert.Equal(t, 63, CrashSeverity(-2.5))
	assert.Equal(t, 100, CrashSeverity(-6))
	assert.Equal(t, 0, CrashSeverity(0))

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	ev := SimulatedCrash("DEMO.NS", at)
	assert.Equal(t, "CRASH", ev.SignalType)
	assert.Equal(t, market.SimulatedPrice, ev.Metadata["price"])
	assert.Equal(t, -2.5, ev.Metadata["z_score"])
	assert.Equal(t, -5.0, ev.Metadata["projected_loss"])
	assert.Equal(t, true, ev.Metadata["simulated"])

	tl := &memTimeline{}
	sig, err := newIngestor(tl, at).Ingest(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, -2.5, sig.MetaFloat("z_score"))
	assert.True(t, sig.MetaBool("simulated"))
}
