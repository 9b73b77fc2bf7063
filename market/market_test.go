package market

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aegis/metrics"
	"aegis/models"
)

func TestAnalyze(t *testing.T) {
	t.Run("sigma event", func(t *testing.T) {
		closes := []float64{100, 101, 99, 100, 101, 99, 100, 101, 99, 90}
		v, err := Analyze("XYZ", closes)
		require.NoError(t, err)
		assert.Equal(t, StatusSigmaEvent, v.Status)
		assert.True(t, v.Crashed())
		assert.Less(t, v.ZScore, -2.0)
		assert.Equal(t, 90.0, v.Price)
	})

	t.Run("flat series is stable", func(t *testing.T) {
		v, err := Analyze("XYZ", []float64{50, 50, 50})
		require.NoError(t, err)
		assert.Equal(t, 0.0, v.ZScore)
		assert.Equal(t, StatusStable, v.Status)
	})

	t.Run("rally", func(t *testing.T) {
		v, err := Analyze("XYZ", []float64{100, 101, 99, 100, 101, 99, 100, 101, 99, 110})
		require.NoError(t, err)
		assert.Equal(t, StatusRally, v.Status)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := Analyze("XYZ", []float64{1})
		assert.Error(t, err)
	})
}

func TestProject(t *testing.T) {
	// 1..20 falling by 1 per step; the fit is exact.
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	p, err := Project(closes)
	require.NoError(t, err)
	assert.Equal(t, -1.0, p.Slope)
	assert.Equal(t, trendDown, p.Trend)
	// last ten are 190..181, x=0..9; projected at x=22 is 190-22 = 168
	assert.Equal(t, 168.0, p.ProjectedPrice)
	assert.Equal(t, models.Round((168.0-181.0)/181.0*100, 2), p.ProjectedLoss)
}

func TestSimulatedOracle(t *testing.T) {
	ctx := context.Background()
	s := NewSimulated()

	first, err := s.CurrentPrice(ctx, "demo.ns")
	require.NoError(t, err)
	assert.Equal(t, SimulatedPrice, first)
	second, err := s.CurrentPrice(ctx, "DEMO.NS")
	require.NoError(t, err)
	assert.Greater(t, second, first)

	h, err := s.History(ctx, "DEMO.NS")
	require.NoError(t, err)
	v, err := Analyze("DEMO.NS", h)
	require.NoError(t, err)
	assert.True(t, v.Crashed())
}

func chartJSON(closes ...float64) string {
	parts := make([]string, len(closes))
	for i, c := range closes {
		parts[i] = fmt.Sprintf("%g", c)
	}
	return `{"chart":{"result":[{"meta":{"symbol":"XYZ","regularMarketPrice":1},"indicators":{"quote":[{"close":[` +
		strings.Join(parts, ",") + `,null]}]}}],"error":null}}`
}

func testClient(url string, timeout time.Duration) *Client {
	return NewClient(ClientConfig{
		BaseURL:           url,
		APIKey:            "k",
		Timeout:           timeout,
		MaxRetries:        2,
		BaseDelay:         time.Millisecond,
		MaxDelay:          2 * time.Millisecond,
		RequestsPerSecond: 1000,
		Metrics:           metrics.New(prometheus.NewRegistry()),
	})
}

func TestClientCurrentPrice(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.Header.Get("X-API-KEY"))
		assert.Equal(t, "/v8/finance/chart/XYZ", r.URL.Path)
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chartJSON(941, 940.5, 944.7)))
	}))
	defer srv.Close()

	price, err := testClient(srv.URL, time.Second).CurrentPrice(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 944.7, price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL, time.Second).CurrentPrice(context.Background(), "XYZ")
	require.Error(t, err)
	var he *HTTPError
	assert.True(t, errors.As(err, &he))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClientHistoryFallsBack(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("interval") {
		case "1m", "5m":
			_, _ = w.Write([]byte(chartJSON(1, 2)))
		default:
			_, _ = w.Write([]byte(chartJSON(10, 11, 12)))
		}
	}))
	defer srv.Close()

	closes, err := testClient(srv.URL, time.Second).History(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 11, 12}, closes)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := testClient(srv.URL, 5*time.Second).CurrentPrice(ctx, "XYZ")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrUpstreamTimeout))
}

func TestClientRetriesWithDefaults(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(chartJSON(940, 944.7)))
	}))
	defer srv.Close()

	// same shape as the service wiring: retries left at their default
	c := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		APIKey:            "k",
		Timeout:           10 * time.Second,
		RequestsPerSecond: 2,
		Metrics:           metrics.New(prometheus.NewRegistry()),
	})

	price, err := c.CurrentPrice(context.Background(), "XYZ")
	require.NoError(t, err)
	assert.Equal(t, 944.7, price)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClientNegativeRetriesDisables(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		BaseURL:           srv.URL,
		MaxRetries:        -1,
		RequestsPerSecond: 1000,
		Metrics:           metrics.New(prometheus.NewRegistry()),
	})

	_, err := c.CurrentPrice(context.Background(), "XYZ")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
