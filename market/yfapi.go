package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"aegis/logging"
	"aegis/metrics"
	"aegis/models"
)

// DefaultMaxRetries applies when ClientConfig.MaxRetries is zero.
const DefaultMaxRetries = 3

// ClientConfig configures the yfapi.net chart client.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// MaxRetries of zero means DefaultMaxRetries; negative disables retries.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// RequestsPerSecond caps outbound calls; the paid tier is metered.
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            logrus.FieldLogger
	Metrics           *metrics.Collector
}

// Client reads intraday closes from the yfapi.net chart endpoint.
type Client struct {
	baseURL  string
	apiKey   string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	executor failsafe.Executor[*chartResponse]
	log      *logrus.Entry
	metrics  *metrics.Collector
}

// HTTPError is a non-2xx answer from the chart endpoint.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("yfapi: status %d: %s", e.StatusCode, e.Body)
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://yfapi.net"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 200 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = 5 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(nil)
	}

	retry := retrypolicy.NewBuilder[*chartResponse]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *chartResponse, err error) bool {
			return retryable(err)
		}).
		Build()

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		timeout:  cfg.Timeout,
		http:     cfg.HTTPClient,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		executor: failsafe.With[*chartResponse](retry),
		log:      logging.Component(cfg.Logger, "market"),
		metrics:  cfg.Metrics,
	}
}

func retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var he *HTTPError
	if errors.As(err, &he) {
		return he.StatusCode == http.StatusTooManyRequests || he.StatusCode >= 500
	}
	return true
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (r *chartResponse) closes() []float64 {
	if r == nil || len(r.Chart.Result) == 0 || len(r.Chart.Result[0].Indicators.Quote) == 0 {
		return nil
	}
	var out []float64
	for _, p := range r.Chart.Result[0].Indicators.Quote[0].Close {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

// History returns today's one-minute closes. Sparse days fall back to the
// five-minute series and then to the last five daily closes.
func (c *Client) History(ctx context.Context, ticker string) ([]float64, error) {
	attempts := []struct{ rng, interval string }{
		{"1d", "1m"},
		{"1d", "5m"},
		{"5d", "1d"},
	}
	var lastErr error
	for i, a := range attempts {
		resp, err := c.chart(ctx, ticker, a.rng, a.interval)
		if err != nil {
			var te *models.UpstreamTimeoutError
			if errors.As(err, &te) {
				return nil, err
			}
			lastErr = err
			continue
		}
		closes := resp.closes()
		minPoints := 10
		if i == len(attempts)-1 {
			minPoints = 2
		}
		if len(closes) >= minPoints {
			return closes, nil
		}
		c.log.WithFields(logrus.Fields{
			"ticker":   ticker,
			"interval": a.interval,
			"points":   len(closes),
		}).Warn("Insufficient price data, trying coarser interval")
		lastErr = fmt.Errorf("insufficient price data for %s: %d points", ticker, len(closes))
	}
	return nil, lastErr
}

// CurrentPrice returns the last close, or the regular market price when the
// intraday series is empty.
func (c *Client) CurrentPrice(ctx context.Context, ticker string) (float64, error) {
	resp, err := c.chart(ctx, ticker, "1d", "1m")
	if err != nil {
		return 0, err
	}
	if closes := resp.closes(); len(closes) > 0 {
		return closes[len(closes)-1], nil
	}
	if len(resp.Chart.Result) > 0 && resp.Chart.Result[0].Meta.RegularMarketPrice > 0 {
		return resp.Chart.Result[0].Meta.RegularMarketPrice, nil
	}
	return 0, fmt.Errorf("no price available for %s", ticker)
}

func (c *Client) chart(ctx context.Context, ticker, rng, interval string) (*chartResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*c.timeout)
	defer cancel()

	resp, err := c.executor.WithContext(ctx).Get(func() (*chartResponse, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return c.fetch(ctx, ticker, rng, interval)
	})
	if err != nil {
		if ctx.Err() != nil {
			c.metrics.UpstreamTimeouts.WithLabelValues("market").Inc()
			return nil, &models.UpstreamTimeoutError{Upstream: "market", Err: ctx.Err()}
		}
		return nil, fmt.Errorf("fetch chart %s: %w", ticker, err)
	}
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, ticker, rng, interval string) (*chartResponse, error) {
	q := url.Values{}
	q.Set("range", rng)
	q.Set("interval", interval)
	q.Set("indicators", "quote")
	q.Set("includeTimestamps", "true")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", c.baseURL, url.PathEscape(ticker), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &HTTPError{StatusCode: res.StatusCode, Body: string(body)}
	}

	var out chartResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chart: %w", err)
	}
	if out.Chart.Error != nil {
		return nil, fmt.Errorf("chart error %s: %s", out.Chart.Error.Code, out.Chart.Error.Description)
	}
	return &out, nil
}
