package market

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// PriceOracle is the market-data capability shared by the scout, the
// archive and the impact analyzer.
type PriceOracle interface {
	CurrentPrice(ctx context.Context, ticker string) (float64, error)
	History(ctx context.Context, ticker string) ([]float64, error)
}

// StaticOracle serves fixed prices. Tickers without an entry fail.
type StaticOracle struct {
	mu      sync.Mutex
	prices  map[string]float64
	history map[string][]float64
}

func NewStaticOracle(prices map[string]float64) *StaticOracle {
	o := &StaticOracle{prices: map[string]float64{}, history: map[string][]float64{}}
	for k, v := range prices {
		o.prices[strings.ToUpper(k)] = v
	}
	return o
}

// Set changes the current price for ticker.
func (o *StaticOracle) Set(ticker string, price float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[strings.ToUpper(ticker)] = price
}

// SetHistory installs the close series returned by History.
func (o *StaticOracle) SetHistory(ticker string, closes []float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history[strings.ToUpper(ticker)] = append([]float64(nil), closes...)
}

func (o *StaticOracle) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.prices[strings.ToUpper(ticker)]
	if !ok {
		return 0, fmt.Errorf("no price for %s", ticker)
	}
	return p, nil
}

func (o *StaticOracle) History(_ context.Context, ticker string) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	h, ok := o.history[strings.ToUpper(ticker)]
	if !ok {
		return nil, fmt.Errorf("no history for %s", ticker)
	}
	return append([]float64(nil), h...), nil
}
