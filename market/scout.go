package market

import (
	"fmt"
	"math"

	"aegis/models"
)

// Volatility status labels, ordered from the crash end of the scale.
const (
	StatusSigmaEvent     = "SIGMA_EVENT"
	StatusHighVolatility = "HIGH_VOLATILITY"
	StatusRally          = "RALLY"
	StatusStable         = "STABLE"
)

const (
	trendDown     = "DOWNWARD"
	trendUp       = "UPWARD"
	trendSideways = "SIDEWAYS"
)

// Volatility describes where the latest price sits against its series.
type Volatility struct {
	Ticker string  `json:"ticker"`
	Price  float64 `json:"price"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	ZScore float64 `json:"z_score"`
	Status string  `json:"volatility_status"`
}

// Crashed reports whether the latest price is a sigma event.
func (v Volatility) Crashed() bool {
	return v.Status == StatusSigmaEvent
}

// Projection is a straight-line extrapolation of the recent trend.
type Projection struct {
	Slope          float64 `json:"slope"`
	ProjectedPrice float64 `json:"projected_price_1hr"`
	ProjectedLoss  float64 `json:"projected_loss"`
	Trend          string  `json:"trend"`
}

// Analyze computes the population z-score of the last close.
func Analyze(ticker string, closes []float64) (Volatility, error) {
	if len(closes) < 2 {
		return Volatility{}, fmt.Errorf("analyze %s: need at least 2 prices, got %d", ticker, len(closes))
	}

	var sum float64
	for _, p := range closes {
		sum += p
	}
	mean := sum / float64(len(closes))

	var sq float64
	for _, p := range closes {
		sq += (p - mean) * (p - mean)
	}
	std := math.Sqrt(sq / float64(len(closes)))

	latest := closes[len(closes)-1]
	z := 0.0
	if std > 0 {
		z = (latest - mean) / std
	}

	status := StatusStable
	switch {
	case z < -2.0:
		status = StatusSigmaEvent
	case z < -1.0:
		status = StatusHighVolatility
	case z > 2.0:
		status = StatusRally
	}

	return Volatility{
		Ticker: ticker,
		Price:  models.Round(latest, 2),
		Mean:   models.Round(mean, 2),
		StdDev: models.Round(std, 2),
		ZScore: models.Round(z, 2),
		Status: status,
	}, nil
}

const (
	projectionWindow  = 10
	projectionHorizon = 12
)

// Project fits a least-squares line through the last ten closes and
// extrapolates twelve intervals past the window.
func Project(closes []float64) (Projection, error) {
	if len(closes) < 2 {
		return Projection{}, fmt.Errorf("project: need at least 2 prices, got %d", len(closes))
	}
	recent := closes
	if len(recent) > projectionWindow {
		recent = recent[len(recent)-projectionWindow:]
	}

	n := float64(len(recent))
	var sx, sy, sxy, sxx float64
	for i, y := range recent {
		x := float64(i)
		sx += x
		sy += y
		sxy += x * y
		sxx += x * x
	}
	slope := (n*sxy - sx*sy) / (n*sxx - sx*sx)
	intercept := (sy - slope*sx) / n

	projected := slope*float64(len(recent)+projectionHorizon) + intercept
	current := recent[len(recent)-1]
	change := 0.0
	if current != 0 {
		change = (projected - current) / current * 100
	}

	trend := trendSideways
	switch {
	case slope < -0.1:
		trend = trendDown
	case slope > 0.1:
		trend = trendUp
	}

	return Projection{
		Slope:          models.Round(slope, 4),
		ProjectedPrice: models.Round(projected, 2),
		ProjectedLoss:  models.Round(change, 2),
		Trend:          trend,
	}, nil
}
