package content

import (
	"context"
	"fmt"
	"time"

	"aegis/models"
)

const (
	SimulatedPanic   = 92
	simulatedDelay   = 3 * time.Minute
	simulatedSource  = "Simulated Wire"
	simulatedLinkFmt = "https://aegis.local/simulated/%s"
)

// Simulated is the Finder used in simulation mode. It always reports one
// high-panic item published shortly after the crash.
type Simulated struct{}

func (Simulated) FindSmokingGun(_ context.Context, ticker string, crashTS time.Time, _ time.Duration) (*models.ContentItem, error) {
	company := CompanyName(ticker)
	return &models.ContentItem{
		Headline:    fmt.Sprintf("BREAKING: %s CEO Under Investigation for Accounting Fraud", company),
		Link:        fmt.Sprintf(simulatedLinkFmt, ticker),
		PublishedAt: crashTS.Add(simulatedDelay).UTC(),
		PanicScore:  SimulatedPanic,
		Source:      simulatedSource,
	}, nil
}
