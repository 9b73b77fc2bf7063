package market

import (
	"context"
	"strings"
	"sync"
)

const (
	SimulatedPrice    = 945.0
	simulatedRecovery = 0.6
)

// Simulated is the oracle used in simulation mode. The first quote per
// ticker is the crash price; every later quote shows a small recovery, so a
// response deployed in a demo evaluates as effective.
type Simulated struct {
	mu     sync.Mutex
	quoted map[string]bool
}

func NewSimulated() *Simulated {
	return &Simulated{quoted: map[string]bool{}}
}

func (s *Simulated) CurrentPrice(_ context.Context, ticker string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(ticker)
	if !s.quoted[key] {
		s.quoted[key] = true
		return SimulatedPrice, nil
	}
	return SimulatedPrice * (1 + simulatedRecovery/100), nil
}

// History returns a flat series that drops to the crash price on the last
// point.
func (s *Simulated) History(context.Context, string) ([]float64, error) {
	closes := make([]float64, 0, 30)
	for i := 0; i < 29; i++ {
		wiggle := 1.0
		if i%2 == 1 {
			wiggle = -1.0
		}
		closes = append(closes, SimulatedPrice*1.05+wiggle)
	}
	return append(closes, SimulatedPrice), nil
}
