package archive

import (
	"context"
	"strings"
	"time"

	"aegis/models"
)

// SignalFilter narrows a timeline read. Zero values mean "any".
type SignalFilter struct {
	Ticker string
	Type   models.SignalType
	Since  time.Time
	Limit  int
}

// Append writes a signal to the timeline. Signals are never updated.
func (a *Archive) Append(ctx context.Context, s models.Signal) error {
	s.Timestamp = s.Timestamp.UTC()
	if err := a.db.WithContext(ctx).Create(&s).Error; err != nil {
		a.log.WithError(err).WithField("ticker", s.Ticker).Error("Failed to append signal")
		return persistErr("append signal", err)
	}
	return nil
}

// RecentSignals reads the timeline most-recent-first.
func (a *Archive) RecentSignals(ctx context.Context, f SignalFilter) ([]models.Signal, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	// Фильтры применяются только если заданы
	query := a.db.WithContext(ctx).Model(&models.Signal{})
	if f.Ticker != "" {
		query = query.Where("ticker = ?", strings.ToUpper(f.Ticker))
	}
	if f.Type != "" {
		query = query.Where("signal_type = ?", f.Type)
	}
	if !f.Since.IsZero() {
		query = query.Where("timestamp >= ?", f.Since.UTC())
	}

	var signals []models.Signal
	err := query.Order("timestamp DESC").Order("rowid DESC").Limit(limit).Find(&signals).Error
	if err != nil {
		return nil, persistErr("recent signals", err)
	}
	return signals, nil
}
