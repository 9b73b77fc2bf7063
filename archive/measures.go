package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"aegis/models"
)

// DeployResponse records that a countermeasure was taken against an archived
// threat. The stock price is sampled from the oracle at deployment time and
// falls back to the archived price when the oracle is unavailable.
func (a *Archive) DeployResponse(ctx context.Context, eventID, measureType, deployedBy string) (models.DeployedMeasure, error) {
	var m models.DeployedMeasure

	mt, err := models.ParseMeasureType(measureType)
	if err != nil {
		return m, err
	}
	if eventID == "" {
		return m, &models.ValidationError{Field: "event_id", Reason: "required"}
	}

	threat, err := a.Get(ctx, eventID)
	if err != nil {
		return m, err
	}

	price, source := a.samplePrice(ctx, threat)

	text := threat.ResponseText(mt)
	if text == "" {
		text = fmt.Sprintf("Deploy %s for event %s", mt, eventID)
	}
	if deployedBy == "" {
		deployedBy = models.DefaultDeployedBy
	}

	now := a.clock()
	m = models.DeployedMeasure{
		EventID:                eventID,
		MeasureType:            mt,
		DeployedAt:             now,
		StockPriceAtDeployment: price,
		PriceSource:            source,
		Ticker:                 threat.Ticker,
		ResponseText:           text,
		DeployedBy:             deployedBy,
	}

	err = a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		res := tx.Model(&models.ThreatPackage{}).
			Where("event_id = ?", eventID).
			Updates(map[string]any{"response_deployed": true, "deployed_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.NotFoundError{Kind: "threat", Key: eventID}
		}
		return nil
	})
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return models.DeployedMeasure{}, err
		}
		return models.DeployedMeasure{}, persistErr("deploy response", err)
	}

	a.log.WithFields(logrus.Fields{
		"event_id":     eventID,
		"measure_type": mt,
		"measure_id":   m.ID,
		"price":        price,
		"price_source": source,
	}).Info("Response deployed")
	return m, nil
}

func (a *Archive) samplePrice(ctx context.Context, threat models.ThreatPackage) (float64, string) {
	if a.oracle != nil {
		price, err := a.oracle.CurrentPrice(ctx, threat.Ticker)
		if err == nil && price > 0 {
			return price, models.PriceSourceOracle
		}
		a.log.WithError(err).WithField("ticker", threat.Ticker).Warn("Price oracle unavailable, using archived price")
	}
	return threat.CurrentPrice, models.PriceSourceArchived
}

// GetMeasure returns a deployed measure by id.
func (a *Archive) GetMeasure(ctx context.Context, id uint) (models.DeployedMeasure, error) {
	var m models.DeployedMeasure
	err := a.db.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, &models.NotFoundError{Kind: "measure", Key: fmt.Sprint(id)}
	}
	if err != nil {
		return m, persistErr("get measure", err)
	}
	return m, nil
}

// MeasuresForEvent lists the measures deployed for an event, newest first.
func (a *Archive) MeasuresForEvent(ctx context.Context, eventID string) ([]models.DeployedMeasure, error) {
	var out []models.DeployedMeasure
	err := a.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("deployed_at DESC").
		Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, persistErr("list measures", err)
	}
	return out, nil
}

// LatestMeasure returns the most recently deployed measure for an event.
func (a *Archive) LatestMeasure(ctx context.Context, eventID string) (models.DeployedMeasure, error) {
	var m models.DeployedMeasure
	err := a.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("deployed_at DESC").
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return m, &models.NotFoundError{Kind: "deployed measure for event", Key: eventID}
	}
	if err != nil {
		return m, persistErr("latest measure", err)
	}
	return m, nil
}

// MeasuresSince lists every measure deployed at or after since, oldest first.
func (a *Archive) MeasuresSince(ctx context.Context, since time.Time) ([]models.DeployedMeasure, error) {
	var out []models.DeployedMeasure
	err := a.db.WithContext(ctx).
		Where("deployed_at >= ?", since.UTC()).
		Order("deployed_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, persistErr("measures since", err)
	}
	return out, nil
}

// SaveImpact writes the evaluation onto the measure and the summary onto its
// threat in one transaction. Re-evaluations overwrite.
func (a *Archive) SaveImpact(ctx context.Context, m models.DeployedMeasure, s models.ImpactSummary) error {
	var probe models.ThreatPackage
	if err := probe.SetImpact(s); err != nil {
		return fmt.Errorf("encode impact: %w", err)
	}
	evaluatedAt := s.EvaluatedAt.UTC()
	recovery := s.RecoveryPercent
	score := s.EffectivenessScore

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.DeployedMeasure{}).
			Where("id = ?", m.ID).
			Updates(map[string]any{
				"effectiveness_score":   score,
				"recovery_time_minutes": s.RecoveryTimeMinutes,
				"recovery_percent":      recovery,
				"outcome":               s.Outcome,
				"evaluated_at":          evaluatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &models.NotFoundError{Kind: "measure", Key: fmt.Sprint(m.ID)}
		}
		return tx.Model(&models.ThreatPackage{}).
			Where("event_id = ?", m.EventID).
			Update("post_impact_analysis", probe.PostImpactAnalysis).Error
	})
	if err != nil {
		var nf *models.NotFoundError
		if errors.As(err, &nf) {
			return err
		}
		return persistErr("save impact", err)
	}
	return nil
}
