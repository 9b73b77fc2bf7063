package archive

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"aegis/models"
)

// upsertColumns are overwritten when a threat is archived again under the
// same event id. response_deployed and deployed_at are owned by deploy.
var upsertColumns = []string{
	"ticker",
	"crash_timestamp",
	"article_timestamp",
	"latency_minutes",
	"smoking_gun_headline",
	"smoking_gun_link",
	"current_price",
	"z_score",
	"projected_loss",
	"panic_score",
	"correlation_confidence",
	"verdict",
	"responses",
	"simulated",
	"updated_at",
}

// Upsert archives a threat keyed by its event id and returns the id.
// Re-archiving the same event overwrites the correlation and response data
// in place; there is never more than one row per event.
func (a *Archive) Upsert(ctx context.Context, t models.ThreatPackage) (string, error) {
	if t.EventID == "" {
		return "", &models.ValidationError{Field: "event_id", Reason: "required"}
	}

	row := t
	row.ID = 0
	row.CrashTimestamp = row.CrashTimestamp.UTC()
	row.ArticleTimestamp = row.ArticleTimestamp.UTC()
	row.ResponseDeployed = false
	row.DeployedAt = nil

	cols := upsertColumns
	if len(row.PostImpactAnalysis) > 0 && string(row.PostImpactAnalysis) != "null" {
		cols = append(append([]string{}, upsertColumns...), "post_impact_analysis")
	} else {
		row.PostImpactAnalysis = nil
	}

	err := a.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
	if err != nil {
		a.log.WithError(err).WithField("event_id", t.EventID).Error("Failed to archive threat")
		return "", persistErr("upsert threat", err)
	}

	a.log.WithFields(logrus.Fields{
		"event_id":   t.EventID,
		"ticker":     t.Ticker,
		"confidence": t.CorrelationConfidence,
	}).Info("Threat archived")
	return t.EventID, nil
}

// Get returns the archived threat for eventID.
func (a *Archive) Get(ctx context.Context, eventID string) (models.ThreatPackage, error) {
	var t models.ThreatPackage
	err := a.db.WithContext(ctx).Where("event_id = ?", eventID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return t, &models.NotFoundError{Kind: "threat", Key: eventID}
	}
	if err != nil {
		return t, persistErr("get threat", err)
	}
	return t, nil
}

// RecentThreats returns up to limit threats, newest crash first.
func (a *Archive) RecentThreats(ctx context.Context, limit int) ([]models.ThreatPackage, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 500 {
		limit = 500
	}
	var out []models.ThreatPackage
	err := a.db.WithContext(ctx).
		Order("crash_timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, persistErr("recent threats", err)
	}
	return out, nil
}

// UpdateResponses replaces the drafted responses of an archived threat.
func (a *Archive) UpdateResponses(ctx context.Context, eventID string, rs []models.ResponseCandidate) error {
	var probe models.ThreatPackage
	if err := probe.SetResponses(rs); err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	res := a.db.WithContext(ctx).Model(&models.ThreatPackage{}).
		Where("event_id = ?", eventID).
		Update("responses", probe.Responses)
	if res.Error != nil {
		return persistErr("update responses", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Kind: "threat", Key: eventID}
	}
	return nil
}

// RecordAttempt logs one correlation run, whatever its verdict.
func (a *Archive) RecordAttempt(ctx context.Context, at models.CorrelationAttempt) error {
	at.ID = 0
	at.CrashTimestamp = at.CrashTimestamp.UTC()
	if at.CreatedAt.IsZero() {
		at.CreatedAt = a.clock()
	}
	if err := a.db.WithContext(ctx).Create(&at).Error; err != nil {
		return persistErr("record attempt", err)
	}
	return nil
}

// Attempts returns the recorded correlation runs for an event, newest first.
func (a *Archive) Attempts(ctx context.Context, eventID string) ([]models.CorrelationAttempt, error) {
	var out []models.CorrelationAttempt
	err := a.db.WithContext(ctx).Where("event_id = ?", eventID).Order("id DESC").Find(&out).Error
	if err != nil {
		return nil, persistErr("list attempts", err)
	}
	return out, nil
}
