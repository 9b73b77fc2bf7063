package archive

import (
	"context"
	"database/sql"

	"aegis/models"
)

// Stats aggregates the archive for the war-room header.
type Stats struct {
	Signals          int64            `json:"signals"`
	Crashes          int64            `json:"crashes"`
	Rumors           int64            `json:"rumors"`
	Threats          int64            `json:"threats"`
	Critical         int64            `json:"critical"`
	Deployed         int64            `json:"deployed"`
	AvgConfidence    float64          `json:"avg_confidence"`
	Measures         int64            `json:"measures"`
	Outcomes         map[string]int64 `json:"outcomes"`
	AttemptsRejected int64            `json:"attempts_rejected"`
}

func (a *Archive) Stats(ctx context.Context) (Stats, error) {
	db := a.db.WithContext(ctx)
	st := Stats{Outcomes: map[string]int64{}}

	counts := []struct {
		dest  *int64
		model any
		where string
		args  []any
	}{
		// Сигналы по типам
		{&st.Signals, &models.Signal{}, "", nil},
		{&st.Crashes, &models.Signal{}, "signal_type = ?", []any{models.SignalCrash}},
		{&st.Rumors, &models.Signal{}, "signal_type = ?", []any{models.SignalRumor}},
		// Угрозы и развёрнутые ответы
		{&st.Threats, &models.ThreatPackage{}, "", nil},
		{&st.Critical, &models.ThreatPackage{}, "correlation_confidence > ?", []any{80}},
		{&st.Deployed, &models.ThreatPackage{}, "response_deployed = ?", []any{true}},
		{&st.Measures, &models.DeployedMeasure{}, "", nil},
		{&st.AttemptsRejected, &models.CorrelationAttempt{}, "verdict = ?", []any{models.VerdictUncorrelated}},
	}
	for _, c := range counts {
		q := db.Model(c.model)
		if c.where != "" {
			q = q.Where(c.where, c.args...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return st, persistErr("stats", err)
		}
	}

	// Средняя уверенность корреляции
	var avg sql.NullFloat64
	if err := db.Model(&models.ThreatPackage{}).Select("AVG(correlation_confidence)").Scan(&avg).Error; err != nil {
		return st, persistErr("stats", err)
	}
	if avg.Valid {
		st.AvgConfidence = models.Round(avg.Float64, 2)
	}

	var rows []struct {
		Outcome string
		N       int64
	}
	err := db.Model(&models.DeployedMeasure{}).
		Select("outcome, COUNT(*) AS n").
		Where("outcome <> ''").
		Group("outcome").
		Scan(&rows).Error
	if err != nil {
		return st, persistErr("stats", err)
	}
	for _, r := range rows {
		st.Outcomes[r.Outcome] = r.N
	}
	return st, nil
}
