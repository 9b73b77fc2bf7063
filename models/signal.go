package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

type SignalType string

const (
	SignalCrash SignalType = "CRASH"
	SignalRumor SignalType = "RUMOR"
)

func (t SignalType) Valid() bool {
	return t == SignalCrash || t == SignalRumor
}

// Signal is one observed event on the unified timeline. Rows are never
// updated once written.
type Signal struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	Ticker     string         `json:"ticker" gorm:"size:32;index"`
	SignalType SignalType     `json:"signal_type" gorm:"size:8;index"`
	Severity   int            `json:"severity"`
	Timestamp  time.Time      `json:"timestamp" gorm:"index"`
	Metadata   datatypes.JSON `json:"metadata"`
}

func (Signal) TableName() string {
	return "active_signals"
}

// Meta decodes the metadata bag. Missing or null metadata yields an empty map.
func (s Signal) Meta() map[string]any {
	out := map[string]any{}
	if len(s.Metadata) == 0 {
		return out
	}
	_ = json.Unmarshal(s.Metadata, &out)
	if out == nil {
		out = map[string]any{}
	}
	return out
}

// MetaFloat returns a numeric metadata value, or 0 when absent.
func (s Signal) MetaFloat(key string) float64 {
	switch v := s.Meta()[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

func (s Signal) MetaString(key string) string {
	if v, ok := s.Meta()[key].(string); ok {
		return v
	}
	return ""
}

func (s Signal) MetaBool(key string) bool {
	v, _ := s.Meta()[key].(bool)
	return v
}
