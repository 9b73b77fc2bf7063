package models

import "time"

// ContentItem is a news or social post considered as the cause of a crash.
// It is never stored on its own; the selected item is copied into the
// ThreatPackage.
type ContentItem struct {
	Headline    string    `json:"headline"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
	PanicScore  int       `json:"panic_score"`
	Source      string    `json:"source"`
}
