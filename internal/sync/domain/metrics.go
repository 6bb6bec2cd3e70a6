package domain

import "time"

// SyncMetrics is one append-only record per batch execution. Never updated
// after creation; read only by the metrics endpoint.
type SyncMetrics struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	Tier         string    `json:"tier"`
	UserCount    int       `json:"user_count"`
	DurationMs   int64     `json:"duration_ms"`
	SuccessCount int       `json:"success_count"`
	ErrorCount   int       `json:"error_count"`
	Timestamp    time.Time `json:"timestamp" gorm:"index"`
}
