package repository

import (
	"time"

	syncdomain "mailpilot-backend/internal/sync/domain"
)

// SyncStateRepository persists per-user sync progress.
type SyncStateRepository interface {
	Get(userID string) (*syncdomain.SyncState, error)
	Save(state *syncdomain.SyncState) error
	// FindConnectedActiveSince returns connected users whose last activity is
	// at or after cutoff. This is the scheduler's candidate pre-filter; the
	// due-ness decision happens in the scheduler.
	FindConnectedActiveSince(cutoff time.Time) ([]*syncdomain.SyncState, error)
	// UpdateActivity writes last_active_at and the derived cached level.
	UpdateActivity(userID string, lastActiveAt time.Time, level syncdomain.ActivityLevel) error
	// MarkSyncSuccess sets status=success, last_synced_at and clears the error.
	MarkSyncSuccess(userID string, syncedAt time.Time) error
	// MarkSyncError sets status=error with the message; last_synced_at is
	// deliberately untouched so the user stays due next cycle.
	MarkSyncError(userID string, message string) error
	SetConnected(userID string, connected bool) error
}

// SyncMetricsRepository records append-only batch metrics.
type SyncMetricsRepository interface {
	Record(metrics *syncdomain.SyncMetrics) error
	Recent(limit int) ([]*syncdomain.SyncMetrics, error)
}
