package domain

import "time"

// Sync status values for a user's mailbox.
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusError   = "error"
)

// SyncState tracks per-user mailbox sync progress. One row per user, created
// when the mailbox is first connected, soft-disabled via MailboxConnected
// instead of being deleted.
//
// ActivityLevel is a cached projection of LastActiveAt; the scheduler always
// re-derives the level at evaluation time and never trusts the cached value.
type SyncState struct {
	UserID           string     `json:"user_id" gorm:"primaryKey"`
	LastActiveAt     time.Time  `json:"last_active_at" gorm:"index"`
	LastSyncedAt     *time.Time `json:"last_synced_at"`
	SyncStatus       string     `json:"sync_status"`
	SyncError        string     `json:"sync_error,omitempty"`
	ActivityLevel    string     `json:"activity_level"`
	MailboxConnected bool       `json:"mailbox_connected"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Due reports whether this user should be synced now given their re-derived
// tier interval. A connected user who has never been synced is always due.
func (s *SyncState) Due(now time.Time, interval time.Duration) bool {
	if !s.MailboxConnected {
		return false
	}
	if s.LastSyncedAt == nil {
		return true
	}
	return now.Sub(*s.LastSyncedAt) >= interval
}
