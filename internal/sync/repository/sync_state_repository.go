package repository

import (
	"errors"
	"time"

	syncdomain "mailpilot-backend/internal/sync/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// syncStateRepository implements SyncStateRepository on Postgres
type syncStateRepository struct {
	db *gorm.DB
}

// NewSyncStateRepository creates a new instance of syncStateRepository
func NewSyncStateRepository(db *gorm.DB) SyncStateRepository {
	return &syncStateRepository{
		db: db,
	}
}

func (r *syncStateRepository) Get(userID string) (*syncdomain.SyncState, error) {
	var state syncdomain.SyncState
	err := r.db.Where("user_id = ?", userID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (r *syncStateRepository) Save(state *syncdomain.SyncState) error {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(state).Error
}

func (r *syncStateRepository) FindConnectedActiveSince(cutoff time.Time) ([]*syncdomain.SyncState, error) {
	var states []*syncdomain.SyncState
	err := r.db.
		Where("mailbox_connected = ? AND last_active_at >= ?", true, cutoff).
		Find(&states).Error
	if err != nil {
		return nil, err
	}
	return states, nil
}

func (r *syncStateRepository) UpdateActivity(userID string, lastActiveAt time.Time, level syncdomain.ActivityLevel) error {
	return r.db.Model(&syncdomain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"last_active_at": lastActiveAt,
			"activity_level": string(level),
			"updated_at":     time.Now(),
		}).Error
}

func (r *syncStateRepository) MarkSyncSuccess(userID string, syncedAt time.Time) error {
	return r.db.Model(&syncdomain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"sync_status":    syncdomain.SyncStatusSuccess,
			"sync_error":     "",
			"last_synced_at": syncedAt,
			"updated_at":     time.Now(),
		}).Error
}

func (r *syncStateRepository) MarkSyncError(userID string, message string) error {
	return r.db.Model(&syncdomain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"sync_status": syncdomain.SyncStatusError,
			"sync_error":  message,
			"updated_at":  time.Now(),
		}).Error
}

func (r *syncStateRepository) SetConnected(userID string, connected bool) error {
	return r.db.Model(&syncdomain.SyncState{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"mailbox_connected": connected,
			"updated_at":        time.Now(),
		}).Error
}
