package repository

import (
	"errors"
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// emailCacheRepository implements EmailCacheRepository on Postgres
type emailCacheRepository struct {
	db *gorm.DB
}

// NewEmailCacheRepository creates a new instance of emailCacheRepository
func NewEmailCacheRepository(db *gorm.DB) EmailCacheRepository {
	return &emailCacheRepository{
		db: db,
	}
}

func (r *emailCacheRepository) Exists(userID, emailID string) (bool, error) {
	var count int64
	err := r.db.Model(&emaildomain.Email{}).
		Where("user_id = ? AND id = ?", userID, emailID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// UpsertMessage writes the message fields with merge semantics: on conflict
// only the provider-owned columns are assigned, so analysis results and any
// fields the UI may have optimistically set survive a re-sync.
func (r *emailCacheRepository) UpsertMessage(email *emaildomain.Email) error {
	now := time.Now()
	email.CreatedAt = now
	email.UpdatedAt = now

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"thread_id", "from", "from_name", "to", "subject", "snippet",
			"body", "is_unread", "received_at", "updated_at",
		}),
	}).Create(email).Error
}

// SaveAnalysis merge-updates only the analysis projection of a cached email.
func (r *emailCacheRepository) SaveAnalysis(userID, emailID, intent, urgency, category string, requiresResponse bool) error {
	return r.db.Model(&emaildomain.Email{}).
		Where("user_id = ? AND id = ?", userID, emailID).
		Updates(map[string]interface{}{
			"intent":            intent,
			"urgency":           urgency,
			"category":          category,
			"requires_response": requiresResponse,
			"analyzed":          true,
			"updated_at":        time.Now(),
		}).Error
}

func (r *emailCacheRepository) Get(userID, emailID string) (*emaildomain.Email, error) {
	var email emaildomain.Email
	err := r.db.Where("user_id = ? AND id = ?", userID, emailID).First(&email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &email, nil
}
