package repository

import (
	"time"

	emaildomain "mailpilot-backend/internal/email/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// draftRepository implements DraftRepository on Postgres
type draftRepository struct {
	db *gorm.DB
}

// NewDraftRepository creates a new instance of draftRepository
func NewDraftRepository(db *gorm.DB) DraftRepository {
	return &draftRepository{
		db: db,
	}
}

func (r *draftRepository) Save(draft *emaildomain.Draft) error {
	if draft.ID == "" {
		draft.ID = uuid.New().String()
	}
	draft.CreatedAt = time.Now()
	return r.db.Create(draft).Error
}

func (r *draftRepository) ListByUser(userID string, limit int) ([]*emaildomain.Draft, error) {
	var drafts []*emaildomain.Draft
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&drafts).Error
	if err != nil {
		return nil, err
	}
	return drafts, nil
}
