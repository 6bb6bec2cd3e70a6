package repository

import (
	syncdomain "mailpilot-backend/internal/sync/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// syncMetricsRepository implements SyncMetricsRepository on Postgres
type syncMetricsRepository struct {
	db *gorm.DB
}

// NewSyncMetricsRepository creates a new instance of syncMetricsRepository
func NewSyncMetricsRepository(db *gorm.DB) SyncMetricsRepository {
	return &syncMetricsRepository{
		db: db,
	}
}

func (r *syncMetricsRepository) Record(metrics *syncdomain.SyncMetrics) error {
	if metrics.ID == "" {
		metrics.ID = uuid.New().String()
	}
	return r.db.Create(metrics).Error
}

func (r *syncMetricsRepository) Recent(limit int) ([]*syncdomain.SyncMetrics, error) {
	var records []*syncdomain.SyncMetrics
	err := r.db.Order("timestamp DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
