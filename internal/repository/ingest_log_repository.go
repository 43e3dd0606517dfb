package repository

import (
	"fmt"

	"gorm.io/gorm"

	"evalrag/internal/model"
)

// IngestLogRepository persists knowledge base change events for audit.
type IngestLogRepository struct {
	db *gorm.DB
}

func NewIngestLogRepository(db *gorm.DB) *IngestLogRepository {
	return &IngestLogRepository{db: db}
}

func (r *IngestLogRepository) Create(event *model.IngestEvent) error {
	if err := r.db.Create(event).Error; err != nil {
		return fmt.Errorf("create ingest log failed: %w", err)
	}
	return nil
}

func (r *IngestLogRepository) ListRecent(limit int) ([]model.IngestEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var events []model.IngestEvent
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("list ingest logs failed: %w", err)
	}
	return events, nil
}
