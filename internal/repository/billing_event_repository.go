package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/database"
)

type BillingEventRepository struct {
	db *gorm.DB
}

func NewBillingEventRepository(db *gorm.DB) *BillingEventRepository {
	return &BillingEventRepository{db: db}
}

func (r *BillingEventRepository) Exists(ctx context.Context, eventID string) (bool, error) {
	var count int64
	err := database.Conn(ctx, r.db).Model(&model.BillingEvent{}).Where("event_id = ?", eventID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up billing event %s: %w", eventID, err)
	}
	return count > 0, nil
}

// Record stores e. Recording the same event id twice fails with ErrDuplicate.
func (r *BillingEventRepository) Record(ctx context.Context, e *model.BillingEvent) error {
	if err := database.Conn(ctx, r.db).Create(e).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to record billing event %s: %w", e.EventID, err)
	}
	return nil
}
