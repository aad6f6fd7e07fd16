package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/database"
)

type SubscriptionRepository struct {
	db *gorm.DB
}

func NewSubscriptionRepository(db *gorm.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

func (r *SubscriptionRepository) findOne(ctx context.Context, query string, arg any) (*model.Subscription, error) {
	var s model.Subscription
	if err := database.Conn(ctx, r.db).Where(query, arg).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return &s, nil
}

// FindByUserID returns nil when the user has no billing record yet.
func (r *SubscriptionRepository) FindByUserID(ctx context.Context, userID uint) (*model.Subscription, error) {
	return r.findOne(ctx, "user_id = ?", userID)
}

func (r *SubscriptionRepository) FindByCustomerID(ctx context.Context, customerID string) (*model.Subscription, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "stripe_customer_id = ?", customerID)
}

func (r *SubscriptionRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*model.Subscription, error) {
	if subscriptionID == "" {
		return nil, nil
	}
	return r.findOne(ctx, "stripe_subscription_id = ?", subscriptionID)
}

// Save inserts a new record or overwrites an existing one. Updates only apply
// when the stored version still equals s.Version; otherwise ErrVersionMismatch
// is returned and nothing is written.
func (r *SubscriptionRepository) Save(ctx context.Context, s *model.Subscription) error {
	conn := database.Conn(ctx, r.db)

	if s.ID == 0 {
		s.Version = 1
		if err := conn.Create(s).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrVersionMismatch
			}
			return fmt.Errorf("failed to create subscription: %w", err)
		}
		return nil
	}

	next := *s
	next.Version = s.Version + 1
	next.UpdatedAt = time.Now().UTC()

	res := conn.Model(&model.Subscription{}).
		Where("id = ? AND version = ?", s.ID, s.Version).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(&next)
	if res.Error != nil {
		return fmt.Errorf("failed to update subscription %d: %w", s.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrVersionMismatch
	}

	*s = next
	return nil
}

// ListActiveTrials returns every record with a running trial.
func (r *SubscriptionRepository) ListActiveTrials(ctx context.Context) ([]model.Subscription, error) {
	var subs []model.Subscription
	if err := database.Conn(ctx, r.db).Where("is_trial_active = ?", true).Order("id").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list active trials: %w", err)
	}
	return subs, nil
}

// ListExpiredPaid returns paid records whose period ended before now.
func (r *SubscriptionRepository) ListExpiredPaid(ctx context.Context, now time.Time) ([]model.Subscription, error) {
	var subs []model.Subscription
	err := database.Conn(ctx, r.db).
		Where("stripe_price_id <> '' AND stripe_current_period_end IS NOT NULL AND stripe_current_period_end < ?", now).
		Order("id").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired subscriptions: %w", err)
	}
	return subs, nil
}
