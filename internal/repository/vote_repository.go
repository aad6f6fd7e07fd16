package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/database"
)

type VoteRepository struct {
	db *gorm.DB
}

func NewVoteRepository(db *gorm.DB) *VoteRepository {
	return &VoteRepository{db: db}
}

func targetColumn(t model.VoteTarget) (string, error) {
	switch t.Kind {
	case model.TargetQuestion:
		return "question_id", nil
	case model.TargetAnswer:
		return "answer_id", nil
	default:
		return "", fmt.Errorf("unknown vote target kind %q", t.Kind)
	}
}

// FindByVoterLocked takes a transaction-scoped advisory lock on the
// (user, target) pair and then loads the user's vote, or nil when there is
// none. Concurrent callers for the same pair wait until the holder commits.
// It must run inside a transaction.
func (r *VoteRepository) FindByVoterLocked(ctx context.Context, userID uint, t model.VoteTarget) (*model.Vote, error) {
	col, err := targetColumn(t)
	if err != nil {
		return nil, err
	}

	db := database.Conn(ctx, r.db)
	key := fmt.Sprintf("vote:%d:%s", userID, t)
	if err := db.Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", key).Error; err != nil {
		return nil, fmt.Errorf("failed to lock vote %s for user %d: %w", t, userID, err)
	}

	var v model.Vote
	err = db.Where("user_id = ? AND "+col+" = ?", userID, t.ID).Take(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vote %s for user %d: %w", t, userID, err)
	}
	return &v, nil
}

// Create inserts v. A second vote by the same user on the same target fails
// with ErrDuplicate.
func (r *VoteRepository) Create(ctx context.Context, v *model.Vote) error {
	if err := database.Conn(ctx, r.db).Create(v).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save vote: %w", err)
	}
	return nil
}

// UpdateValue persists v.Value and v.UpdatedAt. A vote that no longer exists
// yields ErrVersionMismatch.
func (r *VoteRepository) UpdateValue(ctx context.Context, v *model.Vote) error {
	res := database.Conn(ctx, r.db).Model(&model.Vote{}).
		Where("id = ?", v.ID).
		Updates(map[string]any{"value": v.Value, "updated_at": v.UpdatedAt})
	if res.Error != nil {
		return fmt.Errorf("failed to update vote %d: %w", v.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("vote %d is gone: %w", v.ID, ErrVersionMismatch)
	}
	return nil
}

// Delete removes the vote. A vote that no longer exists yields
// ErrVersionMismatch.
func (r *VoteRepository) Delete(ctx context.Context, id uint) error {
	res := database.Conn(ctx, r.db).Delete(&model.Vote{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete vote %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("vote %d is gone: %w", id, ErrVersionMismatch)
	}
	return nil
}

// Tally counts up and down votes on the target.
func (r *VoteRepository) Tally(ctx context.Context, t model.VoteTarget) (model.VoteTally, error) {
	col, err := targetColumn(t)
	if err != nil {
		return model.VoteTally{}, err
	}

	var tally model.VoteTally
	err = database.Conn(ctx, r.db).Model(&model.Vote{}).
		Select(
			"COALESCE(SUM(CASE WHEN value = 1 THEN 1 ELSE 0 END), 0) AS upvotes, "+
				"COALESCE(SUM(CASE WHEN value = -1 THEN 1 ELSE 0 END), 0) AS downvotes",
		).
		Where(col+" = ?", t.ID).
		Scan(&tally).Error
	if err != nil {
		return model.VoteTally{}, fmt.Errorf("failed to tally votes for %s: %w", t, err)
	}
	return tally, nil
}
