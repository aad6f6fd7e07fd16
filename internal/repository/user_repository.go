package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"askhub_backend/internal/model"
	"askhub_backend/pkg/database"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns nil when the user does not exist.
func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := database.Conn(ctx, r.db).First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
